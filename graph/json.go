// Copyright (C) 2025 Harmony Design Systems (engineering@harmony.design)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import "encoding/json"

// graphJSON is the wire shape consumed and produced by the host renderer.
type graphJSON struct {
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}

// MarshalJSON encodes the graph as {"nodes": [...], "edges": [...]} with
// both collections in insertion order.
func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(graphJSON{Nodes: g.nodes, Edges: g.edges})
}

// UnmarshalJSON decodes a graph, deriving edge ids where absent.
func (g *Graph) UnmarshalJSON(data []byte) error {
	var raw graphJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*g = *New()
	for _, n := range raw.Nodes {
		g.AddNode(n)
	}
	for _, e := range raw.Edges {
		g.AddEdge(e)
	}
	return nil
}
