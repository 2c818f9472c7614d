// Copyright (C) 2025 Harmony Design Systems (engineering@harmony.design)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package txlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/harmony-design/graphcore/events"
	"github.com/harmony-design/graphcore/history"
	"github.com/harmony-design/graphcore/storage/badger"
	"github.com/harmony-design/graphcore/telemetry"
)

// Config configures a transaction log.
type Config struct {
	// Path is the directory for the durable tier. Required unless
	// InMemory is set.
	Path string

	// InMemory uses an in-memory durable tier (tests only).
	InMemory bool

	// WindowSize bounds the in-memory entry window. Default: 1000.
	WindowSize int

	// SyncWrites enables synchronous durable writes. Must stay true for
	// the committed-means-durable guarantee. Default: true.
	SyncWrites bool

	// AppendWarnThreshold is the soft append latency budget; appends
	// slower than this log a warning but still succeed. Default: 1ms.
	AppendWarnThreshold time.Duration

	// Logger for log operations. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		WindowSize:          1000,
		SyncWrites:          true,
		AppendWarnThreshold: time.Millisecond,
		Logger:              slog.Default(),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if !c.InMemory && c.Path == "" {
		return errors.New("path is required for a persistent log")
	}
	if c.WindowSize < 0 {
		return errors.New("window size must be non-negative")
	}
	return nil
}

// Subscriber receives each committed entry, synchronously, in append
// order. Subscribers must not call back into the log.
type Subscriber func(entry *Entry)

type logSubscriber struct {
	id string
	fn Subscriber
}

// Log is the append-only transaction log.
//
// # Description
//
// Keeps a bounded window of recent entries in memory with entity and
// type indexes, and persists every entry to the durable tier before it
// is considered committed. Queries that fall entirely inside the window
// are served from memory; anything older transparently routes to the
// durable store with identical results.
//
// # Thread Safety
//
// Safe for concurrent use: a single mutex serializes appends so that id
// assignment, indexing and persistence for entry N complete (or roll
// back) before entry N+1 begins.
type Log struct {
	cfg     Config
	logger  *slog.Logger
	store   Store
	emitter *events.Emitter
	metrics *telemetry.Metrics

	mu          sync.Mutex
	initialized bool
	closed      bool
	latestID    uint64
	window      *history.Ring[*Entry]
	byID        map[uint64]*Entry
	byEntity    map[string][]uint64
	byType      map[string][]uint64
	subs        []logSubscriber
}

// Option configures a Log beyond its Config.
type Option func(*Log)

// WithStore overrides the durable tier (used in tests to inject
// failures; production logs use the default BadgerStore).
func WithStore(store Store) Option {
	return func(l *Log) { l.store = store }
}

// WithEmitter attaches the notification bus; entry-appended and
// window-evicted events are published to it.
func WithEmitter(emitter *events.Emitter) Option {
	return func(l *Log) { l.emitter = emitter }
}

// WithMetrics attaches pre-registered telemetry instruments.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(l *Log) { l.metrics = metrics }
}

// New creates a transaction log. Initialize must be called before any
// other operation.
func New(cfg Config, opts ...Option) (*Log, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.WindowSize == 0 {
		cfg.WindowSize = 1000
	}
	if cfg.AppendWarnThreshold == 0 {
		cfg.AppendWarnThreshold = time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	l := &Log{
		cfg:      cfg,
		logger:   cfg.Logger.With(slog.String("component", "txlog")),
		window:   history.NewRing[*Entry](cfg.WindowSize),
		byID:     make(map[uint64]*Entry),
		byEntity: make(map[string][]uint64),
		byType:   make(map[string][]uint64),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.store == nil {
		storeCfg := badger.Config{
			Path:       cfg.Path,
			InMemory:   cfg.InMemory,
			SyncWrites: cfg.SyncWrites,
			Logger:     cfg.Logger,
		}
		if !cfg.InMemory {
			storeCfg.GCInterval = 5 * time.Minute
			storeCfg.GCDiscardRatio = 0.5
		}
		l.store = NewBadgerStore(storeCfg)
	}

	return l, nil
}

// Initialize opens the durable tier, loads the most recent window of
// entries, rebuilds the entity/type indexes from that window, and sets
// the id counter to one past the highest id ever stored.
//
// # Description
//
// Idempotent: a second call after success is a no-op. Failure to open
// or read the store returns an InitializationError and leaves the log
// unusable.
func (l *Log) Initialize(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if l.initialized {
		return nil
	}

	if err := l.store.Open(ctx); err != nil {
		return &InitializationError{Err: err}
	}

	maxID, err := l.store.MaxID(ctx)
	if err != nil {
		return &InitializationError{Err: err}
	}
	l.latestID = maxID

	// Load the most recent window and rebuild indexes from it.
	if maxID > 0 {
		fromID := uint64(1)
		if maxID > uint64(l.cfg.WindowSize) {
			fromID = maxID - uint64(l.cfg.WindowSize) + 1
		}
		err = l.store.Scan(ctx, fromID, func(entry *Entry) (bool, error) {
			l.window.Push(entry)
			l.indexEntry(entry)
			return true, nil
		})
		if err != nil {
			return &InitializationError{Err: err}
		}
	}

	l.initialized = true
	l.logger.Info("transaction log initialized",
		slog.Uint64("latest_id", l.latestID),
		slog.Int("window_entries", l.window.Len()),
		slog.Int("window_size", l.cfg.WindowSize))
	return nil
}

// Append commits a record to the log.
//
// # Description
//
// Assigns the next monotonic id, stamps the current time, updates the
// in-memory window and indexes, persists to the durable tier, and then
// notifies subscribers in registration order. If persistence fails the
// in-memory state is rolled back and the id is not consumed, so readers
// never observe a phantom gap.
//
// # Outputs
//
//   - uint64: The assigned entry id.
//   - error: ValidationError, ErrNotInitialized, ErrClosed, or
//     PersistenceError.
func (l *Log) Append(ctx context.Context, rec Record) (uint64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if rec.Type == "" {
		return 0, &ValidationError{Field: "type", Reason: "must not be empty"}
	}

	var payload json.RawMessage
	if rec.Payload != nil {
		data, err := json.Marshal(rec.Payload)
		if err != nil {
			return 0, &ValidationError{Field: "payload", Reason: err.Error()}
		}
		payload = data
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 0, ErrClosed
	}
	if !l.initialized {
		return 0, ErrNotInitialized
	}

	ctx, span := otel.Tracer("txlog").Start(ctx, "txlog.Append",
		trace.WithAttributes(attribute.String("entry_type", rec.Type)))
	defer span.End()

	start := time.Now()

	entry := &Entry{
		ID:        l.latestID + 1,
		Timestamp: time.Now().UTC(),
		Type:      rec.Type,
		EntityID:  rec.EntityID,
		Payload:   payload,
		Metadata:  rec.Metadata,
	}

	l.indexEntry(entry)
	evicted, wasEvicted := l.window.Push(entry)
	if wasEvicted {
		l.unindexEntry(evicted)
	}

	if err := l.store.Put(ctx, entry); err != nil {
		// Roll back the in-memory insert. An entry evicted by this push
		// is not restored to the window; its durable copy is intact and
		// queries fall back to the store.
		l.window.PopNewest()
		l.unindexEntry(entry)

		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		l.recordAppend(ctx, start, "error")
		return 0, &PersistenceError{Op: "append", Err: err}
	}

	l.latestID = entry.ID

	elapsed := time.Since(start)
	if elapsed > l.cfg.AppendWarnThreshold {
		l.logger.Warn("append exceeded latency budget",
			slog.Uint64("id", entry.ID),
			slog.Duration("elapsed", elapsed),
			slog.Duration("budget", l.cfg.AppendWarnThreshold))
	}

	span.SetAttributes(attribute.Int64("entry_id", int64(entry.ID)))
	l.recordAppend(ctx, start, "ok")
	if l.metrics != nil && wasEvicted {
		l.metrics.LogEvictionsTotal.Add(ctx, 1)
	}

	// Subscribers run synchronously under the append lock so they see
	// entries in strict append order. They must not call back into the
	// log.
	for _, sub := range l.subs {
		l.safeNotify(sub.fn, entry)
	}

	if l.emitter != nil {
		l.emitter.Emit(events.TypeEntryAppended, events.EntryAppendedData{
			EntryID:   entry.ID,
			EntryType: entry.Type,
			EntityID:  entry.EntityID,
		})
		if wasEvicted {
			l.emitter.Emit(events.TypeWindowEvicted, events.WindowEvictedData{
				EntryID: evicted.ID,
			})
		}
	}

	l.logger.Debug("entry appended",
		slog.Uint64("id", entry.ID),
		slog.String("type", entry.Type))

	return entry.ID, nil
}

func (l *Log) recordAppend(ctx context.Context, start time.Time, status string) {
	if l.metrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	l.metrics.LogAppendsTotal.Add(ctx, 1, attrs)
	l.metrics.LogAppendDuration.Record(ctx, time.Since(start).Seconds(), attrs)
}

func (l *Log) safeNotify(fn Subscriber, entry *Entry) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("log subscriber panicked",
				slog.Uint64("entry_id", entry.ID),
				slog.Any("panic", r))
		}
	}()
	fn(entry)
}

// indexEntry adds an entry to the id/entity/type indexes.
func (l *Log) indexEntry(entry *Entry) {
	l.byID[entry.ID] = entry
	if entry.EntityID != "" {
		l.byEntity[entry.EntityID] = append(l.byEntity[entry.EntityID], entry.ID)
	}
	l.byType[entry.Type] = append(l.byType[entry.Type], entry.ID)
}

// unindexEntry removes an entry from the id/entity/type indexes.
func (l *Log) unindexEntry(entry *Entry) {
	delete(l.byID, entry.ID)
	if entry.EntityID != "" {
		l.byEntity[entry.EntityID] = removeID(l.byEntity[entry.EntityID], entry.ID)
		if len(l.byEntity[entry.EntityID]) == 0 {
			delete(l.byEntity, entry.EntityID)
		}
	}
	l.byType[entry.Type] = removeID(l.byType[entry.Type], entry.ID)
	if len(l.byType[entry.Type]) == 0 {
		delete(l.byType, entry.Type)
	}
}

func removeID(ids []uint64, id uint64) []uint64 {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// GetByID returns the entry with the given id, from the window when
// resident and from the durable store otherwise.
func (l *Log) GetByID(ctx context.Context, id uint64) (*Entry, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}
	if !l.initialized {
		return nil, ErrNotInitialized
	}
	if id == 0 || id > l.latestID {
		return nil, ErrNotFound
	}

	if entry, ok := l.byID[id]; ok {
		return entry, nil
	}
	return l.store.Get(ctx, id)
}

// Count returns the total number of committed entries, including those
// evicted from the window. Ids have no gaps, so this equals LatestID.
func (l *Log) Count() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.latestID
}

// LatestID returns the highest committed entry id (0 when empty). It
// reflects the true global sequence even when older entries are only
// present in durable storage.
func (l *Log) LatestID() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.latestID
}

// Subscribe registers a listener invoked synchronously after each
// successful append, in append order. Listener panics are recovered and
// logged, never propagated to the appender.
//
// # Outputs
//
//   - func(): Unsubscribe handle.
func (l *Log) Subscribe(fn Subscriber) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := uuid.NewString()
	l.subs = append(l.subs, logSubscriber{id: id, fn: fn})

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, sub := range l.subs {
			if sub.id == id {
				l.subs = append(l.subs[:i], l.subs[i+1:]...)
				return
			}
		}
	}
}

// Clear removes every entry from memory and durable storage and resets
// the id counter.
//
// # Description
//
// Test-harness escape hatch: this deliberately violates the append-only
// invariant and is not part of the production contract. Do not call it
// outside tests.
func (l *Log) Clear(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if !l.initialized {
		return ErrNotInitialized
	}

	if err := l.store.Clear(ctx); err != nil {
		return &PersistenceError{Op: "clear", Err: err}
	}

	l.window.Clear()
	l.byID = make(map[uint64]*Entry)
	l.byEntity = make(map[string][]uint64)
	l.byType = make(map[string][]uint64)
	l.latestID = 0

	l.logger.Warn("transaction log cleared (test-only operation)")
	return nil
}

// Close releases the durable tier. Idempotent.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.store.Close()
}

// windowMinID returns the lowest window-resident id, or 0 when empty.
// Caller must hold mu.
func (l *Log) windowMinID() uint64 {
	oldest, ok := l.window.Oldest()
	if !ok {
		return 0
	}
	return oldest.ID
}
