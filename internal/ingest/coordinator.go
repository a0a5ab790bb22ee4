package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/shopload/internal/logging"
)

// State is a coordinator lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateLoadingCategories
	StateLoadingProducts
	StateLoadingUsers
	StateLoadingOrders
	StateLoadingOrderItems
	StateLoadingConversations
	StateLoadingMessages
	StateClosed
)

var stateNames = map[State]string{
	StateIdle:                 "idle",
	StateConnecting:           "connecting",
	StateLoadingCategories:    "loading_categories",
	StateLoadingProducts:      "loading_products",
	StateLoadingUsers:         "loading_users",
	StateLoadingOrders:        "loading_orders",
	StateLoadingOrderItems:    "loading_order_items",
	StateLoadingConversations: "loading_conversations",
	StateLoadingMessages:      "loading_messages",
	StateClosed:               "closed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var loadingStates = map[EntityType]State{
	EntityCategory:     StateLoadingCategories,
	EntityProduct:      StateLoadingProducts,
	EntityUser:         StateLoadingUsers,
	EntityOrder:        StateLoadingOrders,
	EntityOrderItem:    StateLoadingOrderItems,
	EntityConversation: StateLoadingConversations,
	EntityMessage:      StateLoadingMessages,
}

// Connector opens the storage backend for a run.
type Connector func(ctx context.Context) (Store, error)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock sets the clock used for load-time defaults.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithEntities restricts the run to the given entity types. They are still
// loaded in dependency order.
func WithEntities(entities ...EntityType) Option {
	return func(c *Coordinator) {
		want := make(map[EntityType]bool, len(entities))
		for _, e := range entities {
			want[e] = true
		}
		c.entities = c.entities[:0]
		for _, e := range LoadOrder {
			if want[e] {
				c.entities = append(c.entities, e)
			}
		}
	}
}

// Coordinator drives one ingestion run through the entity types in
// dependency order. A Coordinator is not safe for concurrent use.
type Coordinator struct {
	connect  Connector
	sources  Sources
	now      func() time.Time
	entities []EntityType
	state    State
	history  []State
}

// NewCoordinator creates a coordinator in the Idle state.
func NewCoordinator(connect Connector, sources Sources, opts ...Option) *Coordinator {
	c := &Coordinator{
		connect:  connect,
		sources:  sources,
		now:      time.Now,
		entities: append([]EntityType(nil), LoadOrder...),
		state:    StateIdle,
		history:  []State{StateIdle},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state.
func (c *Coordinator) State() State { return c.state }

// History returns every state the coordinator has been in, in order.
func (c *Coordinator) History() []State {
	return append([]State(nil), c.history...)
}

func (c *Coordinator) transition(s State) {
	c.state = s
	c.history = append(c.history, s)
}

// Run connects to storage, loads every entity type and closes the store.
// The store is closed on every exit path. Per-entity failures are recorded
// in the summary and the run continues; connectivity loss and cancellation
// end the run.
func (c *Coordinator) Run(ctx context.Context) (summary RunSummary) {
	summary = RunSummary{
		RunID:     uuid.New(),
		Status:    RunCompleted,
		StartedAt: c.now(),
	}
	ctx = logging.WithRunID(ctx, summary.RunID.String())
	log := logging.FromContext(ctx)

	log.Info("ingestion started", "entities", len(c.entities))

	c.transition(StateConnecting)
	store, err := c.connect(ctx)
	if err != nil {
		var conn *ConnectivityError
		if !errors.As(err, &conn) {
			err = &ConnectivityError{Op: "connect", Err: err}
		}
		summary.Status = RunFailed
		summary.Err = err
		summary.FinishedAt = c.now()
		c.transition(StateClosed)
		log.Error("storage connection failed", "error", err, "code", Code(err))
		return summary
	}

	defer func() {
		summary.FinishedAt = c.now()
		if rec, ok := store.(RunRecorder); ok {
			if err := rec.RecordRun(context.WithoutCancel(ctx), summary); err != nil {
				log.Warn("failed to record run", "error", err)
			}
		}
		if err := store.Close(); err != nil {
			log.Warn("failed to close store", "error", err)
		}
		c.transition(StateClosed)
		logSummary(log, summary)
	}()

	l := &loader{
		store:    store,
		sources:  c.sources,
		now:      c.now(),
		resolver: NewResolver(store),
	}
	l.dedup = NewDeduplicator(l.resolver)
	l.seq = newSequencer(store)

	for _, entity := range c.entities {
		if ctx.Err() != nil {
			summary.Status = RunCancelled
			summary.Err = ctx.Err()
			return summary
		}

		c.transition(loadingStates[entity])
		stats, err := l.load(logging.WithEntity(ctx, string(entity)), entity)
		summary.Entities = append(summary.Entities, stats)

		if err != nil {
			summary.Err = err
			if ctx.Err() != nil {
				summary.Status = RunCancelled
			} else {
				summary.Status = RunFailed
			}
			return summary
		}
	}
	return summary
}

func logSummary(log *slog.Logger, s RunSummary) {
	t := s.Totals()
	args := []any{
		"status", s.Status,
		"processed", t.Processed,
		"inserted", t.Inserted,
		"errors", t.Errors,
		"skipped", t.Skipped,
		"duration", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond),
	}
	if s.Err != nil {
		args = append(args, "error", s.Err, "code", Code(s.Err))
		log.Error("ingestion finished", args...)
		return
	}
	log.Info("ingestion finished", args...)
}

// loader holds the per-run state shared by entity loads.
type loader struct {
	store    Store
	sources  Sources
	now      time.Time
	resolver *Resolver
	dedup    *Deduplicator
	seq      *sequencer
}

// load ingests one entity type. Entity-level failures are reported in the
// stats; the returned error is non-nil only when the run must stop.
func (l *loader) load(ctx context.Context, entity EntityType) (EntityStats, error) {
	log := logging.FromContext(ctx)
	stats := EntityStats{Entity: entity, Status: StatusLoaded}

	spec, ok := Spec(entity)
	if !ok {
		stats.Status = StatusSourceError
		stats.Err = &SourceError{Entity: entity, Err: errors.New("entity not registered")}
		return stats, nil
	}

	table, err := l.read(entity)
	switch {
	case errors.Is(err, ErrSourceMissing):
		stats.Status = StatusSkipped
		log.Warn("source not found, skipping", "error", err)
		return stats, nil
	case err != nil:
		stats.Status = StatusSourceError
		stats.Err = err
		log.Error("source unreadable", "error", err, "code", Code(err))
		return stats, nil
	}
	stats.Processed = len(table.Rows)

	norm, err := NormalizeTable(table, spec, l.now)
	if err != nil {
		stats.Errors = stats.Processed
		stats.Status = StatusSchemaInvalid
		stats.Err = err
		log.Error("schema mismatch", "file", table.Name, "error", err, "code", Code(err))
		return stats, nil
	}
	for _, rej := range norm.Rejected {
		stats.Errors++
		log.Warn("row rejected", "line", rej.Line, "field", rej.Field, "reason", rej.Reason, "code", Code(rej))
	}

	kept, dups, err := l.dedup.Filter(ctx, entity, norm.Records)
	if err != nil {
		return abort(log, stats, err)
	}
	for _, d := range dups {
		stats.Skipped++
		log.Info("duplicate skipped", "line", d.Record.SourceLine(), "key", d.Key.String(),
			"first_line", d.FirstLine, "stored", d.Stored, "code", Code(ErrDuplicate))
	}

	bound := make([]Record, 0, len(kept))
	for _, rec := range kept {
		if err := l.resolver.Bind(ctx, rec); err != nil {
			var ref *UnresolvedReferenceError
			if !errors.As(err, &ref) {
				return abort(log, stats, err)
			}
			stats.Errors++
			log.Warn("row rejected", "line", ref.Line, "reference", ref.Target, "key", ref.Key.String(), "code", Code(ref))
			continue
		}
		bound = append(bound, rec)
	}

	if entity == EntityMessage {
		if err := l.seq.assign(ctx, bound); err != nil {
			return abort(log, stats, err)
		}
	}

	res, err := l.store.InsertBatch(ctx, entity, bound)
	stats.Inserted += res.Inserted
	for _, re := range res.Errors {
		stats.Errors++
		line := 0
		if re.Index >= 0 && re.Index < len(bound) {
			line = bound[re.Index].SourceLine()
		}
		log.Warn("insert failed", "line", line, "error", re.Err, "code", Code(re.Err))
	}
	for i, id := range res.IDs {
		if id == 0 || i >= len(bound) {
			continue
		}
		if key, ok := LookupKey(bound[i]); ok {
			l.resolver.Register(entity, key, id)
		}
	}
	if err != nil {
		return abort(log, stats, err)
	}

	log.Info("entity loaded",
		"processed", stats.Processed,
		"inserted", stats.Inserted,
		"errors", stats.Errors,
		"skipped", stats.Skipped,
	)
	return stats, nil
}

func (l *loader) read(entity EntityType) (*Table, error) {
	rc, name, err := l.sources.Open(entity)
	if err != nil {
		if errors.Is(err, ErrSourceMissing) {
			return nil, err
		}
		return nil, &SourceError{Entity: entity, Err: err}
	}
	defer rc.Close()

	t, err := ReadTable(rc, name)
	if err != nil {
		return nil, &SourceError{Entity: entity, Err: fmt.Errorf("%s: %w", name, err)}
	}
	return t, nil
}

// abort ends an entity load that cannot continue. Rows that were not
// settled are counted as errors.
func abort(log *slog.Logger, stats EntityStats, err error) (EntityStats, error) {
	stats.Errors = stats.Processed - stats.Inserted - stats.Skipped
	stats.Status = StatusAborted
	stats.Err = err
	log.Error("entity load aborted",
		"processed", stats.Processed,
		"inserted", stats.Inserted,
		"error", err,
		"code", Code(err),
	)
	return stats, err
}

// sequencer assigns per-conversation message sequence numbers, continuing
// from the highest number already stored when the store can report it.
type sequencer struct {
	src  SequenceSource
	last map[int64]int64
}

func newSequencer(store Store) *sequencer {
	s := &sequencer{last: make(map[int64]int64)}
	if src, ok := store.(SequenceSource); ok {
		s.src = src
	}
	return s
}

func (s *sequencer) next(ctx context.Context, conversationID int64) (int64, error) {
	last, ok := s.last[conversationID]
	if !ok && s.src != nil {
		var err error
		if last, err = s.src.LastSequence(ctx, conversationID); err != nil {
			return 0, err
		}
	}
	last++
	s.last[conversationID] = last
	return last, nil
}

// assign numbers messages in source order.
func (s *sequencer) assign(ctx context.Context, records []Record) error {
	for _, rec := range records {
		m, ok := rec.(*Message)
		if !ok {
			continue
		}
		n, err := s.next(ctx, m.ConversationID)
		if err != nil {
			return err
		}
		m.SequenceNumber = n
	}
	return nil
}
