// Package engine owns the authoritative local snapshot of all tracked
// entities and reconciles mesh updates into it. All mutation — inbound
// store deliveries and optimistic local echoes alike — funnels through a
// single apply goroutine; that is the one mandatory serialization point
// of the whole system. Consumers receive coalesced snapshots on a bounded
// cadence instead of per-event, which is the backpressure valve that
// keeps many concurrent peers from turning into recompute storms.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crewmesh/crewmesh/geofence"
	"github.com/crewmesh/crewmesh/model"
	"github.com/crewmesh/crewmesh/presence"
	"github.com/crewmesh/crewmesh/store"
	"github.com/crewmesh/crewmesh/stream"
	"github.com/crewmesh/crewmesh/wire"
)

// Config tunes the engine. Zero fields take the defaults below.
type Config struct {
	// Zone is the operational geofence evaluated on every location signal.
	Zone geofence.Zone

	// FlushInterval is the batched snapshot cadence. Messages bypass it
	// and flush immediately.
	FlushInterval time.Duration

	// HistoryCap bounds per-person location history; oldest points are
	// evicted first.
	HistoryCap int

	// LivenessWindow is the maximum heartbeat silence before a peer is
	// considered offline.
	LivenessWindow time.Duration
}

const (
	defaultFlushInterval  = 750 * time.Millisecond
	defaultHistoryCap     = 15
	defaultLivenessWindow = 15 * time.Second
)

// Snapshot is the read-only view handed to consumers. All contained data
// is copied; consumers may hold it indefinitely.
type Snapshot struct {
	Persons   []*model.Person
	Messages  []model.Message
	WorkLog   []model.WorkLogEntry
	Equipment []model.EquipmentRecord
	TakenAt   time.Time
}

// Person returns the person with the given id, or nil.
func (s Snapshot) Person(id string) *model.Person {
	for _, p := range s.Persons {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// seedBatch carries roster reloads into the apply goroutine.
type seedBatch struct {
	persons   []model.Person
	equipment []model.EquipmentRecord
}

// Engine is the reconciliation engine. Construct with New, seed from the
// roster, then Start.
type Engine struct {
	cfg     Config
	mesh    store.Mesh
	logger  *slog.Logger
	tracker *presence.Tracker

	// Snapshot state. Owned by the apply goroutine once running.
	persons   map[string]*model.Person
	equipment map[string]*model.EquipmentRecord
	messages  *stream.Ledger[model.Message]
	worklog   *stream.Ledger[model.WorkLogEntry]
	dirty     bool

	applyCh  chan store.Update
	seedCh   chan seedBatch
	flushReq chan struct{}

	snapMu  sync.RWMutex
	current Snapshot

	subsMu sync.Mutex
	subs   []chan Snapshot

	// Lifecycle
	running   bool
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc
	done      chan struct{}

	applied atomic.Int64
	dropped atomic.Int64
	flushes atomic.Int64
}

// New creates an engine over the given mesh. Seed the roster before Start;
// the snapshot is re-initialized from the seed set at every process start.
func New(cfg Config, mesh store.Mesh, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.HistoryCap == 0 {
		cfg.HistoryCap = defaultHistoryCap
	}
	if cfg.LivenessWindow == 0 {
		cfg.LivenessWindow = defaultLivenessWindow
	}

	return &Engine{
		cfg:       cfg,
		mesh:      mesh,
		logger:    logger,
		tracker:   presence.NewTracker(cfg.LivenessWindow),
		persons:   make(map[string]*model.Person),
		equipment: make(map[string]*model.EquipmentRecord),
		messages: stream.NewLedger(
			func(m model.Message) string { return m.ID },
			func(m model.Message) time.Time { return m.CreatedAt },
		),
		worklog: stream.NewDescendingLedger(
			func(w model.WorkLogEntry) string { return w.ID },
			func(w model.WorkLogEntry) time.Time { return w.CreatedAt },
		),
		applyCh:  make(chan store.Update, 1024),
		seedCh:   make(chan seedBatch, 4),
		flushReq: make(chan struct{}, 1),
	}
}

// SeedPersons adds roster members. Unknown ids are inserted with status
// Unknown; existing entries keep their derived state. Persons are never
// removed — the engine never forgets a peer mid-event.
func (e *Engine) SeedPersons(persons []model.Person) {
	e.mu.RLock()
	running := e.running
	e.mu.RUnlock()
	if running {
		e.seedCh <- seedBatch{persons: persons}
		return
	}
	e.seedPersons(persons)
}

// SeedEquipment adds equipment records from the roster.
func (e *Engine) SeedEquipment(records []model.EquipmentRecord) {
	e.mu.RLock()
	running := e.running
	e.mu.RUnlock()
	if running {
		e.seedCh <- seedBatch{equipment: records}
		return
	}
	e.seedEquipment(records)
}

func (e *Engine) seedPersons(persons []model.Person) {
	for i := range persons {
		p := persons[i]
		if _, ok := e.persons[p.ID]; ok {
			continue
		}
		if p.Status == "" {
			p.Status = model.StatusUnknown
		}
		if p.Attendance == nil {
			p.Attendance = make(map[string]struct{})
		}
		e.persons[p.ID] = &p
		e.dirty = true
	}
}

func (e *Engine) seedEquipment(records []model.EquipmentRecord) {
	for i := range records {
		r := records[i]
		if _, ok := e.equipment[r.ID]; ok {
			continue
		}
		e.equipment[r.ID] = &r
		e.dirty = true
	}
}

// Apply enqueues one decoded-or-not update into the serialization point.
// The outbound publisher uses this for optimistic local echoes; the mesh
// watch pump uses it for everything else.
func (e *Engine) Apply(u store.Update) {
	e.mu.RLock()
	running := e.running
	e.mu.RUnlock()
	if !running {
		e.logger.Warn("apply before start, dropping", "key", u.Key)
		return
	}
	e.applyCh <- u
}

// Snapshot returns the most recently flushed view.
func (e *Engine) Snapshot() Snapshot {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.current
}

// Subscribe returns a channel receiving each flushed snapshot. Slow
// consumers miss intermediate snapshots rather than blocking the engine.
func (e *Engine) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 1)
	e.subsMu.Lock()
	e.subs = append(e.subs, ch)
	e.subsMu.Unlock()
	return ch
}

// Start begins consuming the mesh watch feed and flushing snapshots.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	if e.mesh == nil {
		e.mu.Unlock()
		return fmt.Errorf("mesh required")
	}

	subCtx, cancel := context.WithCancel(ctx)

	updates, err := e.mesh.Watch(subCtx)
	if err != nil {
		cancel()
		e.mu.Unlock()
		return fmt.Errorf("watch mesh: %w", err)
	}

	e.running = true
	e.startTime = time.Now()
	e.cancel = cancel
	e.done = make(chan struct{})
	e.mu.Unlock()

	go e.pump(subCtx, updates)
	go e.run(subCtx)

	e.logger.Info("engine started",
		"flush_interval", e.cfg.FlushInterval,
		"liveness_window", e.cfg.LivenessWindow,
		"history_cap", e.cfg.HistoryCap,
		"seeded_persons", len(e.persons))

	return nil
}

// pump forwards mesh deliveries into the apply channel. The mesh may call
// from multiple transport goroutines; this is where they converge.
func (e *Engine) pump(ctx context.Context, updates <-chan store.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			select {
			case e.applyCh <- u:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.cfg.FlushInterval)
	defer ticker.Stop()

	// Publish the seed set right away so consumers never observe an
	// empty view.
	e.flush()

	for {
		select {
		case <-ctx.Done():
			return
		case u := <-e.applyCh:
			e.applyUpdate(u)
		case batch := <-e.seedCh:
			e.seedPersons(batch.persons)
			e.seedEquipment(batch.equipment)
		case <-e.flushReq:
			e.flush()
		case <-ticker.C:
			if e.dirty {
				e.flush()
			}
		}
	}
}

// Stop cancels the apply loop and waits up to timeout for it to drain.
func (e *Engine) Stop(timeout time.Duration) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	cancel := e.cancel
	done := e.done
	e.running = false
	e.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(timeout):
		return fmt.Errorf("engine stop timed out after %v", timeout)
	}

	e.logger.Info("engine stopped",
		"events_applied", e.applied.Load(),
		"events_dropped", e.dropped.Load(),
		"flushes", e.flushes.Load())
	return nil
}

// requestFlush asks for an immediate flush without blocking the apply
// loop; used for latency-sensitive streams.
func (e *Engine) requestFlush() {
	select {
	case e.flushReq <- struct{}{}:
	default:
	}
}

func (e *Engine) applyUpdate(u store.Update) {
	key, err := wire.DecodeKey(u.Key)
	if err != nil {
		e.drop("malformed_key")
		e.logger.Warn("dropping malformed key", "key", u.Key, "error", err)
		return
	}

	switch key.Kind {
	case wire.KindAttendance:
		e.applyAttendance(key)
	case wire.KindLocation:
		e.applyLocation(key, u.Value)
	case wire.KindHeartbeat:
		e.applyHeartbeat(key, u.Value)
	case wire.KindMessage:
		e.applyMessage(key, u.Value)
	case wire.KindWorkLog:
		e.applyWorkLog(key, u.Value)
	case wire.KindEquipment:
		e.applyEquipment(key, u.Value)
	}
}

func (e *Engine) applyAttendance(key wire.Key) {
	p, ok := e.persons[key.UserID]
	if !ok {
		e.dropUnknown(key.UserID)
		return
	}
	// Set semantics: the key either inserts once or is a no-op. The store
	// may deliver the same mark any number of times.
	if p.MarkAttendance(key.Session) {
		e.markApplied("attendance")
		e.dirty = true
	}
}

func (e *Engine) applyLocation(key wire.Key, value []byte) {
	v, err := wire.DecodeValue(wire.KindLocation, value)
	if err != nil {
		e.drop("malformed_value")
		e.logger.Warn("dropping malformed location value", "key", key.UserID, "error", err)
		return
	}
	sig := v.(*wire.LocationSignal)

	p, ok := e.persons[key.UserID]
	if !ok {
		e.dropUnknown(key.UserID)
		return
	}

	point := model.LocationPoint{Lat: sig.Lat, Lng: sig.Lng, At: time.UnixMilli(sig.EventTime)}

	// Deliveries are unordered and duplicate-prone; only a strictly newer
	// fix may replace the current position or geofence verdict.
	if p.LastLocation != nil && !point.At.After(p.LastLocation.At) {
		e.drop("stale_write")
		return
	}

	p.LastLocation = &point
	p.InsideGeofence = e.cfg.Zone.Contains(geofence.Point{Lat: point.Lat, Lng: point.Lng})
	p.LocationHistory = append(p.LocationHistory, point)
	if n := len(p.LocationHistory); n > e.cfg.HistoryCap {
		p.LocationHistory = p.LocationHistory[n-e.cfg.HistoryCap:]
	}

	// Heartbeats are the liveness authority; a location signal only
	// refreshes last-seen as a secondary freshness signal.
	e.tracker.Observe(key.UserID, point.At)

	e.markApplied("location")
	e.dirty = true
}

func (e *Engine) applyHeartbeat(key wire.Key, value []byte) {
	v, err := wire.DecodeValue(wire.KindHeartbeat, value)
	if err != nil {
		e.drop("malformed_value")
		e.logger.Warn("dropping malformed heartbeat value", "key", key.UserID, "error", err)
		return
	}
	sig := v.(*wire.HeartbeatSignal)

	if _, ok := e.persons[key.UserID]; !ok {
		e.dropUnknown(key.UserID)
		return
	}

	e.tracker.Observe(key.UserID, time.UnixMilli(sig.SentAt))
	e.markApplied("heartbeat")
	e.dirty = true
}

func (e *Engine) applyMessage(key wire.Key, value []byte) {
	v, err := wire.DecodeValue(wire.KindMessage, value)
	if err != nil {
		e.drop("malformed_value")
		e.logger.Warn("dropping malformed message value", "key", key.ID, "error", err)
		return
	}
	p := v.(*wire.MessagePayload)

	if _, ok := e.persons[p.SenderID]; !ok {
		e.dropUnknown(p.SenderID)
		return
	}

	msg := model.Message{
		ID:         key.ID, // the key is the identity; the body restates it
		SenderID:   p.SenderID,
		ReceiverID: p.ReceiverID,
		Text:       p.Text,
		CreatedAt:  time.UnixMilli(p.CreatedAt),
	}
	if e.messages.Admit(msg) {
		e.markApplied("message")
		e.dirty = true
		e.requestFlush()
	}
}

func (e *Engine) applyWorkLog(key wire.Key, value []byte) {
	v, err := wire.DecodeValue(wire.KindWorkLog, value)
	if err != nil {
		e.drop("malformed_value")
		e.logger.Warn("dropping malformed work-log value", "key", key.ID, "error", err)
		return
	}
	p := v.(*wire.WorkLogPayload)

	if _, ok := e.persons[p.UserID]; !ok {
		e.dropUnknown(p.UserID)
		return
	}

	entry := model.WorkLogEntry{
		ID:        key.ID,
		UserID:    p.UserID,
		Task:      p.Task,
		CreatedAt: time.UnixMilli(p.CreatedAt),
	}
	if e.worklog.Admit(entry) {
		e.markApplied("worklog")
		e.dirty = true
	}
}

func (e *Engine) applyEquipment(key wire.Key, value []byte) {
	v, err := wire.DecodeValue(wire.KindEquipment, value)
	if err != nil {
		e.drop("malformed_value")
		e.logger.Warn("dropping malformed equipment value", "key", key.ID, "error", err)
		return
	}
	p := v.(*wire.EquipmentPayload)

	updated := time.UnixMilli(p.UpdatedAt)
	if existing, ok := e.equipment[key.ID]; ok && !updated.After(existing.LastUpdatedAt) {
		// Last-write-wins on the full record; stale replays lose.
		e.drop("stale_write")
		return
	}

	e.equipment[key.ID] = &model.EquipmentRecord{
		ID:            key.ID,
		Name:          p.Name,
		SerialNumber:  p.SerialNumber,
		AssignedToID:  p.AssignedToID,
		Condition:     p.Condition,
		LastUpdatedAt: updated,
	}
	e.markApplied("equipment")
	e.dirty = true
}

func (e *Engine) markApplied(kind string) {
	e.applied.Add(1)
	eventsApplied.WithLabelValues(kind).Inc()
}

func (e *Engine) drop(reason string) {
	e.dropped.Add(1)
	eventsDropped.WithLabelValues(reason).Inc()
}

func (e *Engine) dropUnknown(userID string) {
	e.drop("unknown_entity")
	// Persons come from the roster only; wire data never fabricates one.
	e.logger.Debug("dropping event for unknown user", "user_id", userID)
}

// flush derives presence, rebuilds the coalesced snapshot and publishes it.
func (e *Engine) flush() {
	now := time.Now()
	online := 0

	persons := make([]*model.Person, 0, len(e.persons))
	for _, p := range e.persons {
		if _, seen := e.tracker.LastSeen(p.ID); !seen {
			p.Status = model.StatusUnknown
		} else if e.tracker.Online(p.ID, now) {
			p.Status = model.StatusOnline
			online++
		} else {
			p.Status = model.StatusOffline
		}
		persons = append(persons, p.Clone())
	}
	sort.Slice(persons, func(i, j int) bool { return persons[i].ID < persons[j].ID })

	equipment := make([]model.EquipmentRecord, 0, len(e.equipment))
	for _, r := range e.equipment {
		equipment = append(equipment, *r)
	}
	sort.Slice(equipment, func(i, j int) bool { return equipment[i].ID < equipment[j].ID })

	snap := Snapshot{
		Persons:   persons,
		Messages:  e.messages.Snapshot(),
		WorkLog:   e.worklog.Snapshot(),
		Equipment: equipment,
		TakenAt:   now,
	}

	e.snapMu.Lock()
	e.current = snap
	e.snapMu.Unlock()

	e.subsMu.Lock()
	for _, ch := range e.subs {
		select {
		case ch <- snap:
		default:
			// Drop the stale one so the latest snapshot always lands.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
	e.subsMu.Unlock()

	e.dirty = false
	e.flushes.Add(1)
	flushesTotal.Inc()
	personsOnline.Set(float64(online))
}
