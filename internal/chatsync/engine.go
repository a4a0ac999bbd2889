package chatsync

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"leadflow_backend/internal/events"
	"leadflow_backend/platform/kv"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/metrics"
	"leadflow_backend/platform/validator"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	keyPrefix = "chat-sync:lead:"

	defaultDrainInterval   = 2 * time.Second
	defaultRefreshThrottle = 5 * time.Second

	triggerDrain = "drain"
	triggerForce = "force"
)

// Outcome tells what happened to an accepted notification.
type Outcome string

const (
	OutcomeQueued       Outcome = "queued"
	OutcomeCoalesced    Outcome = "coalesced"
	OutcomeDeduplicated Outcome = "deduplicated"
)

// View is the live chat view model updates are applied to.
type View interface {
	// Apply renames and merges the update into the view, signalling a
	// re-render. It reports whether the lead was in the view.
	Apply(u Update) bool
	// Refresh reloads the tenant's whole list. Overlay carries the latest
	// known change per lead; one newer than the reloaded row wins over it.
	Refresh(ctx context.Context, tenantID uuid.UUID, overlay []Update) error
}

// Options configure an Engine. Store and Bus may be nil.
type Options struct {
	Store           kv.Store
	Bus             events.Bus
	Clock           clockwork.Clock
	Validator       *validator.Validator
	DrainInterval   time.Duration
	RefreshThrottle time.Duration
	// Origin identifies this instance on the shared store.
	Origin string
}

type pendingEntry struct {
	update Update
	// mirror is false for updates replayed from the shared store.
	mirror bool
}

// Engine batches, deduplicates and applies lead changes to the chat view.
type Engine struct {
	view     View
	store    kv.Store
	bus      events.Bus
	clock    clockwork.Clock
	validate *validator.Validator
	log      *logger.Logger

	drainInterval   time.Duration
	refreshThrottle time.Duration
	origin          string

	mu          sync.Mutex
	pending     map[uuid.UUID]pendingEntry
	cache       map[uuid.UUID]Update
	lastRefresh map[uuid.UUID]time.Time
	refreshDue  map[uuid.UUID]bool
	stop        []func()
}

func NewEngine(view View, opts Options, log *logger.Logger) *Engine {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Validator == nil {
		opts.Validator = validator.New()
	}
	if opts.Store == nil {
		opts.Store = kv.Noop{}
	}
	if opts.DrainInterval <= 0 {
		opts.DrainInterval = defaultDrainInterval
	}
	if opts.RefreshThrottle <= 0 {
		opts.RefreshThrottle = defaultRefreshThrottle
	}
	if opts.Origin == "" {
		opts.Origin = uuid.NewString()
	}
	return &Engine{
		view:            view,
		store:           opts.Store,
		bus:             opts.Bus,
		clock:           opts.Clock,
		validate:        opts.Validator,
		log:             log,
		drainInterval:   opts.DrainInterval,
		refreshThrottle: opts.RefreshThrottle,
		origin:          opts.Origin,
		pending:         make(map[uuid.UUID]pendingEntry),
		cache:           make(map[uuid.UUID]Update),
		lastRefresh:     make(map[uuid.UUID]time.Time),
		refreshDue:      make(map[uuid.UUID]bool),
	}
}

// Start subscribes to lead change events and to changes other instances
// write to the shared store.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.stop) > 0 {
		return
	}

	e.stop = append(e.stop, e.store.Watch(keyPrefix, e.replay))
	if e.bus == nil {
		return
	}
	e.stop = append(e.stop,
		events.OnLeadStageChanged(e.bus, func(ctx context.Context, ev events.LeadStageChanged) error {
			_, err := e.Sync(ctx, Notification{
				TenantID: ev.TenantID.String(),
				LeadID:   ev.LeadID.String(),
				Name:     e.knownName(ev.LeadID, ev.Name),
				Stage:    ev.Stage,
			})
			return err
		}),
		events.OnLeadNameChanged(e.bus, func(ctx context.Context, ev events.LeadNameChanged) error {
			// Already queued by the sync endpoint that published it.
			if ev.Source == events.SourceChatSync {
				return nil
			}
			_, err := e.Sync(ctx, Notification{
				TenantID: ev.TenantID.String(),
				LeadID:   ev.LeadID.String(),
				Name:     ev.Name,
				Email:    ev.Email,
				Phone:    ev.Phone,
			})
			return err
		}),
		events.OnForceResync(e.bus, func(ctx context.Context, ev events.ForceResync) error {
			return e.ForceResync(ctx, ev.TenantID)
		}),
	)
}

// Close removes every subscription made by Start.
func (e *Engine) Close() {
	e.mu.Lock()
	stop := e.stop
	e.stop = nil
	e.mu.Unlock()
	for _, fn := range stop {
		fn()
	}
}

// Run starts the engine and drains pending updates on every interval
// until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	e.Start()
	defer e.Close()

	ticker := e.clock.NewTicker(e.drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			e.Drain(ctx)
		}
	}
}

// Sync validates and queues a notification. A notification that repeats
// the pending one for the same lead is dropped; otherwise it replaces the
// pending entry. The shared cache is updated immediately.
func (e *Engine) Sync(_ context.Context, n Notification) (Outcome, error) {
	u, err := normalize(e.validate, n, e.clock.Now())
	if err != nil {
		metrics.RecordSyncUpdate("invalid")
		e.log.Info("sync notification rejected", "lead_id", n.LeadID, "error", err)
		return "", err
	}
	u.Origin = e.origin
	outcome := e.enqueue(u, true)
	metrics.RecordSyncUpdate(string(outcome))
	return outcome, nil
}

func (e *Engine) enqueue(u Update, mirror bool) Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	outcome := OutcomeQueued
	if prev, ok := e.pending[u.LeadID]; ok {
		if sameChange(prev.update, u) {
			return OutcomeDeduplicated
		}
		u = merge(prev.update, u)
		mirror = mirror || prev.mirror
		outcome = OutcomeCoalesced
	}
	e.pending[u.LeadID] = pendingEntry{update: u, mirror: mirror}
	e.cache[u.LeadID] = merge(e.cache[u.LeadID], u)
	return outcome
}

// sameChange reports whether next carries nothing that prev does not.
func sameChange(prev, next Update) bool {
	if prev.Name != next.Name || prev.TenantID != next.TenantID {
		return false
	}
	return (next.Stage == "" || next.Stage == prev.Stage) &&
		(next.Email == "" || next.Email == prev.Email) &&
		(next.Phone == "" || next.Phone == prev.Phone)
}

// Drain applies every pending update to the view, mirrors it to the shared
// store and refreshes the affected tenants, subject to the throttle. It
// returns the number of updates applied.
func (e *Engine) Drain(ctx context.Context) int {
	e.mu.Lock()
	batch := make([]pendingEntry, 0, len(e.pending))
	for _, entry := range e.pending {
		batch = append(batch, entry)
	}
	e.pending = make(map[uuid.UUID]pendingEntry)
	tenants := make(map[uuid.UUID]bool, len(e.refreshDue))
	for tenant := range e.refreshDue {
		tenants[tenant] = true
	}
	e.mu.Unlock()

	sort.Slice(batch, func(i, j int) bool {
		return batch[i].update.Timestamp.Before(batch[j].update.Timestamp)
	})

	for _, entry := range batch {
		u := entry.update
		if !e.view.Apply(u) {
			e.log.Debug("sync update for lead outside the chat view", "lead_id", u.LeadID.String())
		}
		metrics.RecordSyncUpdate("applied")
		if entry.mirror {
			e.mirror(ctx, u)
		}
		tenants[u.TenantID] = true
	}

	for tenant := range tenants {
		e.refresh(ctx, tenant, triggerDrain, false)
	}
	return len(batch)
}

// ForceResync re-applies every cached lead of the tenant and refreshes
// the view regardless of the throttle.
func (e *Engine) ForceResync(ctx context.Context, tenantID uuid.UUID) error {
	e.mu.Lock()
	cached := e.cachedFor(tenantID)
	e.mu.Unlock()

	for _, u := range cached {
		e.view.Apply(u)
	}
	e.log.Info("chat view force resync", "tenant_id", tenantID.String(), "leads", len(cached))
	return e.refresh(ctx, tenantID, triggerForce, true)
}

// Pending returns the updates waiting for the next drain.
func (e *Engine) Pending() []Update {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Update, 0, len(e.pending))
	for _, entry := range e.pending {
		out = append(out, entry.update)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LeadID.String() < out[j].LeadID.String() })
	return out
}

// Cached returns the latest known values for a lead.
func (e *Engine) Cached(leadID uuid.UUID) (Update, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	u, ok := e.cache[leadID]
	return u, ok
}

func (e *Engine) refresh(ctx context.Context, tenantID uuid.UUID, trigger string, force bool) error {
	now := e.clock.Now()
	e.mu.Lock()
	last, seen := e.lastRefresh[tenantID]
	if !force && seen && now.Sub(last) < e.refreshThrottle {
		e.refreshDue[tenantID] = true
		e.mu.Unlock()
		return nil
	}
	e.lastRefresh[tenantID] = now
	delete(e.refreshDue, tenantID)
	overlay := e.cachedFor(tenantID)
	e.mu.Unlock()

	metrics.RecordChatRefresh(trigger)
	if err := e.view.Refresh(ctx, tenantID, overlay); err != nil {
		e.log.CollaboratorError("chat_view", "refresh", err)
		return err
	}
	return nil
}

// cachedFor must be called with e.mu held.
func (e *Engine) cachedFor(tenantID uuid.UUID) []Update {
	out := make([]Update, 0)
	for _, u := range e.cache {
		if u.TenantID == tenantID {
			out = append(out, u)
		}
	}
	return out
}

func (e *Engine) mirror(ctx context.Context, u Update) {
	raw, err := json.Marshal(u)
	if err != nil {
		e.log.Warn("sync update could not be encoded", "lead_id", u.LeadID.String(), "error", err)
		return
	}
	if err := e.store.Set(ctx, keyPrefix+u.LeadID.String(), raw); err != nil {
		e.log.SideEffectFailed("sync_mirror", err, "lead_id", u.LeadID.String())
	}
}

// replay queues a change another instance mirrored to the shared store.
func (e *Engine) replay(change kv.Change) {
	if change.Deleted || change.Origin == e.origin {
		return
	}
	var u Update
	if err := json.Unmarshal(change.Value, &u); err != nil {
		e.log.Warn("sync replay payload unreadable", "key", change.Key, "error", err)
		return
	}
	if u.LeadID == uuid.Nil || u.Name == "" {
		return
	}
	outcome := e.enqueue(u, false)
	metrics.RecordSyncUpdate("replayed_" + string(outcome))
}

func (e *Engine) knownName(leadID uuid.UUID, name string) string {
	if name != "" {
		return name
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache[leadID].Name
}
