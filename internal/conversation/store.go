package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/kv"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	conversationPrefix = "conversation:"
	leadVarsPrefix     = "lead-vars:"
)

func conversationKey(leadID uuid.UUID, templateID string) string {
	return conversationPrefix + leadID.String() + ":" + templateID
}

func leadVarsKey(leadID uuid.UUID) string {
	return leadVarsPrefix + leadID.String()
}

// leadVariables is the lead-scoped projection of every variable collected
// for a lead under any template.
type leadVariables struct {
	Vars      map[string]any `json:"vars"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Store reads and writes conversations. Writes for one key are serialized
// within the process; across processes the last writer wins.
type Store struct {
	kv    kv.Store
	clock clockwork.Clock
	log   *logger.Logger

	mu    sync.Mutex
	locks map[string]*keyLock
}

// keyLock is dropped from the map once no caller holds or waits for it.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewStore(store kv.Store, clock clockwork.Clock, log *logger.Logger) *Store {
	return &Store{
		kv:    store,
		clock: clock,
		log:   log,
		locks: make(map[string]*keyLock),
	}
}

// Get returns the conversation, creating and persisting an empty one on
// first access.
// Reading does not count as an interaction.
func (s *Store) Get(ctx context.Context, leadID uuid.UUID, templateID string) (*State, error) {
	state, found, err := s.Find(ctx, leadID, templateID)
	if err != nil {
		return nil, err
	}
	if found {
		return state, nil
	}
	return s.Update(ctx, leadID, templateID, func(*State) error { return nil })
}

// Find returns the conversation without creating it.
func (s *Store) Find(ctx context.Context, leadID uuid.UUID, templateID string) (*State, bool, error) {
	state, found, err := s.load(ctx, conversationKey(leadID, templateID))
	if err != nil || !found {
		return nil, found, err
	}
	return state, true, nil
}

// Update loads (or creates) the conversation, applies fn and saves the
// result in one write. Variables set through State.SetVariable are mirrored
// into the lead projection. An error from fn aborts without saving.
func (s *Store) Update(ctx context.Context, leadID uuid.UUID, templateID string, fn func(*State) error) (*State, error) {
	key := conversationKey(leadID, templateID)
	unlock := s.lock(key)
	defer unlock()

	state, found, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if !found {
		state = newState(leadID, templateID, now)
	}

	state.Metadata.LastInteractionAt = now
	if err := fn(state); err != nil {
		return nil, err
	}

	if err := s.save(ctx, key, state); err != nil {
		return nil, err
	}

	if len(state.written) > 0 {
		if err := s.mirrorVariables(ctx, leadID, state.written, now); err != nil {
			return nil, err
		}
	}
	return state.Clone(), nil
}

// SetCurrentStep records stepID as current and visited.
func (s *Store) SetCurrentStep(ctx context.Context, leadID uuid.UUID, templateID, stepID string) (*State, error) {
	return s.Update(ctx, leadID, templateID, func(st *State) error {
		st.SetCurrentStep(stepID)
		return nil
	})
}

// AppendMessage adds msg to the transcript. A message whose id is already
// present is ignored; an empty id is generated.
func (s *Store) AppendMessage(ctx context.Context, leadID uuid.UUID, templateID string, msg Message) (*State, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.clock.Now()
	}
	return s.Update(ctx, leadID, templateID, func(st *State) error {
		st.AppendMessage(msg)
		return nil
	})
}

// SetVariable writes a collected variable and mirrors it to the lead.
func (s *Store) SetVariable(ctx context.Context, leadID uuid.UUID, templateID, key string, value any) (*State, error) {
	if strings.TrimSpace(key) == "" {
		return nil, apperr.Validation("variable name is required")
	}
	return s.Update(ctx, leadID, templateID, func(st *State) error {
		st.SetVariable(key, value)
		return nil
	})
}

// MarkCompleted flags the conversation as finished.
func (s *Store) MarkCompleted(ctx context.Context, leadID uuid.UUID, templateID string) (*State, error) {
	return s.Update(ctx, leadID, templateID, func(st *State) error {
		st.MarkCompleted()
		return nil
	})
}

// Reset hard-deletes the conversation. The lead projection is kept.
func (s *Store) Reset(ctx context.Context, leadID uuid.UUID, templateID string) error {
	key := conversationKey(leadID, templateID)
	unlock := s.lock(key)
	defer unlock()

	if err := s.kv.Delete(ctx, key); err != nil {
		return apperr.Unavailable("conversation store unavailable", err).WithOp("conversation.Reset")
	}
	return nil
}

// ListByLead returns every conversation of a lead ordered by template id.
func (s *Store) ListByLead(ctx context.Context, leadID uuid.UUID) ([]*State, error) {
	keys, err := s.kv.Keys(ctx, conversationPrefix+leadID.String()+":")
	if err != nil {
		return nil, apperr.Unavailable("conversation store unavailable", err).WithOp("conversation.ListByLead")
	}
	sort.Strings(keys)

	out := make([]*State, 0, len(keys))
	for _, key := range keys {
		state, found, err := s.load(ctx, key)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, state)
		}
	}
	return out, nil
}

// LeadVariables returns the variables collected for a lead across templates.
func (s *Store) LeadVariables(ctx context.Context, leadID uuid.UUID) (map[string]any, error) {
	raw, found, err := s.kv.Get(ctx, leadVarsKey(leadID))
	if err != nil {
		return nil, apperr.Unavailable("conversation store unavailable", err).WithOp("conversation.LeadVariables")
	}
	if !found {
		return map[string]any{}, nil
	}
	var vars leadVariables
	if err := json.Unmarshal(raw, &vars); err != nil {
		s.log.Warn("lead variables unreadable, ignoring", "lead_id", leadID.String(), "error", err)
		return map[string]any{}, nil
	}
	if vars.Vars == nil {
		vars.Vars = map[string]any{}
	}
	return vars.Vars, nil
}

// Sweep deletes conversations (and lead projections) idle since before
// now minus horizon. It returns the number of conversations removed.
func (s *Store) Sweep(ctx context.Context, horizon time.Duration) (int, error) {
	cutoff := s.clock.Now().Add(-horizon)

	keys, err := s.kv.Keys(ctx, conversationPrefix)
	if err != nil {
		return 0, apperr.Unavailable("conversation store unavailable", err).WithOp("conversation.Sweep")
	}

	removed := 0
	for _, key := range keys {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		state, found, err := s.load(ctx, key)
		if err != nil {
			s.log.Warn("conversation sweep could not read record", "key", key, "error", err)
			continue
		}
		if !found || !state.Metadata.LastInteractionAt.Before(cutoff) {
			continue
		}
		if err := s.deleteIfUnchanged(ctx, key, state.Metadata.LastInteractionAt); err != nil {
			s.log.Warn("conversation sweep delete failed", "key", key, "error", err)
			continue
		}
		removed++
	}

	s.sweepLeadVariables(ctx, cutoff)
	return removed, nil
}

func (s *Store) deleteIfUnchanged(ctx context.Context, key string, lastInteraction time.Time) error {
	unlock := s.lock(key)
	defer unlock()

	current, found, err := s.load(ctx, key)
	if err != nil || !found {
		return err
	}
	if !current.Metadata.LastInteractionAt.Equal(lastInteraction) {
		return nil
	}
	return s.kv.Delete(ctx, key)
}

func (s *Store) sweepLeadVariables(ctx context.Context, cutoff time.Time) {
	keys, err := s.kv.Keys(ctx, leadVarsPrefix)
	if err != nil {
		s.log.Warn("lead variable sweep failed", "error", err)
		return
	}
	for _, key := range keys {
		raw, found, err := s.kv.Get(ctx, key)
		if err != nil || !found {
			continue
		}
		var vars leadVariables
		if err := json.Unmarshal(raw, &vars); err != nil || vars.UpdatedAt.Before(cutoff) {
			if err := s.kv.Delete(ctx, key); err != nil {
				s.log.Warn("lead variable sweep delete failed", "key", key, "error", err)
			}
		}
	}
}

func (s *Store) mirrorVariables(ctx context.Context, leadID uuid.UUID, written map[string]any, now time.Time) error {
	key := leadVarsKey(leadID)
	unlock := s.lock(key)
	defer unlock()

	vars, err := s.LeadVariables(ctx, leadID)
	if err != nil {
		return err
	}
	for k, v := range written {
		vars[k] = v
	}
	raw, err := json.Marshal(leadVariables{Vars: vars, UpdatedAt: now})
	if err != nil {
		return fmt.Errorf("encode lead variables: %w", err)
	}
	if err := s.kv.Set(ctx, key, raw); err != nil {
		return apperr.Unavailable("conversation store unavailable", err).WithOp("conversation.mirrorVariables")
	}
	return nil
}

func (s *Store) load(ctx context.Context, key string) (*State, bool, error) {
	raw, found, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, false, apperr.Unavailable("conversation store unavailable", err).WithOp("conversation.load")
	}
	if !found {
		return nil, false, nil
	}
	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, false, apperr.Wrap(apperr.KindInternal, "conversation record is corrupt", err).WithOp("conversation.load")
	}
	if state.CollectedData == nil {
		state.CollectedData = map[string]any{}
	}
	return &state, true, nil
}

func (s *Store) save(ctx context.Context, key string, state *State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode conversation: %w", err)
	}
	if err := s.kv.Set(ctx, key, raw); err != nil {
		return apperr.Unavailable("conversation store unavailable", err).WithOp("conversation.save")
	}
	return nil
}

func (s *Store) lock(key string) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}
