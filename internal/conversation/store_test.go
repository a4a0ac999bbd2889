package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"leadflow_backend/platform/kv"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	msgUnexpectedErr = "unexpected error: %v"
	templateIntake   = "intake"
	templateBooking  = "booking"
)

func newTestStore() (*Store, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	return NewStore(kv.NewMemory(kv.NewHub(), "test"), clock, logger.Nop()), clock
}

func TestGetCreatesEmptyConversation(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()
	lead := uuid.New()

	state, err := store.Get(ctx, lead, templateIntake)
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if state.CurrentStepID != "" || len(state.VisitedSteps) != 0 || len(state.Messages) != 0 {
		t.Fatalf("expected empty conversation, got %+v", state)
	}
	if !state.Metadata.StartedAt.Equal(clock.Now()) {
		t.Fatalf("expected startedAt %v, got %v", clock.Now(), state.Metadata.StartedAt)
	}

	if _, found, err := store.Find(ctx, lead, templateIntake); err != nil || !found {
		t.Fatalf("expected conversation to be persisted, found=%v err=%v", found, err)
	}
}

func TestAppendMessageRoundTripKeepsOrderAndIDs(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	lead := uuid.New()

	msgs := []Message{
		{ID: "m1", Content: "Hola", Direction: DirectionBot},
		{ID: "m2", Content: "Quiero vender mi piso", Direction: DirectionUser},
		{ID: "m3", Content: "Perfecto", Direction: DirectionBot},
	}
	for _, m := range msgs {
		if _, err := store.AppendMessage(ctx, lead, templateIntake, m); err != nil {
			t.Fatalf(msgUnexpectedErr, err)
		}
	}
	// replayed append is ignored
	if _, err := store.AppendMessage(ctx, lead, templateIntake, msgs[1]); err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}

	state, err := store.Get(ctx, lead, templateIntake)
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if len(state.Messages) != len(msgs) {
		t.Fatalf("expected %d messages, got %d", len(msgs), len(state.Messages))
	}
	for i, m := range msgs {
		if state.Messages[i].ID != m.ID || state.Messages[i].Content != m.Content {
			t.Fatalf("message %d: expected %+v, got %+v", i, m, state.Messages[i])
		}
	}
}

func TestAppendMessageAssignsMissingID(t *testing.T) {
	store, _ := newTestStore()
	state, err := store.AppendMessage(context.Background(), uuid.New(), templateIntake, Message{Content: "hola"})
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if state.Messages[0].ID == "" || state.Messages[0].Timestamp.IsZero() {
		t.Fatalf("expected id and timestamp to be assigned, got %+v", state.Messages[0])
	}
}

func TestSetCurrentStepVisitsOnce(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	lead := uuid.New()

	for _, step := range []string{"welcome", "budget", "budget"} {
		if _, err := store.SetCurrentStep(ctx, lead, templateIntake, step); err != nil {
			t.Fatalf(msgUnexpectedErr, err)
		}
	}

	state, err := store.Get(ctx, lead, templateIntake)
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if state.CurrentStepID != "budget" {
		t.Fatalf("expected current step budget, got %q", state.CurrentStepID)
	}
	if len(state.VisitedSteps) != 2 {
		t.Fatalf("expected 2 visited steps, got %v", state.VisitedSteps)
	}
}

func TestVariablesAreMirroredAcrossTemplates(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	lead := uuid.New()

	if _, err := store.SetVariable(ctx, lead, templateIntake, "budget", "300000"); err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if _, err := store.SetVariable(ctx, lead, templateBooking, "selectedDate", "2026-03-10"); err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}

	vars, err := store.LeadVariables(ctx, lead)
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if vars["budget"] != "300000" || vars["selectedDate"] != "2026-03-10" {
		t.Fatalf("expected both variables in lead projection, got %v", vars)
	}

	booking, err := store.Get(ctx, lead, templateBooking)
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if _, ok := booking.CollectedData["budget"]; ok {
		t.Fatal("template conversation must only hold its own variables")
	}
}

func TestSetVariableRejectsBlankKey(t *testing.T) {
	store, _ := newTestStore()
	if _, err := store.SetVariable(context.Background(), uuid.New(), templateIntake, " ", 1); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestResetAndListByLead(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	lead := uuid.New()
	other := uuid.New()

	_, _ = store.Get(ctx, lead, templateIntake)
	_, _ = store.MarkCompleted(ctx, lead, templateBooking)
	_, _ = store.Get(ctx, other, templateIntake)

	list, err := store.ListByLead(ctx, lead)
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if len(list) != 2 || list[0].TemplateID != templateBooking || !list[0].Metadata.Completed {
		t.Fatalf("unexpected list: %+v", list)
	}

	if err := store.Reset(ctx, lead, templateBooking); err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if _, found, _ := store.Find(ctx, lead, templateBooking); found {
		t.Fatal("expected conversation to be deleted")
	}
	list, _ = store.ListByLead(ctx, lead)
	if len(list) != 1 {
		t.Fatalf("expected 1 conversation after reset, got %d", len(list))
	}
}

func TestSweepRemovesIdleConversations(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()
	stale := uuid.New()
	fresh := uuid.New()

	_, _ = store.SetVariable(ctx, stale, templateIntake, "name", "Ana")
	clock.Advance(20 * 24 * time.Hour)
	_, _ = store.Get(ctx, fresh, templateIntake)
	clock.Advance(11 * 24 * time.Hour)

	removed, err := store.Sweep(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, found, _ := store.Find(ctx, stale, templateIntake); found {
		t.Fatal("stale conversation must be purged")
	}
	if _, found, _ := store.Find(ctx, fresh, templateIntake); !found {
		t.Fatal("fresh conversation must survive")
	}
	vars, _ := store.LeadVariables(ctx, stale)
	if len(vars) != 0 {
		t.Fatalf("expected stale lead variables to be purged, got %v", vars)
	}
}

func TestGetDoesNotExtendRetention(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()
	lead := uuid.New()

	_, _ = store.Get(ctx, lead, templateIntake)
	clock.Advance(31 * 24 * time.Hour)
	_, _ = store.Get(ctx, lead, templateIntake)

	removed, err := store.Sweep(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if removed != 1 {
		t.Fatalf("expected read-only access not to refresh the conversation, removed=%d", removed)
	}
}

func TestSweeperRunsAfterDelayThenOnInterval(t *testing.T) {
	store, clock := newTestStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, _ = store.Get(ctx, uuid.New(), templateIntake)
	clock.Advance(2 * time.Hour)

	sweeper := NewSweeper(store, clock, logger.Nop(), time.Hour, 10*time.Minute, time.Minute)
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	clock.Advance(time.Minute)

	// the first pass runs after the delay; the ticker then waits
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	keys, _ := store.kv.Keys(ctx, conversationPrefix)
	if len(keys) != 0 {
		t.Fatalf("expected startup sweep to purge idle conversation, got %v", keys)
	}

	cancel()
	<-done
}

func (s *Store) heldLocks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

func TestKeyLocksAreReleased(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()
	lead := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Update(ctx, lead, templateIntake, func(st *State) error {
				count, _ := st.CollectedData["count"].(float64)
				st.SetVariable("count", count+1)
				return nil
			})
		}()
	}
	for i := 0; i < 10; i++ {
		_, _ = store.Get(ctx, uuid.New(), templateBooking)
	}
	wg.Wait()

	st, err := store.Get(ctx, lead, templateIntake)
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if got := st.CollectedData["count"]; got != float64(20) {
		t.Fatalf("expected 20 serialized updates, got %v", got)
	}
	if n := store.heldLocks(); n != 0 {
		t.Fatalf("expected no locks left after the calls returned, got %d", n)
	}

	_ = store.Reset(ctx, lead, templateIntake)
	clock.Advance(40 * 24 * time.Hour)
	if _, err := store.Sweep(ctx, 30*24*time.Hour); err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if n := store.heldLocks(); n != 0 {
		t.Fatalf("expected no locks left after reset and sweep, got %d", n)
	}
}
