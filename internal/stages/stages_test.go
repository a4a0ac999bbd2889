package stages

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"leadflow_backend/internal/events"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	msgUnexpectedErr = "unexpected error: %v"
	msgExpectedSrc   = "expected source %q, got %q"
)

type fakeLeadStore struct {
	mu      sync.Mutex
	leads   map[uuid.UUID]Lead
	listErr error
	lists   int
	updates map[uuid.UUID]string
}

func newFakeLeadStore(leads ...Lead) *fakeLeadStore {
	f := &fakeLeadStore{leads: map[uuid.UUID]Lead{}, updates: map[uuid.UUID]string{}}
	for _, l := range leads {
		f.leads[l.ID] = l
	}
	return f
}

func (f *fakeLeadStore) ListLeads(_ context.Context, q LeadQuery) ([]Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []Lead
	for _, l := range f.leads {
		if l.TenantID == q.TenantID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLeadStore) GetLead(_ context.Context, tenantID, leadID uuid.UUID) (Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.leads[leadID]
	if !ok || l.TenantID != tenantID {
		return Lead{}, apperr.NotFound("lead not found")
	}
	return l, nil
}

func (f *fakeLeadStore) UpdateLeadStage(_ context.Context, _, leadID uuid.UUID, stage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.leads[leadID]
	l.Stage = stage
	f.leads[leadID] = l
	f.updates[leadID] = stage
	return nil
}

func (f *fakeLeadStore) set(l Lead) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leads[l.ID] = l
}

type fakeCounter struct {
	store *fakeLeadStore
	err   error
}

// CountLeadsByRawStage mirrors the SQL aggregate: it groups raw labels and
// applies status, removed and deleted rules but no stage mapping.
func (f *fakeCounter) CountLeadsByRawStage(_ context.Context, q CountQuery) (map[string]int, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]int{}
	for _, l := range f.store.leads {
		if l.TenantID != q.TenantID {
			continue
		}
		if !q.IncludeClosedStatus && l.Status == StatusClosed {
			continue
		}
		if !q.IncludeRemovedFromFunnel && l.RemovedFromFunnel() {
			continue
		}
		if !q.IncludeDeleted && l.Deleted() {
			continue
		}
		out[l.Stage]++
	}
	return out, nil
}

type fixture struct {
	tenant  uuid.UUID
	store   *fakeLeadStore
	counter *fakeCounter
	clock   *clockwork.FakeClock
	bus     *events.InMemoryBus
	svc     *Service
	ids     map[string]uuid.UUID
}

func newFixture(writeBack bool) *fixture {
	tenant := uuid.New()
	other := uuid.New()
	ids := map[string]uuid.UUID{}
	mk := func(name, stage, status string, meta map[string]any) Lead {
		id := uuid.New()
		ids[name] = id
		return Lead{ID: id, TenantID: tenant, Name: name, Stage: stage, Status: status, Metadata: meta}
	}
	store := newFakeLeadStore(
		mk("ana", "Calificación", "active", nil),
		mk("luis", "prospecting", "active", nil),
		mk("marta", "Nuevo", "active", nil),
		mk("pablo", "Oportunidad", "active", nil),
		mk("sara", "confirmado", "active", nil),
		mk("closedStatus", "qualification", StatusClosed, nil),
		mk("closedStage", "Perdido", "active", nil),
		mk("removed", "qualification", "active", map[string]any{MetadataRemovedFromFunnel: true}),
		mk("deleted", "qualification", "active", map[string]any{MetadataDeleted: "true"}),
		mk("mystery", "Pendiente de llamar", "active", nil),
		Lead{ID: uuid.New(), TenantID: other, Name: "otra", Stage: "new", Status: "active"},
	)
	clock := clockwork.NewFakeClock()
	bus := events.NewInMemoryBus(logger.Nop())
	counter := &fakeCounter{store: store}
	svc := NewService(store, Options{Counter: counter, Bus: bus, Clock: clock, CacheTTL: time.Minute, WriteBack: writeBack}, logger.Nop())
	return &fixture{tenant: tenant, store: store, counter: counter, clock: clock, bus: bus, svc: svc, ids: ids}
}

func TestNormalizeIsIdempotentAndCaseInsensitive(t *testing.T) {
	cases := map[string]string{
		"Calificación":     StageQualification,
		"qualification":    StageQualification,
		"CALIFICACION":     StageQualification,
		"  Prospección  ":  StageProspecting,
		"Cerrado_Perdido":  StageClosed,
		"won":              StageConfirmed,
		"Nuevo":            StageNew,
		"Pendiente Llamar": "pendiente llamar",
		"":                 "",
	}
	for raw, want := range cases {
		got := Normalize(raw)
		if got != want {
			t.Errorf("Normalize(%q) = %q, want %q", raw, got, want)
		}
		if again := Normalize(got); again != got {
			t.Errorf("Normalize not idempotent for %q: %q -> %q", raw, got, again)
		}
	}
}

func TestResolveMapsUnknownToNew(t *testing.T) {
	if stage, known := Resolve("Pendiente de llamar"); known || stage != StageNew {
		t.Fatalf("expected unknown label to resolve to new, got %q known=%v", stage, known)
	}
	if stage, known := Resolve("Oportunidad"); !known || stage != StageOpportunity {
		t.Fatalf("expected opportunity, got %q known=%v", stage, known)
	}
}

func TestListLeadsDefaultCriteriaIncludesEachEligibleLeadOnce(t *testing.T) {
	f := newFixture(false)
	list, err := f.svc.ListLeads(context.Background(), DefaultCriteria(f.tenant))
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if list.Source != SourceDirectQuery {
		t.Fatalf(msgExpectedSrc, SourceDirectQuery, list.Source)
	}

	seen := map[uuid.UUID]int{}
	for _, l := range list.Leads {
		seen[l.ID]++
	}
	for _, name := range []string{"ana", "luis", "marta", "pablo", "sara", "mystery"} {
		if seen[f.ids[name]] != 1 {
			t.Errorf("expected %s exactly once, got %d", name, seen[f.ids[name]])
		}
	}
	for _, name := range []string{"closedStatus", "closedStage", "removed", "deleted"} {
		if seen[f.ids[name]] != 0 {
			t.Errorf("expected %s to be excluded", name)
		}
	}
	if len(list.Leads) != 6 {
		t.Fatalf("expected 6 leads, got %d", len(list.Leads))
	}

	for _, l := range list.Leads {
		if l.ID == f.ids["ana"] && (l.Stage != StageQualification || l.RawStage != "Calificación") {
			t.Fatalf("expected canonical stage with raw label kept, got %+v", l)
		}
	}
}

func TestListLeadsStageFilterFoldsNewIntoProspecting(t *testing.T) {
	f := newFixture(false)
	list, _ := f.svc.ListLeads(context.Background(), Criteria{TenantID: f.tenant, Stages: []Stage{"Prospección"}})

	got := map[uuid.UUID]bool{}
	for _, l := range list.Leads {
		got[l.ID] = true
	}
	if len(list.Leads) != 3 || !got[f.ids["luis"]] || !got[f.ids["marta"]] || !got[f.ids["mystery"]] {
		t.Fatalf("expected luis, marta and mystery in prospecting, got %+v", list.Leads)
	}
}

func TestListLeadsCachesPerCriteria(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	_, _ = f.svc.ListLeads(ctx, DefaultCriteria(f.tenant))
	second, _ := f.svc.ListLeads(ctx, DefaultCriteria(f.tenant))
	if second.Source != SourceCache || f.store.lists != 1 {
		t.Fatalf("expected cached answer, source=%q lists=%d", second.Source, f.store.lists)
	}

	_, _ = f.svc.ListLeads(ctx, Criteria{TenantID: f.tenant, IncludeClosedStatus: true})
	if f.store.lists != 2 {
		t.Fatalf("different criteria must query again, lists=%d", f.store.lists)
	}

	f.clock.Advance(61 * time.Second)
	third, _ := f.svc.ListLeads(ctx, DefaultCriteria(f.tenant))
	if third.Source != SourceDirectQuery || f.store.lists != 3 {
		t.Fatalf("expected expiry to force a query, source=%q lists=%d", third.Source, f.store.lists)
	}

	f.svc.Invalidate(f.tenant)
	_, _ = f.svc.ListLeads(ctx, DefaultCriteria(f.tenant))
	if f.store.lists != 4 {
		t.Fatalf("expected invalidation to force a query, lists=%d", f.store.lists)
	}
}

func TestListLeadsFallsBackToStaleThenEmpty(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	first, _ := f.svc.ListLeads(ctx, DefaultCriteria(f.tenant))
	f.store.listErr = errors.New("connection refused")
	f.clock.Advance(2 * time.Minute)

	stale, err := f.svc.ListLeads(ctx, DefaultCriteria(f.tenant))
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if stale.Source != SourceStaleCache || len(stale.Leads) != len(first.Leads) {
		t.Fatalf("expected stale list, got source=%q len=%d", stale.Source, len(stale.Leads))
	}

	empty, err := f.svc.ListLeads(ctx, Criteria{TenantID: f.tenant, IncludeDeleted: true})
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if empty.Source != SourceEmpty || len(empty.Leads) != 0 {
		t.Fatalf("expected empty fallback, got source=%q len=%d", empty.Source, len(empty.Leads))
	}
}

func TestCountsAggregateAndTallyAgree(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	aggregate, err := f.svc.CountsByStage(ctx, f.tenant, CountOptions{})
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if aggregate.Source != SourceAggregate {
		t.Fatalf(msgExpectedSrc, SourceAggregate, aggregate.Source)
	}

	f.counter.err = errors.New("function lead_stage_counts does not exist")
	f.svc.InvalidateAll()
	tally, err := f.svc.CountsByStage(ctx, f.tenant, CountOptions{})
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if tally.Source != SourceClientTally {
		t.Fatalf(msgExpectedSrc, SourceClientTally, tally.Source)
	}

	if aggregate.Total != tally.Total || aggregate.Total != 6 {
		t.Fatalf("expected both totals to be 6, aggregate=%d tally=%d", aggregate.Total, tally.Total)
	}
	for _, stage := range DisplayStages {
		if aggregate.Counts[stage] != tally.Counts[stage] {
			t.Errorf("stage %s: aggregate=%d tally=%d", stage, aggregate.Counts[stage], tally.Counts[stage])
		}
	}
	if tally.Counts[StageProspecting] != 3 || tally.Counts[StageQualification] != 1 {
		t.Fatalf("unexpected column counts: %v", tally.Counts)
	}
}

func TestCountsFallBackToStaleCache(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	first, _ := f.svc.CountsByStage(ctx, f.tenant, CountOptions{})
	f.counter.err = errors.New("timeout")
	f.store.listErr = errors.New("timeout")
	f.clock.Advance(2 * time.Minute)

	stale, err := f.svc.CountsByStage(ctx, f.tenant, CountOptions{})
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if stale.Source != SourceStaleCache || stale.Total != first.Total {
		t.Fatalf("expected stale counts, got %+v", stale)
	}
}

func TestValidateConsistency(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	report, err := f.svc.ValidateConsistency(ctx, f.tenant)
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if !report.IsConsistent || len(report.OnlyInFunnel) != 0 || len(report.OnlyInChat) != 0 {
		t.Fatalf("expected consistent report, got %+v", report)
	}
	if report.FunnelCount != 6 || report.ChatCount != 6 {
		t.Fatalf("expected 6 leads on both sides, got %+v", report)
	}
	if len(report.UnmappedStages) != 1 || report.UnmappedStages[0] != "Pendiente de llamar" {
		t.Fatalf("expected unmapped stage to be reported, got %v", report.UnmappedStages)
	}
}

func TestValidateConsistencyDetectsStaleFunnel(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	_, _ = f.svc.ListLeads(ctx, FunnelCriteria(f.tenant))

	// removed from the funnel behind the service's back
	lead, _ := f.store.GetLead(ctx, f.tenant, f.ids["pablo"])
	lead.Metadata = map[string]any{MetadataRemovedFromFunnel: true}
	f.store.set(lead)

	report, err := f.svc.ValidateConsistency(ctx, f.tenant)
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if report.IsConsistent || len(report.OnlyInFunnel) != 1 || report.OnlyInFunnel[0] != f.ids["pablo"] {
		t.Fatalf("expected pablo only in funnel, got %+v", report)
	}
}

func TestUpdateLeadStagePublishesAndInvalidates(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	var got []events.LeadStageChanged
	var mu sync.Mutex
	events.OnLeadStageChanged(f.bus, func(_ context.Context, e events.LeadStageChanged) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
		return nil
	})

	_, _ = f.svc.ListLeads(ctx, DefaultCriteria(f.tenant))
	if err := f.svc.UpdateLeadStage(ctx, f.tenant, f.ids["luis"], "Oportunidad", "test"); err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	f.bus.Wait()

	if f.store.updates[f.ids["luis"]] != StageOpportunity {
		t.Fatalf("expected canonical stage written, got %q", f.store.updates[f.ids["luis"]])
	}
	mu.Lock()
	if len(got) != 1 || got[0].Stage != StageOpportunity || got[0].PreviousStage != StageProspecting || got[0].Name != "luis" {
		t.Fatalf("unexpected events: %+v", got)
	}
	mu.Unlock()

	list, _ := f.svc.ListLeads(ctx, DefaultCriteria(f.tenant))
	if list.Source != SourceDirectQuery {
		t.Fatalf("expected cache to be invalidated, source=%q", list.Source)
	}
}

func TestUpdateLeadStageRejectsUnknownStage(t *testing.T) {
	f := newFixture(false)
	err := f.svc.UpdateLeadStage(context.Background(), f.tenant, f.ids["luis"], "whatever", "test")
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAnomalousStageWriteBack(t *testing.T) {
	f := newFixture(true)
	_, _ = f.svc.ListLeads(context.Background(), DefaultCriteria(f.tenant))
	if f.store.updates[f.ids["mystery"]] != StageNew {
		t.Fatalf("expected anomalous stage to be corrected to new, got %q", f.store.updates[f.ids["mystery"]])
	}
	if len(f.store.updates) != 1 {
		t.Fatalf("only anomalous stages are written back, got %v", f.store.updates)
	}
}

func TestMetadataFlagsReadLikePostgresLiterals(t *testing.T) {
	tests := []struct {
		value any
		want  bool
	}{
		{value: true, want: true},
		{value: false, want: false},
		{value: "TRUE", want: true},
		{value: " yes ", want: true},
		{value: "On", want: true},
		{value: "t", want: true},
		{value: "1", want: true},
		{value: float64(1), want: true},
		{value: float64(2), want: false},
		{value: "false", want: false},
		{value: "no", want: false},
		{value: "removed", want: false},
		{value: nil, want: false},
	}
	for _, tt := range tests {
		lead := Lead{Metadata: map[string]any{MetadataDeleted: tt.value, MetadataRemovedFromFunnel: tt.value}}
		if lead.Deleted() != tt.want || lead.RemovedFromFunnel() != tt.want {
			t.Fatalf("flag %#v: expected %v", tt.value, tt.want)
		}
	}
}
