package steps

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"strings"
	"testing"
	"time"

	"leadflow_backend/internal/flow/graph"
	"leadflow_backend/internal/flow/ports"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

const (
	msgUnexpectedErr    = "unexpected error: %v"
	msgExpectedHandle   = "expected handle %q, got %q"
	slotMorning         = "10:00"
	selectedDateFixture = "2026-11-03"
)

// ---- fakes ----

type fakeStages struct {
	calls []string
	err   error
}

func (f *fakeStages) UpdateLeadStage(_ context.Context, _, _ uuid.UUID, stage, _ string) error {
	f.calls = append(f.calls, stage)
	return f.err
}

type fakeAppointments struct {
	id    uuid.UUID
	err   error
	calls []ports.AppointmentRequest
}

func (f *fakeAppointments) CreateAppointment(_ context.Context, req ports.AppointmentRequest) (uuid.UUID, error) {
	f.calls = append(f.calls, req)
	return f.id, f.err
}

type fakeAvailability struct {
	booked   map[string][]string
	err      error
	from, to time.Time
}

func (f *fakeAvailability) BookedSlots(_ context.Context, _ uuid.UUID, from, to time.Time) (map[string][]string, error) {
	f.from, f.to = from, to
	return f.booked, f.err
}

type fakeFollowUps struct {
	calls []ports.FollowUpRequest
	err   error
}

func (f *fakeFollowUps) ScheduleFollowUp(_ context.Context, req ports.FollowUpRequest) error {
	f.calls = append(f.calls, req)
	return f.err
}

type fakeVerifications struct {
	calls []ports.VerificationRequest
	err   error
}

func (f *fakeVerifications) IssueVerification(_ context.Context, req ports.VerificationRequest) error {
	f.calls = append(f.calls, req)
	return f.err
}

type fakeCatalog struct {
	items []ports.CatalogItem
	err   error
	last  ports.CatalogQuery
}

func (f *fakeCatalog) ListCatalog(_ context.Context, q ports.CatalogQuery) ([]ports.CatalogItem, error) {
	f.last = q
	return f.items, f.err
}

type fakeLLM struct {
	reply string
	err   error
	last  *model.LLMRequest
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) GenerateContent(_ context.Context, req *model.LLMRequest, _ bool) iter.Seq2[*model.LLMResponse, error] {
	f.last = req
	return func(yield func(*model.LLMResponse, error) bool) {
		if f.err != nil {
			yield(nil, f.err)
			return
		}
		yield(&model.LLMResponse{Content: genai.NewContentFromText(f.reply, genai.RoleModel)}, nil)
	}
}

func input(kind graph.Kind, config map[string]any, data map[string]any) Input {
	return Input{
		TenantID:   uuid.New(),
		LeadID:     uuid.New(),
		TemplateID: "intake",
		Step:       graph.Step{ID: "s1", Kind: kind, Config: config},
		Data:       data,
	}
}

// ---- registry ----

func TestRegistryRejectsDuplicateKinds(t *testing.T) {
	_, err := NewRegistry(NewMessageHandler(logger.Nop()), NewMessageHandler(logger.Nop()))
	if err == nil {
		t.Fatal("expected duplicate kind error")
	}
}

func TestRegistryReportsMissingKinds(t *testing.T) {
	r, err := NewRegistry(NewMessageHandler(logger.Nop()))
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if err := r.RequireComplete(); err == nil {
		t.Fatal("expected incomplete registry to fail")
	}
	if len(r.Missing()) != len(graph.Kinds())-1 {
		t.Fatalf("expected %d missing kinds, got %v", len(graph.Kinds())-1, r.Missing())
	}
}

func TestRegistryCheckValidatesTemplate(t *testing.T) {
	log := logger.Nop()
	r, err := NewRegistry(NewMessageHandler(logger.Nop()), NewLeadQualificationHandler(nil, log))
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}

	tpl, err := graph.Compile(graph.Definition{
		ID: "t",
		Steps: []graph.Step{
			{ID: "hi", Kind: graph.KindMessage},
			{ID: "score", Kind: graph.KindLeadQualification, Config: map[string]any{
				"questions":       []any{map[string]any{"id": "budget", "weight": 10}},
				"highThreshold":   70,
				"mediumThreshold": 40,
			}},
		},
		Transitions: []graph.Transition{
			{Source: "hi", Handle: "next", Target: "score"},
			{Source: "score", Handle: "hot", Target: "hi"},
		},
	})
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if err := r.Check(tpl); err == nil {
		t.Fatal("expected undeclared handle to fail the check")
	}
}

// ---- message & question ----

func TestMessageRendersVariables(t *testing.T) {
	res := NewMessageHandler(logger.Nop()).Execute(context.Background(), input(graph.KindMessage,
		map[string]any{"text": "Hola {{name}}, ¿buscas en {{zone}}?{{missing}}"},
		map[string]any{"name": "Ana", "zone": "Chamberí"},
	))
	if res.Handle != HandleNext || res.Output.Message != "Hola Ana, ¿buscas en Chamberí?" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestQuestionAwaitsThenStoresAnswer(t *testing.T) {
	h := NewQuestionHandler(validator.New(), logger.Nop())
	cfg := map[string]any{"prompt": "¿Cuál es tu email?", "variable": "email", "inputType": "email"}

	first := h.Execute(context.Background(), input(graph.KindQuestion, cfg, nil))
	if !first.Await || first.Output.Message != "¿Cuál es tu email?" {
		t.Fatalf("expected prompt and await, got %+v", first)
	}

	in := input(graph.KindQuestion, cfg, nil)
	in.UserInput = &UserInput{Text: "no-es-email"}
	invalid := h.Execute(context.Background(), in)
	if !invalid.Await || invalid.Context != nil {
		t.Fatalf("expected re-prompt without writes, got %+v", invalid)
	}

	in.UserInput = &UserInput{Text: "Ana@Example.com"}
	answered := h.Execute(context.Background(), in)
	if answered.Await || answered.Handle != HandleAnswered || answered.Context["email"] != "ana@example.com" {
		t.Fatalf("expected stored answer, got %+v", answered)
	}
}

func TestQuestionRecordsQualificationAnswer(t *testing.T) {
	h := NewQuestionHandler(validator.New(), logger.Nop())
	in := input(graph.KindQuestion,
		map[string]any{"questionId": "mortgage", "inputType": "choice", "choices": []any{
			map[string]any{"id": "yes", "label": "Sí"},
			map[string]any{"id": "no", "label": "No"},
		}},
		map[string]any{AnswersKey: map[string]any{"budget": "yes"}},
	)
	in.UserInput = &UserInput{Text: "sí"}

	res := h.Execute(context.Background(), in)
	answers, ok := res.Context[AnswersKey].(map[string]any)
	if !ok || answers["mortgage"] != "yes" || answers["budget"] != "yes" {
		t.Fatalf("expected merged answers, got %#v", res.Context)
	}
}

// ---- qualification ----

func TestScoreNormalizesAgainstAnsweredWeights(t *testing.T) {
	questions := []QualificationQuestion{{ID: "a", Weight: 10}, {ID: "b", Weight: 20}, {ID: "c", Weight: 30}}
	answers := map[string]any{"a": "yes", "b": "no", "c": true}

	q := Score(questions, answers, 70, 40)
	if q.Score != 67 || q.Bucket != HandleMedium {
		t.Fatalf("expected 67/medium, got %d/%s", q.Score, q.Bucket)
	}
	if q.LowConfidence {
		t.Fatal("all questions answered should not be low confidence")
	}
}

func TestScoreBuckets(t *testing.T) {
	questions := []QualificationQuestion{{ID: "a", Weight: 1}, {ID: "b", Weight: 1}, {ID: "c", Weight: 1}, {ID: "d", Weight: 1}}
	tests := []struct {
		name    string
		answers map[string]any
		score   int
		bucket  string
		lowConf bool
	}{
		{name: "nothing answered", answers: nil, score: 0, bucket: HandleLow, lowConf: true},
		{name: "all yes", answers: map[string]any{"a": "sí", "b": "Si", "c": 1, "d": "y"}, score: 100, bucket: HandleHigh},
		{name: "one of one answered", answers: map[string]any{"a": "yes"}, score: 100, bucket: HandleHigh, lowConf: true},
		{name: "blank counts as unanswered", answers: map[string]any{"a": " ", "b": "no", "c": "no"}, score: 0, bucket: HandleLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := Score(questions, tt.answers, 70, 40)
			if q.Score != tt.score || q.Bucket != tt.bucket || q.LowConfidence != tt.lowConf {
				t.Fatalf("got %+v", q)
			}
		})
	}
}

func TestQualificationUpdatesStageBestEffort(t *testing.T) {
	stages := &fakeStages{err: errors.New("lead store down")}
	h := NewLeadQualificationHandler(stages, logger.Nop())

	res := h.Execute(context.Background(), input(graph.KindLeadQualification,
		map[string]any{
			"questions":       []any{map[string]any{"id": "budget", "weight": 10}},
			"highThreshold":   70,
			"mediumThreshold": 40,
			"stages":          map[string]any{"high": "opportunity"},
		},
		map[string]any{AnswersKey: map[string]any{"budget": "yes"}},
	))

	if res.Handle != HandleHigh {
		t.Fatalf(msgExpectedHandle, HandleHigh, res.Handle)
	}
	if len(stages.calls) != 1 || stages.calls[0] != "opportunity" {
		t.Fatalf("expected stage update attempt, got %v", stages.calls)
	}
	if _, ok := res.Context["stage"]; ok {
		t.Fatal("failed stage update must not be recorded as applied")
	}
}

// ---- appointment ----

func bookingData(slots any) map[string]any {
	return map[string]any{
		"selectedDate":     selectedDateFixture,
		"selectedTimeSlot": slotMorning,
		"availableSlots":   slots,
		"name":             "Ana",
		"email":            "ana@example.com",
	}
}

func TestBookAppointmentMissingPreconditions(t *testing.T) {
	appts := &fakeAppointments{id: uuid.New()}
	h := NewBookAppointmentHandler(AppointmentDeps{Appointments: appts}, logger.Nop())

	tests := []struct {
		name string
		data map[string]any
	}{
		{name: "no date", data: map[string]any{"selectedTimeSlot": slotMorning, "availableSlots": []any{slotMorning}}},
		{name: "no slot", data: map[string]any{"selectedDate": selectedDateFixture, "availableSlots": []any{slotMorning}}},
		{name: "no available slots", data: map[string]any{"selectedDate": selectedDateFixture, "selectedTimeSlot": slotMorning}},
		{name: "slot gone", data: bookingData([]any{"12:00", "16:30"})},
		{name: "slot on another day", data: bookingData(map[string]any{"2026-11-04": []any{slotMorning}})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.Execute(context.Background(), input(graph.KindBookAppointment, nil, tt.data))
			if res.Handle != HandleFailure || res.Output.Message == "" {
				t.Fatalf("expected failure with message, got %+v", res)
			}
		})
	}
	if len(appts.calls) != 0 {
		t.Fatalf("appointment collaborator must not be called, got %d calls", len(appts.calls))
	}
}

func TestBookAppointmentCollaboratorFailureRoutesToFailure(t *testing.T) {
	appts := &fakeAppointments{err: errors.New("timeout")}
	h := NewBookAppointmentHandler(AppointmentDeps{Appointments: appts}, logger.Nop())

	res := h.Execute(context.Background(), input(graph.KindBookAppointment, nil, bookingData([]any{slotMorning})))
	if res.Handle != HandleFailure {
		t.Fatalf(msgExpectedHandle, HandleFailure, res.Handle)
	}
}

func TestBookAppointmentSideEffectsAreBestEffort(t *testing.T) {
	apptID := uuid.New()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC))
	appts := &fakeAppointments{id: apptID}
	stages := &fakeStages{err: errors.New("stage down")}
	followUps := &fakeFollowUps{err: errors.New("queue down")}
	verifications := &fakeVerifications{err: errors.New("smtp down")}

	h := NewBookAppointmentHandler(AppointmentDeps{
		Appointments:  appts,
		Stages:        stages,
		FollowUps:     followUps,
		Verifications: verifications,
		FollowUpDelay: 48 * time.Hour,
		Clock:         clock,
	}, logger.Nop())

	cfg := map[string]any{"stage": "confirmed", "followUp": true, "sendVerification": true}
	res := h.Execute(context.Background(), input(graph.KindBookAppointment, cfg,
		bookingData([]any{map[string]any{"date": selectedDateFixture, "time": slotMorning}})))

	if res.Handle != HandleSuccess {
		t.Fatalf(msgExpectedHandle, HandleSuccess, res.Handle)
	}
	if res.Context["appointmentId"] != apptID.String() {
		t.Fatalf("expected appointment id in context, got %#v", res.Context)
	}
	if len(stages.calls) != 1 || len(followUps.calls) != 1 || len(verifications.calls) != 1 {
		t.Fatalf("expected every side effect to be attempted once: %d/%d/%d",
			len(stages.calls), len(followUps.calls), len(verifications.calls))
	}
	if want := clock.Now().Add(48 * time.Hour); !followUps.calls[0].DueAt.Equal(want) {
		t.Fatalf("expected follow-up due %v, got %v", want, followUps.calls[0].DueAt)
	}
	if appts.calls[0].ContactEmail != "ana@example.com" || appts.calls[0].TimeSlot != slotMorning {
		t.Fatalf("unexpected appointment request: %+v", appts.calls[0])
	}
}

// ---- catalog ----

func TestCatalogUsesLiveItems(t *testing.T) {
	reader := &fakeCatalog{items: []ports.CatalogItem{{ID: "p1", Name: "Piso luminoso", PriceCents: 25000000, InStock: true, ImageURL: "https://img/p1.jpg"}}}
	h := NewProductCatalogHandler(reader, logger.Nop())

	res := h.Execute(context.Background(), input(graph.KindProductCatalog,
		map[string]any{"category": "flat", "sortBy": "price_asc", "maxPrice": "30000000"}, nil))

	if res.Context["catalog_source"] != CatalogSourceLive {
		t.Fatalf("expected live source, got %v", res.Context["catalog_source"])
	}
	if reader.last.Type != ports.CatalogProducts || reader.last.Category != "flat" || reader.last.MaxPrice == nil || *reader.last.MaxPrice != 30000000 {
		t.Fatalf("unexpected query: %+v", reader.last)
	}
	if len(res.Output.Choices) != 1 || res.Output.Choices[0].Label != "Piso luminoso · 250.000 €" {
		t.Fatalf("unexpected choices: %+v", res.Output.Choices)
	}
	if len(res.Output.MediaRefs) != 1 {
		t.Fatalf("expected media ref, got %v", res.Output.MediaRefs)
	}
}

func TestCatalogFallsBackToExamples(t *testing.T) {
	tests := []struct {
		name   string
		reader *fakeCatalog
	}{
		{name: "query error", reader: &fakeCatalog{err: errors.New("db down")}},
		{name: "empty result", reader: &fakeCatalog{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewServiceCatalogHandler(tt.reader, logger.Nop())
			res := h.Execute(context.Background(), input(graph.KindServiceCatalog, nil, nil))
			if res.Handle != HandleDefault || res.Context["catalog_source"] != CatalogSourceFallback {
				t.Fatalf("expected fallback catalog, got %+v", res)
			}
			if len(res.Output.Choices) == 0 {
				t.Fatal("fallback catalog must offer choices")
			}
		})
	}
}

// ---- ai response ----

func TestAIResponseAnswersAndStoresReply(t *testing.T) {
	llm := &fakeLLM{reply: "Tenemos tres pisos en esa zona."}
	h := NewAIResponseHandler(llm, logger.Nop())

	in := input(graph.KindAIResponse, map[string]any{"systemPrompt": "Asistente de {{agency}}", "variable": "ai_reply"},
		map[string]any{"agency": "Casa Sol"})
	in.UserInput = &UserInput{Text: "¿Qué tenéis en Gràcia?"}

	res := h.Execute(context.Background(), in)
	if res.Handle != HandleNext || res.Context["ai_reply"] != "Tenemos tres pisos en esa zona." {
		t.Fatalf("unexpected result: %+v", res)
	}
	if llm.last.Config.SystemInstruction.Parts[0].Text != "Asistente de Casa Sol" {
		t.Fatalf("system prompt not rendered: %+v", llm.last.Config.SystemInstruction)
	}
}

func TestAIResponseFallsBackOnError(t *testing.T) {
	h := NewAIResponseHandler(&fakeLLM{err: errors.New("rate limited")}, logger.Nop())
	in := input(graph.KindAIResponse, map[string]any{"fallbackMessage": "Te escribimos pronto"}, nil)
	in.UserInput = &UserInput{Text: "hola"}

	res := h.Execute(context.Background(), in)
	if res.Handle != HandleFailure || res.Output.Message != "Te escribimos pronto" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestUnreadableConfigIsLogged(t *testing.T) {
	bad := map[string]any{"nope": true}
	tests := []struct {
		name    string
		kind    graph.Kind
		field   string
		handler func(log *logger.Logger) Handler
	}{
		{name: "message", kind: graph.KindMessage, field: "text",
			handler: func(log *logger.Logger) Handler { return NewMessageHandler(log) }},
		{name: "question", kind: graph.KindQuestion, field: "prompt",
			handler: func(log *logger.Logger) Handler { return NewQuestionHandler(validator.New(), log) }},
		{name: "appointment", kind: graph.KindBookAppointment, field: "stage",
			handler: func(log *logger.Logger) Handler {
				return NewBookAppointmentHandler(AppointmentDeps{Appointments: &fakeAppointments{}}, log)
			}},
		{name: "catalog", kind: graph.KindProductCatalog, field: "intro",
			handler: func(log *logger.Logger) Handler { return NewProductCatalogHandler(nil, log) }},
		{name: "ai response", kind: graph.KindAIResponse, field: "prompt",
			handler: func(log *logger.Logger) Handler { return NewAIResponseHandler(nil, log) }},
		{name: "availability", kind: graph.KindCheckAvailability, field: "prompt",
			handler: func(log *logger.Logger) Handler { return NewCheckAvailabilityHandler(nil, nil, log) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := tt.handler(logger.NewWithWriter("production", &buf))
			h.Execute(context.Background(), input(tt.kind, map[string]any{tt.field: bad}, map[string]any{}))
			if !strings.Contains(buf.String(), "config unreadable") {
				t.Fatalf("expected a config warning, got %q", buf.String())
			}
		})
	}
}

// ---- availability ----

const availabilityNow = "2026-10-01T10:00:00Z" // a Thursday

func newAvailability(t *testing.T, reader ports.AvailabilityReader) *CheckAvailabilityHandler {
	t.Helper()
	now, err := time.Parse(time.RFC3339, availabilityNow)
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	return NewCheckAvailabilityHandler(reader, clockwork.NewFakeClockAt(now), logger.Nop())
}

var availabilityConfigFixture = map[string]any{"slots": []any{"10:00", "12:00"}, "days": 4}

func TestCheckAvailabilityOffersFreeSlots(t *testing.T) {
	reader := &fakeAvailability{booked: map[string][]string{"2026-10-02": {"10:00"}}}
	h := newAvailability(t, reader)

	res := h.Execute(context.Background(), input(graph.KindCheckAvailability, availabilityConfigFixture, map[string]any{}))
	if !res.Await || res.Handle != HandleSelected {
		t.Fatalf("expected to await a pick, got %+v", res)
	}
	want := []string{"2026-10-02 12:00", "2026-10-05 10:00", "2026-10-05 12:00"}
	if len(res.Output.Choices) != len(want) {
		t.Fatalf("expected choices %v, got %+v", want, res.Output.Choices)
	}
	for i, id := range want {
		if res.Output.Choices[i].ID != id {
			t.Fatalf("choice %d: expected %q, got %q", i, id, res.Output.Choices[i].ID)
		}
	}
	if res.Output.Choices[0].Label != "vie 02/10 · 12:00" {
		t.Fatalf("unexpected label %q", res.Output.Choices[0].Label)
	}
	if got := res.Context[AvailableSlotsKey].([]any); len(got) != len(want) {
		t.Fatalf("expected %d stored slots, got %v", len(want), got)
	}
	if reader.from.Format(dateLayout) != "2026-10-02" || reader.to.Format(dateLayout) != "2026-10-05" {
		t.Fatalf("unexpected booked range %s..%s", reader.from, reader.to)
	}
}

func TestCheckAvailabilityPickFeedsBooking(t *testing.T) {
	h := newAvailability(t, &fakeAvailability{})
	offered := h.Execute(context.Background(), input(graph.KindCheckAvailability, availabilityConfigFixture, map[string]any{}))

	data := map[string]any{"name": "Ana", AvailableSlotsKey: offered.Context[AvailableSlotsKey]}
	in := input(graph.KindCheckAvailability, availabilityConfigFixture, data)
	in.UserInput = &UserInput{Choice: "2026-10-05 12:00"}
	picked := h.Execute(context.Background(), in)
	if picked.Await || picked.Handle != HandleSelected {
		t.Fatalf("expected the pick to advance, got %+v", picked)
	}
	if picked.Context["selectedDate"] != "2026-10-05" || picked.Context["selectedTimeSlot"] != "12:00" {
		t.Fatalf("unexpected selection: %v", picked.Context)
	}

	for k, v := range picked.Context {
		data[k] = v
	}
	appts := &fakeAppointments{id: uuid.New()}
	booked := NewBookAppointmentHandler(AppointmentDeps{Appointments: appts}, logger.Nop()).
		Execute(context.Background(), input(graph.KindBookAppointment, nil, data))
	if booked.Handle != HandleSuccess {
		t.Fatalf(msgExpectedHandle, HandleSuccess, booked.Handle)
	}
}

func TestCheckAvailabilityRepromptsOnUnknownPick(t *testing.T) {
	h := newAvailability(t, &fakeAvailability{})
	offered := h.Execute(context.Background(), input(graph.KindCheckAvailability, availabilityConfigFixture, map[string]any{}))

	in := input(graph.KindCheckAvailability, availabilityConfigFixture,
		map[string]any{AvailableSlotsKey: offered.Context[AvailableSlotsKey]})
	in.UserInput = &UserInput{Text: "el sábado"}
	res := h.Execute(context.Background(), in)
	if !res.Await || res.Output.Message != defaultAvailabilityRetry || len(res.Output.Choices) != 4 {
		t.Fatalf("expected a re-prompt with the same choices, got %+v", res)
	}
	if _, ok := res.Context["selectedDate"]; ok {
		t.Fatal("an unknown pick must not select a slot")
	}
}

func TestCheckAvailabilityWithoutFreeSlots(t *testing.T) {
	full := []string{"10:00", "12:00"}
	h := newAvailability(t, &fakeAvailability{booked: map[string][]string{"2026-10-02": full, "2026-10-05": full}})

	res := h.Execute(context.Background(), input(graph.KindCheckAvailability, availabilityConfigFixture, map[string]any{}))
	if res.Await || res.Handle != HandleUnavailable || res.Output.Message == "" {
		t.Fatalf("expected unavailable with message, got %+v", res)
	}
}

func TestCheckAvailabilityOffersAllSlotsWhenBookingsUnreadable(t *testing.T) {
	h := newAvailability(t, &fakeAvailability{err: errors.New("db down")})

	res := h.Execute(context.Background(), input(graph.KindCheckAvailability, availabilityConfigFixture, map[string]any{}))
	if len(res.Output.Choices) != 4 {
		t.Fatalf("expected every configured slot, got %+v", res.Output.Choices)
	}
}

func TestCheckAvailabilityRejectsBadSlots(t *testing.T) {
	h := newAvailability(t, nil)
	if err := h.ValidateConfig(map[string]any{"slots": []any{"diez"}}); err == nil {
		t.Fatal("expected a malformed slot to be rejected")
	}
	if err := h.ValidateConfig(availabilityConfigFixture); err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
}
