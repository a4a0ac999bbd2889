package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"leadflow_backend/internal/conversation"
	"leadflow_backend/internal/flow"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const templateID = "visita"

type fakeExecutor struct {
	turns  []flow.TurnRequest
	result *flow.TurnResult
	err    error
	states map[string]*conversation.State
	resets []string
}

func (f *fakeExecutor) ExecuteTurn(_ context.Context, req flow.TurnRequest) (*flow.TurnResult, error) {
	f.turns = append(f.turns, req)
	return f.result, f.err
}

func (f *fakeExecutor) Conversation(_ context.Context, leadID uuid.UUID, id string) (*conversation.State, error) {
	st, ok := f.states[leadID.String()+":"+id]
	if !ok {
		return nil, apperr.NotFound("template not found")
	}
	return st, nil
}

func (f *fakeExecutor) Conversations(_ context.Context, leadID uuid.UUID) ([]*conversation.State, error) {
	var out []*conversation.State
	for _, st := range f.states {
		if st.LeadID == leadID {
			out = append(out, st)
		}
	}
	return out, nil
}

func (f *fakeExecutor) Reset(_ context.Context, leadID uuid.UUID, id string) error {
	f.resets = append(f.resets, leadID.String()+":"+id)
	return nil
}

func newTestRouter(exec Executor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	group := engine.Group("/leads/:leadId/conversations")
	group.Use(httpkit.TenantScope())
	New(exec, validator.New()).RegisterRoutes(group, nil)
	return engine
}

func doRequest(engine *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestExecuteTurnPassesInputAndIdempotencyKey(t *testing.T) {
	exec := &fakeExecutor{result: &flow.TurnResult{Message: "¿Qué día te viene bien?", StepID: "ask-date", CurrentStepID: "ask-date"}}
	engine := newTestRouter(exec)
	tenantID, leadID := uuid.New(), uuid.New()

	rec := doRequest(engine, http.MethodPost, "/leads/"+leadID.String()+"/conversations/"+templateID+"/turns",
		`{"choice":"tomorrow"}`,
		map[string]string{httpkit.HeaderTenantID: tenantID.String(), httpkit.HeaderIdempotencyKey: "turn-1"})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := exec.turns[0]
	if got.TenantID != tenantID || got.LeadID != leadID || got.TemplateID != templateID || got.RequestID != "turn-1" {
		t.Fatalf("unexpected turn request: %+v", got)
	}
	if got.Input == nil || got.Input.Choice != "tomorrow" {
		t.Fatalf("expected choice input, got %+v", got.Input)
	}

	var body flow.TurnResult
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.StepID != "ask-date" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestExecuteTurnWithoutBodyOpensConversation(t *testing.T) {
	exec := &fakeExecutor{result: &flow.TurnResult{StepID: "welcome"}}
	engine := newTestRouter(exec)

	rec := doRequest(engine, http.MethodPost, "/leads/"+uuid.NewString()+"/conversations/"+templateID+"/turns", "",
		map[string]string{httpkit.HeaderTenantID: uuid.NewString()})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if exec.turns[0].Input != nil {
		t.Fatalf("expected no input, got %+v", exec.turns[0].Input)
	}
}

func TestExecuteTurnErrors(t *testing.T) {
	tenant := map[string]string{httpkit.HeaderTenantID: uuid.NewString()}
	leadPath := "/leads/" + uuid.NewString() + "/conversations/" + templateID + "/turns"

	tests := []struct {
		name    string
		path    string
		body    string
		headers map[string]string
		err     error
		want    int
	}{
		{name: "bad lead id", path: "/leads/nope/conversations/" + templateID + "/turns", headers: tenant, want: http.StatusBadRequest},
		{name: "malformed body", path: leadPath, body: `{"text":`, headers: tenant, want: http.StatusBadRequest},
		{name: "text too long", path: leadPath, body: `{"text":"` + strings.Repeat("a", 4001) + `"}`, headers: tenant, want: http.StatusBadRequest},
		{
			name:    "key too long",
			path:    leadPath,
			headers: map[string]string{httpkit.HeaderTenantID: tenant[httpkit.HeaderTenantID], httpkit.HeaderIdempotencyKey: strings.Repeat("k", 129)},
			want:    http.StatusBadRequest,
		},
		{name: "concurrent turn", path: leadPath, headers: tenant, err: apperr.Conflict("a turn is already running"), want: http.StatusConflict},
		{name: "unknown template", path: leadPath, headers: tenant, err: apperr.NotFound("template not found"), want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecutor{result: &flow.TurnResult{}, err: tt.err}
			rec := doRequest(newTestRouter(exec), http.MethodPost, tt.path, tt.body, tt.headers)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestGetListAndResetConversation(t *testing.T) {
	leadID := uuid.New()
	state := &conversation.State{
		LeadID:        leadID,
		TemplateID:    templateID,
		CurrentStepID: "ask-date",
		VisitedSteps:  []string{"welcome", "ask-date"},
		CollectedData: map[string]any{"name": "Ana"},
		Messages: []conversation.Message{
			{ID: "visita:welcome:1", Content: "Hola", Direction: conversation.DirectionBot},
		},
	}
	exec := &fakeExecutor{states: map[string]*conversation.State{leadID.String() + ":" + templateID: state}}
	engine := newTestRouter(exec)
	headers := map[string]string{httpkit.HeaderTenantID: uuid.NewString()}
	base := "/leads/" + leadID.String() + "/conversations"

	rec := doRequest(engine, http.MethodGet, base+"/"+templateID, "", headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}
	var got struct {
		CurrentStepID string `json:"currentStepId"`
		Messages      []struct {
			Direction string `json:"direction"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.CurrentStepID != "ask-date" || len(got.Messages) != 1 || got.Messages[0].Direction != "bot" {
		t.Fatalf("unexpected conversation: %+v", got)
	}

	rec = doRequest(engine, http.MethodGet, base, "", headers)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Fatalf("list: unexpected response %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(engine, http.MethodDelete, base+"/"+templateID, "", headers)
	if rec.Code != http.StatusNoContent || len(exec.resets) != 1 {
		t.Fatalf("reset: expected 204 and one reset, got %d %v", rec.Code, exec.resets)
	}
}
