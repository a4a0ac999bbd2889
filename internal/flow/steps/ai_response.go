package steps

import (
	"context"
	"errors"
	"strings"
	"time"

	"leadflow_backend/internal/flow/graph"
	"leadflow_backend/platform/logger"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

const (
	defaultAIFallbackMessage = "Gracias por tu mensaje. Un agente te responderá en breve."
	defaultAITimeout         = 20 * time.Second
)

type aiResponseConfig struct {
	SystemPrompt    string        `mapstructure:"systemPrompt"`
	Prompt          string        `mapstructure:"prompt"`
	Temperature     *float32      `mapstructure:"temperature"`
	MaxTokens       int32         `mapstructure:"maxTokens"`
	Variable        string        `mapstructure:"variable"`
	FallbackMessage string        `mapstructure:"fallbackMessage"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// AIResponseHandler asks a language model to answer the lead. Without a
// model, or when the model fails, the fallback message is shown on the
// failure handle.
type AIResponseHandler struct {
	llm model.LLM
	log *logger.Logger
}

// NewAIResponseHandler creates the handler. llm may be nil.
func NewAIResponseHandler(llm model.LLM, log *logger.Logger) *AIResponseHandler {
	return &AIResponseHandler{llm: llm, log: log}
}

func (h *AIResponseHandler) Kind() graph.Kind      { return graph.KindAIResponse }
func (h *AIResponseHandler) Handles() []string     { return []string{HandleNext, HandleFailure} }
func (h *AIResponseHandler) DefaultHandle() string { return HandleFailure }

func (h *AIResponseHandler) ValidateConfig(config map[string]any) error {
	var cfg aiResponseConfig
	return decodeConfig(config, &cfg)
}

func (h *AIResponseHandler) Execute(ctx context.Context, in Input) Result {
	var cfg aiResponseConfig
	if err := decodeConfig(in.Step.Config, &cfg); err != nil {
		h.log.Warn("ai response config unreadable", "step_id", in.Step.ID, "error", err)
	}
	fallbackMsg := Result{
		Handle: HandleFailure,
		Output: Output{Message: render(orDefault(cfg.FallbackMessage, defaultAIFallbackMessage), in.Data)},
	}

	if h.llm == nil {
		h.log.Info("ai response step without model", "step_id", in.Step.ID)
		return fallbackMsg
	}

	question := in.UserInput.Value()
	if question == "" {
		question = render(cfg.Prompt, in.Data)
	}
	if strings.TrimSpace(question) == "" {
		h.log.Info("ai response step has nothing to answer", "step_id", in.Step.ID)
		return fallbackMsg
	}

	req := &model.LLMRequest{
		Contents: []*genai.Content{genai.NewContentFromText(question, genai.RoleUser)},
		Config:   &genai.GenerateContentConfig{Temperature: cfg.Temperature, MaxOutputTokens: cfg.MaxTokens},
	}
	if system := render(cfg.SystemPrompt, in.Data); system != "" {
		req.Config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultAITimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reply, err := h.generate(callCtx, req)
	if err != nil {
		h.log.CollaboratorError("llm", h.llm.Name(), err)
		return fallbackMsg
	}

	var updates map[string]any
	if cfg.Variable != "" {
		updates = map[string]any{cfg.Variable: reply}
	}
	return Result{Handle: HandleNext, Output: Output{Message: reply}, Context: updates}
}

func (h *AIResponseHandler) generate(ctx context.Context, req *model.LLMRequest) (string, error) {
	var b strings.Builder
	for resp, err := range h.llm.GenerateContent(ctx, req, false) {
		if err != nil {
			return "", err
		}
		if resp == nil || resp.Content == nil {
			continue
		}
		for _, part := range resp.Content.Parts {
			if part != nil {
				b.WriteString(part.Text)
			}
		}
	}
	reply := strings.TrimSpace(b.String())
	if reply == "" {
		return "", errors.New("empty model reply")
	}
	return reply, nil
}
