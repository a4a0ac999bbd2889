package steps

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"leadflow_backend/internal/flow/graph"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/phone"
	"leadflow_backend/platform/sanitize"
	"leadflow_backend/platform/validator"
)

const (
	HandleAnswered = "answered"

	// AnswersKey is the variable holding qualification answers by question id.
	AnswersKey = "answers"

	defaultRetryMessage = "No he entendido tu respuesta, ¿puedes repetirla?"
)

type questionConfig struct {
	Prompt       string   `mapstructure:"prompt"`
	Variable     string   `mapstructure:"variable"`
	QuestionID   string   `mapstructure:"questionId"`
	InputType    string   `mapstructure:"inputType"`
	Choices      []Choice `mapstructure:"choices"`
	RetryMessage string   `mapstructure:"retryMessage"`
	Ack          string   `mapstructure:"ack"`
}

// QuestionHandler prompts, waits for the lead's reply, validates it and
// stores it. Invalid replies re-prompt without advancing.
type QuestionHandler struct {
	validate *validator.Validator
	log      *logger.Logger
}

func NewQuestionHandler(v *validator.Validator, log *logger.Logger) *QuestionHandler {
	return &QuestionHandler{validate: v, log: log}
}

func (h *QuestionHandler) Kind() graph.Kind      { return graph.KindQuestion }
func (h *QuestionHandler) Handles() []string     { return []string{HandleAnswered} }
func (h *QuestionHandler) DefaultHandle() string { return HandleAnswered }

func (h *QuestionHandler) ValidateConfig(config map[string]any) error {
	var cfg questionConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return err
	}
	if cfg.Variable == "" && cfg.QuestionID == "" {
		return fmt.Errorf("question needs a variable or a questionId")
	}
	switch cfg.InputType {
	case "", "text", "email", "phone", "number", "choice":
	default:
		return fmt.Errorf("unknown inputType %q", cfg.InputType)
	}
	if cfg.InputType == "choice" && len(cfg.Choices) == 0 {
		return fmt.Errorf("choice question without choices")
	}
	return nil
}

func (h *QuestionHandler) Execute(_ context.Context, in Input) Result {
	var cfg questionConfig
	if err := decodeConfig(in.Step.Config, &cfg); err != nil {
		h.log.Warn("question config unreadable", "step_id", in.Step.ID, "error", err)
	}

	prompt := Output{Message: render(cfg.Prompt, in.Data), Choices: cfg.Choices}
	raw := in.UserInput.Value()
	if raw == "" {
		return Result{Handle: HandleAnswered, Await: true, Output: prompt}
	}

	value, ok := h.parseAnswer(cfg, raw)
	if !ok {
		retry := cfg.RetryMessage
		if retry == "" {
			retry = defaultRetryMessage
		}
		return Result{
			Handle: HandleAnswered,
			Await:  true,
			Output: Output{Message: render(retry, in.Data), Choices: cfg.Choices},
		}
	}

	updates := map[string]any{}
	if cfg.Variable != "" {
		updates[cfg.Variable] = value
	}
	if cfg.QuestionID != "" {
		answers := copyMap(mapValue(in.Data, AnswersKey))
		answers[cfg.QuestionID] = value
		updates[AnswersKey] = answers
	}

	data := copyMap(in.Data)
	for k, v := range updates {
		data[k] = v
	}
	return Result{
		Handle:  HandleAnswered,
		Output:  Output{Message: render(cfg.Ack, data)},
		Context: updates,
	}
}

func (h *QuestionHandler) parseAnswer(cfg questionConfig, raw string) (any, bool) {
	switch cfg.InputType {
	case "email":
		if err := h.validate.Var(raw, "required,email"); err != nil {
			return nil, false
		}
		return strings.ToLower(raw), true
	case "phone":
		if !phone.IsValid(raw) {
			return nil, false
		}
		return phone.NormalizeE164(raw), true
	case "number":
		n, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
		if err != nil {
			return nil, false
		}
		return n, true
	case "choice":
		for _, c := range cfg.Choices {
			if strings.EqualFold(c.ID, raw) || strings.EqualFold(c.Label, raw) {
				return c.ID, true
			}
		}
		return nil, false
	default:
		text := sanitize.Message(raw)
		return text, text != ""
	}
}
