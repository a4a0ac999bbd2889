package steps

import (
	"context"

	"leadflow_backend/internal/flow/graph"
	"leadflow_backend/platform/logger"
)

const HandleNext = "next"

type messageConfig struct {
	Text    string   `mapstructure:"text"`
	Choices []Choice `mapstructure:"choices"`
	Media   []string `mapstructure:"media"`
	// Set optionally stores fixed variables, e.g. a campaign tag.
	Set map[string]any `mapstructure:"set"`
}

// MessageHandler shows a (templated) message and moves on.
type MessageHandler struct {
	log *logger.Logger
}

func NewMessageHandler(log *logger.Logger) *MessageHandler { return &MessageHandler{log: log} }

func (h *MessageHandler) Kind() graph.Kind      { return graph.KindMessage }
func (h *MessageHandler) Handles() []string     { return []string{HandleNext} }
func (h *MessageHandler) DefaultHandle() string { return HandleNext }

func (h *MessageHandler) ValidateConfig(config map[string]any) error {
	var cfg messageConfig
	return decodeConfig(config, &cfg)
}

func (h *MessageHandler) Execute(_ context.Context, in Input) Result {
	var cfg messageConfig
	if err := decodeConfig(in.Step.Config, &cfg); err != nil {
		h.log.Warn("message config unreadable", "step_id", in.Step.ID, "error", err)
	}

	return Result{
		Handle: HandleNext,
		Output: Output{
			Message:   render(cfg.Text, in.Data),
			Choices:   cfg.Choices,
			MediaRefs: cfg.Media,
		},
		Context: copyMap(cfg.Set),
	}
}
