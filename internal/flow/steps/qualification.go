package steps

import (
	"context"
	"fmt"
	"math"
	"strings"

	"leadflow_backend/internal/flow/graph"
	"leadflow_backend/internal/flow/ports"
	"leadflow_backend/platform/logger"
)

const (
	HandleHigh   = "high"
	HandleMedium = "medium"
	HandleLow    = "low"

	qualificationSource = "flow:lead_qualification"
)

// QualificationQuestion is a weighted yes/no question.
type QualificationQuestion struct {
	ID     string  `mapstructure:"id"`
	Weight float64 `mapstructure:"weight"`
}

type qualificationConfig struct {
	Questions       []QualificationQuestion `mapstructure:"questions"`
	HighThreshold   float64                 `mapstructure:"highThreshold"`
	MediumThreshold float64                 `mapstructure:"mediumThreshold"`
	// Stages maps a bucket to the stage the lead should move to.
	Stages   map[string]string `mapstructure:"stages"`
	Messages map[string]string `mapstructure:"messages"`
}

// Qualification is the scoring outcome stored in the conversation.
type Qualification struct {
	Score         int
	Bucket        string
	Answered      int
	Total         int
	LowConfidence bool
}

// LeadQualificationHandler scores collected answers against weighted
// questions and branches high/medium/low.
type LeadQualificationHandler struct {
	stages ports.StageUpdater
	log    *logger.Logger
}

// NewLeadQualificationHandler creates the handler. stages may be nil.
func NewLeadQualificationHandler(stages ports.StageUpdater, log *logger.Logger) *LeadQualificationHandler {
	return &LeadQualificationHandler{stages: stages, log: log}
}

func (h *LeadQualificationHandler) Kind() graph.Kind { return graph.KindLeadQualification }
func (h *LeadQualificationHandler) Handles() []string {
	return []string{HandleHigh, HandleMedium, HandleLow}
}
func (h *LeadQualificationHandler) DefaultHandle() string { return HandleLow }

func (h *LeadQualificationHandler) ValidateConfig(config map[string]any) error {
	var cfg qualificationConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return err
	}
	if len(cfg.Questions) == 0 {
		return fmt.Errorf("qualification needs at least one question")
	}
	if cfg.MediumThreshold > cfg.HighThreshold {
		return fmt.Errorf("mediumThreshold %v exceeds highThreshold %v", cfg.MediumThreshold, cfg.HighThreshold)
	}
	for bucket := range cfg.Stages {
		if bucket != HandleHigh && bucket != HandleMedium && bucket != HandleLow {
			return fmt.Errorf("stages: unknown bucket %q", bucket)
		}
	}
	return nil
}

func (h *LeadQualificationHandler) Execute(ctx context.Context, in Input) Result {
	var cfg qualificationConfig
	if err := decodeConfig(in.Step.Config, &cfg); err != nil {
		h.log.Warn("qualification config unreadable", "step_id", in.Step.ID, "error", err)
	}

	q := Score(cfg.Questions, mapValue(in.Data, AnswersKey), cfg.HighThreshold, cfg.MediumThreshold)
	if q.LowConfidence {
		h.log.Info("qualification score has low confidence",
			"lead_id", in.LeadID.String(),
			"step_id", in.Step.ID,
			"answered", q.Answered,
			"total", q.Total,
			"score", q.Score,
		)
	}

	updates := map[string]any{
		"qualification_score":          q.Score,
		"qualification_bucket":         q.Bucket,
		"qualification_low_confidence": q.LowConfidence,
	}

	if stage := strings.TrimSpace(cfg.Stages[q.Bucket]); stage != "" && h.stages != nil {
		if err := h.stages.UpdateLeadStage(ctx, in.TenantID, in.LeadID, stage, qualificationSource); err != nil {
			h.log.SideEffectFailed("lead_stage_update", err, "lead_id", in.LeadID.String(), "stage", stage)
		} else {
			updates["stage"] = stage
		}
	}

	return Result{
		Handle:  q.Bucket,
		Output:  Output{Message: render(cfg.Messages[q.Bucket], in.Data)},
		Context: updates,
	}
}

// Score normalizes the weight of affirmative answers against the weight of
// answered questions. With nothing answered the score is 0. Fewer than half
// the questions answered marks the result as low confidence; the bucket is
// still taken from the score.
func Score(questions []QualificationQuestion, answers map[string]any, high, medium float64) Qualification {
	var answeredWeight, yesWeight float64
	q := Qualification{Total: len(questions)}

	for _, question := range questions {
		raw, ok := answers[question.ID]
		if !ok || isBlank(raw) {
			continue
		}
		q.Answered++
		answeredWeight += question.Weight
		if isAffirmative(raw) {
			yesWeight += question.Weight
		}
	}

	if answeredWeight > 0 {
		q.Score = int(math.Round(yesWeight / answeredWeight * 100))
	}
	q.LowConfidence = q.Answered*2 < q.Total

	switch score := float64(q.Score); {
	case score >= high:
		q.Bucket = HandleHigh
	case score >= medium:
		q.Bucket = HandleMedium
	default:
		q.Bucket = HandleLow
	}
	return q
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func isAffirmative(v any) bool {
	switch a := v.(type) {
	case bool:
		return a
	case int:
		return a == 1
	case float64:
		return a == 1
	case string:
		switch strings.ToLower(strings.TrimSpace(a)) {
		case "yes", "y", "true", "1", "si", "sí", "s":
			return true
		}
	}
	return false
}
