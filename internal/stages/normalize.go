// Package stages canonicalizes lead stage labels and serves the lead lists
// and stage counts that the funnel and the chat inbox render.
package stages

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Stage is a canonical pipeline stage.
type Stage = string

const (
	StageNew           Stage = "new"
	StageProspecting   Stage = "prospecting"
	StageQualification Stage = "qualification"
	StageOpportunity   Stage = "opportunity"
	StageConfirmed     Stage = "confirmed"
	StageClosed        Stage = "closed"
)

var canonicalStages = map[Stage]struct{}{
	StageNew:           {},
	StageProspecting:   {},
	StageQualification: {},
	StageOpportunity:   {},
	StageConfirmed:     {},
	StageClosed:        {},
}

// DisplayStages are the funnel columns, in order. New leads are shown in
// the prospecting column.
var DisplayStages = []Stage{StageProspecting, StageQualification, StageOpportunity, StageConfirmed}

// stageLabels maps every label ever written to a lead's stage, folded by
// foldLabel, to its canonical stage.
var stageLabels = map[string]Stage{
	"new":           StageNew,
	"nuevo":         StageNew,
	"nueva":         StageNew,
	"nuevo lead":    StageNew,
	"lead":          StageNew,
	"sin contactar": StageNew,
	"uncontacted":   StageNew,
	"triage":        StageNew,

	"prospecting": StageProspecting,
	"prospeccion": StageProspecting,
	"prospect":    StageProspecting,
	"prospecto":   StageProspecting,
	"contacted":   StageProspecting,
	"contactado":  StageProspecting,
	"en contacto": StageProspecting,
	"nurturing":   StageProspecting,

	"qualification": StageQualification,
	"qualified":     StageQualification,
	"qualifying":    StageQualification,
	"calificacion":  StageQualification,
	"cualificacion": StageQualification,
	"calificado":    StageQualification,
	"cualificado":   StageQualification,

	"opportunity": StageOpportunity,
	"oportunidad": StageOpportunity,
	"negotiation": StageOpportunity,
	"negociacion": StageOpportunity,
	"proposal":    StageOpportunity,
	"propuesta":   StageOpportunity,
	"visita":      StageOpportunity,
	"estimation":  StageOpportunity,

	"confirmed":      StageConfirmed,
	"confirmado":     StageConfirmed,
	"confirmada":     StageConfirmed,
	"won":            StageConfirmed,
	"ganado":         StageConfirmed,
	"cerrado ganado": StageConfirmed,
	"reservado":      StageConfirmed,
	"fulfillment":    StageConfirmed,

	"closed":          StageClosed,
	"cerrado":         StageClosed,
	"cerrada":         StageClosed,
	"lost":            StageClosed,
	"perdido":         StageClosed,
	"cerrado perdido": StageClosed,
	"descartado":      StageClosed,
	"archived":        StageClosed,
	"archivado":       StageClosed,
	"completed":       StageClosed,
}

// foldLabel lower-cases, strips accents and collapses separators so that
// "Calificación", "CALIFICACION" and "calificacion" share one key.
func foldLabel(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	// a chained transformer is stateful, so build one per call
	stripAccents := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(stripAccents, s); err == nil {
		s = folded
	}
	s = strings.Map(func(r rune) rune {
		if r == '_' || r == '-' {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// Normalize returns the canonical stage for raw. Labels that are not in
// the mapping come back lower-cased and trimmed. Normalize is idempotent.
func Normalize(raw string) string {
	if stage, ok := stageLabels[foldLabel(raw)]; ok {
		return stage
	}
	return strings.ToLower(strings.TrimSpace(raw))
}

// IsCanonical reports whether s is one of the canonical stages.
func IsCanonical(s string) bool {
	_, ok := canonicalStages[s]
	return ok
}

// Resolve normalizes raw and maps anything that is still not canonical to
// new. known is false for such labels.
func Resolve(raw string) (stage Stage, known bool) {
	n := Normalize(raw)
	if IsCanonical(n) {
		return n, true
	}
	return StageNew, false
}

// Column returns the funnel column a canonical stage is shown in, or ""
// for closed.
func Column(stage Stage) Stage {
	switch stage {
	case StageNew:
		return StageProspecting
	case StageClosed:
		return ""
	default:
		return stage
	}
}

// matchesStages reports whether a resolved stage is selected by wanted.
func matchesStages(stage Stage, wanted []Stage) bool {
	for _, w := range wanted {
		if w == stage || (w != "" && w == Column(stage)) {
			return true
		}
	}
	return false
}
