package services

import (
	"fmt"
	"strings"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/domain/services/ai"
)

// NotesNoScam is reported while a session has not been flagged
const NotesNoScam = "No scam detected yet | Monitoring conversation..."

const maxNoteKeywords = 8

var indicatorLabels = map[models.IndicatorKind]string{
	models.IndicatorPhone:  "phone numbers",
	models.IndicatorBank:   "bank accounts",
	models.IndicatorUPI:    "UPI IDs",
	models.IndicatorLink:   "links",
	models.IndicatorEmail:  "emails",
	models.IndicatorCaseID: "case IDs",
	models.IndicatorPolicy: "policy numbers",
	models.IndicatorOrder:  "order numbers",
	models.IndicatorIFSC:   "IFSC codes",
}

// presenceSignals are detector signals that are not vocabulary
var presenceSignals = map[string]struct{}{
	ai.SignalURL:   {},
	ai.SignalPhone: {},
	ai.SignalUPI:   {},
}

// AgentNotes summarizes a session for the caller and the final report
func AgentNotes(sess models.Session) string {
	if !sess.ScamDetected {
		return NotesNoScam
	}

	parts := []string{
		"Scam Type: " + sess.Category.String(),
		fmt.Sprintf("Confidence: %.2f", sess.Confidence),
	}
	if tactics := sess.Tactics.Sorted(); len(tactics) > 0 {
		parts = append(parts, "Tactics: "+strings.Join(tactics, ", "))
	}
	if intel := intelligenceSummary(sess.Intelligence); intel != "" {
		parts = append(parts, "Intelligence: "+intel)
	}
	if flags := sess.RedFlags.Sorted(); len(flags) > 0 {
		descs := make([]string, 0, len(flags))
		for _, code := range flags {
			if flag, ok := ai.LookupRedFlag(code); ok {
				descs = append(descs, flag.Description)
			} else {
				descs = append(descs, code)
			}
		}
		parts = append(parts, "Red Flags: "+strings.Join(descs, "; "))
	}
	if keywords := noteKeywords(sess.Signals); len(keywords) > 0 {
		parts = append(parts, "Keywords: "+strings.Join(keywords, ", "))
	}
	return strings.Join(parts, " | ")
}

func intelligenceSummary(set models.IndicatorSet) string {
	var parts []string
	for _, kind := range models.IndicatorKinds {
		if n := set.Field(kind).Len(); n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, indicatorLabels[kind]))
		}
	}
	return strings.Join(parts, ", ")
}

func noteKeywords(signals models.StringSet) []string {
	var out []string
	for _, s := range signals.Sorted() {
		if _, skip := presenceSignals[s]; skip {
			continue
		}
		out = append(out, s)
		if len(out) == maxNoteKeywords {
			break
		}
	}
	return out
}

// turnNote is the line appended to a session's notes log for one turn
func turnNote(turn int, verdict ai.Verdict, found models.IndicatorSet) string {
	note := fmt.Sprintf("turn %d: score=%d", turn, verdict.Score)
	if verdict.IsScam {
		note += " category=" + verdict.Category.String()
	}
	if intel := intelligenceSummary(found); intel != "" {
		note += " found=" + intel
	}
	return note
}
