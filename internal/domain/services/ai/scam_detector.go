package ai

import (
	"math"
	"regexp"
	"strings"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/pkg/logger"
)

// ScamDetector is the additive keyword classifier run on every turn. It
// needs no network or model calls and is safe for concurrent use.
type ScamDetector struct {
	logger    *logger.Logger
	config    ScamDetectorConfig
	families  []compiledFamily
	financial []phrase
}

// ScamDetectorConfig contains configuration for the scam detector
type ScamDetectorConfig struct {
	// Threshold is the minimum score for a positive verdict
	Threshold int
	// HistoryBonus is added when prior turns mention at least two financial terms
	HistoryBonus int
	// Families overrides the built-in signal families
	Families []SignalFamily
}

// DefaultScamDetectorConfig returns the stock thresholds
func DefaultScamDetectorConfig() ScamDetectorConfig {
	return ScamDetectorConfig{
		Threshold:    3,
		HistoryBonus: 2,
	}
}

// Verdict is the classifier output for one message
type Verdict struct {
	IsScam   bool                `json:"is_scam"`
	Signals  []string            `json:"signals"`
	Families []string            `json:"families"`
	Category models.ScamCategory `json:"category"`
	Score    int                 `json:"score"`
}

type compiledFamily struct {
	name   string
	weight int
	terms  []phrase
}

var (
	urlSignalPattern   = regexp.MustCompile(`(?i)https?://\S+`)
	phoneSignalPattern = regexp.MustCompile(`\+?[0-9]{10,12}`)
	upiSignalPattern   = regexp.MustCompile(`[a-zA-Z0-9._-]+@[a-zA-Z]+`)
)

// NewScamDetector creates a new scam detector
func NewScamDetector(log *logger.Logger, config ScamDetectorConfig) *ScamDetector {
	if config.Threshold <= 0 {
		config.Threshold = 3
	}
	if config.HistoryBonus < 0 {
		config.HistoryBonus = 0
	}
	families := config.Families
	if len(families) == 0 {
		families = DefaultFamilies()
	}

	d := &ScamDetector{
		logger: log.WithComponent("classifier"),
		config: config,
	}
	for _, f := range families {
		cf := compiledFamily{name: f.Name, weight: f.Weight, terms: phrases(f.Terms...)}
		d.families = append(d.families, cf)
		if f.Name == FamilyFinancial {
			d.financial = cf.terms
		}
	}
	return d
}

// Classify scores text, plus optional prior turn texts, and returns a verdict.
// Empty text always yields a negative verdict with no signals.
func (d *ScamDetector) Classify(text string, history []string) Verdict {
	verdict := Verdict{Category: models.CategoryGeneral, Signals: []string{}, Families: []string{}}
	if strings.TrimSpace(text) == "" {
		return verdict
	}

	words := Tokenize(text)
	seen := make(map[string]struct{})
	for _, family := range d.families {
		hit := false
		for _, term := range family.terms {
			if _, dup := seen[term.text]; dup {
				continue
			}
			if term.inPlural(words) {
				seen[term.text] = struct{}{}
				verdict.Signals = append(verdict.Signals, term.text)
				verdict.Score += family.weight
				hit = true
			}
		}
		if hit {
			verdict.Families = append(verdict.Families, family.name)
		}
	}

	if urlSignalPattern.MatchString(text) {
		verdict.Signals = append(verdict.Signals, SignalURL)
		verdict.Score += 2
	}
	if phoneSignalPattern.MatchString(text) {
		verdict.Signals = append(verdict.Signals, SignalPhone)
		verdict.Score++
	}
	if upiSignalPattern.MatchString(text) {
		verdict.Signals = append(verdict.Signals, SignalUPI)
		verdict.Score += 2
	}

	if len(history) > 0 && d.config.HistoryBonus > 0 {
		if d.countFinancial(Tokenize(strings.Join(history, " "))) >= 2 {
			verdict.Score += d.config.HistoryBonus
		}
	}

	verdict.IsScam = verdict.Score >= d.config.Threshold
	verdict.Category = categorize(words)

	d.logger.Debug().
		Int("score", verdict.Score).
		Bool("is_scam", verdict.IsScam).
		Str("category", string(verdict.Category)).
		Int("signals", len(verdict.Signals)).
		Msg("message classified")

	return verdict
}

// Categorize returns the best-guess category for text without scoring it
func (d *ScamDetector) Categorize(text string) models.ScamCategory {
	return categorize(Tokenize(text))
}

// Confidence maps a classifier score onto a 0.50-0.99 confidence estimate
func (d *ScamDetector) Confidence(score int) float64 {
	return Confidence(score)
}

// Confidence maps a classifier score onto a 0.50-0.99 confidence estimate
func Confidence(score int) float64 {
	if score < 0 {
		score = 0
	}
	c := math.Min(0.50+0.03*float64(score), 0.99)
	return math.Round(c*100) / 100
}

func (d *ScamDetector) countFinancial(words []string) int {
	n := 0
	for _, term := range d.financial {
		if term.inPlural(words) {
			n++
		}
	}
	return n
}
