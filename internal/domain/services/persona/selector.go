package persona

import (
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/domain/services/ai"
	"honeypot-lab/pkg/logger"
)

// Selector picks persona replies that fit the scam category, conversation
// phase and language register without repeating what was already said.
type Selector struct {
	logger *logger.Logger
	corpus *Corpus

	mu  sync.Mutex
	rng *rand.Rand

	maxAttempts int
	overlap     float64
	window      int
}

// Option configures a Selector
type Option func(*Selector)

// WithSeed makes candidate sampling deterministic
func WithSeed(seed uint64) Option {
	return func(s *Selector) {
		s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithMaxAttempts sets how many random candidates are tried before scanning the pool
func WithMaxAttempts(n int) Option {
	return func(s *Selector) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithOverlapThreshold sets the word-overlap ratio above which two replies count as duplicates
func WithOverlapThreshold(f float64) Option {
	return func(s *Selector) {
		if f > 0 && f <= 1 {
			s.overlap = f
		}
	}
}

// WithRecentWindow sets how many prior replies are checked for repeats
func WithRecentWindow(n int) Option {
	return func(s *Selector) {
		if n > 0 {
			s.window = n
		}
	}
}

// ReplyRequest carries everything Compose needs for one turn
type ReplyRequest struct {
	Category models.ScamCategory
	Turn     int
	Register models.Register
	RedFlags []ai.RedFlag
	Prior    []string
}

// NewSelector creates a new reply selector
func NewSelector(log *logger.Logger, corpus *Corpus, opts ...Option) *Selector {
	s := &Selector{
		logger:      log.WithComponent("persona"),
		corpus:      corpus,
		maxAttempts: 10,
		overlap:     0.75,
		window:      8,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		seed := uint64(time.Now().UnixNano())
		s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
	return s
}

// Select returns a base reply for the category, phase and register. Replies
// that repeat or nearly repeat a recent prior reply are avoided unless the
// whole pool is used up, in which case a repeat is returned.
func (s *Selector) Select(category models.ScamCategory, phase Phase, reg models.Register, prior []string) string {
	pool := s.corpus.Pool(category, phase, reg)
	reply, _ := s.pick(pool, s.recent(prior))

	s.logger.Debug().
		Str("category", string(category)).
		Str("phase", string(phase)).
		Str("register", string(reg)).
		Int("pool_size", len(pool)).
		Msg("reply selected")
	return reply
}

// Compose builds the full reply for a scam turn: an optional suspicion
// remark, the base reply, and a probing question chosen by turn.
func (s *Selector) Compose(req ReplyRequest) string {
	recent := s.recent(req.Prior)
	phase := PhaseForTurn(req.Turn)

	base := s.Select(req.Category, phase, req.Register, req.Prior)
	// the base reply counts as said when checking the augmentations
	seen := append(append([]string{}, recent...), base)

	var prefix string
	for _, flag := range req.RedFlags {
		if remark, fresh := s.pick(s.corpus.Remarks(flag.Code, req.Register), seen); fresh {
			prefix = remark
			break
		}
	}

	var probe string
	turn := req.Turn
	if turn < 1 {
		turn = 1
	}
	for i := 0; i < len(ProbeTargets); i++ {
		target := ProbeTargetForTurn(turn + i)
		if q, fresh := s.pick(s.corpus.Probes(target, req.Register), seen); fresh {
			probe = q
			break
		}
	}

	return join(prefix, base, probe)
}

// Confused builds the reply for a message that does not look like a scam
// yet: a bewildered opener and a question about who is writing.
func (s *Selector) Confused(reg models.Register, turn int, prior []string) string {
	recent := s.recent(prior)
	base, _ := s.pick(s.corpus.Pool(models.CategoryGeneral, PhaseEarly, reg), recent)
	question, _ := s.pick(s.corpus.ConfusedProbes(reg), append(append([]string{}, recent...), base))
	return join(base, question)
}

// pick draws from pool, preferring candidates that do not repeat recent.
// It reports false when every candidate was a repeat.
func (s *Selector) pick(pool []string, recent []string) (string, bool) {
	if len(pool) == 0 {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < s.maxAttempts; i++ {
		c := pool[s.rng.IntN(len(pool))]
		if !s.repeats(c, recent) {
			return c, true
		}
	}

	start := s.rng.IntN(len(pool))
	for i := range pool {
		c := pool[(start+i)%len(pool)]
		if !s.repeats(c, recent) {
			return c, true
		}
	}
	return pool[start], false
}

func (s *Selector) recent(prior []string) []string {
	if len(prior) > s.window {
		return prior[len(prior)-s.window:]
	}
	return prior
}

// repeats reports whether candidate was already said, verbatim, as part of a
// longer reply, or with nearly the same words
func (s *Selector) repeats(candidate string, recent []string) bool {
	words := wordSet(candidate)
	for _, r := range recent {
		if r == "" {
			continue
		}
		if r == candidate || strings.Contains(r, candidate) {
			return true
		}
		if Overlap(words, wordSet(r)) > s.overlap {
			return true
		}
	}
	return false
}

// Overlap is the Jaccard index of two word sets
func Overlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range ai.Tokenize(text) {
		set[w] = struct{}{}
	}
	return set
}

func join(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
