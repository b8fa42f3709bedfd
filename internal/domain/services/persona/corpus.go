package persona

import (
	"embed"
	"fmt"
	"io/fs"
	"path"

	"gopkg.in/yaml.v3"

	"honeypot-lab/internal/domain/models"
)

//go:embed corpus/*.yaml
var embeddedCorpus embed.FS

// Phase is a coarse conversation-progress bucket
type Phase string

const (
	PhaseEarly  Phase = "early"  // confused, scared
	PhaseMiddle Phase = "middle" // cooperative, asking for details
	PhaseLate   Phase = "late"   // stalling, squeezing the last details
)

// PhaseForTurn maps a 1-based turn number onto a phase
func PhaseForTurn(turn int) Phase {
	switch {
	case turn <= 2:
		return PhaseEarly
	case turn <= 6:
		return PhaseMiddle
	default:
		return PhaseLate
	}
}

// ProbeTarget is the kind of intelligence a probing question asks for
type ProbeTarget string

const (
	ProbeEmail    ProbeTarget = "email"
	ProbePhone    ProbeTarget = "phone"
	ProbeUPI      ProbeTarget = "upi"
	ProbeBank     ProbeTarget = "bank"
	ProbeIdentity ProbeTarget = "identity"
	ProbeLocation ProbeTarget = "location"
)

// ProbeTargets is the round-robin order of probing questions
var ProbeTargets = []ProbeTarget{
	ProbeEmail, ProbePhone, ProbeUPI, ProbeBank, ProbeIdentity, ProbeLocation,
}

// ProbeTargetForTurn returns the target asked about on a 1-based turn
func ProbeTargetForTurn(turn int) ProbeTarget {
	if turn < 1 {
		turn = 1
	}
	return ProbeTargets[(turn-1)%len(ProbeTargets)]
}

const generalPool = "general"

// poolKeys maps scam categories onto corpus pool names
var poolKeys = map[models.ScamCategory]string{
	models.CategoryOTPFraud:       "otp_fraud",
	models.CategoryLegalThreat:    "legal_threat",
	models.CategoryInvestment:     "investment_scam",
	models.CategoryLottery:        "lottery_scam",
	models.CategoryJob:            "job_scam",
	models.CategoryInsurance:      "insurance_scam",
	models.CategoryDelivery:       "delivery_scam",
	models.CategoryTechSupport:    "tech_support",
	models.CategoryLoan:           "loan_scam",
	models.CategoryRomance:        "romance_scam",
	models.CategoryPaymentRequest: "payment_request",
	models.CategoryKYC:            "kyc_fraud",
	models.CategoryPhishing:       "phishing",
	models.CategoryAccountThreat:  "account_threat",
	models.CategoryGeneral:        generalPool,
}

// PoolKey returns the corpus pool name for a category
func PoolKey(category models.ScamCategory) string {
	if key, ok := poolKeys[category]; ok {
		return key
	}
	return generalPool
}

// Corpus holds every canned persona text, indexed by register
type Corpus struct {
	pools    map[models.Register]map[string]map[Phase][]string
	remarks  map[models.Register]map[string][]string
	probes   map[models.Register]map[ProbeTarget][]string
	confused map[models.Register][]string
}

// corpusFile is the YAML layout; a file may carry any subset of sections
type corpusFile struct {
	Register   models.Register                              `yaml:"register"`
	Categories map[string]map[Phase][]string                `yaml:"categories"`
	Remarks    map[models.Register]map[string][]string      `yaml:"remarks"`
	Probes     map[models.Register]map[ProbeTarget][]string `yaml:"probes"`
	Confused   map[models.Register][]string                 `yaml:"confused"`
}

// DefaultCorpus loads the corpus compiled into the binary
func DefaultCorpus() (*Corpus, error) {
	return LoadCorpus(embeddedCorpus, "corpus")
}

// LoadCorpus reads every *.yaml file in dir and merges them
func LoadCorpus(fsys fs.FS, dir string) (*Corpus, error) {
	files, err := fs.Glob(fsys, path.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list corpus files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no corpus files in %s", dir)
	}

	c := &Corpus{
		pools:    make(map[models.Register]map[string]map[Phase][]string),
		remarks:  make(map[models.Register]map[string][]string),
		probes:   make(map[models.Register]map[ProbeTarget][]string),
		confused: make(map[models.Register][]string),
	}

	for _, name := range files {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		var f corpusFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		if len(f.Categories) > 0 {
			if f.Register == "" {
				return nil, fmt.Errorf("%s: categories without a register", name)
			}
			c.addPools(f.Register, f.Categories)
		}
		for reg, byFlag := range f.Remarks {
			if c.remarks[reg] == nil {
				c.remarks[reg] = make(map[string][]string)
			}
			for flag, texts := range byFlag {
				c.remarks[reg][flag] = append(c.remarks[reg][flag], texts...)
			}
		}
		for reg, byTarget := range f.Probes {
			if c.probes[reg] == nil {
				c.probes[reg] = make(map[ProbeTarget][]string)
			}
			for target, texts := range byTarget {
				c.probes[reg][target] = append(c.probes[reg][target], texts...)
			}
		}
		for reg, texts := range f.Confused {
			c.confused[reg] = append(c.confused[reg], texts...)
		}
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Corpus) addPools(reg models.Register, categories map[string]map[Phase][]string) {
	if c.pools[reg] == nil {
		c.pools[reg] = make(map[string]map[Phase][]string)
	}
	for cat, phases := range categories {
		if c.pools[reg][cat] == nil {
			c.pools[reg][cat] = make(map[Phase][]string)
		}
		for phase, texts := range phases {
			c.pools[reg][cat][phase] = append(c.pools[reg][cat][phase], texts...)
		}
	}
}

// validate makes sure the last fallback level can never come up empty
func (c *Corpus) validate() error {
	for _, reg := range []models.Register{models.RegisterEnglish, models.RegisterHinglish} {
		if len(c.pools[reg][generalPool][PhaseMiddle]) == 0 {
			return fmt.Errorf("corpus has no %s/%s pool for register %s", generalPool, PhaseMiddle, reg)
		}
	}
	return nil
}

// Pool resolves the reply pool for (category, phase, register), falling back
// to the other register, then to the general middle pool of the register.
func (c *Corpus) Pool(category models.ScamCategory, phase Phase, reg models.Register) []string {
	key := PoolKey(category)
	if pool := c.pools[reg][key][phase]; len(pool) > 0 {
		return pool
	}
	if pool := c.pools[reg.Other()][key][phase]; len(pool) > 0 {
		return pool
	}
	if pool := c.pools[reg][generalPool][PhaseMiddle]; len(pool) > 0 {
		return pool
	}
	return c.pools[reg.Other()][generalPool][PhaseMiddle]
}

// Remarks returns the suspicion remarks for a red flag code
func (c *Corpus) Remarks(code string, reg models.Register) []string {
	if r := c.remarks[reg][code]; len(r) > 0 {
		return r
	}
	return c.remarks[reg.Other()][code]
}

// Probes returns the probing questions for a target
func (c *Corpus) Probes(target ProbeTarget, reg models.Register) []string {
	if p := c.probes[reg][target]; len(p) > 0 {
		return p
	}
	return c.probes[reg.Other()][target]
}

// ConfusedProbes returns the identity questions used for non-scam messages
func (c *Corpus) ConfusedProbes(reg models.Register) []string {
	if p := c.confused[reg]; len(p) > 0 {
		return p
	}
	return c.confused[reg.Other()]
}
