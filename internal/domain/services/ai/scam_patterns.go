package ai

import (
	"strings"
	"unicode"

	"honeypot-lab/internal/domain/models"
)

// SignalFamily is a weighted group of scam vocabulary. Every distinct term
// found in a message adds the family weight to the score.
type SignalFamily struct {
	Name   string
	Weight int
	Terms  []string
}

// Family names
const (
	FamilyUrgency       = "urgency"
	FamilyThreat        = "threat"
	FamilyFinancial     = "financial"
	FamilyReward        = "reward"
	FamilyImpersonation = "impersonation"
	FamilyAction        = "action"
)

// Presence signals reported alongside matched terms
const (
	SignalURL   = "contains_url"
	SignalPhone = "contains_phone"
	SignalUPI   = "contains_upi"
)

// DefaultFamilies returns the built-in signal families in scoring order
func DefaultFamilies() []SignalFamily {
	return []SignalFamily{
		{
			Name:   FamilyUrgency,
			Weight: 2,
			Terms: []string{
				"urgent", "immediately", "today", "now", "quick", "fast", "hurry",
				"limited time", "expires", "deadline", "asap", "right away", "don't delay",
				"act now", "warning", "alert", "important", "critical",
			},
		},
		{
			Name:   FamilyThreat,
			Weight: 3,
			Terms: []string{
				"blocked", "suspended", "deactivated", "terminated", "closed", "frozen",
				"seized", "legal action", "police", "court", "arrest", "fine", "penalty",
				"will be blocked", "account blocked", "account suspended",
			},
		},
		{
			Name:   FamilyFinancial,
			Weight: 1,
			Terms: []string{
				"bank", "account", "upi", "payment", "transfer", "money", "rupees", "rs",
				"balance", "transaction", "kyc", "verify", "verification", "update",
				"otp", "pin", "cvv", "card", "atm", "ifsc", "neft", "rtgs", "imps",
			},
		},
		{
			Name:   FamilyReward,
			Weight: 2,
			Terms: []string{
				"won", "winner", "prize", "lottery", "reward", "cashback", "bonus",
				"free", "gift", "offer", "lucky", "congratulations", "selected", "chosen",
			},
		},
		{
			Name:   FamilyImpersonation,
			Weight: 2,
			Terms: []string{
				"rbi", "reserve bank", "government", "ministry", "income tax", "it department",
				"sbi", "hdfc", "icici", "axis", "paytm", "phonepe", "gpay", "google pay",
				"customer care", "support", "helpline", "official",
			},
		},
		{
			Name:   FamilyAction,
			Weight: 1,
			Terms: []string{
				"click", "link", "call", "contact", "share", "send", "provide", "enter",
				"submit", "confirm", "verify", "update", "download", "install",
			},
		},
	}
}

// categoryRule assigns a category when any of its terms appears. Rules are
// evaluated in order and the first hit wins. A trailing '*' on a term makes
// its last word a prefix match.
type categoryRule struct {
	category models.ScamCategory
	terms    []phrase
}

var categoryRules = []categoryRule{
	{models.CategoryOTPFraud, phrases(
		"otp", "pin", "cvv", "password", "code", "one time", "verification code")},
	{models.CategoryLegalThreat, phrases(
		"arrest*", "police", "legal", "court", "jail", "fine", "penalty",
		"case filed", "fir", "warrant", "summon*")},
	{models.CategoryInvestment, phrases(
		"invest*", "bitcoin", "crypto*", "trading", "returns", "profit*",
		"guaranteed", "mutual fund", "stock*", "forex", "doubl*")},
	{models.CategoryLottery, phrases(
		"won", "winner", "prize*", "lottery", "reward*", "congratulat*",
		"selected", "lucky", "cashback", "gift*")},
	{models.CategoryJob, phrases(
		"job*", "work from home", "part time", "earn*", "hiring",
		"vacancy", "resume", "salary", "registration fee")},
	{models.CategoryInsurance, phrases(
		"insurance", "policy", "policies", "lic", "premium", "maturity",
		"claim*", "nominee", "endowment", "irda")},
	{models.CategoryDelivery, phrases(
		"deliver*", "courier", "package", "parcel", "customs",
		"shipment", "tracking", "dispatch*", "consignment")},
	{models.CategoryTechSupport, phrases(
		"virus", "hack*", "malware", "computer", "laptop",
		"microsoft", "remote", "teamviewer", "anydesk")},
	{models.CategoryLoan, phrases(
		"loan*", "credit card", "emi", "cibil", "pre-approved",
		"disburs*", "sanction*", "processing fee")},
	{models.CategoryRomance, phrases(
		"dear", "beloved", "love", "marr*", "relationship",
		"lonely", "heart", "dating", "soul")},
	{models.CategoryPaymentRequest, phrases(
		"pay*", "send money", "transfer*", "amount", "rupee*",
		"rs", "fee*", "charge*", "upi")},
	{models.CategoryKYC, phrases(
		"kyc", "verify", "update", "document*", "aadhaar",
		"pan", "aadhar", "identity")},
	{models.CategoryPhishing, phrases(
		"click*", "link*", "url", "website", "download*",
		"http", "https", "www", "log in", "login")},
	{models.CategoryAccountThreat, phrases(
		"block*", "suspend*", "urgent", "immediately",
		"deactivat*", "frozen", "expir*", "terminat*")},
}

// categorize returns the first category whose vocabulary appears in words
func categorize(words []string) models.ScamCategory {
	for _, rule := range categoryRules {
		for _, p := range rule.terms {
			if p.in(words) {
				return rule.category
			}
		}
	}
	return models.CategoryGeneral
}

// RedFlag is a named warning sign found in a scammer message
type RedFlag struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Red flag codes, in detection priority order
const (
	RedFlagCredentials     = "credentials"
	RedFlagAccountNumber   = "account_number"
	RedFlagAccountThreat   = "account_threat"
	RedFlagUrgency         = "urgency"
	RedFlagLegal           = "legal_intimidation"
	RedFlagPrize           = "unsolicited_prize"
	RedFlagReturns         = "guaranteed_returns"
	RedFlagLink            = "suspicious_link"
	RedFlagKYC             = "kyc_request"
	RedFlagMoneyTransfer   = "money_transfer"
	RedFlagPersonalChannel = "personal_channel"
	RedFlagPersonalInfo    = "personal_info"
	RedFlagRefundBait      = "refund_bait"
	RedFlagEscalation      = "escalation"
)

type redFlagRule struct {
	flag  RedFlag
	terms []phrase
}

var redFlagRules = []redFlagRule{
	{RedFlag{RedFlagCredentials, "Requesting sensitive credentials (OTP/PIN/CVV); legitimate banks never ask for these"},
		phrases("otp", "pin", "cvv", "password")},
	{RedFlag{RedFlagAccountNumber, "Requesting account or card number; a real bank already has it on file"},
		phrases("account number", "card number", "16-digit", "debit card", "credit card")},
	{RedFlag{RedFlagAccountThreat, "Account threat used as a pressure tactic"},
		phrases("blocked", "suspended", "deactivated", "frozen")},
	{RedFlag{RedFlagUrgency, "Artificial time pressure to prevent verification"},
		phrases("urgent", "immediately", "right now", "right away", "within 2 hours", "last chance")},
	{RedFlag{RedFlagLegal, "Legal intimidation with fake authority"},
		phrases("arrest*", "police", "legal", "fir", "warrant", "court order")},
	{RedFlag{RedFlagPrize, "Unsolicited prize, a classic advance-fee pattern"},
		phrases("won", "winner", "prize*", "lottery", "reward*")},
	{RedFlag{RedFlagReturns, "Guaranteed returns promised; no real investment guarantees profit"},
		phrases("invest*", "guaranteed", "returns", "profit*", "doubl*")},
	{RedFlag{RedFlagLink, "Suspicious link shared, potential credential phishing"},
		phrases("http", "https", "www", "click*", "link*")},
	{RedFlag{RedFlagKYC, "KYC or verification requested over chat; banks do KYC in branch"},
		phrases("kyc", "update your", "verify your", "verification required")},
	{RedFlag{RedFlagMoneyTransfer, "Upfront money transfer requested"},
		phrases("transfer*", "send money", "pay", "fee*", "charge*", "penalty")},
	{RedFlag{RedFlagPersonalChannel, "Moving to personal messaging to evade official channels"},
		phrases("whatsapp", "telegram", "personal number")},
	{RedFlag{RedFlagPersonalInfo, "Personal information requested over an unsecured channel"},
		phrases("reply", "confirm", "submit", "provide", "share your")},
	{RedFlag{RedFlagRefundBait, "Refund bait to extract banking credentials"},
		phrases("refund*", "cashback", "compensation")},
	{RedFlag{RedFlagEscalation, "Escalating threats to force compliance"},
		phrases("final", "warning", "terminat*", "cancel*")},
}

// DetectRedFlags returns every red flag present in text, most severe first
func DetectRedFlags(text string) []RedFlag {
	words := Tokenize(text)
	if len(words) == 0 {
		return nil
	}
	var flags []RedFlag
	for _, rule := range redFlagRules {
		for _, p := range rule.terms {
			if p.in(words) {
				flags = append(flags, rule.flag)
				break
			}
		}
	}
	return flags
}

// LookupRedFlag returns the red flag registered under code
func LookupRedFlag(code string) (RedFlag, bool) {
	for _, rule := range redFlagRules {
		if rule.flag.Code == code {
			return rule.flag, true
		}
	}
	return RedFlag{}, false
}

// Tokenize lower-cases text and splits it into words. Apostrophes stay inside
// words; every other non-letter, non-digit rune separates.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '\'')
	})
}

// phrase is a tokenized vocabulary term
type phrase struct {
	text   string
	words  []string
	prefix bool // last word matches as a prefix
}

func newPhrase(term string) phrase {
	p := phrase{text: strings.TrimSuffix(term, "*")}
	p.prefix = strings.HasSuffix(term, "*")
	p.words = Tokenize(p.text)
	return p
}

func phrases(terms ...string) []phrase {
	out := make([]phrase, 0, len(terms))
	for _, t := range terms {
		out = append(out, newPhrase(t))
	}
	return out
}

// in reports whether the phrase occurs as a contiguous word sequence
func (p phrase) in(words []string) bool {
	return p.match(words, false)
}

// inPlural is like in but also accepts a trailing "s" on the last word
func (p phrase) inPlural(words []string) bool {
	return p.match(words, true)
}

func (p phrase) match(words []string, plural bool) bool {
	n := len(p.words)
	if n == 0 || n > len(words) {
		return false
	}
	last := p.words[n-1]
outer:
	for i := 0; i+n <= len(words); i++ {
		for j := 0; j < n-1; j++ {
			if words[i+j] != p.words[j] {
				continue outer
			}
		}
		w := words[i+n-1]
		switch {
		case w == last:
			return true
		case p.prefix && strings.HasPrefix(w, last):
			return true
		case plural && w == last+"s":
			return true
		}
	}
	return false
}
