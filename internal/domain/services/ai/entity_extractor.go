package ai

import (
	"fmt"
	"regexp"
	"strings"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/pkg/logger"
)

// EntityExtractor pulls fraud indicators out of a single message. It keeps
// no state between calls; cumulation across turns is the session store's job.
//
// Rules run in a fixed priority order: phone numbers, bank accounts, UPI ids,
// emails, links, IFSC codes, then keyword-anchored reference codes. A
// candidate whose span lies entirely inside text already claimed by a
// higher-priority rule is discarded.
type EntityExtractor struct {
	logger *logger.Logger
}

// upiHandles are the payment-provider suffixes accepted after '@'
var upiHandles = toSet(
	"ybl", "paytm", "oksbi", "okaxis", "okicici", "okhdfcbank", "upi", "apl", "axl", "ibl", "sbi",
	"icici", "hdfcbank", "axisbank", "kotak", "indus", "federal", "barodampay", "mahb", "canbk",
	"pnb", "unionbank", "dbs", "rbl", "yes", "idbi", "hsbc", "sc", "citi", "bob", "indianbank",
	"iob", "centralbank", "allbank", "pingpay", "gpay", "freecharge", "airtel", "jio", "slice",
	"jupiteraxis", "postbank", "dlb", "kvb", "kbl", "abfspay", "ratn", "aubank", "equitas",
	"bandhan", "boi", "syndicate", "uco", "nsdl", "okmf", "okbizaxis", "okbizicici", "waaxis",
	"wahdfcbank", "wasbi", "fam", "denabank", "pockets", "eazypay", "idfcfirst", "yesbankltd",
	"tjsb", "jkb", "karurvysya",
)

// emailProviders never count as payment handles even without a TLD
var emailProviders = toSet(
	"gmail", "yahoo", "outlook", "hotmail", "live", "protonmail", "rediffmail",
	"aol", "mail", "zoho", "yandex", "icloud", "googlemail", "msn",
)

var (
	digitRunPattern        = regexp.MustCompile(`[0-9]+`)
	handlePattern          = regexp.MustCompile(`[a-zA-Z0-9._\-]+@([a-zA-Z]+)`)
	emailPattern           = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	contextualEmailPattern = regexp.MustCompile(`(?i)(?:email|e-mail|mail|email\s*id|emailid)[\s:]+([a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+)`)
	linkPattern            = regexp.MustCompile(`https?://[^\s<>"]+|www\.[^\s<>"]+`)
	bareLinkPattern        = regexp.MustCompile(`[a-zA-Z0-9][a-zA-Z0-9\-]*(?:\.[a-zA-Z0-9\-]+)*\.[a-zA-Z]{2,}/[^\s<>"]*`)
	ifscPattern            = regexp.MustCompile(`\b[A-Z]{4}0[A-Z0-9]{6}\b`)
	policyPattern          = keywordCodePattern(`policy|insurance|lic|plan|premium|claim|pol`, 3)
	orderPattern           = keywordCodePattern(`order|transaction|txn|invoice|shipment|tracking|delivery|awb|consignment`, 3)
	caseIDPattern          = keywordCodePattern(`case|ref|reference|fir|complaint|ticket|incident|badge|verification`, 2)
	standaloneIDPattern    = regexp.MustCompile(`\b[A-Z]{2,5}-[0-9]{2,}(?:-[A-Z0-9]+)*\b`)
	ifscPrefixPattern      = regexp.MustCompile(`^[A-Z]{4}0`)
)

const trailingPunctuation = `.,;:!?)'"`

// keywordCodePattern builds "<keyword> [no|number|id] <code>" with the code
// in the first capture group
func keywordCodePattern(keywords string, minTail int) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(
		`(?i)\b(?:%s)(?:[\s#:_\-]+(?:no|number|num|id)\.?)?[\s#:_\-]+([A-Z0-9][A-Z0-9\-_]{%d,20})`,
		keywords, minTail,
	))
}

// NewEntityExtractor creates a new entity extractor
func NewEntityExtractor(log *logger.Logger) *EntityExtractor {
	return &EntityExtractor{
		logger: log.WithComponent("extractor"),
	}
}

// Extract returns the indicators found in text. Every field of the result is
// allocated, even when empty.
func (e *EntityExtractor) Extract(text string) models.IndicatorSet {
	out := models.NewIndicatorSet()
	if strings.TrimSpace(text) == "" {
		return out
	}

	x := &extraction{text: text, out: &out}
	x.phonesAndAccounts()
	x.paymentHandles()
	x.emails()
	x.links()
	x.ifscCodes()
	x.referenceCodes()

	if e.logger != nil && !out.IsEmpty() {
		e.logger.Debug().Int("indicators", out.Total()).Msg("indicators extracted")
	}
	return out
}

// ExtractAll extracts from every text and unions the results
func (e *EntityExtractor) ExtractAll(texts ...string) models.IndicatorSet {
	out := models.NewIndicatorSet()
	for _, t := range texts {
		out.Union(e.Extract(t))
	}
	return out
}

type span struct{ start, end int }

// extraction carries the claimed spans for one Extract call
type extraction struct {
	text    string
	out     *models.IndicatorSet
	claimed []span
}

func (x *extraction) covered(start, end int) bool {
	for _, s := range x.claimed {
		if s.start <= start && end <= s.end {
			return true
		}
	}
	return false
}

func (x *extraction) claim(start, end int) {
	x.claimed = append(x.claimed, span{start, end})
}

// phonesAndAccounts classifies maximal digit runs. A 10-digit run starting
// 6-9, or the same number behind a 91 country code, is a phone; any other
// standalone run of 9-18 digits is a bank account unless it looks like a
// millisecond epoch timestamp.
func (x *extraction) phonesAndAccounts() {
	runs := digitRunPattern.FindAllStringIndex(x.text, -1)
	var accounts []span

	for _, r := range runs {
		digits := x.text[r[0]:r[1]]
		if phone, ok := mobileNumber(digits); ok {
			x.out.PhoneNumbers.Add(phone)
			x.out.PhoneNumbers.Add("+91" + phone)
			x.claim(r[0], r[1])
			continue
		}
		accounts = append(accounts, span{r[0], r[1]})
	}

	for _, r := range accounts {
		digits := x.text[r.start:r.end]
		if !isBankAccount(digits) {
			continue
		}
		if isWordByte(x.text, r.start-1) || isWordByte(x.text, r.end) {
			continue
		}
		if x.out.PhoneNumbers.Has(digits) {
			continue
		}
		x.out.BankAccounts.Add(digits)
		x.claim(r.start, r.end)
	}
}

// mobileNumber returns the 10-digit national form of an Indian mobile number
func mobileNumber(digits string) (string, bool) {
	switch {
	case len(digits) == 10 && isMobileLead(digits[0]):
		return digits, true
	case len(digits) == 12 && strings.HasPrefix(digits, "91") && isMobileLead(digits[2]):
		return digits[2:], true
	}
	return "", false
}

func isMobileLead(b byte) bool {
	return b >= '6' && b <= '9'
}

func isBankAccount(digits string) bool {
	n := len(digits)
	if n < 9 || n > 18 {
		return false
	}
	if _, phone := mobileNumber(digits); phone {
		return false
	}
	// millisecond epoch timestamps leak into text from message metadata
	if n == 13 && digits[0] == '1' {
		return false
	}
	return true
}

// paymentHandles finds name@handle tokens. Known provider suffixes are always
// accepted; unknown dot-free suffixes are accepted unless they name an email
// provider. A suffix that continues as a domain belongs to an email address.
func (x *extraction) paymentHandles() {
	for _, m := range handlePattern.FindAllStringSubmatchIndex(x.text, -1) {
		start, end := m[0], m[1]
		suffix := strings.ToLower(x.text[m[2]:m[3]])

		if isWordByte(x.text, end) || continuesDomain(x.text, end) {
			continue
		}
		if x.covered(start, end) {
			continue
		}

		_, known := upiHandles[suffix]
		if !known {
			if len(suffix) < 2 || len(suffix) > 15 {
				continue
			}
			if _, mail := emailProviders[suffix]; mail {
				continue
			}
		}
		x.out.UPIIDs.Add(x.text[start:end])
		x.claim(start, end)
	}
}

// emails applies the standard and contextual rules, then removes anything
// already reported as a payment handle
func (x *extraction) emails() {
	type candidate struct {
		value      string
		start, end int
	}
	var found []candidate

	for _, m := range emailPattern.FindAllStringIndex(x.text, -1) {
		v := strings.TrimRight(x.text[m[0]:m[1]], trailingPunctuation)
		found = append(found, candidate{v, m[0], m[0] + len(v)})
	}
	for _, m := range contextualEmailPattern.FindAllStringSubmatchIndex(x.text, -1) {
		v := strings.TrimRight(x.text[m[2]:m[3]], trailingPunctuation)
		found = append(found, candidate{v, m[2], m[2] + len(v)})
	}

	for _, c := range found {
		if c.value == "" || !strings.Contains(c.value, "@") {
			continue
		}
		if x.out.UPIIDs.Has(c.value) || x.covered(c.start, c.end) {
			continue
		}
		x.out.EmailAddresses.Add(c.value)
		x.claim(c.start, c.end)
	}
}

// links accepts scheme and www. links, then bare domain/path fragments that
// are not part of an email address or an already matched link
func (x *extraction) links() {
	var linkSpans []span
	for _, m := range linkPattern.FindAllStringIndex(x.text, -1) {
		v := strings.TrimRight(x.text[m[0]:m[1]], trailingPunctuation)
		end := m[0] + len(v)
		if len(v) <= len("www.") || strings.HasSuffix(v, "://") || x.covered(m[0], end) {
			continue
		}
		x.out.PhishingLinks.Add(v)
		linkSpans = append(linkSpans, span{m[0], end})
	}

	for _, m := range bareLinkPattern.FindAllStringIndex(x.text, -1) {
		if m[0] > 0 && strings.ContainsRune("@/.", rune(x.text[m[0]-1])) {
			continue
		}
		v := strings.TrimRight(x.text[m[0]:m[1]], trailingPunctuation)
		end := m[0] + len(v)
		if intersects(linkSpans, m[0], end) || x.covered(m[0], end) {
			continue
		}
		x.out.PhishingLinks.Add(v)
		linkSpans = append(linkSpans, span{m[0], end})
	}

	for _, s := range linkSpans {
		x.claim(s.start, s.end)
	}
}

func (x *extraction) ifscCodes() {
	for _, m := range ifscPattern.FindAllStringIndex(x.text, -1) {
		if x.covered(m[0], m[1]) {
			continue
		}
		x.out.IFSCCodes.Add(x.text[m[0]:m[1]])
		x.claim(m[0], m[1])
	}
}

// referenceCodes handles the keyword-anchored families. A captured code must
// contain a digit so that ordinary words after a keyword are not reported.
func (x *extraction) referenceCodes() {
	x.keywordCodes(policyPattern, x.out.PolicyNumbers)
	x.keywordCodes(orderPattern, x.out.OrderNumbers)

	// whole ABC-123 tokens go first so "FIR-2024-001" is not split at its keyword
	for _, m := range standaloneIDPattern.FindAllStringIndex(x.text, -1) {
		v := x.text[m[0]:m[1]]
		if ifscPrefixPattern.MatchString(v) {
			continue
		}
		if x.out.PolicyNumbers.Has(v) || x.out.OrderNumbers.Has(v) {
			continue
		}
		if x.covered(m[0], m[1]) {
			continue
		}
		x.out.CaseIDs.Add(v)
		x.claim(m[0], m[1])
	}

	x.keywordCodes(caseIDPattern, x.out.CaseIDs)
}

func (x *extraction) keywordCodes(pattern *regexp.Regexp, dst models.StringSet) {
	for _, m := range pattern.FindAllStringSubmatchIndex(x.text, -1) {
		start, end := m[2], m[3]
		v := x.text[start:end]
		if !strings.ContainsAny(v, "0123456789") {
			continue
		}
		if x.covered(start, end) {
			continue
		}
		dst.Add(v)
		x.claim(start, end)
	}
}

func intersects(spans []span, start, end int) bool {
	for _, s := range spans {
		if start < s.end && s.start < end {
			return true
		}
	}
	return false
}

// isWordByte reports whether text[i] is an ASCII word character
func isWordByte(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return false
	}
	b := text[i]
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// continuesDomain reports whether text at i continues a domain name, either
// with a hyphen or with '.' and a letter
func continuesDomain(text string, i int) bool {
	if i < len(text) && text[i] == '-' {
		return true
	}
	if i+1 >= len(text) || text[i] != '.' {
		return false
	}
	b := text[i+1]
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func toSet(values ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}
