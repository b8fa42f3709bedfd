package models

import (
	"encoding/json"
	"sort"
)

// StringSet is an unordered set of strings. It serializes as a sorted JSON
// array and never as null.
type StringSet map[string]struct{}

// NewStringSet creates a set holding the given values
func NewStringSet(values ...string) StringSet {
	s := make(StringSet, len(values))
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts a value, ignoring empty strings. It reports whether the value was new.
func (s StringSet) Add(v string) bool {
	if v == "" {
		return false
	}
	if _, ok := s[v]; ok {
		return false
	}
	s[v] = struct{}{}
	return true
}

// Has reports whether v is in the set
func (s StringSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Remove deletes v from the set
func (s StringSet) Remove(v string) {
	delete(s, v)
}

// Len returns the number of members
func (s StringSet) Len() int {
	return len(s)
}

// Sorted returns the members in lexical order
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy
func (s StringSet) Clone() StringSet {
	out := make(StringSet, len(s))
	for v := range s {
		out[v] = struct{}{}
	}
	return out
}

// MarshalJSON implements json.Marshaler
func (s StringSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON implements json.Unmarshaler
func (s *StringSet) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = NewStringSet(values...)
	return nil
}

// IndicatorKind names one field of an IndicatorSet
type IndicatorKind string

const (
	IndicatorPhone  IndicatorKind = "phone"
	IndicatorBank   IndicatorKind = "bank_account"
	IndicatorUPI    IndicatorKind = "upi_id"
	IndicatorLink   IndicatorKind = "phishing_link"
	IndicatorEmail  IndicatorKind = "email"
	IndicatorCaseID IndicatorKind = "case_id"
	IndicatorPolicy IndicatorKind = "policy_number"
	IndicatorOrder  IndicatorKind = "order_number"
	IndicatorIFSC   IndicatorKind = "ifsc_code"
)

// IndicatorKinds lists every kind in reporting order
var IndicatorKinds = []IndicatorKind{
	IndicatorPhone, IndicatorBank, IndicatorUPI, IndicatorLink, IndicatorEmail,
	IndicatorCaseID, IndicatorPolicy, IndicatorOrder, IndicatorIFSC,
}

// IndicatorSet is the intelligence extracted from one message or accumulated
// over a whole session. Every field is a set; order carries no meaning.
type IndicatorSet struct {
	PhoneNumbers   StringSet `json:"phoneNumbers"`
	BankAccounts   StringSet `json:"bankAccounts"`
	UPIIDs         StringSet `json:"upiIds"`
	PhishingLinks  StringSet `json:"phishingLinks"`
	EmailAddresses StringSet `json:"emailAddresses"`
	CaseIDs        StringSet `json:"caseIds"`
	PolicyNumbers  StringSet `json:"policyNumbers"`
	OrderNumbers   StringSet `json:"orderNumbers"`
	IFSCCodes      StringSet `json:"ifscCodes"`
}

// NewIndicatorSet returns a set with every field allocated
func NewIndicatorSet() IndicatorSet {
	return IndicatorSet{
		PhoneNumbers:   StringSet{},
		BankAccounts:   StringSet{},
		UPIIDs:         StringSet{},
		PhishingLinks:  StringSet{},
		EmailAddresses: StringSet{},
		CaseIDs:        StringSet{},
		PolicyNumbers:  StringSet{},
		OrderNumbers:   StringSet{},
		IFSCCodes:      StringSet{},
	}
}

// Field returns the set backing the given kind
func (s *IndicatorSet) Field(kind IndicatorKind) StringSet {
	s.ensure()
	switch kind {
	case IndicatorPhone:
		return s.PhoneNumbers
	case IndicatorBank:
		return s.BankAccounts
	case IndicatorUPI:
		return s.UPIIDs
	case IndicatorLink:
		return s.PhishingLinks
	case IndicatorEmail:
		return s.EmailAddresses
	case IndicatorCaseID:
		return s.CaseIDs
	case IndicatorPolicy:
		return s.PolicyNumbers
	case IndicatorOrder:
		return s.OrderNumbers
	case IndicatorIFSC:
		return s.IFSCCodes
	}
	return nil
}

func (s *IndicatorSet) ensure() {
	if s.PhoneNumbers == nil {
		s.PhoneNumbers = StringSet{}
	}
	if s.BankAccounts == nil {
		s.BankAccounts = StringSet{}
	}
	if s.UPIIDs == nil {
		s.UPIIDs = StringSet{}
	}
	if s.PhishingLinks == nil {
		s.PhishingLinks = StringSet{}
	}
	if s.EmailAddresses == nil {
		s.EmailAddresses = StringSet{}
	}
	if s.CaseIDs == nil {
		s.CaseIDs = StringSet{}
	}
	if s.PolicyNumbers == nil {
		s.PolicyNumbers = StringSet{}
	}
	if s.OrderNumbers == nil {
		s.OrderNumbers = StringSet{}
	}
	if s.IFSCCodes == nil {
		s.IFSCCodes = StringSet{}
	}
}

// Union adds every value of other into s, field by field. Nothing is ever
// removed. The returned set holds only the values that were new to s.
func (s *IndicatorSet) Union(other IndicatorSet) IndicatorSet {
	added := NewIndicatorSet()
	for _, kind := range IndicatorKinds {
		dst := s.Field(kind)
		for v := range other.Field(kind) {
			if dst.Add(v) {
				added.Field(kind).Add(v)
			}
		}
	}
	return added
}

// Clone returns a deep copy
func (s IndicatorSet) Clone() IndicatorSet {
	out := NewIndicatorSet()
	out.Union(s)
	return out
}

// Total returns the number of indicators across all fields
func (s IndicatorSet) Total() int {
	n := 0
	for _, kind := range IndicatorKinds {
		n += s.Field(kind).Len()
	}
	return n
}

// IsEmpty reports whether no field holds a value
func (s IndicatorSet) IsEmpty() bool {
	return s.Total() == 0
}

// Counts returns the size of each non-empty field
func (s IndicatorSet) Counts() map[IndicatorKind]int {
	counts := make(map[IndicatorKind]int)
	for _, kind := range IndicatorKinds {
		if n := s.Field(kind).Len(); n > 0 {
			counts[kind] = n
		}
	}
	return counts
}

// HasPaymentIntel reports whether the set holds a phone, bank account or UPI id,
// the indicators an evaluator can act on directly.
func (s IndicatorSet) HasPaymentIntel() bool {
	return s.PhoneNumbers.Len() > 0 || s.BankAccounts.Len() > 0 || s.UPIIDs.Len() > 0
}
