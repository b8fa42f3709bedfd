package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/pkg/logger"
)

func newTestExtractor() *EntityExtractor {
	return NewEntityExtractor(logger.NewNop())
}

func TestExtract_PhoneEmitsBothForms(t *testing.T) {
	e := newTestExtractor()

	got := e.Extract("Your bank account has been compromised. Call 9876543210 immediately to update KYC.")

	assert.ElementsMatch(t, []string{"9876543210", "+919876543210"}, got.PhoneNumbers.Sorted())
	assert.Empty(t, got.BankAccounts.Sorted())
}

func TestExtract_CountryCodePrefixedPhone(t *testing.T) {
	e := newTestExtractor()

	for _, text := range []string{
		"whatsapp me on +919876543210",
		"whatsapp me on 919876543210",
		"whatsapp me on +91-9876543210",
	} {
		got := e.Extract(text)
		assert.ElementsMatch(t, []string{"9876543210", "+919876543210"}, got.PhoneNumbers.Sorted(), text)
		assert.Empty(t, got.BankAccounts.Sorted(), text)
	}
}

func TestExtract_PhoneNeedsStandaloneRun(t *testing.T) {
	e := newTestExtractor()

	got := e.Extract("ref 98765432101234")

	assert.Empty(t, got.PhoneNumbers.Sorted())
	assert.Equal(t, []string{"98765432101234"}, got.BankAccounts.Sorted())
}

func TestExtract_BankAccountsAndIFSC(t *testing.T) {
	e := newTestExtractor()

	got := e.Extract("Transfer to account 123456789012 IFSC SBIN0001234 today")

	assert.Equal(t, []string{"123456789012"}, got.BankAccounts.Sorted())
	assert.Equal(t, []string{"SBIN0001234"}, got.IFSCCodes.Sorted())
	assert.Empty(t, got.CaseIDs.Sorted())
}

func TestExtract_SkipsMillisecondTimestamps(t *testing.T) {
	e := newTestExtractor()

	got := e.Extract("sent at 1712345678901 to a/c 987654321")

	assert.Equal(t, []string{"987654321"}, got.BankAccounts.Sorted())
	assert.NotContains(t, got.BankAccounts.Sorted(), "1712345678901")
}

func TestExtract_BankAccountBoundaries(t *testing.T) {
	e := newTestExtractor()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"too short", "acct 12345678", nil},
		{"too long", "acct 1234567890123456789", nil},
		{"glued to letters", "acctX123456789012", nil},
		{"eighteen digits", "acct 123456789012345678", []string{"123456789012345678"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Extract(tt.text)
			if tt.want == nil {
				assert.Empty(t, got.BankAccounts.Sorted())
				return
			}
			assert.Equal(t, tt.want, got.BankAccounts.Sorted())
		})
	}
}

func TestExtract_UPIHandleIsNotEmail(t *testing.T) {
	e := newTestExtractor()

	got := e.Extract("Send Rs 1 to verify your UPI ID scammer@ybl for RBI compliance.")

	assert.Equal(t, []string{"scammer@ybl"}, got.UPIIDs.Sorted())
	assert.Empty(t, got.EmailAddresses.Sorted())
}

func TestExtract_EmailAndUPIDisjoint(t *testing.T) {
	e := newTestExtractor()

	got := e.Extract("Mail me at fraud.team@gmail.com or pay fraud@okaxis")

	assert.Equal(t, []string{"fraud.team@gmail.com"}, got.EmailAddresses.Sorted())
	assert.Equal(t, []string{"fraud@okaxis"}, got.UPIIDs.Sorted())
}

func TestExtract_GenericHandleRules(t *testing.T) {
	e := newTestExtractor()

	tests := []struct {
		name      string
		text      string
		wantUPI   []string
		wantEmail []string
	}{
		{"unlisted provider", "pay ramesh@newbank now", []string{"ramesh@newbank"}, nil},
		{"email provider without tld", "email: support@yahoo", nil, []string{"support@yahoo"}},
		{"contextual email that looks like a handle", "email: agent@fakebank", []string{"agent@fakebank"}, nil},
		{"known handle followed by a domain", "write to help@ybl.co.in", nil, []string{"help@ybl.co.in"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Extract(tt.text)
			assert.ElementsMatch(t, tt.wantUPI, got.UPIIDs.Sorted())
			assert.ElementsMatch(t, tt.wantEmail, got.EmailAddresses.Sorted())
		})
	}
}

func TestExtract_Links(t *testing.T) {
	e := newTestExtractor()

	got := e.Extract("Click https://sbi-kyc.xyz/update. Or www.fake-bank.in! Or open sbi-verify.top/login now")

	assert.ElementsMatch(t, []string{
		"https://sbi-kyc.xyz/update",
		"www.fake-bank.in",
		"sbi-verify.top/login",
	}, got.PhishingLinks.Sorted())
}

func TestExtract_BareLinkIgnoresEmailDomain(t *testing.T) {
	e := newTestExtractor()

	got := e.Extract("contact officer@rbi-help.com/desk")

	for _, link := range got.PhishingLinks.Sorted() {
		assert.NotEqual(t, "rbi-help.com/desk", link)
	}
}

func TestExtract_ReferenceCodes(t *testing.T) {
	e := newTestExtractor()

	got := e.Extract("Your case ID: CBI-2024-7781, policy no LIC-99812 and order #ORD12345")

	assert.Equal(t, []string{"CBI-2024-7781"}, got.CaseIDs.Sorted())
	assert.Equal(t, []string{"LIC-99812"}, got.PolicyNumbers.Sorted())
	assert.Equal(t, []string{"ORD12345"}, got.OrderNumbers.Sorted())
}

func TestExtract_ReferenceCodesNeedDigits(t *testing.T) {
	e := newTestExtractor()

	got := e.Extract("Check your order status and the case details in the policy document")

	assert.Empty(t, got.OrderNumbers.Sorted())
	assert.Empty(t, got.CaseIDs.Sorted())
	assert.Empty(t, got.PolicyNumbers.Sorted())
}

func TestExtract_StandaloneIDs(t *testing.T) {
	e := newTestExtractor()

	got := e.Extract("Quote FIR-2024-001 when the officer calls")

	assert.Equal(t, []string{"FIR-2024-001"}, got.CaseIDs.Sorted())
}

func TestExtract_CodeInsidePhoneIsDropped(t *testing.T) {
	e := newTestExtractor()

	got := e.Extract("ref: 9876543210")

	assert.Contains(t, got.PhoneNumbers.Sorted(), "9876543210")
	assert.Empty(t, got.CaseIDs.Sorted())
}

func TestExtract_EmptyText(t *testing.T) {
	e := newTestExtractor()

	got := e.Extract("   ")

	assert.True(t, got.IsEmpty())
	for _, kind := range models.IndicatorKinds {
		assert.NotNil(t, got.Field(kind), kind)
	}
}

func TestExtract_PhonesAndAccountsNeverOverlap(t *testing.T) {
	e := newTestExtractor()

	texts := []string{
		"9876543210 919876543210 +919876543210 123456789 1712345678901",
		"a/c 6123456789 or 61234567891 or 9123456789012",
		"UPI 9876543210@ybl account 000123456789 call 7012345678",
		"1700000000000 1234567890123 12345678901234567",
	}
	for _, text := range texts {
		got := e.Extract(text)
		for phone := range got.PhoneNumbers {
			assert.False(t, got.BankAccounts.Has(phone), "%q in both sets for %q", phone, text)
		}
		for acct := range got.BankAccounts {
			assert.False(t, len(acct) == 13 && acct[0] == '1', "timestamp-shaped %q reported for %q", acct, text)
		}
	}
}

func TestExtractAll_UnionsTexts(t *testing.T) {
	e := newTestExtractor()

	got := e.ExtractAll("call 9876543210", "pay to fraud@paytm", "call 9876543210 again")

	require.Equal(t, 2, got.PhoneNumbers.Len())
	assert.Equal(t, []string{"fraud@paytm"}, got.UPIIDs.Sorted())
}
