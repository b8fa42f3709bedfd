package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/pkg/logger"
)

func newTestDetector() *ScamDetector {
	return NewScamDetector(logger.NewNop(), DefaultScamDetectorConfig())
}

func TestClassify_KYCScam(t *testing.T) {
	d := newTestDetector()

	v := d.Classify("Your bank account has been compromised. Call 9876543210 immediately to update KYC.", nil)

	assert.True(t, v.IsScam)
	assert.Equal(t, models.CategoryKYC, v.Category)
	assert.Equal(t, 8, v.Score)
	assert.Contains(t, v.Signals, "immediately")
	assert.Contains(t, v.Signals, "kyc")
	assert.Contains(t, v.Signals, SignalPhone)
	assert.Equal(t, []string{FamilyUrgency, FamilyFinancial, FamilyAction}, v.Families)
}

func TestClassify_UPIRequest(t *testing.T) {
	d := newTestDetector()

	v := d.Classify("Send Rs 1 to verify your UPI ID scammer@ybl for RBI compliance.", nil)

	assert.True(t, v.IsScam)
	assert.Equal(t, models.CategoryPaymentRequest, v.Category)
	assert.Contains(t, v.Signals, "rbi")
	assert.Contains(t, v.Signals, SignalUPI)
	assert.NotContains(t, v.Signals, SignalURL)
}

func TestClassify_Benign(t *testing.T) {
	d := newTestDetector()

	v := d.Classify("Hi, are we still meeting for lunch tomorrow?", nil)

	assert.False(t, v.IsScam)
	assert.Zero(t, v.Score)
	assert.Empty(t, v.Signals)
	assert.Equal(t, models.CategoryGeneral, v.Category)
}

func TestClassify_EmptyInput(t *testing.T) {
	d := newTestDetector()

	for _, text := range []string{"", "   ", "\n\t"} {
		v := d.Classify(text, []string{"bank account transfer"})
		assert.False(t, v.IsScam)
		assert.Zero(t, v.Score)
		assert.NotNil(t, v.Signals)
		assert.Empty(t, v.Signals)
	}
}

func TestClassify_HistoryBonus(t *testing.T) {
	d := newTestDetector()
	history := []string{"please share your bank account details", "the transfer is pending"}

	v := d.Classify("ok tell me more", history)
	assert.Equal(t, 2, v.Score)
	assert.False(t, v.IsScam)

	v = d.Classify("share it", history)
	assert.Equal(t, 3, v.Score)
	assert.True(t, v.IsScam)

	v = d.Classify("share it", []string{"hello there"})
	assert.Equal(t, 1, v.Score)
	assert.False(t, v.IsScam)
}

func TestClassify_TermScoredOnce(t *testing.T) {
	d := newTestDetector()

	v := d.Classify("verify", nil)

	assert.Equal(t, 1, v.Score)
	assert.Equal(t, []string{"verify"}, v.Signals)
}

func TestClassify_WholeWordsOnly(t *testing.T) {
	d := newTestDetector()

	v := d.Classify("I know the snowfall was lovely", nil)
	assert.Zero(t, v.Score)

	v = d.Classify("both accounts", nil)
	assert.Equal(t, []string{"account"}, v.Signals)
}

func TestClassify_Threshold(t *testing.T) {
	d := NewScamDetector(logger.NewNop(), ScamDetectorConfig{Threshold: 10, HistoryBonus: 2})

	v := d.Classify("Your bank account has been compromised. Call 9876543210 immediately to update KYC.", nil)

	assert.Equal(t, 8, v.Score)
	assert.False(t, v.IsScam)
}

func TestCategorize_Priority(t *testing.T) {
	d := newTestDetector()

	tests := []struct {
		text string
		want models.ScamCategory
	}{
		{"Share the OTP to stop police arrest", models.CategoryOTPFraud},
		{"Police will arrest you, pay the fine", models.CategoryLegalThreat},
		{"Guaranteed returns, your money will be doubled", models.CategoryInvestment},
		{"Congratulations you won a lottery", models.CategoryLottery},
		{"Your parcel is held at customs", models.CategoryDelivery},
		{"Pre-approved loan, just pay processing fee", models.CategoryLoan},
		{"Click the link to login", models.CategoryPhishing},
		{"Your account will be suspended", models.CategoryAccountThreat},
		{"hello", models.CategoryGeneral},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, d.Categorize(tt.text), tt.text)
	}
}

func TestConfidence(t *testing.T) {
	assert.Equal(t, 0.5, Confidence(0))
	assert.Equal(t, 0.74, Confidence(8))
	assert.Equal(t, 0.99, Confidence(20))
	assert.Equal(t, 0.5, Confidence(-3))
}

func TestDetectRedFlags(t *testing.T) {
	flags := DetectRedFlags("Share OTP now or your account gets blocked")

	if assert.NotEmpty(t, flags) {
		assert.Equal(t, RedFlagCredentials, flags[0].Code)
	}
	codes := make([]string, 0, len(flags))
	for _, f := range flags {
		codes = append(codes, f.Code)
	}
	assert.Contains(t, codes, RedFlagAccountThreat)
	assert.NotContains(t, codes, RedFlagPrize)

	assert.Empty(t, DetectRedFlags(""))
}

func TestLookupRedFlag(t *testing.T) {
	flag, ok := LookupRedFlag(RedFlagUrgency)
	assert.True(t, ok)
	assert.Contains(t, flag.Description, "time pressure")

	_, ok = LookupRedFlag("nope")
	assert.False(t, ok)
}
