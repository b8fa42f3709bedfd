package models

// ScamCategory is the best-guess type of fraud a conversation belongs to
type ScamCategory string

const (
	CategoryOTPFraud       ScamCategory = "OTP_FRAUD"
	CategoryLegalThreat    ScamCategory = "LEGAL_THREAT"      // fake police, tax, court
	CategoryInvestment     ScamCategory = "INVESTMENT_SCAM"   // crypto, trading, guaranteed returns
	CategoryLottery        ScamCategory = "LOTTERY_SCAM"      // prizes, cashback, lucky draws
	CategoryJob            ScamCategory = "JOB_SCAM"          // work from home, registration fees
	CategoryInsurance      ScamCategory = "INSURANCE_SCAM"    // policy maturity, claims
	CategoryDelivery       ScamCategory = "DELIVERY_SCAM"     // courier, customs
	CategoryTechSupport    ScamCategory = "TECH_SUPPORT_SCAM" // remote access, virus
	CategoryLoan           ScamCategory = "LOAN_SCAM"         // pre-approved loans, processing fee
	CategoryRomance        ScamCategory = "ROMANCE_SCAM"
	CategoryPaymentRequest ScamCategory = "UPI_FRAUD" // direct money transfer requests
	CategoryKYC            ScamCategory = "KYC_FRAUD"
	CategoryPhishing       ScamCategory = "PHISHING"
	CategoryAccountThreat  ScamCategory = "ACCOUNT_THREAT"
	CategoryGeneral        ScamCategory = "GENERAL_FRAUD"
)

// IsGeneric reports whether the category is the fallback used when no
// specific signal family matched
func (c ScamCategory) IsGeneric() bool {
	return c == "" || c == CategoryGeneral
}

// String implements fmt.Stringer
func (c ScamCategory) String() string {
	if c == "" {
		return string(CategoryGeneral)
	}
	return string(c)
}

// Register is the language variant a message is written in
type Register string

const (
	RegisterEnglish  Register = "english"
	RegisterHinglish Register = "hinglish"
)

// Other returns the opposite register
func (r Register) Other() Register {
	if r == RegisterHinglish {
		return RegisterEnglish
	}
	return RegisterHinglish
}
