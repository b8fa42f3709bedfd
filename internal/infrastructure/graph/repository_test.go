package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"honeypot-lab/internal/domain/models"
)

func TestLinkBatch(t *testing.T) {
	set := models.NewIndicatorSet()
	set.PhishingLinks.Add("http://sbi-kyc.example/verify")
	set.PhoneNumbers.Add("9876543210")

	batch := linkBatch(set)

	assert.Equal(t, []map[string]any{
		{"kind": "phone", "value": "9876543210"},
		{"kind": "phishing_link", "value": "http://sbi-kyc.example/verify"},
	}, batch)
}

func TestLinkBatch_Empty(t *testing.T) {
	assert.Empty(t, linkBatch(models.NewIndicatorSet()))
}
