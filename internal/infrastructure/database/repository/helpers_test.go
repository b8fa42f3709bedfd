package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"honeypot-lab/internal/domain/models"
)

func TestIndicatorRows(t *testing.T) {
	set := models.NewIndicatorSet()
	set.UPIIDs.Add("b@ybl")
	set.UPIIDs.Add("a@ybl")
	set.PhoneNumbers.Add("9876543210")
	set.IFSCCodes.Add("SBIN0001234")

	rows := indicatorRows(set)

	assert.Equal(t, []indicatorRow{
		{Kind: models.IndicatorPhone, Value: "9876543210"},
		{Kind: models.IndicatorUPI, Value: "a@ybl"},
		{Kind: models.IndicatorUPI, Value: "b@ybl"},
		{Kind: models.IndicatorIFSC, Value: "SBIN0001234"},
	}, rows)
	assert.Empty(t, indicatorRows(models.NewIndicatorSet()))
}

func TestSetToStrings_NeverNil(t *testing.T) {
	assert.Equal(t, []string{}, setToStrings(nil))
	assert.Equal(t, []string{"a", "b"}, setToStrings(models.NewStringSet("b", "a")))
}

func TestTimestamptzRoundTrip(t *testing.T) {
	assert.False(t, timeToTimestamptz(time.Time{}).Valid)

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, now, timestamptzToTime(timeToTimestamptz(now)))
}
