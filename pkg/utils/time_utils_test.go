package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStartOfDayUsesLocation(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)
	// 2026-03-01 20:00 UTC is already 2026-03-02 in ICT
	ts := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, loc), StartOfDay(ts, loc))
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), StartOfDay(ts, time.UTC))
}

func TestStartOfMonth(t *testing.T) {
	ts := time.Date(2026, 2, 28, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), StartOfMonth(ts, time.UTC))
}

func TestLoadLocationFallback(t *testing.T) {
	assert.Equal(t, time.UTC, LoadLocation(""))
	assert.Equal(t, time.UTC, LoadLocation("Not/AZone"))
}

func TestFromUnixSeconds(t *testing.T) {
	assert.True(t, FromUnixSeconds(0).IsZero())
	assert.Equal(t, int64(1700000000), FromUnixSeconds(1700000000).Unix())
	assert.Equal(t, "", FormatRFC3339(time.Time{}))
}
