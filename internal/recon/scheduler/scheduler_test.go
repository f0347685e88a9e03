package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClaim_OncePerDatePerSource(t *testing.T) {
	s := &Scheduler{ran: make(map[string]bool)}
	date := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	assert.True(t, s.claim(date, "csv"))
	assert.False(t, s.claim(date, "csv"))
	assert.True(t, s.claim(date, "bank_csv"))

	nextDay := date.Add(24 * time.Hour)
	assert.True(t, s.claim(nextDay, "csv"))
}

func TestPrune_DropsOldClaims(t *testing.T) {
	s := &Scheduler{ran: make(map[string]bool)}
	yesterday := time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC)
	today := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	s.claim(yesterday, "csv")
	s.claim(today, "csv")
	s.prune(today)

	assert.Len(t, s.ran, 1)
	assert.True(t, s.ran["2026-08-20:csv"])
}
