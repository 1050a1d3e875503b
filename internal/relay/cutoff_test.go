package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookingrelay/internal/types"
)

func tokyo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	return loc
}

func TestCutoffRule_Check(t *testing.T) {
	loc := tokyo(t)
	rule := CutoffRule{Enabled: true, Location: loc, Hour: 12, Minute: 0}

	tests := []struct {
		name    string
		now     time.Time
		checkin string
		reject  bool
	}{
		{"tomorrow at cutoff", time.Date(2025, 6, 1, 12, 0, 0, 0, loc), "2025-06-02", true},
		{"tomorrow one minute before cutoff", time.Date(2025, 6, 1, 11, 59, 0, 0, loc), "2025-06-02", false},
		{"tomorrow late evening", time.Date(2025, 6, 1, 23, 59, 0, 0, loc), "2025-06-02", true},
		{"day after tomorrow", time.Date(2025, 6, 1, 18, 0, 0, 0, loc), "2025-06-03", false},
		{"same day", time.Date(2025, 6, 1, 18, 0, 0, 0, loc), "2025-06-01", false},
		{"month boundary", time.Date(2025, 6, 30, 13, 0, 0, 0, loc), "2025-07-01", true},
		{"year boundary", time.Date(2025, 12, 31, 12, 30, 0, 0, loc), "2026-01-01", true},
		{"empty check-in", time.Date(2025, 6, 1, 13, 0, 0, 0, loc), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rule.Check(tt.now, tt.checkin)
			if tt.reject {
				requireCode(t, err, types.ErrCodeValidationCheckinCutoff)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCutoffRule_ComparesCalendarDatesInZone(t *testing.T) {
	loc := tokyo(t)
	rule := CutoffRule{Enabled: true, Location: loc, Hour: 12}

	// 2025-06-01T03:30Z is 12:30 on June 1 in Tokyo, while UTC is still
	// before noon. Tomorrow is June 2 by the Tokyo calendar.
	now := time.Date(2025, 6, 1, 3, 30, 0, 0, time.UTC)
	requireCode(t, rule.Check(now, "2025-06-02"), types.ErrCodeValidationCheckinCutoff)

	// 2025-06-01T16:00Z is already 01:00 on June 2 in Tokyo: June 2 is
	// today there and June 3 is tomorrow, but before the cutoff.
	now = time.Date(2025, 6, 1, 16, 0, 0, 0, time.UTC)
	assert.NoError(t, rule.Check(now, "2025-06-02"))
	assert.NoError(t, rule.Check(now, "2025-06-03"))
}

func TestCutoffRule_Disabled(t *testing.T) {
	loc := tokyo(t)
	rule := CutoffRule{Enabled: false, Location: loc, Hour: 12}

	assert.NoError(t, rule.Check(time.Date(2025, 6, 1, 15, 0, 0, 0, loc), "2025-06-02"))
}

func TestCutoffRule_InvalidDate(t *testing.T) {
	rule := CutoffRule{Enabled: true, Hour: 12}

	err := rule.Check(time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC), "06/02/2025")
	requireCode(t, err, types.ErrCodeValidationInvalidCheckin)
}

func TestCutoffRule_CustomCutoffMinute(t *testing.T) {
	loc := tokyo(t)
	rule := CutoffRule{Enabled: true, Location: loc, Hour: 17, Minute: 30}

	assert.NoError(t, rule.Check(time.Date(2025, 6, 1, 17, 29, 0, 0, loc), "2025-06-02"))
	requireCode(t, rule.Check(time.Date(2025, 6, 1, 17, 30, 0, 0, loc), "2025-06-02"), types.ErrCodeValidationCheckinCutoff)
}
