package relay

import (
	"fmt"
	"time"

	"bookingrelay/internal/types"
)

const checkinLayout = "2006-01-02"

// CutoffRule rejects bookings for tomorrow once the wall clock in Location
// has reached Hour:Minute. Dates are compared as calendar dates in Location.
type CutoffRule struct {
	Enabled  bool
	Location *time.Location
	Hour     int
	Minute   int
}

// Check returns a validation_checkin_cutoff error when checkin (YYYY-MM-DD)
// is tomorrow and now is at or past the cutoff. An empty checkin passes.
func (r CutoffRule) Check(now time.Time, checkin string) error {
	if !r.Enabled || checkin == "" {
		return nil
	}

	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}

	date, err := time.ParseInLocation(checkinLayout, checkin, loc)
	if err != nil {
		return types.NewAppError(
			types.ErrCodeValidationInvalidCheckin,
			fmt.Sprintf("check-in date %q must be in YYYY-MM-DD format", checkin),
			err,
		)
	}

	local := now.In(loc)
	// Noon keeps the day arithmetic clear of DST transitions.
	tomorrow := time.Date(local.Year(), local.Month(), local.Day()+1, 12, 0, 0, 0, loc)
	if !sameDate(date, tomorrow) {
		return nil
	}

	if local.Hour()*60+local.Minute() < r.Hour*60+r.Minute {
		return nil
	}

	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationCheckinCutoff,
		fmt.Sprintf("Bookings for check-in tomorrow (%s) close at %02d:%02d %s time. Please choose a later date or contact us directly.",
			checkin, r.Hour, r.Minute, loc.String()),
		nil,
		map[string]any{"checkin": checkin},
	)
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
