// Package cronengine parses 5-field cron expressions and computes the next
// fire time after a given instant, scanning minute-by-minute on the local
// wall clock.
package cronengine

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

// ErrBadSchedule is returned when expr does not have exactly 5 fields, or
// a field contains a non-numeric token (field names like "JAN" or "MON"
// are deliberately rejected — this daemon's schedule grammar is numeric
// cron only, matching the literal-schedule contract in the HTTP layer).
var ErrBadSchedule = errors.New("cronengine: bad schedule")

// ErrNoMatch is returned when no matching instant is found within the
// 366-day scan horizon.
var ErrNoMatch = errors.New("cronengine: no match within one year")

// fieldToken matches a single cron field: *, exact value, a-b range,
// comma-separated list of the above, and an optional /step suffix. Only
// digits are permitted — no month/weekday names.
var fieldToken = regexp.MustCompile(`^(\*|\d+(-\d+)?)(/\d+)?(,(\*|\d+(-\d+)?)(/\d+)?)*$`)

// gx is stateless and safe for concurrent use; share one instance.
var gx = gronx.New()

// Validate reports whether expr is a syntactically valid 5-field cron
// expression using only numeric tokens.
func Validate(expr string) error {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return fmt.Errorf("%w: expected 5 fields, got %d", ErrBadSchedule, len(fields))
	}
	for _, f := range fields {
		if !fieldToken.MatchString(f) {
			return fmt.Errorf("%w: invalid field %q", ErrBadSchedule, f)
		}
	}
	if !gx.IsValid(expr) {
		return fmt.Errorf("%w: %q rejected by cron field-set parser", ErrBadSchedule, expr)
	}
	return nil
}

// NextCronTime advances to the next whole-minute boundary after from, then
// scans minute-by-minute (local wall clock — a deliberate choice, see
// SPEC_FULL.md §9) up to 366 days for the first instant matching all five
// fields of expr. It returns ErrBadSchedule for malformed expressions and
// ErrNoMatch if nothing matches within the horizon.
func NextCronTime(expr string, from time.Time) (time.Time, error) {
	if err := Validate(expr); err != nil {
		return time.Time{}, err
	}

	from = from.Local()
	t := from.Truncate(time.Minute)
	if !t.After(from) {
		t = t.Add(time.Minute)
	}

	const horizon = 366 * 24 * 60
	for i := 0; i < horizon; i++ {
		due, err := gx.IsDue(expr, t)
		if err == nil && due {
			return t, nil
		}
		t = t.Add(time.Minute)
	}

	return time.Time{}, ErrNoMatch
}

// MsUntilNextCron returns the number of milliseconds from `from` until the
// next matching instant.
func MsUntilNextCron(expr string, from time.Time) (int64, error) {
	next, err := NextCronTime(expr, from)
	if err != nil {
		return 0, err
	}
	return next.Sub(from).Milliseconds(), nil
}
