package cronengine

import (
	"errors"
	"testing"
	"time"
)

func TestMsUntilNextCron_ExactThirtyMinutes(t *testing.T) {
	from := time.Date(2026, 2, 7, 10, 0, 0, 0, time.UTC)
	ms, err := MsUntilNextCron("30 10 * * *", from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := int64(30 * 60 * 1000)
	if ms != want {
		t.Fatalf("got %d ms, want %d", ms, want)
	}
}

func TestNextCronTime_AlwaysAfterFrom(t *testing.T) {
	from := time.Now()
	next, err := NextCronTime("*/5 * * * *", from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !next.After(from) {
		t.Fatalf("expected %v to be after %v", next, from)
	}
}

func TestNextCronTime_RejectsWrongFieldCount(t *testing.T) {
	_, err := NextCronTime("5 * * *", time.Now())
	if !errors.Is(err, ErrBadSchedule) {
		t.Fatalf("expected ErrBadSchedule, got %v", err)
	}
}

func TestNextCronTime_RejectsNonNumericTokens(t *testing.T) {
	_, err := NextCronTime("0 0 * JAN *", time.Now())
	if !errors.Is(err, ErrBadSchedule) {
		t.Fatalf("expected ErrBadSchedule, got %v", err)
	}
}

func TestValidate_AcceptsStepsRangesLists(t *testing.T) {
	exprs := []string{"*/15 * * * *", "0 9-17 * * 1-5", "0,30 * * * *", "0 0 1,15 * *"}
	for _, e := range exprs {
		if err := Validate(e); err != nil {
			t.Errorf("expected %q to be valid, got %v", e, err)
		}
	}
}
