package lifecycle

import (
	"testing"

	"github.com/nextlevelbuilder/agentworker/internal/domain"
)

func TestResolveSchedule_BareIntegerIsIntervalMs(t *testing.T) {
	r, err := ResolveSchedule(domain.ScheduleConfig{Wakeup: "5000"})
	if err != nil {
		t.Fatalf("ResolveSchedule: %v", err)
	}
	if r.Type != domain.ScheduleInterval || r.Ms != 5000 {
		t.Fatalf("got %+v", r)
	}
}

func TestResolveSchedule_DurationLiteralConvertsToMs(t *testing.T) {
	r, err := ResolveSchedule(domain.ScheduleConfig{Wakeup: "30m"})
	if err != nil {
		t.Fatalf("ResolveSchedule: %v", err)
	}
	if r.Type != domain.ScheduleInterval || r.Ms != 30*60*1000 {
		t.Fatalf("got %+v", r)
	}
}

func TestResolveSchedule_RejectsZero(t *testing.T) {
	if _, err := ResolveSchedule(domain.ScheduleConfig{Wakeup: "0"}); err == nil {
		t.Fatal("expected 0 to be rejected")
	}
}

func TestResolveSchedule_AnythingElseIsCron(t *testing.T) {
	r, err := ResolveSchedule(domain.ScheduleConfig{Wakeup: "30 10 * * *"})
	if err != nil {
		t.Fatalf("ResolveSchedule: %v", err)
	}
	if r.Type != domain.ScheduleCron || r.Expr != "30 10 * * *" {
		t.Fatalf("got %+v", r)
	}
}

func TestResolveSchedule_BadCronRejected(t *testing.T) {
	if _, err := ResolveSchedule(domain.ScheduleConfig{Wakeup: "not a schedule"}); err == nil {
		t.Fatal("expected invalid cron to be rejected")
	}
}
