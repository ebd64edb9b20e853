package lifecycle

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/nextlevelbuilder/agentworker/internal/cronengine"
	"github.com/nextlevelbuilder/agentworker/internal/domain"
)

var durationLiteral = regexp.MustCompile(`^(\d+(\.\d+)?)\s*(ms|s|m|h|d)$`)

var unitScale = map[string]time.Duration{
	"ms": time.Millisecond,
	"s":  time.Second,
	"m":  time.Minute,
	"h":  time.Hour,
	"d":  24 * time.Hour,
}

// ResolveSchedule classifies a raw ScheduleConfig.Wakeup string per the
// data model's grammar: a bare positive integer or a duration literal
// (`/^\d+(\.\d+)?\s*(ms|s|m|h|d)$/`) resolve to an interval in
// milliseconds; anything else is treated as a 5-field cron expression
// and validated as one. A bare "0" (or any non-positive interval) is
// rejected — it cannot express a wakeup.
func ResolveSchedule(cfg domain.ScheduleConfig) (domain.ResolvedSchedule, error) {
	wakeup := cfg.Wakeup

	if n, err := strconv.ParseInt(wakeup, 10, 64); err == nil {
		if n <= 0 {
			return domain.ResolvedSchedule{}, fmt.Errorf("lifecycle: schedule wakeup must be positive, got %d", n)
		}
		return domain.ResolvedSchedule{Type: domain.ScheduleInterval, Ms: n, Prompt: cfg.Prompt}, nil
	}

	if m := durationLiteral.FindStringSubmatch(wakeup); m != nil {
		value, _ := strconv.ParseFloat(m[1], 64)
		ms := int64(value * float64(unitScale[m[3]]) / float64(time.Millisecond))
		if ms <= 0 {
			return domain.ResolvedSchedule{}, fmt.Errorf("lifecycle: schedule wakeup must be positive, got %q", wakeup)
		}
		return domain.ResolvedSchedule{Type: domain.ScheduleInterval, Ms: ms, Prompt: cfg.Prompt}, nil
	}

	if err := cronengine.Validate(wakeup); err != nil {
		return domain.ResolvedSchedule{}, fmt.Errorf("lifecycle: invalid schedule %q: %w", wakeup, err)
	}
	return domain.ResolvedSchedule{Type: domain.ScheduleCron, Expr: wakeup, Prompt: cfg.Prompt}, nil
}
