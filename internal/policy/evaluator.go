package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/focuspact/focuspact/internal/limits"
	"github.com/focuspact/focuspact/internal/policy/opa"
	"github.com/rs/zerolog"
)

// Evaluator decides restrictions by asking the restriction policy. It keeps
// no per-app state; the same usage and limit always yield the same decision.
type Evaluator struct {
	engine *opa.Engine
}

// NewEvaluator prepares the embedded restriction policy.
func NewEvaluator(logger zerolog.Logger) (*Evaluator, error) {
	engine, err := opa.NewEngine(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize policy engine: %w", err)
	}
	return &Evaluator{engine: engine}, nil
}

// Evaluate decides whether an app is over its limits today. A missing limit,
// a disabled type or a type without a value never restricts. Both bounds are
// inclusive: reaching the limit exactly counts as exceeding it.
func (e *Evaluator) Evaluate(ctx context.Context, u TodayUsage, limit *limits.AppLimit) (Decision, error) {
	result, err := e.engine.Eval(ctx, facts(u, limit))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate %s: %w", u.AppID, err)
	}

	return Decision{
		AppID:                u.AppID,
		TimeLimitExceeded:    result.TimeLimitExceeded,
		SessionLimitExceeded: result.SessionLimitExceeded,
		IsRestricted:         result.IsRestricted,
	}, nil
}

// EvaluateAll pairs each aggregate with its entry in a limit snapshot.
func (e *Evaluator) EvaluateAll(ctx context.Context, usages []TodayUsage, snapshot map[string]limits.AppLimit) (map[string]Decision, error) {
	out := make(map[string]Decision, len(usages))
	for _, u := range usages {
		var limit *limits.AppLimit
		if l, ok := snapshot[u.AppID]; ok {
			limit = &l
		}
		d, err := e.Evaluate(ctx, u, limit)
		if err != nil {
			return nil, err
		}
		out[u.AppID] = d
	}
	return out, nil
}

// facts builds the policy input. Values that are not configured are left
// out so the matching rule stays undefined.
func facts(u TodayUsage, limit *limits.AppLimit) map[string]interface{} {
	input := map[string]interface{}{
		"today": map[string]interface{}{
			"duration_ms": u.Duration.Milliseconds(),
			"sessions":    int64(u.Sessions),
		},
	}
	if limit == nil {
		return input
	}

	l := map[string]interface{}{
		"time_limit_enabled":    limit.TimeLimitEnabled,
		"session_limit_enabled": limit.SessionLimitEnabled,
	}
	if limit.TimeLimitMinutes != nil {
		l["time_limit_minutes"] = int64(*limit.TimeLimitMinutes)
	}
	if limit.SessionLimitCount != nil {
		l["session_limit_count"] = int64(*limit.SessionLimitCount)
	}
	input["limit"] = l
	return input
}

// Remaining reports the unused part of each enabled limit, floored at zero.
func Remaining(u TodayUsage, limit *limits.AppLimit) Budget {
	var b Budget

	if limit.HasTimeLimit() {
		b.HasTime = true
		if allowed := time.Duration(*limit.TimeLimitMinutes) * time.Minute; u.Duration < allowed {
			b.TimeRemaining = allowed - u.Duration
		}
	}
	if limit.HasSessionLimit() {
		b.HasSessions = true
		if allowed := *limit.SessionLimitCount; u.Sessions < allowed {
			b.SessionsRemaining = allowed - u.Sessions
		}
	}

	return b
}
