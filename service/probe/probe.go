package probe

import (
	"context"

	"github.com/vigilohq/vigilo/model"
)

// Executor runs one probe against a check's target. Implementations never
// return Go errors for unreachable targets; every transport failure maps to
// a Down outcome with a readable message so the status engine can count it.
type Executor interface {
	Execute(ctx context.Context, c *model.Check) *model.ProbeOutcome
}

// NewRegistry wires the built-in executors by check type.
func NewRegistry() map[uint8]Executor {
	return map[uint8]Executor{
		model.CheckTypeHTTP: &HTTPExecutor{},
		model.CheckTypeTCP:  &TCPExecutor{},
		model.CheckTypePing: &PingExecutor{},
		model.CheckTypeDNS:  &DNSExecutor{},
	}
}

func failed(msg string, latencyMs int64) *model.ProbeOutcome {
	return &model.ProbeOutcome{
		Status:    model.StatusDown,
		LatencyMs: latencyMs,
		Error:     msg,
	}
}
