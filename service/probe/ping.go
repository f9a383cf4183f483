package probe

import (
	"context"
	"time"

	"github.com/go-ping/ping"

	"github.com/vigilohq/vigilo/model"
	"github.com/vigilohq/vigilo/pkg/utils"
)

// PingExecutor sends a short ICMP burst. Unprivileged UDP mode, so it works
// without CAP_NET_RAW; loss of the whole burst is Down.
type PingExecutor struct{}

func (e *PingExecutor) Execute(ctx context.Context, c *model.Check) *model.ProbeOutcome {
	host, _ := utils.SplitHostPort(c.Target, 0)

	pinger, err := ping.NewPinger(host)
	if err != nil {
		return failed(err.Error(), 0)
	}
	pinger.SetPrivileged(false)
	pinger.Count = 3
	pinger.Interval = 200 * time.Millisecond
	pinger.Timeout = 10 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		pinger.Timeout = time.Until(deadline)
	}

	if err := pinger.Run(); err != nil {
		return failed(err.Error(), 0)
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return failed("no icmp reply", pinger.Timeout.Milliseconds())
	}
	return &model.ProbeOutcome{
		Status:    model.StatusUp,
		LatencyMs: stats.AvgRtt.Milliseconds(),
	}
}
