package probe

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/vigilohq/vigilo/model"
	"github.com/vigilohq/vigilo/pkg/utils"
)

// TCPExecutor dials the target and optionally speaks a short send/expect
// exchange over the established connection.
type TCPExecutor struct{}

func (e *TCPExecutor) Execute(ctx context.Context, c *model.Check) *model.ProbeOutcome {
	defaultPort := 80
	if c.TCP != nil && c.TCP.Port > 0 {
		defaultPort = c.TCP.Port
	}
	host, port := utils.SplitHostPort(c.Target, defaultPort)
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	var d net.Dialer
	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", addr)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return failed(err.Error(), latency)
	}
	defer conn.Close()

	out := &model.ProbeOutcome{Status: model.StatusUp, LatencyMs: latency}
	if c.TCP == nil || (c.TCP.SendData == "" && c.TCP.ExpectData == "") {
		return out
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	if c.TCP.SendData != "" {
		if _, err := conn.Write([]byte(c.TCP.SendData)); err != nil {
			return failed("write: "+err.Error(), latency)
		}
	}
	if c.TCP.ExpectData != "" {
		buf := make([]byte, 4096)
		n, err := conn.Read(buf)
		if err != nil {
			return failed("read: "+err.Error(), latency)
		}
		reply := string(buf[:n])
		out.BodyPreview = utils.TruncateString(reply, 1024)
		if !strings.Contains(reply, c.TCP.ExpectData) {
			return failed("unexpected banner", latency)
		}
	}
	return out
}
