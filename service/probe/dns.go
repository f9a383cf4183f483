package probe

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/vigilohq/vigilo/model"
	"github.com/vigilohq/vigilo/pkg/utils"
)

// DNSExecutor resolves the target against the configured public resolvers
// instead of the host's stub resolver, so a broken local resolv.conf does
// not fail every DNS check.
type DNSExecutor struct{}

// Resolver builds a resolver pinned to one of utils.DNSServers.
func (e *DNSExecutor) resolver(idx int) *net.Resolver {
	server := utils.DNSServers[idx%len(utils.DNSServers)]
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, server)
		},
	}
}

func (e *DNSExecutor) Execute(ctx context.Context, c *model.Check) *model.ProbeOutcome {
	cfg := c.DNS
	if cfg == nil {
		cfg = &model.DNSConfig{RecordType: "A"}
	}
	host, _ := utils.SplitHostPort(c.Target, 0)

	var lastErr error
	for i := range utils.DNSServers {
		r := e.resolver(i)
		start := time.Now()
		values, err := e.lookup(ctx, r, cfg.RecordType, host)
		latency := time.Since(start).Milliseconds()
		if err != nil {
			lastErr = err
			continue
		}
		if len(values) == 0 {
			return failed("no records", latency)
		}
		if cfg.ExpectedValue != "" && !containsFold(values, cfg.ExpectedValue) {
			return failed("expected value not in answer: "+strings.Join(values, ","), latency)
		}
		return &model.ProbeOutcome{
			Status:      model.StatusUp,
			LatencyMs:   latency,
			BodyPreview: utils.TruncateString(strings.Join(values, ","), 1024),
		}
	}
	return failed(lastErr.Error(), 0)
}

func (e *DNSExecutor) lookup(ctx context.Context, r *net.Resolver, recordType, host string) ([]string, error) {
	switch recordType {
	case "CNAME":
		cname, err := r.LookupCNAME(ctx, host)
		if err != nil {
			return nil, err
		}
		return []string{strings.TrimSuffix(cname, ".")}, nil
	case "TXT":
		return r.LookupTXT(ctx, host)
	case "AAAA":
		return e.lookupIP(ctx, r, "ip6", host)
	default: // A
		return e.lookupIP(ctx, r, "ip4", host)
	}
}

func (e *DNSExecutor) lookupIP(ctx context.Context, r *net.Resolver, network, host string) ([]string, error) {
	ips, err := r.LookupIP(ctx, network, host)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(ips))
	for _, ip := range ips {
		values = append(values, ip.String())
	}
	return values, nil
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}
