package probe

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vigilohq/vigilo/model"
	"github.com/vigilohq/vigilo/pkg/utils"
)

const bodyPreviewLimit = 512 * 1024

// HTTPExecutor performs HTTP(S) probes: status-code match, optional keyword
// scan of the body, and certificate expiry inspection on TLS targets.
type HTTPExecutor struct{}

func (e *HTTPExecutor) Execute(ctx context.Context, c *model.Check) *model.ProbeOutcome {
	cfg := c.HTTP
	if cfg == nil {
		cfg = &model.HTTPConfig{Method: "GET", ExpectedStatusCode: 200, SSLWarningDays: 14}
	}

	var body io.Reader
	if cfg.Body != "" {
		body = strings.NewReader(cfg.Body)
	}
	req, err := http.NewRequestWithContext(ctx, cfg.Method, c.Target, body)
	if err != nil {
		return failed("bad request: "+err.Error(), 0)
	}
	headers, err := utils.GjsonParseStringMap(cfg.HeadersRaw)
	if err != nil {
		return failed("bad headers config: "+err.Error(), 0)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := e.client(cfg)
	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return failed(err.Error(), latency)
	}
	defer resp.Body.Close()

	out := &model.ProbeOutcome{
		Status:     model.StatusUp,
		LatencyMs:  latency,
		StatusCode: resp.StatusCode,
	}

	if resp.StatusCode != cfg.ExpectedStatusCode {
		out.Status = model.StatusDown
		out.Error = "unexpected status code " + strconv.Itoa(resp.StatusCode)
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, bodyPreviewLimit))
	page := string(raw)
	out.BodyPreview = utils.TruncateString(page, 1024)

	if out.Status == model.StatusUp && cfg.Keyword != "" {
		found := strings.Contains(page, cfg.Keyword)
		if cfg.KeywordMustExist && !found {
			out.Status = model.StatusDown
			out.Error = "keyword not found"
		} else if !cfg.KeywordMustExist && found {
			out.Status = model.StatusDown
			out.Error = "forbidden keyword present"
		}
	}

	if cfg.MonitorSSL && resp.TLS != nil && len(resp.TLS.PeerCertificates) > 0 {
		expires := resp.TLS.PeerCertificates[0].NotAfter
		out.SSLExpiresAt = &expires
		out.SSLDaysRemaining = int(time.Until(expires).Hours() / 24)
		if out.Status == model.StatusUp && out.SSLDaysRemaining <= cfg.SSLWarningDays {
			out.Status = model.StatusWarning
			out.Error = "certificate expires in " + strconv.Itoa(out.SSLDaysRemaining) + " days"
		}
	}

	return out
}

func (e *HTTPExecutor) client(cfg *model.HTTPConfig) *http.Client {
	base := utils.HttpClient
	if cfg.SkipVerifySSL {
		base = utils.HttpClientSkipTlsVerify
	}
	if cfg.FollowRedirects {
		return base
	}
	// shallow copy so the shared client keeps its default redirect policy
	c := *base
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &c
}
