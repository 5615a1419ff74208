package job

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmylchreest/commercestack/internal/version"
	"github.com/jmylchreest/commercestack/pkg/httpclient"
)

// WebhookPayload is the callback body, spec §6: "Webhook POST
// {jobId,status,result?,error?}".
type WebhookPayload struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// SignatureHeader carries the HMAC-SHA256 hex digest of the request
// body, keyed by the per-deployment webhook secret.
const SignatureHeader = "X-Commercestack-Signature"

// Notifier delivers job completion/failure callbacks (spec §6:
// "3x retry exponential backoff, HMAC-signed, 2xx = delivered else
// retry"). Retry/backoff is delegated to pkg/httpclient.Client, the
// same resilient client processors use for provider calls.
type Notifier struct {
	client *httpclient.Client
	secret string
	logger *slog.Logger
}

// NewNotifier returns a Notifier signing bodies with secret (may be
// empty to disable signing, e.g. local development). Its circuit
// breaker is drawn from httpclient.DefaultManager under the name
// "webhook", so a callback endpoint that's down shows up on the
// admin health endpoint next to every provider breaker.
func NewNotifier(secret string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := httpclient.DefaultConfig()
	cfg.RetryAttempts = 3
	cfg.RetryDelay = 5 * time.Second
	cfg.Logger = logger
	cfg.UserAgent = version.UserAgent()
	return &Notifier{
		client: httpclient.NewWithBreaker(cfg, httpclient.DefaultManager.GetOrCreate("webhook")),
		secret: secret,
		logger: logger,
	}
}

// Deliver POSTs payload to callbackURL. A nil error means the
// endpoint returned 2xx; httpclient.Client has already exhausted its
// retry budget on transient failures by the time this returns.
func (n *Notifier) Deliver(ctx context.Context, callbackURL string, payload WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("job: marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("job: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.secret != "" {
		req.Header.Set(SignatureHeader, sign(n.secret, body))
	}

	resp, err := n.client.DoWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("job: deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpclient.ClassifyStatusError(resp.StatusCode,
			fmt.Errorf("job: webhook %s returned status %d", callbackURL, resp.StatusCode))
	}
	return nil
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
