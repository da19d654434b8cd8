package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"paygate/internal/logger"
	"paygate/internal/metrics"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Exchange is the outbound HTTP transport to a provider's endpoints. Every
// call goes through a per-provider circuit breaker and a rate limiter, with
// an explicit timeout; there are no automatic retries.
type Exchange struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewExchange(name string, timeout time.Duration) *Exchange {
	return &Exchange{
		client: &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		limiter: rate.NewLimiter(rate.Limit(20), 40),
	}
}

// PostForm submits URL-encoded form fields, as the provider's status
// endpoint expects, and returns the raw response body.
func (e *Exchange) PostForm(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return e.do(req)
}

// PostJSON submits a JSON body with the base64 signature in the Sign header,
// as the provider's verify and refund endpoints expect.
func (e *Exchange) PostJSON(ctx context.Context, endpoint, sign string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Sign", sign)

	return e.do(req)
}

func (e *Exchange) do(req *http.Request) ([]byte, error) {
	if err := e.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	timer := metrics.StartTimer()
	defer func() {
		logger.L().Debug("provider call",
			zap.String("endpoint", req.URL.Path),
			zap.Duration("duration", timer.Duration()),
		)
	}()

	out, err := e.breaker.Execute(func() (interface{}, error) {
		resp, err := e.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return nil, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(body))
		}
		return body, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	return out.([]byte), nil
}
