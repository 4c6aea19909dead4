package resilience

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// Predefined errors for resilient operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker rejects a call.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// ClientConfig holds configuration for the resilient HTTP client.
type ClientConfig struct {
	// Name identifies the provider in the breaker and the registry.
	Name string

	// Timeout bounds each HTTP attempt. Default: 10 seconds
	Timeout time.Duration

	// MaxRetries is the number of additional attempts on 5xx and network
	// errors. Zero disables retrying; callers that own their retry policy
	// rely on that.
	MaxRetries uint64

	// InitialInterval and MaxInterval shape the exponential backoff.
	// Defaults: 100ms and 2 seconds
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// CircuitBreaker overrides DefaultCircuitBreakerConfig when set.
	CircuitBreaker *CircuitBreakerConfig

	// Registry, when set, receives success and failure records and the
	// client registers itself under Name.
	Registry *Registry

	// Transport overrides the HTTP transport (tests).
	Transport http.RoundTripper
}

// Client is an HTTP client guarded by a circuit breaker.
type Client struct {
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker[*http.Response]
	config         ClientConfig
}

// NewClient creates a new resilient HTTP client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 2 * time.Second
	}

	cbConfig := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.CircuitBreaker != nil {
		cbConfig = *cfg.CircuitBreaker
		if cbConfig.Name == "" {
			cbConfig.Name = cfg.Name
		}
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		circuitBreaker: NewCircuitBreaker[*http.Response](cbConfig), //nolint:bodyclose // type param, not response
		config:         cfg,
	}

	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, c)
	}
	return c
}

// Name returns the provider name the client was created with.
func (c *Client) Name() string {
	return c.config.Name
}

// Do executes req through the circuit breaker. 5xx responses count as
// breaker failures but are still returned to the caller so the response
// body can be inspected; only transport errors and an open breaker produce
// a nil response.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	var bo backoff.BackOff = &backoff.StopBackOff{}
	if c.config.MaxRetries > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = c.config.InitialInterval
		exp.MaxInterval = c.config.MaxInterval
		exp.MaxElapsedTime = 0
		bo = backoff.WithMaxRetries(exp, c.config.MaxRetries)
	}

	var lastResp *http.Response

	operation := func() error {
		if lastResp != nil {
			_ = lastResp.Body.Close()
			lastResp = nil
		}

		resp, err := c.circuitBreaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // caller closes
			r, err := c.httpClient.Do(cloneRequest(ctx, req))
			if err != nil {
				return nil, err
			}
			if r.StatusCode >= 500 {
				return r, &ServerError{StatusCode: r.StatusCode}
			}
			return r, nil
		})

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(ErrCircuitOpen)
		}
		if resp != nil {
			lastResp = resp
		}
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(bo, ctx))
	c.record(err)

	if lastResp != nil {
		// Exhausted 5xx: hand the response back for classification.
		return lastResp, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, ErrCircuitOpen
}

func (c *Client) record(err error) {
	if c.config.Registry == nil {
		return
	}
	if err != nil {
		c.config.Registry.RecordFailure(c.config.Name, err)
		return
	}
	c.config.Registry.RecordSuccess(c.config.Name)
}

// cloneRequest copies req for another attempt, rewinding the body.
func cloneRequest(ctx context.Context, req *http.Request) *http.Request {
	clone := req.Clone(ctx)
	if req.GetBody != nil {
		if body, err := req.GetBody(); err == nil {
			clone.Body = body
		}
	}
	return clone
}

// ServerError represents an HTTP 5xx server error.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}

// CircuitBreakerState returns the current state of the circuit breaker.
func (c *Client) CircuitBreakerState() gobreaker.State {
	return c.circuitBreaker.State()
}

// CircuitBreakerCounts returns the current counts of the circuit breaker.
func (c *Client) CircuitBreakerCounts() gobreaker.Counts {
	return c.circuitBreaker.Counts()
}
