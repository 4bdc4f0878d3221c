package lastfm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shkh/lastfm-go/lastfm"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/llehouerou/scrobblesync/internal/logging"
	"github.com/llehouerou/scrobblesync/internal/metrics"
)

const (
	DefaultBaseURL = "https://ws.audioscrobbler.com/2.0/"
	DefaultAuthURL = "https://www.last.fm/api/auth/"
	DefaultTimeout = 30 * time.Second

	// BatchLimit is the maximum number of tracks per track.scrobble call.
	BatchLimit = 50

	maxResponseBytes = 4 << 20
	breakerName      = "lastfm-api"
)

// Config configures a Client.
type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string // DefaultBaseURL when empty
	AuthURL   string // DefaultAuthURL when empty
	Timeout   time.Duration

	// RequestsPerSecond throttles outgoing calls. Zero disables throttling.
	RequestsPerSecond float64

	// HTTPClient overrides the client built from Timeout. Tests use it.
	HTTPClient *http.Client
}

// Client talks to the Last.fm web service. Signed write calls go through
// its own transport; the desktop token flow and profile lookups use
// lastfm-go.
type Client struct {
	apiKey    string
	apiSecret string
	baseURL   string
	authURL   string

	http    *http.Client
	api     *lastfm.Api
	breaker *gobreaker.CircuitBreaker[[]byte]
	limiter *rate.Limiter
	log     zerolog.Logger

	mu      sync.RWMutex
	session Session
}

// New creates a client with the given configuration.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	c := &Client{
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		baseURL:   cfg.BaseURL,
		authURL:   cfg.AuthURL,
		http:      httpClient,
		api:       lastfm.New(cfg.APIKey, cfg.APISecret),
		log:       logging.With().Str("component", "lastfm").Logger(),
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Rejections by Last.fm itself say nothing about endpoint health.
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var te *TransportError
			return errors.As(err, &te) && te.StatusCode > 0 && te.StatusCode < 500
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
	return c
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// SetSession installs an authenticated session.
func (c *Client) SetSession(s Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
	c.api.SetSession(s.Key)
}

// ClearSession forgets the current session.
func (c *Client) ClearSession() {
	c.SetSession(Session{})
}

// Session returns the current session.
func (c *Client) Session() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// IsAuthenticated returns true if a session key is set.
func (c *Client) IsAuthenticated() bool {
	return c.Session().Valid()
}

// Username returns the name of the signed-in user, or "".
func (c *Client) Username() string {
	return c.Session().Name
}

// get performs a signed GET call and returns the raw 200 body.
func (c *Client) get(ctx context.Context, params Params) ([]byte, error) {
	params.Add("api_sig", Sign(params, c.apiSecret))
	params.Add("format", "json")
	method, _ := params.Get("method")

	return c.do(ctx, method, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, http.NoBody)
		if err != nil {
			return nil, err
		}
		req.URL.RawQuery = EncodeForm(params)
		return req, nil
	})
}

// post performs a signed form POST call and returns the raw 200 body.
func (c *Client) post(ctx context.Context, params Params) ([]byte, error) {
	params.Add("api_sig", Sign(params, c.apiSecret))
	params.Add("format", "json")
	method, _ := params.Get("method")
	body := EncodeForm(params)

	return c.do(ctx, method, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
}

// do sends the request built by build through the rate limiter and the
// circuit breaker. Every failure comes back as a *TransportError.
func (c *Client) do(ctx context.Context, method string, build func() (*http.Request, error)) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Op: method, Err: err}
		}
	}

	start := time.Now()
	body, err := c.breaker.Execute(func() ([]byte, error) {
		req, err := build()
		if err != nil {
			return nil, &TransportError{Op: method, Err: fmt.Errorf("%w: %w", ErrInvalidURL, err)}
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, &TransportError{Op: method, Err: err}
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, &TransportError{Op: method, StatusCode: resp.StatusCode, Err: err}
		}
		if resp.StatusCode != http.StatusOK {
			var cause error = fmt.Errorf("unexpected status %s", resp.Status)
			if apiErr := decodeAPIError(data); apiErr != nil {
				cause = apiErr
			}
			return nil, &TransportError{Op: method, StatusCode: resp.StatusCode, Err: cause}
		}
		return data, nil
	})
	metrics.LastfmRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.LastfmRequests.WithLabelValues(method, "error").Inc()
		var te *TransportError
		if !errors.As(err, &te) {
			// breaker rejection
			err = &TransportError{Op: method, Err: err}
		}
		c.log.Debug().Err(err).Str("method", method).Msg("request failed")
		return nil, err
	}
	metrics.LastfmRequests.WithLabelValues(method, "ok").Inc()
	return body, nil
}
