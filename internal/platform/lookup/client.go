// Package lookup fetches patient and doctor profiles from the services that
// own them. The caller's forwarded identity travels with every request, so
// the owning service applies its own access rules to the lookup.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/middleware"
)

// Lookup outcomes reported to the Observer.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeDenied   = "denied"
	OutcomeError    = "error"
)

// Profile is the part of a patient or doctor profile other services use.
// Email is empty when the owning service only returned a public view.
type Profile struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// DisplayName returns the name to address the profile owner by.
func (p Profile) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Observer receives the outcome and duration of every lookup.
type Observer func(kind, outcome string, d time.Duration)

// Config configures a Client.
type Config struct {
	// BaseURL of the owning service, e.g. http://patient-service:8080.
	BaseURL string
	// Resource is the collection path segment, e.g. "patients".
	Resource string
	// Kind labels errors and metrics, e.g. auth.KindPatient.
	Kind       string
	Timeout    time.Duration
	Asserter   *auth.Asserter
	HTTPClient *http.Client
	Observe    Observer
}

// Client reads profiles of one kind over HTTP. It is safe for concurrent use.
type Client struct {
	base     *url.URL
	resource string
	kind     string
	timeout  time.Duration
	asserter *auth.Asserter
	http     *http.Client
	observe  Observer
}

// NewClient validates cfg and returns a client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("lookup %s: base url is required", cfg.Kind)
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("lookup %s: invalid base url %q", cfg.Kind, cfg.BaseURL)
	}
	if cfg.Resource == "" {
		return nil, fmt.Errorf("lookup %s: resource is required", cfg.Kind)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		base:     base,
		resource: cfg.Resource,
		kind:     cfg.Kind,
		timeout:  cfg.Timeout,
		asserter: cfg.Asserter,
		http:     httpClient,
		observe:  cfg.Observe,
	}, nil
}

// Fetch returns the profile with the given id as seen by the identity on
// ctx. 401 and 403 answers become fine-gate denials, 404 becomes
// auth.ErrOwnerNotFound, and anything else that is not a 200 becomes
// auth.ErrDependencyUnavailable. Nothing is retried.
func (c *Client) Fetch(ctx context.Context, id string) (Profile, error) {
	start := time.Now()
	p, outcome, err := c.fetch(ctx, id)
	if c.observe != nil {
		c.observe(c.kind, outcome, time.Since(start))
	}
	return p, err
}

// ResolveOwner implements auth.OwnerResolver.
func (c *Client) ResolveOwner(ctx context.Context, id string) (string, error) {
	p, err := c.Fetch(ctx, id)
	if err != nil {
		return "", err
	}
	return p.Email, nil
}

func (c *Client) fetch(ctx context.Context, id string) (Profile, string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	u := c.base.JoinPath("api", c.resource, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Profile{}, OutcomeError, auth.DependencyError(c.kind, err)
	}
	req.Header.Set("Accept", "application/json")
	if rid := middleware.RequestIDFromContext(ctx); rid != "" {
		req.Header.Set(middleware.RequestIDHeader, rid)
	}
	if p, ok := auth.IdentityFromContext(ctx).Principal(); ok {
		if err := auth.ForwardIdentity(req.Header, p, c.asserter); err != nil {
			return Profile{}, OutcomeError, auth.DependencyError(c.kind, err)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Profile{}, OutcomeError, auth.DependencyError(c.kind, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var p Profile
		if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
			return Profile{}, OutcomeError, auth.DependencyError(c.kind, fmt.Errorf("decoding response: %w", err))
		}
		return p, OutcomeOK, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return Profile{}, OutcomeDenied, auth.Forbidden(fmt.Sprintf("Access Denied: %s %s is not visible to you.", c.kind, id))
	case http.StatusNotFound:
		return Profile{}, OutcomeNotFound, fmt.Errorf("%w: %s %s", auth.ErrOwnerNotFound, c.kind, id)
	}
	return Profile{}, OutcomeError, auth.DependencyError(c.kind, errors.New(resp.Status))
}
