package github

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/google/go-github/v69/github"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github-summary/internal/report"
)

// Config holds the GitHub API client settings.
type Config struct {
	Token               string
	BaseURL             string // optional, for GitHub Enterprise and tests
	HighVolumeThreshold int
	RateLimitMargin     int
	MaxRetries          int
}

// Client fetches pull request activity for one or more repositories. It
// is safe for concurrent use; the rate budget is the shared constraint.
type Client struct {
	gh     *github.Client
	budget *Budget
	log    *zap.Logger

	highVolumeThreshold int

	mu    sync.Mutex
	users map[string]report.Identity
}

// NewClient wires an authenticated go-github client over a retrying
// transport.
func NewClient(ctx context.Context, cfg Config, log *zap.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("github token required")
	}

	retry := retryablehttp.NewClient()
	retry.RetryMax = cfg.MaxRetries
	retry.Logger = nil

	ctx = context.WithValue(ctx, oauth2.HTTPClient, retry.StandardClient())
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	gh := github.NewClient(oauth2.NewClient(ctx, ts))

	if cfg.BaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parsing github base URL: %w", err)
		}
		gh.BaseURL = base
	}

	threshold := cfg.HighVolumeThreshold
	if threshold <= 0 {
		threshold = 700
	}

	return &Client{
		gh:                  gh,
		budget:              NewBudget(cfg.RateLimitMargin),
		log:                 log,
		highVolumeThreshold: threshold,
		users:               make(map[string]report.Identity),
	}, nil
}

// paced runs one API call under the rate budget. The budget observes the
// rate snapshot of every response; when the API throttles anyway, the
// call waits out the reset and retries once.
func (c *Client) paced(ctx context.Context, call func() (*github.Response, error)) error {
	if err := c.budget.Wait(ctx); err != nil {
		return err
	}
	resp, err := call()
	if resp != nil {
		c.budget.Observe(resp.Rate)
	}

	var limitErr *github.RateLimitError
	if errors.As(err, &limitErr) {
		c.log.Warn("rate limit hit, waiting for reset")
		c.budget.Exhaust(limitErr.Rate)
		if werr := c.budget.Wait(ctx); werr != nil {
			return werr
		}
		resp, err = call()
		if resp != nil {
			c.budget.Observe(resp.Rate)
		}
	}
	return err
}

// userInfo resolves a login to its display name and profile URL, cached
// for the run. Lookup failures fall back to the login.
func (c *Client) userInfo(ctx context.Context, login string) report.Identity {
	c.mu.Lock()
	if id, ok := c.users[login]; ok {
		c.mu.Unlock()
		return id
	}
	c.mu.Unlock()

	id := report.Identity{
		Login: login,
		Name:  login,
		URL:   "https://github.com/" + login,
	}
	if _, known := knownBots[login]; !known {
		var user *github.User
		err := c.paced(ctx, func() (*github.Response, error) {
			var resp *github.Response
			var err error
			user, resp, err = c.gh.Users.Get(ctx, login)
			return resp, err
		})
		if err != nil {
			c.log.Warn("failed to fetch user info", zap.String("login", login), zap.Error(err))
		} else {
			if name := user.GetName(); name != "" {
				id.Name = name
			}
			if u := user.GetHTMLURL(); u != "" {
				id.URL = u
			}
		}
	}

	c.mu.Lock()
	c.users[login] = id
	c.mu.Unlock()
	return id
}

func splitRepo(repo string) (owner, name string, err error) {
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository %q must be in owner/name form", repo)
	}
	return parts[0], parts[1], nil
}
