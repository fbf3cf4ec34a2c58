package backend

import (
	"context"
	"net/http"

	"golang.org/x/sync/errgroup"
)

const invalidCredentials = "Invalid credentials"

// GetSettings returns the assistant settings. The endpoint is public.
func (c *Client) GetSettings(ctx context.Context) (*Settings, error) {
	var out Settings
	if err := c.doJSON(ctx, request{
		op:     "get_settings",
		method: http.MethodGet,
		path:   "/api/admin/settings",
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AdminLogin authenticates an administrator. Every rejection reads "Invalid credentials".
func (c *Client) AdminLogin(ctx context.Context, username, password string) (*AdminLoginResponse, error) {
	var out AdminLoginResponse
	err := c.authenticate(ctx, request{
		op:     "admin_login",
		method: http.MethodPost,
		path:   "/api/admin/login",
		body:   AdminLoginRequest{Username: username, Password: password},
	}, &out, invalidCredentials, false)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateSettings replaces the assistant settings and returns what the API stored.
func (c *Client) UpdateSettings(ctx context.Context, settings Settings, token string) (*Settings, error) {
	var out Settings
	if err := c.doJSON(ctx, request{
		op:     "update_settings",
		method: http.MethodPost,
		path:   "/api/admin/settings",
		token:  token,
		body:   settings,
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListUsers returns every user with usage totals.
func (c *Client) ListUsers(ctx context.Context, token string) ([]UserStats, error) {
	var out UsersResponse
	if err := c.doJSON(ctx, request{
		op:     "admin_users",
		method: http.MethodGet,
		path:   "/api/admin/users",
		token:  token,
	}, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// GetStats fetches the aggregate token, cost, user and conversation totals.
func (c *Client) GetStats(ctx context.Context, token string) (*AppStats, error) {
	var out AppStats
	if err := c.doJSON(ctx, request{
		op:     "admin_stats",
		method: http.MethodGet,
		path:   "/api/admin/stats",
		token:  token,
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUsageOverTime returns daily usage, most recent first.
func (c *Client) GetUsageOverTime(ctx context.Context, token string) ([]UsagePoint, error) {
	var out UsageResponse
	if err := c.doJSON(ctx, request{
		op:     "admin_usage",
		method: http.MethodGet,
		path:   "/api/admin/usage-over-time",
		token:  token,
	}, &out); err != nil {
		return nil, err
	}
	return out.Usage, nil
}

// GetAdminAnalytics fetches users, stats and usage in parallel. A failed fetch
// leaves its section empty; the others are still returned along with the first error.
func (c *Client) GetAdminAnalytics(ctx context.Context, token string) (*Analytics, error) {
	var (
		g   errgroup.Group
		out Analytics
	)

	g.Go(func() error {
		users, err := c.ListUsers(ctx, token)
		if err != nil {
			return err
		}
		out.Users = users
		return nil
	})
	g.Go(func() error {
		stats, err := c.GetStats(ctx, token)
		if err != nil {
			return err
		}
		out.Stats = *stats
		return nil
	})
	g.Go(func() error {
		usage, err := c.GetUsageOverTime(ctx, token)
		if err != nil {
			return err
		}
		out.UsageOverTime = usage
		return nil
	})

	err := g.Wait()
	if err != nil {
		c.logger.Warn("analytics fetch incomplete", "error", err)
	}
	return &out, err
}
