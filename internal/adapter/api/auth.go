package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mmcdole/handy/internal/domain"
)

// Login exchanges credentials for a bearer token
func (c *Client) Login(ctx context.Context, creds domain.Credentials) (*domain.AuthResult, error) {
	return c.authenticate(ctx, "/auth/login", creds)
}

// Register creates a customer account and signs in with it
func (c *Client) Register(ctx context.Context, reg domain.Registration) (*domain.AuthResult, error) {
	return c.authenticate(ctx, "/auth/register", reg)
}

func (c *Client) authenticate(ctx context.Context, path string, payload any) (*domain.AuthResult, error) {
	body, err := c.do(ctx, request{method: http.MethodPost, path: path, body: payload, public: true})
	if err != nil {
		return nil, err
	}
	var resp AuthResponse
	if err := decode(body, &resp); err != nil {
		return nil, err
	}
	token := resp.Token
	if token == "" {
		token = resp.AccessToken
	}
	if token == "" {
		return nil, errors.New("auth response carried no token")
	}
	c.logger.Info("authenticated", "user", resp.User.ID, "role", resp.User.Role)
	return &domain.AuthResult{Token: token, User: resp.User}, nil
}

// Me returns the account behind the current token. The reply is either
// the user object or {"user": {...}}.
func (c *Client) Me(ctx context.Context) (*domain.User, error) {
	body, err := c.do(ctx, request{method: http.MethodGet, path: "/auth/me"})
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := decode(body, &raw); err != nil {
		return nil, err
	}
	var env userEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.User != nil {
		return env.User, nil
	}
	var u domain.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &u, nil
}
