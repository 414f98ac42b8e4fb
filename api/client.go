package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MrEthical07/rolecalc/internal/transport"
	"github.com/MrEthical07/rolecalc/permission"
)

// ErrMissingToken is returned when a call is made without a token.
var ErrMissingToken = errors.New("missing token")

// Config configures a [Client]. AuthScheme, when set, prefixes the token in
// the Authorization header ("Bearer"); the raw token is sent otherwise.
type Config struct {
	Endpoint   string
	AuthScheme string
}

// Client calls the calculation and admin service.
type Client struct {
	endpoint  string
	scheme    string
	transport *transport.Client
}

// NewClient returns a Client for cfg.Endpoint. A trailing slash is added when
// missing.
func NewClient(cfg Config, t *transport.Client) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("api endpoint required")
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	if t == nil {
		t = transport.New(nil, nil)
	}
	return &Client{
		endpoint:  endpoint,
		scheme:    strings.TrimSpace(cfg.AuthScheme),
		transport: t,
	}, nil
}

// Calculate submits one calculation.
func (c *Client) Calculate(ctx context.Context, token string, req CalculateRequest) (*CalculateResponse, error) {
	var out CalculateResponse
	if err := c.do(ctx, token, http.MethodPost, "calculate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRoles returns default roles followed by custom ones.
func (c *Client) ListRoles(ctx context.Context, token string) ([]RoleRecord, error) {
	var out rolesResponse
	if err := c.do(ctx, token, http.MethodGet, "admin/roles", nil, &out); err != nil {
		return nil, err
	}
	return out.Roles, nil
}

// CreateRole creates or replaces a custom role.
func (c *Client) CreateRole(ctx context.Context, token, name string, perms []permission.Operation) (string, error) {
	var out messageResponse
	err := c.do(ctx, token, http.MethodPost, "admin/roles", roleRequest{RoleName: name, Permissions: perms}, &out)
	return out.Message, err
}

// DeleteRole deletes a custom role.
func (c *Client) DeleteRole(ctx context.Context, token, name string) (string, error) {
	var out messageResponse
	err := c.do(ctx, token, http.MethodDelete, "admin/roles", roleRequest{RoleName: name}, &out)
	return out.Message, err
}

// ListUsers returns every user.
func (c *Client) ListUsers(ctx context.Context, token string) ([]UserRecord, error) {
	var out usersResponse
	if err := c.do(ctx, token, http.MethodGet, "admin/users", nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// SetUserRole replaces the user's role assignment.
func (c *Client) SetUserRole(ctx context.Context, token, username, role string) (string, error) {
	var out messageResponse
	err := c.do(ctx, token, http.MethodPost, "admin/users/role", userRoleRequest{Username: username, Role: role}, &out)
	return out.Message, err
}

// SetUserBlocked disables (block=true) or enables a user.
func (c *Client) SetUserBlocked(ctx context.Context, token, username string, block bool) (string, error) {
	var out messageResponse
	err := c.do(ctx, token, http.MethodPost, "admin/users/block", blockRequest{Username: username, Block: block}, &out)
	return out.Message, err
}

// DeleteUser removes a user.
func (c *Client) DeleteUser(ctx context.Context, token, username string) (string, error) {
	var out messageResponse
	err := c.do(ctx, token, http.MethodDelete, "admin/users", usernameRequest{Username: username}, &out)
	return out.Message, err
}

// ListHistory returns global calculation history.
func (c *Client) ListHistory(ctx context.Context, token string) ([]HistoryEntry, error) {
	var out historyResponse
	if err := c.do(ctx, token, http.MethodGet, "admin/history", nil, &out); err != nil {
		return nil, err
	}
	return out.History, nil
}

// DeleteHistory removes one history entry.
func (c *Client) DeleteHistory(ctx context.Context, token, userID, timestamp string) (string, error) {
	var out messageResponse
	err := c.do(ctx, token, http.MethodDelete, "admin/history", historyKey{UserID: userID, Timestamp: timestamp}, &out)
	return out.Message, err
}

func (c *Client) do(ctx context.Context, token, method, path string, body, out any) error {
	if token == "" {
		return ErrMissingToken
	}
	auth := token
	if c.scheme != "" {
		auth = c.scheme + " " + token
	}

	resp, err := c.transport.Do(ctx, transport.Request{
		Method: method,
		URL:    c.endpoint + path,
		Header: http.Header{"Authorization": []string{auth}},
		Body:   body,
	})
	if err != nil {
		return err
	}

	if !resp.OK() {
		var e ErrorBody
		_ = resp.DecodeJSON(&e)
		return &StatusError{Status: resp.Status, Message: e.Error, Roles: e.UserRoles}
	}
	if out == nil {
		return nil
	}
	if err := resp.DecodeJSON(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
