// Package connector implements the HTTP side of the TETR.IO API: the
// bootstrap calls made before a ribbon session is opened and the friend
// accept call made while serving it.
package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/buger/jsonparser"
	"github.com/rs/zerolog/log"

	"github.com/lfbot-project/lfbot/internal/config"
	"github.com/lfbot-project/lfbot/internal/protocol"
)

const (
	environmentPath = "/api/server/environment"
	mePath          = "/api/users/me"
	ribbonPath      = "/api/server/ribbon"
	friendPath      = "/api/relationships/friend"

	botRole         = "bot"
	maxResponseSize = 4 << 20
)

// ErrNotBot is returned when the token belongs to a non-bot account.
var ErrNotBot = errors.New("this is not a bot account")

// BootstrapError records which bootstrap step failed.
type BootstrapError struct {
	Step string
	Err  error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("bootstrap %s: %v", e.Step, e.Err)
}

func (e *BootstrapError) Unwrap() error {
	return e.Err
}

// Bootstrap is everything needed to open a ribbon session.
type Bootstrap struct {
	Signature protocol.Signature
	User      protocol.User
	Endpoint  string
}

// APIError is an error reported in a response body.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
}

// TetraConnector talks to the TETR.IO HTTP API with the bot's bearer token.
type TetraConnector struct {
	baseURL   string
	userAgent string
	token     string
	client    *http.Client
}

// NewTetraConnector creates a connector for the configured API.
func NewTetraConnector(cfg *config.Config, token string) *TetraConnector {
	ribbon := cfg.GetRibbon()

	baseURL := strings.TrimRight(ribbon.APIBaseURL, "/")
	if baseURL == "" {
		baseURL = config.DefaultAPIBaseURL
	}

	return &TetraConnector{
		baseURL:   baseURL,
		userAgent: ribbon.UserAgent,
		token:     token,
		client: &http.Client{
			Timeout: ribbon.HTTPTimeout(),
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
	}
}

// Bootstrap fetches the server signature, checks that the token belongs to
// a bot account, and asks for a ribbon endpoint.
func (c *TetraConnector) Bootstrap(ctx context.Context) (*Bootstrap, error) {
	sig, err := c.Environment(ctx)
	if err != nil {
		return nil, &BootstrapError{Step: "environment", Err: err}
	}

	user, err := c.Me(ctx)
	if err != nil {
		return nil, &BootstrapError{Step: "user", Err: err}
	}
	if user.Role != botRole {
		return nil, &BootstrapError{
			Step: "user",
			Err:  fmt.Errorf("%w: %s has role %q", ErrNotBot, user.Username, user.Role),
		}
	}

	endpoint, err := c.RibbonEndpoint(ctx)
	if err != nil {
		return nil, &BootstrapError{Step: "ribbon", Err: err}
	}

	log.Info().
		Str("user", user.Username).
		Str("signature_version", sig.Version()).
		Str("endpoint", endpoint).
		Msg("bootstrap complete")

	return &Bootstrap{Signature: sig, User: user, Endpoint: endpoint}, nil
}

// Environment returns the server signature blob.
func (c *TetraConnector) Environment(ctx context.Context) (protocol.Signature, error) {
	body, err := c.do(ctx, http.MethodGet, environmentPath, nil)
	if err != nil {
		return protocol.Signature{}, err
	}

	raw, dataType, _, err := jsonparser.Get(body, "signature")
	if err != nil {
		return protocol.Signature{}, fmt.Errorf("response has no signature: %w", err)
	}
	if dataType != jsonparser.Object {
		return protocol.Signature{}, fmt.Errorf("signature is %s, expected object", dataType)
	}
	return protocol.NewSignature(raw), nil
}

// Me returns the account the token belongs to.
func (c *TetraConnector) Me(ctx context.Context) (protocol.User, error) {
	body, err := c.do(ctx, http.MethodGet, mePath, nil)
	if err != nil {
		return protocol.User{}, err
	}

	var resp struct {
		User protocol.User `json:"user"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return protocol.User{}, fmt.Errorf("failed to parse user: %w", err)
	}
	if resp.User.ID == "" {
		return protocol.User{}, fmt.Errorf("response has no user id")
	}
	return resp.User, nil
}

// RibbonEndpoint returns the path of the ribbon worker to connect to.
func (c *TetraConnector) RibbonEndpoint(ctx context.Context) (string, error) {
	body, err := c.do(ctx, http.MethodGet, ribbonPath, nil)
	if err != nil {
		return "", err
	}

	endpoint, err := jsonparser.GetString(body, "endpoint")
	if err != nil || endpoint == "" {
		return "", fmt.Errorf("response has no endpoint")
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return endpoint, nil
}

// AcceptFriend friends userID back.
func (c *TetraConnector) AcceptFriend(ctx context.Context, userID string) error {
	payload, err := json.Marshal(map[string]string{"user": userID})
	if err != nil {
		return err
	}
	if _, err := c.do(ctx, http.MethodPost, friendPath, payload); err != nil {
		return fmt.Errorf("failed to friend %s: %w", userID, err)
	}
	return nil
}

// do performs one API call and returns the body of a successful response.
func (c *TetraConnector) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", path, err)
	}

	log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Int("size", len(body)).
		Msg("api call")

	if apiErr := checkResponse(resp.StatusCode, body); apiErr != nil {
		return nil, apiErr
	}
	return body, nil
}

// checkResponse turns a non-2xx status or a {"success": false} body into
// an APIError.
func checkResponse(status int, body []byte) error {
	success, err := jsonparser.GetBoolean(body, "success")
	failed := err == nil && !success

	if status >= 200 && status < 300 && !failed {
		return nil
	}

	msg, err := jsonparser.GetString(body, "error", "msg")
	if err != nil {
		msg, err = jsonparser.GetString(body, "error")
	}
	if err != nil || msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{Status: status, Message: msg}
}
