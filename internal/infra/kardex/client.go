// Package kardex provides a client for the remote KARDEX REST API, the
// authority for identity and account state. The gateway only mirrors its
// decisions; every mutating call is re-checked server-side.
package kardex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/kardexsoft/kardex-gateway/internal/domain"
	"github.com/kardexsoft/kardex-gateway/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("kardex")

// Client wraps HTTP calls to the KARDEX API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cb         *gobreaker.CircuitBreaker
	bulkhead   *resilience.Bulkhead
	cfg        resilience.Config
	logger     *zap.Logger
}

// NewClient creates a KARDEX API client.
func NewClient(httpClient *http.Client, baseURL, apiKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		cb:         cb,
		bulkhead:   resilience.NewBulkhead(cfg.MaxConcurrency),
		cfg:        cfg,
		logger:     logger,
	}
}

// doRequest executes an authenticated request against the KARDEX API.
// A 404 comes back as (nil, nil) so callers can distinguish "absent"
// from transport failure.
func (c *Client) doRequest(ctx context.Context, method, path, token string, payload any) ([]byte, error) {
	if err := c.bulkhead.Acquire(ctx); err != nil {
		return nil, err
	}
	defer c.bulkhead.Release()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	url := fmt.Sprintf("%s/api/%s", c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("kardex: request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &domain.ErrUnauthorized{Message: "Credenciales inválidas"}
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		c.logger.Warn("kardex: non-2xx response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("kardex returned status %d: %s", resp.StatusCode, string(data))
	}

	c.logger.Debug("kardex: request OK",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)

	return data, nil
}

// execute runs fn behind the circuit breaker with retry.
func (c *Client) execute(ctx context.Context, fn func() error) error {
	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, fn)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return &domain.ErrCircuitOpen{Service: "kardex"}
	}
	return err
}

// loginResponse maps the API's login payload.
type loginResponse struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

// Login exchanges credentials for a bearer token and identity record.
func (c *Client) Login(ctx context.Context, username, password string) (string, *domain.User, error) {
	ctx, span := tracer.Start(ctx, "Kardex.Login")
	defer span.End()
	span.SetAttributes(attribute.String("user.name", username))

	var out loginResponse

	// Credentials are never retried: a rejection is authoritative and a
	// retry would look like a brute-force attempt upstream.
	body, err := c.doRequest(ctx, http.MethodPost, "auth/login", "", map[string]string{
		"usuario": username,
		"clave":   password,
	})
	if err != nil {
		return "", nil, err
	}
	if body == nil {
		return "", nil, &domain.ErrUnauthorized{Message: "Credenciales inválidas"}
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", nil, &domain.ErrExternalService{Service: "kardex/login", Err: err}
	}
	if out.Token == "" || out.User == nil {
		return "", nil, &domain.ErrExternalService{Service: "kardex/login", Err: fmt.Errorf("incomplete login payload")}
	}

	return out.Token, out.User, nil
}

// WhoAmI re-validates a token and returns the current identity record.
func (c *Client) WhoAmI(ctx context.Context, token string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Kardex.WhoAmI")
	defer span.End()

	var user *domain.User

	err := c.execute(ctx, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, "auth/perfil", token, nil)
		if err != nil {
			return err
		}
		if body == nil {
			return &domain.ErrNotFound{Resource: "perfil", ID: "me"}
		}

		var u domain.User
		if err := json.Unmarshal(body, &u); err != nil {
			return fmt.Errorf("decode profile: %w", err)
		}
		user = &u
		return nil
	})
	if err != nil {
		return nil, wrapExternal("kardex/perfil", err)
	}

	return user, nil
}

// Logout revokes the token upstream.
func (c *Client) Logout(ctx context.Context, token string) error {
	ctx, span := tracer.Start(ctx, "Kardex.Logout")
	defer span.End()

	_, err := c.doRequest(ctx, http.MethodPost, "auth/salir", token, nil)
	if err != nil {
		return wrapExternal("kardex/salir", err)
	}
	return nil
}

// AccountStatus looks up whether the account is still active.
func (c *Client) AccountStatus(ctx context.Context, token string, userID int64) (*domain.AccountStatus, error) {
	ctx, span := tracer.Start(ctx, "Kardex.AccountStatus")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID))

	var status *domain.AccountStatus

	err := c.execute(ctx, func() error {
		path := fmt.Sprintf("clientes/%d/estado", userID)
		body, err := c.doRequest(ctx, http.MethodGet, path, token, nil)
		if err != nil {
			return err
		}
		if body == nil {
			return &domain.ErrNotFound{Resource: "estado", ID: fmt.Sprint(userID)}
		}

		var st domain.AccountStatus
		if err := json.Unmarshal(body, &st); err != nil {
			return fmt.Errorf("decode account status: %w", err)
		}
		status = &st
		return nil
	})
	if err != nil {
		return nil, wrapExternal("kardex/estado", err)
	}

	return status, nil
}

// wrapExternal preserves typed domain errors and wraps the rest as an
// external-service failure.
func wrapExternal(service string, err error) error {
	switch err.(type) {
	case *domain.ErrUnauthorized, *domain.ErrNotFound, *domain.ErrCircuitOpen:
		return err
	}
	return &domain.ErrExternalService{Service: service, Err: err}
}
