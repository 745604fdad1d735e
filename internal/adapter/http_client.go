// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mikhail Karpov

package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/mkarpov/go-list-sync/internal/config"
	"github.com/mkarpov/go-list-sync/models"
)

type httpServerAdapter struct {
	client *resty.Client

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// NewHTTPServerAdapter constructs a [ServerAdapter] speaking the reference
// HTTP protocol over resty.
func NewHTTPServerAdapter(cfg config.AgentAdapter) ServerAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}

	cli := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.RequestTimeout)

	return &httpServerAdapter{client: cli}
}

// SetToken installs a bearer token obtained out of band. The expiry claim is
// read without verifying the signature; verification is the server's job.
func (h *httpServerAdapter) SetToken(token string) {
	var expiresAt time.Time
	if parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{}); err == nil {
		if exp, err := parsed.Claims.GetExpirationTime(); err == nil && exp != nil {
			expiresAt = exp.Time
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.token = strings.TrimSpace(token)
	h.expiresAt = expiresAt
}

func (h *httpServerAdapter) Token() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token
}

func (h *httpServerAdapter) Session(ctx context.Context, clientID string) error {
	resp, err := h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"client_id": clientID}).
		Post("/api/session")
	if err != nil {
		return mapTransportError("session request", err)
	}
	if err = mapHTTPError(resp); err != nil {
		return err
	}

	var token models.Token
	if err = json.Unmarshal(resp.Body(), &token); err != nil {
		return fmt.Errorf("decode session response: %w", err)
	}
	if token.SignedString == "" {
		return errors.New("session response carried no token")
	}

	h.SetToken(token.SignedString)
	return nil
}

func (h *httpServerAdapter) Submit(ctx context.Context, req models.SubmitRequest) (models.SubmitResponse, error) {
	resp, err := h.authedRequest(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post("/api/sync/submit")
	if err != nil {
		return models.SubmitResponse{}, mapTransportError("submit request", err)
	}

	// 409 carries the conflict verdict in the body; it is an outcome, not
	// an error.
	if resp.StatusCode() == http.StatusConflict || resp.StatusCode() == http.StatusOK {
		var out models.SubmitResponse
		if err = json.Unmarshal(resp.Body(), &out); err != nil {
			return models.SubmitResponse{}, fmt.Errorf("decode submit response: %w", err)
		}
		return out, nil
	}

	return models.SubmitResponse{}, mapHTTPError(resp)
}

func (h *httpServerAdapter) Fetch(ctx context.Context, req models.FetchRequest) ([]models.Item, error) {
	resp, err := h.authedRequest(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post("/api/sync/fetch")
	if err != nil {
		return nil, mapTransportError("fetch request", err)
	}
	if err = mapHTTPError(resp); err != nil {
		return nil, err
	}

	var out models.FetchResponse
	if err = json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("decode fetch response: %w", err)
	}

	return out.Items, nil
}

func (h *httpServerAdapter) authedRequest(ctx context.Context) *resty.Request {
	req := h.client.R().SetContext(ctx)
	if token := h.Token(); token != "" {
		req.SetHeader("Authorization", "Bearer "+token)
	}
	return req
}
