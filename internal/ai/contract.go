// Package ai bridges inbound customer messages to the external
// response-generation service and routes the results back out, either
// auto-sent or surfaced as operator suggestions.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HistoryEntry is one prior message in the conversation context.
type HistoryEntry struct {
	Direction string `json:"direction"`
	Content   string `json:"content"`
}

// CustomerProfile is the CRM view handed to the generator.
type CustomerProfile struct {
	Name   string `json:"name,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Status string `json:"status,omitempty"`
}

// TenantConfig carries per-tenant generation settings.
type TenantConfig struct {
	TenantID  string `json:"tenant_id"`
	SessionID string `json:"session_id"`
	Mode      string `json:"mode"`
}

// GenerateRequest is the payload sent to the response-generation service.
type GenerateRequest struct {
	Content         string           `json:"content"`
	History         []HistoryEntry   `json:"history,omitempty"`
	CustomerProfile *CustomerProfile `json:"customer_profile,omitempty"`
	TenantConfig    TenantConfig     `json:"tenant_config"`
}

// GenerateResponse is what the service returns. Text may be empty when the
// service declines to answer.
type GenerateResponse struct {
	Text              string   `json:"text,omitempty"`
	Media             []string `json:"media,omitempty"`
	Confidence        float64  `json:"confidence"`
	Intent            string   `json:"intent,omitempty"`
	Sentiment         string   `json:"sentiment,omitempty"`
	SuggestedProducts []string `json:"suggested_products,omitempty"`
}

// Generator produces a reply for an inbound message.
type Generator interface {
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
}

// HTTPGenerator calls a remote generation endpoint over JSON/HTTP.
type HTTPGenerator struct {
	endpoint string
	token    string
	client   *http.Client
}

func NewHTTPGenerator(endpoint, token string) *HTTPGenerator {
	return &HTTPGenerator{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *HTTPGenerator) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call generation service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("generation service returned %d: %s", resp.StatusCode, b)
	}

	var out GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}
