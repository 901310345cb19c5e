// Package whatsapp sends outbound messages through the WhatsApp Cloud
// API. Grounded on internal/channels/instagram/client.go's Graph API
// client shape: a single POST per message, bearer-token auth, JSON
// body marshal/unmarshal with explicit error wrapping — adapted from
// Instagram's page-access-token query param to WhatsApp's
// Authorization header and phone-number-id-scoped messages endpoint.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultGraphAPIBase = "https://graph.facebook.com/v19.0"
	defaultHTTPTimeout  = 10 * time.Second
)

// Client sends messages via the WhatsApp Cloud API.
type Client struct {
	accessToken   string
	phoneNumberID string
	graphAPIBase  string
	httpClient    *http.Client
}

// NewClient creates a Cloud API client for the given phone number ID.
func NewClient(accessToken, phoneNumberID string) *Client {
	return &Client{
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		graphAPIBase:  defaultGraphAPIBase,
		httpClient:    &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// SetGraphAPIBase overrides the Graph API base URL (useful for testing).
func (c *Client) SetGraphAPIBase(base string) {
	c.graphAPIBase = base
}

type sendRequest struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             *textBody    `json:"text,omitempty"`
	Template         *templateRef `json:"template,omitempty"`
}

type textBody struct {
	Body string `json:"body"`
}

type templateRef struct {
	Name     string           `json:"name"`
	Language templateLanguage `json:"language"`
	Params   []templateParam  `json:"components,omitempty"`
}

type templateLanguage struct {
	Code string `json:"code"`
}

type templateParam struct {
	Type       string               `json:"type"`
	Parameters []templateParamValue `json:"parameters"`
}

type templateParamValue struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SendResponse is the Cloud API's message-send response envelope.
type SendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SendText sends a plain-text message to recipientE164.
func (c *Client) SendText(ctx context.Context, recipientE164, body string) (*SendResponse, error) {
	return c.send(ctx, sendRequest{
		MessagingProduct: "whatsapp",
		To:               recipientE164,
		Type:             "text",
		Text:             &textBody{Body: body},
	})
}

// SendTemplate sends an approved message template, used for sends
// outside the 24-hour customer-service window.
func (c *Client) SendTemplate(ctx context.Context, recipientE164, templateName, languageCode string, bodyParams []string) (*SendResponse, error) {
	values := make([]templateParamValue, 0, len(bodyParams))
	for _, p := range bodyParams {
		values = append(values, templateParamValue{Type: "text", Text: p})
	}
	req := sendRequest{
		MessagingProduct: "whatsapp",
		To:               recipientE164,
		Type:             "template",
		Template: &templateRef{
			Name:     templateName,
			Language: templateLanguage{Code: languageCode},
		},
	}
	if len(values) > 0 {
		req.Template.Params = []templateParam{{Type: "body", Parameters: values}}
	}
	return c.send(ctx, req)
}

func (c *Client) send(ctx context.Context, req sendRequest) (*SendResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.graphAPIBase, c.phoneNumberID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("whatsapp: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: read response: %w", err)
	}

	var sendResp SendResponse
	if err := json.Unmarshal(respBody, &sendResp); err != nil {
		return nil, fmt.Errorf("whatsapp: unmarshal response: %w", err)
	}

	if sendResp.Error != nil {
		return &sendResp, fmt.Errorf("whatsapp: API error %d: %s", sendResp.Error.Code, sendResp.Error.Message)
	}

	if resp.StatusCode != http.StatusOK {
		return &sendResp, fmt.Errorf("whatsapp: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return &sendResp, nil
}
