package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"guestflow/internal/types"
)

// whatsappAPIBase is the default Meta Graph API base URL.
// Overridable in tests via WhatsAppClientConfig.BaseURL.
const whatsappAPIBase = "https://graph.facebook.com/v19.0"

// WhatsAppClientConfig holds the configuration for creating a WhatsAppClient.
type WhatsAppClientConfig struct {
	AccessToken   string
	PhoneNumberID string
	BaseURL       string // Override for testing; defaults to whatsappAPIBase
	Logger        *slog.Logger
}

// WhatsAppClient implements Messenger by making direct HTTP calls to the Meta
// Graph API through BaseClient, routing all requests through the resilience
// infrastructure (circuit breaker, retries, error mapping).
type WhatsAppClient struct {
	base          *BaseClient
	accessToken   string
	phoneNumberID string
	baseURL       string
	logger        *slog.Logger
}

var _ Messenger = (*WhatsAppClient)(nil)

// NewWhatsAppClient creates a new WhatsAppClient.
func NewWhatsAppClient(httpClient *http.Client, cfg WhatsAppClientConfig) *WhatsAppClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = whatsappAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"whatsapp",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"GuestFlow/1.0",
		WithUpstreamErrorCode(types.ErrCodeUpstreamWhatsApp),
	)

	return &WhatsAppClient{
		base:          base,
		accessToken:   cfg.AccessToken,
		phoneNumberID: cfg.PhoneNumberID,
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		logger:        logger,
	}
}

// NewWhatsAppClientWithBase creates a WhatsAppClient with a pre-configured
// BaseClient. This is useful for testing.
func NewWhatsAppClientWithBase(base *BaseClient, cfg WhatsAppClientConfig) *WhatsAppClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = whatsappAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &WhatsAppClient{
		base:          base,
		accessToken:   cfg.AccessToken,
		phoneNumberID: cfg.PhoneNumberID,
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		logger:        logger,
	}
}

// waMessageRequest is the Graph API send-message payload. Exactly one of
// Text/Template is set, matching the Type field.
type waMessageRequest struct {
	MessagingProduct string      `json:"messaging_product"`
	To               string      `json:"to"`
	Type             string      `json:"type"`
	Text             *waText     `json:"text,omitempty"`
	Template         *waTemplate `json:"template,omitempty"`
}

type waText struct {
	Body string `json:"body"`
}

type waTemplate struct {
	Name       string        `json:"name"`
	Language   waLanguage    `json:"language"`
	Components []waComponent `json:"components,omitempty"`
}

type waLanguage struct {
	Code string `json:"code"`
}

type waComponent struct {
	Type       string        `json:"type"`
	Parameters []waParameter `json:"parameters"`
}

type waParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type waSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type waErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SendSession sends a free-form text message inside an open conversation
// window.
func (c *WhatsAppClient) SendSession(ctx context.Context, phone string, body string) (string, error) {
	req := waMessageRequest{
		MessagingProduct: "whatsapp",
		To:               normalizeWANumber(phone),
		Type:             "text",
		Text:             &waText{Body: body},
	}
	return c.send(ctx, req)
}

// SendTemplate sends a pre-approved template message with positional body
// parameters.
func (c *WhatsAppClient) SendTemplate(ctx context.Context, phone string, templateName string, lang types.Language, params []string) (string, error) {
	tmpl := &waTemplate{
		Name:     templateName,
		Language: waLanguage{Code: waLanguageCode(lang)},
	}
	if len(params) > 0 {
		parameters := make([]waParameter, 0, len(params))
		for _, p := range params {
			parameters = append(parameters, waParameter{Type: "text", Text: p})
		}
		tmpl.Components = []waComponent{{Type: "body", Parameters: parameters}}
	}

	req := waMessageRequest{
		MessagingProduct: "whatsapp",
		To:               normalizeWANumber(phone),
		Type:             "template",
		Template:         tmpl,
	}
	return c.send(ctx, req)
}

func (c *WhatsAppClient) send(ctx context.Context, payload waMessageRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode whatsapp payload", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build whatsapp request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.base.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamWhatsApp, "failed to read whatsapp response", err)
	}

	if resp.StatusCode >= 400 {
		var waErr waErrorResponse
		if jsonErr := json.Unmarshal(respBody, &waErr); jsonErr == nil && waErr.Error.Code != 0 {
			provErr := &ProviderError{
				Provider:   "whatsapp",
				Code:       waErr.Error.Code,
				Message:    waErr.Error.Message,
				HTTPStatus: resp.StatusCode,
			}
			// Some Graph deployments report the closed window only in the
			// message text, without the dedicated code.
			if !provErr.OutsideSessionWindow() && mentionsClosedWindow(waErr.Error.Message) {
				provErr.Code = waErrOutsideWindow
			}
			return "", provErr
		}
		return "", types.NewAppError(types.ErrCodeUpstreamWhatsApp,
			fmt.Sprintf("whatsapp returned %d", resp.StatusCode), nil)
	}

	var sendResp waSendResponse
	if err := json.Unmarshal(respBody, &sendResp); err != nil || len(sendResp.Messages) == 0 {
		return "", types.NewAppError(types.ErrCodeUpstreamWhatsApp, "whatsapp response missing message id", err)
	}

	c.logger.InfoContext(ctx, "whatsapp message accepted",
		"message_id", sendResp.Messages[0].ID,
		"type", payload.Type,
	)
	return sendResp.Messages[0].ID, nil
}

// mentionsClosedWindow detects the closed-conversation condition from the
// error message when the Graph API omits the dedicated code.
func mentionsClosedWindow(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "re-engagement") ||
		strings.Contains(m, "24 hour") ||
		strings.Contains(m, "24-hour")
}

// normalizeWANumber strips formatting from a phone number; the Graph API
// expects digits only, without the leading plus.
func normalizeWANumber(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// waLanguageCode maps the content language to WhatsApp's template locale.
func waLanguageCode(lang types.Language) string {
	if lang == types.LangEnglish {
		return "en_US"
	}
	return "es"
}
