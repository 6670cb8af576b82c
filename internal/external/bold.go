package external

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"guestflow/internal/types"
)

// boldAPIBase is the default Bold integrations API base URL.
// Overridable in tests via BoldClientConfig.BaseURL.
const boldAPIBase = "https://integrations.api.bold.co"

// Bold rejects descriptions shorter than 2 or longer than 100 characters.
const (
	boldDescriptionMin = 2
	boldDescriptionMax = 100
)

// BoldClientConfig holds the configuration for creating a BoldClient.
type BoldClientConfig struct {
	APIKey  string
	BaseURL string // Override for testing; defaults to boldAPIBase
	Logger  *slog.Logger
}

// BoldClient implements PaymentProvider against the Bold payment-link API,
// the default provider for Colombian properties.
type BoldClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

var _ PaymentProvider = (*BoldClient)(nil)

// NewBoldClient creates a new BoldClient.
func NewBoldClient(httpClient *http.Client, cfg BoldClientConfig) *BoldClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = boldAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"bold",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"GuestFlow/1.0",
		WithUpstreamErrorCode(types.ErrCodeUpstreamPayment),
	)

	return &BoldClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// NewBoldClientWithBase creates a BoldClient with a pre-configured BaseClient.
// This is useful for testing.
func NewBoldClientWithBase(base *BaseClient, cfg BoldClientConfig) *BoldClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = boldAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &BoldClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

type boldLinkRequest struct {
	AmountType     string     `json:"amount_type"`
	Amount         boldAmount `json:"amount"`
	Description    string     `json:"description"`
	Reference      string     `json:"reference"`
	ExpirationDate int64      `json:"expiration_date"`
}

type boldAmount struct {
	Currency    string `json:"currency"`
	TotalAmount int64  `json:"total_amount"`
}

type boldLinkResponse struct {
	Payload struct {
		PaymentLink string `json:"payment_link"`
		URL         string `json:"url"`
	} `json:"payload"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// CreatePaymentLink generates a Bold hosted payment URL. The description is
// clamped to Bold's 2..100 character window before sending.
func (c *BoldClient) CreatePaymentLink(ctx context.Context, input PaymentLinkInput) (string, error) {
	reqBody := boldLinkRequest{
		AmountType: "CLOSE",
		Amount: boldAmount{
			Currency:    strings.ToUpper(input.CurrencyCode),
			TotalAmount: input.AmountCents / 100,
		},
		Description:    clampBoldDescription(input.Description),
		Reference:      input.Reference,
		ExpirationDate: input.ExpiresAt.UnixNano(),
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode bold payload", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/online/link/v1", bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build bold request", err)
	}
	httpReq.Header.Set("Authorization", "x-api-key "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.base.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamPayment, "failed to read bold response", err)
	}

	var linkResp boldLinkResponse
	if err := json.Unmarshal(respBody, &linkResp); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamPayment, "failed to decode bold response", err)
	}

	if resp.StatusCode >= 400 || len(linkResp.Errors) > 0 {
		msg := "bold rejected the payment link request"
		code := 0
		if len(linkResp.Errors) > 0 {
			msg = linkResp.Errors[0].Message
		}
		return "", &ProviderError{
			Provider:   "bold",
			Code:       code,
			Message:    msg,
			HTTPStatus: resp.StatusCode,
		}
	}

	url := linkResp.Payload.URL
	if url == "" {
		url = linkResp.Payload.PaymentLink
	}
	if url == "" {
		return "", types.NewAppError(types.ErrCodeUpstreamPayment, "bold response missing payment link", nil)
	}

	c.logger.InfoContext(ctx, "bold payment link created",
		"reference", input.Reference,
	)
	return url, nil
}

// clampBoldDescription forces the description into Bold's accepted length
// window, padding with periods when too short and truncating when too long.
func clampBoldDescription(desc string) string {
	d := []rune(strings.TrimSpace(desc))
	for len(d) < boldDescriptionMin {
		d = append(d, '.')
	}
	if len(d) > boldDescriptionMax {
		d = d[:boldDescriptionMax]
	}
	return string(d)
}
