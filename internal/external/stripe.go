package external

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"guestflow/internal/types"

	stripe "github.com/stripe/stripe-go/v82"
)

// stripeAPIBase is the default Stripe API base URL.
// Overridable in tests via StripeClientConfig.BaseURL.
const stripeAPIBase = "https://api.stripe.com"

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey string
	BaseURL   string // Override for testing; defaults to stripeAPIBase
	Logger    *slog.Logger
}

// StripeClient implements PaymentProvider by making direct HTTP calls to the
// Stripe REST API through BaseClient. This approach routes all requests
// through the resilience infrastructure (circuit breaker, retries, error
// mapping) and makes testing with httptest straightforward. Response bodies
// decode into stripe-go's typed objects.
//
// Stripe Payment Links require a Price, so each reservation link creates an
// ad-hoc price carrying the reservation reference in its product name.
type StripeClient struct {
	base      *BaseClient
	secretKey string
	baseURL   string
	logger    *slog.Logger
}

var _ PaymentProvider = (*StripeClient)(nil)

// NewStripeClient creates a new StripeClient. The httpClient timeout should
// be around 20 seconds; Stripe holds requests during link creation.
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"stripe",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"GuestFlow/1.0",
		WithUpstreamErrorCode(types.ErrCodeUpstreamPayment),
	)

	return &StripeClient{
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

// NewStripeClientWithBase creates a StripeClient with a pre-configured
// BaseClient. This is useful for testing.
func NewStripeClientWithBase(base *BaseClient, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &StripeClient{
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

// CreatePaymentLink creates an ad-hoc Price and a Payment Link for it. The
// reservation reference travels in the link metadata so webhooks can be
// correlated back.
func (c *StripeClient) CreatePaymentLink(ctx context.Context, input PaymentLinkInput) (string, error) {
	price, err := c.createPrice(ctx, input)
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("line_items[0][price]", price.ID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("metadata[reference]", input.Reference)

	var link stripe.PaymentLink
	if err := c.postForm(ctx, "/v1/payment_links", form, &link); err != nil {
		return "", err
	}
	if link.URL == "" {
		return "", types.NewAppError(types.ErrCodeUpstreamPayment, "stripe response missing payment link url", nil)
	}

	c.logger.InfoContext(ctx, "stripe payment link created",
		"reference", input.Reference,
		"payment_link_id", link.ID,
	)
	return link.URL, nil
}

// createPrice creates a one-off inline price for the reservation amount.
func (c *StripeClient) createPrice(ctx context.Context, input PaymentLinkInput) (*stripe.Price, error) {
	form := url.Values{}
	form.Set("currency", strings.ToLower(input.CurrencyCode))
	form.Set("unit_amount", strconv.FormatInt(input.AmountCents, 10))
	form.Set("product_data[name]", input.Description)

	var price stripe.Price
	if err := c.postForm(ctx, "/v1/prices", form, &price); err != nil {
		return nil, err
	}
	return &price, nil
}

// postForm sends a form-encoded POST to the Stripe API and decodes the JSON
// response into out. Stripe error payloads decode into stripe.Error.
func (c *StripeClient) postForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build stripe request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamPayment, "failed to read stripe response", err)
	}

	if resp.StatusCode >= 400 {
		var wrapper struct {
			Error *stripe.Error `json:"error"`
		}
		msg := "stripe rejected the request"
		if jsonErr := json.Unmarshal(body, &wrapper); jsonErr == nil && wrapper.Error != nil {
			msg = wrapper.Error.Msg
		}
		return &ProviderError{
			Provider:   "stripe",
			Message:    msg,
			HTTPStatus: resp.StatusCode,
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamPayment, "failed to decode stripe response", err)
	}
	return nil
}
