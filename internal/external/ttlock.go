package external

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"guestflow/internal/types"
)

// ttlockAPIBase is the default TTLock cloud API base URL.
// Overridable in tests via TTLockClientConfig.BaseURL.
const ttlockAPIBase = "https://euapi.ttlock.com"

// keyboardPwdTypePeriod requests a code valid for an explicit period.
const keyboardPwdTypePeriod = 3

// ttlockErrPwdNotExist is TTLock's errcode for a keyboard password that no
// longer exists on the lock. Deleting such a code is treated as success.
const ttlockErrPwdNotExist = -3006

// TTLockClientConfig holds the configuration for creating a TTLockClient.
type TTLockClientConfig struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	BaseURL      string // Override for testing; defaults to ttlockAPIBase
	Logger       *slog.Logger
}

// TTLockClient implements LockProvider against the TTLock cloud API. Access
// tokens are fetched lazily and cached until shortly before expiry.
//
// TTLock reports failures with an errcode field inside HTTP 200 responses, so
// every call checks the decoded body, not just the status code.
type TTLockClient struct {
	base   *BaseClient
	cfg    TTLockClientConfig
	logger *slog.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

var _ LockProvider = (*TTLockClient)(nil)

// NewTTLockClient creates a new TTLockClient.
func NewTTLockClient(httpClient *http.Client, cfg TTLockClientConfig) *TTLockClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = ttlockAPIBase
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"ttlock",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"GuestFlow/1.0",
		WithUpstreamErrorCode(types.ErrCodeUpstreamLock),
	)

	return &TTLockClient{base: base, cfg: cfg, logger: logger}
}

// NewTTLockClientWithBase creates a TTLockClient with a pre-configured
// BaseClient. This is useful for testing.
func NewTTLockClientWithBase(base *BaseClient, cfg TTLockClientConfig) *TTLockClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = ttlockAPIBase
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &TTLockClient{base: base, cfg: cfg, logger: logger}
}

type ttlockEnvelope struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// CreateTemporaryCode issues a period keyboard password on the lock. The
// start is clamped to local midnight of the current day so early arrivals can
// use the door, and the end is pushed to at least one full day after start.
func (c *TTLockClient) CreateTemporaryCode(ctx context.Context, lockID int64, name string, start, end time.Time) (string, error) {
	start, end = clampCodeWindow(start, end, time.Now())

	token, err := c.token(ctx)
	if err != nil {
		return "", err
	}

	now := time.Now().UnixMilli()
	form := url.Values{}
	form.Set("clientId", c.cfg.ClientID)
	form.Set("accessToken", token)
	form.Set("lockId", strconv.FormatInt(lockID, 10))
	form.Set("keyboardPwdType", strconv.Itoa(keyboardPwdTypePeriod))
	form.Set("keyboardPwdName", name)
	form.Set("startDate", strconv.FormatInt(start.UnixMilli(), 10))
	form.Set("endDate", strconv.FormatInt(end.UnixMilli(), 10))
	form.Set("date", strconv.FormatInt(now, 10))

	var resp struct {
		ttlockEnvelope
		KeyboardPwdID int64  `json:"keyboardPwdId"`
		KeyboardPwd   string `json:"keyboardPwd"`
	}
	if err := c.postForm(ctx, "/v3/keyboardPwd/get", form, &resp); err != nil {
		return "", err
	}
	if resp.ErrCode != 0 {
		return "", &ProviderError{Provider: "ttlock", Code: resp.ErrCode, Message: resp.ErrMsg}
	}
	if resp.KeyboardPwd == "" {
		return "", types.NewAppError(types.ErrCodeUpstreamLock, "ttlock response missing keyboard password", nil)
	}

	c.logger.InfoContext(ctx, "ttlock code issued",
		"lock_id", lockID,
		"keyboard_pwd_id", resp.KeyboardPwdID,
	)
	return resp.KeyboardPwd, nil
}

// DeleteCodeByValue looks the code up on the lock and deletes it. A code the
// provider no longer knows reports found=false without error.
func (c *TTLockClient) DeleteCodeByValue(ctx context.Context, lockID int64, code string) (bool, error) {
	token, err := c.token(ctx)
	if err != nil {
		return false, err
	}

	pwdID, err := c.findCodeID(ctx, token, lockID, code)
	if err != nil {
		return false, err
	}
	if pwdID == 0 {
		return false, nil
	}

	form := url.Values{}
	form.Set("clientId", c.cfg.ClientID)
	form.Set("accessToken", token)
	form.Set("lockId", strconv.FormatInt(lockID, 10))
	form.Set("keyboardPwdId", strconv.FormatInt(pwdID, 10))
	form.Set("deleteType", "2") // delete via gateway
	form.Set("date", strconv.FormatInt(time.Now().UnixMilli(), 10))

	var resp ttlockEnvelope
	if err := c.postForm(ctx, "/v3/keyboardPwd/delete", form, &resp); err != nil {
		return false, err
	}
	switch resp.ErrCode {
	case 0:
		return true, nil
	case ttlockErrPwdNotExist:
		return false, nil
	default:
		return false, &ProviderError{Provider: "ttlock", Code: resp.ErrCode, Message: resp.ErrMsg}
	}
}

// findCodeID pages through the lock's keyboard passwords looking for the code
// value. Returns 0 when the code is not present.
func (c *TTLockClient) findCodeID(ctx context.Context, token string, lockID int64, code string) (int64, error) {
	for pageNo := 1; pageNo <= 20; pageNo++ {
		form := url.Values{}
		form.Set("clientId", c.cfg.ClientID)
		form.Set("accessToken", token)
		form.Set("lockId", strconv.FormatInt(lockID, 10))
		form.Set("pageNo", strconv.Itoa(pageNo))
		form.Set("pageSize", "100")
		form.Set("date", strconv.FormatInt(time.Now().UnixMilli(), 10))

		var resp struct {
			ttlockEnvelope
			List []struct {
				KeyboardPwdID int64  `json:"keyboardPwdId"`
				KeyboardPwd   string `json:"keyboardPwd"`
			} `json:"list"`
			Pages int `json:"pages"`
		}
		if err := c.postForm(ctx, "/v3/lock/listKeyboardPwd", form, &resp); err != nil {
			return 0, err
		}
		if resp.ErrCode != 0 {
			return 0, &ProviderError{Provider: "ttlock", Code: resp.ErrCode, Message: resp.ErrMsg}
		}
		for _, entry := range resp.List {
			if entry.KeyboardPwd == code {
				return entry.KeyboardPwdID, nil
			}
		}
		if pageNo >= resp.Pages {
			break
		}
	}
	return 0, nil
}

// token returns a cached access token, refreshing it when less than a minute
// of validity remains.
func (c *TTLockClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Until(c.tokenExpiry) > time.Minute {
		return c.accessToken, nil
	}

	sum := md5.Sum([]byte(c.cfg.Password))
	form := url.Values{}
	form.Set("clientId", c.cfg.ClientID)
	form.Set("clientSecret", c.cfg.ClientSecret)
	form.Set("username", c.cfg.Username)
	form.Set("password", hex.EncodeToString(sum[:]))

	var resp struct {
		ttlockEnvelope
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := c.postForm(ctx, "/oauth2/token", form, &resp); err != nil {
		return "", err
	}
	if resp.ErrCode != 0 || resp.AccessToken == "" {
		return "", &ProviderError{Provider: "ttlock", Code: resp.ErrCode,
			Message: fmt.Sprintf("token request failed: %s", resp.ErrMsg)}
	}

	c.accessToken = resp.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

func (c *TTLockClient) postForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build ttlock request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamLock, "failed to read ttlock response", err)
	}
	if resp.StatusCode >= 400 {
		return types.NewAppError(types.ErrCodeUpstreamLock,
			fmt.Sprintf("ttlock returned %d", resp.StatusCode), nil)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamLock, "failed to decode ttlock response", err)
	}
	return nil
}

// clampCodeWindow enforces the code validity invariants: the start never
// precedes today's local midnight and the window spans at least one day.
func clampCodeWindow(start, end, now time.Time) (time.Time, time.Time) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if start.Before(midnight) {
		start = midnight
	}
	if minEnd := start.AddDate(0, 0, 1); end.Before(minEnd) {
		end = minEnd
	}
	return start, end
}
