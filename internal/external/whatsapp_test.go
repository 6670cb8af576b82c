package external

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"guestflow/internal/types"
)

func newTestBase(code types.ErrorCode) *BaseClient {
	return NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"test",
		RetryPolicy{MaxRetries: 1, MinWait: time.Millisecond, MaxWait: time.Millisecond},
		"GuestFlow-Test/1.0",
		WithSleepFunc(func(time.Duration) {}),
		WithUpstreamErrorCode(code),
	)
}

func waTestClient(serverURL string) *WhatsAppClient {
	return NewWhatsAppClientWithBase(newTestBase(types.ErrCodeUpstreamWhatsApp), WhatsAppClientConfig{
		AccessToken:   "token",
		PhoneNumberID: "1055551234",
		BaseURL:       serverURL,
	})
}

func TestWhatsApp_SendSession(t *testing.T) {
	var captured waMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/1055551234/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"messages":[{"id":"wamid.abc"}]}`))
	}))
	defer srv.Close()

	id, err := waTestClient(srv.URL).SendSession(context.Background(), "+57 300 123 4567", "hola")
	if err != nil {
		t.Fatalf("SendSession returned error: %v", err)
	}
	if id != "wamid.abc" {
		t.Errorf("message id = %q, want wamid.abc", id)
	}
	if captured.Type != "text" || captured.Text == nil || captured.Text.Body != "hola" {
		t.Errorf("unexpected payload: %+v", captured)
	}
	if captured.To != "573001234567" {
		t.Errorf("phone not normalized: %q", captured.To)
	}
}

func TestWhatsApp_SendTemplate(t *testing.T) {
	var captured waMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		w.Write([]byte(`{"messages":[{"id":"wamid.tpl"}]}`))
	}))
	defer srv.Close()

	_, err := waTestClient(srv.URL).SendTemplate(context.Background(),
		"+573001234567", "invitacion_reserva_", types.LangEnglish, []string{"Ana", "482913"})
	if err != nil {
		t.Fatalf("SendTemplate returned error: %v", err)
	}
	if captured.Type != "template" || captured.Template == nil {
		t.Fatalf("unexpected payload: %+v", captured)
	}
	if captured.Template.Name != "invitacion_reserva_" {
		t.Errorf("template name = %q", captured.Template.Name)
	}
	if captured.Template.Language.Code != "en_US" {
		t.Errorf("language code = %q, want en_US", captured.Template.Language.Code)
	}
	if len(captured.Template.Components) != 1 || len(captured.Template.Components[0].Parameters) != 2 {
		t.Errorf("unexpected components: %+v", captured.Template.Components)
	}
}

func TestWhatsApp_OutsideWindowError(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"dedicated code 131047", `{"error":{"code":131047,"message":"Re-engagement message"}}`},
		{"dedicated code 131026", `{"error":{"code":131026,"message":"Message undeliverable"}}`},
		{"message text only", `{"error":{"code":100,"message":"Cannot send outside the 24 hour window"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := waTestClient(srv.URL).SendSession(context.Background(), "+573001234567", "hola")
			var provErr *ProviderError
			if !errors.As(err, &provErr) {
				t.Fatalf("error type = %T, want *ProviderError", err)
			}
			if !provErr.OutsideSessionWindow() {
				t.Errorf("OutsideSessionWindow() = false for %v", provErr)
			}
		})
	}
}

func TestWhatsApp_OtherGraphErrorsPropagate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":131056,"message":"Pair rate limit hit"}}`))
	}))
	defer srv.Close()

	_, err := waTestClient(srv.URL).SendSession(context.Background(), "+573001234567", "hola")
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("error type = %T, want *ProviderError", err)
	}
	if provErr.OutsideSessionWindow() {
		t.Error("unrelated graph error must not trigger the template fallback")
	}
}
