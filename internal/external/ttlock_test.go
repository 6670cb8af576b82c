package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"guestflow/internal/types"
)

// ttlockTestServer wires a minimal TTLock cloud fake: token endpoint plus
// whatever handlers the individual test installs.
func ttlockTestServer(t *testing.T, mux *http.ServeMux, tokenCalls *atomic.Int32) *httptest.Server {
	t.Helper()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		if tokenCalls != nil {
			tokenCalls.Add(1)
		}
		if r.FormValue("clientId") != "cid" {
			t.Errorf("clientId = %q", r.FormValue("clientId"))
		}
		// md5("hunter2")
		if got := r.FormValue("password"); got != "2ab96390c7dbe3439de74d0c9b0b1767" {
			t.Errorf("password hash = %q", got)
		}
		w.Write([]byte(`{"access_token":"tok123","expires_in":7776000}`))
	})
	return httptest.NewServer(mux)
}

func ttlockTestClient(serverURL string) *TTLockClient {
	return NewTTLockClientWithBase(newTestBase(types.ErrCodeUpstreamLock), TTLockClientConfig{
		ClientID:     "cid",
		ClientSecret: "csecret",
		Username:     "ops@example.com",
		Password:     "hunter2",
		BaseURL:      serverURL,
	})
}

func TestTTLock_CreateTemporaryCode(t *testing.T) {
	mux := http.NewServeMux()
	var tokenCalls atomic.Int32
	var captured map[string]string
	mux.HandleFunc("/v3/keyboardPwd/get", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		captured = map[string]string{
			"accessToken":     r.FormValue("accessToken"),
			"lockId":          r.FormValue("lockId"),
			"keyboardPwdType": r.FormValue("keyboardPwdType"),
		}
		w.Write([]byte(`{"keyboardPwdId":991,"keyboardPwd":"482913"}`))
	})
	srv := ttlockTestServer(t, mux, &tokenCalls)
	defer srv.Close()

	client := ttlockTestClient(srv.URL)
	start := time.Now().Add(2 * time.Hour)
	end := start.AddDate(0, 0, 3)

	code, err := client.CreateTemporaryCode(context.Background(), 7001, "Ana R.", start, end)
	if err != nil {
		t.Fatalf("CreateTemporaryCode returned error: %v", err)
	}
	if code != "482913" {
		t.Errorf("code = %q", code)
	}
	if captured["accessToken"] != "tok123" || captured["lockId"] != "7001" {
		t.Errorf("captured form = %v", captured)
	}
	if captured["keyboardPwdType"] != "3" {
		t.Errorf("keyboardPwdType = %q, want 3 (period)", captured["keyboardPwdType"])
	}

	// Second call reuses the cached token.
	if _, err := client.CreateTemporaryCode(context.Background(), 7001, "Ana R.", start, end); err != nil {
		t.Fatalf("second call returned error: %v", err)
	}
	if got := tokenCalls.Load(); got != 1 {
		t.Errorf("token endpoint called %d times, want 1", got)
	}
}

func TestTTLock_CreateCode_ProviderErrcode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v3/keyboardPwd/get", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errcode":-2012,"errmsg":"lock is offline"}`))
	})
	srv := ttlockTestServer(t, mux, nil)
	defer srv.Close()

	_, err := ttlockTestClient(srv.URL).CreateTemporaryCode(context.Background(), 7001, "Ana",
		time.Now(), time.Now().AddDate(0, 0, 1))
	if err == nil {
		t.Fatal("expected error for errcode response")
	}
}

func TestTTLock_DeleteCodeByValue(t *testing.T) {
	t.Run("deletes known code", func(t *testing.T) {
		mux := http.NewServeMux()
		var deleted atomic.Bool
		mux.HandleFunc("/v3/lock/listKeyboardPwd", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"list":[{"keyboardPwdId":991,"keyboardPwd":"482913"}],"pages":1}`))
		})
		mux.HandleFunc("/v3/keyboardPwd/delete", func(w http.ResponseWriter, r *http.Request) {
			r.ParseForm()
			if r.FormValue("keyboardPwdId") != "991" {
				t.Errorf("keyboardPwdId = %q", r.FormValue("keyboardPwdId"))
			}
			deleted.Store(true)
			w.Write([]byte(`{"errcode":0}`))
		})
		srv := ttlockTestServer(t, mux, nil)
		defer srv.Close()

		found, err := ttlockTestClient(srv.URL).DeleteCodeByValue(context.Background(), 7001, "482913")
		if err != nil {
			t.Fatalf("DeleteCodeByValue returned error: %v", err)
		}
		if !found || !deleted.Load() {
			t.Errorf("found=%v deleted=%v, want both true", found, deleted.Load())
		}
	})

	t.Run("unknown code reports found=false without error", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/v3/lock/listKeyboardPwd", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"list":[],"pages":1}`))
		})
		srv := ttlockTestServer(t, mux, nil)
		defer srv.Close()

		found, err := ttlockTestClient(srv.URL).DeleteCodeByValue(context.Background(), 7001, "000000")
		if err != nil {
			t.Fatalf("DeleteCodeByValue returned error: %v", err)
		}
		if found {
			t.Error("found = true for unknown code")
		}
	})

	t.Run("provider not-exist errcode treated as already deleted", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/v3/lock/listKeyboardPwd", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"list":[{"keyboardPwdId":991,"keyboardPwd":"482913"}],"pages":1}`))
		})
		mux.HandleFunc("/v3/keyboardPwd/delete", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"errcode":-3006,"errmsg":"keyboard password doesn't exist"}`))
		})
		srv := ttlockTestServer(t, mux, nil)
		defer srv.Close()

		found, err := ttlockTestClient(srv.URL).DeleteCodeByValue(context.Background(), 7001, "482913")
		if err != nil {
			t.Fatalf("DeleteCodeByValue returned error: %v", err)
		}
		if found {
			t.Error("found = true, want false for already-deleted code")
		}
	})
}

func TestClampCodeWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	midnight := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	t.Run("past start clamped to midnight", func(t *testing.T) {
		start, end := clampCodeWindow(now.AddDate(0, 0, -5), now.AddDate(0, 0, 2), now)
		if !start.Equal(midnight) {
			t.Errorf("start = %v, want %v", start, midnight)
		}
		if !end.Equal(now.AddDate(0, 0, 2)) {
			t.Errorf("end = %v", end)
		}
	})

	t.Run("end pushed to one day after start", func(t *testing.T) {
		start, end := clampCodeWindow(now.AddDate(0, 0, -5), now.AddDate(0, 0, -3), now)
		if !start.Equal(midnight) {
			t.Errorf("start = %v", start)
		}
		if !end.Equal(midnight.AddDate(0, 0, 1)) {
			t.Errorf("end = %v, want %v", end, midnight.AddDate(0, 0, 1))
		}
	})

	t.Run("future window untouched", func(t *testing.T) {
		s := now.AddDate(0, 0, 3)
		e := now.AddDate(0, 0, 6)
		start, end := clampCodeWindow(s, e, now)
		if !start.Equal(s) || !end.Equal(e) {
			t.Errorf("window changed: %v %v", start, end)
		}
	})
}
