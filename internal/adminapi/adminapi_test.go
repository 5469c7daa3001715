package adminapi

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/Will-Luck/sally-agent/internal/logging"
)

type fakeSettings struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{values: make(map[string]string)}
}

func (f *fakeSettings) GetSetting(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok
}

func (f *fakeSettings) SetSetting(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return nil
}

type fakeEscrow struct{}

func (fakeEscrow) Depths() map[string]int {
	return map[string]int{"snd": 0, "iss": 2, "rev": 0, "recv": 1, "revk": 0, "ack": 0}
}

func testHandler(t *testing.T, token string) (*Handler, *httptest.Server) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword: %v", err)
	}
	h := &Handler{
		Settings:  newFakeSettings(),
		Escrow:    fakeEscrow{},
		TokenHash: string(hash),
		Log:       logging.New(false),
	}
	return h, httptest.NewServer(h.Mux())
}

func TestStatusRequiresToken(t *testing.T) {
	_, srv := testHandler(t, "supersecret")
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestStatusWithValidToken(t *testing.T) {
	_, srv := testHandler(t, "supersecret")
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/status", nil)
	req.Header.Set("Authorization", "Bearer supersecret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestPauseThenResume(t *testing.T) {
	h, srv := testHandler(t, "supersecret")
	defer srv.Close()

	doAuthed := func(method, path string) *http.Response {
		req, _ := http.NewRequest(method, srv.URL+path, nil)
		req.Header.Set("Authorization", "Bearer supersecret")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("Do: %v", err)
		}
		return resp
	}

	resp := doAuthed(http.MethodPost, "/pause")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pause status = %d, want 200", resp.StatusCode)
	}
	if v, _ := h.Settings.GetSetting("paused"); v != "true" {
		t.Errorf("paused setting = %q, want true", v)
	}

	resp = doAuthed(http.MethodPost, "/resume")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resume status = %d, want 200", resp.StatusCode)
	}
	if v, _ := h.Settings.GetSetting("paused"); v != "false" {
		t.Errorf("paused setting = %q, want false", v)
	}
}

func TestWrongTokenRejected(t *testing.T) {
	_, srv := testHandler(t, "supersecret")
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/status", nil)
	req.Header.Set("Authorization", "Bearer wrongtoken")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestDisabledWithoutTokenHash(t *testing.T) {
	h := &Handler{Settings: newFakeSettings(), Escrow: fakeEscrow{}, Log: logging.New(false)}
	srv := httptest.NewServer(h.Mux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}
