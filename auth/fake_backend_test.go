package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/sessionguard/jwt"
	"github.com/MrEthical07/sessionguard/session"
	"github.com/google/uuid"
)

const (
	testAnonKey  = "anon-key-for-tests"
	testSecret   = "super-secret-jwt-key-for-tests"
	testEmail    = "instructor@school.test"
	testPassword = "correct horse battery"
)

// fakeBackend is a minimal GoTrue stand-in.
type fakeBackend struct {
	srv    *httptest.Server
	tokens *jwt.Manager
	user   session.User

	mu            sync.Mutex
	refresh       map[string]bool
	calls         map[string]int
	refreshStatus []int
	logoutStatus  int
	password      string
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	m, err := jwt.NewManager(jwt.Config{Secret: []byte(testSecret)})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	fb := &fakeBackend{
		tokens: m,
		user: session.User{
			ID:    uuid.MustParse("9a1e7c2d-5b3f-4e8a-b6d0-1c2f3a4b5c6d"),
			Email: testEmail,
			Role:  "authenticated",
		},
		refresh:      make(map[string]bool),
		calls:        make(map[string]int),
		logoutStatus: http.StatusNoContent,
		password:     testPassword,
	}
	fb.srv = httptest.NewServer(http.HandlerFunc(fb.serve))
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBackend) count(key string) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.calls[key]
}

func (fb *fakeBackend) setLogoutStatus(status int) {
	fb.mu.Lock()
	fb.logoutStatus = status
	fb.mu.Unlock()
}

func (fb *fakeBackend) total() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	n := 0
	for _, v := range fb.calls {
		n += v
	}
	return n
}

func (fb *fakeBackend) issue() (tokenResponse, error) {
	access, err := fb.tokens.Issue(fb.user.ID, fb.user.Email, uuid.NewString(), time.Hour)
	if err != nil {
		return tokenResponse{}, err
	}
	refresh := uuid.NewString()
	fb.mu.Lock()
	fb.refresh[refresh] = true
	fb.mu.Unlock()
	u := fb.user
	return tokenResponse{
		AccessToken:  access,
		TokenType:    "bearer",
		ExpiresIn:    3600,
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
		RefreshToken: refresh,
		User:         &u,
	}, nil
}

func (fb *fakeBackend) writeTokens(w http.ResponseWriter) {
	tok, err := fb.issue()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"msg": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (fb *fakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("apikey") != testAnonKey {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid API key"})
		return
	}
	key := r.Method + " " + strings.TrimPrefix(r.URL.Path, "/auth/v1/")
	if gt := r.URL.Query().Get("grant_type"); gt != "" {
		key += "?" + gt
	}
	fb.mu.Lock()
	fb.calls[key]++
	fb.mu.Unlock()

	switch key {
	case "POST token?password":
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != fb.user.Email || body["password"] != fb.password {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error_code": "invalid_credentials", "msg": "Invalid login credentials"})
			return
		}
		fb.writeTokens(w)
	case "POST token?refresh_token":
		fb.mu.Lock()
		var status int
		if len(fb.refreshStatus) > 0 {
			status = fb.refreshStatus[0]
			fb.refreshStatus = fb.refreshStatus[1:]
		}
		fb.mu.Unlock()
		if status != 0 {
			writeJSON(w, status, map[string]string{"msg": "upstream unavailable"})
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		fb.mu.Lock()
		ok := fb.refresh[body["refresh_token"]]
		delete(fb.refresh, body["refresh_token"])
		fb.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error_code": "refresh_token_not_found", "msg": "Invalid Refresh Token: Refresh Token Not Found"})
			return
		}
		fb.writeTokens(w)
	case "GET user", "PUT user":
		bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if _, err := fb.tokens.Parse(bearer); err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"code": 401, "error_code": "bad_jwt", "msg": "invalid JWT: unable to parse or verify signature"})
			return
		}
		if r.Method == http.MethodPut {
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			fb.mu.Lock()
			fb.password = body["password"]
			fb.mu.Unlock()
		}
		writeJSON(w, http.StatusOK, fb.user)
	case "POST logout":
		fb.mu.Lock()
		status := fb.logoutStatus
		fb.mu.Unlock()
		w.WriteHeader(status)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"msg": "not found"})
	}
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return nil
}

func newTestClient(t *testing.T, fb *fakeBackend, mutate func(*Config)) (*Client, *session.MemoryStore, *sleepRecorder) {
	t.Helper()
	store := session.NewMemoryStore()
	rec := &sleepRecorder{}
	cfg := Config{
		URL:     fb.srv.URL,
		AnonKey: testAnonKey,
		Store:   store,
		Sleep:   rec.sleep,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c, store, rec
}

func collectEvents(c *Client) (func() []ChangeEvent, *Subscription) {
	var mu sync.Mutex
	var got []ChangeEvent
	sub := c.OnAuthStateChange(func(ev ChangeEvent) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})
	return func() []ChangeEvent {
		mu.Lock()
		defer mu.Unlock()
		return append([]ChangeEvent(nil), got...)
	}, sub
}
