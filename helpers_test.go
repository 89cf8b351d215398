package sessionguard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/sessionguard/auth"
	"github.com/MrEthical07/sessionguard/session"
	"github.com/google/uuid"
)

var testUserID = uuid.MustParse("3c9e6f1a-2b4d-4e8f-a0c1-d2e3f4a5b6c7")

func testSession(token string) *session.Session {
	return &session.Session{
		AccessToken:  token,
		RefreshToken: "refresh-" + token,
		TokenType:    "bearer",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
		User:         &session.User{ID: testUserID, Email: "learner@school.test"},
	}
}

// fakeClient is an AuthClient whose responses are scripted per test.
type fakeClient struct {
	mu         sync.Mutex
	configured bool
	fetchErrs  []error
	sess       *session.Session
	user       *session.User
	userErr    error
	signOutErr error
	fetchGate  chan struct{}

	fetchCalls   int
	userCalls    int
	signOutCalls int
	unsubscribed int
	listeners    map[int]func(auth.ChangeEvent)
	nextListener int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		configured: true,
		sess:       testSession("good"),
		user:       &session.User{ID: testUserID},
		listeners:  make(map[int]func(auth.ChangeEvent)),
	}
}

func (f *fakeClient) Configured() bool { return f.configured }

func (f *fakeClient) GetSession(ctx context.Context) (*session.Session, error) {
	f.mu.Lock()
	f.fetchCalls++
	n := f.fetchCalls
	gate := f.fetchGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if n <= len(f.fetchErrs) && f.fetchErrs[n-1] != nil {
		return nil, f.fetchErrs[n-1]
	}
	return f.sess, nil
}

func (f *fakeClient) GetUser(_ context.Context, _ string) (*session.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userCalls++
	return f.user, f.userErr
}

func (f *fakeClient) SignOut(_ context.Context, scope auth.SignOutScope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if scope != auth.ScopeLocal {
		return errors.New("unexpected scope " + string(scope))
	}
	f.signOutCalls++
	return f.signOutErr
}

func (f *fakeClient) OnAuthStateChange(fn func(auth.ChangeEvent)) *auth.Subscription {
	f.mu.Lock()
	id := f.nextListener
	f.nextListener++
	f.listeners[id] = fn
	f.mu.Unlock()

	return auth.NewSubscription(func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.unsubscribed++
		f.mu.Unlock()
	})
}

func (f *fakeClient) emit(ev auth.ChangeEvent) {
	f.mu.Lock()
	fns := make([]func(auth.ChangeEvent), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (f *fakeClient) counts() (fetch, user, signOut, unsubscribed, listeners int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls, f.userCalls, f.signOutCalls, f.unsubscribed, len(f.listeners)
}

type fakeSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *fakeSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *fakeSleeper) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func buildGuard(t *testing.T, client AuthClient, mutate func(*Builder)) (*Guard, *fakeSleeper) {
	t.Helper()
	sleeper := &fakeSleeper{}
	b := New().WithAuthClient(client).WithSleep(sleeper.sleep)
	if mutate != nil {
		mutate(b)
	}
	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() { _ = g.Close() })
	return g, sleeper
}

func startAndWait(t *testing.T, g *Guard) State {
	t.Helper()
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := g.Wait(ctx)
	if err != nil {
		t.Fatalf("bootstrap did not finish: %v", err)
	}
	return st
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
