package authkit_test

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/panyam/authkit"
	"github.com/panyam/authkit/stores/memory"
)

const (
	testAccessSecret  = "test-access-secret"
	testRefreshSecret = "test-refresh-secret"
)

// testClock is a settable clock shared by the service and its token issuer.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock { return &testClock{now: time.Now()} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingEmailSender captures mails instead of sending them.
type recordingEmailSender struct {
	mu         sync.Mutex
	resetLinks map[string]string
	changed    []string
	failReset  bool
}

func newRecordingEmailSender() *recordingEmailSender {
	return &recordingEmailSender{resetLinks: map[string]string{}}
}

func (s *recordingEmailSender) SendPasswordResetEmail(ctx context.Context, to, link string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReset {
		return context.DeadlineExceeded
	}
	s.resetLinks[to] = link
	return nil
}

func (s *recordingEmailSender) SendPasswordChangedEmail(ctx context.Context, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changed = append(s.changed, to)
	return nil
}

func (s *recordingEmailSender) resetToken(t *testing.T, email string) string {
	t.Helper()
	s.mu.Lock()
	link, ok := s.resetLinks[email]
	s.mu.Unlock()
	require.True(t, ok, "no reset email sent to %s", email)
	u, err := url.Parse(link)
	require.NoError(t, err)
	token := u.Query().Get("token")
	require.Len(t, token, 64)
	return token
}

type testEnv struct {
	service *authkit.AuthService
	store   *memory.Store
	email   *recordingEmailSender
	clock   *testClock
	events  []string
}

func setupTestEnv(t *testing.T, mutate ...func(*authkit.Options)) *testEnv {
	t.Helper()
	env := &testEnv{
		store: memory.New(),
		email: newRecordingEmailSender(),
		clock: newTestClock(),
	}
	env.store.Now = env.clock.Now
	opts := authkit.Options{
		Store: env.store,
		Tokens: &authkit.TokenIssuer{
			AccessSecret:  testAccessSecret,
			RefreshSecret: testRefreshSecret,
			Now:           env.clock.Now,
		},
		EmailSender:  env.email,
		RefreshGuard: authkit.NewRefreshGuard(time.Hour),
		BcryptCost:   bcrypt.MinCost,
		Now:          env.clock.Now,
		OnEvent: func(event string, err error) {
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			env.events = append(env.events, event+":"+outcome)
		},
	}
	for _, m := range mutate {
		m(&opts)
	}
	svc, err := authkit.NewAuthService(opts)
	require.NoError(t, err)
	env.service = svc
	return env
}

func (e *testEnv) register(t *testing.T, email, password string) *authkit.AuthResponse {
	t.Helper()
	resp, err := e.service.Register(context.Background(), email, password, "Test User")
	require.NoError(t, err)
	return resp
}
