package auth

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/mailverify-auth/internal/domain"
	"github.com/mailverify-auth/internal/infrastructure/memory"
	"github.com/mailverify-auth/internal/infrastructure/userstore"
	"github.com/mailverify-auth/internal/pkg/logging"
	"github.com/mailverify-auth/internal/pkg/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendEmail(to, subject, body string) error {
	return m.Called(to, subject, body).Error(0)
}

type failingBackend struct {
	mu   sync.Mutex
	fail bool
}

func (b *failingBackend) Read(context.Context) ([]byte, error) { return []byte("[]"), nil }

func (b *failingBackend) Write(context.Context, []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errors.New("disk full")
	}
	return nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// --- builder ---

type fixture struct {
	svc    Service
	mailer *mockMailer
	users  *userstore.Store
	clock  *clock
	path   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.json")
	users := userstore.New(userstore.NewFileBackend(path), logging.Discard())
	users.Load(context.Background())
	clk := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	ml := &mockMailer{}
	svc := NewService(ServiceDeps{
		Users:           users,
		Verifications:   memory.NewVerificationRepo(clk.Now),
		Mailer:          ml,
		Logger:          logging.Discard(),
		AppName:         "RateMyLandlord",
		VerificationTTL: 10 * time.Minute,
	})
	return &fixture{svc: svc, mailer: ml, users: users, clock: clk, path: path}
}

var codeRe = regexp.MustCompile(`verification code is: (\d{6})`)

// requestCode runs request-verification for email and returns the code that was mailed.
func (f *fixture) requestCode(t *testing.T, email string) string {
	t.Helper()
	var code string
	f.mailer.On("SendEmail", email, "Your RateMyLandlord verification code", mock.Anything).
		Run(func(args mock.Arguments) {
			m := codeRe.FindStringSubmatch(args.String(2))
			require.Len(t, m, 2)
			code = m[1]
		}).Return(nil).Once()
	require.NoError(t, f.svc.RequestVerification(context.Background(), domain.RequestVerificationRequest{Email: email}))
	return code
}

func (f *fixture) register(t *testing.T, email, password, name string) {
	t.Helper()
	code := f.requestCode(t, email)
	require.NoError(t, f.svc.VerifyCode(context.Background(), domain.VerifyCodeRequest{Email: email, Code: code}))
	_, err := f.svc.Signup(context.Background(), domain.SignupRequest{Email: email, Password: password, Name: name})
	require.NoError(t, err)
}

// --- RequestVerification ---

func TestRequestVerification_EmptyEmail(t *testing.T) {
	f := newFixture(t)
	for _, email := range []string{"", "   ", "\r\n\t"} {
		err := f.svc.RequestVerification(context.Background(), domain.RequestVerificationRequest{Email: email})
		assert.ErrorIs(t, err, domain.ErrEmailRequired)
		assert.ErrorIs(t, err, domain.ErrBadRequest)
	}
	f.mailer.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything)
}

func TestRequestVerification_ExistingAccount(t *testing.T) {
	f := newFixture(t)
	f.users.Insert(domain.Account{Email: "a@x.com", Password: "p", Name: "A"})

	err := f.svc.RequestVerification(context.Background(), domain.RequestVerificationRequest{Email: "a@x.com"})
	assert.ErrorIs(t, err, domain.ErrUserExists)
	assert.ErrorIs(t, err, domain.ErrConflict)
	f.mailer.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything)
}

func TestRequestVerification_SendFailureLeavesNoPending(t *testing.T) {
	f := newFixture(t)
	f.mailer.On("SendEmail", "a@x.com", mock.Anything, mock.Anything).Return(errors.New("SMTP credentials not configured"))

	err := f.svc.RequestVerification(context.Background(), domain.RequestVerificationRequest{Email: "a@x.com"})
	assert.ErrorIs(t, err, domain.ErrVerificationSendFailed)
	assert.ErrorIs(t, err, domain.ErrUnavailable)

	err = f.svc.VerifyCode(context.Background(), domain.VerifyCodeRequest{Email: "a@x.com", Code: "123456"})
	assert.ErrorIs(t, err, domain.ErrVerificationNotFound)
}

func TestRequestVerification_CodeGeneratorError(t *testing.T) {
	ml := &mockMailer{}
	svc := NewService(ServiceDeps{
		Users:         userstore.New(&failingBackend{}, logging.Discard()),
		Verifications: memory.NewVerificationRepo(nil),
		Mailer:        ml,
		Logger:        logging.Discard(),
		NewCode:       func() (string, error) { return "", assert.AnError },
	})
	err := svc.RequestVerification(context.Background(), domain.RequestVerificationRequest{Email: "a@x.com"})
	assert.ErrorIs(t, err, assert.AnError)
	ml.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything)
}

func TestRequestVerification_MessageContent(t *testing.T) {
	f := newFixture(t)
	f.mailer.On("SendEmail", "a@x.com", "Your RateMyLandlord verification code", mock.MatchedBy(func(body string) bool {
		return codeRe.MatchString(body) &&
			regexp.MustCompile(`It expires in 10 minutes\.`).MatchString(body) &&
			regexp.MustCompile(`If you did not request this code you can ignore this email\.`).MatchString(body)
	})).Return(nil)

	require.NoError(t, f.svc.RequestVerification(context.Background(), domain.RequestVerificationRequest{Email: "a@x.com"}))
	f.mailer.AssertExpectations(t)
}

func TestRequestVerification_NewRequestReplacesOldCode(t *testing.T) {
	f := newFixture(t)
	first := f.requestCode(t, "a@x.com")
	second := f.requestCode(t, "a@x.com")
	if first == second {
		t.Skip("generator repeated a code")
	}
	err := f.svc.VerifyCode(context.Background(), domain.VerifyCodeRequest{Email: "a@x.com", Code: first})
	assert.ErrorIs(t, err, domain.ErrInvalidCode)
	assert.NoError(t, f.svc.VerifyCode(context.Background(), domain.VerifyCodeRequest{Email: "a@x.com", Code: second}))
}

// --- VerifyCode ---

func TestVerifyCode_MissingFields(t *testing.T) {
	f := newFixture(t)
	for _, req := range []domain.VerifyCodeRequest{{}, {Email: "a@x.com"}, {Code: "123456"}, {Email: " ", Code: "123456"}} {
		err := f.svc.VerifyCode(context.Background(), req)
		assert.ErrorIs(t, err, domain.ErrEmailAndCodeRequired)
	}
}

func TestVerifyCode_NotFound(t *testing.T) {
	f := newFixture(t)
	err := f.svc.VerifyCode(context.Background(), domain.VerifyCodeRequest{Email: "a@x.com", Code: "123456"})
	assert.ErrorIs(t, err, domain.ErrVerificationNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVerifyCode_MismatchThenRetry(t *testing.T) {
	f := newFixture(t)
	code := f.requestCode(t, "a@x.com")
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	err := f.svc.VerifyCode(context.Background(), domain.VerifyCodeRequest{Email: "a@x.com", Code: wrong})
	assert.ErrorIs(t, err, domain.ErrInvalidCode)
	assert.NoError(t, f.svc.VerifyCode(context.Background(), domain.VerifyCodeRequest{Email: "a@x.com", Code: code}))
}

func TestVerifyCode_TrimsInput(t *testing.T) {
	f := newFixture(t)
	code := f.requestCode(t, "a@x.com")
	err := f.svc.VerifyCode(context.Background(), domain.VerifyCodeRequest{Email: " a@x.com\n", Code: "\t" + code + " "})
	assert.NoError(t, err)
}

func TestVerifyCode_ExpiredRemovesPending(t *testing.T) {
	f := newFixture(t)
	code := f.requestCode(t, "a@x.com")
	f.clock.Advance(10*time.Minute + time.Second)

	err := f.svc.VerifyCode(context.Background(), domain.VerifyCodeRequest{Email: "a@x.com", Code: code})
	assert.ErrorIs(t, err, domain.ErrVerificationExpired)
	assert.ErrorIs(t, err, domain.ErrBadRequest)

	err = f.svc.VerifyCode(context.Background(), domain.VerifyCodeRequest{Email: "a@x.com", Code: code})
	assert.ErrorIs(t, err, domain.ErrVerificationNotFound)

	_, err = f.svc.Signup(context.Background(), domain.SignupRequest{Email: "a@x.com", Password: "p", Name: "A"})
	assert.ErrorIs(t, err, domain.ErrNotVerified)
}

func TestVerifyCode_AfterSignupIsNotFound(t *testing.T) {
	f := newFixture(t)
	code := f.requestCode(t, "a@x.com")
	require.NoError(t, f.svc.VerifyCode(context.Background(), domain.VerifyCodeRequest{Email: "a@x.com", Code: code}))
	_, err := f.svc.Signup(context.Background(), domain.SignupRequest{Email: "a@x.com", Password: "p", Name: "A"})
	require.NoError(t, err)

	err = f.svc.VerifyCode(context.Background(), domain.VerifyCodeRequest{Email: "a@x.com", Code: code})
	assert.ErrorIs(t, err, domain.ErrVerificationNotFound)
}

// --- Signup ---

func TestSignup_MissingFields(t *testing.T) {
	f := newFixture(t)
	reqs := []domain.SignupRequest{
		{Password: "p", Name: "A"},
		{Email: "a@x.com", Name: "A"},
		{Email: "a@x.com", Password: "p"},
		{Email: "a@x.com", Password: "p", Name: " \t"},
	}
	for _, req := range reqs {
		_, err := f.svc.Signup(context.Background(), req)
		assert.ErrorIs(t, err, domain.ErrSignupFieldsRequired)
	}
}

func TestSignup_WithoutVerification(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Signup(context.Background(), domain.SignupRequest{Email: "a@x.com", Password: "p", Name: "A"})
	assert.ErrorIs(t, err, domain.ErrNotVerified)

	f.requestCode(t, "a@x.com")
	_, err = f.svc.Signup(context.Background(), domain.SignupRequest{Email: "a@x.com", Password: "p", Name: "A"})
	assert.ErrorIs(t, err, domain.ErrNotVerified, "requested but not verified")
}

func TestSignup_VerifiedButExpired(t *testing.T) {
	f := newFixture(t)
	code := f.requestCode(t, "a@x.com")
	require.NoError(t, f.svc.VerifyCode(context.Background(), domain.VerifyCodeRequest{Email: "a@x.com", Code: code}))
	f.clock.Advance(11 * time.Minute)

	_, err := f.svc.Signup(context.Background(), domain.SignupRequest{Email: "a@x.com", Password: "p", Name: "A"})
	assert.ErrorIs(t, err, domain.ErrNotVerified)
}

func TestSignup_KeepsPasswordVerbatim(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@x.com", "  spaced pw ", "A")

	_, err := f.svc.Login(context.Background(), domain.LoginRequest{Email: "a@x.com", Password: "spaced pw"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = f.svc.Login(context.Background(), domain.LoginRequest{Email: "a@x.com", Password: "  spaced pw "})
	assert.NoError(t, err)
}

func TestSignup_PersistFailureRollsBack(t *testing.T) {
	backend := &failingBackend{fail: true}
	users := userstore.New(backend, logging.Discard())
	ml := &mockMailer{}
	ml.On("SendEmail", "a@x.com", mock.Anything, mock.Anything).Return(nil)
	svc := NewService(ServiceDeps{
		Users:         users,
		Verifications: memory.NewVerificationRepo(nil),
		Mailer:        ml,
		Logger:        logging.Discard(),
		NewCode:       func() (string, error) { return "424242", nil },
	})
	ctx := context.Background()
	require.NoError(t, svc.RequestVerification(ctx, domain.RequestVerificationRequest{Email: "a@x.com"}))
	require.NoError(t, svc.VerifyCode(ctx, domain.VerifyCodeRequest{Email: "a@x.com", Code: "424242"}))

	_, err := svc.Signup(ctx, domain.SignupRequest{Email: "a@x.com", Password: "p", Name: "A"})
	assert.ErrorIs(t, err, domain.ErrAccountSaveFailed)
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	_, found := users.Find("a@x.com")
	assert.False(t, found)

	backend.mu.Lock()
	backend.fail = false
	backend.mu.Unlock()
	res, err := svc.Signup(ctx, domain.SignupRequest{Email: "a@x.com", Password: "p", Name: "A"})
	require.NoError(t, err, "verification is kept after a failed save")
	assert.Equal(t, "a@x.com", res.Email)
}

func TestSignup_PersistsAcrossRestart(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@x.com", "p", "A")
	f.register(t, "b@x.com", "q", "B")

	reloaded := userstore.New(userstore.NewFileBackend(f.path), logging.Discard())
	reloaded.Load(context.Background())
	svc := NewService(ServiceDeps{
		Users:         reloaded,
		Verifications: memory.NewVerificationRepo(nil),
		Mailer:        &mockMailer{},
		Logger:        logging.Discard(),
	})
	res, err := svc.Login(context.Background(), domain.LoginRequest{Email: "b@x.com", Password: "q"})
	require.NoError(t, err)
	assert.Equal(t, "B", res.Name)
}

// Two signups racing for the same verified email: exactly one wins.
func TestSignup_ConcurrentSameEmail(t *testing.T) {
	f := newFixture(t)
	code := f.requestCode(t, "a@x.com")
	require.NoError(t, f.svc.VerifyCode(context.Background(), domain.VerifyCodeRequest{Email: "a@x.com", Code: code}))

	const n = 2
	errs := make([]error, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.Signup(context.Background(), domain.SignupRequest{Email: "a@x.com", Password: "p", Name: "A"})
		}(i)
	}
	close(start)
	wg.Wait()

	var ok, conflict int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrUserExists):
			conflict++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflict)
}

// A slow mail send must not block store operations for other emails.
func TestRequestVerification_SendDoesNotHoldLock(t *testing.T) {
	f := newFixture(t)
	f.users.Insert(domain.Account{Email: "b@x.com", Password: "q", Name: "B"})

	entered := make(chan struct{})
	release := make(chan struct{})
	f.mailer.On("SendEmail", "a@x.com", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		close(entered)
		<-release
	}).Return(nil)

	done := make(chan error, 1)
	go func() {
		done <- f.svc.RequestVerification(context.Background(), domain.RequestVerificationRequest{Email: "a@x.com"})
	}()
	<-entered

	loginDone := make(chan error, 1)
	go func() {
		_, err := f.svc.Login(context.Background(), domain.LoginRequest{Email: "b@x.com", Password: "q"})
		loginDone <- err
	}()
	select {
	case err := <-loginDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("login blocked behind mail delivery")
	}

	close(release)
	require.NoError(t, <-done)
}

// --- Login ---

func TestLogin_MissingFields(t *testing.T) {
	f := newFixture(t)
	for _, req := range []domain.LoginRequest{{}, {Email: "a@x.com"}, {Password: "p"}} {
		_, err := f.svc.Login(context.Background(), req)
		assert.ErrorIs(t, err, domain.ErrLoginFieldsRequired)
	}
}

func TestLogin_UndifferentiatedFailure(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@x.com", "p", "A")

	_, wrongPw := f.svc.Login(context.Background(), domain.LoginRequest{Email: "a@x.com", Password: "nope"})
	_, unknown := f.svc.Login(context.Background(), domain.LoginRequest{Email: "ghost@x.com", Password: "p"})
	require.Error(t, wrongPw)
	require.Error(t, unknown)
	assert.Equal(t, wrongPw, unknown)
	assert.ErrorIs(t, wrongPw, domain.ErrUnauthorized)
}

func TestLogin_DoesNotTrimEmail(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@x.com", "p", "A")
	_, err := f.svc.Login(context.Background(), domain.LoginRequest{Email: " a@x.com", Password: "p"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestLogin_TokenParsesBackToEmail(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@x.com", "p", "A")

	res, err := f.svc.Login(context.Background(), domain.LoginRequest{Email: "a@x.com", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, "A", res.Name)
	assert.Equal(t, "a@x.com", token.Parse("Bearer "+res.Token))
}

// --- Identify ---

func TestIdentify(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@x.com", "p", "A")

	acc, err := f.svc.Identify(context.Background(), "Bearer "+token.Issue("a@x.com"))
	require.NoError(t, err)
	assert.Equal(t, "A", acc.Name)

	_, err = f.svc.Identify(context.Background(), "Bearer "+token.Issue("ghost@x.com"))
	assert.ErrorIs(t, err, domain.ErrNoIdentity)
	_, err = f.svc.Identify(context.Background(), "a@x.com")
	assert.ErrorIs(t, err, domain.ErrNoIdentity)
}

// --- end to end ---

func TestScenario_TrailingSpaceEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var sentTo, code string
	f.mailer.On("SendEmail", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		sentTo = args.String(0)
		code = codeRe.FindStringSubmatch(args.String(2))[1]
	}).Return(nil)

	require.NoError(t, f.svc.RequestVerification(ctx, domain.RequestVerificationRequest{Email: "a@x.com "}))
	assert.Equal(t, "a@x.com", sentTo)

	require.NoError(t, f.svc.VerifyCode(ctx, domain.VerifyCodeRequest{Email: "a@x.com", Code: code}))
	res, err := f.svc.Signup(ctx, domain.SignupRequest{Email: "a@x.com", Password: "p", Name: "A"})
	require.NoError(t, err)
	assert.Equal(t, &domain.AuthResult{Token: "demo::a@x.com", Name: "A", Email: "a@x.com"}, res)

	_, err = f.svc.Signup(ctx, domain.SignupRequest{Email: "a@x.com", Password: "p", Name: "A"})
	assert.ErrorIs(t, err, domain.ErrUserExists)
}

func TestHumanDuration(t *testing.T) {
	assert.Equal(t, "10 minutes", humanDuration(10*time.Minute))
	assert.Equal(t, "1 minute", humanDuration(time.Minute))
	assert.Equal(t, "1m30s", humanDuration(90*time.Second))
	assert.Equal(t, "30s", humanDuration(30*time.Second))
}
