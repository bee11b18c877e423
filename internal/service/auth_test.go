package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/llm-relay/internal/apperror"
	"github.com/sakif/llm-relay/internal/auth"
	"github.com/sakif/llm-relay/internal/model"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeUserRepo is an in-memory implementation of repository.UserRepository.
// A hand-written fake keeps the tests readable — you can see exactly what
// it does.
type fakeUserRepo struct {
	byID    map[string]*model.User
	byEmail map[string]*model.User
	// set to a non-nil error to simulate a database failure
	createErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		byID:    make(map[string]*model.User),
		byEmail: make(map[string]*model.User),
	}
}

func (f *fakeUserRepo) CreateUser(ctx context.Context, user *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	if _, exists := f.byEmail[user.Email]; exists {
		return apperror.Conflict("user", user.Email)
	}
	user.ID = xid.New().String()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	copied := *user
	f.byID[user.ID] = &copied
	f.byEmail[user.Email] = &copied
	return nil
}

func (f *fakeUserRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return u, nil
}

func (f *fakeUserRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, apperror.NotFound("user", email)
	}
	return u, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestAuthService returns an AuthService wired with fake storage and
// fast (cost 4) bcrypt.
func newTestAuthService(t *testing.T, repo *fakeUserRepo) *AuthService {
	t.Helper()

	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!", "llm-relay-test", 15*time.Minute)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	ps := auth.NewPasswordServiceForTest(4)

	return NewAuthService(repo, ts, ps, testLogger())
}

// =========================================================================
// Register TESTS
// =========================================================================

func TestRegister(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())

	result, err := svc.Register(context.Background(), "new@example.com", "a-long-password")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if result.User.ID == "" {
		t.Error("Register() should assign a user ID")
	}
	if result.User.Email != "new@example.com" {
		t.Errorf("User.Email = %q", result.User.Email)
	}
	if result.Token == "" {
		t.Fatal("Register() returned empty token")
	}

	// The issued token must verify back to the new user's ID.
	userID, err := svc.ValidateToken(result.Token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if userID != result.User.ID {
		t.Errorf("token subject = %q, want %q", userID, result.User.ID)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	first, err := svc.Register(context.Background(), "dupe@example.com", "first-password")
	if err != nil {
		t.Fatalf("first Register() error = %v", err)
	}

	_, err = svc.Register(context.Background(), "dupe@example.com", "second-password")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("second Register() = %v, want ErrConflict", err)
	}

	// First account must still work.
	if _, err := svc.Login(context.Background(), "dupe@example.com", "first-password"); err != nil {
		t.Errorf("Login() for first registrant after conflict: %v", err)
	}
	got, _ := repo.GetUserByID(context.Background(), first.User.ID)
	if got == nil || got.Email != "dupe@example.com" {
		t.Error("first user's record was affected by the duplicate registration")
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"empty email", "", "valid-password"},
		{"no at sign", "not-an-email", "valid-password"},
		{"at sign first", "@example.com", "valid-password"},
		{"at sign last", "user@", "valid-password"},
		{"two at signs", "a@b@c.com", "valid-password"},
		{"short password", "ok@example.com", "short"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.email, tt.password)
			if !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("Register(%q, %q) = %v, want ErrValidation", tt.email, tt.password, err)
			}
		})
	}
}

func TestRegisterNeverStoresPlaintext(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	result, err := svc.Register(context.Background(), "sec@example.com", "super-secret-pw")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	stored, _ := repo.GetUserByID(context.Background(), result.User.ID)
	if stored.PasswordHash == "super-secret-pw" {
		t.Fatal("password stored in plaintext")
	}
	if stored.PasswordHash == "" {
		t.Fatal("password hash missing")
	}
}

// =========================================================================
// Login TESTS
// =========================================================================

func TestLogin(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())

	registered, err := svc.Register(context.Background(), "login@example.com", "correct-password")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	result, err := svc.Login(context.Background(), "login@example.com", "correct-password")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if result.User.ID != registered.User.ID {
		t.Errorf("Login() user ID = %q, want %q", result.User.ID, registered.User.ID)
	}

	userID, err := svc.ValidateToken(result.Token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if userID != registered.User.ID {
		t.Errorf("token subject = %q, want %q", userID, registered.User.ID)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())

	if _, err := svc.Register(context.Background(), "u@example.com", "correct-password"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	_, err := svc.Login(context.Background(), "u@example.com", "wrong-password")
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("Login() with wrong password = %v, want ErrUnauthorized", err)
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())

	_, err := svc.Login(context.Background(), "ghost@example.com", "whatever-password")
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("Login() with unknown email = %v, want ErrUnauthorized", err)
	}
}

func TestLoginErrorsAreIndistinguishable(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())

	if _, err := svc.Register(context.Background(), "real@example.com", "correct-password"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	_, errUnknown := svc.Login(context.Background(), "ghost@example.com", "x-password")
	_, errWrongPw := svc.Login(context.Background(), "real@example.com", "x-password")

	// Same message for both: the API must not reveal which accounts exist.
	if errUnknown.Error() != errWrongPw.Error() {
		t.Errorf("unknown-email error %q differs from wrong-password error %q",
			errUnknown.Error(), errWrongPw.Error())
	}
}

func TestRegisterPropagatesStorageErrors(t *testing.T) {
	repo := newFakeUserRepo()
	repo.createErr = errors.New("disk is full")
	svc := newTestAuthService(t, repo)

	_, err := svc.Register(context.Background(), "x@example.com", "valid-password")
	if err == nil {
		t.Fatal("Register() should propagate storage errors, not swallow them")
	}
}
