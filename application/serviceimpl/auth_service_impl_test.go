package serviceimpl

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"phototagger/domain/models"
	"phototagger/domain/services"
)

type memUserRepo struct {
	users map[uuid.UUID]*models.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[uuid.UUID]*models.User)}
}

func (r *memUserRepo) Create(ctx context.Context, user *models.User) error {
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *memUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memUserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	for _, u := range r.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memUserRepo) Update(ctx context.Context, id uuid.UUID, user *models.User) error {
	if _, ok := r.users[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *user
	r.users[id] = &cp
	return nil
}

func (r *memUserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(r.users, id)
	return nil
}

func TestRegisterAndLogin(t *testing.T) {
	repo := newMemUserRepo()
	svc := NewAuthService(repo, "test-secret")
	ctx := context.Background()

	token, user, err := svc.Register(ctx, services.RegisterRequest{
		Email:    "Alice@Example.com",
		Username: "alice",
		Password: "correct horse",
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if token == "" {
		t.Error("expected a signed token from Register")
	}
	if user.Email != "alice@example.com" {
		t.Errorf("expected email normalized to lowercase, got %q", user.Email)
	}
	if stored := repo.users[user.ID]; stored.Password == "correct horse" {
		t.Error("password stored in plaintext")
	}

	// Login with a differently-cased email hits the same account
	token, logged, err := svc.Login(ctx, services.LoginRequest{
		Email:    " ALICE@example.com ",
		Password: "correct horse",
	})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if token == "" {
		t.Error("expected a signed token from Login")
	}
	if logged.ID != user.ID {
		t.Errorf("logged in as %s, expected %s", logged.ID, user.ID)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	repo := newMemUserRepo()
	svc := NewAuthService(repo, "test-secret")
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, services.RegisterRequest{
		Email: "bob@example.com", Username: "bob", Password: "hunter22hunter22",
	}); err != nil {
		t.Fatalf("first Register returned error: %v", err)
	}

	_, _, err := svc.Register(ctx, services.RegisterRequest{
		Email: "BOB@example.com", Username: "bobby", Password: "hunter22hunter22",
	})
	if !errors.Is(err, services.ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken for duplicate email, got %v", err)
	}

	_, _, err = svc.Register(ctx, services.RegisterRequest{
		Email: "other@example.com", Username: "bob", Password: "hunter22hunter22",
	})
	if !errors.Is(err, services.ErrUsernameTaken) {
		t.Errorf("expected ErrUsernameTaken for duplicate username, got %v", err)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	repo := newMemUserRepo()
	svc := NewAuthService(repo, "test-secret")
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, services.RegisterRequest{
		Email: "carol@example.com", Username: "carol", Password: "swordfish1234",
	}); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	// Unknown account and wrong password look identical to the caller
	_, _, unknownErr := svc.Login(ctx, services.LoginRequest{
		Email: "nobody@example.com", Password: "swordfish1234",
	})
	_, _, wrongErr := svc.Login(ctx, services.LoginRequest{
		Email: "carol@example.com", Password: "not-swordfish",
	})

	for _, err := range []error{unknownErr, wrongErr} {
		if !errors.Is(err, services.ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Errorf("credential errors differ: %q vs %q", unknownErr, wrongErr)
	}
}

func TestGetCurrentUser(t *testing.T) {
	repo := newMemUserRepo()
	svc := NewAuthService(repo, "test-secret")
	ctx := context.Background()

	_, user, err := svc.Register(ctx, services.RegisterRequest{
		Email: "dave@example.com", Username: "dave", Password: "longenoughpw",
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	got, err := svc.GetCurrentUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetCurrentUser returned error: %v", err)
	}
	if !strings.EqualFold(got.Email, "dave@example.com") {
		t.Errorf("unexpected email %q", got.Email)
	}

	if _, err := svc.GetCurrentUser(ctx, uuid.New()); !errors.Is(err, services.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound for unknown ID, got %v", err)
	}
}
