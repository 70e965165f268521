package authpw

import (
	"context"
	"errors"
	"testing"

	"investiflow/api/internal/store"
)

// mockUserStore is a mock implementation of UserStore for testing
type mockUserStore struct {
	users      map[string]store.User
	emailIndex map[string]string // email -> userID
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:      make(map[string]store.User),
		emailIndex: make(map[string]string),
	}
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if userID, ok := m.emailIndex[email]; ok {
		return m.users[userID], nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) EmailTaken(ctx context.Context, email string) (bool, error) {
	_, ok := m.emailIndex[email]
	return ok, nil
}

func (m *mockUserStore) InsertUser(ctx context.Context, user store.User) (store.User, error) {
	m.users[user.ID] = user
	m.emailIndex[user.Email] = user.ID
	return user, nil
}

func (m *mockUserStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	if user, ok := m.users[userID]; ok {
		user.PasswordHash = passwordHash
		m.users[userID] = user
		return nil
	}
	return errors.New("user not found")
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore)

	t.Run("successful registration", func(t *testing.T) {
		user, err := svc.Register(ctx, RegisterRequest{
			Email:    "Test@Example.com",
			Password: "password123",
			FullName: "Test User",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.ID == "" {
			t.Error("expected user ID to be set")
		}
		if user.Email != "test@example.com" {
			t.Errorf("expected lowercased email, got %s", user.Email)
		}
		if user.PasswordHash == "password123" {
			t.Error("expected password to be hashed")
		}
		if !user.IsActive {
			t.Error("expected new user to be active")
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := svc.Register(ctx, RegisterRequest{
			Email:    "test@example.com",
			Password: "password123",
			FullName: "Test User 2",
		})
		if !errors.Is(err, ErrEmailTaken) {
			t.Errorf("got %v, want ErrEmailTaken", err)
		}
	})

	t.Run("short password", func(t *testing.T) {
		_, err := svc.Register(ctx, RegisterRequest{
			Email:    "test2@example.com",
			Password: "short",
			FullName: "Test User",
		})
		if !errors.Is(err, ErrWeakPassword) {
			t.Errorf("got %v, want ErrWeakPassword", err)
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		if _, err := svc.Register(ctx, RegisterRequest{}); err == nil {
			t.Error("expected error for missing fields")
		}
	})
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore)

	if _, err := svc.Register(ctx, RegisterRequest{
		Email:    "test@example.com",
		Password: "password123",
		FullName: "Test User",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	t.Run("successful sign in", func(t *testing.T) {
		user, err := svc.Authenticate(ctx, "test@example.com", "password123")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.Email != "test@example.com" {
			t.Errorf("expected email test@example.com, got %s", user.Email)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "test@example.com", "wrongpassword")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("got %v, want ErrInvalidCredentials", err)
		}
	})

	t.Run("non-existent user", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "nonexistent@example.com", "password123")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("got %v, want ErrInvalidCredentials", err)
		}
	})

	t.Run("disabled account", func(t *testing.T) {
		user, _ := svc.Register(ctx, RegisterRequest{
			Email:    "disabled@example.com",
			Password: "password123",
			FullName: "Disabled User",
		})
		user.IsActive = false
		mockStore.users[user.ID] = user

		_, err := svc.Authenticate(ctx, "disabled@example.com", "password123")
		if !errors.Is(err, ErrAccountDisabled) {
			t.Errorf("got %v, want ErrAccountDisabled", err)
		}
	})
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore)

	user, err := svc.Register(ctx, RegisterRequest{
		Email:    "test@example.com",
		Password: "password123",
		FullName: "Test User",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	t.Run("wrong current password", func(t *testing.T) {
		err := svc.ChangePassword(ctx, user.ID, "wrongpassword", "newpassword123")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("got %v, want ErrInvalidCredentials", err)
		}
	})

	t.Run("short new password", func(t *testing.T) {
		err := svc.ChangePassword(ctx, user.ID, "password123", "short")
		if !errors.Is(err, ErrWeakPassword) {
			t.Errorf("got %v, want ErrWeakPassword", err)
		}
	})

	t.Run("successful change", func(t *testing.T) {
		if err := svc.ChangePassword(ctx, user.ID, "password123", "newpassword123"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := svc.Authenticate(ctx, "test@example.com", "password123"); err == nil {
			t.Error("expected old password to stop working")
		}
		if _, err := svc.Authenticate(ctx, "test@example.com", "newpassword123"); err != nil {
			t.Errorf("expected new password to work: %v", err)
		}
	})
}
