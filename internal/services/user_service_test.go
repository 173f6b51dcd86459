package services

import (
	"context"
	"testing"

	"github.com/joshua-takyi/gatherly/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserService(t *testing.T) (*UserService, *fakeUserRepo) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	repo := newFakeUserRepo()
	return NewUserService(repo), repo
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "Alice", "Alice@Example.com", "S3cret-pass")
	require.NoError(t, err)
	assert.NotEmpty(t, registered.Token)
	assert.Equal(t, "Alice", registered.User.Name)
	assert.Equal(t, "alice@example.com", registered.User.Email)

	loggedIn, err := svc.Login(ctx, "alice@example.com", "S3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, loggedIn.User.ID)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "Alice", "alice@example.com", "S3cret-pass")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "Other Alice", "alice@example.com", "An0ther-pass")
	assert.ErrorIs(t, err, models.ErrUserExists)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "Alice", "alice@example.com", "S3cret-pass")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "alice@example.com", "wrong-pass")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@example.com", "S3cret-pass")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestResolveUser(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "Alice", "alice@example.com", "S3cret-pass")
	require.NoError(t, err)

	userID, err := svc.ResolveUser(ctx, registered.Token)
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, userID)

	_, err = svc.ResolveUser(ctx, "")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = svc.ResolveUser(ctx, "not-a-token")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestRegisterRejectsWeakPasswords(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	for _, password := range []string{"short1A", "alllowercase1", "ALLUPPERCASE1", "NoDigitsHere"} {
		_, err := svc.Register(ctx, "Alice", "alice@example.com", password)
		assert.Error(t, err, "password %q should be rejected", password)
	}
}

func TestPasswordsAreStoredHashed(t *testing.T) {
	svc, repo := newUserService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "Alice", "alice@example.com", "S3cret-pass")
	require.NoError(t, err)

	stored, err := repo.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "S3cret-pass", stored.Password)
	assert.NotEmpty(t, stored.Password)
}
