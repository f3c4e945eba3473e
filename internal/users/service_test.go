package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/humanmade/backend/internal/storage/models"
	"github.com/humanmade/backend/internal/storage/sqlite"
	"github.com/humanmade/backend/pkg/apperror"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	db, err := sqlite.NewClient(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.CreateSchema(context.Background()))

	return NewService(db).WithCost(bcrypt.MinCost)
}

func TestSetUserUpserts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.SetUser(ctx, models.User{ID: "ann", PasswordHash: "h1", Role: models.RoleUser})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.SetUser(ctx, models.User{ID: "ann", PasswordHash: "h2", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.False(t, created)

	u, err := svc.GetUser(ctx, "ann")
	require.NoError(t, err)
	assert.Equal(t, "h2", u.PasswordHash)
	assert.Equal(t, models.RoleAdmin, u.Role)

	all, err := svc.ListUsers(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSetUserRequiresID(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.SetUser(context.Background(), models.User{Role: models.RoleUser})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, " bob ", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "bob", u.ID)
	assert.Equal(t, models.RoleUser, u.Role)
	assert.NotEqual(t, "correct horse", u.PasswordHash)

	got, err := svc.Authenticate(ctx, "bob", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "bob", got.ID)

	_, err = svc.Authenticate(ctx, "bob", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "", "long enough")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = svc.Register(ctx, "this-id-is-way-too-long-for-the-column", "long enough")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = svc.Register(ctx, "carl", "short")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = svc.Register(ctx, "carl", "long enough")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "carl", "another one")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestListUsersByRole(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureAdmin(ctx, "root:secret"))
	_, err := svc.Register(ctx, "zed", "long enough")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "amy", "long enough")
	require.NoError(t, err)

	all, err := svc.ListUsers(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "amy", all[0].ID)
	assert.Equal(t, "root", all[1].ID)
	assert.Equal(t, "zed", all[2].ID)

	admins, err := svc.ListUsers(ctx, models.RoleAdmin)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, "root", admins[0].ID)
}

func TestDeleteUser(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "dan", "long enough")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteUser(ctx, "dan"))
	assert.ErrorIs(t, svc.DeleteUser(ctx, "dan"), apperror.ErrNotFound)

	_, err = svc.GetUser(ctx, "dan")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestEnsureAdmin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureAdmin(ctx, "admin:first:with-colon"))
	u, err := svc.Authenticate(ctx, "admin", "first:with-colon")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)

	require.NoError(t, svc.EnsureAdmin(ctx, "admin:second"))
	_, err = svc.Authenticate(ctx, "admin", "first:with-colon")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "admin", "second")
	assert.NoError(t, err)

	for _, bad := range []string{"", "admin", ":pw", "admin:"} {
		assert.ErrorIs(t, svc.EnsureAdmin(ctx, bad), apperror.ErrValidation, bad)
	}
}
