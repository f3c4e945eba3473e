package users

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/humanmade/backend/internal/storage/models"
	"github.com/humanmade/backend/internal/storage/schema"
	"github.com/humanmade/backend/internal/storage/sqlite"
	"github.com/humanmade/backend/pkg/apperror"
	"github.com/humanmade/backend/pkg/logger"
)

const (
	MaxIDLength       = 30
	MinPasswordLength = 8
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Service struct {
	db   *sqlite.Client
	cost int
}

func NewService(db *sqlite.Client) *Service {
	return &Service{db: db, cost: bcrypt.DefaultCost}
}

// WithCost returns a copy hashing with the given bcrypt cost.
func (s *Service) WithCost(cost int) *Service {
	c := *s
	c.cost = cost
	return &c
}

// SetUser inserts u or, when the id exists, overwrites its hash and role.
// It reports whether a new row was created.
func (s *Service) SetUser(ctx context.Context, u models.User) (bool, error) {
	if u.ID == "" {
		return false, apperror.Validation("user id is required")
	}

	created := false
	err := s.db.WithTx(ctx, func(tx *sqlite.Client) error {
		existing, err := tx.Count(ctx, schema.UserTableName, sqlite.Where{sqlite.Eq(schema.UserID, u.ID)})
		if err != nil {
			return err
		}

		if existing > 0 {
			_, err = tx.Update(ctx, schema.UserTableName, sqlite.Record{
				schema.UserPasswordHash: u.PasswordHash,
				schema.UserRole:         u.Role,
			}, sqlite.Where{sqlite.Eq(schema.UserID, u.ID)})
			return err
		}

		if _, err := tx.Insert(ctx, schema.UserTableName, u.Record()); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}

	logger.Debug("User stored", zap.String("id", u.ID), zap.String("role", u.Role), zap.Bool("created", created))
	return created, nil
}

// Register creates a regular user. An existing id is a validation error.
func (s *Service) Register(ctx context.Context, id, password string) (*models.User, error) {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > MaxIDLength {
		return nil, apperror.Validation("user id must be 1 to %d characters", MaxIDLength)
	}
	if len(password) < MinPasswordLength {
		return nil, apperror.Validation("password must be at least %d characters", MinPasswordLength)
	}

	if _, err := s.GetUser(ctx, id); err == nil {
		return nil, apperror.Validation("user %q already exists", id)
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}

	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}

	u := models.User{ID: id, PasswordHash: hash, Role: models.RoleUser}
	if _, err := s.SetUser(ctx, u); err != nil {
		return nil, err
	}

	logger.Info("User registered", zap.String("id", id))
	return &u, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (*models.User, error) {
	rows, err := sqlite.List[models.User](ctx, s.db, schema.UserTableName, sqlite.ListOptions{
		Where: sqlite.Where{sqlite.Eq(schema.UserID, id)},
		Limit: 1,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperror.NotFound("user %q does not exist", id)
	}
	return &rows[0], nil
}

// ListUsers returns every user, optionally restricted to one role.
func (s *Service) ListUsers(ctx context.Context, role string) ([]models.User, error) {
	return sqlite.List[models.User](ctx, s.db, schema.UserTableName, sqlite.ListOptions{
		Where:   sqlite.Where{sqlite.If(role != "", sqlite.Eq(schema.UserRole, role))},
		OrderBy: []sqlite.Order{{Column: schema.UserID}},
	})
}

func (s *Service) DeleteUser(ctx context.Context, id string) error {
	n, err := s.db.Delete(ctx, schema.UserTableName, sqlite.Where{sqlite.Eq(schema.UserID, id)})
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NotFound("user %q does not exist", id)
	}

	logger.Info("User deleted", zap.String("id", id))
	return nil
}

// Authenticate returns the user when password matches its stored hash. Unknown
// ids and wrong passwords both yield ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, id, password string) (*models.User, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// EnsureAdmin upserts an admin from a "name:password" pair. The password is
// rehashed on every start so a changed setting takes effect.
func (s *Service) EnsureAdmin(ctx context.Context, credentials string) error {
	name, password, ok := strings.Cut(credentials, ":")
	name = strings.TrimSpace(name)
	if !ok || name == "" || password == "" {
		return apperror.Validation("admin credentials must look like name:password")
	}

	hash, err := s.hash(password)
	if err != nil {
		return err
	}

	created, err := s.SetUser(ctx, models.User{ID: name, PasswordHash: hash, Role: models.RoleAdmin})
	if err != nil {
		return err
	}

	logger.Info("Admin user ensured", zap.String("id", name), zap.Bool("created", created))
	return nil
}

func (s *Service) hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", apperror.Validation("cannot hash password: %v", err)
	}
	return string(b), nil
}
