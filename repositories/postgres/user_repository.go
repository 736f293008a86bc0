package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/upb/authentication-api/models"
	"github.com/upb/authentication-api/repositories"
	"go.uber.org/zap"
)

// userSelect joins the role table and folds roles into a comma separated
// column so both drivers scan it as plain text.
const userSelect = `
	SELECT u.id, u.username, u.email, u.password_hash, u.enabled, u.created_at,
	       COALESCE(string_agg(r.role, ',' ORDER BY r.role), '')
	FROM users u
	LEFT JOIN user_roles r ON r.user_id = u.id
`

// UserRepository implements the repositories.UserRepository interface
type UserRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB, logger *zap.Logger) repositories.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts the user and its roles in a single statement
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		WITH inserted AS (
			INSERT INTO users (id, username, email, password_hash, enabled, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		)
		INSERT INTO user_roles (user_id, role)
		SELECT inserted.id, role FROM inserted, unnest(string_to_array($7, ',')) AS role
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		user.ID,
		user.Username,
		strings.ToLower(user.Email),
		user.PasswordHash,
		user.Enabled,
		user.CreatedAt,
		models.JoinRoles(user.Roles),
	)

	if err != nil {
		if isUniqueViolation(err) {
			return repositories.ErrDuplicateUser
		}
		return repositories.StoreError("create user", err)
	}

	r.logger.Debug("user created", zap.String("id", user.ID.String()), zap.String("username", user.Username))
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.findOne(ctx, userSelect+` WHERE u.id = $1 GROUP BY u.id`, id)
}

// GetByUsername retrieves a user by username
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findOne(ctx, userSelect+` WHERE u.username = $1 GROUP BY u.id`, username)
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, userSelect+` WHERE u.email = $1 GROUP BY u.id`, strings.ToLower(email))
}

// ExistsByUsername reports whether the username is taken
func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username)
}

// ExistsByEmail reports whether the email is taken
func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, strings.ToLower(email))
}

// List retrieves users ordered by creation time with pagination
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := userSelect + `
		GROUP BY u.id
		ORDER BY u.created_at, u.username
		LIMIT NULLIF($1, 0) OFFSET $2
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, repositories.StoreError("list users", err)
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, repositories.StoreError("scan user", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, repositories.StoreError("iterate users", err)
	}

	return users, nil
}

func (r *UserRepository) findOne(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	executor := GetExecutor(ctx, r.db)
	user, err := scanUser(executor.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, repositories.StoreError("get user", err)
	}
	return user, nil
}

func (r *UserRepository) exists(ctx context.Context, query string, arg string) (bool, error) {
	executor := GetExecutor(ctx, r.db)
	var exists bool
	if err := executor.QueryRowContext(ctx, query, arg).Scan(&exists); err != nil {
		return false, repositories.StoreError("check user", err)
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var roles string
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Enabled,
		&user.CreatedAt,
		&roles,
	)
	if err != nil {
		return nil, err
	}
	user.Roles = models.ParseRoles(roles)
	return user, nil
}
