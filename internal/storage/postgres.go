package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"slidecast/internal/auth"
	"slidecast/internal/models"
)

// PostgresConfig describes how the repository initialises its connection pool.
type PostgresConfig struct {
	DSN             string
	MaxConnections  int32
	MinConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration
	ApplicationName string
	Logger          *slog.Logger
}

// PostgresRepository persists users, sessions, and slides in Postgres so
// multiple API replicas can share state.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	now    func() time.Time
	logger *slog.Logger
}

// NewPostgresRepository opens a Postgres-backed repository and ensures the
// schema exists.
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections > 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	repo := &PostgresRepository{pool: pool, now: time.Now, logger: logger}
	if err := repo.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

// Close releases the connection pool, honouring the context deadline.
func (r *PostgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (r *PostgresRepository) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS users_username_idx ON users (LOWER(username))`,
		`CREATE TABLE IF NOT EXISTS live_sessions (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			owner_id TEXT NOT NULL REFERENCES users(id),
			start_time TIMESTAMPTZ,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS slides (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES live_sessions(id),
			slide_type TEXT NOT NULL,
			image_url TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS slides_session_idx ON slides (session_id, id)`,
	}
	for _, stmt := range statements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) CreateUser(params CreateUserParams) (models.User, error) {
	ctx := context.Background()
	email := normalizeEmail(params.Email)
	username := strings.TrimSpace(params.Username)

	var exists string
	err := r.pool.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, email).Scan(&exists)
	if err == nil {
		return models.User{}, ErrEmailTaken
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, fmt.Errorf("check email: %w", err)
	}
	err = r.pool.QueryRow(ctx, `SELECT id FROM users WHERE LOWER(username) = LOWER($1)`, username).Scan(&exists)
	if err == nil {
		return models.User{}, ErrUsernameTaken
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, fmt.Errorf("check username: %w", err)
	}

	hashed, err := auth.HashPassword(params.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hashed,
		CreatedAt:    r.now().UTC(),
	}
	_, err = r.pool.Exec(ctx, `
INSERT INTO users (id, username, email, password_hash, created_at)
VALUES ($1, $2, $3, $4, $5)
`, user.ID, user.Username, user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) AuthenticateUser(email, password string) (models.User, error) {
	row := r.pool.QueryRow(context.Background(), `
SELECT id, username, email, password_hash, created_at
FROM users
WHERE email = $1
`, normalizeEmail(email))
	var user models.User
	if err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("load user: %w", err)
	}
	if !auth.VerifyPassword(password, user.PasswordHash) {
		return models.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (r *PostgresRepository) GetUser(id string) (models.User, bool) {
	row := r.pool.QueryRow(context.Background(), `
SELECT id, username, email, password_hash, created_at
FROM users
WHERE id = $1
`, id)
	var user models.User
	if err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt); err != nil {
		return models.User{}, false
	}
	return user, true
}

func (r *PostgresRepository) CreateSession(ownerID, title string) (models.Session, error) {
	session := models.Session{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(title),
		OwnerID:   ownerID,
		Status:    models.SessionStatusPending,
		CreatedAt: r.now().UTC(),
	}
	_, err := r.pool.Exec(context.Background(), `
INSERT INTO live_sessions (id, title, owner_id, start_time, status, created_at)
VALUES ($1, $2, $3, NULL, $4, $5)
`, session.ID, session.Title, session.OwnerID, string(session.Status), session.CreatedAt)
	if err != nil {
		return models.Session{}, fmt.Errorf("insert session: %w", err)
	}
	return session, nil
}

func scanSession(row pgx.Row) (models.Session, error) {
	var session models.Session
	var status string
	if err := row.Scan(&session.ID, &session.Title, &session.OwnerID, &session.StartTime, &status, &session.CreatedAt); err != nil {
		return models.Session{}, err
	}
	session.Status = models.SessionStatus(status)
	return session, nil
}

func (r *PostgresRepository) GetSession(id string) (models.Session, bool) {
	session, err := scanSession(r.pool.QueryRow(context.Background(), `
SELECT id, title, owner_id, start_time, status, created_at
FROM live_sessions
WHERE id = $1
`, id))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			r.logger.Error("get session failed", "session_id", id, "error", err)
		}
		return models.Session{}, false
	}
	return session, true
}

func (r *PostgresRepository) ListSessions(ownerID string) []models.Session {
	rows, err := r.pool.Query(context.Background(), `
SELECT id, title, owner_id, start_time, status, created_at
FROM live_sessions
WHERE owner_id = $1
ORDER BY created_at, id
`, ownerID)
	if err != nil {
		r.logger.Error("list sessions failed", "owner_id", ownerID, "error", err)
		return nil
	}
	defer rows.Close()

	sessions := make([]models.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			r.logger.Error("scan session failed", "owner_id", ownerID, "error", err)
			return nil
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("list sessions failed", "owner_id", ownerID, "error", err)
		return nil
	}
	return sessions
}

func (r *PostgresRepository) StartSession(id string) (models.Session, error) {
	ctx := context.Background()
	current, ok := r.GetSession(id)
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}
	if current.StartTime != nil {
		return models.Session{}, ErrSessionAlreadyStarted
	}

	now := r.now().UTC()
	// The start_time guard repeats in SQL so concurrent starts race safely.
	tag, err := r.pool.Exec(ctx, `
UPDATE live_sessions
SET start_time = $2, status = $3
WHERE id = $1 AND start_time IS NULL
`, id, now, string(models.SessionStatusActive))
	if err != nil {
		return models.Session{}, fmt.Errorf("start session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.Session{}, ErrSessionAlreadyStarted
	}
	current.StartTime = &now
	current.Status = models.SessionStatusActive
	return current, nil
}

func (r *PostgresRepository) EndSession(id string) (models.Session, error) {
	ctx := context.Background()
	current, ok := r.GetSession(id)
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}
	if current.StartTime == nil {
		return models.Session{}, ErrSessionNotStarted
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE live_sessions
SET status = $2
WHERE id = $1 AND start_time IS NOT NULL
`, id, string(models.SessionStatusInactive))
	if err != nil {
		return models.Session{}, fmt.Errorf("end session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.Session{}, ErrSessionNotStarted
	}
	current.Status = models.SessionStatusInactive
	return current, nil
}

func (r *PostgresRepository) AppendSlides(sessionID string, imageURLs []string) ([]models.Slide, error) {
	ctx := context.Background()
	if _, ok := r.GetSession(sessionID); !ok {
		return nil, ErrSessionNotFound
	}

	now := r.now().UTC()
	created := make([]models.Slide, 0, len(imageURLs))
	for _, url := range imageURLs {
		slide := models.Slide{
			SessionID: sessionID,
			Type:      models.SlideTypeImage,
			ImageURL:  url,
			CreatedAt: now,
		}
		err := r.pool.QueryRow(ctx, `
INSERT INTO slides (session_id, slide_type, image_url, created_at)
VALUES ($1, $2, $3, $4)
RETURNING id
`, slide.SessionID, slide.Type, slide.ImageURL, slide.CreatedAt).Scan(&slide.ID)
		if err != nil {
			return nil, fmt.Errorf("insert slide: %w", err)
		}
		created = append(created, slide)
	}
	return created, nil
}

func (r *PostgresRepository) ListSlides(sessionID string) ([]models.Slide, error) {
	ctx := context.Background()
	if _, ok := r.GetSession(sessionID); !ok {
		return nil, ErrSessionNotFound
	}

	rows, err := r.pool.Query(ctx, `
SELECT id, session_id, slide_type, image_url, created_at
FROM slides
WHERE session_id = $1
ORDER BY id
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list slides: %w", err)
	}
	defer rows.Close()

	slides := make([]models.Slide, 0)
	for rows.Next() {
		var slide models.Slide
		if err := rows.Scan(&slide.ID, &slide.SessionID, &slide.Type, &slide.ImageURL, &slide.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan slide: %w", err)
		}
		slides = append(slides, slide)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list slides: %w", err)
	}
	return slides, nil
}
