package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	dbpkg "github.com/BrandonDHaskell/Portaria/server/internal/db"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/store"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/types"
)

const userColumns = `id, login, password_hash, first_name, last_name, job_title,
  role, photo_url, created_at_ms`

type UserStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewUserStore(db *sql.DB, writer *dbpkg.Worker) *UserStore {
	return &UserStore{db: db, writer: writer}
}

func (s *UserStore) CreateUser(ctx context.Context, rec store.UserRecord) (store.UserRecord, error) {
	rec.Login = strings.ToLower(strings.TrimSpace(rec.Login))
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var photo any
	if rec.PhotoURL != "" {
		photo = rec.PhotoURL
	}

	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE login = ?;`, rec.Login).Scan(&exists)
		if err == nil {
			return store.ErrUserExists
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("CreateUser lookup: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO users(`+userColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			rec.ID, rec.Login, rec.PasswordHash, rec.FirstName, rec.LastName,
			rec.JobTitle, string(rec.Role), photo, rec.CreatedAt.UTC().UnixMilli(),
		); err != nil {
			return fmt.Errorf("CreateUser insert: %w", err)
		}
		return nil
	})
	if err != nil {
		return store.UserRecord{}, err
	}
	return rec, nil
}

func (s *UserStore) FindByID(ctx context.Context, id string) (store.UserRecord, error) {
	return s.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?;`, id)
}

func (s *UserStore) FindByLogin(ctx context.Context, login string) (store.UserRecord, error) {
	return s.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE login = ?;`,
		strings.ToLower(strings.TrimSpace(login)))
}

func (s *UserStore) findOne(ctx context.Context, query string, arg string) (store.UserRecord, error) {
	var (
		rec       store.UserRecord
		role      string
		photo     sql.NullString
		createdMs int64
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&rec.ID, &rec.Login, &rec.PasswordHash, &rec.FirstName, &rec.LastName,
		&rec.JobTitle, &role, &photo, &createdMs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return store.UserRecord{}, store.ErrUserNotFound
	}
	if err != nil {
		return store.UserRecord{}, fmt.Errorf("find user: %w", err)
	}

	rec.Role = types.Role(role)
	rec.PhotoURL = photo.String
	rec.CreatedAt = time.UnixMilli(createdMs).UTC()
	return rec, nil
}
