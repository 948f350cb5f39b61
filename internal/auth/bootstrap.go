package auth

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// EnsureAdmin seeds the bootstrap admin account on first boot so the
// dashboard is reachable before any users exist. No-op when the username is
// already present.
func EnsureAdmin(ctx context.Context, db *sql.DB, username, passHash string) error {
	var n int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM users WHERE username=$1`, username).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO users (id, username, role, password_hash, created_at)
		 VALUES ($1,$2,'admin',$3,$4)`,
		uuid.NewString(), username, passHash, time.Now().Unix())
	return err
}
