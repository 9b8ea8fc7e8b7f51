package user

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrNotFound = errors.New("user not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateUser(ctx context.Context, user *User) (*User, error) {
	var id int
	query := "INSERT INTO users (username, password) VALUES ($1, $2) RETURNING id"

	err := r.db.QueryRowContext(ctx, query, user.Username, user.Password).Scan(&id)
	if err != nil {
		return nil, err
	}

	user.ID = id
	return user, nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	u := &User{}
	query := "SELECT id, username, password FROM users WHERE username = $1"

	err := r.db.QueryRowContext(ctx, query, username).Scan(&u.ID, &u.Username, &u.Password)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return u, nil
}

func (r *Repository) GetUserByID(ctx context.Context, id int) (*User, error) {
	u := &User{}
	query := "SELECT id, username, status, is_online, last_seen FROM users WHERE id = $1"

	err := r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Username, &u.Status, &u.IsOnline, &u.LastSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return u, nil
}

func (r *Repository) SearchUsers(ctx context.Context, query string) ([]User, error) {
	// We limit to 10 to keep it fast
	q := `SELECT id, username, is_online FROM users WHERE username ILIKE $1 LIMIT 10`
	rows, err := r.db.QueryContext(ctx, q, "%"+query+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.IsOnline); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *Repository) MarkOnline(ctx context.Context, id int) error {
	query := "UPDATE users SET is_online = TRUE, last_seen = NOW() WHERE id = $1"
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *Repository) MarkOffline(ctx context.Context, id int) error {
	query := "UPDATE users SET is_online = FALSE, last_seen = NOW() WHERE id = $1"
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *Repository) SetStatus(ctx context.Context, id int, status string) error {
	query := "UPDATE users SET status = $2 WHERE id = $1"
	_, err := r.db.ExecContext(ctx, query, id, status)
	return err
}

func (r *Repository) FindOnline(ctx context.Context) ([]User, error) {
	q := "SELECT id, username, status FROM users WHERE is_online = TRUE"
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Status); err != nil {
			return nil, err
		}
		u.IsOnline = true
		users = append(users, u)
	}
	return users, rows.Err()
}

// TouchSeen refreshes last_seen for a batch of users. The reconciler calls it
// for every live connection before the stale sweep, so a long session is never
// mistaken for a crashed one.
func (r *Repository) TouchSeen(ctx context.Context, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE users SET last_seen = NOW() WHERE id = ANY($1)`
	_, err := r.db.ExecContext(ctx, query, ids)
	return err
}

// MarkOfflineWhereStale flips is_online for rows that kept the flag past the
// threshold, healing crash-without-disconnect drift. Returns rows affected.
func (r *Repository) MarkOfflineWhereStale(ctx context.Context, threshold time.Duration) (int64, error) {
	query := `UPDATE users SET is_online = FALSE
	          WHERE is_online = TRUE AND last_seen < NOW() - ($1 * INTERVAL '1 second')`
	res, err := r.db.ExecContext(ctx, query, threshold.Seconds())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
