package store

import (
	"database/sql"
	"fmt"
	"time"
)

type User struct {
	ID        int64
	Name      string
	Email     string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

const userSelectCols = `id, name, email, is_active, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	var active, createdAt, updatedAt any
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &active, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	u.IsActive = parseBool(active)
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	return &u, nil
}

func scanUsers(rows *sql.Rows) ([]*User, error) {
	users := []*User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateUser inserts u and reloads it so that ID and timestamps are set.
func (db *DB) CreateUser(u *User) error {
	var id int64
	err := db.QueryRow(db.Q(`INSERT INTO users (name, email, is_active) VALUES (?, ?, ?) RETURNING id`),
		u.Name, u.Email, db.boolArg(u.IsActive)).Scan(&id)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	created, err := db.GetUser(id)
	if err != nil {
		return fmt.Errorf("create user reload: %w", err)
	}
	*u = *created
	return nil
}

func (db *DB) GetUser(id int64) (*User, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM users WHERE id=?`, userSelectCols)), id)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFound("user", id, err)
	}
	return u, nil
}

func (db *DB) ListUsers() ([]*User, error) {
	rows, err := db.Query(fmt.Sprintf(`SELECT %s FROM users ORDER BY id`, userSelectCols))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

// SaveUser writes every mutable column of u and bumps updated_at.
func (db *DB) SaveUser(u *User) error {
	res, err := db.Exec(db.Q(fmt.Sprintf(`UPDATE users SET name=?, email=?, is_active=?, updated_at=%s WHERE id=?`, db.dialect.Now())),
		u.Name, u.Email, db.boolArg(u.IsActive), u.ID)
	if err != nil {
		return fmt.Errorf("save user %d: %w", u.ID, err)
	}
	return affected("user", u.ID, res)
}

// DeleteUser reports whether a row was removed.
func (db *DB) DeleteUser(id int64) (bool, error) {
	res, err := db.Exec(db.Q(`DELETE FROM users WHERE id=?`), id)
	if err != nil {
		return false, fmt.Errorf("delete user %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete user %d rows affected: %w", id, err)
	}
	return n > 0, nil
}
