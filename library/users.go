package library

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

func (d *Database) userSelect() sq.SelectBuilder {
	return d.builder.Select(
		"id", "name", "email", "dob", "phone", "is_admin", "photo_url",
		"password_hash", "password_salt", "created_at", "updated_at",
	).From("users")
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u   User
		dob sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &dob, &u.Phone, &u.IsAdmin, &u.PhotoURL,
		&u.PasswordHash, &u.PasswordSalt, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if dob.Valid {
		t := dob.Time
		u.DOB = &t
	}
	return &u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ListUsers returns every user; membersOnly restricts the result to non-admins.
func (d *Database) ListUsers(ctx context.Context, membersOnly bool) ([]*User, error) {
	q := d.userSelect().OrderBy("name", "id")
	if membersOnly {
		q = q.Where(sq.Eq{"is_admin": false})
	}
	rows, err := queryBuilt(ctx, d.db, q)
	if err != nil {
		return nil, storageErr("list users", err)
	}
	defer rows.Close()

	users := []*User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, storageErr("list users", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list users", err)
	}
	return users, nil
}

// GetUser fetches a single user.
func (d *Database) GetUser(ctx context.Context, id string) (*User, error) {
	return d.getUser(ctx, d.db, sq.Eq{"id": id}, id)
}

// GetUserByEmail fetches a user by (normalized) email.
func (d *Database) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	email = normalizeEmail(email)
	return d.getUser(ctx, d.db, sq.Eq{"email": email}, email)
}

func (d *Database) getUser(ctx context.Context, q querier, where sq.Eq, key string) (*User, error) {
	row, err := queryRowBuilt(ctx, q, d.userSelect().Where(where))
	if err != nil {
		return nil, storageErr("get user", err)
	}
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundErr("user", key)
	}
	if err != nil {
		return nil, storageErr("get user", err)
	}
	return u, nil
}

func (d *Database) emailTaken(ctx context.Context, q querier, email, exceptID string) (bool, error) {
	where := sq.And{sq.Eq{"email": email}}
	if exceptID != "" {
		where = append(where, sq.NotEq{"id": exceptID})
	}
	var n int
	row, err := queryRowBuilt(ctx, q, d.builder.Select("COUNT(*)").From("users").Where(where))
	if err != nil {
		return false, err
	}
	if err := row.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// AddUser validates, hashes the password and inserts a user. A duplicate
// email is a conflict and leaves the existing record untouched.
func (d *Database) AddUser(ctx context.Context, in UserInput) (*User, error) {
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return nil, validationErr("user name is required")
	}
	if in.Email == nil || normalizeEmail(*in.Email) == "" {
		return nil, validationErr("user email is required")
	}
	if in.Password == nil || *in.Password == "" {
		return nil, validationErr("user password is required")
	}

	hash, salt, err := HashPassword(*in.Password)
	if err != nil {
		return nil, err
	}
	now := utc(time.Now())
	u := &User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(*in.Name),
		Email:        normalizeEmail(*in.Email),
		Phone:        deref(in.Phone),
		PhotoURL:     deref(in.PhotoURL),
		PasswordHash: hash,
		PasswordSalt: salt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if in.IsAdmin != nil {
		u.IsAdmin = *in.IsAdmin
	}
	var dob sql.NullTime
	if in.DOB != nil {
		t := utc(*in.DOB)
		u.DOB = &t
		dob = sql.NullTime{Time: t, Valid: true}
	}

	err = d.inTx(ctx, func(tx *sql.Tx) error {
		taken, err := d.emailTaken(ctx, tx, u.Email, "")
		if err != nil {
			return storageErr("add user", err)
		}
		if taken {
			return conflictErr("user with email %s already exists", u.Email)
		}
		ins := d.builder.Insert("users").
			Columns("id", "name", "email", "dob", "phone", "is_admin", "photo_url",
				"password_hash", "password_salt", "created_at", "updated_at").
			Values(u.ID, u.Name, u.Email, dob, u.Phone, u.IsAdmin, u.PhotoURL,
				u.PasswordHash, u.PasswordSalt, u.CreatedAt, u.UpdatedAt)
		if _, err := execBuilt(ctx, tx, ins); err != nil {
			return storageErr("add user", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// UpdateUser applies the non-nil fields of in. A new password is re-salted.
func (d *Database) UpdateUser(ctx context.Context, id string, in UserInput) (*User, error) {
	set := map[string]any{}
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, validationErr("user name cannot be empty")
		}
		set["name"] = strings.TrimSpace(*in.Name)
	}
	var email string
	if in.Email != nil {
		email = normalizeEmail(*in.Email)
		if email == "" {
			return nil, validationErr("user email cannot be empty")
		}
		set["email"] = email
	}
	if in.Password != nil && *in.Password != "" {
		hash, salt, err := HashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		set["password_hash"] = hash
		set["password_salt"] = salt
	}
	if in.DOB != nil {
		set["dob"] = sql.NullTime{Time: utc(*in.DOB), Valid: true}
	}
	if in.Phone != nil {
		set["phone"] = *in.Phone
	}
	if in.IsAdmin != nil {
		set["is_admin"] = *in.IsAdmin
	}
	if in.PhotoURL != nil {
		set["photo_url"] = *in.PhotoURL
	}

	var user *User
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := d.getUser(ctx, tx, sq.Eq{"id": id}, id); err != nil {
			return err
		}
		if email != "" {
			taken, err := d.emailTaken(ctx, tx, email, id)
			if err != nil {
				return storageErr("update user", err)
			}
			if taken {
				return conflictErr("user with email %s already exists", email)
			}
		}
		if len(set) > 0 {
			set["updated_at"] = utc(time.Now())
			if _, err := execBuilt(ctx, tx, d.builder.Update("users").SetMap(set).Where(sq.Eq{"id": id})); err != nil {
				return storageErr("update user", err)
			}
		}
		var err error
		user, err = d.getUser(ctx, tx, sq.Eq{"id": id}, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteUser removes a user and their closed borrowal history. A user who
// still holds a book cannot be deleted.
func (d *Database) DeleteUser(ctx context.Context, id string) (*User, error) {
	var user *User
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if user, err = d.getUser(ctx, tx, sq.Eq{"id": id}, id); err != nil {
			return err
		}
		open, err := d.countOpenBorrowals(ctx, tx, sq.Eq{"member_id": id})
		if err != nil {
			return storageErr("delete user", err)
		}
		if open > 0 {
			return conflictErr("user %s has %d book(s) on loan", id, open)
		}
		if _, err := execBuilt(ctx, tx, d.builder.Delete("borrowals").Where(sq.Eq{"member_id": id})); err != nil {
			return storageErr("delete user", err)
		}
		if _, err := execBuilt(ctx, tx, d.builder.Delete("users").Where(sq.Eq{"id": id})); err != nil {
			return storageErr("delete user", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate returns the user whose email and password match.
func (d *Database) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := d.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !VerifyPassword(password, u.PasswordHash, u.PasswordSalt) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}
