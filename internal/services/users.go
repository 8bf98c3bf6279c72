package services

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"aiweb-backend-go/internal/models"

	"github.com/jmoiron/sqlx"
)

const userColumns = `id, username, email, password_hash, is_active, is_admin, created_at, last_login`

// Directory owns user identities: registration, login, profile changes and
// the admin mutations.
type Directory struct {
	DB     *sqlx.DB
	Tokens TokenService
	Audit  *AuditLog
	Now    func() time.Time
}

func NewDirectory(db *sqlx.DB, tokens TokenService, audit *AuditLog) *Directory {
	return &Directory{DB: db, Tokens: tokens, Audit: audit, Now: func() time.Time { return time.Now().UTC() }}
}

func (d *Directory) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

type Registration struct {
	Username   string
	Email      string
	Password   string
	SignupCode string
}

// Register creates a user and consumes the signup code in one transaction.
// Of two registrations racing on the same code exactly one succeeds.
func (d *Directory) Register(ctx context.Context, reg Registration, client ClientInfo) (models.User, error) {
	username := strings.TrimSpace(reg.Username)
	email := normalizeEmail(reg.Email)
	code := strings.TrimSpace(reg.SignupCode)
	if username == "" || email == "" || reg.Password == "" || code == "" {
		return models.User{}, ErrValidation("Username, email, password, and signup code are required")
	}
	if err := validateUsername(username); err != nil {
		return models.User{}, err
	}
	if err := validateEmail(email); err != nil {
		return models.User{}, err
	}
	if err := ValidatePassword(reg.Password); err != nil {
		return models.User{}, err
	}
	hash, err := d.Tokens.HashPassword(reg.Password)
	if err != nil {
		return models.User{}, Internal(err, "Registration failed")
	}

	tx, err := d.DB.BeginTxx(ctx, nil)
	if err != nil {
		return models.User{}, Internal(err, "Registration failed")
	}
	defer tx.Rollback()

	now := d.now()
	var signup models.SignupCode
	err = tx.GetContext(ctx, &signup, tx.Rebind(`SELECT id, code, expires_at, created_at, used_by_user_id, used_at FROM signup_codes WHERE code = ?`), code)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !signup.IsValid(now)) {
		return models.User{}, ErrValidation("Invalid or expired signup code")
	}
	if err != nil {
		return models.User{}, Internal(err, "Registration failed")
	}
	if taken, err := exists(ctx, tx, `SELECT count(*) FROM users WHERE username = ?`, username); err != nil {
		return models.User{}, Internal(err, "Registration failed")
	} else if taken {
		return models.User{}, ErrValidation("Username already exists")
	}
	if taken, err := exists(ctx, tx, `SELECT count(*) FROM users WHERE email = ?`, email); err != nil {
		return models.User{}, Internal(err, "Registration failed")
	} else if taken {
		return models.User{}, ErrValidation("Email already registered")
	}

	user := models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now,
	}
	err = tx.QueryRowxContext(ctx, tx.Rebind(`
INSERT INTO users (username, email, password_hash, is_active, is_admin, created_at)
VALUES (?,?,?,?,?,?)
RETURNING id
`), user.Username, user.Email, user.PasswordHash, true, false, now).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrValidation("Username or email already registered")
		}
		return models.User{}, Internal(err, "Registration failed")
	}

	res, err := tx.ExecContext(ctx, tx.Rebind(`
UPDATE signup_codes SET used_by_user_id = ?, used_at = ?
WHERE code = ? AND used_at IS NULL AND used_by_user_id IS NULL AND expires_at > ?
`), user.ID, now, code, now)
	if err != nil {
		return models.User{}, Internal(err, "Registration failed")
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return models.User{}, ErrValidation("Invalid or expired signup code")
	}
	if d.Audit != nil {
		if err := recordAction(ctx, tx, nil, now, user.ID, "register", map[string]interface{}{"email": email}, client); err != nil {
			return models.User{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrValidation("Username or email already registered")
		}
		return models.User{}, Internal(err, "Registration failed")
	}
	if d.Audit != nil {
		d.Audit.Hub.Publish(ActivityEvent{Kind: ActivityAction, UserID: &user.ID, Tag: "register", At: now})
	}
	return user, nil
}

// Authenticate resolves identifier as a username or an email and checks the
// password, then the active flag. Each call writes exactly one login log row.
func (d *Directory) Authenticate(ctx context.Context, identifier, password string, client ClientInfo) (models.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return models.User{}, ErrValidation("Username and password are required")
	}
	var user models.User
	err := d.DB.GetContext(ctx, &user, d.DB.Rebind(`SELECT `+userColumns+` FROM users WHERE username = ? OR email = ? ORDER BY id LIMIT 1`),
		identifier, strings.ToLower(identifier))
	if errors.Is(err, sql.ErrNoRows) {
		if err := d.recordLogin(ctx, nil, identifier, false, models.LoginInvalidUsername, client); err != nil {
			return models.User{}, err
		}
		return models.User{}, ErrUnauthorized("Invalid username or password")
	}
	if err != nil {
		return models.User{}, Internal(err, "Login failed")
	}
	if !d.Tokens.VerifyPassword(password, user.PasswordHash) {
		if err := d.recordLogin(ctx, &user.ID, identifier, false, models.LoginInvalidPassword, client); err != nil {
			return models.User{}, err
		}
		return models.User{}, ErrUnauthorized("Invalid username or password")
	}
	if !user.IsActive {
		if err := d.recordLogin(ctx, &user.ID, identifier, false, models.LoginAccountDisabled, client); err != nil {
			return models.User{}, err
		}
		return models.User{}, ErrUnauthorized("Account is disabled")
	}

	now := d.now()
	if _, err := d.DB.ExecContext(ctx, d.DB.Rebind(`UPDATE users SET last_login = ? WHERE id = ?`), now, user.ID); err != nil {
		return models.User{}, Internal(err, "Login failed")
	}
	user.LastLogin = &now
	if err := d.recordLogin(ctx, &user.ID, identifier, true, "", client); err != nil {
		return models.User{}, err
	}
	if d.Audit != nil {
		if err := d.Audit.RecordAction(ctx, user.ID, "login", nil, client); err != nil {
			return models.User{}, err
		}
	}
	return user, nil
}

func (d *Directory) recordLogin(ctx context.Context, userID *int64, username string, success bool, reason string, client ClientInfo) error {
	if d.Audit == nil {
		return nil
	}
	return d.Audit.RecordLogin(ctx, userID, username, success, reason, client)
}

func (d *Directory) GetUser(ctx context.Context, userID int64) (models.User, error) {
	var user models.User
	err := d.DB.GetContext(ctx, &user, d.DB.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound("User not found")
	}
	if err != nil {
		return models.User{}, Internal(err, "Failed to load user")
	}
	return user, nil
}

func (d *Directory) ListUsers(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	if err := d.DB.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC`); err != nil {
		return nil, Internal(err, "Failed to get users")
	}
	return users, nil
}

// UpdateEmail changes the caller's own email. An empty or unchanged email is
// a no-op.
func (d *Directory) UpdateEmail(ctx context.Context, userID int64, email string) (models.User, error) {
	user, err := d.GetUser(ctx, userID)
	if err != nil {
		return models.User{}, err
	}
	email = normalizeEmail(email)
	if email == "" || email == user.Email {
		return user, nil
	}
	if err := validateEmail(email); err != nil {
		return models.User{}, err
	}
	if taken, err := exists(ctx, d.DB, `SELECT count(*) FROM users WHERE email = ? AND id <> ?`, email, userID); err != nil {
		return models.User{}, Internal(err, "Profile update failed")
	} else if taken {
		return models.User{}, ErrValidation("Email already registered")
	}
	if _, err := d.DB.ExecContext(ctx, d.DB.Rebind(`UPDATE users SET email = ? WHERE id = ?`), email, userID); err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrValidation("Email already registered")
		}
		return models.User{}, Internal(err, "Profile update failed")
	}
	user.Email = email
	return user, nil
}

func (d *Directory) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	if current == "" || next == "" {
		return ErrValidation("Current password and new password are required")
	}
	user, err := d.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !d.Tokens.VerifyPassword(current, user.PasswordHash) {
		return ErrUnauthorized("Current password is incorrect")
	}
	if err := ValidatePassword(next); err != nil {
		return err
	}
	return d.setPassword(ctx, userID, next, "Password change failed")
}

func (d *Directory) setPassword(ctx context.Context, userID int64, raw, failMsg string) error {
	hash, err := d.Tokens.HashPassword(raw)
	if err != nil {
		return Internal(err, failMsg)
	}
	if _, err := d.DB.ExecContext(ctx, d.DB.Rebind(`UPDATE users SET password_hash = ? WHERE id = ?`), hash, userID); err != nil {
		return Internal(err, failMsg)
	}
	return nil
}

// UserUpdate carries the admin-editable fields; nil means unchanged.
type UserUpdate struct {
	Username *string
	Email    *string
	IsActive *bool
	IsAdmin  *bool
}

func (u UserUpdate) empty() bool {
	return u.Username == nil && u.Email == nil && u.IsActive == nil && u.IsAdmin == nil
}

// UpdateUser applies an admin edit. The acting admin cannot deactivate or
// demote themself.
func (d *Directory) UpdateUser(ctx context.Context, actorID, targetID int64, upd UserUpdate) (models.User, error) {
	user, err := d.GetUser(ctx, targetID)
	if err != nil {
		return models.User{}, err
	}
	if upd.empty() {
		return models.User{}, ErrValidation("No data provided")
	}
	if upd.Username != nil {
		username := strings.TrimSpace(*upd.Username)
		if err := validateUsername(username); err != nil {
			return models.User{}, err
		}
		if username != user.Username {
			if taken, err := exists(ctx, d.DB, `SELECT count(*) FROM users WHERE username = ? AND id <> ?`, username, targetID); err != nil {
				return models.User{}, Internal(err, "Failed to update user")
			} else if taken {
				return models.User{}, ErrValidation("Username already exists")
			}
			user.Username = username
		}
	}
	if upd.Email != nil {
		email := normalizeEmail(*upd.Email)
		if email == "" {
			return models.User{}, ErrValidation("Email cannot be empty")
		}
		if err := validateEmail(email); err != nil {
			return models.User{}, err
		}
		if email != user.Email {
			if taken, err := exists(ctx, d.DB, `SELECT count(*) FROM users WHERE email = ? AND id <> ?`, email, targetID); err != nil {
				return models.User{}, Internal(err, "Failed to update user")
			} else if taken {
				return models.User{}, ErrValidation("Email already exists")
			}
			user.Email = email
		}
	}
	if upd.IsActive != nil {
		if targetID == actorID && !*upd.IsActive {
			return models.User{}, ErrValidation("Cannot deactivate your own account")
		}
		user.IsActive = *upd.IsActive
	}
	if upd.IsAdmin != nil {
		if targetID == actorID && !*upd.IsAdmin {
			return models.User{}, ErrValidation("Cannot remove admin privileges from your own account")
		}
		user.IsAdmin = *upd.IsAdmin
	}
	_, err = d.DB.ExecContext(ctx, d.DB.Rebind(`UPDATE users SET username = ?, email = ?, is_active = ?, is_admin = ? WHERE id = ?`),
		user.Username, user.Email, user.IsActive, user.IsAdmin, targetID)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrValidation("Username or email already exists")
		}
		return models.User{}, Internal(err, "Failed to update user")
	}
	return user, nil
}

// DeleteUser removes a user and, through cascades, their logs. It returns the
// deleted username.
func (d *Directory) DeleteUser(ctx context.Context, actorID, targetID int64) (string, error) {
	user, err := d.GetUser(ctx, targetID)
	if err != nil {
		return "", err
	}
	if targetID == actorID {
		return "", ErrValidation("Cannot delete yourself")
	}
	if _, err := d.DB.ExecContext(ctx, d.DB.Rebind(`DELETE FROM users WHERE id = ?`), targetID); err != nil {
		return "", Internal(err, "Failed to delete user")
	}
	return user.Username, nil
}

func (d *Directory) SetBlocked(ctx context.Context, actorID, targetID int64, block bool) (models.User, error) {
	user, err := d.GetUser(ctx, targetID)
	if err != nil {
		return models.User{}, err
	}
	if targetID == actorID {
		return models.User{}, ErrValidation("Cannot block yourself")
	}
	if _, err := d.DB.ExecContext(ctx, d.DB.Rebind(`UPDATE users SET is_active = ? WHERE id = ?`), !block, targetID); err != nil {
		return models.User{}, Internal(err, "Failed to update user status")
	}
	user.IsActive = !block
	return user, nil
}

func (d *Directory) SetAdmin(ctx context.Context, actorID, targetID int64, admin bool) (models.User, error) {
	user, err := d.GetUser(ctx, targetID)
	if err != nil {
		return models.User{}, err
	}
	if !admin && targetID == actorID {
		return models.User{}, ErrValidation("Cannot remove admin privileges from yourself")
	}
	if _, err := d.DB.ExecContext(ctx, d.DB.Rebind(`UPDATE users SET is_admin = ? WHERE id = ?`), admin, targetID); err != nil {
		return models.User{}, Internal(err, "Failed to update admin privileges")
	}
	user.IsAdmin = admin
	return user, nil
}

// ResetPassword sets a new password for targetID. When newPassword is empty a
// random one is generated. The password in effect is returned.
func (d *Directory) ResetPassword(ctx context.Context, targetID int64, newPassword string) (string, models.User, error) {
	user, err := d.GetUser(ctx, targetID)
	if err != nil {
		return "", models.User{}, err
	}
	if newPassword == "" {
		newPassword, err = randomPassword()
		if err != nil {
			return "", models.User{}, Internal(err, "Failed to reset password")
		}
	}
	if len([]rune(newPassword)) < MinPasswordLength {
		return "", models.User{}, ErrValidation("Password must be at least 8 characters long")
	}
	if err := d.setPassword(ctx, targetID, newPassword, "Failed to reset password"); err != nil {
		return "", models.User{}, err
	}
	return newPassword, user, nil
}

// EnsureBootstrapAdmin creates or promotes the configured admin when the
// directory has no admin yet. It reports whether anything changed.
func (d *Directory) EnsureBootstrapAdmin(ctx context.Context, username, email, password string) (bool, error) {
	username = strings.TrimSpace(username)
	email = normalizeEmail(email)
	if username == "" || email == "" || password == "" {
		return false, nil
	}
	if found, err := exists(ctx, d.DB, `SELECT count(*) FROM users WHERE is_admin = ?`, true); err != nil {
		return false, err
	} else if found {
		return false, nil
	}
	hash, err := d.Tokens.HashPassword(password)
	if err != nil {
		return false, err
	}
	res, err := d.DB.ExecContext(ctx, d.DB.Rebind(`UPDATE users SET is_admin = ?, is_active = ? WHERE username = ? OR email = ?`), true, true, username, email)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}
	_, err = d.DB.ExecContext(ctx, d.DB.Rebind(`
INSERT INTO users (username, email, password_hash, is_active, is_admin, created_at)
VALUES (?,?,?,?,?,?)
`), username, email, hash, true, true, d.now())
	if err != nil {
		return false, err
	}
	return true, nil
}

func exists(ctx context.Context, q sqlx.ExtContext, query string, args ...interface{}) (bool, error) {
	var count int
	if err := sqlx.GetContext(ctx, q, &count, q.Rebind(query), args...); err != nil {
		return false, err
	}
	return count > 0, nil
}

func randomPassword() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
