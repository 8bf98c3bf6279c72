package services

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"aiweb-backend-go/internal/models"
)

const (
	DefaultSignupCodeDays = 7
	MaxSignupCodeDays     = 365
)

const signupCodeColumns = `id, code, expires_at, created_at, used_by_user_id, used_at`

// CreateSignupCode issues a single-use code valid for days days.
func (d *Directory) CreateSignupCode(ctx context.Context, days int) (models.SignupCode, error) {
	if days < 1 || days > MaxSignupCodeDays {
		return models.SignupCode{}, ErrValidation("expires_in_days must be between 1 and 365")
	}
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return models.SignupCode{}, Internal(err, "Failed to create signup code")
	}
	now := d.now()
	code := models.SignupCode{
		Code:      hex.EncodeToString(raw),
		ExpiresAt: now.Add(time.Duration(days) * 24 * time.Hour),
		CreatedAt: now,
	}
	err := d.DB.QueryRowxContext(ctx, d.DB.Rebind(`
INSERT INTO signup_codes (code, expires_at, created_at)
VALUES (?,?,?)
RETURNING id
`), code.Code, code.ExpiresAt, code.CreatedAt).Scan(&code.ID)
	if err != nil {
		return models.SignupCode{}, Internal(err, "Failed to create signup code")
	}
	return code, nil
}

func (d *Directory) ListSignupCodes(ctx context.Context) ([]models.SignupCode, error) {
	codes := []models.SignupCode{}
	if err := d.DB.SelectContext(ctx, &codes, `SELECT `+signupCodeColumns+` FROM signup_codes ORDER BY created_at DESC, id DESC`); err != nil {
		return nil, Internal(err, "Failed to get signup codes")
	}
	return codes, nil
}

// DeleteSignupCode revokes an unused code. Consumed codes stay as a record of
// who registered with them.
func (d *Directory) DeleteSignupCode(ctx context.Context, id int64) error {
	var code models.SignupCode
	err := d.DB.GetContext(ctx, &code, d.DB.Rebind(`SELECT `+signupCodeColumns+` FROM signup_codes WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound("Signup code not found")
	}
	if err != nil {
		return Internal(err, "Failed to delete signup code")
	}
	if code.IsUsed() {
		return ErrValidation("Cannot delete a signup code that has already been used")
	}
	res, err := d.DB.ExecContext(ctx, d.DB.Rebind(`DELETE FROM signup_codes WHERE id = ? AND used_at IS NULL`), id)
	if err != nil {
		return Internal(err, "Failed to delete signup code")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrValidation("Cannot delete a signup code that has already been used")
	}
	return nil
}
