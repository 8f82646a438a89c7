package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-identity/app/entity"
)

const accountColumns = `id, email, encrypted_password, sign_in_count, last_sign_in_at,
	       email_verified, email_verified_at, verify_email_token, verify_email_sent_at,
	       magic_link_token, magic_link_sent_at, reset_password_token, reset_password_sent_at,
	       given_name, family_name, phone_number, job, created_at, updated_at`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, account *entity.Account) error {
	query := `
		INSERT INTO accounts (email, encrypted_password, sign_in_count, last_sign_in_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		account.Email,
		account.EncryptedPassword,
		account.SignInCount,
		account.LastSignInAt,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	account.ID = uint64(id)
	return nil
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*entity.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts WHERE email = ?
	`
	return r.findOne(ctx, query, email)
}

func (r *AccountRepository) FindByID(ctx context.Context, id uint64) (*entity.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts WHERE id = ?
	`
	return r.findOne(ctx, query, id)
}

func (r *AccountRepository) FindByMagicLinkToken(ctx context.Context, token string) (*entity.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts WHERE magic_link_token = ?
	`
	return r.findOne(ctx, query, token)
}

func (r *AccountRepository) FindByResetPasswordToken(ctx context.Context, token string) (*entity.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts WHERE reset_password_token = ?
	`
	return r.findOne(ctx, query, token)
}

func (r *AccountRepository) findOne(ctx context.Context, query string, arg any) (*entity.Account, error) {
	account := &entity.Account{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&account.ID,
		&account.Email,
		&account.EncryptedPassword,
		&account.SignInCount,
		&account.LastSignInAt,
		&account.EmailVerified,
		&account.EmailVerifiedAt,
		&account.VerifyEmailToken,
		&account.VerifyEmailSentAt,
		&account.MagicLinkToken,
		&account.MagicLinkSentAt,
		&account.ResetPasswordToken,
		&account.ResetPasswordSentAt,
		&account.GivenName,
		&account.FamilyName,
		&account.PhoneNumber,
		&account.Job,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

const updateAccountSet = `
		UPDATE accounts SET
			email = ?,
			encrypted_password = ?,
			sign_in_count = ?,
			last_sign_in_at = ?,
			email_verified = ?,
			email_verified_at = ?,
			verify_email_token = ?,
			verify_email_sent_at = ?,
			magic_link_token = ?,
			magic_link_sent_at = ?,
			reset_password_token = ?,
			reset_password_sent_at = ?,
			given_name = ?,
			family_name = ?,
			phone_number = ?,
			job = ?,
			updated_at = ?`

func (r *AccountRepository) Update(ctx context.Context, account *entity.Account) error {
	query := updateAccountSet + `
		WHERE id = ?
	`
	account.UpdatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, query, append(updateArgs(account), account.ID)...)
	return err
}

// ConsumeVerifyEmailToken persists account but only if the stored
// verification token still equals token. A false return means a concurrent
// request consumed it first.
func (r *AccountRepository) ConsumeVerifyEmailToken(ctx context.Context, account *entity.Account, token string) (bool, error) {
	query := updateAccountSet + `
		WHERE id = ? AND verify_email_token = ?
	`
	return r.consume(ctx, query, account, token)
}

// ConsumeMagicLinkToken persists account but only if the stored magic link
// token still equals token.
func (r *AccountRepository) ConsumeMagicLinkToken(ctx context.Context, account *entity.Account, token string) (bool, error) {
	query := updateAccountSet + `
		WHERE id = ? AND magic_link_token = ?
	`
	return r.consume(ctx, query, account, token)
}

// ConsumeResetPasswordToken persists account but only if the stored reset
// password token still equals token.
func (r *AccountRepository) ConsumeResetPasswordToken(ctx context.Context, account *entity.Account, token string) (bool, error) {
	query := updateAccountSet + `
		WHERE id = ? AND reset_password_token = ?
	`
	return r.consume(ctx, query, account, token)
}

func (r *AccountRepository) consume(ctx context.Context, query string, account *entity.Account, token string) (bool, error) {
	account.UpdatedAt = time.Now()
	result, err := r.db.ExecContext(ctx, query, append(updateArgs(account), account.ID, token)...)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func updateArgs(account *entity.Account) []any {
	return []any{
		account.Email,
		account.EncryptedPassword,
		account.SignInCount,
		account.LastSignInAt,
		account.EmailVerified,
		account.EmailVerifiedAt,
		account.VerifyEmailToken,
		account.VerifyEmailSentAt,
		account.MagicLinkToken,
		account.MagicLinkSentAt,
		account.ResetPasswordToken,
		account.ResetPasswordSentAt,
		account.GivenName,
		account.FamilyName,
		account.PhoneNumber,
		account.Job,
		account.UpdatedAt,
	}
}

// PurgeExpiredTokens clears token/sent_at pairs whose expiration window has
// already lapsed. Consumption clears tokens on use; this sweeps the ones
// that were issued and never presented.
func (r *AccountRepository) PurgeExpiredTokens(ctx context.Context, now time.Time, verifyTTL, magicLinkTTL, resetTTL time.Duration) (int64, error) {
	var total int64

	statements := []struct {
		query  string
		cutoff time.Time
	}{
		{
			query: `UPDATE accounts SET verify_email_token = NULL, verify_email_sent_at = NULL
				WHERE verify_email_token IS NOT NULL AND verify_email_sent_at < ?`,
			cutoff: now.Add(-verifyTTL),
		},
		{
			query: `UPDATE accounts SET magic_link_token = NULL, magic_link_sent_at = NULL
				WHERE magic_link_token IS NOT NULL AND magic_link_sent_at < ?`,
			cutoff: now.Add(-magicLinkTTL),
		},
		{
			query: `UPDATE accounts SET reset_password_token = NULL, reset_password_sent_at = NULL
				WHERE reset_password_token IS NOT NULL AND reset_password_sent_at < ?`,
			cutoff: now.Add(-resetTTL),
		},
	}

	for _, stmt := range statements {
		result, err := r.db.ExecContext(ctx, stmt.query, stmt.cutoff)
		if err != nil {
			return total, err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return total, err
		}
		total += rows
	}

	return total, nil
}
