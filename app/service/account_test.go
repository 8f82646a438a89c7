package service_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-identity/app/dto"
	"github.com/vibast-solutions/ms-go-identity/app/entity"
	"github.com/vibast-solutions/ms-go-identity/app/mail"
	"github.com/vibast-solutions/ms-go-identity/app/repository"
	"github.com/vibast-solutions/ms-go-identity/app/service"
	"github.com/vibast-solutions/ms-go-identity/config"

	"github.com/DATA-DOG/go-sqlmock"
	"golang.org/x/crypto/bcrypt"
)

var accountColumns = []string{
	"id",
	"email",
	"encrypted_password",
	"sign_in_count",
	"last_sign_in_at",
	"email_verified",
	"email_verified_at",
	"verify_email_token",
	"verify_email_sent_at",
	"magic_link_token",
	"magic_link_sent_at",
	"reset_password_token",
	"reset_password_sent_at",
	"given_name",
	"family_name",
	"phone_number",
	"job",
	"created_at",
	"updated_at",
}

const (
	selectAccountColumns = `SELECT id, email, encrypted_password, sign_in_count, last_sign_in_at,\s+email_verified, email_verified_at, verify_email_token, verify_email_sent_at,\s+magic_link_token, magic_link_sent_at, reset_password_token, reset_password_sent_at,\s+given_name, family_name, phone_number, job, created_at, updated_at`

	findByEmailQuery              = `(?s)` + selectAccountColumns + `\s+FROM accounts WHERE email = \?`
	findByIDQuery                 = `(?s)` + selectAccountColumns + `\s+FROM accounts WHERE id = \?`
	findByMagicLinkTokenQuery     = `(?s)` + selectAccountColumns + `\s+FROM accounts WHERE magic_link_token = \?`
	findByResetPasswordTokenQuery = `(?s)` + selectAccountColumns + `\s+FROM accounts WHERE reset_password_token = \?`

	insertAccountQuery = `(?s)INSERT INTO accounts \(email, encrypted_password, sign_in_count, last_sign_in_at, created_at, updated_at\)\s+VALUES \(\?, \?, \?, \?, \?, \?\)`

	updateAccountSet = `UPDATE accounts SET\s+email = \?,\s+encrypted_password = \?,\s+sign_in_count = \?,\s+last_sign_in_at = \?,\s+email_verified = \?,\s+email_verified_at = \?,\s+verify_email_token = \?,\s+verify_email_sent_at = \?,\s+magic_link_token = \?,\s+magic_link_sent_at = \?,\s+reset_password_token = \?,\s+reset_password_sent_at = \?,\s+given_name = \?,\s+family_name = \?,\s+phone_number = \?,\s+job = \?,\s+updated_at = \?`

	updateAccountQuery             = `(?s)` + updateAccountSet + `\s+WHERE id = \?\s*$`
	consumeVerifyEmailTokenQuery   = `(?s)` + updateAccountSet + `\s+WHERE id = \? AND verify_email_token = \?`
	consumeMagicLinkTokenQuery     = `(?s)` + updateAccountSet + `\s+WHERE id = \? AND magic_link_token = \?`
	consumeResetPasswordTokenQuery = `(?s)` + updateAccountSet + `\s+WHERE id = \? AND reset_password_token = \?`
)

type recordingMailer struct {
	sent []mail.Mail
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Mail) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type stubChecker struct {
	safe       bool
	didYouMean string
}

func (c *stubChecker) IsEmailSafeToSend(_ context.Context, _ string) (bool, string, error) {
	return c.safe, c.didYouMean, nil
}

type accountServiceFixture struct {
	svc     service.AccountService
	mock    sqlmock.Sqlmock
	mailer  *recordingMailer
	checker *stubChecker
	close   func()
}

func newAccountServiceFixture(t *testing.T) *accountServiceFixture {
	t.Helper()

	return newAccountServiceFixtureWithPolicy(t, config.PasswordPolicy{
		MinLength:        1,
		RequireUppercase: false,
		RequireLowercase: false,
		RequireNumber:    false,
		RequireSpecial:   false,
	})
}

func newAccountServiceFixtureWithPolicy(t *testing.T, policy config.PasswordPolicy) *accountServiceFixture {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	cfg := &config.Config{
		JWT: config.JWTConfig{
			Secret:         "test-secret",
			AccessTokenTTL: 3 * time.Hour,
		},
		Tokens: config.TokenConfig{
			VerifyEmailTTL:   60 * time.Minute,
			ResetPasswordTTL: 60 * time.Minute,
			MagicLinkTTL:     10 * time.Minute,
			VerifiedMaxAge:   3 * 30 * 24 * time.Hour,
		},
		Password: config.PasswordConfig{Policy: policy},
	}

	mailer := &recordingMailer{}
	checker := &stubChecker{safe: true}
	svc := service.NewAccountService(repository.NewAccountRepository(db), checker, mailer, cfg)

	return &accountServiceFixture{
		svc:     svc,
		mock:    mock,
		mailer:  mailer,
		checker: checker,
		close:   func() { _ = db.Close() },
	}
}

func addAccountRow(rows *sqlmock.Rows, a *entity.Account) *sqlmock.Rows {
	return rows.AddRow(
		a.ID,
		a.Email,
		a.EncryptedPassword,
		a.SignInCount,
		a.LastSignInAt,
		a.EmailVerified,
		a.EmailVerifiedAt,
		a.VerifyEmailToken,
		a.VerifyEmailSentAt,
		a.MagicLinkToken,
		a.MagicLinkSentAt,
		a.ResetPasswordToken,
		a.ResetPasswordSentAt,
		a.GivenName,
		a.FamilyName,
		a.PhoneNumber,
		a.Job,
		a.CreatedAt,
		a.UpdatedAt,
	)
}

func anyUpdateArgs(n int) []driver.Value {
	args := make([]driver.Value, n)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	return args
}

func (f *accountServiceFixture) expectationsMet(t *testing.T) {
	t.Helper()
	if err := f.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStartLogin_ExistingAccount(t *testing.T) {
	f := newAccountServiceFixture(t)
	defer f.close()

	now := time.Now()
	f.mock.ExpectQuery(findByEmailQuery).
		WithArgs("user@entreprise.fr").
		WillReturnRows(addAccountRow(sqlmock.NewRows(accountColumns), &entity.Account{
			ID:        1,
			Email:     "user@entreprise.fr",
			CreatedAt: now,
			UpdatedAt: now,
		}))

	res, err := f.svc.StartLogin(context.Background(), "user@entreprise.fr")
	if err != nil {
		t.Fatalf("start login failed: %v", err)
	}
	if !res.UserExists {
		t.Fatalf("expected user to exist")
	}

	f.expectationsMet(t)
}

func TestStartLogin_UnknownDeliverableEmail(t *testing.T) {
	f := newAccountServiceFixture(t)
	defer f.close()

	f.mock.ExpectQuery(findByEmailQuery).
		WithArgs("new@entreprise.fr").
		WillReturnRows(sqlmock.NewRows(accountColumns))

	res, err := f.svc.StartLogin(context.Background(), "new@entreprise.fr")
	if err != nil {
		t.Fatalf("start login failed: %v", err)
	}
	if res.UserExists {
		t.Fatalf("expected user not to exist")
	}
	if res.Email != "new@entreprise.fr" {
		t.Fatalf("expected email to be echoed back, got %q", res.Email)
	}

	f.expectationsMet(t)
}

func TestStartLogin_UndeliverableEmail(t *testing.T) {
	f := newAccountServiceFixture(t)
	defer f.close()

	f.checker.safe = false
	f.checker.didYouMean = "user@gmail.com"

	f.mock.ExpectQuery(findByEmailQuery).
		WithArgs("user@gmil.com").
		WillReturnRows(sqlmock.NewRows(accountColumns))

	_, err := f.svc.StartLogin(context.Background(), "user@gmil.com")
	if !errors.Is(err, service.ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}

	var invalidEmail *service.InvalidEmailError
	if !errors.As(err, &invalidEmail) || invalidEmail.DidYouMean != "user@gmail.com" {
		t.Fatalf("expected suggestion user@gmail.com, got %v", err)
	}

	f.expectationsMet(t)
}

func TestStartLogin_SuggestionComputedLocally(t *testing.T) {
	f := newAccountServiceFixture(t)
	defer f.close()

	// the checker flags the address but offers no suggestion of its own
	f.checker.safe = false
	f.checker.didYouMean = ""

	f.mock.ExpectQuery(findByEmailQuery).
		WithArgs("user@gmil.com").
		WillReturnRows(sqlmock.NewRows(accountColumns))

	_, err := f.svc.StartLogin(context.Background(), "user@gmil.com")

	var invalidEmail *service.InvalidEmailError
	if !errors.As(err, &invalidEmail) {
		t.Fatalf("expected InvalidEmailError, got %v", err)
	}
	if invalidEmail.DidYouMean != "user@gmail.com" {
		t.Fatalf("expected locally computed suggestion, got %q", invalidEmail.DidYouMean)
	}

	f.expectationsMet(t)
}

func TestLogin_Success(t *testing.T) {
	f := newAccountServiceFixture(t)
	defer f.close()

	hashed, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	now := time.Now()

	f.mock.ExpectQuery(findByEmailQuery).
		WithArgs("user@entreprise.fr").
		WillReturnRows(addAccountRow(sqlmock.NewRows(accountColumns), &entity.Account{
			ID:                1,
			Email:             "user@entreprise.fr",
			EncryptedPassword: sql.NullString{String: string(hashed), Valid: true},
			SignInCount:       3,
			CreatedAt:         now,
			UpdatedAt:         now,
		}))
	f.mock.ExpectExec(updateAccountQuery).
		WithArgs(anyUpdateArgs(18)...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	account, err := f.svc.Login(context.Background(), "user@entreprise.fr", "password")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if account.SignInCount != 4 {
		t.Fatalf("expected sign_in_count 4, got %d", account.SignInCount)
	}
	if !account.LastSignInAt.Valid {
		t.Fatalf("expected last_sign_in_at to be stamped")
	}

	f.expectationsMet(t)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	f := newAccountServiceFixture(t)
	defer f.close()

	// unknown account
	f.mock.ExpectQuery(findByEmailQuery).
		WithArgs("missing@entreprise.fr").
		WillReturnRows(sqlmock.NewRows(accountColumns))

	_, missingErr := f.svc.Login(context.Background(), "missing@entreprise.fr", "password")
	if !errors.Is(missingErr, service.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown account, got %v", missingErr)
	}

	// wrong password
	hashed, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	now := time.Now()
	f.mock.ExpectQuery(findByEmailQuery).
		WithArgs("user@entreprise.fr").
		WillReturnRows(addAccountRow(sqlmock.NewRows(accountColumns), &entity.Account{
			ID:                1,
			Email:             "user@entreprise.fr",
			EncryptedPassword: sql.NullString{String: string(hashed), Valid: true},
			CreatedAt:         now,
			UpdatedAt:         now,
		}))

	_, wrongErr := f.svc.Login(context.Background(), "user@entreprise.fr", "not-the-password")
	if !errors.Is(wrongErr, service.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", wrongErr)
	}

	if missingErr.Error() != wrongErr.Error() {
		t.Fatalf("expected identical errors, got %q and %q", missingErr, wrongErr)
	}

	f.expectationsMet(t)
}

func TestLogin_MagicLinkOnlyAccount(t *testing.T) {
	f := newAccountServiceFixture(t)
	defer f.close()

	now := time.Now()
	f.mock.ExpectQuery(findByEmailQuery).
		WithArgs("user@entreprise.fr").
		WillReturnRows(addAccountRow(sqlmock.NewRows(accountColumns), &entity.Account{
			ID:        1,
			Email:     "user@entreprise.fr",
			CreatedAt: now,
			UpdatedAt: now,
		}))

	_, err := f.svc.Login(context.Background(), "user@entreprise.fr", "password")
	if !errors.Is(err, service.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for passwordless account, got %v", err)
	}

	f.expectationsMet(t)
}

func TestSignup_CreatesAccount(t *testing.T) {
	f := newAccountServiceFixture(t)
	defer f.close()

	f.mock.ExpectQuery(findByEmailQuery).
		WithArgs("new@entreprise.fr").
		WillReturnRows(sqlmock.NewRows(accountColumns))
	f.mock.ExpectExec(insertAccountQuery).
		WithArgs("new@entreprise.fr", sqlmock.AnyArg(), uint64(0), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	account, err := f.svc.Signup(context.Background(), "new@entreprise.fr", "password")
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	if account.ID != 1 {
		t.Fatalf("expected account ID 1, got %d", account.ID)
	}
	if !account.LastSignInAt.Valid {
		t.Fatalf("expected signup to count as first sign-in")
	}
	if !account.EncryptedPassword.Valid {
		t.Fatalf("expected password hash to be stored")
	}

	f.expectationsMet(t)
}

func TestSignup_EmailUnavailable(t *testing.T) {
	f := newAccountServiceFixture(t)
	defer f.close()

	now := time.Now()
	f.mock.ExpectQuery(findByEmailQuery).
		WithArgs("user@entreprise.fr").
		WillReturnRows(addAccountRow(sqlmock.NewRows(accountColumns), &entity.Account{
			ID:        1,
			Email:     "user@entreprise.fr",
			CreatedAt: now,
			UpdatedAt: now,
		}))

	_, err := f.svc.Signup(context.Background(), "user@entreprise.fr", "password")
	if !errors.Is(err, service.ErrEmailUnavailable) {
		t.Fatalf("expected ErrEmailUnavailable, got %v", err)
	}

	f.expectationsMet(t)
}

func TestSignup_WeakPassword(t *testing.T) {
	f := newAccountServiceFixtureWithPolicy(t, config.PasswordPolicy{MinLength: 10})
	defer f.close()

	f.mock.ExpectQuery(findByEmailQuery).
		WithArgs("new@entreprise.fr").
		WillReturnRows(sqlmock.NewRows(accountColumns))

	_, err := f.svc.Signup(context.Background(), "new@entreprise.fr", "short")
	if !errors.Is(err, service.ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}

	f.expectationsMet(t)
}

func TestSendVerificationEmail_AlreadyVerified(t *testing.T) {
	f := newAccountServiceFixture(t)
	defer f.close()

	now := time.Now()
	f.mock.ExpectQuery(findByEmailQuery).
		WithArgs("user@entreprise.fr").
		WillReturnRows(addAccountRow(sqlmock.NewRows(accountColumns), &entity.Account{
			ID:              1,
			Email:           "user@entreprise.fr",
			EmailVerified:   true,
			EmailVerifiedAt: sql.NullTime{Time: now, Valid: true},
			CreatedAt:       now,
			UpdatedAt:       now,
		}))

	_, err := f.svc.SendEmailAddressVerificationEmail(context.Background(), "user@entreprise.fr", false)
	if !errors.Is(err, service.ErrEmailVerifiedAlready) {
		t.Fatalf("expected ErrEmailVerifiedAlready, got %v", err)
	}

	f.expectationsMet(t)
}

func TestSendVerificationEmail_SkipsResendWithinWindow(t *testing.T) {
	f := newAccountServiceFixture(t)
	defer f.close()

	now := time.Now()
	f.mock.ExpectQuery(findByEmailQuery).
		WithArgs("user@entreprise.fr").
		WillReturnRows(addAccountRow(sqlmock.NewRows(accountColumns), &entity.Account{
			ID:                1,
			Email:             "user@entreprise.fr",
			VerifyEmailToken:  sql.NullString{String: "1234567890", Valid: true},
			VerifyEmailSentAt: sql.NullTime{Time: now.Add(-30 * time.Minute), Valid: true},
			CreatedAt:         now,
			UpdatedAt:         now,
		}))

	sent, err := f.svc.SendEmailAddressVerificationEmail(context.Background(), "user@entreprise.fr", true)
	if err != nil {
		t.Fatalf("send verification email failed: %v", err)
	}
	if sent {
		t.Fatalf("expected resend to be skipped inside the window")
	}
	if len(f.mailer.sent) != 0 {
		t.Fatalf("expected no email to be sent, got %d", len(f.mailer.sent))
	}

	f.expectationsMet(t)
}

func TestSendVerificationEmail_SendsGroupedPin(t *testing.T) {
	f := newAccountServiceFixture(t)
	defer f.close()

	now := time.Now()
	f.mock.ExpectQuery(findByEmailQuery).
		WithArgs("user@entreprise.fr").
		WillReturnRows(addAccountRow(sqlmock.NewRows(accountColumns), &entity.Account{
			ID:        1,
			Email:     "user@entreprise.fr",
			CreatedAt: now,
			UpdatedAt: now,
		}))
	f.mock.ExpectExec(updateAccountQuery).
		WithArgs(anyUpdateArgs(18)...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sent, err := f.svc.SendEmailAddressVerificationEmail(context.Background(), "user@entreprise.fr", true)
	if err != nil {
		t.Fatalf("send verification email failed: %v", err)
	}
	if !sent {
		t.Fatalf("expected email to be sent")
	}
	if len(f.mailer.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(f.mailer.sent))
	}

	msg := f.mailer.sent[0]
	if msg.Template != "verify-email" {
		t.Fatalf("expected verify-email template, got %q", msg.Template)
	}
	pin := msg.Params["verify_email_token"]
	if len(pin) != 13 || strings.Count(pin, " ") != 3 {
		t.Fatalf("expected pin grouped into 3-character blocks, got %q", pin)
	}

	f.expectationsMet(t)
}

func TestVerifyEmail_Success(t *testing.T) {
	f := newAccountServiceFixture(t)
	defer f.close()

	now := time.Now()
	f.mock.ExpectQuery(findByEmailQuery).
		WithArgs("user@entreprise.fr").
		WillReturnRows(addAccountRow(sqlmock.NewRows(accountColumns), &entity.Account{
			ID:                1,
			Email:             "user@entreprise.fr",
			VerifyEmailToken:  sql.NullString{String: "1234567890", Valid: true},
			VerifyEmailSentAt: sql.NullTime{Time: now.Add(-30 * time.Minute), Valid: true},
			CreatedAt:         now,
			UpdatedAt:         now,
		}))
	f.mock.ExpectExec(consumeVerifyEmailTokenQuery).
		WithArgs(anyUpdateArgs(19)...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	account, err := f.svc.VerifyEmail(context.Background(), "user@entreprise.fr", "1234567890")
	if err != nil {
		t.Fatalf("verify email failed: %v", err)
	}
	if !account.EmailVerified || !account.EmailVerifiedAt.Valid {
		t.Fatalf("expected account to be verified")
	}
	if account.VerifyEmailToken.Valid || account.VerifyEmailSentAt.Valid {
		t.Fatalf("expected token pair to be cleared")
	}

	f.expectationsMet(t)
}

func TestVerifyEmail_WrongToken(t *testing.T) {
	f := newAccountServiceFixture(t)
	defer f.close()

	now := time.Now()
	f.mock.ExpectQuery(findByEmailQuery).
		WithArgs("user@entreprise.fr").
		WillReturnRows(addAccountRow(sqlmock.NewRows(accountColumns), &entity.Account{
			ID:                1,
			Email:             "user@entreprise.fr",
			VerifyEmailToken:  sql.NullString{String: "1234567890", Valid: true},
			VerifyEmailSentAt: sql.NullTime{Time: now.Add(-30 * time.Minute), Valid: true},
			CreatedAt:         now,
			UpdatedAt:         now,
		}))

	_, err := f.svc.VerifyEmail(context.Background(), "user@entreprise.fr", "0000000000")
	if !errors.Is(err, service.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	f.expectationsMet(t)
}

func TestVerifyEmail_ExpiredToken(t *testing.T) {
	f := newAccountServiceFixture(t)
	defer f.close()

	now := time.Now()
	f.mock.ExpectQuery(findByEmailQuery).
		WithArgs("user@entreprise.fr").
		WillReturnRows(addAccountRow(sqlmock.NewRows(accountColumns), &entity.Account{
			ID:                1,
			Email:             "user@entreprise.fr",
			VerifyEmailToken:  sql.NullString{String: "1234567890", Valid: true},
			VerifyEmailSentAt: sql.NullTime{Time: now.Add(-61 * time.Minute), Valid: true},
			CreatedAt:         now,
			UpdatedAt:         now,
		}))

	_, err := f.svc.VerifyEmail(context.Background(), "user@entreprise.fr", "1234567890")
	if !errors.Is(err, service.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}

	f.expectationsMet(t)
}

func TestVerifyEmail_LostConsumptionRace(t *testing.T) {
	f := newAccountServiceFixture(t)
	defer f.close()

	now := time.Now()
	f.mock.ExpectQuery(findByEmailQuery).
		WithArgs("user@entreprise.fr").
		WillReturnRows(addAccountRow(sqlmock.NewRows(accountColumns), &entity.Account{
			ID:                1,
			Email:             "user@entreprise.fr",
			VerifyEmailToken:  sql.NullString{String: "1234567890", Valid: true},
			VerifyEmailSentAt: sql.NullTime{Time: now.Add(-30 * time.Minute), Valid: true},
			CreatedAt:         now,
			UpdatedAt:         now,
		}))
	// a concurrent request consumed the token between read and write
	f.mock.ExpectExec(consumeVerifyEmailTokenQuery).
		WithArgs(anyUpdateArgs(19)...).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := f.svc.VerifyEmail(context.Background(), "user@entreprise.fr", "1234567890")
	if !errors.Is(err, service.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after lost race, got %v", err)
	}

	f.expectationsMet(t)
}

func TestUpdateVerificationStatus_TrustDecay(t *testing.T) {
	f := newAccountServiceFixture(t)
	defer f.close()

	now := time.Now()
	f.mock.ExpectQuery(findByEmailQuery).
		WithArgs("user@entreprise.fr").
		WillReturnRows(addAccountRow(sqlmock.NewRows(accountColumns), &entity.Account{
			ID:              1,
			Email:           "user@entreprise.fr",
			EmailVerified:   true,
			EmailVerifiedAt: sql.NullTime{Time: now.Add(-91 * 24 * time.Hour), Valid: true},
			CreatedAt:       now,
			UpdatedAt:       now,
		}))
	f.mock.ExpectExec(updateAccountQuery).
		WithArgs(anyUpdateArgs(18)...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := f.svc.UpdateEmailAddressVerificationStatus(context.Background(), "user@entreprise.fr")
	if err != nil {
		t.Fatalf("update verification status failed: %v", err)
	}
	if !res.NeedsRenewal {
		t.Fatalf("expected renewal to be required")
	}
	if res.Account.EmailVerified {
		t.Fatalf("expected verified flag to be reset")
	}

	f.expectationsMet(t)
}

func TestUpdateVerificationStatus_FreshVerification(t *testing.T) {
	f := newAccountServiceFixture(t)
	defer f.close()

	now := time.Now()
	f.mock.ExpectQuery(findByEmailQuery).
		WithArgs("user@entreprise.fr").
		WillReturnRows(addAccountRow(sqlmock.NewRows(accountColumns), &entity.Account{
			ID:              1,
			Email:           "user@entreprise.fr",
			EmailVerified:   true,
			EmailVerifiedAt: sql.NullTime{Time: now.Add(-24 * time.Hour), Valid: true},
			CreatedAt:       now,
			UpdatedAt:       now,
		}))

	res, err := f.svc.UpdateEmailAddressVerificationStatus(context.Background(), "user@entreprise.fr")
	if err != nil {
		t.Fatalf("update verification status failed: %v", err)
	}
	if res.NeedsRenewal {
		t.Fatalf("expected no renewal for a fresh verification")
	}
	if !res.Account.EmailVerified {
		t.Fatalf("expected verified flag to be left untouched")
	}

	f.expectationsMet(t)
}

func TestSendMagicLinkEmail_AutoProvisionsAccount(t *testing.T) {
	f := newAccountServiceFixture(t)
	defer f.close()

	f.mock.ExpectQuery(findByEmailQuery).
		WithArgs("new@entreprise.fr").
		WillReturnRows(sqlmock.NewRows(accountColumns))
	f.mock.ExpectExec(insertAccountQuery).
		WithArgs("new@entreprise.fr", sqlmock.AnyArg(), uint64(0), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(7, 1))
	f.mock.ExpectExec(updateAccountQuery).
		WithArgs(anyUpdateArgs(18)...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := f.svc.SendMagicLinkEmail(context.Background(), "new@entreprise.fr", "https://idp.example.com"); err != nil {
		t.Fatalf("send magic link failed: %v", err)
	}

	if len(f.mailer.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(f.mailer.sent))
	}
	link := f.mailer.sent[0].Params["magic_link"]
	if !strings.HasPrefix(link, "https://idp.example.com/users/sign-in-with-magic-link?magic_link_token=") {
		t.Fatalf("unexpected magic link %q", link)
	}

	f.expectationsMet(t)
}

func TestLoginWithMagicLink_EmptyToken(t *testing.T) {
	f := newAccountServiceFixture(t)
	defer f.close()

	// no query may be issued: an empty token would match every account
	// whose stored token is empty
	_, err := f.svc.LoginWithMagicLink(context.Background(), "")
	if !errors.Is(err, service.ErrInvalidMagicLink) {
		t.Fatalf("expected ErrInvalidMagicLink, got %v", err)
	}

	f.expectationsMet(t)
}

func TestLoginWithMagicLink_Success(t *testing.T) {
	f := newAccountServiceFixture(t)
	defer f.close()

	now := time.Now()
	f.mock.ExpectQuery(findByMagicLinkTokenQuery).
		WithArgs("magic-token").
		WillReturnRows(addAccountRow(sqlmock.NewRows(accountColumns), &entity.Account{
			ID:              1,
			Email:           "user@entreprise.fr",
			MagicLinkToken:  sql.NullString{String: "magic-token", Valid: true},
			MagicLinkSentAt: sql.NullTime{Time: now.Add(-5 * time.Minute), Valid: true},
			CreatedAt:       now,
			UpdatedAt:       now,
		}))
	f.mock.ExpectExec(consumeMagicLinkTokenQuery).
		WithArgs(anyUpdateArgs(19)...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	account, err := f.svc.LoginWithMagicLink(context.Background(), "magic-token")
	if err != nil {
		t.Fatalf("login with magic link failed: %v", err)
	}
	if !account.EmailVerified {
		t.Fatalf("expected magic link login to imply verification")
	}
	if account.MagicLinkToken.Valid || account.MagicLinkSentAt.Valid {
		t.Fatalf("expected token pair to be cleared")
	}
	if !account.LastSignInAt.Valid {
		t.Fatalf("expected last_sign_in_at to be stamped")
	}

	f.expectationsMet(t)
}

func TestLoginWithMagicLink_ExpiredToken(t *testing.T) {
	f := newAccountServiceFixture(t)
	defer f.close()

	now := time.Now()
	f.mock.ExpectQuery(findByMagicLinkTokenQuery).
		WithArgs("magic-token").
		WillReturnRows(addAccountRow(sqlmock.NewRows(accountColumns), &entity.Account{
			ID:              1,
			Email:           "user@entreprise.fr",
			MagicLinkToken:  sql.NullString{String: "magic-token", Valid: true},
			MagicLinkSentAt: sql.NullTime{Time: now.Add(-11 * time.Minute), Valid: true},
			CreatedAt:       now,
			UpdatedAt:       now,
		}))

	_, err := f.svc.LoginWithMagicLink(context.Background(), "magic-token")
	if !errors.Is(err, service.ErrInvalidMagicLink) {
		t.Fatalf("expected ErrInvalidMagicLink for expired token, got %v", err)
	}

	f.expectationsMet(t)
}

func TestSendResetPasswordEmail_UnknownEmailSucceedsSilently(t *testing.T) {
	f := newAccountServiceFixture(t)
	defer f.close()

	f.mock.ExpectQuery(findByEmailQuery).
		WithArgs("missing@entreprise.fr").
		WillReturnRows(sqlmock.NewRows(accountColumns))

	if err := f.svc.SendResetPasswordEmail(context.Background(), "missing@entreprise.fr", "https://idp.example.com"); err != nil {
		t.Fatalf("expected silent success for unknown email, got %v", err)
	}
	if len(f.mailer.sent) != 0 {
		t.Fatalf("expected no email to be sent, got %d", len(f.mailer.sent))
	}

	f.expectationsMet(t)
}

func TestSendResetPasswordEmail_SendsLink(t *testing.T) {
	f := newAccountServiceFixture(t)
	defer f.close()

	now := time.Now()
	f.mock.ExpectQuery(findByEmailQuery).
		WithArgs("user@entreprise.fr").
		WillReturnRows(addAccountRow(sqlmock.NewRows(accountColumns), &entity.Account{
			ID:        1,
			Email:     "user@entreprise.fr",
			CreatedAt: now,
			UpdatedAt: now,
		}))
	f.mock.ExpectExec(updateAccountQuery).
		WithArgs(anyUpdateArgs(18)...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := f.svc.SendResetPasswordEmail(context.Background(), "user@entreprise.fr", "https://idp.example.com"); err != nil {
		t.Fatalf("send reset password email failed: %v", err)
	}

	if len(f.mailer.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(f.mailer.sent))
	}
	link := f.mailer.sent[0].Params["reset_password_link"]
	if !strings.HasPrefix(link, "https://idp.example.com/users/change-password?reset_password_token=") {
		t.Fatalf("unexpected reset link %q", link)
	}

	f.expectationsMet(t)
}

func TestChangePassword_SuccessInsideWindow(t *testing.T) {
	f := newAccountServiceFixtureWithPolicy(t, config.PasswordPolicy{
		MinLength:        8,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireNumber:    true,
		RequireSpecial:   true,
	})
	defer f.close()

	now := time.Now()
	f.mock.ExpectQuery(findByResetPasswordTokenQuery).
		WithArgs("abc").
		WillReturnRows(addAccountRow(sqlmock.NewRows(accountColumns), &entity.Account{
			ID:                  1,
			Email:               "user@entreprise.fr",
			ResetPasswordToken:  sql.NullString{String: "abc", Valid: true},
			ResetPasswordSentAt: sql.NullTime{Time: now.Add(-59 * time.Minute), Valid: true},
			CreatedAt:           now,
			UpdatedAt:           now,
		}))
	f.mock.ExpectExec(consumeResetPasswordTokenQuery).
		WithArgs(anyUpdateArgs(19)...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	account, err := f.svc.ChangePassword(context.Background(), "abc", "Str0ng!Pass")
	if err != nil {
		t.Fatalf("change password failed: %v", err)
	}
	if !account.EmailVerified {
		t.Fatalf("expected reset completion to imply verification")
	}
	if account.ResetPasswordToken.Valid || account.ResetPasswordSentAt.Valid {
		t.Fatalf("expected token pair to be cleared")
	}
	if !account.EncryptedPassword.Valid {
		t.Fatalf("expected new password hash to be stored")
	}

	f.expectationsMet(t)
}

func TestChangePassword_ExpiredToken(t *testing.T) {
	f := newAccountServiceFixture(t)
	defer f.close()

	now := time.Now()
	f.mock.ExpectQuery(findByResetPasswordTokenQuery).
		WithArgs("abc").
		WillReturnRows(addAccountRow(sqlmock.NewRows(accountColumns), &entity.Account{
			ID:                  1,
			Email:               "user@entreprise.fr",
			ResetPasswordToken:  sql.NullString{String: "abc", Valid: true},
			ResetPasswordSentAt: sql.NullTime{Time: now.Add(-61 * time.Minute), Valid: true},
			CreatedAt:           now,
			UpdatedAt:           now,
		}))

	_, err := f.svc.ChangePassword(context.Background(), "abc", "Str0ng!Pass")
	if !errors.Is(err, service.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}

	f.expectationsMet(t)
}

func TestChangePassword_EmptyToken(t *testing.T) {
	f := newAccountServiceFixture(t)
	defer f.close()

	_, err := f.svc.ChangePassword(context.Background(), "", "Str0ng!Pass")
	if !errors.Is(err, service.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for empty token, got %v", err)
	}

	f.expectationsMet(t)
}

func TestChangePassword_WeakPassword(t *testing.T) {
	f := newAccountServiceFixtureWithPolicy(t, config.PasswordPolicy{MinLength: 10})
	defer f.close()

	now := time.Now()
	f.mock.ExpectQuery(findByResetPasswordTokenQuery).
		WithArgs("abc").
		WillReturnRows(addAccountRow(sqlmock.NewRows(accountColumns), &entity.Account{
			ID:                  1,
			Email:               "user@entreprise.fr",
			ResetPasswordToken:  sql.NullString{String: "abc", Valid: true},
			ResetPasswordSentAt: sql.NullTime{Time: now.Add(-5 * time.Minute), Valid: true},
			CreatedAt:           now,
			UpdatedAt:           now,
		}))

	_, err := f.svc.ChangePassword(context.Background(), "abc", "short")
	if !errors.Is(err, service.ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}

	f.expectationsMet(t)
}

func TestUpdatePersonalInformations(t *testing.T) {
	f := newAccountServiceFixture(t)
	defer f.close()

	now := time.Now()
	f.mock.ExpectQuery(findByIDQuery).
		WithArgs(uint64(1)).
		WillReturnRows(addAccountRow(sqlmock.NewRows(accountColumns), &entity.Account{
			ID:        1,
			Email:     "user@entreprise.fr",
			CreatedAt: now,
			UpdatedAt: now,
		}))
	f.mock.ExpectExec(updateAccountQuery).
		WithArgs(anyUpdateArgs(18)...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	account, err := f.svc.UpdatePersonalInformations(context.Background(), 1, dto.PersonalInformations{
		GivenName:   "Jean",
		FamilyName:  "Dupont",
		PhoneNumber: "+33612345678",
		Job:         "Developer",
	})
	if err != nil {
		t.Fatalf("update personal informations failed: %v", err)
	}
	if account.GivenName.String != "Jean" || account.FamilyName.String != "Dupont" {
		t.Fatalf("expected profile fields to be overwritten, got %+v", account)
	}

	f.expectationsMet(t)
}
