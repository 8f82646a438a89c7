package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vibast-solutions/ms-go-identity/app/dto"
	"github.com/vibast-solutions/ms-go-identity/app/entity"
	"github.com/vibast-solutions/ms-go-identity/app/mail"
	"github.com/vibast-solutions/ms-go-identity/app/mailcheck"
	"github.com/vibast-solutions/ms-go-identity/config"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidEmail         = errors.New("email address is not safe to send to")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrEmailUnavailable     = errors.New("email address is not available")
	ErrWeakPassword         = errors.New("password does not meet policy requirements")
	ErrEmailVerifiedAlready = errors.New("email address is already verified")
	ErrInvalidToken         = errors.New("invalid or expired token")
	ErrInvalidMagicLink     = errors.New("invalid or expired magic link")
	ErrAccountNotFound      = errors.New("account not found")
)

// InvalidEmailError carries an optional spelling suggestion alongside
// ErrInvalidEmail, e.g. "user@gmail.com" for "user@gmil.com".
type InvalidEmailError struct {
	DidYouMean string
}

func (e *InvalidEmailError) Error() string {
	if e.DidYouMean == "" {
		return ErrInvalidEmail.Error()
	}
	return fmt.Sprintf("%s (did you mean %s?)", ErrInvalidEmail.Error(), e.DidYouMean)
}

func (e *InvalidEmailError) Unwrap() error {
	return ErrInvalidEmail
}

type accountRepository interface {
	Create(ctx context.Context, account *entity.Account) error
	FindByEmail(ctx context.Context, email string) (*entity.Account, error)
	FindByID(ctx context.Context, id uint64) (*entity.Account, error)
	FindByMagicLinkToken(ctx context.Context, token string) (*entity.Account, error)
	FindByResetPasswordToken(ctx context.Context, token string) (*entity.Account, error)
	Update(ctx context.Context, account *entity.Account) error
	ConsumeVerifyEmailToken(ctx context.Context, account *entity.Account, token string) (bool, error)
	ConsumeMagicLinkToken(ctx context.Context, account *entity.Account, token string) (bool, error)
	ConsumeResetPasswordToken(ctx context.Context, account *entity.Account, token string) (bool, error)
}

type emailChecker interface {
	IsEmailSafeToSend(ctx context.Context, email string) (bool, string, error)
}

type AccountService interface {
	StartLogin(ctx context.Context, email string) (*dto.StartLoginResult, error)
	Login(ctx context.Context, email, password string) (*entity.Account, error)
	Signup(ctx context.Context, email, password string) (*entity.Account, error)
	SendEmailAddressVerificationEmail(ctx context.Context, email string, checkBeforeSend bool) (bool, error)
	VerifyEmail(ctx context.Context, email, token string) (*entity.Account, error)
	UpdateEmailAddressVerificationStatus(ctx context.Context, email string) (*dto.VerificationStatusResult, error)
	SendMagicLinkEmail(ctx context.Context, email, host string) error
	LoginWithMagicLink(ctx context.Context, token string) (*entity.Account, error)
	SendResetPasswordEmail(ctx context.Context, email, host string) error
	ChangePassword(ctx context.Context, token, password string) (*entity.Account, error)
	UpdatePersonalInformations(ctx context.Context, accountID uint64, info dto.PersonalInformations) (*entity.Account, error)
	ClaimsForAccount(ctx context.Context, accountID uint64) (*Claims, error)
	IssueAccessToken(ctx context.Context, accountID uint64) (string, error)
	ValidateAccessToken(tokenString string) (*Claims, error)
}

type accountService struct {
	accountRepo accountRepository
	checker     emailChecker
	mailer      mail.Sender
	cfg         *config.Config
}

func NewAccountService(
	accountRepo accountRepository,
	checker emailChecker,
	mailer mail.Sender,
	cfg *config.Config,
) AccountService {
	return &accountService{
		accountRepo: accountRepo,
		checker:     checker,
		mailer:      mailer,
		cfg:         cfg,
	}
}

func (s *accountService) StartLogin(ctx context.Context, email string) (*dto.StartLoginResult, error) {
	account, err := s.accountRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if account != nil {
		return &dto.StartLoginResult{Email: email, UserExists: true}, nil
	}

	safe, didYouMean, err := s.checker.IsEmailSafeToSend(ctx, email)
	if err != nil {
		return nil, err
	}
	if !safe {
		if didYouMean == "" {
			didYouMean = mailcheck.DidYouMean(email)
		}
		return nil, &InvalidEmailError{DidYouMean: didYouMean}
	}

	return &dto.StartLoginResult{Email: email, UserExists: false}, nil
}

func (s *accountService) Login(ctx context.Context, email, password string) (*entity.Account, error) {
	account, err := s.accountRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if account == nil {
		// callers go through StartLogin first so this branch is rarely hit,
		// but it must return the same error as a bad password
		return nil, ErrInvalidCredentials
	}

	if !account.EncryptedPassword.Valid {
		// magic-link-only account
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(account.EncryptedPassword.String), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	account.SignInCount++
	account.LastSignInAt = sql.NullTime{Time: now, Valid: true}

	if err := s.accountRepo.Update(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *accountService) Signup(ctx context.Context, email, password string) (*entity.Account, error) {
	existing, err := s.accountRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailUnavailable
	}

	if err := s.cfg.Password.Policy.Validate(password); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWeakPassword, err.Error())
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	account := &entity.Account{
		Email:             email,
		EncryptedPassword: sql.NullString{String: string(hashedPassword), Valid: true},
		LastSignInAt:      sql.NullTime{Time: now, Valid: true},
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.accountRepo.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *accountService) SendEmailAddressVerificationEmail(ctx context.Context, email string, checkBeforeSend bool) (bool, error) {
	account, err := s.accountRepo.FindByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	if account == nil {
		return false, ErrAccountNotFound
	}

	if account.EmailVerified {
		return false, ErrEmailVerifiedAlready
	}

	// a still-valid previous token means a PIN already sits in the user's
	// inbox; skipping the resend is a no-op, not an error
	if checkBeforeSend && !IsExpired(account.VerifyEmailSentAt, s.cfg.Tokens.VerifyEmailTTL) {
		return false, nil
	}

	pin, err := GeneratePinToken()
	if err != nil {
		return false, err
	}

	account.VerifyEmailToken = sql.NullString{String: pin, Valid: true}
	account.VerifyEmailSentAt = sql.NullTime{Time: time.Now(), Valid: true}

	if err := s.accountRepo.Update(ctx, account); err != nil {
		return false, err
	}

	err = s.mailer.Send(ctx, mail.Mail{
		To:       []string{account.Email},
		Subject:  "Vérification de votre adresse email",
		Template: "verify-email",
		Params: map[string]string{
			"verify_email_token": FormatPinForDisplay(pin),
		},
	})
	if err != nil {
		return false, err
	}

	return true, nil
}

func (s *accountService) VerifyEmail(ctx context.Context, email, token string) (*entity.Account, error) {
	account, err := s.accountRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}

	// wrong and expired tokens get the same error on purpose
	if token == "" || !account.VerifyEmailToken.Valid || account.VerifyEmailToken.String != token {
		return nil, ErrInvalidToken
	}
	if IsExpired(account.VerifyEmailSentAt, s.cfg.Tokens.VerifyEmailTTL) {
		return nil, ErrInvalidToken
	}

	s.markVerified(account, time.Now())
	account.VerifyEmailToken = sql.NullString{}
	account.VerifyEmailSentAt = sql.NullTime{}

	consumed, err := s.accountRepo.ConsumeVerifyEmailToken(ctx, account, token)
	if err != nil {
		return nil, err
	}
	if !consumed {
		return nil, ErrInvalidToken
	}
	return account, nil
}

func (s *accountService) UpdateEmailAddressVerificationStatus(ctx context.Context, email string) (*dto.VerificationStatusResult, error) {
	account, err := s.accountRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}

	if account.EmailVerified && IsExpired(account.EmailVerifiedAt, s.cfg.Tokens.VerifiedMaxAge) {
		account.EmailVerified = false

		if err := s.accountRepo.Update(ctx, account); err != nil {
			return nil, err
		}
		return &dto.VerificationStatusResult{Account: account, NeedsRenewal: true}, nil
	}

	return &dto.VerificationStatusResult{Account: account, NeedsRenewal: false}, nil
}

func (s *accountService) SendMagicLinkEmail(ctx context.Context, email, host string) error {
	account, err := s.accountRepo.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if account == nil {
		// the magic link doubles as a signup path
		now := time.Now()
		account = &entity.Account{Email: email, CreatedAt: now, UpdatedAt: now}
		if err := s.accountRepo.Create(ctx, account); err != nil {
			return err
		}
	}

	token := GenerateToken()
	account.MagicLinkToken = sql.NullString{String: token, Valid: true}
	account.MagicLinkSentAt = sql.NullTime{Time: time.Now(), Valid: true}

	if err := s.accountRepo.Update(ctx, account); err != nil {
		return err
	}

	return s.mailer.Send(ctx, mail.Mail{
		To:       []string{account.Email},
		Subject:  "Votre lien de connexion",
		Template: "magic-link",
		Params: map[string]string{
			"magic_link": fmt.Sprintf("%s/users/sign-in-with-magic-link?magic_link_token=%s", host, token),
		},
	})
}

func (s *accountService) LoginWithMagicLink(ctx context.Context, token string) (*entity.Account, error) {
	// an empty token is the stored "no token" value and must never match
	if token == "" {
		return nil, ErrInvalidMagicLink
	}

	account, err := s.accountRepo.FindByMagicLinkToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrInvalidMagicLink
	}

	if IsExpired(account.MagicLinkSentAt, s.cfg.Tokens.MagicLinkTTL) {
		return nil, ErrInvalidMagicLink
	}

	// possession of the mailbox is proof of verification
	now := time.Now()
	s.markVerified(account, now)
	account.MagicLinkToken = sql.NullString{}
	account.MagicLinkSentAt = sql.NullTime{}
	account.LastSignInAt = sql.NullTime{Time: now, Valid: true}

	consumed, err := s.accountRepo.ConsumeMagicLinkToken(ctx, account, token)
	if err != nil {
		return nil, err
	}
	if !consumed {
		return nil, ErrInvalidMagicLink
	}
	return account, nil
}

func (s *accountService) SendResetPasswordEmail(ctx context.Context, email, host string) error {
	account, err := s.accountRepo.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if account == nil {
		// report success for unknown emails so callers cannot probe for
		// account existence
		return nil
	}

	token := GenerateToken()
	account.ResetPasswordToken = sql.NullString{String: token, Valid: true}
	account.ResetPasswordSentAt = sql.NullTime{Time: time.Now(), Valid: true}

	if err := s.accountRepo.Update(ctx, account); err != nil {
		return err
	}

	return s.mailer.Send(ctx, mail.Mail{
		To:       []string{account.Email},
		Subject:  "Instructions pour la réinitialisation du mot de passe",
		Template: "reset-password",
		Params: map[string]string{
			"reset_password_link": fmt.Sprintf("%s/users/change-password?reset_password_token=%s", host, token),
		},
	})
}

func (s *accountService) ChangePassword(ctx context.Context, token, password string) (*entity.Account, error) {
	// an empty token is the stored "no token" value and must never match
	if token == "" {
		return nil, ErrInvalidToken
	}

	account, err := s.accountRepo.FindByResetPasswordToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrInvalidToken
	}

	if IsExpired(account.ResetPasswordSentAt, s.cfg.Tokens.ResetPasswordTTL) {
		return nil, ErrInvalidToken
	}

	if err := s.cfg.Password.Policy.Validate(password); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWeakPassword, err.Error())
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	// completing a reset proves mailbox possession, same as a magic link
	account.EncryptedPassword = sql.NullString{String: string(hashedPassword), Valid: true}
	s.markVerified(account, time.Now())
	account.ResetPasswordToken = sql.NullString{}
	account.ResetPasswordSentAt = sql.NullTime{}

	consumed, err := s.accountRepo.ConsumeResetPasswordToken(ctx, account, token)
	if err != nil {
		return nil, err
	}
	if !consumed {
		return nil, ErrInvalidToken
	}
	return account, nil
}

func (s *accountService) UpdatePersonalInformations(ctx context.Context, accountID uint64, info dto.PersonalInformations) (*entity.Account, error) {
	account, err := s.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}

	account.GivenName = nullableString(info.GivenName)
	account.FamilyName = nullableString(info.FamilyName)
	account.PhoneNumber = nullableString(info.PhoneNumber)
	account.Job = nullableString(info.Job)

	if err := s.accountRepo.Update(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// markVerified is the single place the verified flag is granted; the
// verify-email, magic-link and reset-password workflows all go through it.
func (s *accountService) markVerified(account *entity.Account, now time.Time) {
	account.EmailVerified = true
	account.EmailVerifiedAt = sql.NullTime{Time: now, Valid: true}
}

func nullableString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
