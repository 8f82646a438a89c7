package types

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"
)

type StartLoginRequest struct {
	Email string `json:"email"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SendVerificationEmailRequest struct {
	Email           string `json:"email"`
	CheckBeforeSend bool   `json:"check_before_send"`
}

type VerifyEmailRequest struct {
	Email string `json:"email"`
	Token string `json:"verify_email_token"`
}

type SendMagicLinkRequest struct {
	Email string `json:"email"`
}

type LoginWithMagicLinkRequest struct {
	MagicLinkToken string `json:"magic_link_token"`
}

type SendResetPasswordRequest struct {
	Email string `json:"email"`
}

type ChangePasswordRequest struct {
	Token    string `json:"reset_password_token"`
	Password string `json:"password"`
}

type UpdatePersonalInformationsRequest struct {
	GivenName   string `json:"given_name"`
	FamilyName  string `json:"family_name"`
	PhoneNumber string `json:"phone_number"`
	Job         string `json:"job"`
}

func NewStartLoginRequestFromContext(ctx echo.Context) (*StartLoginRequest, error) {
	var body StartLoginRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *StartLoginRequest) Validate() error {
	if strings.TrimSpace(r.Email) == "" {
		return errors.New("email is required")
	}

	return nil
}

func NewLoginRequestFromContext(ctx echo.Context) (*LoginRequest, error) {
	var body LoginRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *LoginRequest) Validate() error {
	if strings.TrimSpace(r.Email) == "" || strings.TrimSpace(r.Password) == "" {
		return errors.New("email and password are required")
	}

	return nil
}

func NewSignupRequestFromContext(ctx echo.Context) (*SignupRequest, error) {
	var body SignupRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *SignupRequest) Validate() error {
	if strings.TrimSpace(r.Email) == "" || strings.TrimSpace(r.Password) == "" {
		return errors.New("email and password are required")
	}

	return nil
}

func NewSendVerificationEmailRequestFromContext(ctx echo.Context) (*SendVerificationEmailRequest, error) {
	var body SendVerificationEmailRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *SendVerificationEmailRequest) Validate() error {
	if strings.TrimSpace(r.Email) == "" {
		return errors.New("email is required")
	}

	return nil
}

func NewVerifyEmailRequestFromContext(ctx echo.Context) (*VerifyEmailRequest, error) {
	var body VerifyEmailRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *VerifyEmailRequest) Validate() error {
	if strings.TrimSpace(r.Email) == "" || strings.TrimSpace(r.Token) == "" {
		return errors.New("email and verify_email_token are required")
	}

	return nil
}

func NewSendMagicLinkRequestFromContext(ctx echo.Context) (*SendMagicLinkRequest, error) {
	var body SendMagicLinkRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *SendMagicLinkRequest) Validate() error {
	if strings.TrimSpace(r.Email) == "" {
		return errors.New("email is required")
	}

	return nil
}

func NewLoginWithMagicLinkRequestFromContext(ctx echo.Context) (*LoginWithMagicLinkRequest, error) {
	var body LoginWithMagicLinkRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	// the sign-in link puts the token in the query string
	if body.MagicLinkToken == "" {
		body.MagicLinkToken = ctx.QueryParam("magic_link_token")
	}

	return &body, nil
}

func NewSendResetPasswordRequestFromContext(ctx echo.Context) (*SendResetPasswordRequest, error) {
	var body SendResetPasswordRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *SendResetPasswordRequest) Validate() error {
	if strings.TrimSpace(r.Email) == "" {
		return errors.New("email is required")
	}

	return nil
}

func NewChangePasswordRequestFromContext(ctx echo.Context) (*ChangePasswordRequest, error) {
	var body ChangePasswordRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *ChangePasswordRequest) Validate() error {
	if strings.TrimSpace(r.Password) == "" {
		return errors.New("password is required")
	}

	return nil
}

func NewUpdatePersonalInformationsRequestFromContext(ctx echo.Context) (*UpdatePersonalInformationsRequest, error) {
	var body UpdatePersonalInformationsRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}
