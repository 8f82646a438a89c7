package controller

import (
	"errors"
	"net/http"

	"github.com/vibast-solutions/ms-go-identity/app/dto"
	httpdto "github.com/vibast-solutions/ms-go-identity/app/dto/http"
	"github.com/vibast-solutions/ms-go-identity/app/entity"
	"github.com/vibast-solutions/ms-go-identity/app/service"
	"github.com/vibast-solutions/ms-go-identity/app/types"
	"github.com/vibast-solutions/ms-go-identity/config"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type AccountController struct {
	accountService service.AccountService
	cfg            *config.Config
}

func NewAccountController(accountService service.AccountService, cfg *config.Config) *AccountController {
	return &AccountController{accountService: accountService, cfg: cfg}
}

func (c *AccountController) StartLogin(ctx echo.Context) error {
	req, err := types.NewStartLoginRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind start login request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.Debug("Start login validation failed")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	logrus.WithField("email", req.Email).Info("Start login request received")
	result, err := c.accountService.StartLogin(ctx.Request().Context(), req.Email)
	if err != nil {
		var invalidEmail *service.InvalidEmailError
		if errors.As(err, &invalidEmail) {
			logrus.WithField("email", req.Email).Warn("Start login failed: undeliverable email")
			return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{
				Error:      "email address is invalid",
				DidYouMean: invalidEmail.DidYouMean,
			})
		}
		logrus.WithError(err).WithField("email", req.Email).Error("Start login failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}

	return ctx.JSON(http.StatusOK, httpdto.StartLoginResponse{
		Email:      result.Email,
		UserExists: result.UserExists,
	})
}

func (c *AccountController) Login(ctx echo.Context) error {
	req, err := types.NewLoginRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind login request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.WithField("email", req.Email).Debug("Login validation failed")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	logrus.WithField("email", req.Email).Info("Login request received")
	account, err := c.accountService.Login(ctx.Request().Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			logrus.WithField("email", req.Email).Warn("Login failed: invalid credentials")
			return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "invalid credentials"})
		}
		logrus.WithError(err).WithField("email", req.Email).Error("Login failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}

	logrus.WithField("email", req.Email).Info("Login successful")
	return c.writeLoginResponse(ctx, http.StatusOK, account)
}

func (c *AccountController) Signup(ctx echo.Context) error {
	req, err := types.NewSignupRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind signup request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.WithField("email", req.Email).Debug("Signup validation failed")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	logrus.WithField("email", req.Email).Info("Signup request received")
	account, err := c.accountService.Signup(ctx.Request().Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrEmailUnavailable) {
			logrus.WithField("email", req.Email).Warn("Signup failed: email unavailable")
			return ctx.JSON(http.StatusConflict, httpdto.ErrorResponse{Error: "email address is not available"})
		}
		if errors.Is(err, service.ErrWeakPassword) {
			logrus.WithField("email", req.Email).Warn("Signup failed: weak password")
			return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
		}
		logrus.WithError(err).WithField("email", req.Email).Error("Signup failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}

	logrus.WithFields(logrus.Fields{
		"account_id": account.ID,
		"email":      account.Email,
	}).Info("Account created")

	return c.writeLoginResponse(ctx, http.StatusCreated, account)
}

func (c *AccountController) SendVerificationEmail(ctx echo.Context) error {
	req, err := types.NewSendVerificationEmailRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind send verification email request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.Debug("Send verification email validation failed")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	logrus.WithField("email", req.Email).Info("Verification email requested")
	sent, err := c.accountService.SendEmailAddressVerificationEmail(ctx.Request().Context(), req.Email, req.CheckBeforeSend)
	if err != nil {
		if errors.Is(err, service.ErrEmailVerifiedAlready) {
			logrus.WithField("email", req.Email).Warn("Verification email refused: already verified")
			return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "email address is already verified"})
		}
		if errors.Is(err, service.ErrAccountNotFound) {
			logrus.WithField("email", req.Email).Warn("Verification email refused: account not found")
			return ctx.JSON(http.StatusNotFound, httpdto.ErrorResponse{Error: "account not found"})
		}
		logrus.WithError(err).WithField("email", req.Email).Error("Send verification email failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}

	return ctx.JSON(http.StatusOK, httpdto.SendVerificationEmailResponse{EmailSent: sent})
}

func (c *AccountController) VerifyEmail(ctx echo.Context) error {
	req, err := types.NewVerifyEmailRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind verify email request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.Debug("Verify email validation failed")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	logrus.WithField("email", req.Email).Info("Verify email request received")
	account, err := c.accountService.VerifyEmail(ctx.Request().Context(), req.Email, req.Token)
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			logrus.WithField("email", req.Email).Warn("Verify email failed: invalid or expired token")
			return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid or expired token"})
		}
		if errors.Is(err, service.ErrAccountNotFound) {
			logrus.WithField("email", req.Email).Warn("Verify email failed: account not found")
			return ctx.JSON(http.StatusNotFound, httpdto.ErrorResponse{Error: "account not found"})
		}
		logrus.WithError(err).WithField("email", req.Email).Error("Verify email failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}

	logrus.WithField("email", req.Email).Info("Email address verified")
	return ctx.JSON(http.StatusOK, newAccountResponse(account))
}

func (c *AccountController) UpdateVerificationStatus(ctx echo.Context) error {
	req, err := types.NewSendVerificationEmailRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind verification status request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.Debug("Verification status validation failed")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	result, err := c.accountService.UpdateEmailAddressVerificationStatus(ctx.Request().Context(), req.Email)
	if err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			logrus.WithField("email", req.Email).Warn("Verification status check failed: account not found")
			return ctx.JSON(http.StatusNotFound, httpdto.ErrorResponse{Error: "account not found"})
		}
		logrus.WithError(err).WithField("email", req.Email).Error("Verification status check failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}

	if result.NeedsRenewal {
		logrus.WithField("email", req.Email).Info("Email verification needs renewal")
	}

	return ctx.JSON(http.StatusOK, httpdto.VerificationStatusResponse{
		Account:      newAccountResponse(result.Account),
		NeedsRenewal: result.NeedsRenewal,
	})
}

func (c *AccountController) SendMagicLink(ctx echo.Context) error {
	req, err := types.NewSendMagicLinkRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind send magic link request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.Debug("Send magic link validation failed")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	logrus.WithField("email", req.Email).Info("Magic link requested")
	if err = c.accountService.SendMagicLinkEmail(ctx.Request().Context(), req.Email, requestHost(ctx)); err != nil {
		logrus.WithError(err).WithField("email", req.Email).Error("Send magic link failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}

	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: "magic link sent"})
}

func (c *AccountController) LoginWithMagicLink(ctx echo.Context) error {
	req, err := types.NewLoginWithMagicLinkRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind magic link login request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	logrus.Info("Magic link login request received")
	account, err := c.accountService.LoginWithMagicLink(ctx.Request().Context(), req.MagicLinkToken)
	if err != nil {
		if errors.Is(err, service.ErrInvalidMagicLink) {
			logrus.Warn("Magic link login failed: invalid or expired link")
			return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "invalid or expired magic link"})
		}
		logrus.WithError(err).Error("Magic link login failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}

	logrus.WithField("email", account.Email).Info("Magic link login successful")
	return c.writeLoginResponse(ctx, http.StatusOK, account)
}

func (c *AccountController) SendResetPasswordEmail(ctx echo.Context) error {
	req, err := types.NewSendResetPasswordRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind reset password request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.Debug("Reset password request validation failed")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	logrus.WithField("email", req.Email).Info("Password reset requested")
	if err = c.accountService.SendResetPasswordEmail(ctx.Request().Context(), req.Email, requestHost(ctx)); err != nil {
		logrus.WithError(err).WithField("email", req.Email).Error("Send reset password email failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}

	// identical response whether or not the account exists
	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{
		Message: "if the email exists, a reset link has been sent",
	})
}

func (c *AccountController) ChangePassword(ctx echo.Context) error {
	req, err := types.NewChangePasswordRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind change password request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.Debug("Change password validation failed")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	logrus.Info("Change password request received")
	account, err := c.accountService.ChangePassword(ctx.Request().Context(), req.Token, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			logrus.Warn("Change password failed: invalid or expired token")
			return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid or expired token"})
		}
		if errors.Is(err, service.ErrWeakPassword) {
			logrus.Warn("Change password failed: weak password")
			return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
		}
		logrus.WithError(err).Error("Change password failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}

	logrus.WithField("email", account.Email).Info("Password changed")
	return c.writeLoginResponse(ctx, http.StatusOK, account)
}

func (c *AccountController) UpdatePersonalInformations(ctx echo.Context) error {
	req, err := types.NewUpdatePersonalInformationsRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind personal informations request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	accountID, ok := ctx.Get("account_id").(uint64)
	if !ok {
		logrus.Warn("Update personal informations failed: missing account_id in context")
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "unauthorized"})
	}

	logrus.WithField("account_id", accountID).Info("Update personal informations request received")
	account, err := c.accountService.UpdatePersonalInformations(ctx.Request().Context(), accountID, dto.PersonalInformations{
		GivenName:   req.GivenName,
		FamilyName:  req.FamilyName,
		PhoneNumber: req.PhoneNumber,
		Job:         req.Job,
	})
	if err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			logrus.WithField("account_id", accountID).Warn("Update personal informations failed: account not found")
			return ctx.JSON(http.StatusNotFound, httpdto.ErrorResponse{Error: "account not found"})
		}
		logrus.WithError(err).WithField("account_id", accountID).Error("Update personal informations failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}

	logrus.WithField("account_id", accountID).Info("Personal informations updated")
	return ctx.JSON(http.StatusOK, newAccountResponse(account))
}

func (c *AccountController) writeLoginResponse(ctx echo.Context, statusCode int, account *entity.Account) error {
	accessToken, err := c.accountService.IssueAccessToken(ctx.Request().Context(), account.ID)
	if err != nil {
		logrus.WithError(err).WithField("account_id", account.ID).Error("Failed to issue access token")
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}

	return ctx.JSON(statusCode, httpdto.LoginResponse{
		Account:     newAccountResponse(account),
		AccessToken: accessToken,
		ExpiresIn:   int64(c.cfg.JWT.AccessTokenTTL.Seconds()),
	})
}

func newAccountResponse(account *entity.Account) httpdto.AccountResponse {
	return httpdto.AccountResponse{
		ID:            account.ID,
		Email:         account.Email,
		EmailVerified: account.EmailVerified,
		GivenName:     account.GivenName.String,
		FamilyName:    account.FamilyName.String,
		PhoneNumber:   account.PhoneNumber.String,
		Job:           account.Job.String,
	}
}

func requestHost(ctx echo.Context) string {
	return ctx.Scheme() + "://" + ctx.Request().Host
}
