package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/vibast-solutions/ms-go-identity/app/entity"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the identity claim set handed to the OAuth/OIDC protocol engine
// and embedded in access tokens. Subject carries the account id.
type Claims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	GivenName     string `json:"given_name,omitempty"`
	FamilyName    string `json:"family_name,omitempty"`
	PhoneNumber   string `json:"phone_number,omitempty"`
	Job           string `json:"job,omitempty"`
	UpdatedAt     int64  `json:"updated_at"`
	jwt.RegisteredClaims
}

func (c *Claims) AccountID() (uint64, error) {
	return strconv.ParseUint(c.Subject, 10, 64)
}

func (s *accountService) ClaimsForAccount(ctx context.Context, accountID uint64) (*Claims, error) {
	account, err := s.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}

	return claimsFromAccount(account), nil
}

func (s *accountService) IssueAccessToken(ctx context.Context, accountID uint64) (string, error) {
	claims, err := s.ClaimsForAccount(ctx, accountID)
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims.RegisteredClaims.IssuedAt = jwt.NewNumericDate(now)
	claims.RegisteredClaims.ExpiresAt = jwt.NewNumericDate(now.Add(s.cfg.JWT.AccessTokenTTL))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWT.Secret))
}

func (s *accountService) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.JWT.Secret), nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func claimsFromAccount(account *entity.Account) *Claims {
	return &Claims{
		Email:         account.Email,
		EmailVerified: account.EmailVerified,
		GivenName:     account.GivenName.String,
		FamilyName:    account.FamilyName.String,
		PhoneNumber:   account.PhoneNumber.String,
		Job:           account.Job.String,
		UpdatedAt:     account.UpdatedAt.Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: strconv.FormatUint(account.ID, 10),
		},
	}
}
