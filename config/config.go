package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTP     HTTPConfig
	MySQLDSN string
	JWT      JWTConfig
	Tokens   TokenConfig
	Password PasswordConfig
	Mail     MailConfig
	Log      LogConfig
}

type HTTPConfig struct {
	Host string
	Port string
}

type JWTConfig struct {
	Secret         string
	AccessTokenTTL time.Duration
}

// TokenConfig holds the expiration window of each single-use token kind,
// plus the trust window after which a verified email must be re-verified.
type TokenConfig struct {
	VerifyEmailTTL   time.Duration
	ResetPasswordTTL time.Duration
	MagicLinkTTL     time.Duration
	VerifiedMaxAge   time.Duration
}

type PasswordConfig struct {
	Policy PasswordPolicy
}

type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Secure   bool
	// SkipEmailValidation disables the deliverability check on unknown
	// addresses. Meant for local development only.
	SkipEmailValidation bool
}

type LogConfig struct {
	Level  string
	Format string
}

type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
	RequireSpecial   bool
}

func (p PasswordPolicy) Validate(password string) error {
	if len(password) < p.MinLength {
		return fmt.Errorf("password must be at least %d characters long", p.MinLength)
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, ch := range password {
		switch {
		case unicode.IsUpper(ch):
			hasUpper = true
		case unicode.IsLower(ch):
			hasLower = true
		case unicode.IsDigit(ch):
			hasNumber = true
		case unicode.IsPunct(ch) || unicode.IsSymbol(ch):
			hasSpecial = true
		}
	}

	var missing []string
	if p.RequireUppercase && !hasUpper {
		missing = append(missing, "uppercase letter")
	}
	if p.RequireLowercase && !hasLower {
		missing = append(missing, "lowercase letter")
	}
	if p.RequireNumber && !hasNumber {
		missing = append(missing, "number")
	}
	if p.RequireSpecial && !hasSpecial {
		missing = append(missing, "special character")
	}

	if len(missing) > 0 {
		return fmt.Errorf("password must contain at least one: %s", strings.Join(missing, ", "))
	}

	return nil
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignores error if not found)
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET environment variable is required")
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	return &Config{
		HTTP: HTTPConfig{
			Host: getEnv("HTTP_HOST", ""),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		MySQLDSN: mysqlDSN,
		JWT: JWTConfig{
			Secret:         jwtSecret,
			AccessTokenTTL: getDurationEnv("JWT_ACCESS_TOKEN_TTL", 3*time.Hour),
		},
		Tokens: TokenConfig{
			VerifyEmailTTL:   getDurationEnv("VERIFY_EMAIL_TOKEN_TTL", 60*time.Minute),
			ResetPasswordTTL: getDurationEnv("RESET_PASSWORD_TOKEN_TTL", 60*time.Minute),
			MagicLinkTTL:     getDurationEnv("MAGIC_LINK_TOKEN_TTL", 10*time.Minute),
			VerifiedMaxAge:   getDurationEnv("EMAIL_VERIFIED_MAX_AGE", 3*30*24*time.Hour),
		},
		Password: PasswordConfig{
			Policy: loadPasswordPolicy(),
		},
		Mail: MailConfig{
			Host:                getEnv("SMTP_HOST", "localhost"),
			Port:                getIntEnv("SMTP_PORT", 25),
			Username:            getEnv("SMTP_USERNAME", ""),
			Password:            getEnv("SMTP_PASSWORD", ""),
			From:                getEnv("MAIL_FROM", "no-reply@localhost"),
			Secure:              getBoolEnv("SMTP_SECURE", false),
			SkipEmailValidation: getBoolEnv("DO_NOT_VALIDATE_MAIL", false),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}, nil
}

func (c *Config) DSN() string {
	return c.MySQLDSN
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func loadPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:        getIntEnv("PASSWORD_MIN_LENGTH", 10),
		RequireUppercase: getBoolEnv("PASSWORD_REQUIRE_UPPERCASE", true),
		RequireLowercase: getBoolEnv("PASSWORD_REQUIRE_LOWERCASE", true),
		RequireNumber:    getBoolEnv("PASSWORD_REQUIRE_NUMBER", true),
		RequireSpecial:   getBoolEnv("PASSWORD_REQUIRE_SPECIAL", true),
	}
}
