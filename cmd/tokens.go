package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vibast-solutions/ms-go-identity/app/repository"
	"github.com/vibast-solutions/ms-go-identity/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Manage single-use account tokens",
}

var tokensPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Clear verification, magic link and reset tokens whose window has lapsed",
	RunE: func(_ *cobra.Command, _ []string) error {
		accountRepo, cfg, db, err := newAccountRepositoryForTokenCommands()
		if err != nil {
			return err
		}
		defer db.Close()

		purged, err := accountRepo.PurgeExpiredTokens(
			context.Background(),
			time.Now(),
			cfg.Tokens.VerifyEmailTTL,
			cfg.Tokens.MagicLinkTTL,
			cfg.Tokens.ResetPasswordTTL,
		)
		if err != nil {
			return err
		}

		fmt.Printf("purged %d expired token(s)\n", purged)
		return nil
	},
}

func init() {
	tokensCmd.AddCommand(tokensPurgeCmd)
	rootCmd.AddCommand(tokensCmd)
}

func newAccountRepositoryForTokenCommands() (*repository.AccountRepository, *config.Config, *sql.DB, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}

	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, nil, nil, err
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, nil, nil, err
	}

	return repository.NewAccountRepository(db), cfg, db, nil
}
