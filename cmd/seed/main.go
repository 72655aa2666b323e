// Package main is the operator tool of Chat Pilot.
//
//	seed apply [-file bots.yaml] [-migrate]   upsert bots and open owner trial accounts
//	seed hash-token [-cost N] TOKEN           print the bcrypt hash for security.service_token_hash
//	seed dev-token -user ID [-email E]        mint a dashboard token with the configured signing key
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"chatpilot.io/pilot/internal/api/middleware"
	"chatpilot.io/pilot/internal/config"
	"chatpilot.io/pilot/internal/credits"
	"chatpilot.io/pilot/internal/infrastructure"
	"chatpilot.io/pilot/internal/pkg/logger"
	"chatpilot.io/pilot/internal/repository/postgres"
	"chatpilot.io/pilot/internal/seed"
)

const defaultFixturePath = "config/bots.yaml"

var errUsage = errors.New("usage: seed <apply|hash-token|dev-token> [flags]")

func main() {
	_ = godotenv.Load()
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "seed error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "apply":
		return runApply(ctx, args[1:], stdout)
	case "hash-token":
		return runHashToken(args[1:], stdout)
	case "dev-token":
		return runDevToken(args[1:], stdout)
	default:
		return fmt.Errorf("unknown command %q: %w", args[0], errUsage)
	}
}

func runApply(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("apply", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	file := fs.String("file", defaultFixturePath, "bots fixture")
	migrate := fs.Bool("migrate", false, "apply schema and River migrations first")
	if err := fs.Parse(args); err != nil {
		return err
	}

	fixture, err := seed.LoadFile(*file)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()

	if *migrate || cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	// Journal writes run inline here; there is no worker pool in this process.
	ledger := credits.NewLedger(postgres.NewCreditStore(db.Queries),
		credits.WithTrialCredits(cfg.Credits.TrialCredits),
		credits.WithMaxAttempts(cfg.Credits.MaxAttempts),
	)

	res, err := seed.Apply(ctx, fixture, postgres.NewBotWriter(db.Pool), ledger)
	if err != nil {
		return err
	}
	logger.Info("Data seeding completed successfully",
		zap.String("file", *file),
		zap.Int("bots", res.Bots),
		zap.Int("owners", res.Owners),
	)
	fmt.Fprintf(stdout, "seeded %d bots for %d owners\n", res.Bots, res.Owners)
	return nil
}

func runHashToken(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("hash-token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cost := fs.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 || fs.Arg(0) == "" {
		return fmt.Errorf("hash-token needs exactly one token argument")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(fs.Arg(0)), *cost)
	if err != nil {
		return fmt.Errorf("hash token: %w", err)
	}
	fmt.Fprintln(stdout, string(hash))
	return nil
}

func runDevToken(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("dev-token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	user := fs.String("user", "", "subject (owner id)")
	email := fs.String("email", "", "email claim")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *user == "" {
		return fmt.Errorf("dev-token needs -user")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	token, expiresAt, err := middleware.GenerateToken(middleware.JWTConfig{
		SigningKey: []byte(cfg.Security.JWTSigningKey),
		Issuer:     cfg.Security.JWTIssuer,
		ExpiresIn:  *ttl,
	}, *user, *email)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}
	fmt.Fprintln(stdout, token)
	fmt.Fprintf(os.Stderr, "expires at %s\n", expiresAt.Format(time.RFC3339))
	return nil
}
