// Command twofactorctl is a small operator tool for the two-factor module.
//
//	twofactorctl genkey        print a fresh base64 key for TWOFACTOR_ENCRYPTION_KEY
//	twofactorctl migrate       apply goose migrations to the configured Postgres
//	twofactorctl demo <id>     run an enrollment round-trip against Postgres/Redis
//
// Configuration comes from the environment (a .env file is loaded when
// present): see pg.Config, redis.Config, and twofactor.Config for the
// variables.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	_ "github.com/joho/godotenv/autoload"

	"github.com/authkit/twofactor/pkg/attemptlimit"
	"github.com/authkit/twofactor/pkg/logger"
	"github.com/authkit/twofactor/pkg/pg"
	"github.com/authkit/twofactor/pkg/qrcode"
	"github.com/authkit/twofactor/pkg/redis"
	"github.com/authkit/twofactor/pkg/twofactor"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	log := logger.New(logger.WithTextFormatter())
	ctx := context.Background()

	var err error
	switch os.Args[1] {
	case "genkey":
		err = genkey()
	case "migrate":
		err = migrate(ctx, log)
	case "demo":
		if len(os.Args) < 3 {
			usage()
			os.Exit(2)
		}
		err = demo(ctx, log, os.Args[2])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.ErrorContext(ctx, "command failed", logger.Error(err))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: twofactorctl genkey | migrate | demo <identity-id>")
}

func genkey() error {
	encodedKey, err := twofactor.GenerateEncodedEncryptionKey()
	if err != nil {
		return fmt.Errorf("generate encryption key: %w", err)
	}
	fmt.Printf("Generated encryption key (for TWOFACTOR_ENCRYPTION_KEY env var):\n%s\n", encodedKey)
	return nil
}

func migrate(ctx context.Context, log *slog.Logger) error {
	var cfg pg.Config
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parse pg config: %w", err)
	}

	pool, err := pg.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	return pg.Migrate(ctx, pool, cfg, log)
}

// demo enrolls an identity end to end: setup, QR render, enable from a code
// typed in at the terminal, and one verification.
func demo(ctx context.Context, log *slog.Logger, identityID string) error {
	tfCfg, err := twofactor.LoadConfig()
	if err != nil {
		return fmt.Errorf("parse twofactor config: %w", err)
	}

	var pgCfg pg.Config
	if err := env.Parse(&pgCfg); err != nil {
		return fmt.Errorf("parse pg config: %w", err)
	}
	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	store, err := twofactor.NewPostgresStore(pool)
	if err != nil {
		return err
	}

	var redisCfg redis.Config
	if err := env.Parse(&redisCfg); err != nil {
		return fmt.Errorf("parse redis config: %w", err)
	}
	client, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return err
	}
	defer client.Close()

	limiterStore, err := attemptlimit.NewRedisStore(client)
	if err != nil {
		return err
	}
	limiter, err := attemptlimit.New(limiterStore,
		attemptlimit.WithMaxAttempts(tfCfg.MaxAttempts),
		attemptlimit.WithWindow(tfCfg.AttemptWindow),
		attemptlimit.WithLockDuration(tfCfg.LockDuration),
	)
	if err != nil {
		return err
	}

	key, err := twofactor.ParseEncryptionKey(tfCfg.EncryptionKey)
	if err != nil {
		return err
	}
	cipher, err := twofactor.NewAESCipher(key)
	if err != nil {
		return err
	}

	svc, err := twofactor.New(store,
		twofactor.WithIssuer(tfCfg.Issuer),
		twofactor.WithLimiter(limiter),
		twofactor.WithSecretCipher(cipher),
	)
	if err != nil {
		return err
	}
	defer svc.Close()

	setup, err := svc.Setup(ctx, identityID, identityID)
	if err != nil {
		return err
	}

	dataURI, err := qrcode.DataURI(setup.ProvisioningURI, 256)
	if err != nil {
		return err
	}

	fmt.Printf("Secret key:  %s\nURI:         %s\nQR data URI: %.64s...\nBackup codes:\n", setup.SecretKey, setup.ProvisioningURI, dataURI)
	for _, code := range setup.BackupCodes {
		fmt.Printf("  %s\n", code)
	}

	code, err := prompt("Enter the 6-digit code from your authenticator: ")
	if err != nil {
		return err
	}
	if err := svc.Enable(ctx, identityID, code); err != nil {
		return err
	}
	log.InfoContext(ctx, "two-factor enabled", logger.IdentityID(identityID))

	code, err = prompt("Enter the next code to verify (wait for it to rotate): ")
	if err != nil {
		return err
	}
	result, err := svc.Verify(ctx, identityID, code)
	if err != nil {
		return err
	}
	log.InfoContext(ctx, "verified",
		logger.IdentityID(identityID),
		logger.Method(string(result.Method)),
	)
	return nil
}

func prompt(msg string) (string, error) {
	fmt.Print(msg)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
