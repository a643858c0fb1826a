package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joffchandler/Sentinel-flight-ops/internal/audit"
	"github.com/joffchandler/Sentinel-flight-ops/internal/auth"
	"github.com/joffchandler/Sentinel-flight-ops/internal/db"
	"github.com/joffchandler/Sentinel-flight-ops/internal/docstore"
	"github.com/joffchandler/Sentinel-flight-ops/internal/identity"
	"github.com/joffchandler/Sentinel-flight-ops/internal/orgs"
	"github.com/joffchandler/Sentinel-flight-ops/internal/principals"
	"github.com/joffchandler/Sentinel-flight-ops/internal/validation"
)

// systemActor performs operator commands run from the shell.
var systemActor = &identity.Principal{ID: "system", Email: "system@sentinelsky", Role: identity.RoleSuperAdmin}

func runAdmin(args []string) int {
	if len(args) == 0 {
		printAdminUsage()
		return 2
	}

	switch args[0] {
	case "reset-password":
		return runResetPassword(args[1:])
	case "create-org":
		return runCreateOrg(args[1:])
	case "promote-super-admin":
		return runPromoteSuperAdmin(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown admin command: %s\n", args[0])
		printAdminUsage()
		return 2
	}
}

func printAdminUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  sentinelsky admin reset-password --email user@example.com [--password <new>] [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "  sentinelsky admin create-org --id <slug> --name <name> --expiry YYYY-MM-DD [--operator-id <id>] [--max-users <n>] [--admin-email <email>] [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "  sentinelsky admin promote-super-admin --email user@example.com [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Notes:")
	fmt.Fprintln(os.Stderr, "  - If --password is omitted, a random password is generated and printed.")
	fmt.Fprintln(os.Stderr, "  - --db-dsn defaults to SS_DB_DSN.")
}

// openStore connects to the document store behind dsn.
func openStore(ctx context.Context, dsn string) (docstore.Store, *pgxpool.Pool, error) {
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("SS_DB_DSN"))
	}
	if dsn == "" {
		return nil, nil, errors.New("--db-dsn is required (or set SS_DB_DSN)")
	}
	pool, err := db.Connect(ctx, dsn, 2)
	if err != nil {
		return nil, nil, err
	}
	return docstore.NewPostgresStore(pool), pool, nil
}

func parseFlags(fs *flag.FlagSet, args []string) (int, bool) {
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0, false
		}
		return 2, false
	}
	return 0, true
}

func runResetPassword(args []string) int {
	fs := flag.NewFlagSet("reset-password", flag.ContinueOnError)

	var email string
	var password string
	var dbDSN string

	fs.StringVar(&email, "email", "", "Account email")
	fs.StringVar(&password, "password", "", "New password (if empty, generates one)")
	fs.StringVar(&dbDSN, "db-dsn", "", "Postgres DSN (defaults to SS_DB_DSN)")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	email, err := validation.NormalizeEmail(email)
	if err != nil {
		fmt.Fprintln(os.Stderr, "--email is required")
		return 2
	}

	generated := false
	if password == "" {
		pw, err := generatePassword(24)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate password: %v\n", err)
			return 1
		}
		password = pw
		generated = true
	}

	if err := auth.ValidatePassword(password); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid password: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	store, pool, err := openStore(ctx, dbDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer db.Close(pool)

	if err := auth.NewAccounts(store).SetPassword(ctx, email, password); err != nil {
		if errors.Is(err, auth.ErrAccountNotFound) {
			fmt.Fprintf(os.Stderr, "No account found with email %q\n", email)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Failed to update password: %v\n", err)
		return 1
	}

	fmt.Fprintln(os.Stdout, "Password updated.")
	if generated {
		fmt.Fprintln(os.Stdout, password)
	}

	return 0
}

func runCreateOrg(args []string) int {
	fs := flag.NewFlagSet("create-org", flag.ContinueOnError)

	var req orgs.CreateRequest
	var adminEmail string
	var dbDSN string

	fs.StringVar(&req.ID, "id", "", "Organisation slug")
	fs.StringVar(&req.Name, "name", "", "Organisation name")
	fs.StringVar(&req.OperatorID, "operator-id", "", "Operator registration id")
	fs.StringVar(&req.ExpiryDate, "expiry", "", "Registration expiry date (YYYY-MM-DD)")
	fs.IntVar(&req.MaxUsers, "max-users", 0, "Member limit (0 means unlimited)")
	fs.StringVar(&adminEmail, "admin-email", "", "Email of an existing account to make org-admin")
	fs.StringVar(&dbDSN, "db-dsn", "", "Postgres DSN (defaults to SS_DB_DSN)")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	store, pool, err := openStore(ctx, dbDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer db.Close(pool)

	if strings.TrimSpace(adminEmail) != "" {
		email, err := validation.NormalizeEmail(adminEmail)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --admin-email: %v\n", err)
			return 2
		}
		acc, _, err := auth.NewAccounts(store).Get(ctx, email)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to find admin account: %v\n", err)
			return 1
		}
		req.AdminPrincipalID = acc.PrincipalID.String()
	}

	svc := orgs.NewService(store, principals.NewStore(store), audit.NewWriter(store), nil)
	org, err := svc.Create(ctx, systemActor, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create organisation: %v\n", err)
		return 1
	}

	fmt.Fprintf(os.Stdout, "Organisation %s created.\n", org.ID)
	return 0
}

func runPromoteSuperAdmin(args []string) int {
	fs := flag.NewFlagSet("promote-super-admin", flag.ContinueOnError)

	var email string
	var dbDSN string

	fs.StringVar(&email, "email", "", "Account email")
	fs.StringVar(&dbDSN, "db-dsn", "", "Postgres DSN (defaults to SS_DB_DSN)")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	email, err := validation.NormalizeEmail(email)
	if err != nil {
		fmt.Fprintln(os.Stderr, "--email is required")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	store, pool, err := openStore(ctx, dbDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer db.Close(pool)

	acc, _, err := auth.NewAccounts(store).Get(ctx, email)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to find account: %v\n", err)
		return 1
	}

	svc := orgs.NewService(store, principals.NewStore(store), audit.NewWriter(store), nil)
	if _, err := svc.PromoteSuperAdmin(ctx, acc.PrincipalID.String()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to promote: %v\n", err)
		return 1
	}

	fmt.Fprintln(os.Stdout, "Principal promoted to super-admin.")
	return 0
}

func generatePassword(bytesLen int) (string, error) {
	if bytesLen < 8 {
		bytesLen = 8
	}

	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	// URL-safe, printable, without padding.
	return base64.RawURLEncoding.EncodeToString(b), nil
}
