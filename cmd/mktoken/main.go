// Command mktoken manages users and API tokens from the command line; it is
// the bootstrap path before any token exists.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/zonecp/zonecp/internal/adapters/repository"
	"github.com/zonecp/zonecp/internal/core/domain"
	"github.com/zonecp/zonecp/internal/core/services"
)

func main() {
	createCmd := flag.NewFlagSet("create", flag.ExitOnError)
	email := createCmd.String("email", "", "owner email (user is created if missing)")
	name := createCmd.String("name", "cli", "token description")
	manage := createCmd.Bool("manage-tokens", false, "grant perm_manage_tokens")
	createDomain := createCmd.Bool("create-domain", false, "grant perm_create_domain")
	deleteDomain := createCmd.Bool("delete-domain", false, "grant perm_delete_domain")

	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	listEmail := listCmd.String("email", "", "owner email")

	revokeCmd := flag.NewFlagSet("revoke", flag.ExitOnError)
	revokeEmail := revokeCmd.String("email", "", "owner email")
	revokeID := revokeCmd.String("id", "", "token UUID to revoke")

	if len(os.Args) < 2 {
		fmt.Println("expected 'create', 'list' or 'revoke' subcommands")
		os.Exit(1)
	}

	_ = godotenv.Load()
	dbURL := os.Getenv("ZONECP_DATABASE_URL")
	if dbURL == "" {
		log.Fatal("ZONECP_DATABASE_URL is required")
	}
	ctx := context.Background()
	db, err := repository.Open(ctx, dbURL)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	repo := repository.NewPostgresRepository(db)

	switch os.Args[1] {
	case "create":
		if err := createCmd.Parse(os.Args[2:]); err != nil {
			log.Fatalf("failed to parse create flags: %v", err)
		}
		createToken(ctx, repo, *email, *name, *manage, *createDomain, *deleteDomain)
	case "list":
		if err := listCmd.Parse(os.Args[2:]); err != nil {
			log.Fatalf("failed to parse list flags: %v", err)
		}
		listTokens(ctx, repo, *listEmail)
	case "revoke":
		if err := revokeCmd.Parse(os.Args[2:]); err != nil {
			log.Fatalf("failed to parse revoke flags: %v", err)
		}
		revokeToken(ctx, repo, *revokeEmail, *revokeID)
	default:
		fmt.Println("expected 'create', 'list' or 'revoke' subcommands")
		os.Exit(1)
	}
}

func userByEmail(ctx context.Context, repo *repository.PostgresRepository, email string, create bool) *domain.User {
	if err := domain.ValidateEmail(email); err != nil {
		log.Fatalf("invalid email: %v", err)
	}
	norm := domain.NormalizeEmail(email)
	user, err := repo.GetUserByEmail(ctx, norm)
	if err == nil {
		return user
	}
	if !create || !domain.IsKind(err, domain.KindNotFound) {
		log.Fatalf("failed to look up user: %v", err)
	}
	now := time.Now()
	user = &domain.User{
		ID: uuid.New(), Email: email, EmailNorm: norm,
		Created: now, CredentialsChanged: now,
	}
	if err := repo.CreateUser(ctx, user); err != nil {
		log.Fatalf("failed to create user: %v", err)
	}
	fmt.Printf("created user %s (%s)\n", email, user.ID)
	return user
}

func createToken(ctx context.Context, repo *repository.PostgresRepository, email, name string, manage, createDomain, deleteDomain bool) {
	user := userByEmail(ctx, repo, email, true)

	secret, err := services.GenerateSecret()
	if err != nil {
		log.Fatal(err)
	}
	hash, err := services.HashSecret(secret)
	if err != nil {
		log.Fatal(err)
	}
	token := &domain.Token{
		ID:               uuid.New(),
		UserID:           user.ID,
		Created:          time.Now(),
		Name:             name,
		KeyHash:          hash,
		KeyPrefix:        services.KeyPrefix(secret),
		PermManageTokens: manage,
		PermCreateDomain: createDomain,
		PermDeleteDomain: deleteDomain,
	}
	if err := repo.CreateToken(ctx, token); err != nil {
		log.Fatalf("failed to save token: %v", err)
	}

	fmt.Printf("Token created\n")
	fmt.Printf("---------------------------\n")
	fmt.Printf("ID:     %s\n", token.ID)
	fmt.Printf("Owner:  %s\n", user.Email)
	fmt.Printf("SECRET: %s\n", secret)
	fmt.Printf("---------------------------\n")
	fmt.Printf("CAUTION: This is the only time the secret will be shown.\n")
}

func listTokens(ctx context.Context, repo *repository.PostgresRepository, email string) {
	user := userByEmail(ctx, repo, email, false)
	tokens, err := repo.ListTokens(ctx, user.ID)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Tokens for %s\n", user.Email)
	fmt.Printf("%-36s %-15s %-8s %-25s\n", "ID", "Name", "Prefix", "Last used")
	for _, t := range tokens {
		lastUsed := "never"
		if t.LastUsed != nil {
			lastUsed = t.LastUsed.Format(time.RFC3339)
		}
		fmt.Printf("%-36s %-15s %-8s %-25s\n", t.ID, t.Name, t.KeyPrefix, lastUsed)
	}
}

func revokeToken(ctx context.Context, repo *repository.PostgresRepository, email, id string) {
	if id == "" {
		log.Fatal("-id is required for revocation")
	}
	user := userByEmail(ctx, repo, email, false)
	tokenID, err := uuid.Parse(id)
	if err != nil {
		log.Fatalf("invalid token id: %v", err)
	}
	if err := repo.DeleteToken(ctx, user.ID, tokenID); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Token %s revoked\n", id)
}
