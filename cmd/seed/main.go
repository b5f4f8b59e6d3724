// seed provisions local dev infrastructure (identity schema, codes table)
// and inserts a test identity.
// Run: go run ./cmd/seed
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"

	"github.com/ErlanBelekov/otp-auth/config"
	"github.com/ErlanBelekov/otp-auth/internal/domain"
	"github.com/ErlanBelekov/otp-auth/internal/infrastructure/awsclient"
	"github.com/ErlanBelekov/otp-auth/internal/infrastructure/dynamo"
	"github.com/ErlanBelekov/otp-auth/internal/infrastructure/postgres"
	"github.com/joho/godotenv"
)

const seedEmail = "seed@test.local"

func main() {
	_ = godotenv.Load()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set (run: direnv allow)")
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, "otp-seed")
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("db schema: %v", err)
	}

	clients, err := awsclient.New(ctx, cfg)
	if err != nil {
		log.Fatalf("aws: %v", err)
	}
	if err := dynamo.EnsureCodesTable(ctx, clients.DynamoDB(), cfg.CodesTable, logger); err != nil {
		log.Fatalf("dynamo: %v", err)
	}

	identities := postgres.NewIdentityRepository(pool)
	identity, err := identities.Create(ctx, domain.EmailIdentifier(seedEmail))
	if errors.Is(err, domain.ErrConflict) {
		identity, err = identities.FindByIdentifier(ctx, domain.EmailIdentifier(seedEmail))
	}
	if err != nil {
		log.Fatalf("seed identity: %v", err)
	}

	logger.Info("seeded", "user_id", identity.ID, "email", seedEmail, "codes_table", cfg.CodesTable)
}
