package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flowbill/flowbill/pkg/persistence"
	"github.com/flowbill/flowbill/pkg/persistence/memory"
	"github.com/flowbill/flowbill/pkg/persistence/postgresql"
)

func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		postgres, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to create PostgreSQL persistence: %w", err))
		}

		return postgres
	case "memory", "":
		return memory.NewPersistence()
	default:
		panic("Unsupported persistence provider in database URL: " + databaseURL)
	}
}

func parsePersistenceProvider(databaseURL string) string {
	parts := strings.Split(databaseURL, "://")
	if len(parts) < 2 {
		return ""
	}

	return parts[0]
}
