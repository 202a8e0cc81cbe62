package main

import (
	"context"
	"fmt"

	"github.com/Baaaki/resource-hub/internal/config"
	"github.com/Baaaki/resource-hub/internal/database"
	"github.com/Baaaki/resource-hub/internal/repository"
	"github.com/Baaaki/resource-hub/internal/seed"
	"github.com/Baaaki/resource-hub/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	if err := logger.Init(!cfg.IsProduction()); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	database.Connect(cfg)
	database.Migrate()

	report, err := seed.Run(
		context.Background(),
		repository.NewUserRepository(database.DB),
		repository.NewResourceRepository(database.DB),
	)
	if err != nil {
		logger.Log.Fatal("Seeding failed", zap.Error(err))
	}

	logger.Log.Info("Test data created successfully",
		zap.Strings("users_created", report.UsersCreated),
		zap.Strings("resources_created", report.ResourcesCreated),
	)

	fmt.Println("Test users:")
	for _, line := range seed.Credentials() {
		fmt.Println("  -", line)
	}
}
