package main

import (
	"context"
	"fmt"
	"time"

	"github.com/joeyave/bookclub/config"
	"github.com/joeyave/bookclub/repository"
	"github.com/joeyave/bookclub/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	mongoClient, err := repository.Connect(ctx, cfg.MongoURI)
	if err != nil {
		panic(fmt.Sprintf("failed to connect mongo: %v", err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(ctx)
	}()

	userRepository := repository.NewUserRepository(mongoClient, cfg.MongoDatabase)
	clubRepository := repository.NewClubRepository(mongoClient, cfg.MongoDatabase)
	tokenRepository := repository.NewTokenRepository(mongoClient, cfg.MongoDatabase)
	repairService := service.NewRepairService(repository.NewTransactor(mongoClient), userRepository, clubRepository, tokenRepository)

	report, err := repairService.RepairMemberships(ctx)
	if err != nil {
		panic(fmt.Sprintf("failed to repair memberships: %v", err))
	}

	purged, err := repairService.PurgeExpiredTokens(ctx)
	if err != nil {
		fmt.Printf("[FAIL] purge expired tokens: %v\n", err)
	}

	fmt.Printf("Repair finished. clubsFixed=%d linksAdded=%d linksRemoved=%d skipped=%d failed=%d purgedTokens=%d\n",
		report.ClubsFixed, report.UserLinksAdded, report.UserLinksRemoved, report.Skipped, report.Failed, purged)
}
