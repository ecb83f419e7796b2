package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joeyave/bookclub/config"
	"github.com/joeyave/bookclub/controller"
	"github.com/joeyave/bookclub/helpers"
	"github.com/joeyave/bookclub/service"
	"github.com/joeyave/bookclub/storage"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open stores")
	}
	defer st.close()

	assets, err := storage.NewDiskStore(cfg.UploadsDir, cfg.UploadsURL(), cfg.MaxUploadBytes)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare uploads directory")
	}

	authService := service.NewAuthService(st.users, st.tokens, cfg.JWTSecret, cfg.TokenTTL, cfg.BcryptCost)
	userService := service.NewUserService(st.transactor, st.users, st.clubs, st.meets, authService, assets)
	bookService := service.NewBookService(st.transactor, st.books, st.users)
	clubService := service.NewClubService(st.transactor, st.clubs, st.users, st.meets, assets, cfg.DefaultLocale)
	meetService := service.NewMeetService(st.transactor, st.meets, st.clubs, st.books, st.users, cfg.DefaultLocale)
	repairService := service.NewRepairService(st.transactor, st.users, st.clubs, st.tokens)

	authLimiter := helpers.NewRateLimiter(cfg.AuthRateLimit, cfg.AuthRateBurst)

	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.RepairSchedule, func() {
		runMaintenance(ctx, repairService)
		authLimiter.Cleanup()
	})
	if err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.RepairSchedule).Msg("Invalid repair schedule")
	}
	scheduler.Start()
	defer scheduler.Stop()

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := controller.NewRouter(controller.RouterConfig{
		AuthService:    authService,
		UserController: &controller.UserController{UserService: userService},
		BookController: &controller.BookController{BookService: bookService},
		ClubController: &controller.ClubController{ClubService: clubService},
		MeetController: &controller.MeetController{MeetService: meetService},
		Store:          st.pinger,
		AuthLimiter:    authLimiter,
		CORSOrigins:    cfg.CORSOrigins,
		UploadsDir:     cfg.UploadsDir,
		ExposeErrors:   cfg.IsDevelopment(),
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       time.Minute,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Str("store", cfg.StoreDriver).Msg("Server started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func runMaintenance(ctx context.Context, repairService *service.RepairService) {
	report, err := repairService.RepairMemberships(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Membership repair failed")
	} else if report.Changed() || report.Failed > 0 {
		log.Warn().
			Int("clubsFixed", report.ClubsFixed).
			Int("linksAdded", report.UserLinksAdded).
			Int("linksRemoved", report.UserLinksRemoved).
			Int("skipped", report.Skipped).
			Int("failed", report.Failed).
			Msg("Membership inconsistencies repaired")
	}

	n, err := repairService.PurgeExpiredTokens(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Revocation sweep failed")
		return
	}
	log.Debug().Int64("purged", n).Msg("Revocation sweep finished")
}
