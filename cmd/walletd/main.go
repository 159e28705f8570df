package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/menuwallet/internal/httpapi"
	"github.com/MarkoPoloResearchLab/menuwallet/internal/observability"
	"github.com/MarkoPoloResearchLab/menuwallet/internal/plansync"
	"github.com/MarkoPoloResearchLab/menuwallet/internal/sweeper"
	"github.com/MarkoPoloResearchLab/menuwallet/pkg/wallet"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	flagListenAddr      = "listen-addr"
	flagDatabaseURL     = "database-url"
	flagStoreBackend    = "store-backend"
	flagAllowedOrigins  = "allowed-origins"
	flagJWTSigningKey   = "jwt-signing-key"
	flagJWTIssuer       = "jwt-issuer"
	flagJWTCookieName   = "jwt-cookie-name"
	flagAdminEmails     = "admin-emails"
	flagProPrice        = "pro-price"
	flagProDurationDays = "pro-duration-days"
	flagSweepInterval   = "sweep-interval"
	flagSweepBatchSize  = "sweep-batch-size"
	flagRedisURL        = "redis-url"
	flagClaimsPerMinute = "claims-per-minute"
	envPrefix           = "WALLETD"

	backendGorm = "gorm"
	backendPgx  = "pgx"

	defaultDatabaseURL   = "sqlite:///tmp/menuwallet.db"
	defaultProPrice      = "10"
	defaultSweepInterval = 5 * time.Minute
)

type runtimeConfig struct {
	API            httpapi.Config
	DatabaseURL    string
	StoreBackend   string
	Plan           wallet.PlanConfig
	SweepInterval  time.Duration
	SweepBatchSize int
	RedisURL       string
}

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "walletd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "walletd",
		Short:         "Menu wallet and Pro plan lifecycle server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagListenAddr, ":8080", "HTTP listen address")
	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "postgres:// URL, sqlite:// URL or sqlite file path")
	cmd.Flags().String(flagStoreBackend, backendGorm, "store implementation: gorm or pgx (pgx requires postgres)")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().String(flagJWTSigningKey, "", "TAuth JWT signing key (required)")
	cmd.Flags().String(flagJWTIssuer, "tauth", "expected JWT issuer")
	cmd.Flags().String(flagJWTCookieName, "app_session", "JWT cookie name")
	cmd.Flags().String(flagAdminEmails, "", "comma-separated admin emails")
	cmd.Flags().String(flagProPrice, defaultProPrice, "Pro plan price in currency units (e.g. 10 or 9.99)")
	cmd.Flags().Int(flagProDurationDays, wallet.DefaultPlanConfig().DurationDays, "days added per Pro activation")
	cmd.Flags().Duration(flagSweepInterval, defaultSweepInterval, "expiry sweep interval, 0 disables the sweeper")
	cmd.Flags().Int(flagSweepBatchSize, 100, "users reconciled per sweep")
	cmd.Flags().String(flagRedisURL, "", "redis URL for the sweep lock; empty runs without a lock")
	cmd.Flags().Float64(flagClaimsPerMinute, 6, "upgrade claims allowed per user per minute")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, flagName := range []string{
		flagListenAddr, flagDatabaseURL, flagStoreBackend, flagAllowedOrigins,
		flagJWTSigningKey, flagJWTIssuer, flagJWTCookieName, flagAdminEmails,
		flagProPrice, flagProDurationDays, flagSweepInterval, flagSweepBatchSize,
		flagRedisURL, flagClaimsPerMinute,
	} {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	price, err := wallet.ParsePositiveUnits(v.GetString(flagProPrice))
	if err != nil {
		return fmt.Errorf("%s: %w", flagProPrice, err)
	}
	cfg.Plan = wallet.PlanConfig{PriceCents: price, DurationDays: v.GetInt(flagProDurationDays)}
	if err := cfg.Plan.Validate(); err != nil {
		return err
	}

	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(v.GetString(flagStoreBackend)))
	switch cfg.StoreBackend {
	case backendGorm:
	case backendPgx:
		if driver, _, _ := resolveDriver(cfg.DatabaseURL); driver != driverPostgres {
			return fmt.Errorf("%s=%s requires a postgres database url", flagStoreBackend, backendPgx)
		}
	default:
		return fmt.Errorf("unsupported %s %q", flagStoreBackend, cfg.StoreBackend)
	}

	cfg.SweepInterval = v.GetDuration(flagSweepInterval)
	if cfg.SweepInterval < 0 {
		return fmt.Errorf("%s must not be negative", flagSweepInterval)
	}
	cfg.SweepBatchSize = v.GetInt(flagSweepBatchSize)
	cfg.RedisURL = strings.TrimSpace(v.GetString(flagRedisURL))

	cfg.API = httpapi.Config{
		ListenAddr:        strings.TrimSpace(v.GetString(flagListenAddr)),
		AllowedOrigins:    httpapi.ParseList(v.GetString(flagAllowedOrigins)),
		SessionSigningKey: v.GetString(flagJWTSigningKey),
		SessionIssuer:     strings.TrimSpace(v.GetString(flagJWTIssuer)),
		SessionCookieName: strings.TrimSpace(v.GetString(flagJWTCookieName)),
		AdminEmails:       httpapi.ParseList(v.GetString(flagAdminEmails)),
		ClaimsPerMinute:   v.GetFloat64(flagClaimsPerMinute),
	}
	return cfg.API.Validate()
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	store, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	operationLogger := observability.Chain(observability.NewZapOperationLogger(logger), observability.MetricsRecorder{})
	service, err := wallet.NewService(store, time.Now, cfg.Plan, wallet.WithOperationLogger(operationLogger))
	if err != nil {
		return fmt.Errorf("wallet service init: %w", err)
	}
	hook, err := plansync.NewHook(service, logger)
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return httpapi.Run(groupCtx, cfg.API, service, hook, logger)
	})

	if cfg.SweepInterval > 0 {
		expirySweeper, closeLocker, err := newSweeper(cfg, service, logger)
		if err != nil {
			return err
		}
		defer closeLocker()
		group.Go(func() error {
			expirySweeper.RunForever(groupCtx)
			return nil
		})
	} else {
		logger.Info("expiry sweeper disabled")
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newSweeper(cfg *runtimeConfig, service *wallet.Service, logger *zap.Logger) (*sweeper.Sweeper, func(), error) {
	var (
		locker  sweeper.Locker
		closeFn = func() {}
	)
	if cfg.RedisURL != "" {
		options, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(options)
		locker = sweeper.NewRedisLocker(client)
		closeFn = func() { _ = client.Close() }
	}
	expirySweeper, err := sweeper.New(service, locker, logger, sweeper.Config{
		Interval:  cfg.SweepInterval,
		BatchSize: cfg.SweepBatchSize,
	})
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return expirySweeper, closeFn, nil
}
