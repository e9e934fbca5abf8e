package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/npezzotti/go-vibes/internal/api"
	"github.com/npezzotti/go-vibes/internal/config"
	"github.com/npezzotti/go-vibes/internal/database"
	"github.com/npezzotti/go-vibes/internal/email"
	"github.com/npezzotti/go-vibes/internal/ratelimit"
	"github.com/npezzotti/go-vibes/internal/resettoken"
	"github.com/npezzotti/go-vibes/internal/retention"
	"github.com/npezzotti/go-vibes/internal/server"
	"github.com/npezzotti/go-vibes/internal/stats"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="
	shutdownTimeout   = 10 * time.Second
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

type options struct {
	configPath        string
	addr              string
	dsn               string
	signingKey        string
	allowedOrigins    stringSliceFlag
	redisAddr         string
	redisPassword     string
	vibeRateLimit     int
	vibeRateWindow    time.Duration
	retentionInterval time.Duration
	publicURL         string
	smtp              config.SMTPConfig
}

func parseFlags(fs *flag.FlagSet, args []string) (options, map[string]bool, error) {
	var opts options
	fs.StringVar(&opts.configPath, "config", "", "optional YAML configuration file")
	fs.StringVar(&opts.addr, "addr", "localhost:8000", "server address")
	fs.StringVar(&opts.dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	fs.StringVar(&opts.signingKey, "signing-key", defaultSigningKey, "base64 encoded signing key")
	fs.Var(&opts.allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	fs.StringVar(&opts.redisAddr, "redis-addr", config.DefaultRedisAddr, "redis address")
	fs.StringVar(&opts.redisPassword, "redis-password", "", "redis password")
	fs.IntVar(&opts.vibeRateLimit, "vibe-rate-limit", config.DefaultVibeRateLimit, "vibes a user may send to one room per window")
	fs.DurationVar(&opts.vibeRateWindow, "vibe-rate-window", config.DefaultVibeRateWindow, "vibe rate limit window")
	fs.DurationVar(&opts.retentionInterval, "retention-interval", config.DefaultRetentionInterval, "how often expired messages are cleaned up")
	fs.StringVar(&opts.publicURL, "public-url", config.DefaultPublicURL, "base URL of the web client, used in emailed links")
	fs.StringVar(&opts.smtp.Host, "smtp-host", "", "SMTP host; emails are only logged when empty")
	fs.StringVar(&opts.smtp.Port, "smtp-port", "587", "SMTP port")
	fs.StringVar(&opts.smtp.Username, "smtp-username", "", "SMTP username")
	fs.StringVar(&opts.smtp.Password, "smtp-password", "", "SMTP password")
	fs.StringVar(&opts.smtp.From, "smtp-from", "no-reply@vibes.local", "sender address for outgoing email")
	if err := fs.Parse(args); err != nil {
		return opts, nil, err
	}

	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	return opts, explicit, nil
}

// choose prefers a flag given on the command line, then a non-zero file
// value, then the flag default.
func choose[T comparable](explicit map[string]bool, name string, flagVal, fileVal T) T {
	var zero T
	if explicit[name] || fileVal == zero {
		return flagVal
	}
	return fileVal
}

func buildConfig(opts options, fc config.FileConfig, explicit map[string]bool) (*config.Config, error) {
	origins := []string(opts.allowedOrigins)
	if !explicit["allowed-origins"] && len(fc.AllowedOrigins) > 0 {
		origins = fc.AllowedOrigins
	}

	cfg, err := config.NewConfig(
		choose(explicit, "addr", opts.addr, fc.Addr),
		choose(explicit, "dsn", opts.dsn, fc.DSN),
		choose(explicit, "signing-key", opts.signingKey, fc.SigningKey),
		origins,
	)
	if err != nil {
		return nil, err
	}

	fileWindow, fileRetention, err := fc.Durations()
	if err != nil {
		return nil, err
	}

	cfg.RedisAddr = choose(explicit, "redis-addr", opts.redisAddr, fc.RedisAddr)
	cfg.RedisPassword = choose(explicit, "redis-password", opts.redisPassword, fc.RedisPassword)
	cfg.VibeRateLimit = choose(explicit, "vibe-rate-limit", opts.vibeRateLimit, fc.VibeRateLimit)
	cfg.VibeRateWindow = choose(explicit, "vibe-rate-window", opts.vibeRateWindow, fileWindow)
	cfg.RetentionInterval = choose(explicit, "retention-interval", opts.retentionInterval, fileRetention)
	cfg.PublicURL = choose(explicit, "public-url", opts.publicURL, fc.PublicURL)
	cfg.SMTP = config.SMTPConfig{
		Host:     choose(explicit, "smtp-host", opts.smtp.Host, fc.SMTPHost),
		Port:     choose(explicit, "smtp-port", opts.smtp.Port, fc.SMTPPort),
		Username: choose(explicit, "smtp-username", opts.smtp.Username, fc.SMTPUsername),
		Password: choose(explicit, "smtp-password", opts.smtp.Password, fc.SMTPPassword),
		From:     choose(explicit, "smtp-from", opts.smtp.From, fc.SMTPFrom),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func main() {
	logger := log.New(os.Stderr, "[go-vibes] ", log.LstdFlags)

	opts, explicit, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		logger.Fatal("flags:", err)
	}

	var fc config.FileConfig
	if opts.configPath != "" {
		if fc, err = config.LoadFile(opts.configPath); err != nil {
			logger.Fatal("config:", err)
		}
	}

	cfg, err := buildConfig(opts, fc, explicit)
	if err != nil {
		logger.Fatal("config:", err)
	}

	if err := run(logger, cfg); err != nil {
		logger.Fatal(err)
	}

	logger.Println("shutdown complete")
}

func run(logger *log.Logger, cfg *config.Config) error {
	if err := database.Migrate(cfg.DatabaseDSN); err != nil {
		return fmt.Errorf("db migrate: %w", err)
	}

	dbConn, err := database.NewPgVibeRepository(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db open: %w", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Println("db close:", err)
		}
	}()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer rdb.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = rdb.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	limiter, err := ratelimit.NewFixedWindowLimiter(rdb, "vibes:ratelimit", cfg.VibeRateLimit, cfg.VibeRateWindow)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger, dbConn, statsUpdater, limiter)
	if err != nil {
		return fmt.Errorf("new chat server: %w", err)
	}

	janitor := retention.NewJanitor(logger, dbConn, cfg.RetentionInterval)

	srv := api.NewVibesApp(mux, logger, chatServer, dbConn, api.Services{
		Resets:  resettoken.NewStore(rdb, resettoken.DefaultTTL),
		Mailer:  email.NewSender(logger, cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From),
		Cleaner: janitor,
	}, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return janitor.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Println("received shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}

		logger.Println("shutting down chat server...")
		if err := chatServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("chat server shutdown: %w", err)
		}

		return nil
	})

	return g.Wait()
}
