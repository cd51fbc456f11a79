package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"bookzone/internal/ratelimit"
	"bookzone/internal/util"
	"bookzone/services/storefront/internal/apiclient"
	"bookzone/services/storefront/internal/config"
	"bookzone/services/storefront/internal/metrics"
	"bookzone/services/storefront/internal/server"
	"bookzone/services/storefront/internal/store"
)

type limiters struct {
	login, register, checkout ratelimit.Limiter
}

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Fatalf("failed to load .env: %v", err)
	}
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	sessionTTL, err := cfg.SessionTTLDuration()
	if err != nil {
		log.Fatalf("failed to parse session TTL: %v", err)
	}
	apiTimeout, err := cfg.APITimeoutDuration()
	if err != nil {
		log.Fatalf("failed to parse api timeout: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	api := apiclient.New(apiclient.Config{
		BaseURL:  cfg.APIBaseURL,
		Timeout:  apiTimeout,
		Observer: m,
	})

	var tokens store.Backend
	var limits limiters
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer client.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatalf("failed to reach redis at %s: %v", cfg.RedisAddr, err)
		}
		tokens, err = store.NewRedisBackend(client, "", sessionTTL)
		if err != nil {
			log.Fatalf("failed to init token store: %v", err)
		}
		limits, err = redisLimiters(client, cfg)
		if err != nil {
			log.Fatalf("failed to init rate limiters: %v", err)
		}
		logger.Info("token store", "backend", "redis", "addr", cfg.RedisAddr)
	} else {
		memTokens := store.NewMemoryBackend(sessionTTL)
		tokens = memTokens
		var memLimits []*ratelimit.MemoryLimiter
		limits, memLimits, err = memoryLimiters(cfg)
		if err != nil {
			log.Fatalf("failed to init rate limiters: %v", err)
		}
		sweepers := []func() int{memTokens.Sweep}
		for _, l := range memLimits {
			sweepers = append(sweepers, l.Sweep)
		}
		go sweep(ctx, 5*time.Minute, sweepers...)
		logger.Warn("token store", "backend", "memory", "note", "sessions are lost on restart")
	}

	cookies, err := store.NewCookieSigner(cfg.SessionSecret, sessionTTL)
	if err != nil {
		log.Fatalf("failed to init cookie signer: %v", err)
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	httpServer, err := server.New(server.Config{
		API:             api,
		Tokens:          tokens,
		Cookies:         cookies,
		CookieName:      cfg.SessionCookieName,
		CookieSecure:    cfg.SessionCookieSecure,
		Metrics:         m,
		LoginLimiter:    limits.login,
		RegisterLimiter: limits.register,
		CheckoutLimiter: limits.checkout,
		TrustedProxies:  trusted,
		MaxUploadBytes:  cfg.MaxUploadBytes,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", "err", err)
		}
	}()

	slog.Info("server listening", "addr", addr, "api", cfg.APIBaseURL)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func redisLimiters(client *redis.Client, cfg config.FileConfig) (limiters, error) {
	login, err := ratelimit.NewRedisFixedWindowLimiter(client, "bookzone:ratelimit:login", cfg.LoginRateLimitPerMinute, time.Minute)
	if err != nil {
		return limiters{}, err
	}
	register, err := ratelimit.NewRedisFixedWindowLimiter(client, "bookzone:ratelimit:register", cfg.RegisterRateLimitPerMinute, time.Minute)
	if err != nil {
		return limiters{}, err
	}
	checkout, err := ratelimit.NewRedisFixedWindowLimiter(client, "bookzone:ratelimit:checkout", cfg.CheckoutRateLimitPerMinute, time.Minute)
	if err != nil {
		return limiters{}, err
	}
	return limiters{login: login, register: register, checkout: checkout}, nil
}

// memoryLimiters builds process-local limiters. They are also returned
// as a list for sweeping.
func memoryLimiters(cfg config.FileConfig) (limiters, []*ratelimit.MemoryLimiter, error) {
	login, err := ratelimit.NewMemoryLimiter(cfg.LoginRateLimitPerMinute, time.Minute)
	if err != nil {
		return limiters{}, nil, err
	}
	register, err := ratelimit.NewMemoryLimiter(cfg.RegisterRateLimitPerMinute, time.Minute)
	if err != nil {
		return limiters{}, nil, err
	}
	checkout, err := ratelimit.NewMemoryLimiter(cfg.CheckoutRateLimitPerMinute, time.Minute)
	if err != nil {
		return limiters{}, nil, err
	}
	return limiters{login: login, register: register, checkout: checkout},
		[]*ratelimit.MemoryLimiter{login, register, checkout}, nil
}

// sweep drops idle in-memory state every interval until ctx is done.
func sweep(ctx context.Context, every time.Duration, sweepers ...func() int) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := 0
			for _, fn := range sweepers {
				n += fn()
			}
			if n > 0 {
				slog.Debug("memory sweep", "removed", n)
			}
		}
	}
}
