// Identity service: signup/signin/forgot-password with per-username
// throttling.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/echowave/internal/auth"
	"github.com/echowave/internal/config"
	"github.com/echowave/internal/handler"
	"github.com/echowave/internal/logger"
	"github.com/echowave/internal/repository"
	"github.com/echowave/internal/service"
	"github.com/echowave/internal/startup"
	"github.com/echowave/internal/storage/memory"
	"github.com/echowave/migrations"
)

func main() {
	logger.SetPrefix("auth")
	dev := flag.Bool("dev", false, "use in-memory throttle store instead of Redis")
	flag.Parse()

	logger.Info("starting auth service")
	cfg := config.Load()

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second, "auth: ")
	defer pool.Close()

	migCtx, migCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := startup.ApplyMigrations(migCtx, pool, migrations.Files); err != nil {
		logger.Errorf("auth: migrations: %v", err)
		os.Exit(1)
	}
	migCancel()

	userRepo := repository.NewUserRepository(pool)

	var throttle service.Throttle
	if *dev {
		logger.Info("auth -dev: in-memory throttle store")
		throttle = memory.New()
	} else {
		redisClient := startup.ConnectRedisWithRetry(cfg.Redis.URL, 60*time.Second, "auth: ")
		defer redisClient.Close()
		throttle = redisClient
	}

	tokens := auth.NewTokens(cfg.JWTSecret)
	authSvc := service.NewAuthService(userRepo, tokens, throttle)
	authH := handler.NewAuthHandler(authSvc)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/api/auth/signup", authH.Signup)
	r.Post("/api/auth/signin", authH.Signin)
	r.Post("/api/auth/forgot-password", authH.ForgotPassword)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	addr := os.Getenv("AUTH_SERVER_ADDR")
	if addr == "" {
		addr = ":3002"
	}
	srv := &http.Server{Addr: addr, Handler: r, ReadTimeout: 15 * time.Second, WriteTimeout: 15 * time.Second}
	var srvWg sync.WaitGroup
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("auth server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("auth server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down auth server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("auth server shutdown: %v", err)
	}
	srvWg.Wait()
}
