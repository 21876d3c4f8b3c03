package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/echowave/internal/auth"
	"github.com/echowave/internal/clipstore"
	"github.com/echowave/internal/config"
	"github.com/echowave/internal/handler"
	"github.com/echowave/internal/hub"
	"github.com/echowave/internal/logger"
	"github.com/echowave/internal/middleware"
	"github.com/echowave/internal/push"
	"github.com/echowave/internal/repository"
	"github.com/echowave/internal/startup"
	"github.com/echowave/migrations"
)

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "apply database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL (no external DB required)")
	flag.Parse()

	logger.Info("starting API service")
	cfg := config.Load()

	var embeddedDB *embeddedpostgres.EmbeddedPostgres
	if *dev {
		var err error
		embeddedDB, err = startEmbeddedPostgres(cfg)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 4

	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second, "")
	defer pool.Close()

	migCtx, migCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := startup.ApplyMigrations(migCtx, pool, migrations.Files); err != nil {
		logger.Errorf("migrations: %v", err)
		os.Exit(1)
	}
	migCancel()
	if *migrate && !*dev {
		return
	}
	logger.Info("database connected, migrations applied")

	clipRepo := repository.NewClipRepository(pool)
	roomRepo := repository.NewRoomRepository(pool)
	blobs := clipstore.New(cfg.UploadDir, cfg.MaxUploadSize)
	pushClient := push.NewClient(cfg.PushServiceURL)
	tokens := auth.NewTokens(cfg.JWTSecret)

	// The hub must be running before the router accepts its first request:
	// every mutating handler publishes into it.
	broadcastHub := hub.NewHub(cfg.MaxWSConnections)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		broadcastHub.Run(hubCtx)
	}()

	clipH := handler.NewClipHandler(clipRepo, roomRepo, blobs, broadcastHub)
	roomH := handler.NewRoomHandler(roomRepo, clipRepo, broadcastHub, pushClient)
	wsH := handler.NewWSHandler(broadcastHub, roomRepo, cfg.CORSAllowedOrigins, cfg.WSSendBufferSize)
	pushH := handler.NewPushHandler(pushClient)
	configH := handler.NewConfigHandler(cfg)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	// Never compress WebSocket responses: a wrapped ResponseWriter loses
	// http.Hijacker and the upgrade 500s.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(middleware.SecureHeaders)
	r.Use(middleware.RateLimitAPI)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSAllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok clients=%d", broadcastHub.ClientCount())
	})
	r.Get("/api/config/push", configH.GetPushConfig)
	r.Get("/api/clips/audio/{filename}", clipH.ServeAudio)

	authProxy := authProxyHandler(cfg.AuthServiceURL)
	r.Post("/api/auth/signup", authProxy)
	r.Post("/api/auth/signin", authProxy)
	r.Post("/api/auth/forgot-password", authProxy)

	r.Group(func(r chi.Router) {
		r.Use(middleware.JWTAuth(tokens))
		r.Get("/api/clips", clipH.List)
		r.Post("/api/clips", clipH.Upload)
		r.Post("/api/clips/{id}/react", clipH.React)
		r.Delete("/api/clips/{id}", clipH.Delete)
		r.Get("/api/rooms", roomH.List)
		r.Post("/api/rooms", roomH.Create)
		r.Post("/api/rooms/{id}/join", roomH.Join)
		r.Delete("/api/rooms/{id}", roomH.Delete)
		r.Get("/api/rooms/{id}/messages", roomH.ListMessages)
		r.Post("/api/rooms/{id}/messages", roomH.PostMessage)
		r.Delete("/api/rooms/{id}/messages/{messageId}", roomH.DeleteMessage)
		r.Post("/api/push/subscribe", pushH.Subscribe)
		r.Delete("/api/push/subscribe", pushH.Unsubscribe)
		r.Get("/ws", wsH.ServeWS)
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	logger.Info("hub stopped")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

// authProxyHandler forwards the identity endpoints to the auth service so
// browsers only ever talk to one origin.
func authProxyHandler(authBaseURL string) http.HandlerFunc {
	client := &http.Client{Timeout: 15 * time.Second}
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
			return
		}
		targetURL := strings.TrimSuffix(authBaseURL, "/") + r.URL.Path
		proxyReq, err := http.NewRequestWithContext(r.Context(), http.MethodPost, targetURL, bytes.NewReader(body))
		if err != nil {
			http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
			return
		}
		proxyReq.Header.Set("Content-Type", r.Header.Get("Content-Type"))
		if proxyReq.Header.Get("Content-Type") == "" {
			proxyReq.Header.Set("Content-Type", "application/json")
		}
		resp, err := client.Do(proxyReq)
		if err != nil {
			logger.Errorf("auth proxy: %v", err)
			http.Error(w, `{"error":"auth service unavailable"}`, http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()
		w.Header().Set("Content-Type", resp.Header.Get("Content-Type"))
		w.WriteHeader(resp.StatusCode)
		io.Copy(w, resp.Body)
	}
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "echowave"
		password = "echowave_secret"
		database = "echowave"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
