package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"expiry-server/calendar"
	"expiry-server/config"
	"expiry-server/handlers"
	"expiry-server/middleware"
	"expiry-server/remind"
	"expiry-server/schedule"
	"expiry-server/store"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "./expiry.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	if cfg.TokenSecret != "" {
		middleware.JWTSecret = []byte(cfg.TokenSecret)
	}

	// Initialize store
	s, err := store.New(cfg.DBPath)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer s.Close()

	// Build the collaborator graph explicitly: mirror and trigger backends
	// go into the coordinator, fired triggers go to the websocket hub.
	mirror := calendar.NewICSMirror(calendarFiles(cfg))
	wake := schedule.NewTimerWakeSource()

	hub := handlers.NewHub(s)
	go hub.Run()
	go hub.WatchProducts()

	alerts := handlers.NewAlertPresenter(hub)
	notifications := schedule.NewNotificationBackend(wake, alerts)
	alarms := schedule.NewAlarmBackend(wake, alerts)
	coordinator := remind.NewCoordinator(mirror, notifications, alarms)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Process timers do not survive a restart; re-arm every product's
	// trigger from the store before serving traffic.
	sweeper := remind.NewSweeper(s, coordinator)
	sweeper.Start(ctx)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(s)
	productHandler := handlers.NewProductHandler(s, coordinator)

	// Create router
	mux := http.NewServeMux()

	// Public routes (no auth required)
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("GET /api/ws", hub.HandleWebSocket)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// Protected routes (auth required)
	mux.HandleFunc("GET /api/auth/me", withAuth(authHandler.Me))

	// Products
	mux.HandleFunc("GET /api/products", withAuth(productHandler.List))
	mux.HandleFunc("POST /api/products", withAuth(productHandler.Create))
	mux.HandleFunc("POST /api/products/preview", withAuth(productHandler.Preview))
	mux.HandleFunc("GET /api/products/{id}", withAuth(productHandler.Get))
	mux.HandleFunc("PUT /api/products/{id}", withAuth(productHandler.Update))
	mux.HandleFunc("DELETE /api/products/{id}", withAuth(productHandler.Delete))

	// Alarms
	mux.HandleFunc("POST /api/alarms/{id}/dismiss", withAuth(alerts.HandleDismiss))

	// CORS wrapper
	handler := corsMiddleware(mux)

	server := &http.Server{Addr: cfg.Listen, Handler: handler}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("Expiry server starting on %s", cfg.Listen)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}

	// Let an in-flight sweep finish before the process goes away.
	sweeper.Wait()
}

func calendarFiles(cfg *config.Config) []calendar.File {
	files := make([]calendar.File, 0, len(cfg.Calendars))
	for _, c := range cfg.Calendars {
		files = append(files, calendar.File{
			Name:     c.Name,
			Path:     c.Path,
			Primary:  c.Primary,
			ReadOnly: c.ReadOnly,
		})
	}
	return files
}

// withAuth wraps a handler with authentication
func withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
			return
		}

		claims, err := middleware.ValidateToken(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := middleware.SetUserID(r.Context(), claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
