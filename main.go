package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cfg "github.com/example/fireheart/internal/config"
	"github.com/gorilla/mux"
	_ "modernc.org/sqlite"
)

// App wires the store, the token service and the image pipeline into the
// HTTP handlers. Everything it holds is process-wide configuration; no
// per-request state lives here.
type App struct {
	Store        Store
	Tokens       *TokenService
	Images       *ImagePipeline
	ClientOrigin string
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write json: %v", err)
	}
}

// routes builds the full router: global middleware, public routes, and the
// protected routes behind the auth gate.
func (a *App) routes() *mux.Router {
	r := mux.NewRouter()

	r.Use(SecurityHeaders)
	r.Use(a.Logging)
	r.Use(a.CORS)

	// Health check endpoints (no auth required)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(200)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
	r.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if p, ok := a.Store.(interface{ ping() bool }); ok {
			if !p.ping() {
				w.WriteHeader(503)
				w.Write([]byte(`{"ready":false}`))
				return
			}
		}
		w.WriteHeader(200)
		w.Write([]byte(`{"ready":true}`))
	}).Methods("GET")

	// Public routes
	r.HandleFunc("/leaderboard", a.HandleLeaderboard).Methods("GET")
	r.HandleFunc("/upload", a.HandleUpload).Methods("POST")
	r.HandleFunc("/profile", a.HandleCreateProfile).Methods("POST")
	r.HandleFunc("/token", a.HandleToken).Methods("POST")
	r.HandleFunc("/login", a.HandleLogin).Methods("POST")
	r.HandleFunc("/profile/image/{file}", a.HandleImage).Methods("GET")

	// Protected routes behind the auth gate
	r.Handle("/user/{id}", a.RequireAuth(http.HandlerFunc(a.HandleGetUser))).Methods("GET")
	r.Handle("/random", a.RequireAuth(http.HandlerFunc(a.HandleRandom))).Methods("GET")
	r.Handle("/update", a.RequireAuth(http.HandlerFunc(a.HandleUpdate))).Methods("PATCH")
	r.Handle("/increment", a.RequireAuth(http.HandlerFunc(a.HandleIncrement))).Methods("PATCH")
	r.Handle("/logout", a.RequireAuth(http.HandlerFunc(a.HandleLogout))).Methods("DELETE")

	return r
}

func main() {
	c, err := cfg.New()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var store Store
	switch c.DBAdapter {
	case "sqlite":
		s, err := NewSQLiteDB(c.SQLiteFile)
		if err != nil {
			log.Fatalf("sqlite init: %v", err)
		}
		store = s
	case "postgres":
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			log.Fatalf("postgres config error: %v", err)
		}

		log.Println("Applying database migrations...")
		if err := ApplyMigrations("./migrations", dsn); err != nil {
			log.Printf("migrations warning: %v", err)
		} else {
			log.Println("Migrations applied successfully")
		}

		p, err := NewPostgresDB(dsn)
		if err != nil {
			log.Fatalf("postgres init: %v", err)
		}
		store = p
		log.Println("Connected to PostgreSQL database")
	case "memory":
		log.Println("Using in-memory store (not recommended for production)")
		store = NewMemoryDB()
	default:
		log.Fatalf("unsupported DB_ADAPTER: %s (supported: postgres, sqlite, memory)", c.DBAdapter)
	}

	app := &App{
		Store:        store,
		Tokens:       NewTokenService([]byte(c.AccessTokenSecret), []byte(c.RefreshTokenSecret)),
		Images:       NewImagePipeline(c.UploadDir, c.PublicBaseURL),
		ClientOrigin: c.ClientOrigin,
	}

	srv := &http.Server{Handler: app.routes(), Addr: ":" + c.Port, ReadTimeout: 30 * time.Second, WriteTimeout: 30 * time.Second}

	go func() {
		fmt.Println("Starting server on", c.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if closer, ok := app.Store.(interface{ close() error }); ok {
		_ = closer.close()
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown failed:%+v", err)
	}
	fmt.Println("Server exited properly")
}
