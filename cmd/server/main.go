package main

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/learnhub/backend/internal/auth"
	"github.com/learnhub/backend/internal/config"
	"github.com/learnhub/backend/internal/database"
	"github.com/learnhub/backend/internal/gamification"
	"github.com/learnhub/backend/internal/middleware"
)

func main() {
	cfg := config.Load()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Leaderboard cache is optional; without redis reads hit the database.
	var cache *gamification.LeaderboardCache
	if cfg.RedisAddr != "" {
		cache = gamification.NewLeaderboardCache(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
		log.Printf("Leaderboard cache enabled at %s", cfg.RedisAddr)
	}

	jwtSecret := []byte(cfg.JWTSecret)

	authHandler := auth.NewHandler(db, jwtSecret)

	gamStore := gamification.NewStore(db)
	gamService := gamification.NewService(gamStore, cache, nil)
	gamHandler := gamification.NewHandler(gamService)

	// Setup router
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	// Public routes
	api.HandleFunc("/auth/register", authHandler.Register).Methods("POST")
	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST")

	// Protected routes
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.Auth(jwtSecret))
	protected.HandleFunc("/auth/me", authHandler.GetCurrentUser).Methods("GET")
	protected.HandleFunc("/gamification", gamHandler.GetGamification).Methods("GET")
	protected.HandleFunc("/gamification/login", gamHandler.RecordLogin).Methods("POST")
	protected.HandleFunc("/gamification/events", gamHandler.AwardPoints).Methods("POST")
	protected.HandleFunc("/leaderboard", gamHandler.GetLeaderboard).Methods("GET")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	handler := c.Handler(r)

	log.Printf("Server starting on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, handler); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
