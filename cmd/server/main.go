package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/digipay/backend/internal/config"
	"github.com/digipay/backend/internal/database"
	mW "github.com/digipay/backend/internal/middleware"
	"github.com/digipay/backend/internal/services"
)

func main() {
	config.Load()

	db := database.MustInitDB()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	sequenceService := services.NewSequenceService(db)
	authService := services.NewAuthService(db, redisClient)
	ledgerService := services.NewLedgerService(db)
	userService := services.NewUserService(db, sequenceService)

	if err := userService.SeedAdmin(context.Background()); err != nil {
		log.Fatalf("Failed to seed default admin: %v", err)
	}

	authGate := mW.NewAuth(db, redisClient)

	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Uploaded user documents and photos
	r.Handle("/uploads/*", http.StripPrefix("/uploads/",
		mW.StaticFileServer("./uploads")))

	r.Route("/api", func(r chi.Router) {
		// Public endpoints
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)

		// Authenticated endpoints
		r.Group(func(r chi.Router) {
			r.Use(authGate.Authenticate)

			r.Get("/auth/me", authService.Me)

			r.Post("/transactions/transfer", ledgerService.Transfer)

			r.Get("/users/{id}", userService.GetUser)
			r.Put("/users/{id}", userService.UpdateUser)
			r.Delete("/users/{id}", userService.DeleteUser)

			// Admin-only endpoints
			r.Group(func(r chi.Router) {
				r.Use(mW.RequireAdmin)

				r.Get("/transactions", ledgerService.ListTransactions)
				r.Post("/transactions/deposit", ledgerService.Deposit)
				r.Post("/transactions/cancel", ledgerService.Cancel)

				r.Post("/users", userService.CreateUser)
				r.Get("/users", userService.ListUsers)
				r.Post("/users/block", userService.BlockUsers)
			})
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
