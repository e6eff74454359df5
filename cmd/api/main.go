package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"projectmatch/application"
	"projectmatch/auth"
	"projectmatch/db"
	"projectmatch/directory"
	"projectmatch/httpapi"
	"projectmatch/proposal"
)

func main() {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	connString := os.Getenv("DATABASE_URL")
	if connString == "" {
		log.Fatal("DATABASE_URL is required")
	}
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}
	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":8080"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, connString)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	authService := auth.NewService(auth.NewRepository(pool), jwtSecret)
	directoryService := directory.NewService(directory.NewRepository(pool))
	proposalService := proposal.NewService(pool, proposal.NewRepository(pool))
	proposalQueries := proposal.NewQueries(pool)
	applicationService := application.NewService(pool, application.NewRepository(pool))
	applicationQueries := application.NewQueries(pool)

	handler := httpapi.NewHandler(httpapi.Services{
		Auth:         authService,
		Proposals:    proposalService,
		ProposalRead: proposalQueries,
		Applications: applicationService,
		AppRead:      applicationQueries,
		Directory:    directoryService,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("serve: %v", err)
	}
}
