package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/wendani/giving/internal/api"
	"github.com/wendani/giving/internal/cache"
	"github.com/wendani/giving/internal/coopbank"
	"github.com/wendani/giving/internal/payment"
	"github.com/wendani/giving/internal/reconcile"
	"github.com/wendani/giving/internal/repository"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: no .env file loaded: %v", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "giving.db"
	}

	log.Printf("Initializing database at %s", dbPath)
	db, err := repository.InitDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to init DB: %v", err)
	}
	defer db.Close()

	txnRepo := repository.NewTransactionRepo(db)

	// Gateway tokens are short-lived; share them via Redis when configured,
	// otherwise keep them in-process.
	var tokens cache.TokenCache = cache.NewMemoryCache()
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		log.Printf("Using Redis token cache at %s", addr)
		tokens = cache.NewRedisCache(addr, os.Getenv("REDIS_PASSWORD"), 0)
	}

	gateway := coopbank.NewClient(coopbank.Config{
		TokenURL:     os.Getenv("COOPBANK_TOKEN_URL"),
		STKURL:       os.Getenv("COOPBANK_STK_URL"),
		StatusURL:    os.Getenv("COOPBANK_STATUS_URL"),
		AuthHeader:   os.Getenv("COOPBANK_AUTH_HEADER"),
		OperatorCode: os.Getenv("COOPBANK_OPERATOR_CODE"),
		UserID:       os.Getenv("COOPBANK_USER_ID"),
		CallbackURL:  os.Getenv("COOPBANK_CALLBACK_URL"),
	}, tokens)

	svc := payment.NewService(txnRepo, gateway, coopbank.DefaultCodeTable())
	reconcileSvc := reconcile.NewService(txnRepo, svc)

	router := api.NewRouter(svc, txnRepo, reconcileSvc)

	log.Printf("Wendani Giving payment service")
	log.Printf("Listening on http://localhost:%s", port)
	log.Printf("API base: http://localhost:%s/api/v1", port)
	log.Printf("")
	log.Printf("Endpoints:")
	log.Printf("  POST   /api/v1/payments/initiate")
	log.Printf("  POST   /api/v1/payments/callback")
	log.Printf("  GET    /api/v1/payments/{reference}/status")
	log.Printf("  GET    /api/v1/transactions")
	log.Printf("  GET    /api/v1/transactions/{reference}")
	log.Printf("  POST   /api/v1/transactions/reconcile")
	log.Printf("  GET    /api/v1/dashboard")

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
