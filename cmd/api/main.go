package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"database/sql"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/paylend/loan-service/internal/config"
	"github.com/paylend/loan-service/internal/handler"
	"github.com/paylend/loan-service/internal/integrations/cbr"
	"github.com/paylend/loan-service/internal/middleware"
	"github.com/paylend/loan-service/internal/notify"
	"github.com/paylend/loan-service/internal/repository"
	"github.com/paylend/loan-service/internal/scheduler"
	"github.com/paylend/loan-service/internal/service"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	// Initialize layers
	repo := repository.NewRepository(db)
	rates := cbr.NewClient(cfg, logger)
	sink := notify.NewEmailSink(cfg, logger)
	svc := service.NewService(repo, logger, cfg, sink, rates)
	h := handler.NewHandler(svc)

	// Periodic late-fee and default sweeps
	sched := scheduler.NewScheduler(svc, cfg, logger)
	if err := sched.Start(); err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Setup router
	r := mux.NewRouter()
	// Public routes
	r.HandleFunc("/register", h.Register).Methods("POST")
	r.HandleFunc("/login", h.Login).Methods("POST")
	r.HandleFunc("/reference-rate", func(w http.ResponseWriter, r *http.Request) {
		rate, err := rates.GetKeyRate()
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to get key rate: %v", err), http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]float64{"key_rate": rate})
	}).Methods("GET")

	// Protected routes
	authRouter := r.PathPrefix("/").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(cfg))

	// Lifecycle
	authRouter.HandleFunc("/loans", h.CreateLoan).Methods("POST")
	authRouter.HandleFunc("/loans/{id}", h.GetLoan).Methods("GET")
	authRouter.HandleFunc("/loans/{id}/accept", h.AcceptOffer).Methods("POST")
	authRouter.HandleFunc("/loans/{id}/decline", h.DeclineOffer).Methods("POST")
	authRouter.HandleFunc("/loans/{id}/sign", h.SignAgreement).Methods("POST")
	authRouter.HandleFunc("/loans/{id}/cancel", h.CancelLoan).Methods("POST")
	authRouter.HandleFunc("/loans/{id}/write-off", h.WriteOffLoan).Methods("POST")

	// Ledger and fees
	authRouter.HandleFunc("/loans/{id}/schedule", h.GetSchedule).Methods("GET")
	authRouter.HandleFunc("/loans/{id}/payments", h.RecordPayment).Methods("POST")
	authRouter.HandleFunc("/loans/{id}/fees", h.ListLateFees).Methods("GET")
	authRouter.HandleFunc("/loans/{id}/fees/calculate", h.CalculateLateFees).Methods("POST")
	authRouter.HandleFunc("/fees/{id}/waive", h.WaiveLateFee).Methods("POST")
	authRouter.HandleFunc("/loans/{id}/payoff", h.GetPayoffQuote).Methods("GET")

	// Health scoring
	authRouter.HandleFunc("/loans/{id}/health", h.GetLoanHealth).Methods("GET")
	authRouter.HandleFunc("/borrowers/{id}/health", h.GetBorrowerHealth).Methods("GET")
	authRouter.HandleFunc("/health/system", h.GetSystemHealth).Methods("GET")

	// Disbursement protocol
	authRouter.HandleFunc("/loans/{id}/disbursement", h.SubmitDisbursementProof).Methods("POST")
	authRouter.HandleFunc("/loans/{id}/disbursement", h.GetDisbursementProof).Methods("GET")
	authRouter.HandleFunc("/loans/{id}/disbursement/confirm", h.ConfirmReceipt).Methods("POST")
	authRouter.HandleFunc("/loans/{id}/disbursement/dispute", h.DisputeDisbursement).Methods("POST")

	// Restructure protocol
	authRouter.HandleFunc("/loans/{id}/restructures", h.RequestRestructure).Methods("POST")
	authRouter.HandleFunc("/restructures/{id}/respond", h.RespondToRestructure).Methods("POST")

	// Risk flags
	authRouter.HandleFunc("/borrowers/{id}/flags", h.FlagBorrower).Methods("POST")
	authRouter.HandleFunc("/borrowers/{id}/flags", h.ListBorrowerFlags).Methods("GET")
	authRouter.HandleFunc("/flags/{id}/resolve", h.ResolveFlag).Methods("POST")

	// Payment proofs
	authRouter.HandleFunc("/loans/{id}/payment-proofs", h.SubmitPaymentProof).Methods("POST")
	authRouter.HandleFunc("/payment-proofs/{id}/review", h.ReviewPaymentProof).Methods("POST")

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	logger.Infof("Starting server on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}
