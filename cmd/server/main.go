package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"bookmate/internal/config"
	"bookmate/internal/database"
	"bookmate/internal/httpapi"
	"bookmate/internal/infrastructure/payment"
	"bookmate/internal/repo"
	"bookmate/internal/service"
	"bookmate/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.DB)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer db.Close()

	if err := database.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	bookRepo := repo.NewBookRepo(db)
	orderRepo := repo.NewOrderRepo(db)
	txManager := repo.NewTxManager(db)
	gateway := payment.NewClient(cfg.Gateway)

	orderService := service.NewOrderService(bookRepo, orderRepo, txManager, cfg.DeliveryFee)
	bookService := service.NewBookService(bookRepo)
	paymentService := service.NewPaymentService(orderService, gateway, cfg.Gateway)

	sweeper := worker.NewReconciliationWorker(orderService, gateway, 1*time.Minute, 5*time.Minute)
	go sweeper.Run(ctx)

	server := httpapi.NewServer(cfg.CORSOrigins, bookService, orderService, paymentService, database.New(db))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.Engine(),
	}

	go func() {
		log.Printf("listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
