// cmd/server/main.go
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/optiportal/campaign-engine/internal/config"
	"github.com/optiportal/campaign-engine/internal/db"
	"github.com/optiportal/campaign-engine/internal/handler"
	"github.com/optiportal/campaign-engine/internal/lease"
	"github.com/optiportal/campaign-engine/internal/repository"
	"github.com/optiportal/campaign-engine/internal/service"
	"github.com/optiportal/campaign-engine/internal/transport"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on OS environment variables")
	}

	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	database, err := db.Connect(ctx, &cfg.Database)
	if err != nil {
		log.Fatal(err)
	}
	defer database.Close()

	campaignRepo := &repository.CampaignRepository{DB: database}
	customerRepo := &repository.CustomerRepository{DB: database}
	enrollmentRepo := &repository.EnrollmentRepository{DB: database}
	messageRepo := &repository.MessageRepository{DB: database}
	templateRepo := &repository.TemplateRepository{DB: database}

	sender := transport.NewThrottled(&transport.Mux{
		SMS:   &transport.LogSender{Logger: logger},
		Email: &transport.LogSender{Logger: logger},
	}, cfg.Engine.SendRatePerSec)

	engine := &service.Engine{
		Campaigns:   campaignRepo,
		Customers:   customerRepo,
		Enrollments: enrollmentRepo,
		Messages:    messageRepo,
		Templates:   templateRepo,
		Sender:      sender,
		Lease:       &lease.PostgresLease{DB: database},
		Logger:      logger,
		Concurrency: cfg.Engine.Concurrency,
		SendTimeout: cfg.Engine.SendTimeout,
		RunTimeout:  cfg.Engine.RunTimeout,
	}

	campaignService := &service.CampaignService{
		CampaignRepo:   campaignRepo,
		CustomerRepo:   customerRepo,
		EnrollmentRepo: enrollmentRepo,
		MessageRepo:    messageRepo,
		TemplateRepo:   templateRepo,
	}

	router := handler.NewRouter(
		&handler.CampaignHandler{Service: campaignService},
		&handler.TemplateHandler{Repo: templateRepo},
		&handler.CronHandler{Engine: engine, Secret: cfg.Engine.CronSecret, Logger: logger},
	)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("server running", "addr", cfg.Server.Addr())
	log.Fatal(srv.ListenAndServe())
}
