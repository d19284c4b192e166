package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	chatservice "campusmarket/internal/app/services/chat"
	domainchat "campusmarket/internal/domain/chat"
	domainidentity "campusmarket/internal/domain/identity"
	domainlistings "campusmarket/internal/domain/listings"
	"campusmarket/internal/infra/broker/kafka"
	"campusmarket/internal/infra/config"
	mongodb "campusmarket/internal/infra/db/mongo"
	ginserver "campusmarket/internal/infra/http/gin"
	infraidentity "campusmarket/internal/infra/identity"
	"campusmarket/internal/infra/notify"
	"campusmarket/internal/infra/obs"
	infraoutbox "campusmarket/internal/infra/outbox"
	"campusmarket/internal/infra/storage/memory"
	"campusmarket/internal/infra/storage/s3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env)

	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer app.close()

	if err := app.loadFixtures(ctx, cfg, logger); err != nil {
		logger.Warn("fixtures load failed", "error", err)
	}

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Ready: app.ready,
	}, app.handlers)

	go func() {
		if err := app.feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("live feed stopped", "error", err)
		}
	}()
	go func() {
		if err := app.worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("outbox worker stopped", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "memory_mode", cfg.MemoryMode())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

type profileSaver interface {
	Save(ctx context.Context, profile *domainidentity.Profile) error
}

type application struct {
	handlers ginserver.Handlers
	feed     *chatservice.Feed
	worker   *infraoutbox.Worker
	ready    func() error
	closers  []func() error

	listings  domainlistings.Repository
	directory profileSaver
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	app := &application{ready: func() error { return nil }}

	var (
		store     domainchat.Store
		reports   domainchat.ReportStore
		listings  domainlistings.Repository
		directory domainidentity.Directory
		queue     infraoutbox.Queue
	)

	if cfg.MemoryMode() {
		logger.Info("running against in-process storage; set MONGO_URI for a real cluster")
		box := memory.NewOutbox()
		memListings := memory.NewListingRepository()
		memDirectory := memory.NewProfileDirectory()
		store = memory.NewChatStore(box)
		reports = memory.NewReportStore()
		listings = memListings
		directory = memDirectory
		queue = box
		app.listings = memListings
		app.directory = memDirectory
	} else {
		client, err := mongodb.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("mongo connect: %w", err)
		}
		app.ready = func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return client.Ping(pingCtx)
		}
		mongoBox := infraoutbox.NewStore(client.DB)
		mongoListings := mongodb.NewListingRepository(client.DB)
		mongoDirectory := mongodb.NewProfileDirectory(client.DB)
		store = mongodb.NewChatStore(client.DB, mongoBox, logger)
		reports = mongodb.NewReportStore(client.DB)
		listings = mongoListings
		directory = mongoDirectory
		queue = mongoBox
		app.listings = mongoListings
		app.directory = mongoDirectory
	}

	var push notify.PushDispatcher
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		app.closers = append(app.closers, producer.Close)
		push = &notify.KafkaPush{Producer: producer, Topic: cfg.PushTopic}
	}

	var email notify.EmailSender
	if cfg.EmailEndpoint != "" {
		email = &notify.EmailClient{Endpoint: cfg.EmailEndpoint, Logger: logger}
	}

	var uploader s3.Uploader = s3.NoopUploader{}
	if cfg.S3Endpoint != "" {
		client, err := s3.NewClient(cfg.S3Endpoint, cfg.S3UseSSL, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3PublicEndpoint, logger)
		if err != nil {
			logger.Warn("s3 uploader disabled", "error", err)
		} else {
			uploader = client
		}
	}

	service := &chatservice.Service{
		Store:       store,
		Reports:     reports,
		Listings:    listings,
		Directory:   directory,
		StorageHost: cfg.S3PublicEndpoint,
		Logger:      logger,
	}
	app.feed = chatservice.NewFeed(store, logger)
	app.worker = &infraoutbox.Worker{
		Queue:    queue,
		Email:    email,
		Push:     push,
		Logger:   logger,
		Interval: cfg.OutboxPollInterval,
		Backoff:  cfg.RetryBackoff,
		BaseURL:  cfg.PublicBaseURL,
		ID:       uuid.NewString(),
	}

	resolver := infraidentity.NewTokenResolver(cfg.JWTSecret)
	app.handlers = ginserver.Handlers{
		Chat:           ginserver.ChatHandler{Chat: service, Logger: logger},
		Upload:         ginserver.UploadHandler{Uploader: uploader, Logger: logger},
		WS:             ginserver.WSHandler{Feed: app.feed, Logger: logger},
		AuthMiddleware: ginserver.AuthMiddleware{Resolver: resolver, Logger: logger}.Handle,
	}
	return app, nil
}

func (a *application) close() {
	for _, fn := range a.closers {
		_ = fn()
	}
}

type listingFixture struct {
	ID          string `json:"id"`
	SellerID    string `json:"seller_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	PriceCents  int64  `json:"price_cents"`
	ImageURL    string `json:"image_url"`
}

type profileFixture struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AvatarURL   string `json:"avatar_url"`
	Affiliation string `json:"affiliation"`
	Verified    bool   `json:"verified"`
	Email       string `json:"email"`
}

func (a *application) loadFixtures(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	dir := cfg.FixturesDir
	if dir == "" {
		dir = filepath.Join("fixtures")
	}

	var listingFixtures []listingFixture
	if err := readFixtureFile(filepath.Join(dir, "listings.json"), &listingFixtures); err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, fx := range listingFixtures {
		listing, err := domainlistings.NewListing(domainlistings.CreateParams{
			ID:          domainlistings.ListingID(fx.ID),
			Seller:      domainlistings.SellerID(fx.SellerID),
			Title:       fx.Title,
			Description: fx.Description,
			Category:    fx.Category,
			PriceCents:  fx.PriceCents,
			ImageURL:    fx.ImageURL,
			CreatedAt:   now,
		})
		if err != nil {
			logger.Warn("skipping invalid listing fixture", "listing_id", fx.ID, "error", err)
			continue
		}
		if err := a.listings.Save(ctx, listing); err != nil {
			return err
		}
	}

	var profileFixtures []profileFixture
	if err := readFixtureFile(filepath.Join(dir, "profiles.json"), &profileFixtures); err != nil {
		return err
	}
	for _, fx := range profileFixtures {
		if err := a.directory.Save(ctx, &domainidentity.Profile{
			ID:          fx.ID,
			Name:        fx.Name,
			AvatarURL:   fx.AvatarURL,
			Affiliation: fx.Affiliation,
			Verified:    fx.Verified,
			Email:       fx.Email,
		}); err != nil {
			return err
		}
	}

	if len(listingFixtures) > 0 || len(profileFixtures) > 0 {
		logger.Info("fixtures loaded", "listings", len(listingFixtures), "profiles", len(profileFixtures))
	}
	return nil
}

func readFixtureFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
