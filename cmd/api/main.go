package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nearbuy/backend/internal/chat"
	"github.com/nearbuy/backend/internal/config"
	httpdelivery "github.com/nearbuy/backend/internal/delivery/http"
	"github.com/nearbuy/backend/internal/entity"
	"github.com/nearbuy/backend/internal/location"
	"github.com/nearbuy/backend/internal/logging"
	"github.com/nearbuy/backend/internal/messaging"
	"github.com/nearbuy/backend/internal/messaging/gochannel"
	"github.com/nearbuy/backend/internal/messaging/kafka"
	"github.com/nearbuy/backend/internal/notify"
	"github.com/nearbuy/backend/internal/repository"
	"github.com/nearbuy/backend/internal/repository/memory"
	"github.com/nearbuy/backend/internal/repository/postgres"
	"github.com/nearbuy/backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("invalid configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)

	// --- Storage ---
	var (
		items     repository.ItemStore
		requests  repository.RequestStore
		chats     repository.ChatStore
		locations repository.LocationStore
	)
	switch cfg.StoreBackend {
	case config.StorePostgres:
		db, err := postgres.InitDB(cfg.DatabaseURL)
		if err != nil {
			logger.Error("Failed to init database", "err", err)
			os.Exit(1)
		}
		defer db.Close()

		items = postgres.NewItemStore(db)
		requests = postgres.NewRequestStore(db)
		chats = postgres.NewChatStore(db)
		locations = postgres.NewLocationStore(db)
	case config.StoreMemory:
		items = memory.NewItemStore()
		requests = memory.NewRequestStore()
		chats = memory.NewChatStore()
		locations = memory.NewLocationStore()
	}

	if err := items.Seed(context.Background(), seedItems()); err != nil {
		logger.Error("Failed to seed items", "err", err)
		os.Exit(1)
	}

	// --- Messaging ---
	var (
		publisher  messaging.Publisher
		subscriber messaging.Subscriber
	)
	switch cfg.BrokerBackend {
	case config.BrokerKafka:
		publisher, subscriber = kafka.NewKafkaBroker(cfg.KafkaBrokers)
	case config.BrokerChannel:
		var closeBroker func() error
		publisher, subscriber, closeBroker = gochannel.NewChannelBroker(logger)
		defer closeBroker()
	}

	// --- Services ---
	device := location.NewReportedLocator()
	resolver := location.NewResolver(locations, device, logger)
	resolver.WithDeviceTimeout(cfg.DeviceTimeout)

	dispatcher := notify.NewDispatcher(publisher, logger)
	provisioner := chat.NewProvisioner(chats)

	requestSvc := service.NewRequestService(requests, items, provisioner, dispatcher, logger)
	catalogSvc := service.NewCatalogService(items, resolver)
	catalogSvc.WithDefaultRadius(cfg.DefaultRadiusKm)

	// --- HTTP API ---
	handler := httpdelivery.NewHandler(catalogSvc, requestSvc, resolver, device)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpdelivery.EnableCORS(mux),
	}

	// --- Start everything ---
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Consumer: notifications → delivery log. A push gateway would hang off
	// this same subscription.
	go subscriber.Consume(ctx, notify.Topic, "nearbuy-notifications", func(ctx context.Context, payload []byte) error {
		var event entity.NotificationEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			logger.Error("Failed to unmarshal notification", "err", err)
			return nil
		}
		logger.Info("Notification delivered",
			"kind", event.EventType(),
			"target", event.TargetUserID,
			"message", event.Message,
		)
		return nil
	})

	go func() {
		logger.Info("🚀 HTTP server starting", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "err", err)
			cancel()
		}
	}()

	logger.Info("🔄 Notification consumer started", "broker", cfg.BrokerBackend)

	<-ctx.Done()
	logger.Info("Shutting down...")
	httpServer.Shutdown(context.Background())
}

// seedItems provides demo inventory around the default city so a fresh
// instance has something to show. Seeding is skipped when items exist.
func seedItems() []entity.Item {
	coord := func(lat, lng float64) *entity.Coordinate {
		return &entity.Coordinate{Latitude: lat, Longitude: lng}
	}
	now := time.Now()
	return []entity.Item{
		{ID: "seed-1", SellerID: "seed-seller-1", Title: "Vintage Camera", Category: "Electronics", Price: 3500, Coordinate: coord(28.6139, 77.2090), PostedAt: now.Add(-3 * time.Hour)},
		{ID: "seed-2", SellerID: "seed-seller-1", Title: "Study Desk", Category: "Furniture", Price: 1200, Coordinate: coord(28.6200, 77.2150), PostedAt: now.Add(-2 * time.Hour)},
		{ID: "seed-3", SellerID: "seed-seller-2", Title: "Mountain Bike", Category: "Sports", Price: 8000, Coordinate: coord(28.5355, 77.3910), PostedAt: now.Add(-time.Hour)},
		{ID: "seed-4", SellerID: "seed-seller-2", Title: "Guitar", Category: "Music", Price: 4500, Coordinate: coord(28.7041, 77.1025), PostedAt: now},
	}
}
