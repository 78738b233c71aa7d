package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	gcsstorage "cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"google.golang.org/api/option"

	"github.com/medisphere/labrisk/internal/archive"
	"github.com/medisphere/labrisk/internal/config"
	"github.com/medisphere/labrisk/internal/labanalysis"
	"github.com/medisphere/labrisk/internal/metrics"
	"github.com/medisphere/labrisk/internal/notification"
	"github.com/medisphere/labrisk/internal/search"
	"github.com/medisphere/labrisk/internal/service"
	"github.com/medisphere/labrisk/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx := context.Background()

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	engine := labanalysis.NewService(ctx, cfg.Analysis).WithObserver(m)
	log.Printf("[lab-analysis] provider: %s", engine.Provider())

	storeImpl, closeStore := openStore(ctx, cfg, clientOpts)
	defer closeStore()

	svc := service.NewAnalysisService(engine, storeImpl)

	if cfg.ArchiveBucket != "" {
		gcsClient, err := gcsstorage.NewClient(ctx, clientOpts...)
		if err != nil {
			log.Fatalf("Failed to create Cloud Storage client: %v", err)
		}
		defer gcsClient.Close()
		svc.SetArchive(archive.NewGCSArchive(gcsClient, cfg.ArchiveBucket))
		log.Printf("[archive] storing documents in gs://%s", cfg.ArchiveBucket)
	} else {
		svc.SetArchive(archive.NewMemoryArchive())
		log.Printf("[archive] ARCHIVE_BUCKET not set, keeping up to %d MB of documents in memory (dev only)", archive.DefaultMemoryLimit>>20)
	}

	if cfg.SearchEnabled() {
		algolia, err := search.NewAlgoliaClient(search.Config{
			AppID:     cfg.AlgoliaAppID,
			APIKey:    cfg.AlgoliaAPIKey,
			IndexName: cfg.AlgoliaIndexName,
		})
		if err != nil {
			log.Fatalf("Failed to create Algolia client: %v", err)
		}
		svc.SetSearchIndex(algolia)
		log.Printf("[search] indexing into %s", cfg.AlgoliaIndexName)
	}

	var push *notification.PushSender
	if cfg.FCMEnabled {
		app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, clientOpts...)
		if err != nil {
			log.Fatalf("Failed to initialize Firebase app: %v", err)
		}
		fcm, err := app.Messaging(ctx)
		if err != nil {
			log.Fatalf("Failed to create FCM client: %v", err)
		}
		push = notification.NewPushSender(fcm)
		log.Printf("[notify] push alerts enabled from %s", cfg.AlertMinLevel)
	}
	svc.SetNotifier(notification.NewDispatcher(notification.LogSender{}, push, cfg.AlertMinLevel))

	mux := http.NewServeMux()
	svc.Register(mux)
	mux.Handle("GET /metrics", m.Handler())

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"User-Agent",
		},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           h2c.NewHandler(c.Handler(m.Middleware(mux)), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	waitForShutdown(srv)
}

// openStore returns the configured store and a function releasing its connections.
func openStore(ctx context.Context, cfg *config.Config, opts []option.ClientOption) (store.Store, func()) {
	switch cfg.StoreBackend {
	case config.StoreFirestore:
		client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
		if err != nil {
			log.Fatalf("Failed to create Firestore client: %v", err)
		}
		log.Printf("[store] using Firestore in project %s", cfg.ProjectID)
		return store.NewFirestoreStore(client), func() { client.Close() }

	case config.StorePostgres:
		pool, err := store.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			log.Fatalf("Failed to prepare Postgres schema: %v", err)
		}
		log.Println("[store] using Postgres")
		return pg, pool.Close

	default:
		log.Println("[store] using in-memory store, analyses are lost on restart")
		return store.NewMemoryStore(), func() {}
	}
}

func waitForShutdown(srv *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Println("Shutting down server")
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}
}
