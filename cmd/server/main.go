package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/go-chi/chi/v5"

	"github.com/DanaFrie/POC-Joystie-sub000/internal/auth"
	"github.com/DanaFrie/POC-Joystie-sub000/internal/challenge"
	"github.com/DanaFrie/POC-Joystie-sub000/internal/config"
	"github.com/DanaFrie/POC-Joystie-sub000/internal/httpapi"
	"github.com/DanaFrie/POC-Joystie-sub000/internal/logging"
	"github.com/DanaFrie/POC-Joystie-sub000/internal/notify"
	"github.com/DanaFrie/POC-Joystie-sub000/internal/scheduler"
	"github.com/DanaFrie/POC-Joystie-sub000/internal/server"
	"github.com/DanaFrie/POC-Joystie-sub000/internal/storage"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Errorf("config error: %w", err))
	}

	logger := logging.NewLogger("challenge-service")

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		panic(fmt.Errorf("timezone error: %w", err))
	}

	repo, cleanup, err := newRepository(ctx, cfg)
	if err != nil {
		panic(fmt.Errorf("repository init error: %w", err))
	}
	defer cleanup()

	challengeService, err := challenge.NewService(repo, challenge.NewSystemClock(), challenge.NewUUIDGenerator(), loc, logger)
	if err != nil {
		panic(fmt.Errorf("challenge service init error: %w", err))
	}

	var storageService *storage.Service
	if cfg.Storage.Bucket != "" {
		storageService, err = storage.NewService(ctx, cfg.Storage.Bucket)
		if err != nil {
			panic(fmt.Errorf("storage init error: %w", err))
		}
		defer storageService.Close()
	}

	var urls notify.UploadURLGenerator
	if cfg.Notifications.UploadURLBase != "" {
		urls, err = notify.NewJWTURLSigner(cfg.Notifications.UploadURLBase, []byte(cfg.Notifications.UploadURLKey), cfg.Notifications.UploadURLTTL)
		if err != nil {
			panic(fmt.Errorf("upload url signer error: %w", err))
		}
	}

	mailer := notify.NewLogMailer(logger)
	if cfg.Notifications.EmailAPIURL != "" {
		mailer = notify.NewAPIMailer(cfg.Notifications.EmailAPIURL, cfg.Notifications.EmailAPIKey, cfg.Notifications.EmailFrom)
	}

	dispatcher := notify.NewDispatcher(repo, mailer, urls, logger, notify.Config{
		Tolerance: cfg.Notifications.Tolerance,
		Strategy:  cfg.Notifications.FirstUploadStrategy,
		Location:  loc,
	})
	challengeService.SetUploadEventHandler(dispatcher)

	driver := scheduler.NewDriver(func(ctx context.Context, now time.Time) error {
		_, err := dispatcher.ProcessTick(ctx, now)
		return err
	}, logger, cfg.Notifications.TickInterval)
	go driver.Run(ctx)

	verifier, err := auth.NewVerifier(auth.Config{
		Mode:    cfg.Auth.Mode,
		JWKSURL: cfg.Auth.JWKSURL,
		Issuer:  cfg.Auth.Issuer,
	})
	if err != nil {
		panic(fmt.Errorf("auth verifier error: %w", err))
	}

	router := server.NewRouter("challenge-service", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(verifier))
			httpapi.RegisterRoutes(r, challengeService, storageService, urls, dispatcher)
		})
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if err := server.Run(ctx, srv, logger); err != nil && !errors.Is(err, http.ErrServerClosed) {
		panic(err)
	}
}

func newRepository(ctx context.Context, cfg config.Config) (challenge.Repository, func(), error) {
	switch cfg.DataStore {
	case config.DataStoreFirestore:
		if cfg.Firestore.EmulatorHost != "" {
			if err := os.Setenv("FIRESTORE_EMULATOR_HOST", cfg.Firestore.EmulatorHost); err != nil {
				return nil, nil, fmt.Errorf("set FIRESTORE_EMULATOR_HOST: %w", err)
			}
		}

		client, err := firestore.NewClient(ctx, cfg.GCPProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("firestore client: %w", err)
		}

		repo := challenge.NewFirestoreRepository(client)
		cleanup := func() {
			_ = client.Close()
		}
		return repo, cleanup, nil
	default:
		repo := challenge.NewMemoryRepository()
		return repo, func() {}, nil
	}
}
