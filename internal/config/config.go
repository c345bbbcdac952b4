package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/DanaFrie/POC-Joystie-sub000/internal/auth"
	"github.com/DanaFrie/POC-Joystie-sub000/internal/envconfig"
	"github.com/DanaFrie/POC-Joystie-sub000/internal/notify"
)

// Config encapsulates the runtime configuration for the challenge service.
type Config struct {
	Port          string
	GCPProjectID  string
	DataStore     DataStore
	Timezone      string
	Auth          AuthConfig
	Firestore     FirestoreConfig
	Storage       StorageConfig
	Notifications NotificationConfig
}

// DataStore enumerates supported persistence backends.
type DataStore string

const (
	// DataStoreMemory keeps challenges in-memory (useful for local development/testing).
	DataStoreMemory DataStore = "memory"
	// DataStoreFirestore stores challenges in Google Cloud Firestore.
	DataStoreFirestore DataStore = "firestore"
)

// AuthConfig stores authentication middleware setup.
type AuthConfig struct {
	Mode    auth.Mode
	JWKSURL string
	Issuer  string
}

// FirestoreConfig tailors Firestore client behavior.
type FirestoreConfig struct {
	EmulatorHost string
}

// StorageConfig contains Cloud Storage settings for screenshot files.
type StorageConfig struct {
	Bucket string
}

// NotificationConfig tunes the notification scheduler and email delivery.
type NotificationConfig struct {
	TickInterval        time.Duration
	Tolerance           time.Duration
	FirstUploadStrategy notify.FirstUploadStrategy
	EmailAPIURL         string
	EmailAPIKey         string
	EmailFrom           string
	UploadURLBase       string
	UploadURLKey        string
	UploadURLTTL        time.Duration
}

// Load reads environment variables into Config with validation.
func Load() (Config, error) {
	tickInterval, err := durationEnv("NOTIFY_TICK_INTERVAL", 5*time.Minute)
	if err != nil {
		return Config{}, err
	}
	tolerance, err := durationEnv("NOTIFY_WINDOW_TOLERANCE", 5*time.Minute)
	if err != nil {
		return Config{}, err
	}
	uploadTTL, err := durationEnv("UPLOAD_URL_TTL", 72*time.Hour)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:         envconfig.Get("PORT", "8080"),
		GCPProjectID: envconfig.Get("GCP_PROJECT_ID", ""),
		DataStore:    DataStore(strings.ToLower(envconfig.Get("DATASTORE", string(DataStoreMemory)))),
		Timezone:     envconfig.Get("CHALLENGE_TIMEZONE", "UTC"),
		Auth: AuthConfig{
			Mode:    auth.Mode(strings.ToLower(envconfig.Get("AUTH_MODE", string(auth.ModeNoop)))),
			JWKSURL: envconfig.Get("CLERK_JWKS_URL", ""),
			Issuer:  envconfig.Get("CLERK_ISSUER", ""),
		},
		Firestore: FirestoreConfig{
			EmulatorHost: envconfig.Get("FIRESTORE_EMULATOR_HOST", ""),
		},
		Storage: StorageConfig{
			Bucket: envconfig.Get("SCREENSHOT_STORAGE_BUCKET", ""),
		},
		Notifications: NotificationConfig{
			TickInterval:        tickInterval,
			Tolerance:           tolerance,
			FirstUploadStrategy: notify.FirstUploadStrategy(strings.ToLower(envconfig.Get("FIRST_UPLOAD_STRATEGY", string(notify.FirstUploadFlagGated)))),
			EmailAPIURL:         envconfig.Get("EMAIL_API_URL", ""),
			EmailAPIKey:         envconfig.Get("EMAIL_API_KEY", ""),
			EmailFrom:           envconfig.Get("EMAIL_FROM", "joystie@updates.joystie.com"),
			UploadURLBase:       envconfig.Get("UPLOAD_URL_BASE", ""),
			UploadURLKey:        envconfig.Get("UPLOAD_URL_SIGNING_KEY", ""),
			UploadURLTTL:        uploadTTL,
		},
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.Port) == "" {
		return fmt.Errorf("port must be specified")
	}

	switch cfg.DataStore {
	case DataStoreMemory:
		// no-op
	case DataStoreFirestore:
		if cfg.GCPProjectID == "" {
			return fmt.Errorf("gcp project id required when datastore=firestore")
		}
	default:
		return fmt.Errorf("unsupported datastore: %s", cfg.DataStore)
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("invalid CHALLENGE_TIMEZONE %q: %w", cfg.Timezone, err)
	}

	switch cfg.Auth.Mode {
	case auth.ModeClerk:
		if cfg.Auth.JWKSURL == "" {
			return fmt.Errorf("CLERK_JWKS_URL is required when AUTH_MODE=clerk")
		}
	case auth.ModeNoop:
		// no-op
	default:
		return fmt.Errorf("unsupported auth mode: %s", cfg.Auth.Mode)
	}

	switch cfg.Notifications.FirstUploadStrategy {
	case notify.FirstUploadFlagGated, notify.FirstUploadPositional:
		// no-op
	default:
		return fmt.Errorf("unsupported first upload strategy: %s", cfg.Notifications.FirstUploadStrategy)
	}

	if cfg.Notifications.EmailAPIURL != "" && cfg.Notifications.EmailAPIKey == "" {
		return fmt.Errorf("EMAIL_API_KEY is required when EMAIL_API_URL is set")
	}
	if cfg.Notifications.UploadURLBase != "" && cfg.Notifications.UploadURLKey == "" {
		return fmt.Errorf("UPLOAD_URL_SIGNING_KEY is required when UPLOAD_URL_BASE is set")
	}

	return nil
}

func durationEnv(name string, fallback time.Duration) (time.Duration, error) {
	raw := envconfig.Get(name, "")
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", name)
	}
	return d, nil
}
