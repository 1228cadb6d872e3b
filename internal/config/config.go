package config

import (
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreSheets   = "sheets"
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	UploadsDisk = "disk"
	UploadsS3   = "s3"
)

var (
	ErrMissingStoreCredentials = errors.New("missing store credentials")
	ErrUnknownBackend          = errors.New("unknown backend")
	ErrMissingBucket           = errors.New("missing s3 bucket")
)

type Config struct {
	Port      int
	SecretKey string

	CampfireToken   string
	CampfireBaseURL string

	StoreBackend       string
	ServiceAccountJSON string
	SpreadsheetID      string
	SpreadsheetName    string
	DatabaseURL        string

	UploadBackend string
	UploadDir     string
	S3Bucket      string
	S3Region      string
	S3Endpoint    string
	S3AccessKey   string
	S3SecretKey   string

	TesseractPath string

	SessionTTLHours     int
	SessionSweepMinutes int
	SecureCookies       bool
}

// Load reads the process environment. A .env file in the working directory
// is applied first; variables already set in the environment win.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port:                5000,
		SecretKey:           firstEnv("FLASK_SECRET_KEY", "GATEKEEPER_SECRET_KEY"),
		CampfireToken:       os.Getenv("CAMPFIRE_TOKEN"),
		CampfireBaseURL:     os.Getenv("CAMPFIRE_BASE_URL"),
		StoreBackend:        strings.ToLower(strings.TrimSpace(os.Getenv("GATEKEEPER_STORE"))),
		ServiceAccountJSON:  os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"),
		SpreadsheetID:       os.Getenv("GATEKEEPER_SPREADSHEET_ID"),
		SpreadsheetName:     os.Getenv("GATEKEEPER_SPREADSHEET_NAME"),
		DatabaseURL:         firstEnv("GATEKEEPER_DATABASE_URL", "DATABASE_URL"),
		UploadBackend:       strings.ToLower(strings.TrimSpace(os.Getenv("GATEKEEPER_UPLOADS"))),
		UploadDir:           os.Getenv("GATEKEEPER_UPLOAD_DIR"),
		S3Bucket:            os.Getenv("GATEKEEPER_S3_BUCKET"),
		S3Region:            os.Getenv("GATEKEEPER_S3_REGION"),
		S3Endpoint:          os.Getenv("GATEKEEPER_S3_ENDPOINT"),
		S3AccessKey:         os.Getenv("GATEKEEPER_S3_ACCESS_KEY"),
		S3SecretKey:         os.Getenv("GATEKEEPER_S3_SECRET_KEY"),
		TesseractPath:       os.Getenv("GATEKEEPER_TESSERACT"),
		SessionTTLHours:     24,
		SessionSweepMinutes: 10,
	}

	if cfg.SecretKey == "" {
		cfg.SecretKey = "dev_secret"
	}
	if cfg.CampfireBaseURL == "" {
		cfg.CampfireBaseURL = "https://campfire-api.nianticlabs.com/v1"
	}
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = StoreSheets
	}
	if cfg.SpreadsheetName == "" {
		cfg.SpreadsheetName = "POGO Passport Sign-Ins"
	}
	if cfg.UploadBackend == "" {
		cfg.UploadBackend = UploadsDisk
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "uploads"
	}
	if cfg.S3Region == "" {
		cfg.S3Region = "us-east-1"
	}
	if cfg.TesseractPath == "" {
		cfg.TesseractPath = "tesseract"
	}

	if v := firstEnv("GATEKEEPER_PORT", "PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 && p < 65536 {
			cfg.Port = p
		}
	}

	if v := os.Getenv("GATEKEEPER_SESSION_TTL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.SessionTTLHours = n
		}
	}

	if v := os.Getenv("GATEKEEPER_SESSION_SWEEP_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SessionSweepMinutes = n
		}
	}

	if v := os.Getenv("GATEKEEPER_SECURE_COOKIES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.SecureCookies = b
		}
	}

	return cfg
}

// Validate reports configuration that must abort startup.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case StoreSheets:
		if strings.TrimSpace(c.ServiceAccountJSON) == "" {
			return errors.Join(ErrMissingStoreCredentials, errors.New("GOOGLE_SERVICE_ACCOUNT_JSON not set"))
		}
		if !json.Valid([]byte(c.ServiceAccountJSON)) {
			return errors.Join(ErrMissingStoreCredentials, errors.New("GOOGLE_SERVICE_ACCOUNT_JSON is not valid JSON"))
		}
	case StorePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return errors.Join(ErrMissingStoreCredentials, errors.New("DATABASE_URL not set"))
		}
	case StoreMemory:
	default:
		return errors.Join(ErrUnknownBackend, errors.New("store: "+c.StoreBackend))
	}

	switch c.UploadBackend {
	case UploadsDisk:
	case UploadsS3:
		if strings.TrimSpace(c.S3Bucket) == "" {
			return ErrMissingBucket
		}
	default:
		return errors.Join(ErrUnknownBackend, errors.New("uploads: "+c.UploadBackend))
	}

	return nil
}

func (c Config) ListenAddr() string {
	return ":" + strconv.Itoa(c.Port)
}

func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

func (c Config) SessionSweepInterval() time.Duration {
	return time.Duration(c.SessionSweepMinutes) * time.Minute
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
