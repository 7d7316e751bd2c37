package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the full application configuration surface.
type Config struct {
	Server  ServerConfig
	API     APIConfig
	Session SessionConfig
	Camera  CameraConfig
	Scan    ScanConfig
	Sync    SyncConfig
	Sheets  SheetsConfig
}

// ServerConfig holds local station HTTP options.
type ServerConfig struct {
	Port string
}

// APIConfig points at the inventory backend.
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

// SessionConfig identifies the signed in user.
type SessionConfig struct {
	UserID string
}

// CameraConfig holds the video capture constraints and acquisition policy.
type CameraConfig struct {
	FacingMode string
	Width      int
	Height     int
	RetryDelay time.Duration
	// FramesDir, when set, replays still images from a directory instead of a platform camera.
	FramesDir string
}

// ScanConfig paces the live detection loops, in frames per second.
type ScanConfig struct {
	NativeRate   float64
	FallbackRate float64
}

// SyncConfig holds the periodic inventory resync schedule.
type SyncConfig struct {
	CronSchedule string
}

// SheetsConfig contains the optional inventory export target.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
}

// Enabled reports whether the sheet export is configured.
func (c SheetsConfig) Enabled() bool {
	return c.CredentialsPath != "" && c.SpreadsheetID != ""
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Missing .env files are fine when the environment is set directly.
		_ = godotenv.Load()
	}

	apiTimeout, err := getenvDuration("BALSAM_API_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	retryDelay, err := getenvDuration("CAMERA_RETRY_DELAY", time.Second)
	if err != nil {
		return nil, err
	}
	width, err := getenvInt("CAMERA_WIDTH", 1280)
	if err != nil {
		return nil, err
	}
	height, err := getenvInt("CAMERA_HEIGHT", 720)
	if err != nil {
		return nil, err
	}
	nativeRate, err := getenvFloat("SCAN_NATIVE_RATE", 60)
	if err != nil {
		return nil, err
	}
	fallbackRate, err := getenvFloat("SCAN_FALLBACK_RATE", 5)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		API: APIConfig{
			BaseURL: getenvWithDefault("BALSAM_API_URL", "https://balsam-beta-backend.onrender.com"),
			Timeout: apiTimeout,
		},
		Session: SessionConfig{
			UserID: os.Getenv("BALSAM_USER_ID"),
		},
		Camera: CameraConfig{
			FacingMode: getenvWithDefault("CAMERA_FACING_MODE", "environment"),
			Width:      width,
			Height:     height,
			RetryDelay: retryDelay,
			FramesDir:  os.Getenv("CAMERA_FRAMES_DIR"),
		},
		Scan: ScanConfig{
			NativeRate:   nativeRate,
			FallbackRate: fallbackRate,
		},
		Sync: SyncConfig{
			CronSchedule: getenvWithDefault("SYNC_CRON_SCHEDULE", "*/15 * * * *"),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_DATABASE_ID"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	switch {
	case c.API.BaseURL == "":
		return errors.New("BALSAM_API_URL must not be empty")
	case c.API.Timeout <= 0:
		return errors.New("BALSAM_API_TIMEOUT must be positive")
	}

	if c.Session.UserID == "" {
		return errors.New("BALSAM_USER_ID must be provided")
	}

	switch {
	case c.Camera.FacingMode == "":
		return errors.New("CAMERA_FACING_MODE must not be empty")
	case c.Camera.Width <= 0 || c.Camera.Height <= 0:
		return errors.New("CAMERA_WIDTH and CAMERA_HEIGHT must be positive")
	case c.Camera.RetryDelay <= 0:
		return errors.New("CAMERA_RETRY_DELAY must be positive")
	}

	if c.Scan.NativeRate <= 0 || c.Scan.FallbackRate <= 0 {
		return errors.New("SCAN_NATIVE_RATE and SCAN_FALLBACK_RATE must be positive")
	}

	if c.Sync.CronSchedule == "" {
		return errors.New("SYNC_CRON_SCHEDULE must be provided")
	}

	if (c.Sheets.CredentialsPath == "") != (c.Sheets.SpreadsheetID == "") {
		return errors.New("GOOGLE_SHEETS_CREDENTIALS_PATH and GOOGLE_SHEET_DATABASE_ID must be set together")
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getenvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getenvFloat(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}
