package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// App holds core runtime configuration shared across services.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"exam-paper-studio"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`
	LogLevel                string        `env:"LOG_LEVEL" envDefault:"info"`

	Backend   Backend
	Redis     Redis
	Session   Session
	Images    Images
	Export    Export
	Keepalive Keepalive
	CORS      CORS
}

// Backend points at the question-bank service.
type Backend struct {
	URL string `env:"BACKEND_URL,notEmpty"`
	// Timeout of zero leaves requests bounded only by the client's request.
	Timeout        time.Duration `env:"BACKEND_TIMEOUT" envDefault:"0s"`
	MaxUploadBytes int64         `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
}

// Redis holds the session store connection. Sessions stay in memory when Addr is empty.
type Redis struct {
	Addr     string `env:"REDIS_ADDR" envDefault:""`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
}

// Session governs the lifetime of per-browser state.
type Session struct {
	TTL          time.Duration `env:"SESSION_TTL" envDefault:"12h"`
	SecureCookie bool          `env:"SESSION_SECURE_COOKIE" envDefault:"false"`
}

// Images configures question image resolution.
type Images struct {
	Concurrency int `env:"IMAGE_CONCURRENCY" envDefault:"4"`
}

// Export configures the rendered documents.
type Export struct {
	// LogoPath is an image file drawn in the paper header. Empty means no logo.
	LogoPath   string  `env:"LOGO_PATH" envDefault:""`
	FontFamily string  `env:"PDF_FONT_FAMILY" envDefault:"Helvetica"`
	FontSize   float64 `env:"PDF_FONT_SIZE" envDefault:"10"`
	MarginMM   float64 `env:"PDF_MARGIN_MM" envDefault:"9"`
}

// Keepalive schedules housekeeping jobs. Specs include a seconds field.
type Keepalive struct {
	PingSchedule  string        `env:"KEEPALIVE_PING_SCHEDULE" envDefault:"0 */10 * * * *"`
	SweepSchedule string        `env:"SESSION_SWEEP_SCHEDULE" envDefault:"0 */5 * * * *"`
	PingTimeout   time.Duration `env:"KEEPALIVE_PING_TIMEOUT" envDefault:"60s"`
}

// CORS holds Cross-Origin Resource Sharing configuration.
type CORS struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:8080,http://127.0.0.1:8080"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS" envSeparator:"," envDefault:"GET,POST,PUT,PATCH,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS" envSeparator:"," envDefault:"Content-Type"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE" envDefault:"3600"`
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: true}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Images.Concurrency < 1 {
		return nil, fmt.Errorf("parse config: IMAGE_CONCURRENCY must be at least 1")
	}
	return cfg, nil
}
