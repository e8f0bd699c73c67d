// Package config loads configuration for the mango3 reference application
// and for the E2E harness. Both read environment variables; the application
// additionally takes CLI flags that control which services are mocked
// (--no-email, --no-s3, --test).
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/kuitang/mango3-e2e/internal/ratelimit"
	"github.com/kuitang/mango3-e2e/internal/topology"
)

const (
	defaultS3Region = "auto"
)

// Config holds the reference application configuration.
type Config struct {
	// Server settings
	ListenAddr string
	Domain     string // BASIC_DOMAIN, e.g. mango3.local
	Secure     bool   // BASIC_SECURE, https origins
	PublicPort int    // BASIC_PORT, port in generated absolute URLs (0 = the bound listener port)

	// OverlayDelay postpones the loading overlay's is-done class (OVERLAY_DELAY)
	OverlayDelay time.Duration

	// Storage
	DatabasePath    string        // SQLite file, ":memory:" in test mode
	DatabaseKey     string        // optional SQLCipher key, 64 hex chars
	SessionDuration time.Duration // How long sessions remain valid

	// Seeded administrator
	AdminUsername string
	AdminEmail    string
	AdminPassword string

	// Login and registration throttling
	LoginRateLimit ratelimit.Config

	// Mock service flags (controlled by CLI flags, not env vars)
	NoEmail  bool // --no-email
	NoS3     bool // --no-s3
	TestMode bool // --test

	// Resend Email
	ResendAPIKey    string
	ResendFromEmail string

	// S3 storage for studio uploads
	AWSEndpointS3      string // AWS_ENDPOINT_URL_S3
	AWSRegion          string // AWS_REGION
	AWSAccessKeyID     string // AWS_ACCESS_KEY_ID
	AWSSecretAccessKey string // AWS_SECRET_ACCESS_KEY
	AWSBucketName      string // BUCKET_NAME
	AWSPublicURL       string // S3_PUBLIC_URL
}

// Flags are the CLI flags of the serve command.
type Flags struct {
	NoEmail  bool
	NoS3     bool
	TestMode bool
	Addr     string
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// ParseFlags parses --no-email, --no-s3, --test and --addr from args.
func ParseFlags(args []string, output io.Writer) (Flags, error) {
	var f Flags
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.BoolVar(&f.NoEmail, "no-email", false, "Use mock email service (logs emails)")
	fs.BoolVar(&f.NoS3, "no-s3", false, "Use in-memory S3 storage")
	fs.BoolVar(&f.TestMode, "test", false, "Shorthand for --no-email --no-s3 with an in-memory database")
	fs.StringVar(&f.Addr, "addr", "", "Listen address (default :8080, overrides LISTEN_ADDR env var)")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	if f.TestMode {
		f.NoEmail = true
		f.NoS3 = true
	}
	return f, nil
}

// LoadConfig loads the application configuration from environment variables
// and flag values.
func LoadConfig(flags Flags) (*Config, error) {
	cfg := &Config{
		NoEmail:  flags.NoEmail,
		NoS3:     flags.NoS3,
		TestMode: flags.TestMode,
	}

	// Server settings
	cfg.ListenAddr = getEnvOrDefault("LISTEN_ADDR", ":8080")
	if flags.Addr != "" {
		cfg.ListenAddr = flags.Addr
	}
	cfg.Domain = strings.ToLower(getEnvOrDefault("BASIC_DOMAIN", topology.DefaultDomain))
	cfg.Secure = parseBoolOrDefault("BASIC_SECURE", false)
	cfg.PublicPort = parseIntOrDefault("BASIC_PORT", 0)
	cfg.OverlayDelay = parseDurationOrDefault("OVERLAY_DELAY", 0)

	// Storage
	defaultDB := "./data/mango3.db"
	if cfg.TestMode {
		defaultDB = ":memory:"
	}
	cfg.DatabasePath = getEnvOrDefault("DATABASE_PATH", defaultDB)
	cfg.DatabaseKey = getEnvOrDefault("DATABASE_KEY", "")
	cfg.SessionDuration = parseDurationOrDefault("SESSION_DURATION", 24*time.Hour)

	// Seeded administrator
	cfg.AdminUsername = getEnvOrDefault("ADMIN_USERNAME", "admin")
	cfg.AdminEmail = getEnvOrDefault("ADMIN_EMAIL", "admin@"+cfg.Domain)
	cfg.AdminPassword = os.Getenv("ADMIN_PASSWORD")
	if cfg.AdminPassword == "" && cfg.TestMode {
		cfg.AdminPassword = "admin-password"
	}

	// Throttling
	cfg.LoginRateLimit = ratelimit.Config{
		RPS:             parseFloat64OrDefault("RATE_LIMIT_LOGIN_RPS", ratelimit.DefaultConfig.RPS),
		Burst:           parseIntOrDefault("RATE_LIMIT_LOGIN_BURST", ratelimit.DefaultConfig.Burst),
		CleanupInterval: parseDurationOrDefault("RATE_LIMIT_CLEANUP_INTERVAL", ratelimit.DefaultConfig.CleanupInterval),
	}

	// Resend Email
	cfg.ResendAPIKey = os.Getenv("RESEND_API_KEY")
	cfg.ResendFromEmail = getEnvOrDefault("RESEND_FROM_EMAIL", "noreply@"+cfg.Domain)

	// S3 storage
	cfg.AWSEndpointS3 = strings.TrimSpace(os.Getenv("AWS_ENDPOINT_URL_S3"))
	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", defaultS3Region)
	cfg.AWSAccessKeyID = strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
	cfg.AWSSecretAccessKey = strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY"))
	cfg.AWSBucketName = strings.TrimSpace(os.Getenv("BUCKET_NAME"))
	cfg.AWSPublicURL = strings.TrimSpace(os.Getenv("S3_PUBLIC_URL"))
	if cfg.AWSPublicURL == "" && cfg.AWSEndpointS3 != "" && cfg.AWSBucketName != "" {
		cfg.AWSPublicURL = strings.TrimRight(cfg.AWSEndpointS3, "/") + "/" + cfg.AWSBucketName
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present and valid.
// When mocks are NOT active for a service, its secrets are required.
func (c *Config) Validate() error {
	var problems []string
	check := func(name string, value any, rules ...validation.Rule) {
		if err := validation.Validate(value, rules...); err != nil {
			problems = append(problems, fmt.Sprintf("%s %s", name, err.Error()))
		}
	}

	check("BASIC_DOMAIN", c.Domain, validation.Required, is.Host)
	check("BASIC_PORT", c.PublicPort, validation.Min(0), validation.Max(65535))
	check("OVERLAY_DELAY", c.OverlayDelay, validation.Min(time.Duration(0)), validation.Max(10*time.Second))
	check("DATABASE_PATH", c.DatabasePath, validation.Required)
	check("DATABASE_KEY", c.DatabaseKey, validation.Length(64, 64), is.Hexadecimal)
	check("SESSION_DURATION", c.SessionDuration, validation.Min(time.Minute))
	check("ADMIN_USERNAME", c.AdminUsername, validation.Required, validation.Length(3, 32))
	check("ADMIN_EMAIL", c.AdminEmail, validation.Required, is.EmailFormat)
	if c.AdminPassword == "" {
		problems = append(problems, "ADMIN_PASSWORD is required (set env var or use --test)")
	} else {
		check("ADMIN_PASSWORD", c.AdminPassword, validation.Length(8, 72))
	}

	if !c.NoEmail && c.ResendAPIKey == "" {
		problems = append(problems, "RESEND_API_KEY is required (set env var or use --no-email)")
	}

	if !c.NoS3 {
		if c.AWSEndpointS3 == "" {
			problems = append(problems, "AWS_ENDPOINT_URL_S3 is required (set env var or use --no-s3)")
		} else {
			check("AWS_ENDPOINT_URL_S3", c.AWSEndpointS3, is.URL)
		}
		if c.AWSBucketName == "" {
			problems = append(problems, "BUCKET_NAME is required (set env var or use --no-s3)")
		}
		if c.AWSAccessKeyID == "" {
			problems = append(problems, "AWS_ACCESS_KEY_ID is required (set env var or use --no-s3)")
		}
		if c.AWSSecretAccessKey == "" {
			problems = append(problems, "AWS_SECRET_ACCESS_KEY is required (set env var or use --no-s3)")
		}
	}

	if c.LoginRateLimit.RPS <= 0 {
		problems = append(problems, "RATE_LIMIT_LOGIN_RPS must be positive")
	}
	if c.LoginRateLimit.Burst <= 0 {
		problems = append(problems, "RATE_LIMIT_LOGIN_BURST must be positive")
	}

	if len(problems) > 0 {
		return &ValidationError{Errors: problems}
	}
	return nil
}

// Topology returns the origins the application serves.
func (c *Config) Topology() *topology.Topology {
	return topology.New(c.Domain, c.Secure, c.PublicPort)
}

// RequireSecureCookies reports whether session cookies carry the Secure flag.
func (c *Config) RequireSecureCookies() bool {
	return c.Secure
}

// PrintStartupSummary prints a human-readable summary of the configuration.
func (c *Config) PrintStartupSummary(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "mango3 reference application starting...")

	if c.NoEmail {
		fmt.Fprintln(w, "  Email:    Mock (--no-email)")
	} else {
		fmt.Fprintf(w, "  Email:    Resend (real, from: %s)\n", c.ResendFromEmail)
	}
	if c.NoS3 {
		fmt.Fprintln(w, "  Storage:  Mock S3 (--no-s3)")
	} else {
		fmt.Fprintf(w, "  Storage:  S3 (real, endpoint: %s)\n", c.AWSEndpointS3)
	}
	fmt.Fprintf(w, "  Database: %s\n", c.DatabasePath)
	fmt.Fprintf(w, "  Listen:   %s\n", c.ListenAddr)
	fmt.Fprintf(w, "  Origins:\n")
	for _, line := range strings.Split(strings.TrimRight(c.Topology().Table(), "\n"), "\n") {
		fmt.Fprintf(w, "    %s\n", line)
	}
	fmt.Fprintln(w, "")
}

// MustLoadConfig loads configuration and panics if validation fails.
func MustLoadConfig(flags Flags) *Config {
	cfg, err := LoadConfig(flags)
	if err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			panic(fmt.Sprintf("Configuration validation failed:\n  - %s", strings.Join(validationErr.Errors, "\n  - ")))
		}
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}
	return cfg
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseFloat64OrDefault(key string, defaultValue float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
