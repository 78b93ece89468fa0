package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	authapi "github.com/Fillsogood/promptbook/cmd/internal/auth/api"
	"github.com/Fillsogood/promptbook/cmd/internal/auth/session"
	"github.com/Fillsogood/promptbook/cmd/security/password"
)

// Config contains all runtime configuration. Every key is read from a PROMPTBOOK_ environment
// variable or an optional .env file in the working directory.
type Config struct {
	HTTPAddr          string        `mapstructure:"PROMPTBOOK_HTTP_ADDR"`
	ReadHeaderTimeout time.Duration `mapstructure:"PROMPTBOOK_HTTP_READ_HEADER_TIMEOUT"`
	ReadTimeout       time.Duration `mapstructure:"PROMPTBOOK_HTTP_READ_TIMEOUT"`
	WriteTimeout      time.Duration `mapstructure:"PROMPTBOOK_HTTP_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `mapstructure:"PROMPTBOOK_HTTP_IDLE_TIMEOUT"`
	ShutdownTimeout   time.Duration `mapstructure:"PROMPTBOOK_HTTP_SHUTDOWN_TIMEOUT"`
	MaxHeaderBytes    int           `mapstructure:"PROMPTBOOK_HTTP_MAX_HEADER_BYTES"`
	MaxBodyBytes      int64         `mapstructure:"PROMPTBOOK_HTTP_MAX_BODY_BYTES"`
	TrustProxy        bool          `mapstructure:"PROMPTBOOK_TRUST_PROXY"`

	LogLevel  string `mapstructure:"PROMPTBOOK_LOG_LEVEL"`
	LogFormat string `mapstructure:"PROMPTBOOK_LOG_FORMAT"` // json | pretty
	LogColor  bool   `mapstructure:"PROMPTBOOK_LOG_COLOR"`

	// DevMode allows an ephemeral signing key and insecure cookies. Never enable in production.
	DevMode bool `mapstructure:"PROMPTBOOK_DEV"`

	DatabaseURL string `mapstructure:"PROMPTBOOK_DATABASE_URL"`
	DBSchema    string `mapstructure:"PROMPTBOOK_DB_SCHEMA"`
	DBMaxConns  int32  `mapstructure:"PROMPTBOOK_DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"PROMPTBOOK_DB_MIN_CONNS"`
	AutoMigrate bool   `mapstructure:"PROMPTBOOK_DB_AUTO_MIGRATE"`

	// If true, /readyz returns 503 unless the database is configured and reachable.
	ReadinessRequireDB bool `mapstructure:"PROMPTBOOK_READINESS_REQUIRE_DB"`

	CORSAllowedOrigins   []string `mapstructure:"PROMPTBOOK_CORS_ALLOWED_ORIGINS"`
	CORSAllowCredentials bool     `mapstructure:"PROMPTBOOK_CORS_ALLOW_CREDENTIALS"`
	CORSMaxAgeSeconds    int      `mapstructure:"PROMPTBOOK_CORS_MAX_AGE_SECONDS"`

	CookieSecure bool   `mapstructure:"PROMPTBOOK_COOKIE_SECURE"`
	CookieDomain string `mapstructure:"PROMPTBOOK_COOKIE_DOMAIN"`

	AuthSigner         string        `mapstructure:"PROMPTBOOK_AUTH_SIGNER"` // paseto | jwt
	AuthIssuer         string        `mapstructure:"PROMPTBOOK_AUTH_ISSUER"`
	PasetoSecretKeyHex string        `mapstructure:"PROMPTBOOK_PASETO_V4_SECRET_KEY_HEX"`
	JWTSecret          string        `mapstructure:"PROMPTBOOK_JWT_SECRET"`
	AccessTTL          time.Duration `mapstructure:"PROMPTBOOK_ACCESS_TTL"`
	RefreshTTL         time.Duration `mapstructure:"PROMPTBOOK_REFRESH_TTL"`
	ClockSkew          time.Duration `mapstructure:"PROMPTBOOK_CLOCK_SKEW"`
	RotateRefresh      bool          `mapstructure:"PROMPTBOOK_AUTH_ROTATE_REFRESH"`

	// Security policy: when RequireTokenHMAC is set, TokenHMACKey must hold at least 32 bytes.
	TokenHMACKey     string `mapstructure:"PROMPTBOOK_TOKEN_HMAC_KEY"`
	RequireTokenHMAC bool   `mapstructure:"PROMPTBOOK_REQUIRE_TOKEN_HMAC"`

	PasswordMinLength int    `mapstructure:"PROMPTBOOK_PASSWORD_MIN_LENGTH"`
	PasswordMaxLength int    `mapstructure:"PROMPTBOOK_PASSWORD_MAX_LENGTH"`
	Argon2MemoryKiB   uint32 `mapstructure:"PROMPTBOOK_ARGON2_MEMORY_KIB"`
	Argon2Iterations  uint32 `mapstructure:"PROMPTBOOK_ARGON2_ITERATIONS"`
	Argon2Parallelism uint8  `mapstructure:"PROMPTBOOK_ARGON2_PARALLELISM"`

	LoginAttemptsPerMinute float64 `mapstructure:"PROMPTBOOK_LOGIN_ATTEMPTS_PER_MINUTE"`
	LoginBurst             int     `mapstructure:"PROMPTBOOK_LOGIN_BURST"`
}

// LoadConfig reads .env (if present), then the environment, then validates.
// Environment variables override .env.
func LoadConfig() (Config, error) {
	return loadConfig(".env")
}

func loadConfig(envFile string) (Config, error) {
	v := viper.New()

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		_ = v.ReadInConfig() // a missing file is fine
	}
	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.CORSAllowedOrigins = splitList(cfg.CORSAllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	sd := session.DefaultConfig()
	pd := password.DefaultConfig()

	v.SetDefault("PROMPTBOOK_HTTP_ADDR", "0.0.0.0:8080")
	v.SetDefault("PROMPTBOOK_HTTP_READ_HEADER_TIMEOUT", 5*time.Second)
	v.SetDefault("PROMPTBOOK_HTTP_READ_TIMEOUT", 15*time.Second)
	v.SetDefault("PROMPTBOOK_HTTP_WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("PROMPTBOOK_HTTP_IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("PROMPTBOOK_HTTP_SHUTDOWN_TIMEOUT", 10*time.Second)
	v.SetDefault("PROMPTBOOK_HTTP_MAX_HEADER_BYTES", 1<<20)
	v.SetDefault("PROMPTBOOK_HTTP_MAX_BODY_BYTES", 1<<20)
	v.SetDefault("PROMPTBOOK_TRUST_PROXY", false)

	v.SetDefault("PROMPTBOOK_LOG_LEVEL", "info")
	v.SetDefault("PROMPTBOOK_LOG_FORMAT", "json")
	v.SetDefault("PROMPTBOOK_LOG_COLOR", true)
	v.SetDefault("PROMPTBOOK_DEV", false)

	v.SetDefault("PROMPTBOOK_DATABASE_URL", "")
	v.SetDefault("PROMPTBOOK_DB_SCHEMA", "public")
	v.SetDefault("PROMPTBOOK_DB_MAX_CONNS", 10)
	v.SetDefault("PROMPTBOOK_DB_MIN_CONNS", 0)
	v.SetDefault("PROMPTBOOK_DB_AUTO_MIGRATE", true)
	v.SetDefault("PROMPTBOOK_READINESS_REQUIRE_DB", false)

	v.SetDefault("PROMPTBOOK_CORS_ALLOWED_ORIGINS", []string{})
	v.SetDefault("PROMPTBOOK_CORS_ALLOW_CREDENTIALS", true)
	v.SetDefault("PROMPTBOOK_CORS_MAX_AGE_SECONDS", 600)

	v.SetDefault("PROMPTBOOK_COOKIE_SECURE", true)
	v.SetDefault("PROMPTBOOK_COOKIE_DOMAIN", "")

	v.SetDefault("PROMPTBOOK_AUTH_SIGNER", sd.Signer)
	v.SetDefault("PROMPTBOOK_AUTH_ISSUER", sd.Issuer)
	v.SetDefault("PROMPTBOOK_PASETO_V4_SECRET_KEY_HEX", "")
	v.SetDefault("PROMPTBOOK_JWT_SECRET", "")
	v.SetDefault("PROMPTBOOK_ACCESS_TTL", sd.AccessTTL)
	v.SetDefault("PROMPTBOOK_REFRESH_TTL", sd.RefreshTTL)
	v.SetDefault("PROMPTBOOK_CLOCK_SKEW", sd.ClockSkew)
	v.SetDefault("PROMPTBOOK_AUTH_ROTATE_REFRESH", false)

	v.SetDefault("PROMPTBOOK_TOKEN_HMAC_KEY", "")
	v.SetDefault("PROMPTBOOK_REQUIRE_TOKEN_HMAC", false)

	v.SetDefault("PROMPTBOOK_PASSWORD_MIN_LENGTH", pd.Policy.MinLength)
	v.SetDefault("PROMPTBOOK_PASSWORD_MAX_LENGTH", pd.Policy.MaxLength)
	v.SetDefault("PROMPTBOOK_ARGON2_MEMORY_KIB", pd.Params.MemoryKiB)
	v.SetDefault("PROMPTBOOK_ARGON2_ITERATIONS", pd.Params.Iterations)
	v.SetDefault("PROMPTBOOK_ARGON2_PARALLELISM", pd.Params.Parallelism)

	v.SetDefault("PROMPTBOOK_LOGIN_ATTEMPTS_PER_MINUTE", 10.0)
	v.SetDefault("PROMPTBOOK_LOGIN_BURST", 10)
}

// Validate checks values that would otherwise fail late or silently.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("config: PROMPTBOOK_HTTP_ADDR must be set")
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "pretty":
	default:
		return fmt.Errorf("config: PROMPTBOOK_LOG_FORMAT must be json or pretty, got %q", c.LogFormat)
	}
	switch c.AuthSigner {
	case session.SignerPaseto, session.SignerJWT:
	default:
		return fmt.Errorf("config: PROMPTBOOK_AUTH_SIGNER must be %q or %q", session.SignerPaseto, session.SignerJWT)
	}
	if c.DBMinConns > c.DBMaxConns {
		return errors.New("config: PROMPTBOOK_DB_MIN_CONNS exceeds PROMPTBOOK_DB_MAX_CONNS")
	}
	if c.LoginAttemptsPerMinute <= 0 || c.LoginBurst <= 0 {
		return errors.New("config: login rate and burst must be positive")
	}
	if !c.CookieSecure && !c.DevMode {
		return errors.New("config: PROMPTBOOK_COOKIE_SECURE=false requires PROMPTBOOK_DEV=true")
	}
	if err := c.PasswordConfig().Check(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// SessionConfig builds the token service configuration.
func (c Config) SessionConfig() session.Config {
	return session.Config{
		Issuer:               c.AuthIssuer,
		AccessTTL:            c.AccessTTL,
		RefreshTTL:           c.RefreshTTL,
		ClockSkew:            c.ClockSkew,
		Signer:               c.AuthSigner,
		PasetoV4SecretKeyHex: strings.TrimSpace(c.PasetoSecretKeyHex),
		JWTSecret:            c.JWTSecret,
		RotateRefresh:        c.RotateRefresh,
	}
}

// AuthAPIConfig builds the account handler configuration.
func (c Config) AuthAPIConfig() authapi.Config {
	cfg := authapi.DefaultConfig()
	cfg.TrustProxy = c.TrustProxy
	cfg.MaxBodyBytes = c.MaxBodyBytes
	cfg.CookieSecure = c.CookieSecure
	cfg.CookieDomain = c.CookieDomain
	cfg.LoginRate = rate.Limit(c.LoginAttemptsPerMinute / 60)
	cfg.LoginBurst = c.LoginBurst
	return cfg
}

// PasswordConfig builds the Argon2id and policy configuration.
func (c Config) PasswordConfig() password.Config {
	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = c.Argon2MemoryKiB
	cfg.Params.Iterations = c.Argon2Iterations
	cfg.Params.Parallelism = c.Argon2Parallelism
	cfg.Policy.MinLength = c.PasswordMinLength
	cfg.Policy.MaxLength = c.PasswordMaxLength
	return cfg
}

// splitList flattens comma-separated entries and drops blanks.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for part := range strings.SplitSeq(item, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
