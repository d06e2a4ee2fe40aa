package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dwarvesf/fusion-bridge/internal/types/environments"
)

type AppConfig struct {
	Environment environments.Environment
	ApiServer   ApiServerConfig
	Database    DBConnection
	Redis       RedisConfig
	Registry    RegistryConfig
	Chains      ChainsConfig
	Jobs        JobsConfig
	Webhook     WebhookConfig
}

type ApiServerConfig struct {
	Addr           string
	AllowedOrigins string
	// IdempotencyTTL is how long a replayable write response is kept in redis.
	IdempotencyTTL time.Duration
}

type DBConnection struct {
	// Driver is either "postgres" or "sqlite".
	Driver string

	Host string
	Port string
	User string
	Name string
	Pass string

	SSLMode string

	SQLitePath string

	// AutoMigrate runs gorm AutoMigrate on boot instead of cmd/migrate.
	AutoMigrate bool
}

type RedisConfig struct {
	// URL is optional; when empty order locks are held in-process.
	URL      string
	Password string
	LockTTL  time.Duration
}

type RegistryConfig struct {
	Owner     string
	Resolvers []string
}

// ChainFamilyConfig carries the financial parameters captured by a chain at
// registration. They never change for an active chain.
type ChainFamilyConfig struct {
	SafetyDepositBps   uint16
	SafetyDepositFloor string
	DefaultTimelock    time.Duration
	GasPrice           string
}

type ChainsConfig struct {
	NEAR         ChainFamilyConfig
	Cosmos       ChainFamilyConfig
	UTXO         ChainFamilyConfig
	CosmosPrefix string
	// NativeAsset is the source chain fee asset in which safety deposits are posted.
	NativeAsset string
}

type JobsConfig struct {
	ExpirySweepSpec    string
	ExpirySweepBatch   int
	ExpirySweepTimeout time.Duration
}

type WebhookConfig struct {
	EventURL   string
	Timeout    time.Duration
	MaxRetries int
	QueueSize  int
	// UptimeURL is pinged after every successful expiry sweep.
	UptimeURL string
}

func New() *AppConfig {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// this will not override env variables if they already exist
	godotenv.Load(".env." + env)

	return &AppConfig{
		Environment: environments.Environment(env),
		ApiServer: ApiServerConfig{
			Addr:           envOr("API_SERVER_ADDR", ":8080"),
			AllowedOrigins: os.Getenv("ALLOWED_ORIGINS"),
			IdempotencyTTL: envVarDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		},
		Database: DBConnection{
			Driver:      envOr("DB_DRIVER", "postgres"),
			Host:        os.Getenv("DB_HOST"),
			Port:        os.Getenv("DB_PORT"),
			User:        os.Getenv("DB_USER"),
			Name:        os.Getenv("DB_NAME"),
			Pass:        os.Getenv("DB_PASS"),
			SSLMode:     envOr("DB_SSL_MODE", "disable"),
			SQLitePath:  envOr("DB_SQLITE_PATH", "fusion-bridge.db"),
			AutoMigrate: envVarAsBool("DB_AUTO_MIGRATE"),
		},
		Redis: RedisConfig{
			URL:      os.Getenv("REDIS_URL"),
			Password: os.Getenv("REDIS_PASSWORD"),
			LockTTL:  envVarDuration("REDIS_LOCK_TTL", 30*time.Second),
		},
		Registry: RegistryConfig{
			Owner:     os.Getenv("REGISTRY_OWNER"),
			Resolvers: envVarList("AUTHORIZED_RESOLVERS"),
		},
		Chains: ChainsConfig{
			NEAR: ChainFamilyConfig{
				SafetyDepositBps:   uint16(envVarAtoiOr("NEAR_SAFETY_DEPOSIT_BPS", 500)),
				SafetyDepositFloor: envOr("NEAR_SAFETY_DEPOSIT_FLOOR", "0"),
				DefaultTimelock:    envVarDuration("NEAR_DEFAULT_TIMELOCK", 24*time.Hour),
				GasPrice:           envOr("NEAR_GAS_PRICE", "100000000"),
			},
			Cosmos: ChainFamilyConfig{
				SafetyDepositBps:   uint16(envVarAtoiOr("COSMOS_SAFETY_DEPOSIT_BPS", 500)),
				SafetyDepositFloor: envOr("COSMOS_SAFETY_DEPOSIT_FLOOR", "0"),
				DefaultTimelock:    envVarDuration("COSMOS_DEFAULT_TIMELOCK", 24*time.Hour),
				GasPrice:           envOr("COSMOS_GAS_PRICE", "25000"),
			},
			UTXO: ChainFamilyConfig{
				SafetyDepositBps:   uint16(envVarAtoiOr("UTXO_SAFETY_DEPOSIT_BPS", 500)),
				SafetyDepositFloor: envOr("UTXO_SAFETY_DEPOSIT_FLOOR", "546"),
				DefaultTimelock:    envVarDuration("UTXO_DEFAULT_TIMELOCK", 48*time.Hour),
			},
			CosmosPrefix: envOr("COSMOS_BECH32_PREFIX", "neutron"),
			NativeAsset:  envOr("SOURCE_NATIVE_ASSET", "ETH"),
		},
		Jobs: JobsConfig{
			ExpirySweepSpec:    envOr("EXPIRY_SWEEP_SPEC", "@every 1m"),
			ExpirySweepBatch:   envVarAtoiOr("EXPIRY_SWEEP_BATCH", 100),
			ExpirySweepTimeout: envVarDuration("EXPIRY_SWEEP_TIMEOUT", 30*time.Second),
		},
		Webhook: WebhookConfig{
			EventURL:   os.Getenv("EVENT_WEBHOOK_URL"),
			Timeout:    envVarDuration("EVENT_WEBHOOK_TIMEOUT", 10*time.Second),
			MaxRetries: envVarAtoiOr("EVENT_WEBHOOK_MAX_RETRIES", 3),
			QueueSize:  envVarAtoiOr("EVENT_WEBHOOK_QUEUE_SIZE", 256),
			UptimeURL:  os.Getenv("UPTIME_WEBHOOK_URL"),
		},
	}
}

func envOr(envName, fallback string) string {
	if v := os.Getenv(envName); v != "" {
		return v
	}
	return fallback
}

func envVarAtoi(envName string) int {
	valueStr := os.Getenv(envName)
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		panic(err)
	}

	return value
}

func envVarAtoiOr(envName string, fallback int) int {
	if os.Getenv(envName) == "" {
		return fallback
	}
	return envVarAtoi(envName)
}

func envVarAsBool(envName string) bool {
	valueStr := os.Getenv(envName)
	return valueStr == "true"
}

func envVarDuration(envName string, fallback time.Duration) time.Duration {
	valueStr := os.Getenv(envName)
	if valueStr == "" {
		return fallback
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		panic(err)
	}
	return value
}

// envVarList splits a comma or semicolon separated variable, dropping blanks.
func envVarList(envName string) []string {
	raw := os.Getenv(envName)
	if raw == "" {
		return nil
	}
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
