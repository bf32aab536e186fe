package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string // empty disables the health server

	Env      string // "dev" | "prod"
	LogLevel string

	// Storage
	Store       string // memory | sqlite | postgres
	DBPath      string // e.g. "./data/portaria.db"
	DatabaseURL string // postgres DSN

	// Sessions
	SessionSecret     string
	SessionTTLMinutes int

	SelfTokenSeconds int

	// Token retention
	TokenRetentionDays int // 0 = keep forever
	PruneIntervalHours int // how often the pruner runs (default 6)

	// Optional integrations; empty disables them.
	RedisAddr       string
	StatsTTLSeconds int
	KafkaBrokers    []string
	KafkaAuditTopic string

	// Bootstrap account created on every backend when its login is
	// missing. An empty password skips the bootstrap; dev defaults it.
	BootstrapAdminLogin    string
	BootstrapAdminPassword string
}

// Load reads a .env file from the working directory when present, then
// builds the config from the environment. Variables already set win over
// the file.
func Load() (Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}
	return FromEnv(), nil
}

func FromEnv() Config {
	env := strings.ToLower(getenvDefault("PORTARIA_ENV", "dev"))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}

	backend := strings.ToLower(getenvDefault("PORTARIA_STORE", StoreSQLite))
	switch backend {
	case StoreMemory, StoreSQLite, StorePostgres:
	default:
		backend = StoreSQLite
	}

	bootstrapPassword := os.Getenv("PORTARIA_BOOTSTRAP_ADMIN_PASSWORD")
	if bootstrapPassword == "" {
		bootstrapPassword = os.Getenv("PORTARIA_DEV_ADMIN_PASSWORD")
	}
	if bootstrapPassword == "" && env == "dev" {
		bootstrapPassword = "admin"
	}

	return Config{
		HTTPAddr: getenvDefault("PORTARIA_HTTP_ADDR", ":8080"),
		GRPCAddr: strings.TrimSpace(os.Getenv("PORTARIA_GRPC_ADDR")),

		Env:      env,
		LogLevel: getenvDefault("PORTARIA_LOG_LEVEL", "info"),

		Store:       backend,
		DBPath:      getenvDefault("PORTARIA_DB_PATH", "./data/portaria.db"),
		DatabaseURL: strings.TrimSpace(os.Getenv("PORTARIA_DATABASE_URL")),

		SessionSecret:     os.Getenv("PORTARIA_SESSION_SECRET"),
		SessionTTLMinutes: getenvInt("PORTARIA_SESSION_TTL_MINUTES", 12*60),

		SelfTokenSeconds: getenvInt("PORTARIA_SELF_TOKEN_SECONDS", 30),

		TokenRetentionDays: getenvInt("PORTARIA_TOKEN_RETENTION_DAYS", 30),
		PruneIntervalHours: getenvInt("PORTARIA_PRUNE_INTERVAL_HOURS", 6),

		RedisAddr:       strings.TrimSpace(os.Getenv("PORTARIA_REDIS_ADDR")),
		StatsTTLSeconds: getenvInt("PORTARIA_STATS_TTL_SECONDS", 10),
		KafkaBrokers:    splitCSV(os.Getenv("PORTARIA_KAFKA_BROKERS")),
		KafkaAuditTopic: getenvDefault("PORTARIA_KAFKA_AUDIT_TOPIC", "portaria.access_logs"),

		BootstrapAdminLogin:    strings.ToLower(getenvDefault("PORTARIA_BOOTSTRAP_ADMIN_LOGIN", "admin")),
		BootstrapAdminPassword: bootstrapPassword,
	}
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
