package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Push     PushConfig
	Agent    AgentConfig
}

type ServerConfig struct {
	Port    string
	GinMode string
	BaseURL string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

// PushConfig holds the server-side VAPID identity. An empty key pair means
// web push is disabled: /api/push/vapid-public then answers with a null key
// and clients silently skip registration.
type PushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
	TTLSeconds      int
}

// AgentConfig configures the notification agent (the client side).
type AgentConfig struct {
	APIURL         string
	PushServiceURL string
	AppURL         string
	StateDBPath    string
	AuthToken      string
	HTTPTimeout    time.Duration
	RecheckEvery   time.Duration
}

var AppConfig *Config

func Load() {
	AppConfig = &Config{
		Server: ServerConfig{
			Port:    getEnv("PORT", "8080"),
			GinMode: getEnv("GIN_MODE", "debug"),
			BaseURL: getEnv("SERVER_BASE_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "password"),
			Name:     getEnv("DB_NAME", "garantia_push_db"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "your-super-secret-jwt-key-change-this-in-production"),
			ExpiryHours: getEnvAsInt("JWT_EXPIRY_HOURS", 24),
		},
		Push: PushConfig{
			VAPIDPublicKey:  getEnv("VAPID_PUBLIC_KEY", ""),
			VAPIDPrivateKey: getEnv("VAPID_PRIVATE_KEY", ""),
			Subscriber:      getEnv("VAPID_SUBSCRIBER", "soporte@garantias-sat.local"),
			TTLSeconds:      getEnvAsInt("PUSH_TTL_SECONDS", 86400),
		},
		Agent: AgentConfig{
			APIURL:         getEnv("API_URL", "http://localhost:8080"),
			PushServiceURL: getEnv("PUSH_SERVICE_URL", "ws://localhost:8080/push/ws"),
			AppURL:         getEnv("APP_URL", "/"),
			StateDBPath:    getEnv("AGENT_STATE_DB", "garantia-agent.db"),
			AuthToken:      getEnv("AUTH_TOKEN", ""),
			HTTPTimeout:    time.Duration(getEnvAsInt("HTTP_TIMEOUT_SECONDS", 10)) * time.Second,
			RecheckEvery:   time.Duration(getEnvAsInt("PUSH_RECHECK_HOURS", 24)) * time.Hour,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
