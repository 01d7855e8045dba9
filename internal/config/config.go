package config

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Tipos de armazenamento aceitos para o token de acesso.
const (
	TokenStoreFile   = "file"
	TokenStoreRedis  = "redis"
	TokenStoreMemory = "memory"
)

// Config centraliza a configuração carregada do ambiente.
type Config struct {
	Host            string
	Port            int
	APIBaseURL      string
	APITimeout      time.Duration
	APIRateLimit    RateLimitConfig
	TokenStore      string
	TokenFile       string
	TokenKey        string
	RedisURL        string
	AllowOrigins    []string
	RateLimitPublic RateLimitConfig
}

// RateLimitConfig representa limites simples para throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// Load carrega variáveis de ambiente e aplica defaults seguros.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	portStr := getEnv("PORT", "8090")
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return nil, errors.New("PORT inválida")
	}
	cfg.Port = port

	// a sessão é única por processo; só a máquina local deve alcançá-la
	cfg.Host = strings.TrimSpace(getEnv("HOST", ""))
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}

	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(getEnv("API_BASE_URL", "")), "/")
	if cfg.APIBaseURL == "" {
		return nil, errors.New("API_BASE_URL obrigatório")
	}

	timeout, err := parseDurationEnv("API_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.APITimeout = timeout

	rps, err := parseFloatEnv("API_RATE_PER_SEC", 10)
	if err != nil {
		return nil, err
	}
	burst, err := parseIntEnv("API_BURST", 20)
	if err != nil {
		return nil, err
	}
	cfg.APIRateLimit = RateLimitConfig{RequestsPerSecond: rps, Burst: burst}

	cfg.TokenStore = strings.ToLower(strings.TrimSpace(getEnv("TOKEN_STORE", "")))
	if cfg.TokenStore == "" {
		cfg.TokenStore = TokenStoreFile
	}
	switch cfg.TokenStore {
	case TokenStoreFile, TokenStoreMemory:
	case TokenStoreRedis:
		cfg.RedisURL = strings.TrimSpace(getEnv("REDIS_URL", ""))
		if cfg.RedisURL == "" {
			return nil, errors.New("REDIS_URL obrigatório quando TOKEN_STORE=redis")
		}
	default:
		return nil, errors.New("TOKEN_STORE inválido")
	}

	cfg.TokenFile = strings.TrimSpace(getEnv("TOKEN_FILE", ""))
	if cfg.TokenFile == "" {
		cfg.TokenFile = defaultTokenFile()
	}
	cfg.TokenKey = strings.TrimSpace(getEnv("TOKEN_KEY", "console:access_token"))
	if cfg.TokenKey == "" {
		cfg.TokenKey = "console:access_token"
	}

	allowOrigins := strings.Split(getEnv("ALLOW_ORIGINS", ""), ",")
	cfg.AllowOrigins = nil
	for _, origin := range allowOrigins {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			cfg.AllowOrigins = append(cfg.AllowOrigins, origin)
		}
	}

	cfg.RateLimitPublic = RateLimitConfig{RequestsPerSecond: 10, Burst: 20}

	return cfg, nil
}

// ListenAddr devolve o endereço host:porta do servidor HTTP.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func defaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), "saude-console", "token.json")
	}
	return filepath.Join(home, ".saude-console", "token.json")
}

func getEnv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	val := getEnv(key, "")
	if val == "" {
		return def, nil
	}
	dur, err := time.ParseDuration(val)
	if err != nil || dur <= 0 {
		return 0, errors.New(key + " inválido")
	}
	return dur, nil
}

func parseFloatEnv(key string, def float64) (float64, error) {
	val := strings.TrimSpace(getEnv(key, ""))
	if val == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil || f <= 0 {
		return 0, errors.New(key + " inválido")
	}
	return f, nil
}

func parseIntEnv(key string, def int) (int, error) {
	val := strings.TrimSpace(getEnv(key, ""))
	if val == "" {
		return def, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return 0, errors.New(key + " inválido")
	}
	return n, nil
}
