package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type DB struct {
	Host string
	Port int
	User string
	Pass string
	Name string
}

type MQ struct {
	Host string
	Port int
	User string
	Pass string
}

type Hub struct {
	Addr          string
	MembershipURL string
	PaymentsURL   string
}

type Client struct {
	HubURL string
	Member string
	Token  string
}

type App struct {
	Hub      Hub
	Database DB
	Rabbit   MQ
	Client   Client

	DialTimeout time.Duration
}

// Load reads configuration from the environment, first merging in a .env
// file when one exists. An empty RABBITMQ_HOST disables the back-of-house
// fan-out rather than failing startup.
func Load() (App, error) {
	_ = godotenv.Load()

	a := App{
		Hub: Hub{
			Addr:          getEnv("HUB_ADDR", ":8080"),
			MembershipURL: getEnv("MEMBERSHIP_URL", "http://localhost:9000"),
			PaymentsURL:   getEnv("PAYMENTS_URL", "http://localhost:9001"),
		},
		Database: DB{
			Host: getEnv("DB_HOST", "localhost"),
			Port: getEnvInt("DB_PORT", 5432),
			User: getEnv("DB_USER", "postgres"),
			Pass: getEnv("DB_PASSWORD", ""),
			Name: getEnv("DB_NAME", "unionlive"),
		},
		Rabbit: MQ{
			Host: getEnv("RABBITMQ_HOST", ""),
			Port: getEnvInt("RABBITMQ_PORT", 5672),
			User: getEnv("RABBITMQ_USER", "guest"),
			Pass: getEnv("RABBITMQ_PASSWORD", "guest"),
		},
		Client: Client{
			HubURL: getEnv("HUB_URL", "ws://localhost:8080/live"),
			Member: getEnv("MEMBER_NAME", ""),
			Token:  getEnv("MEMBER_TOKEN", ""),
		},
		DialTimeout: getEnvDuration("DIAL_TIMEOUT", 10*time.Second),
	}

	if a.Database.Host == "" || a.Database.User == "" || a.Database.Name == "" {
		return App{}, errors.New("invalid config: database host/user/name required")
	}
	return a, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
