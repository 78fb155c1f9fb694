package config

import "os"

type Config struct {
	Server   ServerConfig
	Auth     AuthConfig
	Postgres PostgresConfig
}

type ServerConfig struct {
	Addr           string
	AllowedOrigins string
}

// AuthConfig carries raw values from the environment. Parsing and validation
// happen in the session service constructor so a bad value fails startup there.
type AuthConfig struct {
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     string
	RefreshTokenTTL    string
	CookieSecure       string
	CookieSameSite     string
	CookieDomain       string
	CookiePath         string
}

type PostgresConfig struct {
	DatabaseURL string
	Host        string
	Port        string
	User        string
	Password    string
	Database    string
	SSLMode     string
}

func Load() Config {
	return Config{
		Server: ServerConfig{
			Addr:           getenv("SERVER_ADDR", ":8080"),
			AllowedOrigins: os.Getenv("CORS_ORIGIN"),
		},
		Auth: AuthConfig{
			AccessTokenSecret:  os.Getenv("ACCESS_TOKEN_SECRET"),
			RefreshTokenSecret: os.Getenv("REFRESH_TOKEN_SECRET"),
			AccessTokenTTL:     getenv("ACCESS_TOKEN_TTL", "15m"),
			RefreshTokenTTL:    getenv("REFRESH_TOKEN_TTL", "168h"),
			CookieSecure:       os.Getenv("AUTH_COOKIE_SECURE"),
			CookieSameSite:     os.Getenv("AUTH_COOKIE_SAMESITE"),
			CookieDomain:       os.Getenv("AUTH_COOKIE_DOMAIN"),
			CookiePath:         os.Getenv("AUTH_COOKIE_PATH"),
		},
		Postgres: PostgresConfig{
			DatabaseURL: os.Getenv("DATABASE_URL"),
			Host:        getenv("PGHOST", "localhost"),
			Port:        getenv("PGPORT", "5432"),
			User:        os.Getenv("PGUSER"),
			Password:    os.Getenv("PGPASSWORD"),
			Database:    os.Getenv("PGDATABASE"),
			SSLMode:     getenv("PGSSLMODE", "disable"),
		},
	}
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
