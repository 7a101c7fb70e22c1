package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	ListenAddr string
	StaticDir  string
	SiteURL    string

	LogLevel string

	CacheLiveNavigation string

	AuthGuard  bool
	LoginPath  string
	SessionKey string

	MaxRedirects int

	Gzip bool
}

func Load() Config {
	return Config{
		ListenAddr: getEnv("NOVELSHELF_LISTEN_ADDR", ":8080"),
		StaticDir:  strings.TrimSpace(os.Getenv("NOVELSHELF_STATIC_DIR")),
		SiteURL:    strings.TrimRight(strings.TrimSpace(os.Getenv("NOVELSHELF_SITE_URL")), "/"),
		LogLevel:   getEnv("NOVELSHELF_LOG_LEVEL", "info"),
		CacheLiveNavigation: strings.TrimSpace(
			os.Getenv("NOVELSHELF_CACHE_LIVE_NAV"),
		),
		AuthGuard:    getEnvBool("NOVELSHELF_AUTH_GUARD", false),
		LoginPath:    getEnv("NOVELSHELF_LOGIN_PATH", "/auth"),
		SessionKey:   os.Getenv("NOVELSHELF_SESSION_KEY"),
		MaxRedirects: getEnvInt("NOVELSHELF_MAX_REDIRECTS", 10),
		Gzip:         getEnvBool("NOVELSHELF_GZIP", true),
	}
}

func getEnv(key string, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 1 {
		return fallback
	}

	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}

	return parsed
}
