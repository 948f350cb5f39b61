package config

import (
	"os"
	"strconv"
	"strings"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode
	HTTPAddr string

	DBDriver string
	DBDSN    string

	BlobBasePath string // sheet image store (fs)

	AuthSecret    string // HMAC for JWTs
	AdminUser     string
	AdminPassHash string // bcrypt; seeds the users table on first boot

	CORSOriginsOnline  []string
	CORSOriginsOffline []string

	// Scoring/aggregation knobs.
	AmbiguityThreshold float64 // confidence below this flags a question
	TrendDays          int     // dashboard trend window, calendar days
	VisionSeed         int64   // stub detector seed; 0 = time-based
}

func FromEnv() Config {
	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		Mode:         mode,
		HTTPAddr:     addr,
		DBDriver:     envOr("DB_DRIVER", "sqlite"),
		DBDSN:        envOr("DB_DSN", ""),
		BlobBasePath: envOr("BLOB_BASE_PATH", "./data"),

		AuthSecret: envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),
		AdminUser:  envOr("ADMIN_USER", "admin"),
		// bcrypt("admin"); override in any real deployment
		AdminPassHash: envOr("ADMIN_PASS_HASH", "$2a$12$ZbQhq0Qkwbv0sEcLYja0a.xAI8a3/Ci2ygkfybhDW9HX3mhZIXKNW"),

		CORSOriginsOnline:  csvOr("CORS_ORIGINS_ONLINE", "https://dashboard.scanscore.app"),
		CORSOriginsOffline: csvOr("CORS_ORIGINS_OFFLINE", "http://localhost:3000,http://localhost:5173"),

		AmbiguityThreshold: envFloat("AMBIGUITY_THRESHOLD", 0.5),
		TrendDays:          envInt("TREND_DAYS", 7),
		VisionSeed:         int64(envInt("VISION_STUB_SEED", 0)),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
