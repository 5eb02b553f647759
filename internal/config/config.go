package config

import (
	"os"
	"strconv"
	"time"
	"unicode/utf8"
)

type Config struct {
	Port           int
	DatabaseURL    string
	DBPath         string
	LogLevel       string
	NatsURL        string
	NatsToken      string
	NatsName       string
	APIToken       string
	SlackBotToken  string
	SlackChannel   string
	IngestDir      string
	IngestSchedule string
	IngestWatch    bool
	IngestState    string
	CSVSeparator   rune
	CSVEncoding    string
	ColumnsFile    string
	ResetPolicy    string
	SessionTTL     time.Duration
	DefaultLimit   int
	ExportFilename string
}

func Load() Config {
	return Config{
		Port:           envInt("ROSA_PORT", 8760),
		DatabaseURL:    envStr("DATABASE_URL", ""),
		DBPath:         envStr("ROSA_DB_PATH", "merged_data.db"),
		LogLevel:       envStr("LOG_LEVEL", "info"),
		NatsURL:        envStr("NATS_URL", ""),
		NatsToken:      envStr("NATS_TOKEN", ""),
		NatsName:       envStr("ROSA_NATS_NAME", "rosa"),
		APIToken:       envStr("ROSA_API_TOKEN", ""),
		SlackBotToken:  envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:   envStr("SLACK_CHANNEL", ""),
		IngestDir:      envStr("ROSA_INGEST_DIR", "."),
		IngestSchedule: envStr("ROSA_INGEST_SCHEDULE", ""),
		IngestWatch:    envBool("ROSA_INGEST_WATCH", false),
		IngestState:    envStr("ROSA_INGEST_STATE", ""),
		CSVSeparator:   envRune("ROSA_CSV_SEPARATOR", ';'),
		CSVEncoding:    envStr("ROSA_CSV_ENCODING", "utf-8"),
		ColumnsFile:    envStr("ROSA_COLUMNS_FILE", ""),
		ResetPolicy:    envStr("ROSA_RESET_POLICY", "clear"),
		SessionTTL:     envDuration("ROSA_SESSION_TTL", 12*time.Hour),
		DefaultLimit:   envInt("ROSA_DEFAULT_LIMIT", 100),
		ExportFilename: envStr("ROSA_EXPORT_FILENAME", "contacts_disponibles.csv"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envDuration reads a Go duration such as "90m" or "12h". Zero disables
// whatever the value bounds.
func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			return d
		}
	}
	return fallback
}

// envRune reads a single-character value; "\t" is accepted for tab.
func envRune(key string, fallback rune) rune {
	v := os.Getenv(key)
	if v == `\t` {
		return '\t'
	}
	if utf8.RuneCountInString(v) != 1 {
		return fallback
	}
	r, _ := utf8.DecodeRuneInString(v)
	return r
}
