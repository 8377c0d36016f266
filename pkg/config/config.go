package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
)

type Config struct {
	CompletionsAPIURL string
	CompletionsAPIKey string
	CompletionsModel  string
	// SearchModel is used for the augmented (live web search) call.
	SearchModel string
	DBPath      string
	HTTPPort    string
	NatsURL     string

	// Context budgeting caps, all in characters.
	MaxMemoryChars  int
	MaxHistoryChars int
	MaxTotalChars   int

	// Memory pool shape.
	MaxActiveMemoryEntries int
	HistoryTurnLookback    int

	// EvictOverCap forcibly drops the lowest-priority entries above
	// MaxActiveMemoryEntries. Off by default: without it only entries the
	// model marked priority 0 are ever removed.
	EvictOverCap bool
}

func getEnv(key, defaultValue string, printEnv bool) string {
	logger := log.Default()
	value := os.Getenv(key)
	if printEnv {
		logger.Info("Env", "key", key, "value", value)
	}
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int, printEnv bool) int {
	value := getEnv(key, "", printEnv)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		panic(fmt.Sprintf("Environment variable %s is not an integer: %q", key, value))
	}
	return n
}

func getEnvBool(key string, defaultValue bool, printEnv bool) bool {
	value := getEnv(key, "", printEnv)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		panic(fmt.Sprintf("Environment variable %s is not a boolean: %q", key, value))
	}
	return b
}

func LoadConfig(printEnv bool) (*Config, error) {
	_ = godotenv.Load()

	conf := &Config{
		CompletionsAPIURL:      getEnv("COMPLETIONS_API_URL", "https://api.openai.com/v1", printEnv),
		CompletionsAPIKey:      getEnv("COMPLETIONS_API_KEY", "", printEnv),
		CompletionsModel:       getEnv("COMPLETIONS_MODEL", "gpt-4.1-mini", printEnv),
		SearchModel:            getEnv("SEARCH_MODEL", "gpt-4o-mini-search-preview", printEnv),
		DBPath:                 getEnv("DB_PATH", "./output/sqlite/store.db", printEnv),
		HTTPPort:               getEnv("HTTP_PORT", "44600", printEnv),
		NatsURL:                getEnv("NATS_URL", "nats://127.0.0.1:4222", printEnv),
		MaxMemoryChars:         getEnvInt("MAX_MEMORY_CHARS", 4000, printEnv),
		MaxHistoryChars:        getEnvInt("MAX_HISTORY_CHARS", 8000, printEnv),
		MaxTotalChars:          getEnvInt("MAX_TOTAL_CHARS", 24000, printEnv),
		MaxActiveMemoryEntries: getEnvInt("MAX_ACTIVE_MEMORY_ENTRIES", 10, printEnv),
		HistoryTurnLookback:    getEnvInt("HISTORY_TURN_LOOKBACK", 20, printEnv),
		EvictOverCap:           getEnvBool("EVICT_OVER_CAP", false, printEnv),
	}

	return conf, nil
}
