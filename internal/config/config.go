// Package config loads aria's runtime configuration from the environment,
// following the same two-phase "typed struct, then env overrides" shape as
// its teacher package.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LLMModelConfig names one entry in the LLM Gateway's fallback chain.
type LLMModelConfig struct {
	Name     string // logical name, e.g. "primary", "fallback-1"
	Provider string // "openai" | "anthropic" | "google"
	Model    string
	BaseURL  string
	APIKey   string
}

// TimeoutConfig is the authoritative per-service timeout ceiling table (§4.A).
type TimeoutConfig struct {
	Auth          time.Duration
	MemorySearch  time.Duration
	LLMGenerate   time.Duration
	LLMFirstToken time.Duration
	ExpertExecute time.Duration
	SiblingCRUD   time.Duration
}

// CircuitBreakerConfig tunes the Resilient Outbound Client's breaker (§4.A).
type CircuitBreakerConfig struct {
	Failures int
	Cooldown time.Duration
}

// RetryConfig tunes exponential backoff for idempotent outbound calls.
type RetryConfig struct {
	Base        time.Duration
	MaxBackoff  time.Duration
	MaxAttempts int
}

// EpisodeTimeouts holds the per-context-type inactivity timeout (§3).
type EpisodeTimeouts struct {
	Chat        time.Duration
	Development time.Duration
	Planning    time.Duration
	General     time.Duration
}

// DownstreamURLs holds the base URL of each sibling collaborator an
// expert calls through the Resilient Outbound Client (§6).
type DownstreamURLs struct {
	Lists         string
	Calendar      string
	Reminders     string
	Journal       string
	HomeAssistant string
}

// Config is aria's full runtime configuration.
type Config struct {
	DatabaseURL    string
	AuthServiceURL string
	RedisAddr      string
	LocalDevMode   bool
	ListenAddr     string
	Downstream     DownstreamURLs

	// InternalServiceToken, when set, is attached as a static header to
	// every Resilient Outbound Client call so sibling services (Lists,
	// Calendar, Reminders, Journal, HomeAssistant) can tell a call
	// actually came from the core rather than a stray client.
	InternalServiceToken string

	LogPath  string
	LogLevel string

	Obs ObsConfig

	LLMModels        []LLMModelConfig
	LLMDefaultModel  string
	ExpertParallelMs int
	EpisodeTimeouts  EpisodeTimeouts
	Timeouts         TimeoutConfig
	Breaker          CircuitBreakerConfig
	Retry            RetryConfig
}

// ObsConfig controls OpenTelemetry wiring (carried from the teacher verbatim).
type ObsConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLP           string
}

// Load reads configuration from the environment (optionally via a local
// .env, which is allowed to override real env vars the same way the
// teacher's loader does for deterministic local development).
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		AuthServiceURL: strings.TrimSpace(os.Getenv("AUTH_SERVICE_URL")),
		RedisAddr:      strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		LocalDevMode:   boolEnv("LOCAL_DEV_MODE", false),
		ListenAddr:     firstNonEmpty(strings.TrimSpace(os.Getenv("LISTEN_ADDR")), ":8080"),

		InternalServiceToken: strings.TrimSpace(os.Getenv("INTERNAL_SERVICE_TOKEN")),

		LogPath:  strings.TrimSpace(os.Getenv("LOG_PATH")),
		LogLevel: firstNonEmpty(strings.TrimSpace(os.Getenv("LOG_LEVEL")), "info"),
		Downstream: DownstreamURLs{
			Lists:         strings.TrimSpace(os.Getenv("LISTS_SERVICE_URL")),
			Calendar:      strings.TrimSpace(os.Getenv("CALENDAR_SERVICE_URL")),
			Reminders:     strings.TrimSpace(os.Getenv("REMINDERS_SERVICE_URL")),
			Journal:       strings.TrimSpace(os.Getenv("JOURNAL_SERVICE_URL")),
			HomeAssistant: strings.TrimSpace(os.Getenv("HOMEASSISTANT_SERVICE_URL")),
		},
		Obs: ObsConfig{
			ServiceName:    firstNonEmpty(strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME")), "aria-core"),
			ServiceVersion: strings.TrimSpace(os.Getenv("SERVICE_VERSION")),
			Environment:    firstNonEmpty(strings.TrimSpace(os.Getenv("ENVIRONMENT")), "development"),
			OTLP:           strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		},
		LLMDefaultModel:  strings.TrimSpace(os.Getenv("LLM_DEFAULT_MODEL")),
		ExpertParallelMs: intEnv("EXPERT_PARALLEL_DEADLINE_MS", 10000),
		EpisodeTimeouts: EpisodeTimeouts{
			Chat:        time.Duration(intEnv("EPISODE_TIMEOUT_MINUTES_CHAT", 30)) * time.Minute,
			Development: time.Duration(intEnv("EPISODE_TIMEOUT_MINUTES_DEV", 120)) * time.Minute,
			Planning:    time.Duration(intEnv("EPISODE_TIMEOUT_MINUTES_PLAN", 60)) * time.Minute,
			General:     time.Duration(intEnv("EPISODE_TIMEOUT_MINUTES_GENERAL", 30)) * time.Minute,
		},
		Timeouts: TimeoutConfig{
			Auth:          5 * time.Second,
			MemorySearch:  5 * time.Second,
			LLMGenerate:   30 * time.Second,
			LLMFirstToken: 15 * time.Second,
			ExpertExecute: 10 * time.Second,
			SiblingCRUD:   5 * time.Second,
		},
		Breaker: CircuitBreakerConfig{
			Failures: intEnv("CIRCUIT_BREAKER_FAILURES", 5),
			Cooldown: time.Duration(intEnv("CIRCUIT_BREAKER_COOLDOWN_SEC", 30)) * time.Second,
		},
		Retry: RetryConfig{
			Base:        200 * time.Millisecond,
			MaxBackoff:  5 * time.Second,
			MaxAttempts: 3,
		},
	}

	cfg.LLMModels = loadLLMModels()

	return cfg, nil
}

func loadLLMModels() []LLMModelConfig {
	var models []LLMModelConfig
	if ep := strings.TrimSpace(os.Getenv("LLM_PRIMARY_ENDPOINT")); ep != "" {
		models = append(models, LLMModelConfig{
			Name:     "primary",
			Provider: firstNonEmpty(strings.TrimSpace(os.Getenv("LLM_PRIMARY_PROVIDER")), "openai"),
			Model:    strings.TrimSpace(os.Getenv("LLM_DEFAULT_MODEL")),
			BaseURL:  ep,
			APIKey:   strings.TrimSpace(os.Getenv("LLM_PRIMARY_API_KEY")),
		})
	}
	if list := strings.TrimSpace(os.Getenv("LLM_FALLBACK_ENDPOINTS")); list != "" {
		for i, ep := range strings.Split(list, ",") {
			ep = strings.TrimSpace(ep)
			if ep == "" {
				continue
			}
			models = append(models, LLMModelConfig{
				Name:     "fallback-" + strconv.Itoa(i+1),
				Provider: firstNonEmpty(strings.TrimSpace(os.Getenv("LLM_FALLBACK_PROVIDER")), "openai"),
				Model:    strings.TrimSpace(os.Getenv("LLM_DEFAULT_MODEL")),
				BaseURL:  ep,
				APIKey:   strings.TrimSpace(os.Getenv("LLM_FALLBACK_API_KEY")),
			})
		}
	}
	return models
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func intEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolEnv(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}
