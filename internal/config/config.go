package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sjawhar/interview-coach/internal/llm"
)

// EnvPrefix is the namespace prefix for all interview-coach environment variables.
const EnvPrefix = "INTERVIEW_COACH_"

// dotEnvFile is loaded before environment overrides are read. Variables
// already set in the environment win.
var dotEnvFile = ".env"

// Config holds the settings of both binaries. Secrets (API keys) are loaded
// exclusively from environment variables and never appear in the config file.
type Config struct {
	ListenAddr            string   `yaml:"listen_addr"`
	ServerAddr            string   `yaml:"server_addr"`
	ServiceURL            string   `yaml:"service_url"`
	DBPath                string   `yaml:"db_path"`
	TranscriptDir         string   `yaml:"transcript_dir"`
	Role                  string   `yaml:"role"`
	RequestTimeout        string   `yaml:"request_timeout"`
	LLMModel              string   `yaml:"llm_model"`
	FeedbackModel         string   `yaml:"feedback_model"`
	TTSProvider           string   `yaml:"tts_provider"`
	TTSVoice              string   `yaml:"tts_voice"`
	TTSModel              string   `yaml:"tts_model"`
	DeepgramModel         string   `yaml:"deepgram_model"`
	DeepgramLanguage      string   `yaml:"deepgram_language"`
	MicSampleRate         int      `yaml:"mic_sample_rate"`
	MicSampleRates        []int    `yaml:"mic_sample_rates"`
	PlayerCommands        []string `yaml:"player_commands"`
	GDriveFolderID        string   `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile string   `yaml:"google_credentials_file"`
	LogLevel              string   `yaml:"log_level"`
	LogFormat             string   `yaml:"log_format"`

	// Secrets: env vars only, never serialized to YAML.
	DeepgramAPIKey   string `yaml:"-"`
	OpenAIAPIKey     string `yaml:"-"`
	AnthropicAPIKey  string `yaml:"-"`
	GeminiAPIKey     string `yaml:"-"`
	ElevenLabsAPIKey string `yaml:"-"`
}

func defaults() Config {
	return Config{
		ListenAddr:            "127.0.0.1:8090",
		ServerAddr:            "127.0.0.1:5000",
		ServiceURL:            "http://127.0.0.1:5000",
		DBPath:                "data/interview-coach.db",
		TranscriptDir:         "data/transcripts",
		Role:                  "software engineer",
		RequestTimeout:        "10s",
		LLMModel:              "openai/gpt-4o-mini",
		TTSProvider:           "openai",
		DeepgramModel:         "nova-2",
		DeepgramLanguage:      "en-US",
		MicSampleRate:         16000,
		MicSampleRates:        []int{48000, 44100, 32000, 24000},
		GoogleCredentialsFile: "./service-account.json",
		LogLevel:              "info",
		LogFormat:             "text",
	}
}

// Load reads configuration from a YAML file (if it exists), loads an optional
// .env file, applies environment variable overrides, loads secrets, and
// validates the result. It returns the config, any validation warnings, and
// an error if the file exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	if err := godotenv.Load(dotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, nil, fmt.Errorf("load %s: %w", dotEnvFile, err)
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedRequestTimeout returns RequestTimeout as a time.Duration, falling
// back to 10s if the value is invalid.
func (c *Config) ParsedRequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// FeedbackModelOrDefault is the model used for feedback reports.
func (c *Config) FeedbackModelOrDefault() string {
	if strings.TrimSpace(c.FeedbackModel) != "" {
		return c.FeedbackModel
	}
	return c.LLMModel
}

func (c *Config) LLMKeys() llm.Keys {
	return llm.Keys{OpenAI: c.OpenAIAPIKey, Anthropic: c.AnthropicAPIKey, Gemini: c.GeminiAPIKey}
}

// SampleRateCandidates returns a deduplicated ordered list of sample rates
// to try: preferred rate first, then configured alternatives, then defaults.
func (c *Config) SampleRateCandidates() []int {
	hardcoded := []int{16000, 48000, 44100, 32000, 24000}

	combined := make([]int, 0, 1+len(c.MicSampleRates)+len(hardcoded))
	combined = append(combined, c.MicSampleRate)
	combined = append(combined, c.MicSampleRates...)
	combined = append(combined, hardcoded...)

	seen := make(map[int]struct{}, len(combined))
	result := make([]int, 0, len(combined))
	for _, rate := range combined {
		if rate <= 0 {
			continue
		}
		if _, ok := seen[rate]; ok {
			continue
		}
		seen[rate] = struct{}{}
		result = append(result, rate)
	}
	return result
}

func applyEnvOverrides(cfg *Config) {
	strs := map[string]*string{
		"LISTEN_ADDR":             &cfg.ListenAddr,
		"SERVER_ADDR":             &cfg.ServerAddr,
		"SERVICE_URL":             &cfg.ServiceURL,
		"DB_PATH":                 &cfg.DBPath,
		"TRANSCRIPT_DIR":          &cfg.TranscriptDir,
		"ROLE":                    &cfg.Role,
		"REQUEST_TIMEOUT":         &cfg.RequestTimeout,
		"LLM_MODEL":               &cfg.LLMModel,
		"FEEDBACK_MODEL":          &cfg.FeedbackModel,
		"TTS_PROVIDER":            &cfg.TTSProvider,
		"TTS_VOICE":               &cfg.TTSVoice,
		"TTS_MODEL":               &cfg.TTSModel,
		"DEEPGRAM_MODEL":          &cfg.DeepgramModel,
		"DEEPGRAM_LANGUAGE":       &cfg.DeepgramLanguage,
		"GDRIVE_FOLDER_ID":        &cfg.GDriveFolderID,
		"GOOGLE_CREDENTIALS_FILE": &cfg.GoogleCredentialsFile,
		"LOG_LEVEL":               &cfg.LogLevel,
		"LOG_FORMAT":              &cfg.LogFormat,
	}
	for key, field := range strs {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*field = v
		}
	}

	if v := os.Getenv(EnvPrefix + "MIC_SAMPLE_RATE"); v != "" {
		if rate, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && rate > 0 {
			cfg.MicSampleRate = rate
		}
	}
	if v := os.Getenv(EnvPrefix + "MIC_SAMPLE_RATES"); v != "" {
		cfg.MicSampleRates = parseSampleRates(v)
	}
	if v := os.Getenv(EnvPrefix + "PLAYER_COMMANDS"); v != "" {
		cfg.PlayerCommands = splitList(v)
	}
}

// secret reads a key under the prefix, falling back to the provider's
// conventional unprefixed name.
func secret(name string) string {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		return v
	}
	return os.Getenv(name)
}

func loadSecrets(cfg *Config) {
	cfg.DeepgramAPIKey = secret("DEEPGRAM_API_KEY")
	cfg.OpenAIAPIKey = secret("OPENAI_API_KEY")
	cfg.AnthropicAPIKey = secret("ANTHROPIC_API_KEY")
	cfg.GeminiAPIKey = secret("GEMINI_API_KEY")
	cfg.ElevenLabsAPIKey = secret("ELEVENLABS_API_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	if cfg.DeepgramAPIKey == "" {
		warnings = append(warnings, "Deepgram API key not configured: live recognition is unavailable. Set "+EnvPrefix+"DEEPGRAM_API_KEY.")
	}

	if provider, _, err := llm.ParseModel(cfg.LLMModel); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid llm_model %q: expected provider/model_name.", cfg.LLMModel))
	} else if !hasProviderKey(cfg, provider) {
		warnings = append(warnings, fmt.Sprintf("No API key for LLM provider %q: interviewer replies are unavailable.", provider))
	}

	switch cfg.TTSProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			warnings = append(warnings, "OpenAI API key not configured: spoken replies are disabled. Set "+EnvPrefix+"OPENAI_API_KEY.")
		}
	case "elevenlabs":
		if cfg.ElevenLabsAPIKey == "" {
			warnings = append(warnings, "ElevenLabs API key not configured: spoken replies are disabled. Set "+EnvPrefix+"ELEVENLABS_API_KEY.")
		}
		if cfg.TTSVoice == "" {
			warnings = append(warnings, "tts_voice must name an ElevenLabs voice id.")
		}
	default:
		warnings = append(warnings, fmt.Sprintf("Unknown tts_provider %q: expected openai or elevenlabs.", cfg.TTSProvider))
	}

	if d, err := time.ParseDuration(cfg.RequestTimeout); err != nil || d <= 0 {
		warnings = append(warnings, fmt.Sprintf("Invalid request_timeout %q: using default 10s.", cfg.RequestTimeout))
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		warnings = append(warnings, fmt.Sprintf("Unknown log_format %q: using text.", cfg.LogFormat))
	}

	return warnings
}

func hasProviderKey(cfg *Config, provider string) bool {
	switch provider {
	case "openai":
		return cfg.OpenAIAPIKey != ""
	case "anthropic":
		return cfg.AnthropicAPIKey != ""
	case "gemini":
		return cfg.GeminiAPIKey != ""
	default:
		return false
	}
}

func parseSampleRates(raw string) []int {
	parts := strings.Split(raw, ",")
	seen := make(map[int]struct{}, len(parts))
	result := make([]int, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		rate, err := strconv.Atoi(trimmed)
		if err != nil || rate <= 0 {
			continue
		}
		if _, ok := seen[rate]; ok {
			continue
		}
		seen[rate] = struct{}{}
		result = append(result, rate)
	}

	return result
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
