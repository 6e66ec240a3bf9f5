package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LISTEN_ADDR", "SERVER_ADDR", "SERVICE_URL", "DB_PATH", "TRANSCRIPT_DIR",
		"ROLE", "REQUEST_TIMEOUT", "LLM_MODEL", "FEEDBACK_MODEL",
		"TTS_PROVIDER", "TTS_VOICE", "TTS_MODEL", "DEEPGRAM_MODEL", "DEEPGRAM_LANGUAGE",
		"MIC_SAMPLE_RATE", "MIC_SAMPLE_RATES", "PLAYER_COMMANDS",
		"GDRIVE_FOLDER_ID", "GOOGLE_CREDENTIALS_FILE", "LOG_LEVEL", "LOG_FORMAT", "CONFIG",
	} {
		t.Setenv(EnvPrefix+key, "")
	}
	for _, key := range []string{
		"DEEPGRAM_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "ELEVENLABS_API_KEY",
	} {
		t.Setenv(EnvPrefix+key, "")
		t.Setenv(key, "")
	}

	old := dotEnvFile
	dotEnvFile = filepath.Join(t.TempDir(), "missing.env")
	t.Cleanup(func() { dotEnvFile = old })
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DBPath != "data/interview-coach.db" {
		t.Fatalf("expected default db_path, got %q", cfg.DBPath)
	}
	if cfg.ServiceURL != "http://127.0.0.1:5000" {
		t.Fatalf("expected default service_url, got %q", cfg.ServiceURL)
	}
	if cfg.ParsedRequestTimeout() != 10*time.Second {
		t.Fatalf("expected default request timeout 10s, got %v", cfg.ParsedRequestTimeout())
	}
	if cfg.LLMModel != "openai/gpt-4o-mini" {
		t.Fatalf("expected default llm_model, got %q", cfg.LLMModel)
	}
	if cfg.FeedbackModelOrDefault() != cfg.LLMModel {
		t.Fatalf("expected feedback model to default to llm_model, got %q", cfg.FeedbackModelOrDefault())
	}
	if cfg.MicSampleRate != 16000 {
		t.Fatalf("expected default mic_sample_rate 16000, got %d", cfg.MicSampleRate)
	}
}

func TestYAMLLoading(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	yamlContent := `
listen_addr: 0.0.0.0:9000
service_url: http://interview.local
db_path: /custom/db.sqlite
role: data engineer
request_timeout: 15s
llm_model: gemini/gemini-2.0-flash
feedback_model: anthropic/claude-sonnet-4-5
tts_provider: elevenlabs
tts_voice: voice-123
mic_sample_rate: 48000
mic_sample_rates: [44100, 32000]
player_commands: ["mpg123 -q -", "ffplay -nodisp -autoexit -"]
gdrive_folder_id: my-folder
log_format: json
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ListenAddr != "0.0.0.0:9000" || cfg.ServiceURL != "http://interview.local" {
		t.Fatalf("unexpected addresses %q %q", cfg.ListenAddr, cfg.ServiceURL)
	}
	if cfg.Role != "data engineer" {
		t.Fatalf("expected yaml role, got %q", cfg.Role)
	}
	if cfg.ParsedRequestTimeout() != 15*time.Second {
		t.Fatalf("expected 15s timeout, got %v", cfg.ParsedRequestTimeout())
	}
	if cfg.FeedbackModelOrDefault() != "anthropic/claude-sonnet-4-5" {
		t.Fatalf("unexpected feedback model %q", cfg.FeedbackModelOrDefault())
	}
	if cfg.TTSProvider != "elevenlabs" || cfg.TTSVoice != "voice-123" {
		t.Fatalf("unexpected tts settings %q %q", cfg.TTSProvider, cfg.TTSVoice)
	}
	want := []string{"mpg123 -q -", "ffplay -nodisp -autoexit -"}
	if !reflect.DeepEqual(cfg.PlayerCommands, want) {
		t.Fatalf("unexpected player commands %v", cfg.PlayerCommands)
	}
	if cfg.GDriveFolderID != "my-folder" {
		t.Fatalf("expected yaml gdrive_folder_id, got %q", cfg.GDriveFolderID)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("role: yaml role\nservice_url: http://yaml\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(EnvPrefix+"ROLE", "env role")
	t.Setenv(EnvPrefix+"PLAYER_COMMANDS", "mpg123 -q -, play -q -t mp3 -")

	cfg, _, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Role != "env role" {
		t.Fatalf("expected env override, got %q", cfg.Role)
	}
	if cfg.ServiceURL != "http://yaml" {
		t.Fatalf("expected yaml value to remain, got %q", cfg.ServiceURL)
	}
	if len(cfg.PlayerCommands) != 2 || cfg.PlayerCommands[1] != "play -q -t mp3 -" {
		t.Fatalf("unexpected player commands %v", cfg.PlayerCommands)
	}
}

func TestSecretsFromEnvOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"DEEPGRAM_API_KEY", "dg-key")
	t.Setenv("OPENAI_API_KEY", "oa-key")

	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DeepgramAPIKey != "dg-key" {
		t.Fatalf("expected prefixed deepgram key, got %q", cfg.DeepgramAPIKey)
	}
	if cfg.OpenAIAPIKey != "oa-key" {
		t.Fatalf("expected unprefixed fallback for openai key, got %q", cfg.OpenAIAPIKey)
	}
	if cfg.LLMKeys().OpenAI != "oa-key" {
		t.Fatalf("expected llm keys to carry openai key")
	}
}

func TestSecretsIgnoredInYAML(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("deepgram_api_key: leaked\nOpenAIAPIKey: leaked\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DeepgramAPIKey != "" || cfg.OpenAIAPIKey != "" {
		t.Fatal("secrets must not be loaded from yaml")
	}
}

func TestDotEnvLoaded(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("INTERVIEW_COACH_ROLE=dotenv role\nELEVENLABS_API_KEY=el-key\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	dotEnvFile = path
	// godotenv sets real process env; unset afterwards.
	t.Cleanup(func() {
		_ = os.Unsetenv(EnvPrefix + "ROLE")
		_ = os.Unsetenv("ELEVENLABS_API_KEY")
	})
	_ = os.Unsetenv(EnvPrefix + "ROLE")
	_ = os.Unsetenv("ELEVENLABS_API_KEY")

	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Role != "dotenv role" || cfg.ElevenLabsAPIKey != "el-key" {
		t.Fatalf("expected .env values, got role=%q key=%q", cfg.Role, cfg.ElevenLabsAPIKey)
	}
}

func TestValidationWarnings(t *testing.T) {
	clearEnv(t)

	_, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	joined := strings.Join(warnings, "\n")
	for _, want := range []string{"Deepgram", `provider "openai"`, "spoken replies"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected warning mentioning %q, got %v", want, warnings)
		}
	}
}

func TestValidationNoWarningsWhenConfigured(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"DEEPGRAM_API_KEY", "dg")
	t.Setenv(EnvPrefix+"OPENAI_API_KEY", "oa")

	_, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
}

func TestInvalidSettingsWarn(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"DEEPGRAM_API_KEY", "dg")
	t.Setenv(EnvPrefix+"OPENAI_API_KEY", "oa")
	t.Setenv(EnvPrefix+"REQUEST_TIMEOUT", "soon")
	t.Setenv(EnvPrefix+"TTS_PROVIDER", "polly")
	t.Setenv(EnvPrefix+"LLM_MODEL", "gpt-4o")

	cfg, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(warnings) != 3 {
		t.Fatalf("expected 3 warnings, got %v", warnings)
	}
	if cfg.ParsedRequestTimeout() != 10*time.Second {
		t.Fatalf("expected fallback timeout, got %v", cfg.ParsedRequestTimeout())
	}
}

func TestMissingConfigFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if cfg.DBPath != "data/interview-coach.db" {
		t.Fatalf("expected defaults, got %q", cfg.DBPath)
	}
}

func TestInvalidConfigFileReturnsError(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("role: [unclosed"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSampleRateCandidatesDefault(t *testing.T) {
	cfg := defaults()
	want := []int{16000, 48000, 44100, 32000, 24000}
	if got := cfg.SampleRateCandidates(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestSampleRateCandidatesEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"MIC_SAMPLE_RATE", "44100")
	t.Setenv(EnvPrefix+"MIC_SAMPLE_RATES", "22050, bad, 22050")

	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := []int{44100, 22050, 16000, 48000, 32000, 24000}
	if got := cfg.SampleRateCandidates(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestNewLoggerHonorsLevelAndFormat(t *testing.T) {
	cfg := defaults()
	cfg.LogLevel = "warn"
	cfg.LogFormat = "json"

	var buf bytes.Buffer
	logger := cfg.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "component", "test")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Fatalf("expected json output, got %s", out)
	}
	if parseLevel("bogus") != slog.LevelInfo {
		t.Fatal("unknown level should fall back to info")
	}
}
