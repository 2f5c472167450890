package config

import (
	"errors"
	"strings"
	"testing"
)

// validConfig returns a config that passes Validate when OPENAI_API_KEY is set.
func validConfig() *Config {
	return &Config{
		Provider:         ProviderOpenAI,
		ModelName:        "gpt-4o",
		Temperature:      0.4,
		MaxTokens:        1000,
		EmbedderModel:    DefaultOpenAIEmbedderModel,
		PostgresHost:     "localhost",
		PostgresPort:     5432,
		PostgresUser:     "exbordia",
		PostgresPassword: "a_long_enough_password",
		PostgresDBName:   "exbordia",
		PostgresSSLMode:  "disable",
		ListenAddr:       ":8000",
		RateLimitRPS:     10,
		RateLimitBurst:   20,
		ChunkSize:        5000,
		IngestWorkers:    4,
		MaxHistoryTurns:  5,
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Provider = "anthropic" },
			wantErr: ErrInvalidProvider,
		},
		{
			name:    "empty model name",
			mutate:  func(c *Config) { c.ModelName = "" },
			wantErr: ErrInvalidModelName,
		},
		{
			name:    "temperature too high",
			mutate:  func(c *Config) { c.Temperature = 2.5 },
			wantErr: ErrInvalidTemperature,
		},
		{
			name:    "negative temperature",
			mutate:  func(c *Config) { c.Temperature = -0.1 },
			wantErr: ErrInvalidTemperature,
		},
		{
			name:    "zero max tokens",
			mutate:  func(c *Config) { c.MaxTokens = 0 },
			wantErr: ErrInvalidMaxTokens,
		},
		{
			name:    "empty embedder model",
			mutate:  func(c *Config) { c.EmbedderModel = "" },
			wantErr: ErrInvalidEmbedderModel,
		},
		{
			name:    "chunk size too small",
			mutate:  func(c *Config) { c.ChunkSize = 10 },
			wantErr: ErrInvalidChunkSize,
		},
		{
			name:    "zero ingest workers",
			mutate:  func(c *Config) { c.IngestWorkers = 0 },
			wantErr: ErrInvalidIngestWorkers,
		},
		{
			name:    "empty postgres host",
			mutate:  func(c *Config) { c.PostgresHost = "" },
			wantErr: ErrInvalidPostgresHost,
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.PostgresPort = 70000 },
			wantErr: ErrInvalidPostgresPort,
		},
		{
			name:    "empty db name",
			mutate:  func(c *Config) { c.PostgresDBName = "" },
			wantErr: ErrInvalidPostgresDBName,
		},
		{
			name:    "short password",
			mutate:  func(c *Config) { c.PostgresPassword = "short" },
			wantErr: ErrInvalidPostgresPassword,
		},
		{
			name:    "deprecated ssl mode",
			mutate:  func(c *Config) { c.PostgresSSLMode = "prefer" },
			wantErr: ErrInvalidPostgresSSLMode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_NilConfig(t *testing.T) {
	var cfg *Config
	if err := cfg.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Errorf("Validate() = %v, want ErrConfigNil", err)
	}
}

func TestValidate_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	cfg := validConfig()
	if err := cfg.Validate(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Validate() = %v, want ErrMissingAPIKey", err)
	}
}

func TestValidateSync(t *testing.T) {
	cfg := validConfig()

	if err := cfg.ValidateSync(); !errors.Is(err, ErrMissingNotionToken) {
		t.Errorf("ValidateSync() without token = %v, want ErrMissingNotionToken", err)
	}

	cfg.NotionToken = "secret_abc"
	if err := cfg.ValidateSync(); !errors.Is(err, ErrMissingNotionDatabaseID) {
		t.Errorf("ValidateSync() without database id = %v, want ErrMissingNotionDatabaseID", err)
	}
	if err := cfg.ValidateSync(); errors.Is(err, ErrMissingNotionToken) {
		t.Error("ValidateSync() without database id reported the token sentinel")
	}

	cfg.NotionDatabaseID = "db-123"
	if err := cfg.ValidateSync(); err != nil {
		t.Errorf("ValidateSync() = %v, want nil", err)
	}
}

func TestFullModelName(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		model    string
		want     string
	}{
		{"openai", ProviderOpenAI, "gpt-4o", "openai/gpt-4o"},
		{"googleai", ProviderGoogleAI, "gemini-2.5-flash", "googleai/gemini-2.5-flash"},
		{"already qualified", ProviderOpenAI, "googleai/gemini-2.5-flash", "googleai/gemini-2.5-flash"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Provider: tt.provider, ModelName: tt.model}
			if got := cfg.FullModelName(); got != tt.want {
				t.Errorf("FullModelName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMarshalJSON_MasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresPassword = "super_secret_password"
	cfg.NotionToken = "secret_notion_integration_token"

	data, err := cfg.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error: %v", err)
	}

	out := string(data)
	if strings.Contains(out, "super_secret_password") {
		t.Error("MarshalJSON() leaked postgres password")
	}
	if strings.Contains(out, "secret_notion_integration_token") {
		t.Error("MarshalJSON() leaked notion token")
	}
	if !strings.Contains(out, maskedValue) {
		t.Error("MarshalJSON() output missing mask placeholder")
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		check func(t *testing.T, got string)
	}{
		{
			name: "empty stays empty",
			in:   "",
			check: func(t *testing.T, got string) {
				if got != "" {
					t.Errorf("got %q, want empty", got)
				}
			},
		},
		{
			name: "short secret fully masked",
			in:   "secret",
			check: func(t *testing.T, got string) {
				if got != maskedValue {
					t.Errorf("got %q, want %q", got, maskedValue)
				}
			},
		},
		{
			name: "long secret keeps edges",
			in:   "my_long_secret_key_123",
			check: func(t *testing.T, got string) {
				if !strings.HasPrefix(got, "my") || !strings.HasSuffix(got, "23") {
					t.Errorf("got %q, want my<mask>23 shape", got)
				}
				if strings.Contains(got, "long_secret") {
					t.Errorf("got %q, middle not masked", got)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, maskSecret(tt.in))
		})
	}
}
