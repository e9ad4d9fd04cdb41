// Package config loads the process-wide environment configuration listed
// in spec.md §6 via viper's automatic-env binding, the way the teacher's
// api/assistant-api config package overlays provider credentials with
// platform operational settings.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds every environment-driven tunable named in spec.md §6.
type Config struct {
	PoolSizeTTS            int
	PoolSizeSTT            int
	SpeechQueueMaxSize     int
	MaxConcurrentAudioTask int
	MaxEmergencyAudioTask  int
	DTMFValidationEnabled  bool

	LLMRetryMaxAttempts  int
	LLMRetryBaseDelay    time.Duration
	LLMRetryMaxDelay     time.Duration
	LLMRetryBackoffFactor float64
	LLMRetryJitter       time.Duration

	STTProcessingTimeout time.Duration

	AzureSpeechKey    string
	AzureSpeechRegion string
	DefaultLanguage   string

	OpenAIAPIKey string

	PostgresDSN string
	RedisAddr   string

	ListenAddr string
}

// Load reads environment variables with the defaults spec.md §6 and §4
// specify, via viper's AutomaticEnv. An error is returned when a pool,
// queue or audio-task size is not positive; provider credentials are not
// checked here.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("POOL_SIZE_TTS", 8)
	v.SetDefault("POOL_SIZE_STT", 8)
	v.SetDefault("SPEECH_QUEUE_MAXSIZE", 10)
	v.SetDefault("MAX_CONCURRENT_AUDIO_TASKS", 50)
	v.SetDefault("MAX_EMERGENCY_AUDIO_TASKS", 20)
	v.SetDefault("DTMF_VALIDATION_ENABLED", false)

	v.SetDefault("AOAI_RETRY_MAX_ATTEMPTS", 4)
	v.SetDefault("AOAI_RETRY_BASE_DELAY_SEC", 0.5)
	v.SetDefault("AOAI_RETRY_MAX_DELAY_SEC", 8.0)
	v.SetDefault("AOAI_RETRY_BACKOFF_FACTOR", 2.0)
	v.SetDefault("AOAI_RETRY_JITTER_SEC", 0.2)

	v.SetDefault("STT_PROCESSING_TIMEOUT", 0.03)

	v.SetDefault("DEFAULT_LANGUAGE", "en-US")
	v.SetDefault("POSTGRES_DSN", "postgres://localhost:5432/voicecore?sslmode=disable")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("LISTEN_ADDR", ":8080")

	cfg := &Config{
		PoolSizeTTS:            v.GetInt("POOL_SIZE_TTS"),
		PoolSizeSTT:            v.GetInt("POOL_SIZE_STT"),
		SpeechQueueMaxSize:     v.GetInt("SPEECH_QUEUE_MAXSIZE"),
		MaxConcurrentAudioTask: v.GetInt("MAX_CONCURRENT_AUDIO_TASKS"),
		MaxEmergencyAudioTask:  v.GetInt("MAX_EMERGENCY_AUDIO_TASKS"),
		DTMFValidationEnabled:  v.GetBool("DTMF_VALIDATION_ENABLED"),

		LLMRetryMaxAttempts:   v.GetInt("AOAI_RETRY_MAX_ATTEMPTS"),
		LLMRetryBaseDelay:     secondsToDuration(v.GetFloat64("AOAI_RETRY_BASE_DELAY_SEC")),
		LLMRetryMaxDelay:      secondsToDuration(v.GetFloat64("AOAI_RETRY_MAX_DELAY_SEC")),
		LLMRetryBackoffFactor: v.GetFloat64("AOAI_RETRY_BACKOFF_FACTOR"),
		LLMRetryJitter:        secondsToDuration(v.GetFloat64("AOAI_RETRY_JITTER_SEC")),

		STTProcessingTimeout: secondsToDuration(v.GetFloat64("STT_PROCESSING_TIMEOUT")),

		AzureSpeechKey:    v.GetString("AZURE_SPEECH_KEY"),
		AzureSpeechRegion: v.GetString("AZURE_SPEECH_REGION"),
		DefaultLanguage:   v.GetString("DEFAULT_LANGUAGE"),

		OpenAIAPIKey: v.GetString("OPENAI_API_KEY"),

		PostgresDSN: v.GetString("POSTGRES_DSN"),
		RedisAddr:   v.GetString("REDIS_ADDR"),

		ListenAddr: v.GetString("LISTEN_ADDR"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.PoolSizeTTS <= 0 || c.PoolSizeSTT <= 0 {
		return fmt.Errorf("pool sizes must be positive")
	}
	if c.SpeechQueueMaxSize <= 0 {
		return fmt.Errorf("speech queue max size must be positive")
	}
	if c.MaxConcurrentAudioTask <= 0 {
		return fmt.Errorf("max concurrent audio tasks must be positive")
	}
	return nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
