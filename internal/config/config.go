package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"
)

type Config struct {
	DebugMode bool `env:"DEBUG_MODE"` // Режим дебага: development-логгер и уровень debug

	// OpenAI
	APIKey         string        `env:"OPENAI_API_KEY"`         // Ключ API, обязателен
	BaseURL        string        `env:"OPENAI_BASE_URL"`        // Адрес API; пусто: https://api.openai.com/v1/
	RequestTimeout time.Duration `env:"OPENAI_REQUEST_TIMEOUT"` // Таймаут одного HTTP-запроса; 0 без ограничения

	// Ассистент
	Assistant AssistantConfig

	// Опрос запуска
	PollInterval time.Duration `env:"POLL_INTERVAL"` // Пауза перед каждым опросом статуса
	PollTimeout  time.Duration `env:"POLL_TIMEOUT"`  // Сколько всего ждать завершения запуска

	// ProfilePath путь к YAML-профилю ассистента (опционально), перекрывает поля Assistant.
	ProfilePath string `env:"ASSISTANT_PROFILE"`

	// NotificationSoundPath mp3/wav, проигрываемый при ответе ассистента; пусто: без звука.
	NotificationSoundPath string `env:"NOTIFICATION_SOUND_PATH"`
}

// UsageOutput куда печатается справка по флагам (-h).
var UsageOutput io.Writer = os.Stderr

// AssistantConfig параметры создаваемого ассистента и его запусков.
type AssistantConfig struct {
	Model           string `env:"ASSISTANT_MODEL"`
	Name            string `env:"ASSISTANT_NAME"`
	Instructions    string `env:"ASSISTANT_INSTRUCTIONS"`
	RunInstructions string `env:"RUN_INSTRUCTIONS"` // Инструкции конкретного запуска; пусто: инструкции ассистента
}

// Defaults возвращает конфигурацию с предустановленными значениями по умолчанию.
// Эти значения перекрываются .env, переменными окружения, флагами CLI и профилем.
func Defaults() *Config {
	return &Config{
		DebugMode: false,
		Assistant: AssistantConfig{
			Model:           "gpt-3.5-turbo",
			Name:            "MiAsistente",
			Instructions:    "Это мой личный ассистент. Отвечай кратко и по делу.",
			RunInstructions: "Отвечай как эксперт в самых разных темах.",
		},
		PollInterval: 5 * time.Second,
		PollTimeout:  10 * time.Minute,
	}
}

// Load собирает конфигурацию: Defaults → .env → окружение → флаги args → профиль.
// На -h/-help печатает справку в UsageOutput и возвращает ошибку, оборачивающую flag.ErrHelp.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fs := flag.NewFlagSet("assistant-chat", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	bindFlags(fs, cfg)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.SetOutput(UsageOutput)
			_, _ = fmt.Fprintf(UsageOutput, "Usage of %s:\n", fs.Name())
			fs.PrintDefaults()
		}
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if p := strings.TrimSpace(cfg.ProfilePath); p != "" {
		profile, err := LoadProfile(p)
		if err != nil {
			return nil, err
		}
		profile.Apply(&cfg.Assistant)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func bindFlags(fs *flag.FlagSet, cfg *Config) {
	fs.BoolVar(&cfg.DebugMode, "debug-mode", cfg.DebugMode, "включить режим дебага")
	fs.StringVar(&cfg.BaseURL, "openai-base-url", cfg.BaseURL, "адрес OpenAI API (по умолчанию https://api.openai.com/v1/)")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "таймаут одного HTTP-запроса, напр. 30s; 0 без ограничения")
	fs.StringVar(&cfg.Assistant.Model, "assistant-model", cfg.Assistant.Model, "модель ассистента")
	fs.StringVar(&cfg.Assistant.Name, "assistant-name", cfg.Assistant.Name, "имя ассистента")
	fs.StringVar(&cfg.Assistant.Instructions, "assistant-instructions", cfg.Assistant.Instructions, "инструкции ассистента")
	fs.StringVar(&cfg.Assistant.RunInstructions, "run-instructions", cfg.Assistant.RunInstructions, "инструкции для каждого запуска")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "пауза перед каждым опросом статуса запуска")
	fs.DurationVar(&cfg.PollTimeout, "poll-timeout", cfg.PollTimeout, "максимальное ожидание завершения запуска")
	fs.StringVar(&cfg.ProfilePath, "assistant-profile", cfg.ProfilePath, "путь к YAML-профилю ассистента")
	fs.StringVar(&cfg.NotificationSoundPath, "notification-sound-path", cfg.NotificationSoundPath, "звук (mp3/wav) при ответе ассистента; пусто: без звука")
}

func (c *Config) normalize() {
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	c.NotificationSoundPath = strings.TrimSpace(c.NotificationSoundPath)
	c.Assistant.Model = strings.TrimSpace(c.Assistant.Model)
	c.Assistant.Name = strings.TrimSpace(c.Assistant.Name)
}

// Validate проверяет обязательные поля и возвращает все найденные ошибки разом.
func (c *Config) Validate() error {
	var err error
	if c.APIKey == "" {
		err = multierr.Append(err, errors.New("OPENAI_API_KEY is not set"))
	}
	if c.Assistant.Model == "" {
		err = multierr.Append(err, errors.New("assistant model is not set"))
	}
	if c.PollInterval <= 0 {
		err = multierr.Append(err, fmt.Errorf("poll interval must be positive, got %s", c.PollInterval))
	}
	if c.PollTimeout < c.PollInterval {
		err = multierr.Append(err, fmt.Errorf("poll timeout %s is shorter than poll interval %s", c.PollTimeout, c.PollInterval))
	}
	if c.RequestTimeout < 0 {
		err = multierr.Append(err, fmt.Errorf("request timeout must not be negative, got %s", c.RequestTimeout))
	}
	return err
}
