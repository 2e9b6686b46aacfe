package config

import (
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log    Log    `yaml:"log"`
	DB     DB     `yaml:"db"`
	Redis  Redis  `yaml:"redis"`
	OpenAI OpenAI `yaml:"openai"`
	Agent  Agent  `yaml:"agent"`
	Server Server `yaml:"server"`
}

type OpenAI struct {
	Planner ModelConfig `yaml:"planner" validate:"required"`
	Writer  ModelConfig `yaml:"writer" validate:"required"`
}

type ModelConfig struct {
	// OpenAI base url
	BaseURL string `yaml:"base_url" example:"https://api.openai.com/v1" validate:"required"`
	// OpenAI token
	Token string `yaml:"token" example:"sk-proj-abc123456789DEF789ghi012JKL345mno678PQR901stu234VWX" validate:"required"`
	// OpenAI model
	Model string `yaml:"model" example:"gpt-4o-mini" validate:"required"`
}

type Agent struct {
	// Persona name used in prompts
	Name string `yaml:"name" example:"編集者エージェント"`
	// Maximum number of question/answer rounds before a draft is forced
	MaxRounds int `yaml:"max_rounds" example:"12" validate:"min=1"`
	// Number of log messages fed to free-form chat turns
	ChatHistorySize int `yaml:"chat_history_size" example:"20"`
}

type Log struct {
	// Minimum console log level: debug, info, warn or error
	Level string `yaml:"level" example:"debug" validate:"omitempty,oneof=debug info warn error"`
	// Telegram logging config
	Telegram TelegramLog `yaml:"telegram"`
}

type TelegramLog struct {
	// Chat bot token, obtain it via BotFather
	Token string `yaml:"token" example:"1234567890:ABCdefGHIjklMNopQRstUVwxyZ-123456789"`
	// Chat ID to send messages to
	ChatID string `yaml:"chat_id" example:"1001234567890"`
}

type DB struct {
	// Path to the sqlite database file
	Path string `yaml:"path" example:"data/book-agent.db"`
}

type Redis struct {
	// Redis address, empty disables the cache mirror
	Addr string `yaml:"addr" example:"localhost:6379"`
	// Redis password
	Pass string `yaml:"pass"`
	// Redis database number
	DB int `yaml:"db" example:"0"`
}

type Server struct {
	// HTTP listen address
	Addr string `yaml:"addr" example:":8080"`
}

func Load() (*Config, error) {
	var result Config

	data, err := os.ReadFile("config.yaml")
	if err != nil {
		return nil, oops.Errorf("failed to read config file: %w", err)
	}

	if err = yaml.Unmarshal(data, &result); err != nil {
		return nil, oops.Errorf("failed to parse YAML config: %w", err)
	}

	if result.DB.Path == "" {
		result.DB.Path = "data/book-agent.db"
	}
	if result.Agent.Name == "" {
		result.Agent.Name = "編集者エージェント"
	}
	if result.Agent.MaxRounds == 0 {
		result.Agent.MaxRounds = 12
	}
	if result.Agent.ChatHistorySize == 0 {
		result.Agent.ChatHistorySize = 20
	}
	if result.Server.Addr == "" {
		result.Server.Addr = ":8080"
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(result); err != nil {
		return nil, oops.Errorf("failed to validate config: %w", err)
	}

	return &result, nil
}
