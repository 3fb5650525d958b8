package config

import (
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"time"
)

// Prompt is one platform's generation template. Placeholders {platform},
// {tone}, {language} and {topic} are substituted at generation time.
type Prompt struct {
	Template string `json:"template"`
	Style    string `json:"style"`
}

// Config holds runtime configuration loaded from the environment.
type Config struct {
	TelegramToken string
	OpenAIToken   string
	OpenAIBaseURL string
	OpenAIModel   string
	DBConnString  string
	ChannelsPath  string
	PromptsFile   string
	Environment   string

	GenerationTimeout time.Duration
	TickWorkers       int

	Prompts map[string]Prompt
}

const defaultTemplate = "Write a short-form video script about {topic} for {platform}. " +
	"Use a {tone} tone and write in {language}. Include a hook in the first line."

// FromEnv loads configuration from environment variables. TELEGRAM_TOKEN
// is required. DATABASE_URL selects the Postgres backend; when empty the
// bot falls back to the JSON file at CHANNELS_FILE. OPENAI_TOKEN is
// optional — without it generation returns the rendered prompt itself.
func FromEnv() (*Config, error) {
	c := &Config{
		TelegramToken: os.Getenv("TELEGRAM_TOKEN"),
		OpenAIToken:   os.Getenv("OPENAI_TOKEN"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:   os.Getenv("OPENAI_MODEL"),
		DBConnString:  os.Getenv("DATABASE_URL"),
		ChannelsPath:  os.Getenv("CHANNELS_FILE"),
		PromptsFile:   os.Getenv("PROMPTS_FILE"),
		Environment:   os.Getenv("ENVIRONMENT"),
	}
	if c.TelegramToken == "" {
		return nil, errors.New("TELEGRAM_TOKEN is not set")
	}
	if c.ChannelsPath == "" {
		c.ChannelsPath = "channels.json"
	}
	if c.PromptsFile == "" {
		c.PromptsFile = "prompts.json"
	}
	if c.OpenAIBaseURL == "" {
		c.OpenAIBaseURL = "https://api.openai.com/v1"
	}
	if c.OpenAIModel == "" {
		c.OpenAIModel = "gpt-4o-mini"
	}
	c.GenerationTimeout = 25 * time.Second
	if v := os.Getenv("GENERATION_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.GenerationTimeout = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("TICK_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.TickWorkers = n
		}
	}
	if err := c.loadPrompts(); err != nil {
		return nil, err
	}
	return c, nil
}

// loadPrompts reads the prompt-template file. A missing file leaves the
// built-in default in place; a malformed one is an error.
func (c *Config) loadPrompts() error {
	c.Prompts = map[string]Prompt{"default": {Template: defaultTemplate}}
	file, err := os.Open(c.PromptsFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer file.Close()
	loaded := map[string]Prompt{}
	if err := json.NewDecoder(file).Decode(&loaded); err != nil {
		return err
	}
	for k, v := range loaded {
		c.Prompts[k] = v
	}
	return nil
}
