// Package config loads daemon settings. Precedence, lowest first: defaults,
// the YAML file, environment variables, command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	cli "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Remote extraction backends.
const (
	BackendOpenAI = "openai"
	BackendCompat = "compat"
	BackendOff    = "off"
)

// Audio inputs other than a file path.
const InputMic = "mic"

var LogLevels = []string{"debug", "info", "warn", "error"}

type Config struct {
	LogLevel string `yaml:"log_level"`
	Socket   string `yaml:"socket"`

	Remote       RemoteConfig       `yaml:"remote"`
	Recognition  RecognitionConfig  `yaml:"recognition"`
	Speech       SpeechConfig       `yaml:"speech"`
	Presentation PresentationConfig `yaml:"presentation"`
	Hub          HubConfig          `yaml:"hub"`
}

type RemoteConfig struct {
	Backend  string        `yaml:"backend"`
	APIKey   string        `yaml:"api_key"`
	BaseURL  string        `yaml:"base_url"`
	Model    string        `yaml:"model"`
	Proxy    string        `yaml:"proxy"`
	Timeout  time.Duration `yaml:"timeout"`
	MaxTurns int           `yaml:"max_turns"`
}

type RecognitionConfig struct {
	Input         string        `yaml:"input"` // "mic" or an audio file
	Model         string        `yaml:"model"` // whisper ggml model
	Language      string        `yaml:"language"`
	Threads       int           `yaml:"threads"`
	Threshold     float64       `yaml:"threshold"`
	SilenceWindow time.Duration `yaml:"silence_window"`
	RestartDelay  time.Duration `yaml:"restart_delay"`
	AutoListen    bool          `yaml:"auto_listen"`
}

type SpeechConfig struct {
	Muted      bool          `yaml:"muted"`
	Voices     []string      `yaml:"voices"`
	Pitch      float64       `yaml:"pitch"`
	Rate       float64       `yaml:"rate"`
	Settle     time.Duration `yaml:"settle"`
	Cue        string        `yaml:"cue"`
	Duck       bool          `yaml:"duck"`
	DuckFactor float64       `yaml:"duck_factor"`
}

type PresentationConfig struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
	Peer string `yaml:"peer"`
}

type HubConfig struct {
	URL    string `yaml:"url"`
	Shard  string `yaml:"shard"`
	Target string `yaml:"target"`
}

func Default() *Config {
	return &Config{
		LogLevel: "info",
		Socket:   "/tmp/homevox.sock",
		Remote: RemoteConfig{
			Backend:  BackendOpenAI,
			Model:    "gpt-5-nano",
			Timeout:  30 * time.Second,
			MaxTurns: 20,
		},
		Recognition: RecognitionConfig{
			Input:         InputMic,
			Model:         "third_party/whisper.cpp/models/ggml-base.en.bin",
			Language:      "en",
			Threshold:     0.015,
			SilenceWindow: 3 * time.Second,
			RestartDelay:  250 * time.Millisecond,
		},
		Speech: SpeechConfig{
			Pitch:      1.0,
			Rate:       1.0,
			Settle:     500 * time.Millisecond,
			DuckFactor: 0.3,
		},
		Presentation: PresentationConfig{
			Name: "homevox",
			Peer: "ui",
		},
		Hub: HubConfig{
			Shard:  "homevox",
			Target: "VERTEX",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and the environment. Flags are applied separately.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LogLevel = getEnv("HOMEVOX_LOG", c.LogLevel)
	c.Socket = getEnv("HOMEVOX_SOCKET", c.Socket)

	c.Remote.Backend = getEnv("HOMEVOX_BACKEND", c.Remote.Backend)
	c.Remote.APIKey = getEnv("OPENAI_API_KEY", c.Remote.APIKey)
	c.Remote.BaseURL = getEnv("HOMEVOX_BASE_URL", c.Remote.BaseURL)
	c.Remote.Model = getEnv("HOMEVOX_MODEL", c.Remote.Model)
	c.Remote.Proxy = getEnv("HOMEVOX_PROXY", c.Remote.Proxy)
	c.Remote.Timeout = getEnvDuration("HOMEVOX_TIMEOUT", c.Remote.Timeout)

	c.Recognition.Input = getEnv("HOMEVOX_INPUT", c.Recognition.Input)
	c.Recognition.Model = getEnv("HOMEVOX_WHISPER_MODEL", c.Recognition.Model)
	c.Recognition.Language = getEnv("HOMEVOX_LANGUAGE", c.Recognition.Language)
	c.Recognition.AutoListen = getEnvBool("HOMEVOX_AUTO_LISTEN", c.Recognition.AutoListen)

	c.Speech.Muted = getEnvBool("HOMEVOX_MUTED", c.Speech.Muted)

	c.Presentation.URL = getEnv("HOMEVOX_BUS_URL", c.Presentation.URL)
	c.Hub.URL = getEnv("HOMEVOX_HUB_URL", c.Hub.URL)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains(LogLevels, c.LogLevel) {
		errs = append(errs, fmt.Errorf("log level %q is not one of %s", c.LogLevel, strings.Join(LogLevels, ", ")))
	}
	if c.Socket == "" {
		errs = append(errs, errors.New("socket path cannot be empty"))
	}

	switch c.Remote.Backend {
	case BackendOpenAI, BackendOff:
	case BackendCompat:
		if c.Remote.BaseURL == "" {
			errs = append(errs, errors.New("compat backend needs a base url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Remote.Backend))
	}
	if c.Remote.Backend != BackendOff && c.Remote.Model == "" {
		errs = append(errs, errors.New("model cannot be empty"))
	}
	if c.Remote.MaxTurns < 0 {
		errs = append(errs, errors.New("max turns must be >= 0"))
	}

	if c.Recognition.Input == "" {
		errs = append(errs, errors.New("recognition input cannot be empty"))
	}
	if c.Recognition.Model == "" {
		errs = append(errs, errors.New("whisper model cannot be empty"))
	}
	if c.Recognition.SilenceWindow <= 0 {
		errs = append(errs, errors.New("silence window must be > 0"))
	}
	if c.Recognition.RestartDelay <= 0 {
		errs = append(errs, errors.New("restart delay must be > 0"))
	}

	if c.Speech.Pitch < 0 || c.Speech.Pitch > 2 {
		errs = append(errs, fmt.Errorf("pitch %.2f out of range 0-2", c.Speech.Pitch))
	}
	if c.Speech.Rate < 0.1 || c.Speech.Rate > 10 {
		errs = append(errs, fmt.Errorf("rate %.2f out of range 0.1-10", c.Speech.Rate))
	}
	if c.Speech.Settle < 0 {
		errs = append(errs, errors.New("settle delay must be >= 0"))
	}
	if c.Speech.DuckFactor < 0 || c.Speech.DuckFactor > 1 {
		errs = append(errs, fmt.Errorf("duck factor %.2f out of range 0-1", c.Speech.DuckFactor))
	}

	if c.Hub.URL != "" && (c.Hub.Shard == "" || c.Hub.Target == "") {
		errs = append(errs, errors.New("hub needs a shard and a target"))
	}

	return errors.Join(errs...)
}

// Flags are the command line overrides.
type Flags struct {
	fs *cli.FlagSet

	logLevel *string
	socket   *string
	backend  *string
	model    *string
	baseURL  *string
	proxy    *string
	input    *string
	whisper  *string
	busURL   *string
	hubURL   *string
	muted    *bool
	listen   *bool
}

// RegisterFlags adds the override flags to fs. Defaults shown in help come
// from Default.
func RegisterFlags(fs *cli.FlagSet) *Flags {
	d := Default()
	return &Flags{
		fs:       fs,
		logLevel: fs.StringP("log", "l", d.LogLevel, "Log level ("+strings.Join(LogLevels, "|")+")"),
		socket:   fs.StringP("socket", "s", d.Socket, "Control socket path"),
		backend:  fs.String("backend", d.Remote.Backend, "Extraction backend (openai|compat|off)"),
		model:    fs.StringP("model", "m", d.Remote.Model, "Chat model"),
		baseURL:  fs.String("base-url", "", "Base URL of an OpenAI compatible server"),
		proxy:    fs.StringP("proxy", "p", "", "Socks proxy address"),
		input:    fs.StringP("input", "i", d.Recognition.Input, "Audio input: mic or a wav/mp3/ogg file"),
		whisper:  fs.StringP("whisper", "w", d.Recognition.Model, "Whisper model path"),
		busURL:   fs.StringP("url", "u", "", "UI bus websocket URL"),
		hubURL:   fs.String("hub", "", "Device hub websocket URL"),
		muted:    fs.Bool("mute", false, "Start with speech output muted"),
		listen:   fs.Bool("listen", false, "Start listening at boot"),
	}
}

// Apply copies the flags that were set on the command line into c.
func (f *Flags) Apply(c *Config) {
	f.fs.Visit(func(fl *cli.Flag) {
		switch fl.Name {
		case "log":
			c.LogLevel = *f.logLevel
		case "socket":
			c.Socket = *f.socket
		case "backend":
			c.Remote.Backend = *f.backend
		case "model":
			c.Remote.Model = *f.model
		case "base-url":
			c.Remote.BaseURL = *f.baseURL
		case "proxy":
			c.Remote.Proxy = *f.proxy
		case "input":
			c.Recognition.Input = *f.input
		case "whisper":
			c.Recognition.Model = *f.whisper
		case "url":
			c.Presentation.URL = *f.busURL
		case "hub":
			c.Hub.URL = *f.hubURL
		case "mute":
			c.Speech.Muted = *f.muted
		case "listen":
			c.Recognition.AutoListen = *f.listen
		}
	})
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
		return d
	}
	if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
