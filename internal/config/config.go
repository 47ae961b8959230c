package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/copyleftdev/scryshot/internal/runner"
)

type Config struct {
	Runner   RunnerConfig   `mapstructure:"runner"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Security SecurityConfig `mapstructure:"security"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

type RunnerConfig struct {
	BaseURL        string        `mapstructure:"baseURL"`
	ScenarioFile   string        `mapstructure:"scenarioFile"`
	ArtifactDir    string        `mapstructure:"artifactDir"`
	DefaultTimeout time.Duration `mapstructure:"defaultTimeout"`
	DeviceProfile  string        `mapstructure:"deviceProfile"`
	SharedContext  bool          `mapstructure:"sharedContext"`
	RunTimeout     time.Duration `mapstructure:"runTimeout"` // 0 means unbounded
}

type BrowserConfig struct {
	Backend        string        `mapstructure:"backend"` // chromedp, playwright, rod
	ExecutablePath string        `mapstructure:"executablePath"`
	Headless       bool          `mapstructure:"headless"`
	NoSandbox      bool          `mapstructure:"noSandbox"`
	LaunchTimeout  time.Duration `mapstructure:"launchTimeout"`
	MaxRuns        int           `mapstructure:"maxRuns"` // concurrent runs in serve mode
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"readTimeout"`
	WriteTimeout    time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout     time.Duration `mapstructure:"idleTimeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console, json
}

type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
	ApiKey         string   `mapstructure:"apiKey"`
}

type AuthConfig struct {
	TOTPSecret string `mapstructure:"totpSecret"` // base32; used for {{totp}} in type steps
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("runner.baseURL", "http://localhost:3000")
	v.SetDefault("runner.scenarioFile", "scenarios/app.yaml")
	v.SetDefault("runner.artifactDir", runner.DefaultArtifactDir)
	v.SetDefault("runner.defaultTimeout", runner.DefaultStepTimeout.String())
	v.SetDefault("runner.deviceProfile", "")
	v.SetDefault("runner.sharedContext", false)
	v.SetDefault("runner.runTimeout", "0s")

	v.SetDefault("browser.backend", "chromedp")
	v.SetDefault("browser.executablePath", "") // Attempt auto-detect if empty
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.noSandbox", false)
	v.SetDefault("browser.launchTimeout", runner.DefaultLaunchTimeout.String())
	v.SetDefault("browser.maxRuns", 2)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", "15s")
	v.SetDefault("server.writeTimeout", "15s")
	v.SetDefault("server.idleTimeout", "60s")
	v.SetDefault("server.shutdownTimeout", "30s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("security.allowedOrigins", []string{"*"}) // Be more specific in production
	v.SetDefault("security.apiKey", "")                    // Should be set via env or secure means

	v.SetDefault("auth.totpSecret", "")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.scryshot")
		v.AddConfigPath("/etc/scryshot")
	}

	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("SCRYSHOT")

	err := v.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	err = v.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// RunnerOptions converts the runner and browser sections into run options.
func (c *Config) RunnerOptions() runner.Options {
	return runner.Options{
		Headful:        !c.Browser.Headless,
		DefaultTimeout: c.Runner.DefaultTimeout,
		ArtifactDir:    c.Runner.ArtifactDir,
		DeviceProfile:  c.Runner.DeviceProfile,
		SharedContext:  c.Runner.SharedContext,
		ExecutablePath: c.Browser.ExecutablePath,
		NoSandbox:      c.Browser.NoSandbox,
		LaunchTimeout:  c.Browser.LaunchTimeout,
		TOTPSecret:     c.Auth.TOTPSecret,
	}
}
