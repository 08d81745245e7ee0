package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultBaseURL = "https://cakto-qa-eval.launchify.com.br"
	envPrefix      = "APITESTER"
)

type Report struct {
	OutputDir   string `mapstructure:"output_dir"`
	ResultsFile string `mapstructure:"results_file"`
	BugsFile    string `mapstructure:"bugs_file"`
	ExcelPath   string `mapstructure:"excel_path"` // empty disables the xlsx report
}

type Metrics struct {
	Textfile string `mapstructure:"textfile"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type Config struct {
	BaseURL       string        `mapstructure:"base_url"`
	UserAgent     string        `mapstructure:"user_agent"`
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`
	Report        Report        `mapstructure:"report"`
	Metrics       Metrics       `mapstructure:"metrics"`
	Log           Log           `mapstructure:"log"`
}

// Load reads the yaml file at path when it exists and applies APITESTER_*
// environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", DefaultBaseURL)
	v.SetDefault("user_agent", "userapi-tester/1.0")
	v.SetDefault("slow_threshold", "5s")

	v.SetDefault("report.output_dir", ".")
	v.SetDefault("report.results_file", "test-results.json")
	v.SetDefault("report.bugs_file", "bugs-found.json")
	v.SetDefault("report.excel_path", "")

	v.SetDefault("metrics.textfile", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)
}

func (c *Config) validate() error {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		return errors.New("config: base_url is empty")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("config: base_url %q must start with http:// or https://", c.BaseURL)
	}
	if c.SlowThreshold <= 0 {
		return fmt.Errorf("config: slow_threshold must be positive, got %s", c.SlowThreshold)
	}
	if c.Report.ResultsFile == "" || c.Report.BugsFile == "" {
		return errors.New("config: report file names must not be empty")
	}
	return nil
}
