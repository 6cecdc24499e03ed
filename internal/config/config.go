package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

type Config struct {
	TasksFile      string        `mapstructure:"tasks_file"`
	StateDSN       string        `mapstructure:"state_dsn"`
	Interval       time.Duration `mapstructure:"interval"`
	IntervalJitter float64       `mapstructure:"interval_jitter"`
	SendDelay      time.Duration `mapstructure:"send_delay"`
	WatchTasks     bool          `mapstructure:"watch_tasks"`
	Google         struct {
		CredentialsFile string `mapstructure:"credentials_file"`
		TokenFile       string `mapstructure:"token_file"`
	} `mapstructure:"google"`
	SMTP struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
	} `mapstructure:"smtp"`
	S3 struct {
		Endpoint  string `mapstructure:"endpoint"`
		AccessKey string `mapstructure:"access_key"`
		SecretKey string `mapstructure:"secret_key"`
		Secure    bool   `mapstructure:"secure"`
	} `mapstructure:"s3"`
	Status struct {
		Addr  string `mapstructure:"addr"`
		Token string `mapstructure:"token"`
	} `mapstructure:"status"`
	Log struct {
		Env  string `mapstructure:"env"`
		File string `mapstructure:"file"`
		Mode string `mapstructure:"mode"`
	} `mapstructure:"log"`
}

var Module = fx.Module("config", fx.Provide(LoadDefault))

const envPrefix = "AUTOMPP"

var defaults = map[string]any{
	"tasks_file":              "task_log.json",
	"state_dsn":               "headless_state.json",
	"interval":                60 * time.Second,
	"interval_jitter":         0.0,
	"send_delay":              time.Second,
	"watch_tasks":             false,
	"google.credentials_file": "credentials.json",
	"google.token_file":       "token.json",
	"smtp.host":               "smtp.gmail.com",
	"smtp.port":               465,
	"smtp.username":           "",
	"smtp.password":           "",
	"s3.endpoint":             "",
	"s3.access_key":           "",
	"s3.secret_key":           "",
	"s3.secure":               true,
	"status.addr":             "",
	"status.token":            "",
	"log.env":                 "development",
	"log.file":                "automation.log",
	"log.mode":                "headless",
}

// LoadDefault reads ./config.yaml when present.
func LoadDefault() (*Config, error) {
	return Load("")
}

// Load resolves settings from, in increasing precedence: defaults, the
// config file, the .env file and the process environment. configFile may be
// empty to look for config.yaml in the working directory.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Variable names the original scripts used.
	if err := v.BindEnv("smtp.username", envPrefix+"_SMTP_USERNAME", "AUTOMATION_SMTP_EMAIL"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("smtp.password", envPrefix+"_SMTP_PASSWORD", "AUTOMATION_SMTP_PASSWORD"); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	return &cfg, nil
}
