package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	MySQL struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
	} `yaml:"redis"`
	Provider struct {
		BaseURL      string `yaml:"base_url"`
		APIKey       string `yaml:"api_key"`
		VideoModel   string `yaml:"video_model"`
		TTSModel     string `yaml:"tts_model"`
		PollInterval int    `yaml:"poll_interval_sec"`
		MaxTaskAge   int    `yaml:"max_task_age_sec"`
	} `yaml:"provider"`
	MinIO struct {
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Bucket    string `yaml:"bucket"`
		UseSSL    bool   `yaml:"use_ssl"`
		Domain    string `yaml:"domain"`
	} `yaml:"minio"`
	Storage struct {
		WorkDir string `yaml:"work_dir"`
	} `yaml:"storage"`
}

var AppConfig *Config

func InitConfig() {
	f, err := os.Open("config/config.yaml")
	if err != nil {
		log.Fatalf("failed to read config file: %v", err)
	}
	defer f.Close()
	decoder := yaml.NewDecoder(f)
	AppConfig = &Config{}
	if err := decoder.Decode(AppConfig); err != nil {
		log.Fatalf("failed to parse config file: %v", err)
	}
	if AppConfig.Provider.PollInterval <= 0 {
		AppConfig.Provider.PollInterval = 5
	}
	if AppConfig.Provider.MaxTaskAge <= 0 {
		AppConfig.Provider.MaxTaskAge = 1800
	}
	if AppConfig.Storage.WorkDir == "" {
		AppConfig.Storage.WorkDir = os.TempDir()
	}
}

// PollInterval is the fixed delay between poller sweeps, identical across job kinds.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Provider.PollInterval) * time.Second
}

// MaxTaskAge is the wall-clock limit after which a pending task is force-failed.
func (c *Config) MaxTaskAge() time.Duration {
	return time.Duration(c.Provider.MaxTaskAge) * time.Second
}
