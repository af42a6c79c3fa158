package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yml
var embeddedConfig []byte

type Config struct {
	Mode   string `mapstructure:"mode"`
	Server struct {
		HTTPPort string        `mapstructure:"HTTPPort"`
		Timeout  time.Duration `mapstructure:"HTTPTimeout"`
	} `mapstructure:"server"`
	CORS struct {
		AllowedOrigins []string `mapstructure:"allowedOrigins"`
	} `mapstructure:"cors"`
	Cache struct {
		LocalCapacity int           `mapstructure:"localCapacity"`
		LocalTTL      time.Duration `mapstructure:"localTTL"`
		DiscoverTTL   time.Duration `mapstructure:"discoverTTL"`
		POITTL        time.Duration `mapstructure:"poiTTL"`
	} `mapstructure:"cache"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	LLM struct {
		GroqModel       string        `mapstructure:"groqModel"`
		GroqBaseURL     string        `mapstructure:"groqBaseURL"`
		GeminiModel     string        `mapstructure:"geminiModel"`
		PrimaryTimeout  time.Duration `mapstructure:"primaryTimeout"`
		FallbackTimeout time.Duration `mapstructure:"fallbackTimeout"`
	} `mapstructure:"llm"`
	Providers struct {
		NominatimBaseURL   string `mapstructure:"nominatimBaseURL"`
		PhotonBaseURL      string `mapstructure:"photonBaseURL"`
		OverpassBaseURL    string `mapstructure:"overpassBaseURL"`
		OSRMBaseURL        string `mapstructure:"osrmBaseURL"`
		WikipediaActionURL string `mapstructure:"wikipediaActionURL"`
		WikipediaRestURL   string `mapstructure:"wikipediaRestURL"`
		CommonsURL         string `mapstructure:"commonsURL"`
		UserAgent          string `mapstructure:"userAgent"`
	} `mapstructure:"providers"`
}

func InitConfig() (Config, error) {
	var config Config
	v := viper.New()

	// Add file-based config paths
	v.AddConfigPath(".")
	v.AddConfigPath("config")
	v.AddConfigPath("/app/config")

	v.SetConfigName("config")
	v.SetConfigType("yml")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Try to load file-based config
	err := v.ReadInConfig()
	if err != nil {
		fmt.Printf("Warning: Failed to find file-based config: %s. Falling back to embedded config.\n", err)
		if err = v.ReadConfig(bytes.NewReader(embeddedConfig)); err != nil {
			return Config{}, fmt.Errorf("failed to read embedded config: %s", err)
		}
	}

	// Unmarshal the config into the Config struct
	if err = v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %s", err)
	}
	return config, nil
}
