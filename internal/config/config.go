// Package config loads process settings from the environment, with an
// optional .env file in the working directory.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const Prefix = "PEERCHAT"

type Config struct {
	AppID       string   `envconfig:"APP_ID" default:"peer-chat" validate:"required,max=64"`
	TrackerAddr string   `envconfig:"TRACKER_ADDR" default:"localhost:8080" validate:"required,hostname_port"`
	ListenAddr  string   `envconfig:"LISTEN_ADDR" default:":8080" validate:"required"`
	STUNServers []string `envconfig:"STUN_SERVERS" validate:"dive,startswith=stun:|startswith=turn:"`
	LogLevel    string   `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn warning error"`
	ArchivePath string   `envconfig:"ARCHIVE_PATH"`
}

var validate = validator.New()

// Load reads .env if present, then PEERCHAT_* variables. Variables already
// set in the environment win over the file.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("reading environment: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
