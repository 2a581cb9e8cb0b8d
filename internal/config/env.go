package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// environment lists the variables consulted when the config file leaves a
// value empty.
type environment struct {
	APIURL    string `env:"IMMICH_API_URL"`
	APIKey    string `env:"IMMICH_API_KEY"`
	DeviceID  string `env:"IMMICH_DEVICE_ID"`
	LogLevel  string `env:"IMMICH_TAKEOUT_LOG_LEVEL"`
	StatePath string `env:"IMMICH_TAKEOUT_STATE"`
}

// loadDotEnv populates the process environment from path without replacing
// variables that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func readEnvironment() (environment, error) {
	var values environment
	if err := env.Parse(&values); err != nil {
		return environment{}, fmt.Errorf("parse environment: %w", err)
	}
	return values, nil
}

// EnvVar is one variable that fills a value the config file leaves empty.
type EnvVar struct {
	Name string
	Set  bool
}

// EnvironmentVariables lists the consulted variables and whether each is set
// to a non-empty value in the process environment.
func EnvironmentVariables() []EnvVar {
	typ := reflect.TypeOf(environment{})
	vars := make([]EnvVar, 0, typ.NumField())
	for i := 0; i < typ.NumField(); i++ {
		name := typ.Field(i).Tag.Get("env")
		if name == "" {
			continue
		}
		vars = append(vars, EnvVar{Name: name, Set: os.Getenv(name) != ""})
	}
	return vars
}
