// Package configloader loads the service configuration from layered sources:
// a YAML file, a .env file and environment variables, in increasing priority.
package configloader

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const configFile = "config.yaml"

// Validator is implemented by configuration structs that can check themselves.
type Validator interface {
	Validate() error
}

// Load reads config.yaml, .env and environment variables prefixed with
// <SERVICENAME>_ into a fresh T, then validates it. Later sources override
// earlier ones.
func Load[T Validator](serviceName string) (T, error) {
	var cfg T

	envPrefix := strings.ToUpper(serviceName) + "_"
	// Environment keys map to config paths: CATALOG_DATABASE_URL -> database.url
	keyOf := func(envKey string) string {
		key := strings.ToLower(envKey)
		key = strings.TrimPrefix(key, strings.ToLower(envPrefix))
		return strings.ReplaceAll(key, "_", ".")
	}

	k := koanf.New(".")
	loadYAMLFile(k)
	loadDotEnv(k, keyOf)
	loadEnviron(k, envPrefix, keyOf)

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("error unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadYAMLFile reads the optional config.yaml, the lowest priority source.
func loadYAMLFile(k *koanf.Koanf) {
	if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil && !os.IsNotExist(err) {
		log.Printf("WARN: error loading YAML config file %q: %v", configFile, err)
	}
}

// loadDotEnv reads the optional .env file and maps its keys to config paths.
func loadDotEnv(k *koanf.Koanf, keyOf func(string) string) {
	envFile, err := godotenv.Read(".env")
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("WARN: error reading .env file: %v", err)
		}
		return
	}
	envMap := make(map[string]any, len(envFile))
	for key, value := range envFile {
		envMap[keyOf(key)] = value
	}
	if err := k.Load(confmap.Provider(envMap, "."), nil); err != nil {
		log.Printf("WARN: error loading .env config: %v", err)
	}
}

// loadEnviron reads prefixed system environment variables, the highest
// priority source.
func loadEnviron(k *koanf.Koanf, envPrefix string, keyOf func(string) string) {
	if err := k.Load(env.Provider(envPrefix, ".", keyOf), nil); err != nil {
		log.Printf("WARN: error loading system env vars: %v", err)
	}
}
