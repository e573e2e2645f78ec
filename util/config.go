package util

import (
	_ "embed"
	"fmt"
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const Name = "constellate"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host      string
		HttpPort  int    `yaml:"httpPort"`
		SslDomain string `yaml:"sslDomain"`
		WithAp    bool   `yaml:"withAp"`
		Journald  bool   `yaml:"journald"`
		Pprof     bool   `yaml:"pprof"`
		Closed    bool   `yaml:"closed"`
	}
}

// BaseURL returns the public https base URL of this instance, without a
// trailing slash
func (c *AppConfig) BaseURL() string {
	return "https://" + c.Conf.SslDomain
}

func ReadConf() (*AppConfig, error) {

	c := &AppConfig{}

	// Try to resolve config file path (local first, then user dir)
	configPath := ResolveFilePath(ConfigFileName)

	var buf []byte
	var err error

	buf, err = os.ReadFile(configPath)
	if err != nil {
		// If file doesn't exist, use embedded config and create user config file
		log.Printf("Config file not found at %s, using embedded defaults", configPath)
		buf = embeddedConfig

		configDir, dirErr := GetConfigDir()
		if dirErr == nil {
			userConfigPath := configDir + "/" + ConfigFileName
			writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644)
			if writeErr != nil {
				log.Printf("Warning: could not write default config to %s: %v", userConfigPath, writeErr)
			} else {
				log.Printf("Created default config file at %s", userConfigPath)
			}
		}
	}

	err = yaml.Unmarshal(buf, c)
	if err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	envHost := os.Getenv("CONSTELLATE_HOST")
	envHttpPort := os.Getenv("CONSTELLATE_HTTPPORT")
	envSslDomain := os.Getenv("CONSTELLATE_SSLDOMAIN")
	envWithAp := os.Getenv("CONSTELLATE_WITH_AP")
	envJournald := os.Getenv("CONSTELLATE_JOURNALD")
	envPprof := os.Getenv("CONSTELLATE_PPROF")
	envClosed := os.Getenv("CONSTELLATE_CLOSED")

	if envHost != "" {
		c.Conf.Host = envHost
	}

	if envHttpPort != "" {
		v, err := strconv.Atoi(envHttpPort)
		if err != nil {
			log.Printf("Ignoring CONSTELLATE_HTTPPORT %q: %v", envHttpPort, err)
		} else {
			c.Conf.HttpPort = v
		}
	}

	if envSslDomain != "" {
		c.Conf.SslDomain = envSslDomain
	}

	if envWithAp == "true" {
		c.Conf.WithAp = true
	}

	if envJournald == "true" {
		c.Conf.Journald = true
	}

	if envPprof == "true" {
		c.Conf.Pprof = true
	}

	if envClosed == "true" {
		c.Conf.Closed = true
	}

	return c, nil
}
