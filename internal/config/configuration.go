package config

import (
	"encoding/json"
	"fmt"
	"os"
)

const ConfigurationTemplate = `{
  "server_port": 8080,
  "log_directory_path": "./logs",
  "log_severity_level": "INFO",
  "authentication_secret": "CHANGE_ME",
  "default_expected_elements": 10000,
  "default_false_positive_rate": 0.01,
  "default_hash_method": "MD5",
  "default_counting_bits": 16,
  "default_charset": "UTF-8",
  "redis_host": "",
  "redis_port": 6379,
  "redis_connections": 10,
  "read_slaves": [],
  "redis_expire_at_epoch_seconds": 0,
  "overwrite_if_exists": false
}`

const (
	DefaultServerPort           = 8080
	DefaultRedisPort            = 6379
	DefaultRedisConnections     = 10
	DefaultExpectedElements     = 10000
	DefaultFalsePositiveRate    = 0.01
	DefaultCountingBitsPerEntry = 16
)

type SystemConfiguration struct {
	ServerPort           int    `json:"server_port"`
	LogDirectoryPath     string `json:"log_directory_path"`
	LogSeverityLevel     string `json:"log_severity_level"`
	AuthenticationToken  string `json:"authentication_token"`
	AuthenticationSecret string `json:"authentication_secret"`

	DefaultExpectedElements  int     `json:"default_expected_elements"`
	DefaultFalsePositiveRate float64 `json:"default_false_positive_rate"`
	DefaultHashMethod        string  `json:"default_hash_method"`
	DefaultCountingBits      int     `json:"default_counting_bits"`
	DefaultCharset           string  `json:"default_charset"`

	RedisHost                 string   `json:"redis_host"`
	RedisPort                 int      `json:"redis_port"`
	RedisConnections          int      `json:"redis_connections"`
	ReadSlaves                []string `json:"read_slaves"`
	RedisExpireAtEpochSeconds int64    `json:"redis_expire_at_epoch_seconds"`
	OverwriteIfExists         bool     `json:"overwrite_if_exists"`
}

func LoadConfigurationFromFile(filePath string) (SystemConfiguration, error) {
	config := SystemConfiguration{
		ServerPort:               DefaultServerPort,
		LogDirectoryPath:         "./logs",
		LogSeverityLevel:         "INFO",
		AuthenticationSecret:     "DEFAULT_SECRET_CHANGE_ME_IN_PROD",
		DefaultExpectedElements:  DefaultExpectedElements,
		DefaultFalsePositiveRate: DefaultFalsePositiveRate,
		DefaultHashMethod:        "MD5",
		DefaultCountingBits:      DefaultCountingBitsPerEntry,
		DefaultCharset:           "UTF-8",
		RedisPort:                DefaultRedisPort,
		RedisConnections:         DefaultRedisConnections,
	}

	if filePath != "" {
		file, err := os.Open(filePath)
		if err != nil {
			return config, fmt.Errorf("failed to open configuration file: %w", err)
		}
		defer file.Close()

		if err := json.NewDecoder(file).Decode(&config); err != nil {
			return config, fmt.Errorf("failed to decode configuration json: %w", err)
		}
	}
	return config, nil
}
