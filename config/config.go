package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	ClaimBox ClaimBoxConfig `yaml:"claimbox"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	ClaimStatusChangedTopicName    string `yaml:"claim_status_changed_topic_name"`
	ReturnShippingUpdatedTopicName string `yaml:"return_shipping_updated_topic_name"`
	ReturnStaleTopicName           string `yaml:"return_stale_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type ClaimBoxConfig struct {
	HTTPAddr                string `yaml:"http_addr"`
	KafkaConsumerGroup      string `yaml:"kafka_consumer_group"`
	CurrentStatusTTLSeconds int    `yaml:"current_status_ttl_seconds"`

	WorkerPollIntervalSeconds int `yaml:"worker_poll_interval_seconds"`
	WorkerBatchSize           int `yaml:"worker_batch_size"`
	WorkerStaleAfterHours     int `yaml:"worker_stale_after_hours"`
	WorkerRemindEveryHours    int `yaml:"worker_remind_every_hours"`
	WorkerRateLimitPerMinute  int `yaml:"worker_rate_limit_per_minute"`

	WorkerHTTPAddr string `yaml:"worker_http_addr"`

	SwaggerPath string `yaml:"swagger_path"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
