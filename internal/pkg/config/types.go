package config

import "time"

type PanelConfig struct {
	AppName        string
	APIURL         string
	Port           string
	RequestTimeout time.Duration
	RedisURL       string
	RedisTLSURL    string
	PostgresURL    string
	MockMode       bool
	MQTTConfig     MQTTConfig
	S3Config       S3Config
	DatadogConfig  DatadogConfig
	Version        string
}

type S3Config struct {
	AccessKeyID       string
	SecretAccessKey   string
	Region            string
	URL               string
	Bucket            string
	RetentionEnabled  bool
	MaxRetentionRows  int
	FullBackupEnabled bool
}

// Enabled reports whether a bucket and credentials were configured.
func (s S3Config) Enabled() bool {
	return s.Bucket != "" && s.AccessKeyID != "" && s.SecretAccessKey != ""
}

type DatadogConfig struct {
	APIKey string
	APPKey string
}

func (d DatadogConfig) Enabled() bool {
	return d.APIKey != "" && d.APPKey != ""
}

type MQTTConfig struct {
	BrokerURL   string
	User        string
	Password    string
	TopicPrefix string
}

// Enabled reports whether a broker was configured.
func (m MQTTConfig) Enabled() bool {
	return m.BrokerURL != ""
}

type ValveMessage struct {
	State     string  `json:"state"`
	Period    int     `json:"period"`
	Flow      float64 `json:"flow"`
	Timestamp string  `json:"timestamp"`
}

type WebsocketMessage struct {
	Channel string `json:"channel"`
	Message string `json:"message"`
}
