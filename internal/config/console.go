package config

import (
	"os"
	"strings"
	"time"

	"github.com/fisaks/mbconsole/internal/mbc"
)

/* =========================
   Console (local) settings
   ========================= */

type PushKind string

const (
	PushWebSocket PushKind = "ws"
	PushMQTT      PushKind = "mqtt"
)

type MQTTConfig struct {
	BrokerURL   string `json:"brokerUrl" yaml:"brokerUrl"`
	TopicPrefix string `json:"topicPrefix" yaml:"topicPrefix"`
}

type Console struct {
	BaseURL          string     `json:"baseUrl" yaml:"baseUrl"`
	Token            string     `json:"token" yaml:"token"`
	Push             PushKind   `json:"push" yaml:"push"`
	MQTT             MQTTConfig `json:"mqtt" yaml:"mqtt"`
	AutoConnect      bool       `json:"autoConnect" yaml:"autoConnect"`
	Columns          int        `json:"columns" yaml:"columns"`
	RequestTimeoutMs int        `json:"requestTimeoutMs" yaml:"requestTimeoutMs"`
	LogLimit         int        `json:"logLimit" yaml:"logLimit"`
}

func DefaultConsole() Console {
	return Console{
		BaseURL:          "http://127.0.0.1:8502",
		Push:             PushWebSocket,
		MQTT:             MQTTConfig{BrokerURL: "tcp://127.0.0.1:1883", TopicPrefix: "mbc"},
		AutoConnect:      true,
		Columns:          8,
		RequestTimeoutMs: 5000,
		LogLimit:         mbc.DefaultLogLimit,
	}
}

func (c Console) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// ApplyEnv overrides c from MBC_BASE_URL, MBC_TOKEN, MBC_PUSH and MQTT_URL.
func (c *Console) ApplyEnv() {
	if v := os.Getenv("MBC_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("MBC_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("MBC_PUSH"); v != "" {
		c.Push = PushKind(strings.ToLower(v))
	}
	if v := os.Getenv("MQTT_URL"); v != "" {
		c.MQTT.BrokerURL = v
	}
}

func (c *Console) Validate() error {
	var errs multiErr

	if strings.TrimSpace(c.BaseURL) == "" {
		errs.add("baseUrl is required")
	}
	switch c.Push {
	case "":
		c.Push = PushWebSocket
	case PushWebSocket:
	case PushMQTT:
		if strings.TrimSpace(c.MQTT.BrokerURL) == "" {
			errs.add("mqtt.brokerUrl is required for push=mqtt")
		}
		if c.MQTT.TopicPrefix == "" {
			c.MQTT.TopicPrefix = "mbc"
		}
	default:
		errs.addf("push must be 'ws' or 'mqtt' (got %q)", c.Push)
	}
	if c.Columns == 0 {
		c.Columns = 8
	}
	if c.Columns != 8 && c.Columns != 16 {
		errs.add("columns must be 8 or 16")
	}
	if c.RequestTimeoutMs <= 0 {
		c.RequestTimeoutMs = 5000
	}
	if c.LogLimit < 0 {
		errs.add("logLimit cannot be negative")
	}
	if c.LogLimit == 0 {
		c.LogLimit = mbc.DefaultLogLimit
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
