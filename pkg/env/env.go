// Package env provides the common command line and environment settings
// of the executables.
package env

import (
	"flag"
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// Config holds the common settings.
type Config struct {
	// RxID names the receiver in MQTT topics.
	RxID string
	// MQTTBrokerURL specifies the MQTT broker,
	// e.g. mqtt://host:port/topic-prefix/
	MQTTBrokerURL string
	// ConfigPath is the receiver config file, empty for defaults.
	ConfigPath string
}

var defaultConfig = Config{
	MQTTBrokerURL: "mqtt://localhost:1883/rxlink/",
}

func init() {
	if val := os.Getenv("RXLINK_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
	if val := os.Getenv("RXLINK_CONFIG"); val != "" {
		defaultConfig.ConfigPath = val
	}
	if val := os.Getenv("RXLINK_RX_ID"); val != "" {
		defaultConfig.RxID = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.RxID, "rx", defaultConfig.RxID, "Receiver ID, defaults to one derived from the machine ID")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL")
	flag.StringVar(&defaultConfig.ConfigPath, "config", defaultConfig.ConfigPath, "Receiver config file")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// ReceiverID returns RxID or the machine derived ID.
func (c *Config) ReceiverID() string {
	if c.RxID != "" {
		return c.RxID
	}
	return MachineID()
}

// MachineID returns a short ID derived from the machine ID,
// "rx" if the machine has none.
func MachineID() string {
	id, err := machineid.ProtectedID("rxlink")
	if err != nil {
		glog.Warningf("machine id: %v", err)
		return "rx"
	}
	return "rx-" + id[:8]
}
