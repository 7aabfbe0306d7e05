// Package ari connects the engine to Asterisk through the Asterisk REST
// Interface: channel control over REST and call events over a websocket.
package ari

import "time"

// Config holds the ARI connection configuration with declarative tags
type Config struct {
	URL      string `yaml:"url" validate:"required,url_format"`
	Username string `yaml:"username" validate:"required"`
	Password string `yaml:"password"`

	Apps []AppConfig `yaml:"apps" validate:"dive"`

	RequestTimeout time.Duration `yaml:"request_timeout" default:"5s" validate:"gt=0"`
	// ConnectTimeout bounds the initial connection attempts. Reconnects after
	// a lost event stream retry until shutdown.
	ConnectTimeout   time.Duration `yaml:"connect_timeout" default:"1m" validate:"gt=0"`
	MaxReconnectWait time.Duration `yaml:"max_reconnect_wait" default:"30s" validate:"gt=0"`
}

// AppConfig maps a Stasis application to the flow that serves its calls.
type AppConfig struct {
	Name string `yaml:"name" validate:"required"`
	// Extension is the extension reported for calls of this app. Empty means
	// the first Stasis argument.
	Extension string `yaml:"extension"`
	// FlowExtension selects the flow when it differs from Extension.
	FlowExtension string `yaml:"flow_extension"`
}

// DefaultApps are served when no apps are configured.
var DefaultApps = []AppConfig{
	{Name: "ivr-engine"},
	{Name: "balance-ivr", Extension: "6000", FlowExtension: "2001"},
}

func (c *Config) app(name string) (AppConfig, bool) {
	for _, a := range c.Apps {
		if a.Name == name {
			return a, true
		}
	}
	return AppConfig{}, false
}

func (c *Config) appNames() []string {
	names := make([]string, len(c.Apps))
	for i, a := range c.Apps {
		names[i] = a.Name
	}
	return names
}
