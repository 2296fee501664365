// File: internal/config/proxy.go
package config

import (
	"fmt"
	"strings"
)

// ProxyMode selects how outbound browser traffic is routed.
type ProxyMode string

const (
	ProxyModeNone   ProxyMode = "none"
	ProxyModeCustom ProxyMode = "custom"
	ProxyModeVendor ProxyMode = "vendor"
)

// ProxyConfig defines the upstream proxy handed to the browser at launch.
// Validated once at startup and treated as read-only afterward.
type ProxyConfig struct {
	Enabled   bool      `mapstructure:"enabled" yaml:"enabled"`
	Mode      ProxyMode `mapstructure:"mode" yaml:"mode"`
	Server    string    `mapstructure:"server" yaml:"server"`
	Username  string    `mapstructure:"username" yaml:"-"`
	Password  string    `mapstructure:"password" yaml:"-"`
	Country   string    `mapstructure:"country" yaml:"country"`
	SessionID string    `mapstructure:"session_id" yaml:"session_id"`
}

// placeholderMarkers are substrings that indicate a credential was copied from
// documentation and never filled in.
var placeholderMarkers = []string{
	"YOUR_",
	"CHANGE_ME",
	"changeme",
	"<",
	"...",
	"xxxx",
}

// envSources maps proxy fields to the environment variable expected to supply them.
var envSources = map[string]string{
	"server":   "SPECTER_PROXY_SERVER",
	"username": "SPECTER_PROXY_USERNAME",
	"password": "SPECTER_PROXY_PASSWORD",
}

func isPlaceholder(value string) bool {
	for _, marker := range placeholderMarkers {
		if strings.Contains(value, marker) {
			return true
		}
	}
	return false
}

// Validate checks that an enabled proxy configuration is complete and free of
// unresolved placeholders. It performs no network calls. A failure here is
// non-fatal to a session: callers may fall back to a direct connection.
func (p *ProxyConfig) Validate() error {
	if !p.Enabled {
		return nil
	}

	switch p.Mode {
	case ProxyModeNone:
		return fmt.Errorf("proxy is enabled but mode is %q; set mode to custom or vendor", ProxyModeNone)
	case ProxyModeCustom, ProxyModeVendor:
	default:
		return fmt.Errorf("unknown proxy mode %q (expected none, custom, or vendor)", p.Mode)
	}

	required := map[string]string{
		"server":   p.Server,
		"username": p.Username,
		"password": p.Password,
	}
	// Deterministic order keeps error messages stable for tests and users.
	for _, field := range []string{"server", "username", "password"} {
		value := required[field]
		if value == "" {
			return fmt.Errorf("proxy mode %q requires %s; set %s", p.Mode, field, envSources[field])
		}
		if isPlaceholder(value) {
			return fmt.Errorf("proxy %s contains an unresolved placeholder; set %s to a real value", field, envSources[field])
		}
	}
	return nil
}

// VendorCredentials formats the username for vendor-style residential proxies,
// where targeting parameters ride along as username suffixes. For custom mode
// the username is returned untouched.
func (p *ProxyConfig) VendorCredentials() (username, password string) {
	username = p.Username
	if p.Mode == ProxyModeVendor {
		if p.Country != "" {
			username += "-country-" + strings.ToLower(p.Country)
		}
		if p.SessionID != "" {
			username += "-session-" + p.SessionID
		}
	}
	return username, p.Password
}
