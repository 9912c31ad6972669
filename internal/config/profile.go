package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile is a YAML file of session defaults. Options given on the command
// line take precedence over it.
type Profile struct {
	Device         string `yaml:"device"`
	LocalEcho      bool   `yaml:"local_echo"`
	SystemCodePage bool   `yaml:"system_codepage"`
	ReplaceCR      bool   `yaml:"replace_cr"`
	DisableVT      bool   `yaml:"disable_vt"`
	DebugInput     bool   `yaml:"debug_input"`
	WriteTimeoutMS *int   `yaml:"write_timeout_ms"` // nil keeps the default
	Baud           int    `yaml:"baud"`
	LogLevel       string `yaml:"log_level"`
	LogFile        string `yaml:"log_file"`
}

// LoadProfile reads and decodes the profile at path.
func LoadProfile(path string) (*Profile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	var p Profile
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return &p, nil
}

// apply fills every option that set does not mark as given on the command line.
func (p *Profile) apply(o *Options, set map[string]bool) {
	if o.Device == "" {
		o.Device = p.Device
	}
	if !set["local-echo"] {
		o.LocalEcho = p.LocalEcho
	}
	if !set["system-codepage"] {
		o.SystemCodePage = p.SystemCodePage
	}
	if !set["replace-cr"] {
		o.ReplaceCR = p.ReplaceCR
	}
	if !set["disable-vt"] {
		o.DisableVT = p.DisableVT
	}
	if !set["debug-input"] {
		o.DebugInput = p.DebugInput
	}
	if !set["write-timeout"] && p.WriteTimeoutMS != nil {
		o.WriteTimeout = time.Duration(*p.WriteTimeoutMS) * time.Millisecond
	}
	if !set["baud"] && p.Baud != 0 {
		o.BaudRate = p.Baud
	}
	if !set["log-level"] && p.LogLevel != "" {
		o.LogLevel = p.LogLevel
	}
	if !set["log-file"] && p.LogFile != "" {
		o.LogFile = p.LogFile
	}
}
