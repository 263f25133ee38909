// Package config loads the optional leadsdash.yaml file and builds the
// shared logger. Environment variables override anything set in the file.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/phillip-england/leadsdash/internal/envutil"
	"github.com/phillip-england/leadsdash/internal/leads"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath     = "leadsdash.yaml"
	DefaultTimezone = "Europe/London"
)

type Backend struct {
	BaseURL          string `yaml:"base_url"`
	FairPayLeadsPath string `yaml:"fair_pay_leads_path"`
	DPFLeadsPath     string `yaml:"dpf_leads_path"`
	Timeout          string `yaml:"timeout"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// File is the contents of leadsdash.yaml. Every field is optional.
type File struct {
	Timezone string              `yaml:"timezone"`
	Groups   map[string][]string `yaml:"groups"`
	Backend  Backend             `yaml:"backend"`
	Log      Log                 `yaml:"log"`
}

// Load reads path. A missing file yields an empty File.
func Load(path string) (File, error) {
	var cfg File
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// FromEnv loads the file named by LEADSDASH_CONFIG and applies environment
// overrides.
func FromEnv() (File, error) {
	cfg, err := Load(envutil.String("LEADSDASH_CONFIG", DefaultPath))
	if err != nil {
		return cfg, err
	}
	cfg.Timezone = envutil.String("DISPLAY_TIMEZONE", cfg.Timezone)
	cfg.Backend.BaseURL = envutil.String("BACKEND_BASE_URL", cfg.Backend.BaseURL)
	cfg.Backend.FairPayLeadsPath = envutil.String("FAIRPAY_LEADS_PATH", cfg.Backend.FairPayLeadsPath)
	cfg.Backend.DPFLeadsPath = envutil.String("DPF_LEADS_PATH", cfg.Backend.DPFLeadsPath)
	cfg.Backend.Timeout = envutil.String("BACKEND_TIMEOUT", cfg.Backend.Timeout)
	cfg.Log.Level = envutil.String("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envutil.String("LOG_FORMAT", cfg.Log.Format)
	return cfg, nil
}

// Location resolves the display timezone, falling back to UTC when the zone
// database does not know it.
func (f File) Location() *time.Location {
	name := strings.TrimSpace(f.Timezone)
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LeadGroups returns the configured groups, or the built-in map when the
// file defines none.
func (f File) LeadGroups() leads.Groups {
	if len(f.Groups) == 0 {
		return leads.DefaultGroups()
	}
	groups := make(leads.Groups, len(f.Groups))
	for key, campaigns := range f.Groups {
		key = strings.ToLower(strings.TrimSpace(key))
		for _, campaign := range campaigns {
			groups[key] = append(groups[key], strings.ToLower(strings.TrimSpace(campaign)))
		}
	}
	return groups
}

func (f File) BackendTimeout() time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(f.Backend.Timeout)); err == nil && d > 0 {
		return d
	}
	return 0
}

// NewLogger builds a logrus logger. format is "text" (default) or "json".
func NewLogger(level, format string, out io.Writer) (*logrus.Logger, error) {
	logger := logrus.New()
	if out != nil {
		logger.SetOutput(out)
	}
	if strings.TrimSpace(level) == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logger.SetLevel(parsed)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("log format %q: want text or json", format)
	}
	return logger, nil
}

func (f File) Logger(out io.Writer) (*logrus.Logger, error) {
	return NewLogger(f.Log.Level, f.Log.Format, out)
}
