package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/kuitang/mango3-e2e/internal/topology"
	"github.com/kuitang/mango3-e2e/internal/wait"
)

// Harness targets.
const (
	TargetInProcess = "inprocess"
	TargetExternal  = "external"
)

// HarnessConfig configures the browser suites.
type HarnessConfig struct {
	Target       string        // E2E_TARGET: inprocess (default) or external
	TopologyFile string        // E2E_TOPOLOGY_FILE: YAML origin map, external target only
	Domain       string        // E2E_BASE_DOMAIN
	Secure       bool          // E2E_SECURE
	Port         int           // E2E_PORT, external target only
	StateDir     string        // E2E_STATE_DIR: root of the storage-state files
	Timeout      time.Duration // E2E_TIMEOUT: per wait and per navigation
	PollInterval time.Duration // E2E_POLL_INTERVAL
	Headless     bool          // E2E_HEADLESS

	// AllowMissingSession lets authenticated fixtures start unauthenticated
	// when no session was stored (E2E_ALLOW_MISSING_SESSION).
	AllowMissingSession bool

	// Credentials of an existing administrator on an external target.
	AdminUsername string // E2E_ADMIN_USERNAME
	AdminPassword string // E2E_ADMIN_PASSWORD
}

// LoadHarnessConfig reads the harness configuration from the environment.
func LoadHarnessConfig() (*HarnessConfig, error) {
	h := &HarnessConfig{
		Target:              strings.ToLower(getEnvOrDefault("E2E_TARGET", TargetInProcess)),
		TopologyFile:        strings.TrimSpace(os.Getenv("E2E_TOPOLOGY_FILE")),
		Domain:              strings.ToLower(getEnvOrDefault("E2E_BASE_DOMAIN", topology.DefaultDomain)),
		Secure:              parseBoolOrDefault("E2E_SECURE", false),
		Port:                parseIntOrDefault("E2E_PORT", 0),
		StateDir:            getEnvOrDefault("E2E_STATE_DIR", filepath.Join(os.TempDir(), "mango3-e2e-state")),
		Timeout:             parseDurationOrDefault("E2E_TIMEOUT", wait.DefaultTimeout),
		PollInterval:        parseDurationOrDefault("E2E_POLL_INTERVAL", wait.DefaultInterval),
		Headless:            parseBoolOrDefault("E2E_HEADLESS", true),
		AllowMissingSession: parseBoolOrDefault("E2E_ALLOW_MISSING_SESSION", false),
		AdminUsername:       getEnvOrDefault("E2E_ADMIN_USERNAME", "admin"),
		AdminPassword:       getEnvOrDefault("E2E_ADMIN_PASSWORD", "admin-password"),
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// Validate checks the harness configuration.
func (h *HarnessConfig) Validate() error {
	var problems []string
	check := func(name string, value any, rules ...validation.Rule) {
		if err := validation.Validate(value, rules...); err != nil {
			problems = append(problems, fmt.Sprintf("%s %s", name, err.Error()))
		}
	}

	check("E2E_TARGET", h.Target, validation.Required, validation.In(TargetInProcess, TargetExternal))
	check("E2E_BASE_DOMAIN", h.Domain, validation.Required, is.Host)
	check("E2E_PORT", h.Port, validation.Min(0), validation.Max(65535))
	check("E2E_STATE_DIR", h.StateDir, validation.Required)
	check("E2E_TIMEOUT", h.Timeout, validation.Min(100*time.Millisecond))
	check("E2E_POLL_INTERVAL", h.PollInterval, validation.Min(wait.MinInterval))
	if h.TopologyFile != "" && h.Target != TargetExternal {
		problems = append(problems, "E2E_TOPOLOGY_FILE is only used with E2E_TARGET=external")
	}

	if len(problems) > 0 {
		return &ValidationError{Errors: problems}
	}
	return nil
}

// Policy is the wait policy derived from the timeouts.
func (h *HarnessConfig) Policy() wait.Policy {
	return wait.Policy{Timeout: h.Timeout, Interval: h.PollInterval}
}

// ExternalTopology resolves the origins of an external deployment.
func (h *HarnessConfig) ExternalTopology() (*topology.Topology, error) {
	if h.TopologyFile != "" {
		return topology.LoadFile(h.TopologyFile)
	}
	t := topology.New(h.Domain, h.Secure, h.Port)
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}
