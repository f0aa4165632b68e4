package config

import (
	"fmt"
	"strings"
	"time"
)

// Required environment variables, in reporting order.
const (
	EnvCodegenOrgID    = "CODEGEN_ORG_ID"
	EnvCodegenAPIToken = "CODEGEN_API_TOKEN"
	EnvR2RBaseURL      = "R2R_BASE_URL"
	EnvR2RAPIKey       = "R2R_API_KEY"
)

// MissingError names every required setting that is unset.
type MissingError struct {
	Vars []string
}

func (e *MissingError) Error() string {
	return "missing required environment variables: " + strings.Join(e.Vars, ", ")
}

// Validate checks everything a generation run needs.
func (c Config) Validate() error {
	var missing []string
	if c.Codegen.OrgID == "" {
		missing = append(missing, EnvCodegenOrgID)
	}
	if c.Codegen.Token == "" {
		missing = append(missing, EnvCodegenAPIToken)
	}
	if c.Knowledge.BaseURL == "" {
		missing = append(missing, EnvR2RBaseURL)
	}
	if c.Knowledge.APIKey == "" {
		missing = append(missing, EnvR2RAPIKey)
	}
	if len(missing) > 0 {
		return &MissingError{Vars: missing}
	}
	return c.validateRunner()
}

// ValidateKnowledge checks only what the knowledge-facing servers need.
func (c Config) ValidateKnowledge() error {
	if c.Knowledge.BaseURL == "" {
		return &MissingError{Vars: []string{EnvR2RBaseURL}}
	}
	return c.validateRunner()
}

func (c Config) validateRunner() error {
	if c.Runner.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.Runner.PollInterval)
	}
	if c.Runner.MaxWait < 0 {
		return fmt.Errorf("max wait must not be negative, got %s", c.Runner.MaxWait)
	}
	if c.Runner.MaxWait > 0 && c.Runner.MaxWait < c.Runner.PollInterval {
		return fmt.Errorf("max wait %s is shorter than the poll interval %s", c.Runner.MaxWait, c.Runner.PollInterval.Round(time.Second))
	}
	return nil
}

// Guide explains how to provide the required settings.
func Guide() string {
	return `📋 Configuration Guide:
   Set these environment variables (or repository secrets in CI):
   1. CODEGEN_ORG_ID: Your Codegen organization ID
   2. CODEGEN_API_TOKEN: Your Codegen API token
   3. R2R_BASE_URL: R2R API endpoint
   4. R2R_API_KEY: R2R API key

   They can also be placed in ~/.genflow/config.yaml under codegen and knowledge.
   Get a Codegen token at: https://codegen.sh/token`
}
