package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"genflow/internal/health"
)

func newHealthCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check connectivity to the knowledge and agent services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			container, err := buildContainer(cfg, c.env, containerOptions{withAgent: true})
			if err != nil {
				return err
			}
			defer container.Close()

			p := c.printer()
			results := container.Health.CheckAll(cmd.Context())
			for _, r := range results {
				line := fmt.Sprintf("%-10s %s", r.Name, r.Status)
				if r.Message != "" {
					line += ": " + r.Message
				}
				switch r.Status {
				case health.StatusReady:
					p.Info("✅ %s", line)
				case health.StatusDisabled:
					p.Warn("➖ %s", line)
				default:
					p.Fail("❌ %s", line)
				}
			}
			if !health.Healthy(results) {
				return &ExitCodeError{Code: exitFailure, Err: errors.New("one or more components are not ready")}
			}
			return nil
		},
	}
}
