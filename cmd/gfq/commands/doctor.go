package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-flow-query/internal/config"
	"github.com/l3aro/go-flow-query/internal/healthcheck"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check grammars, library summaries and the summary cache",
	Long: `Loads the configuration in effect for the current directory and checks
that the C and C++ grammars parse, the library summary files load and the
summary cache is readable.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting working directory: %w", err)
		}
		root = findProjectRoot(root)

		cfg, err := config.Load(root)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if cfg.SummaryCache != "" && !filepath.IsAbs(cfg.SummaryCache) {
			cfg.SummaryCache = filepath.Join(root, cfg.SummaryCache)
		}

		result, err := healthcheck.Check(cfg, effectiveConfigPath(root))
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}

		displayDoctorResult(result)

		if result.Failed() {
			return fmt.Errorf("health check failed: one or more components are not usable")
		}
		return nil
	},
}

// effectiveConfigPath returns the highest priority config file that exists,
// or "" when only defaults apply.
func effectiveConfigPath(root string) string {
	if p := config.ProjectConfigPath(root); fileExists(p) {
		return p
	}
	if home, err := os.UserHomeDir(); err == nil {
		if p := filepath.Join(home, config.Dir, "config.yaml"); fileExists(p) {
			return p
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func displayDoctorResult(result *healthcheck.HealthCheckResult) {
	if result.ConfigPath != "" {
		fmt.Printf("Using config: %s (%s)\n\n", result.ConfigPath, result.ConfigScope)
	} else {
		fmt.Print("Using config: defaults (run 'gfq init' to create one)\n\n")
	}

	for _, c := range result.Components() {
		fmt.Printf("%s:\n", c.Name)
		fmt.Printf("  Status: %s %s\n", formatStatusIcon(c.Status), c.Status)
		if c.Detail != "" {
			fmt.Printf("  %s\n", c.Detail)
		}
		if c.Error != "" {
			fmt.Printf("  Error: %s\n", c.Error)
		}
	}
}

func formatStatusIcon(status string) string {
	switch status {
	case healthcheck.StatusReady:
		return "✓"
	case healthcheck.StatusDisabled:
		return "-"
	case healthcheck.StatusWarning:
		return "◐"
	case healthcheck.StatusError:
		return "✗"
	default:
		return "?"
	}
}
