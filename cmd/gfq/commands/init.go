package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-flow-query/internal/config"
	"github.com/l3aro/go-flow-query/internal/healthcheck"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize gfq configuration interactively",
	Long: `Guides you through setting up gfq configuration step by step.
Creates a config file with worker limits, the policy for calls without
source, the summary cache and the files to analyze.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit()
	},
}

func runInit() error {
	cfg := config.DefaultConfig()

	// === SECTION 1: Analysis ===
	workers := "0"
	policy := string(cfg.UnknownCallPolicy)
	inferUnresolved := cfg.InferUnresolved

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Translation units analyzed at once").
				Description("0 uses one worker per CPU").
				Placeholder("0").
				Validate(validateNonNegative).
				Value(&workers),
			huh.NewSelect[string]().
				Title("Calls to functions without source or summary").
				Options(
					huh.NewOption("Conservative - arguments may be written and escape", string(config.PolicyConservative)),
					huh.NewOption("Pure - the call has no memory effects", string(config.PolicyPure)),
				).
				Value(&policy),
			huh.NewConfirm().
				Title("Infer declarations for unresolved calls?").
				Affirmative("Yes").
				Negative("No").
				Value(&inferUnresolved),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 2: Cache and sources ===
	useCache := true
	include := ""
	exclude := ""
	summaryFiles := ""

	form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Persist function summaries between runs?").
				Description(fmt.Sprintf("Stored in %s", cfg.SummaryCache)).
				Affirmative("Yes").
				Negative("No").
				Value(&useCache),
			huh.NewInput().
				Title("Include globs (optional, comma separated)").
				Placeholder("src/**").
				Value(&include),
			huh.NewInput().
				Title("Exclude globs (optional, comma separated)").
				Placeholder("**/*_generated.c").
				Value(&exclude),
			huh.NewInput().
				Title("Library summary files (optional, comma separated)").
				Placeholder("summaries/libfoo.yaml").
				Value(&summaryFiles),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 3: Config Location ===
	var saveLocationChoice string
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Save Configuration").
				Description("Where to save the configuration file?").
				Options(
					huh.NewOption("Project (./.gfq/config.yaml)", "project"),
					huh.NewOption("Global (~/.gfq/config.yaml)", "global"),
				).
				Value(&saveLocationChoice),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	configPath := config.ProjectConfigPath(".")
	if saveLocationChoice == "global" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("getting home directory: %w", err)
		}
		configPath = filepath.Join(home, config.Dir, "config.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		var overwrite bool
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Config file exists").
					Description(fmt.Sprintf("Overwrite existing config at %s?", configPath)).
					Affirmative("Overwrite").
					Negative("Cancel").
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
		if !overwrite {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	// === Build config struct ===
	cfg.Workers, _ = strconv.Atoi(strings.TrimSpace(workers))
	cfg.UnknownCallPolicy = config.UnknownCallPolicy(policy)
	cfg.InferUnresolved = inferUnresolved
	if !useCache {
		cfg.SummaryCache = ""
	}
	cfg.Include = splitCommaList(include)
	cfg.Exclude = splitCommaList(exclude)
	cfg.SummaryFiles = splitCommaList(summaryFiles)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	fmt.Println("\n=== Configuration Preview ===")
	fmt.Printf("Config path: %s\n", configPath)
	fmt.Printf("Workers: %d\n", cfg.Workers)
	fmt.Printf("Unknown call policy: %s\n", cfg.UnknownCallPolicy)
	fmt.Printf("Infer unresolved: %v\n", cfg.InferUnresolved)
	if cfg.SummaryCache != "" {
		fmt.Printf("Summary cache: %s\n", cfg.SummaryCache)
	} else {
		fmt.Println("Summary cache: disabled")
	}
	if len(cfg.Include) > 0 {
		fmt.Printf("Include: %s\n", strings.Join(cfg.Include, ", "))
	}
	if len(cfg.Exclude) > 0 {
		fmt.Printf("Exclude: %s\n", strings.Join(cfg.Exclude, ", "))
	}
	fmt.Println("================================")

	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("Configuration saved to: %s\n", configPath)

	// === SECTION 4: Health Check ===
	fmt.Println("\n=== Running Health Check ===")

	loadedCfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("loading saved config: %w", err)
	}
	result, err := healthcheck.Check(loadedCfg, configPath)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	displayDoctorResult(result)

	fmt.Println("\n=== Initialization Complete ===")
	return nil
}

func validateNonNegative(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return fmt.Errorf("enter a non-negative number")
	}
	return nil
}

func splitCommaList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
