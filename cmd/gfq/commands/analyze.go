package commands

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-flow-query/internal/metrics"
	"github.com/l3aro/go-flow-query/pkg/analysis"
	"github.com/l3aro/go-flow-query/pkg/callgraph"
)

// AnalyzeOutput represents the output of the analyze command
type AnalyzeOutput struct {
	RunID       string             `json:"run_id"`
	RootDir     string             `json:"root_dir"`
	Units       []UnitSummary      `json:"units"`
	Calls       callgraph.Stats    `json:"calls"`
	Linked      int                `json:"linked_calls"`
	Inferred    []string           `json:"inferred,omitempty"`
	Diagnostics []DiagnosticOutput `json:"diagnostics,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
}

// UnitSummary describes the outcome of one translation unit
type UnitSummary struct {
	File        string `json:"file"`
	Functions   int    `json:"functions"`
	CallSites   int    `json:"call_sites"`
	Approximate int    `json:"approximate_functions"`
	Cached      int    `json:"cached_functions"`
	Diagnostics int    `json:"diagnostics"`
	DurationMs  int64  `json:"duration_ms"`
	Error       string `json:"error,omitempty"`
}

// DiagnosticOutput is a diagnostic with a root-relative location
type DiagnosticOutput struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze [path]",
	Short: "Analyze a file or project",
	Long: `Runs scope construction, type and call resolution and the points-to
pass over every C and C++ file under path, then merges the units and
prints a summary with the diagnostics found.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}

		s, err := openSession(cmd, path)
		if err != nil {
			return err
		}
		result, err := s.run()
		if err != nil {
			return fmt.Errorf("analyzing: %w", err)
		}

		output := buildAnalyzeOutput(s, result)
		if withMetrics, _ := cmd.Flags().GetBool("metrics"); withMetrics {
			snap, err := metrics.Snapshot()
			if err != nil {
				return fmt.Errorf("collecting metrics: %w", err)
			}
			output.Metrics = snap
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			data, err := json.MarshalIndent(output, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Println(string(data))
		} else {
			printAnalyze(output)
		}

		if failed := len(result.Failed()); failed > 0 {
			return fmt.Errorf("%d of %d units failed", failed, len(result.Units))
		}
		return nil
	},
}

func buildAnalyzeOutput(s *session, result *analysis.Result) AnalyzeOutput {
	output := AnalyzeOutput{
		RunID:   result.RunID,
		RootDir: s.root,
		Calls:   result.Graph.Stats(),
		Linked:  result.Linked,
	}

	for _, u := range result.Units {
		us := UnitSummary{
			File:        s.relPath(u.File),
			Diagnostics: len(u.Diagnostics),
			DurationMs:  u.Duration.Milliseconds(),
		}
		if u.Table != nil {
			us.Functions = len(u.Table.Functions())
		}
		if u.Resolution != nil {
			us.CallSites = len(u.Resolution.Calls)
		}
		if u.Dataflow != nil {
			for _, fr := range u.Dataflow.Functions {
				if fr.Approximate {
					us.Approximate++
				}
				if fr.Cached {
					us.Cached++
				}
			}
		}
		if u.Err != nil {
			us.Error = u.Err.Error()
		}
		output.Units = append(output.Units, us)
	}

	for _, d := range result.Inferred {
		output.Inferred = append(output.Inferred, d.String())
	}
	sort.Strings(output.Inferred)

	for _, d := range result.Diagnostics() {
		do := DiagnosticOutput{
			Kind:    string(d.Kind),
			Message: d.Message,
			Line:    d.Span.StartLine,
			Column:  d.Span.StartCol,
		}
		if d.Span.File != "" {
			do.File = s.relPath(d.Span.File)
		}
		output.Diagnostics = append(output.Diagnostics, do)
	}
	return output
}

func printAnalyze(output AnalyzeOutput) {
	fmt.Printf("=== Analysis: %s ===\n\n", output.RootDir)

	fmt.Println("Units:")
	for _, u := range output.Units {
		if u.Error != "" {
			fmt.Printf("  %s: FAILED (%s)\n", u.File, u.Error)
			continue
		}
		fmt.Printf("  %s: %d functions, %d call sites, %d diagnostics (%dms)\n",
			u.File, u.Functions, u.CallSites, u.Diagnostics, u.DurationMs)
		if u.Approximate > 0 {
			fmt.Printf("    %d functions hit the iteration cap\n", u.Approximate)
		}
	}

	fmt.Printf("\nCalls:\n")
	fmt.Printf("  Sites: %d\n", output.Calls.Sites)
	fmt.Printf("  Edges: %d (static %d, virtual %d, indirect %d, construct %d)\n",
		output.Calls.Edges, output.Calls.Static, output.Calls.Virtual,
		output.Calls.Indirect, output.Calls.Construct)
	fmt.Printf("  Inferred: %d\n", output.Calls.Inferred)
	fmt.Printf("  Unresolved: %d\n", output.Calls.Unresolved)
	fmt.Printf("  Ambiguous: %d\n", output.Calls.Ambiguous)
	fmt.Printf("  Linked across units: %d\n", output.Linked)

	if len(output.Inferred) > 0 {
		fmt.Println("\nInferred declarations:")
		for _, name := range output.Inferred {
			fmt.Printf("  %s\n", name)
		}
	}

	if len(output.Diagnostics) > 0 {
		fmt.Println("\nDiagnostics:")
		for _, d := range output.Diagnostics {
			if d.File != "" {
				fmt.Printf("  %s:%d:%d: %s: %s\n", d.File, d.Line, d.Column, d.Kind, d.Message)
			} else {
				fmt.Printf("  %s: %s\n", d.Kind, d.Message)
			}
		}
	}

	if len(output.Metrics) > 0 {
		names := make([]string, 0, len(output.Metrics))
		for name := range output.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Println("\nMetrics:")
		for _, name := range names {
			fmt.Printf("  %s %g\n", name, output.Metrics[name])
		}
	}
}

func init() {
	analyzeCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	analyzeCmd.Flags().Bool("metrics", false, "Include pass metrics in the output")
}
