package commands

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-flow-query/pkg/analysis"
	"github.com/l3aro/go-flow-query/pkg/callgraph"
	"github.com/l3aro/go-flow-query/pkg/scope"
)

// CallGraphOutput represents the output of the calls command
type CallGraphOutput struct {
	RootDir    string           `json:"root_dir"`
	Stats      callgraph.Stats  `json:"stats"`
	Edges      []CallEdge       `json:"edges,omitempty"`
	Unresolved []UnresolvedCall `json:"unresolved,omitempty"`
}

// CallEdge is one resolved call
type CallEdge struct {
	Caller     string `json:"caller"`
	Callee     string `json:"callee"`
	Kind       string `json:"kind"`
	Dynamic    bool   `json:"dynamic,omitempty"`
	File       string `json:"file,omitempty"`
	Line       int    `json:"line,omitempty"`
	CalleeFile string `json:"callee_file,omitempty"`
}

// UnresolvedCall represents an unresolved call
type UnresolvedCall struct {
	CallerFunc string `json:"caller_func"`
	CallName   string `json:"call_name"`
	File       string `json:"file,omitempty"`
	Line       int    `json:"line,omitempty"`
	Reason     string `json:"reason"`
}

// callsCmd represents the calls command
var callsCmd = &cobra.Command{
	Use:   "calls [path]",
	Short: "Show the resolved call graph",
	Long: `Analyzes a file or project and prints its call graph. Static, virtual,
constructor, inferred and indirect (function pointer) edges are listed,
along with calls that could not be resolved.`,
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

		kind, _ := cmd.Flags().GetString("kind")
		function, _ := cmd.Flags().GetString("function")
		output := buildCallGraphOutput(s, result, callgraph.CallKind(kind), function)

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			data, err := json.MarshalIndent(output, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Println(string(data))
		} else {
			printCallGraph(output)
		}
		return nil
	},
}

func buildCallGraphOutput(s *session, result *analysis.Result, kind callgraph.CallKind, function string) CallGraphOutput {
	output := CallGraphOutput{
		RootDir: s.root,
		Stats:   result.Graph.Stats(),
	}

	for _, e := range result.Graph.Edges() {
		if kind != "" && e.Kind != kind {
			continue
		}
		if function != "" && !declMatches(e.Caller, function) && !declMatches(e.Callee, function) {
			continue
		}
		edge := CallEdge{
			Caller:  declString(e.Caller),
			Callee:  declString(e.Callee),
			Kind:    string(e.Kind),
			Dynamic: e.Dynamic,
			Line:    e.Span.StartLine,
		}
		if e.Span.File != "" {
			edge.File = s.relPath(e.Span.File)
		}
		if e.Callee != nil && e.Callee.Node != nil {
			if f := e.Callee.Node.Span().File; f != "" {
				edge.CalleeFile = s.relPath(f)
			}
		}
		output.Edges = append(output.Edges, edge)
	}
	sort.SliceStable(output.Edges, func(i, j int) bool {
		a, b := output.Edges[i], output.Edges[j]
		if a.File != b.File {
			return a.File < b.File
		}
		return a.Line < b.Line
	})

	for _, u := range result.Graph.UnresolvedCalls() {
		if function != "" && u.Caller != function && u.Callee != function {
			continue
		}
		uc := UnresolvedCall{
			CallerFunc: u.Caller,
			CallName:   u.Callee,
			Line:       u.Span.StartLine,
			Reason:     u.Reason,
		}
		if u.Span.File != "" {
			uc.File = s.relPath(u.Span.File)
		}
		output.Unresolved = append(output.Unresolved, uc)
	}
	return output
}

func declString(d *scope.Declaration) string {
	if d == nil {
		return "<global>"
	}
	return d.String()
}

// declMatches reports whether d is named name, plainly or qualified.
func declMatches(d *scope.Declaration, name string) bool {
	return d != nil && (d.Name == name || d.QualifiedName == name || d.String() == name)
}

func printCallGraph(output CallGraphOutput) {
	fmt.Printf("=== Call Graph: %s ===\n\n", output.RootDir)

	fmt.Printf("Statistics:\n")
	fmt.Printf("  Call sites: %d\n", output.Stats.Sites)
	fmt.Printf("  Total edges: %d\n", output.Stats.Edges)
	fmt.Printf("  Static: %d  Virtual: %d  Indirect: %d  Construct: %d  Inferred: %d\n",
		output.Stats.Static, output.Stats.Virtual, output.Stats.Indirect,
		output.Stats.Construct, output.Stats.Inferred)
	fmt.Printf("  Unresolved calls: %d\n\n", output.Stats.Unresolved)

	if len(output.Edges) > 0 {
		fmt.Println("Edges:")
		for _, edge := range output.Edges {
			marker := ""
			if edge.Dynamic {
				marker = " (dynamic)"
			}
			fmt.Printf("  %s:%d %s -> %s [%s]%s\n",
				edge.File, edge.Line, edge.Caller, edge.Callee, edge.Kind, marker)
		}
	}

	if len(output.Unresolved) > 0 {
		fmt.Println("\nUnresolved calls:")
		for _, u := range output.Unresolved {
			fmt.Printf("  %s:%d %s calls %s (%s)\n",
				u.File, u.Line, u.CallerFunc, u.CallName, u.Reason)
		}
	}
}

func init() {
	callsCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	callsCmd.Flags().String("kind", "", "Only show edges of this kind (static, virtual, indirect, construct, inferred)")
	callsCmd.Flags().StringP("function", "f", "", "Only show calls from or to this function")
}
