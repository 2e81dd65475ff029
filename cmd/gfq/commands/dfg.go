package commands

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-flow-query/pkg/analysis"
	"github.com/l3aro/go-flow-query/pkg/dfg"
)

var dfgCmd = &cobra.Command{
	Use:   "dfg <file> <function>",
	Short: "Show the def-use chains of a function's locals",
	Long: `Analyzes a file and prints the data flow graph of the named function:
every definition, update and use of its locals and parameters, and the
edges from each definition to the uses it reaches.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, unit, err := analyzeFile(cmd, args[0])
		if err != nil {
			return err
		}
		functionName := args[1]

		infos, err := buildDFGOutput(unit, functionName)
		if err != nil {
			return err
		}
		s.logger.Debug("def-use chains", "function", functionName, "matches", len(infos))

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			data, err := json.MarshalIndent(infos, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Println(string(data))
		} else {
			for _, info := range infos {
				printDFGInfo(info)
			}
		}
		return nil
	},
}

func buildDFGOutput(unit *analysis.UnitResult, name string) ([]*dfg.DFGInfo, error) {
	matched, err := matchFunctions(unit, name)
	if err != nil {
		return nil, err
	}
	var infos []*dfg.DFGInfo
	for _, fn := range matched {
		fr := unit.Dataflow.Function(fn)
		if fr == nil || fr.DefUse == nil {
			continue
		}
		infos = append(infos, fr.DefUse)
	}
	return infos, nil
}

func printDFGInfo(info *dfg.DFGInfo) {
	fmt.Printf("=== DFG for function: %s ===\n", info.FunctionName)

	names := make([]string, 0, len(info.Variables))
	for name := range info.Variables {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Printf("\nVariables (%d):\n", len(names))
	for _, name := range names {
		fmt.Printf("  %s:\n", name)
		for _, ref := range info.Variables[name] {
			fmt.Printf("    - %s (line %d, col %d)\n", ref.RefType, ref.Line, ref.Column)
		}
	}

	fmt.Printf("\nVariable References (%d):\n", len(info.VarRefs))
	for _, ref := range info.VarRefs {
		fmt.Printf("  %s: %s (line %d, col %d)\n", ref.Name, ref.RefType, ref.Line, ref.Column)
	}

	fmt.Printf("\nData Flow Edges (%d):\n", len(info.DataflowEdges))
	for _, edge := range info.DataflowEdges {
		fmt.Printf("  %s: def(line %d) -> use(line %d)\n",
			edge.VarName, edge.DefRef.Line, edge.UseRef.Line)
	}
	fmt.Println()
}

func init() {
	dfgCmd.Flags().BoolP("json", "j", false, "Output as JSON")
}
