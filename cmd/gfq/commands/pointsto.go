package commands

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-flow-query/pkg/analysis"
	"github.com/l3aro/go-flow-query/pkg/ast"
	"github.com/l3aro/go-flow-query/pkg/dfg"
)

// PointsToOutput represents the output of the pointsto command
type PointsToOutput struct {
	File      string          `json:"file"`
	Functions []FunctionFacts `json:"functions"`
}

// FunctionFacts holds the data-flow facts of one function
type FunctionFacts struct {
	Function    string          `json:"function"`
	Approximate bool            `json:"approximate,omitempty"`
	Iterations  int             `json:"iterations"`
	Cached      bool            `json:"cached,omitempty"`
	Params      []ParamFacts    `json:"params,omitempty"`
	Facts       []ExprFacts     `json:"facts,omitempty"`
	Indirect    []IndirectFacts `json:"indirect_calls,omitempty"`
}

// ParamFacts is the summary effect of one parameter
type ParamFacts struct {
	Name          string `json:"name"`
	MayWrite      bool   `json:"may_write,omitempty"`
	FlowsToReturn bool   `json:"flows_to_return,omitempty"`
}

// ExprFacts is the alias and value set recorded for one expression
type ExprFacts struct {
	Expr     string `json:"expr"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	PointsTo string `json:"points_to,omitempty"`
	Values   string `json:"values,omitempty"`
}

// IndirectFacts lists the targets of a call through a function pointer
type IndirectFacts struct {
	Call     string   `json:"call"`
	Line     int      `json:"line"`
	Targets  []string `json:"targets"`
	External bool     `json:"external,omitempty"`
}

var pointsToCmd = &cobra.Command{
	Use:   "pointsto <file> <function>",
	Short: "Show alias and value sets inside one function",
	Long: `Analyzes a file and prints, for the named function, the locations each
expression may point to, the constant values scalars may hold, the
summary effects of the parameters and the targets of indirect calls.
The function may be given plainly (calc), qualified (Base::calc) or with
its signature (Base::calc(int)).`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, unit, err := analyzeFile(cmd, args[0])
		if err != nil {
			return err
		}
		functionName := args[1]

		all, _ := cmd.Flags().GetBool("all")
		output, err := buildPointsToOutput(s, unit, functionName, all)
		if err != nil {
			return err
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			data, err := json.MarshalIndent(output, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Println(string(data))
		} else {
			printPointsTo(output)
		}
		return nil
	},
}

func buildPointsToOutput(s *session, unit *analysis.UnitResult, name string, all bool) (PointsToOutput, error) {
	output := PointsToOutput{File: s.relPath(unit.File)}

	matched, err := matchFunctions(unit, name)
	if err != nil {
		return output, err
	}
	for _, fn := range matched {
		fr := unit.Dataflow.Function(fn)
		if fr == nil {
			continue
		}
		output.Functions = append(output.Functions, functionFacts(unit.Dataflow, fr, all))
	}
	return output, nil
}

func functionFacts(res *dfg.Result, fr *dfg.FunctionResult, all bool) FunctionFacts {
	ff := FunctionFacts{
		Function:    fr.Func.String(),
		Approximate: fr.Approximate,
		Iterations:  fr.Iterations,
		Cached:      fr.Cached,
	}
	if fr.Summary != nil {
		for _, p := range fr.Summary.Params {
			ff.Params = append(ff.Params, ParamFacts{
				Name:          p.Name,
				MayWrite:      p.MayWrite,
				FlowsToReturn: p.FlowsToReturn,
			})
		}
	}

	facts := map[ast.Expr]*ExprFacts{}
	get := func(e ast.Expr) *ExprFacts {
		if f, ok := facts[e]; ok {
			return f
		}
		sp := e.Span()
		f := &ExprFacts{Expr: ast.ExprString(e), Line: sp.StartLine, Column: sp.StartCol}
		facts[e] = f
		return f
	}
	for e, set := range fr.Exprs {
		if !all && !isNamed(e) {
			continue
		}
		if set.IsEmpty() {
			continue
		}
		get(e).PointsTo = set.Render(res.Locations)
	}
	for e, vals := range fr.Values {
		if !all && !isNamed(e) {
			continue
		}
		if vals.IsEmpty() {
			continue
		}
		get(e).Values = vals.String()
	}
	for _, f := range facts {
		ff.Facts = append(ff.Facts, *f)
	}
	sort.Slice(ff.Facts, func(i, j int) bool {
		a, b := ff.Facts[i], ff.Facts[j]
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		return a.Expr < b.Expr
	})

	for call, targets := range fr.IndirectTargets {
		ind := IndirectFacts{
			Call:     ast.ExprString(call),
			Line:     call.Span().StartLine,
			External: fr.External[call],
		}
		for _, t := range targets {
			ind.Targets = append(ind.Targets, t.String())
		}
		sort.Strings(ind.Targets)
		ff.Indirect = append(ff.Indirect, ind)
	}
	sort.Slice(ff.Indirect, func(i, j int) bool { return ff.Indirect[i].Line < ff.Indirect[j].Line })
	return ff
}

// isNamed reports whether e names a variable, a field or a dereference,
// the expressions a reader usually asks about.
func isNamed(e ast.Expr) bool {
	switch x := e.(type) {
	case *ast.Ident, *ast.MemberExpr:
		return true
	case *ast.UnaryExpr:
		return x.Op == "*"
	}
	return false
}

func printPointsTo(output PointsToOutput) {
	for _, fn := range output.Functions {
		fmt.Printf("=== Points-to for function: %s (%s) ===\n", fn.Function, output.File)
		if fn.Approximate {
			fmt.Println("(approximate: the fixpoint hit the iteration cap)")
		}
		if fn.Cached {
			fmt.Println("(summary loaded from cache)")
		}

		if len(fn.Params) > 0 {
			fmt.Printf("\nParameters (%d):\n", len(fn.Params))
			for _, p := range fn.Params {
				fmt.Printf("  %s: may_write=%v flows_to_return=%v\n", p.Name, p.MayWrite, p.FlowsToReturn)
			}
		}

		fmt.Printf("\nFacts (%d):\n", len(fn.Facts))
		for _, f := range fn.Facts {
			fmt.Printf("  %d:%d %s", f.Line, f.Column, f.Expr)
			if f.PointsTo != "" {
				fmt.Printf(" -> %s", f.PointsTo)
			}
			if f.Values != "" {
				fmt.Printf(" = %s", f.Values)
			}
			fmt.Println()
		}

		if len(fn.Indirect) > 0 {
			fmt.Printf("\nIndirect calls (%d):\n", len(fn.Indirect))
			for _, ind := range fn.Indirect {
				ext := ""
				if ind.External {
					ext = " + <external>"
				}
				fmt.Printf("  line %d %s -> %v%s\n", ind.Line, ind.Call, ind.Targets, ext)
			}
		}
		fmt.Println()
	}
}

func init() {
	pointsToCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	pointsToCmd.Flags().Bool("all", false, "Show every expression, not only names, fields and dereferences")
}
