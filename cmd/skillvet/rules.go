package skillvet

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/varalys/skillvet/internal/rules"
)

var (
	rulesFiles    []string
	rulesOut      string
	rulesAnalyzer string
)

func init() {
	cmd := &cobra.Command{Use: "rules", Short: "Inspect and export the detection rules"}
	rootCmd.AddCommand(cmd)

	list := &cobra.Command{
		Use:   "list",
		Short: "Print the rule table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rs, err := rules.WithOverrides(rulesFiles...)
			if err != nil {
				return err
			}
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("ID", "ANALYZER", "GROUP", "SEVERITY", "DEDUCTION", "TAXONOMY", "PATTERNS")
			n := 0
			for _, r := range rs.Rules() {
				if rulesAnalyzer != "" && r.Analyzer != rulesAnalyzer {
					continue
				}
				ded := ""
				if r.Deduction > 0 {
					ded = strconv.Itoa(r.Deduction)
				}
				_ = table.Append([]string{r.ID, r.Analyzer, r.Group, r.Severity, ded, r.Taxonomy, strconv.Itoa(len(r.Patterns))})
				n++
			}
			if err := table.Render(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d rules (digest %s)\n", n, rs.Digest())
			return nil
		},
	}
	list.Flags().StringSliceVar(&rulesFiles, "rules", nil, "YAML rule files merged over the built-in rules")
	list.Flags().StringVar(&rulesAnalyzer, "analyzer", "", "only rules of this analyzer")
	completeValues(list, "analyzer", analyzerNames()...)
	cmd.AddCommand(list)

	export := &cobra.Command{
		Use:   "export",
		Short: "Write the effective rules as YAML, a starting point for overrides",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rs, err := rules.WithOverrides(rulesFiles...)
			if err != nil {
				return err
			}
			b, err := rules.Export(rs.Rules())
			if err != nil {
				return err
			}
			if rulesOut == "" {
				_, err = cmd.OutOrStdout().Write(b)
				return err
			}
			if err := os.WriteFile(rulesOut, b, 0644); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Wrote", rulesOut)
			return nil
		},
	}
	export.Flags().StringSliceVar(&rulesFiles, "rules", nil, "YAML rule files merged over the built-in rules")
	export.Flags().StringVarP(&rulesOut, "out", "o", "", "output file (default stdout)")
	cmd.AddCommand(export)
}
