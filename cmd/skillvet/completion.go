package skillvet

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/varalys/skillvet/internal/types"
)

var completionShells = []string{"bash", "zsh", "fish", "powershell"}

func init() {
	cmd := &cobra.Command{
		Use:       "completion [bash|zsh|fish|powershell]",
		Short:     "Generate shell completion scripts",
		Long:      "Completion covers commands, flags and the fixed flag values (--fail-on levels, --provider, --analyzer).",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: completionShells,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return rootCmd.GenBashCompletionV2(out, true)
			case "zsh":
				return rootCmd.GenZshCompletion(out)
			case "fish":
				return rootCmd.GenFishCompletion(out, true)
			case "powershell":
				return rootCmd.GenPowerShellCompletionWithDesc(out)
			}
			return fmt.Errorf("unsupported shell: %s", args[0])
		},
		Example: `  # Bash
  skillvet completion bash > /etc/bash_completion.d/skillvet

  # Zsh
  skillvet completion zsh > "${fpath[1]}/_skillvet"

  # Fish
  skillvet completion fish > ~/.config/fish/completions/skillvet.fish

  # then: skillvet scan --fail-on <TAB>`,
	}
	rootCmd.AddCommand(cmd)
}

// completeValues registers fixed completions for a flag of cmd.
func completeValues(cmd *cobra.Command, flag string, values ...string) {
	_ = cmd.RegisterFlagCompletionFunc(flag, cobra.FixedCompletions(values, cobra.ShellCompDirectiveNoFileComp))
}

func analyzerNames() []string {
	out := make([]string, 0, len(types.Categories))
	for _, c := range types.Categories {
		out = append(out, string(c))
	}
	return out
}
