package skillvet

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/varalys/skillvet/internal/rules"
	"github.com/varalys/skillvet/internal/update"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "skillvet %s (%s, %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
			if rs, err := rules.Default(); err == nil {
				fmt.Fprintf(out, "rules: %d built-in (digest %s)\n", len(rs.All()), rs.Digest())
			}
			if !flagNoUpdateCheck {
				if latest, newer, _ := update.Check(version, false); newer {
					fmt.Fprintf(out, "update available: v%s\n", latest)
				}
			}
			return nil
		},
	})
}
