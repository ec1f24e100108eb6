package skillvet

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/varalys/skillvet/internal/rules"
	"github.com/varalys/skillvet/internal/types"
)

const (
	rulesBegin = "<!-- BEGIN:RULES -->"
	rulesEnd   = "<!-- END:RULES -->"
)

// rulesMarkdown lists the built-in rules by taxonomy code.
func rulesMarkdown(rs []rules.Rule) string {
	byCode := map[string][]string{}
	for _, r := range rs {
		code := r.Taxonomy
		if code == "" {
			code = "other"
		}
		byCode[code] = append(byCode[code], r.ID)
	}
	codes := make([]string, 0, len(byCode))
	for c := range byCode {
		codes = append(codes, c)
	}
	sort.Strings(codes)

	var out strings.Builder
	out.WriteString("\nRules by taxonomy code (run `skillvet rules list` for the full, up-to-date table):\n\n")
	for _, c := range codes {
		ids := byCode[c]
		sort.Strings(ids)
		title := c
		if types.IsTaxonomyCode(c) {
			title = c + " " + types.TaxonomyTitle(c)
		}
		out.WriteString("- " + title + ":\n")
		out.WriteString("  - " + strings.Join(ids, ", ") + "\n")
	}
	return out.String()
}

// spliceMarkers replaces the text between the rules markers in doc.
func spliceMarkers(doc []byte, section string) ([]byte, error) {
	start, end := []byte(rulesBegin), []byte(rulesEnd)
	i := bytes.Index(doc, start)
	j := bytes.Index(doc, end)
	if i < 0 || j < 0 || j <= i {
		return nil, fmt.Errorf("markers %s / %s not found", rulesBegin, rulesEnd)
	}
	var nb bytes.Buffer
	nb.Write(doc[:i])
	nb.Write(start)
	nb.WriteString("\n")
	nb.WriteString(section)
	nb.Write(doc[j:])
	return nb.Bytes(), nil
}

// gendocs regenerates the rules section of README.md between the markers
// <!-- BEGIN:RULES --> and <!-- END:RULES -->.
func init() {
	var path string
	cmd := &cobra.Command{
		Use:    "gendocs",
		Short:  "Regenerate the README rules section",
		Hidden: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			b, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			rs, err := rules.Builtin()
			if err != nil {
				return err
			}
			nb, err := spliceMarkers(b, rulesMarkdown(rs))
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			return os.WriteFile(path, nb, 0644)
		},
	}
	cmd.Flags().StringVar(&path, "file", "README.md", "markdown file to update")
	rootCmd.AddCommand(cmd)
}
