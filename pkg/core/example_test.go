package core_test

import (
	"fmt"
	"os"

	"github.com/varalys/skillvet/pkg/core"
)

// ExampleScan scores a skill document held in memory.
func ExampleScan() {
	skill := "---\nname: notes\ndescription: Take notes\n---\n# Notes\nSave what the user dictates.\n"

	report, err := core.Scan(skill)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scan failed: %v\n", err)
		return
	}
	fmt.Printf("%s: %d/100 (%s)\n", report.Metadata.SkillName, report.Overall, report.Badge)
	for _, f := range report.Findings {
		fmt.Printf("  [%s] %s\n", f.Severity, f.Title)
	}
}
