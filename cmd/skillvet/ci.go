package skillvet

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var ciProviders = []string{"github", "gitlab", "bitbucket", "azure"}

// ciTemplate returns the pipeline file path and contents for provider.
func ciTemplate(provider string) (string, string, error) {
	switch provider {
	case "github":
		return ".github/workflows/skillvet.yml", `name: skillvet
on:
  pull_request:
  push:
    branches: [main]
permissions:
  contents: read
  security-events: write
jobs:
  scan:
    runs-on: ubuntu-latest
    steps:
      - uses: actions/checkout@v4
        with:
          fetch-depth: 0
      - uses: actions/setup-go@v5
        with:
          go-version: '1.25.x'
      - run: go install github.com/varalys/skillvet@latest
      - name: SkillVet scan
        run: skillvet scan --github-output --fail-on high ${{ github.event_name == 'pull_request' && format('--base origin/{0}', github.base_ref) || '' }}
      - uses: github/codeql-action/upload-sarif@v3
        if: always()
        with:
          sarif_file: skillvet-results.sarif
`, nil
	case "gitlab":
		return ".gitlab-ci.yml", `stages: [scan]
skillvet:
  stage: scan
  image: golang:1.25
  script:
    - go install github.com/varalys/skillvet@latest
    - skillvet scan --json --out skillvet-report.json --fail-on high
  artifacts:
    when: always
    paths:
      - skillvet-report.json
`, nil
	case "bitbucket":
		return "bitbucket-pipelines.yml", `pipelines:
  default:
    - step:
        name: SkillVet Scan
        image: golang:1.25
        caches:
          - go
        script:
          - go install github.com/varalys/skillvet@latest
          - skillvet scan --json --out skillvet-report.json --fail-on high
        artifacts:
          - skillvet-report.json
`, nil
	case "azure":
		return "azure-pipelines.yml", `trigger:
- main

pool:
  vmImage: 'ubuntu-latest'

steps:
- task: GoTool@0
  inputs:
    version: '1.25.x'
- script: |
    go install github.com/varalys/skillvet@latest
    $(go env GOPATH)/bin/skillvet scan --sarif --out skillvet.sarif --fail-on high
  displayName: 'SkillVet Scan'
- publish: skillvet.sarif
  artifact: skillvet-sarif
  condition: succeededOrFailed()
`, nil
	}
	return "", "", fmt.Errorf("unknown --provider %q. Supported: %s", provider, strings.Join(ciProviders, ", "))
}

func init() {
	ci := &cobra.Command{Use: "ci", Short: "CI template helpers for multiple providers"}
	rootCmd.AddCommand(ci)

	var provider string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a CI pipeline template for your provider",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, content, err := ciTemplate(provider)
			if err != nil {
				return err
			}
			// ensure parent directories exist if needed
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Wrote", path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&provider, "provider", "", "CI provider: "+strings.Join(ciProviders, " | "))
	completeValues(initCmd, "provider", ciProviders...)
	if err := initCmd.MarkFlagRequired("provider"); err != nil {
		fmt.Fprintln(os.Stderr, "warning: could not mark --provider as required:", err)
	}
	ci.AddCommand(initCmd)
}
