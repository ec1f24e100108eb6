package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varalys/skillvet/internal/ctxparse"
	"github.com/varalys/skillvet/internal/detectors"
	"github.com/varalys/skillvet/internal/parser"
	"github.com/varalys/skillvet/internal/types"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		finding types.Finding
		want    bool
	}{
		{"credential keyword", "credential_access", types.Finding{Title: "Credential access detected", Evidence: "read .env"}, true},
		{"credential kind prefix", "credentials", types.Finding{Evidence: "cat ~/.ssh/id_rsa"}, true},
		{"network evidence", "network", types.Finding{Title: "Unknown external reference", Evidence: "https://a.example.net"}, true},
		{"file write", "file_write", types.Finding{Title: "State persistence detected"}, true},
		{"system", "system_modification", types.Finding{Title: "System modification detected"}, true},
		{"exec", "shell_exec", types.Finding{Description: "runs a command"}, true},
		{"kind mismatch", "network", types.Finding{Title: "Hardcoded API key or secret detected", Evidence: "ghp_..."}, false},
		{"unknown kind", "camera", types.Finding{Title: "Network transmission detected"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := Match(tt.finding, []types.DeclaredPermission{{Kind: tt.kind, Justification: "needed"}})
			assert.Equal(t, tt.want, ok)
			if ok {
				assert.Equal(t, tt.kind, d.Kind)
			}
		})
	}
}

func TestMatch_FirstDeclarationWins(t *testing.T) {
	declared := []types.DeclaredPermission{
		{Kind: "exec", Justification: "runs the formatter"},
		{Kind: "network", Justification: "fetches data"},
	}
	d, ok := Match(types.Finding{Title: "Network transmission", Evidence: "run curl against the endpoint"}, declared)
	require.True(t, ok)
	assert.Equal(t, "exec", d.Kind)
}

func TestApply_LeavesScoringFieldsAlone(t *testing.T) {
	in := []types.Finding{
		{ID: "BEH-1", Title: "Network transmission detected", Description: "d", Evidence: "post to a webhook url", Severity: types.SevMed, Deduction: 10},
		{ID: "CONT-1", Title: "No explicit safety boundaries", Description: "d", Severity: types.SevLow, Deduction: 10},
	}
	out := Apply(in, []types.DeclaredPermission{{Kind: "network", Justification: "calls a weather API"}})

	require.Len(t, out, 2)
	assert.Equal(t, "Network transmission detected (declared: network)", out[0].Title)
	assert.Equal(t, "d\n\nDeclared permission: network - calls a weather API", out[0].Description)
	assert.Equal(t, 10, out[0].Deduction)
	assert.Equal(t, types.SevMed, out[0].Severity)
	assert.Equal(t, in[1], out[1])
	assert.Equal(t, "Network transmission detected", in[0].Title, "input is not mutated")
}

func TestApply_NoDeclarations(t *testing.T) {
	in := []types.Finding{{ID: "X", Title: "t"}}
	assert.Equal(t, in, Apply(in, nil))
	assert.Nil(t, Apply(nil, []types.DeclaredPermission{{Kind: "network"}}))
}

func TestDeclaredNetworkPermission(t *testing.T) {
	content := "---\nname: weather\ndescription: Gets the weather forecast for a city\npermissions:\n  - network: \"calls a weather API\"\n---\n" +
		"# Weather\n\nFetch the forecast from https://api.weather-data.example.net/v1 for the city.\n"
	skill := parser.Parse(content)
	require.Len(t, skill.DeclaredPermissions, 1)

	suite, err := detectors.New(nil)
	require.NoError(t, err)
	before, err := suite.Dependencies(skill, ctxparse.Build(content))
	require.NoError(t, err)
	require.NotEmpty(t, before.Findings)

	cats := Categories(map[types.Category]types.CategoryScore{types.CatDependencies: before}, skill.DeclaredPermissions)
	after := detectors.Rescore(types.CatDependencies, cats[types.CatDependencies].Findings)

	f := after.Findings[0]
	assert.Equal(t, "Unknown external reference (declared: network)", f.Title)
	assert.Contains(t, f.Description, "Declared permission: network - calls a weather API")
	assert.Equal(t, before.Findings[0].Deduction, f.Deduction)
	assert.Equal(t, before.Score, after.Score)
}
