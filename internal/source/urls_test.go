package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSkillURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://github.com/acme/skills/blob/main/weather/SKILL.md", "https://raw.githubusercontent.com/acme/skills/main/weather/SKILL.md"},
		{"https://github.com/acme/skills/tree/dev/weather", "https://raw.githubusercontent.com/acme/skills/dev/weather/SKILL.md"},
		{"https://github.com/acme/skills/tree/dev", "https://raw.githubusercontent.com/acme/skills/dev/SKILL.md"},
		{"https://github.com/acme/skills", "https://raw.githubusercontent.com/acme/skills/main/SKILL.md"},
		{"https://github.com/acme/skills/issues/4", "https://github.com/acme/skills/issues/4"},
		{"https://clawhub.ai/alice/weather-pro", "https://auth.clawdhub.com/api/v1/download?slug=weather-pro"},
		{"https://clawhub.ai/skills/weather-pro", "https://clawhub.ai/skills/weather-pro"},
		{"https://clawhub.ai/alice", "https://clawhub.ai/alice"},
		{"https://example.com/SKILL.md", "https://example.com/SKILL.md"},
		{"not a url", "not a url"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeSkillURL(tt.in))
		})
	}
}

func TestIsZipResponse(t *testing.T) {
	assert.True(t, IsZipResponse("Application/Zip; charset=binary", "https://example.com/x"))
	assert.True(t, IsZipResponse("", "https://auth.clawdhub.com/api/v1/download?slug=x"))
	assert.False(t, IsZipResponse("text/markdown", "https://auth.clawdhub.com/api/v1/other"))
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("https://example.com"))
	assert.True(t, IsRemote("http://example.com"))
	assert.False(t, IsRemote("./SKILL.md"))
	assert.False(t, IsRemote("oci://ghcr.io/acme/skill"))
}
