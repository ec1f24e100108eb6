package artifacts

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/registry"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/tarball"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchSkillFromRegistry_InvalidRef(t *testing.T) {
	_, err := FetchSkillFromRegistry(context.Background(), "oci://invalid reference", DefaultLimits())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid image reference")
}

func TestIsOCIRef(t *testing.T) {
	assert.True(t, IsOCIRef("oci://ghcr.io/acme/skill:1.0"))
	assert.True(t, IsOCIRef("OCI://ghcr.io/acme/skill"))
	assert.False(t, IsOCIRef("https://ghcr.io/acme/skill"))
}

func TestFetchSkillFromRegistry_InMemory(t *testing.T) {
	srv := httptest.NewServer(registry.New())
	defer srv.Close()
	host := strings.TrimPrefix(srv.URL, "http://")

	base := makeTar(t, entry{"skill/SKILL.md", "# Old"}, entry{"skill/README.md", "readme"})
	top := makeTar(t, entry{"skill/SKILL.md", "# New"})

	img := empty.Image
	for _, blob := range [][]byte{base, top} {
		blob := blob
		layer, err := tarball.LayerFromOpener(func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(blob)), nil
		})
		require.NoError(t, err)
		img, err = mutate.AppendLayers(img, layer)
		require.NoError(t, err)
	}

	ref, err := name.ParseReference(host+"/acme/weather:1.0", name.Insecure)
	require.NoError(t, err)
	require.NoError(t, remote.Write(ref, img))

	got, err := FetchSkillFromRegistry(context.Background(), "oci://"+host+"/acme/weather:1.0", DefaultLimits(), name.Insecure)
	require.NoError(t, err)
	assert.Equal(t, "skill/SKILL.md", got.Path)
	assert.Equal(t, "# New", got.Content)
}
