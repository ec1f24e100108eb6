package engine

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
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

	"github.com/varalys/skillvet/internal/cache"
	"github.com/varalys/skillvet/internal/types"
)

func newTestScanner(t *testing.T) *Scanner {
	t.Helper()
	return NewScanner(newTestPipeline(t))
}

func TestScanTargets_LocalAndFailures(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, root, "a/SKILL.md", benignSkill)
	b := writeFile(t, root, "b/SKILL.md", benignSkill)
	missing := filepath.Join(root, "gone", "SKILL.md")
	elf := append([]byte{0x7f, 'E', 'L', 'F'}, make([]byte, 64)...)
	writeFile(t, root, "b/tool", string(elf))

	var progress []int
	s := newTestScanner(t)
	batch := s.ScanTargets(context.Background(), []string{a, missing, b}, Options{
		Concurrency: 2,
		Progress: func(done, total int, target string, badge types.Badge) {
			assert.Equal(t, 3, total)
			progress = append(progress, done)
		},
	})

	require.Len(t, batch.Reports, 2)
	assert.Equal(t, a, batch.Reports[0].Target)
	assert.Equal(t, b, batch.Reports[1].Target)
	require.Len(t, batch.Failures, 1)
	assert.Equal(t, types.ScanFailure{Target: missing, Error: "Target not found: " + missing}, batch.Failures[0])
	assert.ElementsMatch(t, []int{1, 2, 3}, progress)
	assert.Equal(t, 2, batch.Concurrency)

	depsA := batch.Reports[0].Report.Categories[types.CatDependencies]
	depsB := batch.Reports[1].Report.Categories[types.CatDependencies]
	assert.Equal(t, max(0, depsA.Score-25), depsB.Score, "binary finding deducts 25")
	last := depsB.Findings[len(depsB.Findings)-1]
	assert.Equal(t, "DEP-BINARY-1", last.ID)
	assert.Equal(t, "tool", last.Evidence)
}

func TestScanTargets_DefaultConcurrency(t *testing.T) {
	batch := newTestScanner(t).ScanTargets(context.Background(), nil, Options{})
	assert.Equal(t, DefaultConcurrency, batch.Concurrency)
	assert.Empty(t, batch.Reports)
	assert.Empty(t, batch.Failures)
}

func TestScanTarget_DataURL(t *testing.T) {
	url := "data:text/markdown;base64," + base64.StdEncoding.EncodeToString([]byte(benignSkill))
	tr, err := newTestScanner(t).ScanTarget(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, "Weather Lookup", tr.Report.Metadata.SkillName)
}

func TestScanTarget_BlockedURLFails(t *testing.T) {
	_, err := newTestScanner(t).ScanTarget(context.Background(), "https://169.254.169.254/latest/meta-data")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Blocked IP address for security reasons")
}

func TestScanTargets_ReportCache(t *testing.T) {
	root := t.TempDir()
	skill := writeFile(t, root, "s/SKILL.md", benignSkill)
	s := newTestScanner(t)

	first := s.ScanTargets(context.Background(), []string{skill}, Options{CacheRoot: root})
	require.Len(t, first.Reports, 1)

	db, err := cache.Load(root)
	require.NoError(t, err)
	e, ok := db.Entries["s/SKILL.md"]
	require.True(t, ok)
	assert.Equal(t, contentKey(benignSkill, s.Pipeline.RulesDigest()), e.Hash)

	// a planted entry with the right hash is served without rescanning
	e.Report.Overall = 7
	db.Entries["s/SKILL.md"] = e
	require.NoError(t, cache.Save(root, db))
	second := s.ScanTargets(context.Background(), []string{skill}, Options{CacheRoot: root})
	assert.Equal(t, 7, second.Reports[0].Report.Overall)

	// edits invalidate it
	require.NoError(t, os.WriteFile(skill, []byte(benignSkill+"\nMore text.\n"), 0644))
	third := s.ScanTargets(context.Background(), []string{skill}, Options{CacheRoot: root})
	assert.NotEqual(t, 7, third.Reports[0].Report.Overall)
}

func TestScanTarget_OCI(t *testing.T) {
	srv := httptest.NewServer(registry.New())
	defer srv.Close()
	host := strings.TrimPrefix(srv.URL, "http://")

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "skill/SKILL.md", Mode: 0644, Size: int64(len(benignSkill)), Typeflag: tar.TypeReg}))
	_, err := tw.Write([]byte(benignSkill))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	blob := buf.Bytes()

	layer, err := tarball.LayerFromOpener(func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(blob)), nil
	})
	require.NoError(t, err)
	img, err := mutate.AppendLayers(empty.Image, layer)
	require.NoError(t, err)
	ref, err := name.ParseReference(host+"/acme/weather:2.1", name.Insecure)
	require.NoError(t, err)
	require.NoError(t, remote.Write(ref, img))

	s := newTestScanner(t)
	s.registryOpts = []name.Option{name.Insecure}
	tr, err := s.ScanTarget(context.Background(), "oci://"+host+"/acme/weather:2.1")
	require.NoError(t, err)
	assert.Equal(t, "Weather Lookup", tr.Report.Metadata.SkillName)
}
