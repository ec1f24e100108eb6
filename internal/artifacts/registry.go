package artifacts

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
)

// OCIScheme prefixes targets that name a skill bundle in an OCI registry.
const OCIScheme = "oci://"

// IsOCIRef reports whether target names a registry artifact.
func IsOCIRef(target string) bool {
	return strings.HasPrefix(strings.ToLower(target), OCIScheme)
}

// FetchSkillFromRegistry pulls the image named by ref (with or without the
// oci:// prefix) and picks the skill document out of its layers. Layers are
// streamed, never written to disk, and a later layer's copy of a path
// replaces an earlier one. The local Docker credentials are used when present.
func FetchSkillFromRegistry(ctx context.Context, ref string, lim Limits, opts ...name.Option) (Skill, error) {
	imageRef := ref
	if IsOCIRef(ref) {
		imageRef = ref[len(OCIScheme):]
	}
	parsed, err := name.ParseReference(imageRef, opts...)
	if err != nil {
		return Skill{}, fmt.Errorf("invalid image reference %q: %w", imageRef, err)
	}

	img, err := remote.Image(parsed,
		remote.WithAuthFromKeychain(authn.DefaultKeychain),
		remote.WithContext(ctx),
	)
	if err != nil {
		return Skill{}, fmt.Errorf("failed to fetch image metadata for %q: %w", imageRef, err)
	}

	layers, err := img.Layers()
	if err != nil {
		return Skill{}, fmt.Errorf("failed to get layers for %q: %w", imageRef, err)
	}

	c := newCollector(lim)
	for _, layer := range layers {
		if err := ctx.Err(); err != nil {
			return Skill{}, err
		}
		digest, err := layer.Digest()
		if err != nil {
			return Skill{}, fmt.Errorf("layer digest for %q: %w", imageRef, err)
		}
		rc, err := layer.Uncompressed()
		if err != nil {
			return Skill{}, fmt.Errorf("failed to read layer %s: %w", digest, err)
		}
		err = c.scanTar(rc)
		_ = rc.Close()
		if err != nil {
			return Skill{}, fmt.Errorf("layer %s: %w", digest, err)
		}
	}
	return c.pick()
}
