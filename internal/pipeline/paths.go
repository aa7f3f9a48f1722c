package pipeline

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/rohits-web03/meshforge/internal/generation"
)

const fallbackName = "model"

// BlobKind is one of the files a saved model can carry.
type BlobKind string

const (
	KindGLB       BlobKind = "glb"
	KindUSDZ      BlobKind = "usdz"
	KindThumbnail BlobKind = "thumbnail"
)

// Dir is the per-owner folder the kind is stored under.
func (k BlobKind) Dir() string {
	if k == KindThumbnail {
		return "thumbnails"
	}
	return string(k)
}

func (k BlobKind) Ext() string {
	if k == KindThumbnail {
		return "png"
	}
	return string(k)
}

func (k BlobKind) ContentType() string {
	switch k {
	case KindGLB:
		return "model/gltf-binary"
	case KindUSDZ:
		return "model/vnd.usdz+zip"
	case KindThumbnail:
		return "image/png"
	}
	return "application/octet-stream"
}

// Paths are the storage keys of a record. An empty key means the asset is
// absent.
type Paths struct {
	GLB       string
	USDZ      string
	Thumbnail string
}

// SanitizeName turns a user-supplied model name into a storage-safe slug.
func SanitizeName(name string) string {
	s := slug.Make(strings.TrimSpace(name))
	if s == "" {
		return fallbackName
	}
	return s
}

func objectKey(owner uuid.UUID, kind BlobKind, name string, tsMs int64) string {
	return fmt.Sprintf("%s/%s/%s_%d.%s", owner, kind.Dir(), SanitizeName(name), tsMs, kind.Ext())
}

// BuildPaths derives the keys for result. Each key is present only when the
// matching source URL is, and equal inputs always give equal keys.
func BuildPaths(owner uuid.UUID, name string, tsMs int64, result generation.Result) Paths {
	var p Paths
	if result.ModelURL != "" {
		p.GLB = objectKey(owner, KindGLB, name, tsMs)
	}
	if result.USDZURL != "" {
		p.USDZ = objectKey(owner, KindUSDZ, name, tsMs)
	}
	if result.ThumbnailURL != "" {
		p.Thumbnail = objectKey(owner, KindThumbnail, name, tsMs)
	}
	return p
}

type transfer struct {
	kind   BlobKind
	source string
	key    string
}

func transfers(p Paths, result generation.Result) []transfer {
	var out []transfer
	if p.GLB != "" {
		out = append(out, transfer{kind: KindGLB, source: result.ModelURL, key: p.GLB})
	}
	if p.USDZ != "" {
		out = append(out, transfer{kind: KindUSDZ, source: result.USDZURL, key: p.USDZ})
	}
	if p.Thumbnail != "" {
		out = append(out, transfer{kind: KindThumbnail, source: result.ThumbnailURL, key: p.Thumbnail})
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
