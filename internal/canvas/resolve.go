package canvas

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"

	"moodboard/internal/models"
)

// ImageLookup reports which of the given image ids exist.
type ImageLookup interface {
	ExistingImageIDs(ctx context.Context, ids []string) (map[string]bool, error)
}

// URLBuilder derives public URLs for stored assets.
type URLBuilder struct {
	BaseURL string
}

// ImageURL returns the URL that serves the image bytes.
func (b URLBuilder) ImageURL(id string) string {
	return strings.TrimRight(b.BaseURL, "/") + "/images/" + url.PathEscape(id) + "/file"
}

// FileURL returns the URL that serves a file download.
func (b URLBuilder) FileURL(id string) string {
	return strings.TrimRight(b.BaseURL, "/") + "/files/" + url.PathEscape(id) + "/download"
}

// Resolve fills properties.src for image objects whose imageId exists and
// whose src is absent or empty. Unknown ids and lookup failures are logged
// and leave the object without src. An src that is already set is never
// replaced, so resolving twice is the same as resolving once.
func Resolve(ctx context.Context, doc models.Document, lookup ImageLookup, urls URLBuilder, logger *slog.Logger) models.Document {
	if logger == nil {
		logger = slog.Default()
	}
	out := doc.Clone()

	pending := make([]string, 0)
	seen := map[string]struct{}{}
	for _, obj := range out.Objects {
		if !needsSrc(obj) {
			continue
		}
		id := obj.ImageRef()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		pending = append(pending, id)
	}
	if len(pending) == 0 {
		return out
	}

	existing := map[string]bool{}
	if lookup != nil {
		found, err := lookup.ExistingImageIDs(ctx, pending)
		if err != nil {
			logger.Warn("image reference lookup failed", "image_ids", pending, "error", err)
		} else {
			existing = found
		}
	}

	for i := range out.Objects {
		obj := &out.Objects[i]
		if !needsSrc(*obj) {
			continue
		}
		id := obj.ImageRef()
		if !existing[id] {
			logger.Warn("unresolved image reference", "object_id", obj.ID, "image_id", id)
			continue
		}
		encoded, err := json.Marshal(urls.ImageURL(id))
		if err != nil {
			continue
		}
		if obj.Properties == nil {
			obj.Properties = map[string]json.RawMessage{}
		}
		obj.Properties["src"] = encoded
	}
	return out
}

func needsSrc(obj models.CanvasObject) bool {
	if obj.ImageRef() == "" {
		return false
	}
	src, ok := obj.PropertySrc()
	if ok && src != "" {
		return false
	}
	if raw, present := obj.Properties["src"]; present && !ok {
		// Non-string src values are client data and are left alone unless null.
		return isNull(raw)
	}
	return true
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}
