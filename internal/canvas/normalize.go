// Package canvas implements the board document passes that run around
// persistence: normalization before a save and reference resolution after
// a load.
package canvas

import "moodboard/internal/models"

// Normalize strips derived image payloads so that imageId is the only
// reference persisted for image objects. The input document is not
// modified.
func Normalize(doc models.Document) models.Document {
	out := doc.Clone()
	for i := range out.Objects {
		obj := &out.Objects[i]
		if obj.ImageRef() == "" {
			continue
		}
		obj.Image.Src = nil
		delete(obj.Properties, "src")
	}
	return out
}

// ReferencedImageIDs returns the distinct image ids referenced by doc, in
// first-seen order.
func ReferencedImageIDs(doc models.Document) []string {
	seen := map[string]struct{}{}
	ids := make([]string, 0)
	for _, obj := range doc.Objects {
		id := obj.ImageRef()
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// References reports whether doc references imageID.
func References(doc models.Document, imageID string) bool {
	for _, obj := range doc.Objects {
		if obj.ImageRef() == imageID {
			return true
		}
	}
	return false
}
