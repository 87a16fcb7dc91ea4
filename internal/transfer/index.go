package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jinzhu/inflection"
)

// buildIndex fetches and persists the index listing for one resource
// type under basePath. The directory is named by the pluralized
// resource name; fetchPath defaults to that name, so top-level types
// list themselves while parent-scoped callers pass an explicit path.
//
// Either the full listing is written or the call fails before any
// write. With no source transport configured the call is a silent
// no-op, which supports target-only runs.
func (h *Handler) buildIndex(ctx context.Context, basePath, resource, fetchPath string, params map[string]string) (string, []any, error) {
	if h.source == nil {
		return "", nil, nil
	}

	plural := inflection.Plural(resource)
	dir := filepath.Join(basePath, plural)
	if err := os.Mkdir(dir, 0755); err != nil {
		return "", nil, fmt.Errorf("creating %s index directory: %w", plural, err)
	}

	if fetchPath == "" {
		fetchPath = plural
	}

	file := filepath.Join(dir, indexFileName)
	value, err := h.doFetch(ctx, fetchPath, file, params, true)
	if err != nil {
		return "", nil, err
	}

	listing, _ := value.([]any)
	h.recordsSeen += len(listing)
	return file, listing, nil
}
