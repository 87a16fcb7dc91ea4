package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jinzhu/inflection"
)

// PushResult records the outcome of submitting one mirrored record to
// the target.
type PushResult struct {
	// Resource is the resource type of the record.
	Resource string

	// ID is the record's assigned identifier.
	ID string

	// Title is the human-readable title, when the record has one.
	Title string

	// Err is the write failure, or nil on success.
	Err error
}

// Push is the terminal phase: it replays the persisted mirror tree
// against the target transport. For every journal directory it submits
// the journal body, then each subresource body, in schema order. Write
// failures are surfaced per record; the replay continues past them.
func (h *Handler) Push(ctx context.Context) ([]PushResult, error) {
	if h.target == nil {
		return nil, ErrNoTarget
	}

	if err := h.writeMeta(map[string]any{"push_started": time.Now().Format(timestampLayout)}); err != nil {
		return nil, err
	}

	root := h.schema.Root
	journals, err := readIndex(filepath.Join(h.dataDir, root, indexFileName))
	if err != nil {
		return nil, fmt.Errorf("reading %s index: %w", root, err)
	}

	children := h.schema.ChildrenOf(root)
	h.reporter.Major("Pushing journal data...", len(journals))

	var results []PushResult
	for i, entry := range journals {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		journal, ok := entry.(Record)
		if !ok {
			return results, fmt.Errorf("journals index entry %d: not an object", i)
		}
		id, ok := assignedID(journal)
		if !ok {
			h.reporter.Debug(fmt.Sprintf("Skipping journal %q: no source record key", recordTitle(journal)))
			continue
		}
		pk, _ := sourcePK(journal)
		journalDir := filepath.Join(h.dataDir, root, id)

		h.reporter.Minor(i, fmt.Sprintf("Pushing journal: %s", recordTitle(journal)), 1+len(children))

		results = append(results, h.pushRecord(ctx, PushResult{
			Resource: inflection.Singular(root),
			ID:       id,
			Title:    recordTitle(journal),
		}, root, filepath.Join(journalDir, inflection.Singular(root)+".json")))

		for j, sub := range children {
			h.reporter.Detail(j+1, fmt.Sprintf("Pushing %s", sub))

			listing, err := readIndex(filepath.Join(journalDir, sub, indexFileName))
			if err != nil {
				return results, fmt.Errorf("journal %q: reading %s index: %w", recordTitle(journal), sub, err)
			}
			path := fmt.Sprintf("%s/%s/%s", root, pk, sub)

			for _, item := range listing {
				record, ok := item.(Record)
				if !ok {
					continue
				}
				recordID, ok := assignedID(record)
				if !ok {
					continue
				}
				body := filepath.Join(journalDir, sub, recordID, inflection.Singular(sub)+".json")
				if !fileExists(body) {
					// Entries routed to custom handlers leave no body file.
					continue
				}
				results = append(results, h.pushRecord(ctx, PushResult{
					Resource: inflection.Singular(sub),
					ID:       recordID,
					Title:    recordTitle(record),
				}, path, body))
			}
		}
		h.reporter.Detail(1+len(children), "Done!")
	}

	if err := h.writeMeta(map[string]any{"push_finished": time.Now().Format(timestampLayout)}); err != nil {
		return results, err
	}
	return results, nil
}

// pushRecord reads one mirrored body file and submits it.
func (h *Handler) pushRecord(ctx context.Context, result PushResult, path, file string) PushResult {
	body, err := readJSON(file)
	if err != nil {
		result.Err = fmt.Errorf("reading %s body: %w", result.Resource, err)
		return result
	}

	h.reporter.Debug(fmt.Sprintf("POST %s (%s %s)", path, result.Resource, result.ID))
	if err := h.target.Put(ctx, path, body); err != nil {
		result.Err = fmt.Errorf("pushing %s %s: %w", result.Resource, result.ID, err)
	}
	return result
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
