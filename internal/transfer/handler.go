// Package transfer implements the hierarchical resource
// synchronization engine. It walks the declared resource schema,
// assigns run-stable identifiers to every fetched record, persists an
// on-disk mirror of the remote hierarchy, and drives the two-phase
// index-then-fetch protocol plus the push replay against a target.
package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/inflection"

	"github.com/calpub/journal-transporter/internal/datadir"
	"github.com/calpub/journal-transporter/internal/progress"
	"github.com/calpub/journal-transporter/internal/transport"
)

const (
	// AppName is recorded in every run's metadata file.
	AppName = "Journal Transporter"

	// Version is the application version recorded in run metadata.
	Version = "0.2.0"

	indexFileName   = "index.json"
	usersDirName    = "users"
	initiatedLayout = "2006/01/02 at 15:04:05"
	timestampLayout = time.RFC3339
)

// Stage identifies a phase of a transfer run.
type Stage string

// Transfer stages, in order.
const (
	StageIndexing Stage = "indexing"
	StageFetching Stage = "fetch"
	StagePushing  Stage = "push"
)

var stageOrder = []Stage{StageIndexing, StageFetching, StagePushing}

var (
	// ErrAlreadyIndexed indicates the current tree already holds an
	// index; runs require a fresh tree.
	ErrAlreadyIndexed = errors.New("data directory already contains an index; reset it before re-running")

	// ErrNoTarget indicates a push was attempted without a target
	// transport configured.
	ErrNoTarget = errors.New("no target transport configured")
)

// Handler owns one transfer run: the identifier namespace, the mirror
// tree, the transports, and the progress reporter. Exactly one Handler
// exists per run.
type Handler struct {
	dataDir  string // <root>/current
	source   transport.Transport
	target   transport.Transport
	reporter progress.Reporter
	schema   Schema
	registry *HandlerRegistry

	namespace   uuid.UUID
	recordsSeen int

	metaFile string
	metadata map[string]any
}

// Option configures a Handler.
type Option func(*Handler)

// WithReporter sets the progress reporter.
func WithReporter(r progress.Reporter) Option {
	return func(h *Handler) { h.reporter = r }
}

// WithSchema replaces the default resource schema.
func WithSchema(s Schema) Option {
	return func(h *Handler) { h.schema = s }
}

// WithNamespace fixes the identifier namespace instead of generating
// a fresh one.
func WithNamespace(ns uuid.UUID) Option {
	return func(h *Handler) { h.namespace = ns }
}

// WithFetchHandler registers a custom phase-2 handler for a resource
// type.
func WithFetchHandler(resource string, handler FetchHandler) Option {
	return func(h *Handler) { h.registry.Register(resource, handler) }
}

// NewHandler creates the handler for one run rooted at dataDir. Either
// transport may be nil: a nil source makes the fetch phases no-ops
// (target-only runs), a nil target makes Push fail with ErrNoTarget.
//
// The run's metadata file is written immediately. If one already
// exists, its transaction id is adopted as the identifier namespace so
// identifiers stay consistent across process runs against one tree.
func NewHandler(dataRoot string, source, target transport.Transport, opts ...Option) (*Handler, error) {
	h := &Handler{
		dataDir:  datadir.Current(dataRoot),
		source:   source,
		target:   target,
		reporter: progress.Nop{},
		schema:   DefaultSchema,
		registry: NewHandlerRegistry(),
	}
	h.registry.Register("roles", h.fetchRoleUser)
	for _, opt := range opts {
		opt(h)
	}

	if err := h.initMetadata(); err != nil {
		return nil, err
	}
	return h, nil
}

// Namespace returns the run's identifier namespace.
func (h *Handler) Namespace() uuid.UUID {
	return h.namespace
}

// RecordsSeen returns the number of index entries seen so far.
func (h *Handler) RecordsSeen() int {
	return h.recordsSeen
}

// initMetadata creates or adopts the run metadata file.
func (h *Handler) initMetadata() error {
	if err := os.MkdirAll(h.dataDir, 0755); err != nil {
		return fmt.Errorf("creating current directory: %w", err)
	}
	h.metaFile = filepath.Join(h.dataDir, indexFileName)

	existing, err := readJSON(h.metaFile)
	switch {
	case err == nil:
		meta, ok := existing.(map[string]any)
		if !ok {
			return fmt.Errorf("parsing run metadata: not an object")
		}
		txn, _ := meta["transaction_id"].(string)
		ns, err := uuid.Parse(txn)
		if err != nil {
			return fmt.Errorf("parsing transaction id: %w", err)
		}
		h.namespace = ns
		h.metadata = meta
		return nil
	case !errors.Is(err, fs.ErrNotExist):
		return err
	}

	if h.namespace == uuid.Nil {
		// Time-based: the namespace doubles as a unique run id.
		ns, err := uuid.NewUUID()
		if err != nil {
			return fmt.Errorf("generating run namespace: %w", err)
		}
		h.namespace = ns
	}

	h.metadata = map[string]any{
		"application":    AppName,
		"version":        Version,
		"initiated":      time.Now().Format(initiatedLayout),
		"transaction_id": h.namespace.String(),
	}
	return writeJSON(h.metaFile, h.metadata)
}

// writeMeta merges data into the run metadata file.
func (h *Handler) writeMeta(data map[string]any) error {
	for key, value := range data {
		h.metadata[key] = value
	}
	if err := writeJSON(h.metaFile, h.metadata); err != nil {
		return fmt.Errorf("updating run metadata: %w", err)
	}
	return nil
}

// Stage returns the stage currently in progress, or "" if no stage
// has started or the last started stage finished.
func (h *Handler) Stage() Stage {
	for _, stage := range stageOrder {
		started := h.metadata[string(stage)+"_started"]
		finished := h.metadata[string(stage)+"_finished"]
		if started != nil && finished == nil {
			return stage
		}
	}
	return ""
}

// JournalContext carries the per-journal traversal state threaded
// through phase-2 calls.
type JournalContext struct {
	// ID is the journal's assigned identifier.
	ID string

	// SourcePK is the journal's remote-native primary key.
	SourcePK string

	// Title is the journal's human-readable title.
	Title string

	// Dir is the journal's mirror directory.
	Dir string
}

// BuildIndexes is phase 1: it fetches the journals index (filtered by
// journalPaths; empty means all journals, the filter is applied by the
// source server) and, for every listed journal, an index of each
// declared subresource type.
func (h *Handler) BuildIndexes(ctx context.Context, journalPaths []string) error {
	if h.source == nil {
		return nil
	}

	root := h.schema.Root
	if _, err := os.Stat(filepath.Join(h.dataDir, root)); err == nil {
		return ErrAlreadyIndexed
	}

	if err := h.writeMeta(map[string]any{"indexing_started": time.Now().Format(timestampLayout)}); err != nil {
		return err
	}
	h.reporter.Debug("Fetching journal index from source.")

	params := map[string]string{"paths": joinPaths(journalPaths)}
	indexFile, journals, err := h.buildIndex(ctx, h.dataDir, inflection.Singular(root), "", params)
	if err != nil {
		return err
	}

	children := h.schema.ChildrenOf(root)
	h.reporter.Major("Fetching indexes...", len(journals))

	for i, entry := range journals {
		if err := ctx.Err(); err != nil {
			return err
		}
		journal, ok := entry.(Record)
		if !ok {
			return fmt.Errorf("journals index entry %d: not an object", i)
		}
		h.reporter.Minor(i, fmt.Sprintf("Fetching indexes for journal: %s", recordTitle(journal)), len(children))

		id, ok := assignedID(journal)
		if !ok {
			// No source record key, so no derivable directory name.
			h.reporter.Debug(fmt.Sprintf("Skipping journal %q: no source record key", recordTitle(journal)))
			continue
		}
		pk, _ := sourcePK(journal)

		journalDir := filepath.Join(filepath.Dir(indexFile), id)
		if err := os.Mkdir(journalDir, 0755); err != nil {
			return fmt.Errorf("creating journal directory for %q: %w", recordTitle(journal), err)
		}

		for j, sub := range children {
			h.reporter.Detail(j, fmt.Sprintf("Fetching %s index", sub))
			fetchPath := fmt.Sprintf("%s/%s/%s", root, pk, sub)
			file, listing, err := h.buildIndex(ctx, journalDir, inflection.Singular(sub), fetchPath, nil)
			if err != nil {
				return fmt.Errorf("journal %q: %w", recordTitle(journal), err)
			}
			h.reporter.Debug(fmt.Sprintf("Indexed %d %s record(s).", len(listing), sub))
			h.reporter.Debug(fmt.Sprintf("%s index for journal %q written to %s.", sub, recordTitle(journal), file))
		}

		h.reporter.Detail(len(children), "Done!")
		h.reporter.Debug(fmt.Sprintf("Finished fetching indexes for %s", recordTitle(journal)))
	}

	return h.writeMeta(map[string]any{"indexing_finished": time.Now().Format(timestampLayout)})
}

// FetchData is phase 2: it re-reads the persisted indexes and fetches
// every record body, dispatching entries to registered handlers where
// one exists and to the generic subresource fetch otherwise.
func (h *Handler) FetchData(ctx context.Context) error {
	if h.source == nil {
		return nil
	}

	if err := h.writeMeta(map[string]any{"fetch_started": time.Now().Format(timestampLayout)}); err != nil {
		return err
	}

	root := h.schema.Root
	journals, err := readIndex(filepath.Join(h.dataDir, root, indexFileName))
	if err != nil {
		return fmt.Errorf("reading %s index: %w", root, err)
	}

	children := h.schema.ChildrenOf(root)
	h.reporter.Major("Fetching journal data...", len(journals))

	for i, entry := range journals {
		if err := ctx.Err(); err != nil {
			return err
		}
		journal, ok := entry.(Record)
		if !ok {
			return fmt.Errorf("journals index entry %d: not an object", i)
		}
		id, ok := assignedID(journal)
		if !ok {
			h.reporter.Debug(fmt.Sprintf("Skipping journal %q: no source record key", recordTitle(journal)))
			continue
		}
		pk, _ := sourcePK(journal)

		jc := JournalContext{
			ID:       id,
			SourcePK: pk,
			Title:    recordTitle(journal),
			Dir:      filepath.Join(h.dataDir, root, id),
		}

		// Per-journal work: the journal body plus every listed entry.
		listings := make(map[string][]any, len(children))
		total := 1
		for _, sub := range children {
			listing, err := readIndex(filepath.Join(jc.Dir, sub, indexFileName))
			if err != nil {
				return fmt.Errorf("journal %q: reading %s index: %w", jc.Title, sub, err)
			}
			listings[sub] = listing
			total += len(listing)
		}

		h.reporter.Minor(i, fmt.Sprintf("Fetching data for journal: %s", jc.Title), total)

		step := 0
		h.reporter.Detail(step, "Fetching journal record")
		file := filepath.Join(jc.Dir, inflection.Singular(root)+".json")
		if _, err := h.doFetch(ctx, fmt.Sprintf("%s/%s", root, pk), file, nil, false); err != nil {
			return fmt.Errorf("journal %q: %w", jc.Title, err)
		}
		step++

		for _, sub := range children {
			handler, custom := h.registry.Lookup(sub)
			if !custom {
				handler = h.fetchSubresource
			}
			for _, item := range listings[sub] {
				record, ok := item.(Record)
				if !ok {
					return fmt.Errorf("journal %q: %s index entry: not an object", jc.Title, sub)
				}
				if err := handler(ctx, jc, sub, record); err != nil {
					return fmt.Errorf("journal %q: %s %q: %w", jc.Title, inflection.Singular(sub), sourceKeyForError(record), err)
				}
				h.reporter.Detail(step, fmt.Sprintf("Fetching %s", inflection.Singular(sub)))
				step++
			}
		}

		h.reporter.Detail(total, "Done!")
		h.reporter.Debug(fmt.Sprintf("Finished fetching data for %s", jc.Title))
	}

	return h.writeMeta(map[string]any{"fetch_finished": time.Now().Format(timestampLayout)})
}

// fetchSubresource is the generic phase-2 handler: it creates the
// entry's directory under the resource type and fetches the record
// body into it.
func (h *Handler) fetchSubresource(ctx context.Context, jc JournalContext, resource string, entry Record) error {
	id, ok := assignedID(entry)
	if !ok {
		// Not independently addressable; the index entry is all there is.
		h.reporter.Debug(fmt.Sprintf("Skipping %s entry: no source record key", resource))
		return nil
	}
	pk, _ := sourcePK(entry)

	dir := filepath.Join(jc.Dir, resource, id)
	if err := os.Mkdir(dir, 0755); err != nil {
		return fmt.Errorf("creating %s directory: %w", resource, err)
	}

	file := filepath.Join(dir, inflection.Singular(resource)+".json")
	path := fmt.Sprintf("%s/%s/%s/%s", h.schema.Root, jc.SourcePK, resource, pk)
	_, err := h.doFetch(ctx, path, file, nil, false)
	return err
}

// fetchRoleUser is the phase-2 handler for roles: instead of fetching
// a role body, it fetches the cross-referenced user into the flat
// users registry. A user is fetched at most once per run; the
// atomically created directory is the claim.
func (h *Handler) fetchRoleUser(ctx context.Context, jc JournalContext, resource string, entry Record) error {
	user, ok := entry["user"].(map[string]any)
	if !ok {
		return nil
	}
	id, ok := assignedID(user)
	if !ok {
		h.reporter.Debug("Skipping role user: no source record key")
		return nil
	}
	pk, _ := sourcePK(user)

	usersDir := filepath.Join(h.dataDir, usersDirName)
	if err := os.MkdirAll(usersDir, 0755); err != nil {
		return fmt.Errorf("creating users directory: %w", err)
	}

	userDir := filepath.Join(usersDir, id)
	if err := os.Mkdir(userDir, 0755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			h.reporter.Debug(fmt.Sprintf("User %s already fetched", pk))
			return nil
		}
		return fmt.Errorf("creating user directory: %w", err)
	}

	_, err := h.doFetch(ctx, "users/"+pk, filepath.Join(userDir, "user.json"), nil, false)
	return err
}

// doFetch performs one GET, assigns identifiers to the response, and
// persists it. The write happens only after the full response is read,
// so no partial record files are left behind on failure.
func (h *Handler) doFetch(ctx context.Context, apiPath, file string, params map[string]string, order bool) (any, error) {
	if h.source == nil {
		return nil, nil
	}

	h.reporter.Debug(fmt.Sprintf("GET %s %v", apiPath, params))
	value, err := h.source.Get(ctx, apiPath, params)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", apiPath, err)
	}

	AssignIdentifiers(h.namespace, value)
	if order {
		if listing, ok := value.([]any); ok {
			sortByRecordKey(listing)
		}
	}

	if err := writeJSON(file, value); err != nil {
		return nil, err
	}
	h.reporter.Debug(fmt.Sprintf("Written to %s", file))
	return value, nil
}

// sortByRecordKey orders a listing by source record key so persisted
// indexes are stable regardless of remote ordering.
func sortByRecordKey(listing []any) {
	sort.SliceStable(listing, func(i, j int) bool {
		a, _ := listing[i].(Record)
		b, _ := listing[j].(Record)
		ka, _ := sourceRecordKey(a)
		kb, _ := sourceRecordKey(b)
		return ka < kb
	})
}

func sourceKeyForError(rec Record) string {
	if key, ok := sourceRecordKey(rec); ok {
		return key
	}
	return "(no source record key)"
}

func joinPaths(paths []string) string {
	out := ""
	for i, p := range paths {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

// readIndex loads a persisted index listing.
func readIndex(file string) ([]any, error) {
	value, err := readJSON(file)
	if err != nil {
		return nil, err
	}
	listing, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: not a listing", file)
	}
	return listing, nil
}

func readJSON(file string) (any, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", file, err)
	}
	return value, nil
}

func writeJSON(file string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", file, err)
	}
	if err := os.WriteFile(file, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", file, err)
	}
	return nil
}
