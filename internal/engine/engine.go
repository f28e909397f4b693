// Package engine keeps remote collections synchronized, in both
// directions, with tab-delimited snapshot files in a folder hierarchy on
// the storage service.
//
// A pass over one collection runs, in order: folder/file provisioning
// under a named lock (identity.go), schema reconciliation (schema.go),
// conflict-guarded value propagation (values.go), and versioned snapshot
// export (export.go). Runner (runner.go) sequences collections across
// periodic invocations with a whole-run lock and a persisted rotation
// pointer.
package engine

import (
	"context"
	"time"

	"github.com/vibevesselio/snapsync/internal/audit"
	"github.com/vibevesselio/snapsync/internal/drive"
	"github.com/vibevesselio/snapsync/internal/locksvc"
	"github.com/vibevesselio/snapsync/internal/notion"
)

// Remote is the capability surface the engine needs from the remote
// collection service. *notion.Client satisfies it.
type Remote interface {
	GetDatabase(ctx context.Context, id string) (*notion.Database, error)
	UpdateDatabase(ctx context.Context, id string, patch *notion.SchemaPatch) (*notion.Database, error)
	QueryDatabaseAll(ctx context.Context, databaseID string, opts *notion.QueryOptions, maxBatches int) ([]notion.Page, error)
	GetPage(ctx context.Context, id string) (*notion.Page, error)
	CreatePage(ctx context.Context, req *notion.CreatePageRequest) (*notion.Page, error)
	UpdatePage(ctx context.Context, id string, req *notion.UpdatePageRequest) (*notion.Page, error)
	SearchDatabases(ctx context.Context, query string) ([]notion.Database, error)
}

var _ Remote = (*notion.Client)(nil)

// ConflictMode selects how the value synchronizer treats rows whose
// remote page changed after the snapshot was taken.
type ConflictMode string

const (
	// ConflictGuard skips rows whose remote page is newer than the
	// snapshot's sync timestamp. The remote value wins.
	ConflictGuard ConflictMode = "guard"
	// ConflictOverwrite pushes snapshot values unconditionally.
	ConflictOverwrite ConflictMode = "overwrite"
)

// Options tunes an Engine. The zero value is usable; unset fields take
// the defaults below.
type Options struct {
	// ConflictMode defaults to ConflictGuard.
	ConflictMode ConflictMode

	// AllowDestructiveSchema enables remote property deletion during
	// schema reconciliation. Off by default: a renamed snapshot column
	// looks like delete-old + add-new, and deletion loses data.
	AllowDestructiveSchema bool

	// ArchiveRetention bounds the number of archived snapshot versions
	// kept per collection. Defaults to 10.
	ArchiveRetention int

	// MaxQueryBatches caps remote query pagination per export run.
	// Defaults to 20 batches (2000 pages).
	MaxQueryBatches int

	// ResolveAttempts caps property-name variant attempts. Defaults to
	// DefaultResolveAttempts.
	ResolveAttempts int

	// SampleLimit bounds how many snapshot values are sampled when
	// inferring a new property's configuration. Defaults to 200.
	SampleLimit int

	// OptionLimit caps enumerated options inferred for choice-typed
	// columns. Defaults to 80.
	OptionLimit int

	// LifecycleProperty names the status-like property stamped on
	// newly created pages. Defaults to "Lifecycle". Empty disables
	// only when LifecycleDisabled is set.
	LifecycleProperty string

	// LifecycleInitial is the value stamped on create. Defaults to "new".
	LifecycleInitial string

	// LifecycleDisabled turns off lifecycle stamping.
	LifecycleDisabled bool
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.ConflictMode == "" {
		out.ConflictMode = ConflictGuard
	}
	if out.ArchiveRetention <= 0 {
		out.ArchiveRetention = 10
	}
	if out.MaxQueryBatches <= 0 {
		out.MaxQueryBatches = 20
	}
	if out.ResolveAttempts <= 0 {
		out.ResolveAttempts = DefaultResolveAttempts
	}
	if out.SampleLimit <= 0 {
		out.SampleLimit = 200
	}
	if out.OptionLimit <= 0 {
		out.OptionLimit = 80
	}
	if out.LifecycleProperty == "" {
		out.LifecycleProperty = "Lifecycle"
	}
	if out.LifecycleInitial == "" {
		out.LifecycleInitial = "new"
	}
	return out
}

// Engine synchronizes collections with their snapshot folders.
type Engine struct {
	remote Remote
	store  drive.Store
	locks  locksvc.Locker
	log    audit.Logger
	opts   Options
	now    func() time.Time

	// lockRetries bounds the wait on a contended provisioning lock.
	// Overridden in tests to skip the backoff sleeps.
	lockRetries int
}

// New creates an engine. log may be nil, in which case logging is
// discarded.
func New(remote Remote, store drive.Store, locks locksvc.Locker, log audit.Logger, opts Options) *Engine {
	if log == nil {
		log = audit.NopLogger()
	}
	return &Engine{
		remote:      remote,
		store:       store,
		locks:       locks,
		log:         log,
		opts:        opts.withDefaults(),
		now:         time.Now,
		lockRetries: folderLockRetries,
	}
}
