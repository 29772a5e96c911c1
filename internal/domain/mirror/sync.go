package mirror

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jamestagal/leaplearn/registry/internal/domain/installer"
	"github.com/jamestagal/leaplearn/registry/internal/domain/store"
	"github.com/jamestagal/leaplearn/registry/internal/infrastructure/logging"
	"github.com/jamestagal/leaplearn/registry/internal/shared/errs"
	"github.com/jamestagal/leaplearn/registry/internal/shared/types"
)

// Fetcher is the upstream hub surface the syncer pulls from.
type Fetcher interface {
	FetchListing(ctx context.Context) (*Listing, error)
	FetchArchive(ctx context.Context, archivePath string) ([]byte, error)
}

// Registrar installs fetched archives. Satisfied by the installer.
type Registrar interface {
	Install(ctx context.Context, data []byte, opts installer.Options) (*types.InstallResult, error)
}

// Syncer mirrors the upstream hub into the local registry. One run at a
// time; a second caller gets ErrSyncInProgress instead of queueing.
type Syncer struct {
	client    Fetcher
	registrar Registrar
	store     *store.Store
	log       *logging.Logger

	source       string
	entryTimeout time.Duration

	running atomic.Bool
}

// NewSyncer creates a mirror syncer for one upstream source.
func NewSyncer(client Fetcher, registrar Registrar, st *store.Store, log *logging.Logger, source string, entryTimeout time.Duration) *Syncer {
	return &Syncer{
		client:       client,
		registrar:    registrar,
		store:        st,
		log:          log,
		source:       source,
		entryTimeout: entryTimeout,
	}
}

// Sync runs one mirror pass. A listing fetch failure aborts the run;
// per-entry failures are recorded in the report and do not stop the
// remaining entries. An unchanged listing digest skips the run.
func (s *Syncer) Sync(ctx context.Context) (*types.SyncReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, errs.ErrSyncInProgress
	}
	defer s.running.Store(false)

	report := &types.SyncReport{
		Started: time.Now().UTC(),
		Failed:  make(map[string]string),
	}

	cursor, err := s.store.Cursor(ctx, s.source)
	if err != nil {
		return nil, err
	}

	listing, err := s.client.FetchListing(ctx)
	if err != nil {
		cursor.LastError = err.Error()
		if putErr := s.store.PutCursor(ctx, cursor); putErr != nil {
			s.log.Warn("failed to record listing fetch failure", zap.Error(putErr))
		}
		return nil, err
	}

	if listing.Digest != "" && listing.Digest == cursor.Digest && cursor.LastError == "" {
		report.Skipped = true
		report.Finished = time.Now().UTC()
		s.touchCursor(ctx, cursor)
		s.log.Info("mirror sync skipped, listing unchanged",
			zap.String("source", s.source), zap.String("digest", listing.Digest))
		return report, nil
	}

	// The cursor records the listing fetch immediately. A crash mid-run
	// leaves LastError set so the next run does not skip on digest.
	now := time.Now().UTC()
	cursor.Digest = listing.Digest
	cursor.SyncedAt = &now
	cursor.LastError = "sync incomplete"
	if err := s.store.PutCursor(ctx, cursor); err != nil {
		return nil, err
	}

	// Name order makes runs comparable; entries whose dependencies sort
	// later fail this run and install on the next.
	entries := append([]ListingEntry(nil), listing.Entries...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key().String() < entries[j].Key().String() })

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			report.Failed[entry.Key().String()] = err.Error()
			continue
		}
		s.syncEntry(ctx, entry, report)
	}

	cursor.LastError = ""
	if len(report.Failed) > 0 {
		cursor.LastError = fmt.Sprintf("%d of %d entries failed", len(report.Failed), len(entries))
	}
	if err := s.store.PutCursor(ctx, cursor); err != nil {
		return nil, err
	}

	report.Finished = time.Now().UTC()
	s.log.Info("mirror sync finished",
		zap.String("source", s.source),
		zap.Int("added", len(report.Added)),
		zap.Int("updated", len(report.Updated)),
		zap.Int("failed", len(report.Failed)))
	return report, nil
}

func (s *Syncer) syncEntry(ctx context.Context, entry ListingEntry, report *types.SyncReport) {
	key := entry.Key()

	existing, err := s.store.GetByKey(ctx, key)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		report.Failed[key.String()] = err.Error()
		return
	}
	if existing != nil {
		if entry.ContentHash == "" || existing.ContentHash == entry.ContentHash {
			return
		}
		// A known identity with new bytes means the hub violated its
		// own immutability contract. Never overwritten; flagged so an
		// operator sees it in the report.
		report.Failed[key.String()] = "content changed for already mirrored version"
		s.log.Warn("mirror entry content drift",
			zap.String("package", key.String()),
			zap.String("stored_hash", existing.ContentHash),
			zap.String("listed_hash", entry.ContentHash))
		return
	}

	known, err := s.store.ListByName(ctx, key.Name)
	if err != nil {
		report.Failed[key.String()] = err.Error()
		return
	}

	entryCtx, cancel := context.WithTimeout(ctx, s.entryTimeout)
	defer cancel()

	data, err := s.client.FetchArchive(entryCtx, entry.ArchivePath)
	if err != nil {
		report.Failed[key.String()] = err.Error()
		s.log.Warn("mirror entry fetch failed",
			zap.String("package", key.String()), zap.Error(err))
		return
	}

	result, err := s.registrar.Install(entryCtx, data, installer.Options{Provenance: types.ProvenanceUpstream})
	if err != nil {
		report.Failed[key.String()] = err.Error()
		s.log.Warn("mirror entry install failed",
			zap.String("package", key.String()), zap.Error(err))
		return
	}

	switch {
	case result.Unchanged:
		// Raced with a concurrent install of the same bytes.
	case len(known) > 0:
		// New version of a name the store already carries.
		report.Updated = append(report.Updated, key.String())
	default:
		report.Added = append(report.Added, key.String())
	}
}

func (s *Syncer) touchCursor(ctx context.Context, cursor types.MirrorCursor) {
	now := time.Now().UTC()
	cursor.SyncedAt = &now
	if err := s.store.PutCursor(ctx, cursor); err != nil {
		s.log.Warn("failed to touch mirror cursor", zap.Error(err))
	}
}

// RunPeriodic syncs on a fixed interval until ctx is cancelled. The
// first pass runs immediately.
func (s *Syncer) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sync(ctx); err != nil && !errors.Is(err, errs.ErrSyncInProgress) {
			s.log.Error("scheduled mirror sync failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
