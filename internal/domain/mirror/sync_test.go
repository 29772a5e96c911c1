package mirror_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamestagal/leaplearn/registry/internal/domain/installer"
	"github.com/jamestagal/leaplearn/registry/internal/domain/mirror"
	"github.com/jamestagal/leaplearn/registry/internal/domain/store"
	"github.com/jamestagal/leaplearn/registry/internal/infrastructure/blob"
	"github.com/jamestagal/leaplearn/registry/internal/infrastructure/config"
	"github.com/jamestagal/leaplearn/registry/internal/infrastructure/logging"
	"github.com/jamestagal/leaplearn/registry/internal/shared/errs"
	"github.com/jamestagal/leaplearn/registry/tests/helpers/testutil"
)

// fakeHub serves a canned listing and archives from memory.
type fakeHub struct {
	listing   mirror.Listing
	archives  map[string][]byte
	failPaths map[string]bool
	failList  bool
	gate      chan struct{} // when set, FetchListing blocks until closed
}

func (h *fakeHub) FetchListing(ctx context.Context) (*mirror.Listing, error) {
	if h.gate != nil {
		select {
		case <-h.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if h.failList {
		return nil, fmt.Errorf("hub listing unavailable: %w", errs.ErrUpstreamFetchFailed)
	}
	listing := h.listing
	return &listing, nil
}

func (h *fakeHub) FetchArchive(ctx context.Context, path string) ([]byte, error) {
	if h.failPaths[path] {
		return nil, fmt.Errorf("hub archive %s unavailable: %w", path, errs.ErrUpstreamFetchFailed)
	}
	data, ok := h.archives[path]
	if !ok {
		return nil, fmt.Errorf("hub archive %s missing: %w", path, errs.ErrUpstreamFetchFailed)
	}
	return data, nil
}

type syncFixture struct {
	store *store.Store
	hub   *fakeHub
	sync  *mirror.Syncer
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	st := testutil.OpenStore(t)
	inst := installer.New(st, blob.NewMemory(), logging.NewNop(), config.Default().Installer)
	hub := &fakeHub{
		archives:  make(map[string][]byte),
		failPaths: make(map[string]bool),
	}
	return &syncFixture{
		store: st,
		hub:   hub,
		sync:  mirror.NewSyncer(hub, inst, st, logging.NewNop(), "hub", 5*time.Second),
	}
}

func (f *syncFixture) offer(t *testing.T, name string, major, minor, patch int, seed string) {
	t.Helper()
	path := fmt.Sprintf("/archives/%s-%d.%d.%d.zip", name, major, minor, patch)
	f.hub.archives[path] = testutil.ContentArchive(t, testutil.SimpleManifest(name, major, minor, patch), seed)
	f.hub.listing.Entries = append(f.hub.listing.Entries, mirror.ListingEntry{
		Name:        name,
		Major:       major,
		Minor:       minor,
		Patch:       patch,
		ArchivePath: path,
	})
}

func TestSync(t *testing.T) {
	ctx := context.Background()

	t.Run("MirrorsFullListing", func(t *testing.T) {
		f := newSyncFixture(t)
		f.hub.listing.Digest = "d1"
		f.offer(t, "quiz", 1, 0, 0, "q")
		f.offer(t, "interactive-video", 1, 2, 0, "iv")

		report, err := f.sync.Sync(ctx)
		require.NoError(t, err)
		assert.False(t, report.Skipped)
		assert.Len(t, report.Added, 2)
		assert.Empty(t, report.Failed)

		n, err := f.store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		cursor, err := f.store.Cursor(ctx, "hub")
		require.NoError(t, err)
		assert.Equal(t, "d1", cursor.Digest)
		assert.Empty(t, cursor.LastError)
	})

	t.Run("PartialFailureKeepsGoing", func(t *testing.T) {
		f := newSyncFixture(t)
		f.hub.listing.Digest = "d1"
		f.offer(t, "quiz", 1, 0, 0, "q")
		f.offer(t, "broken", 1, 0, 0, "b")
		f.offer(t, "interactive-video", 1, 0, 0, "iv")
		f.hub.failPaths["/archives/broken-1.0.0.zip"] = true

		report, err := f.sync.Sync(ctx)
		require.NoError(t, err)
		assert.Len(t, report.Added, 2)
		require.Len(t, report.Failed, 1)
		assert.Contains(t, report.Failed, "broken@1.0.0")

		n, err := f.store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		cursor, err := f.store.Cursor(ctx, "hub")
		require.NoError(t, err)
		assert.NotEmpty(t, cursor.LastError)
	})

	t.Run("UnchangedDigestSkips", func(t *testing.T) {
		f := newSyncFixture(t)
		f.hub.listing.Digest = "d1"
		f.offer(t, "quiz", 1, 0, 0, "q")

		first, err := f.sync.Sync(ctx)
		require.NoError(t, err)
		assert.False(t, first.Skipped)

		second, err := f.sync.Sync(ctx)
		require.NoError(t, err)
		assert.True(t, second.Skipped)
	})

	t.Run("FailedRunNeverSkips", func(t *testing.T) {
		f := newSyncFixture(t)
		f.hub.listing.Digest = "d1"
		f.offer(t, "quiz", 1, 0, 0, "q")
		f.offer(t, "broken", 1, 0, 0, "b")
		f.hub.failPaths["/archives/broken-1.0.0.zip"] = true

		_, err := f.sync.Sync(ctx)
		require.NoError(t, err)

		// Same digest, but the previous run recorded failures, so the
		// retry proceeds and picks up the repaired entry.
		f.hub.failPaths = map[string]bool{}
		report, err := f.sync.Sync(ctx)
		require.NoError(t, err)
		assert.False(t, report.Skipped)
		assert.Len(t, report.Added, 1)
		assert.Empty(t, report.Failed)
	})

	t.Run("ListingFailureAborts", func(t *testing.T) {
		f := newSyncFixture(t)
		f.hub.failList = true

		_, err := f.sync.Sync(ctx)
		assert.ErrorIs(t, err, errs.ErrUpstreamFetchFailed)

		cursor, err := f.store.Cursor(ctx, "hub")
		require.NoError(t, err)
		assert.NotEmpty(t, cursor.LastError)
	})

	t.Run("ConcurrentRunRejected", func(t *testing.T) {
		f := newSyncFixture(t)
		f.hub.listing.Digest = "d1"
		f.hub.gate = make(chan struct{})

		done := make(chan struct{})
		go func() {
			defer close(done)
			f.sync.Sync(ctx)
		}()

		// Wait until the first run is inside the listing fetch.
		require.Eventually(t, func() bool {
			_, err := f.sync.Sync(ctx)
			return err != nil && assert.ObjectsAreEqual(errs.ErrSyncInProgress, err)
		}, time.Second, 10*time.Millisecond)

		close(f.hub.gate)
		<-done

		// With the first run finished, a new run is accepted again.
		_, err := f.sync.Sync(ctx)
		require.NoError(t, err)
	})

	t.Run("ReinstallUnchangedContentAddsNothing", func(t *testing.T) {
		f := newSyncFixture(t)
		f.hub.listing.Digest = "d1"
		f.offer(t, "quiz", 1, 0, 0, "q")

		_, err := f.sync.Sync(ctx)
		require.NoError(t, err)

		// New digest, identical entries: known identities are skipped,
		// nothing counts as added or updated.
		f.hub.listing.Digest = "d2"
		report, err := f.sync.Sync(ctx)
		require.NoError(t, err)
		assert.Empty(t, report.Added)
		assert.Empty(t, report.Updated)
		assert.Empty(t, report.Failed)
	})

	t.Run("HigherVersionCountsAsUpdated", func(t *testing.T) {
		f := newSyncFixture(t)
		f.hub.listing.Digest = "d1"
		f.offer(t, "quiz", 1, 0, 0, "q")

		_, err := f.sync.Sync(ctx)
		require.NoError(t, err)

		f.hub.listing.Digest = "d2"
		f.offer(t, "quiz", 1, 1, 0, "q11")
		f.offer(t, "interactive-video", 1, 0, 0, "iv")

		report, err := f.sync.Sync(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"interactive-video@1.0.0"}, report.Added)
		assert.Equal(t, []string{"quiz@1.1.0"}, report.Updated)
		assert.Empty(t, report.Failed)
	})

	t.Run("ContentDriftOnKnownVersionIsRejected", func(t *testing.T) {
		f := newSyncFixture(t)
		f.hub.listing.Digest = "d1"
		f.offer(t, "quiz", 1, 0, 0, "q")

		_, err := f.sync.Sync(ctx)
		require.NoError(t, err)

		stored, err := f.store.GetByKey(ctx, mirror.ListingEntry{Name: "quiz", Major: 1}.Key())
		require.NoError(t, err)

		// The hub lists the same identity with a different hash. The
		// local copy must stay untouched and the drift must surface.
		f.hub.listing.Digest = "d2"
		f.hub.listing.Entries[0].ContentHash = "not-" + stored.ContentHash
		f.hub.archives["/archives/quiz-1.0.0.zip"] =
			testutil.ContentArchive(t, testutil.SimpleManifest("quiz", 1, 0, 0), "drifted")

		report, err := f.sync.Sync(ctx)
		require.NoError(t, err)
		assert.Empty(t, report.Added)
		assert.Empty(t, report.Updated)
		assert.Contains(t, report.Failed, "quiz@1.0.0")

		after, err := f.store.GetByKey(ctx, stored.VersionKey)
		require.NoError(t, err)
		assert.Equal(t, stored.ContentHash, after.ContentHash)
	})
}
