// Package installer turns uploaded or mirrored package archives into
// registered package versions: extraction, manifest validation, blob
// upload, and a single transactional registry write.
package installer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/jamestagal/leaplearn/registry/internal/domain/store"
	"github.com/jamestagal/leaplearn/registry/internal/infrastructure/blob"
	"github.com/jamestagal/leaplearn/registry/internal/infrastructure/config"
	"github.com/jamestagal/leaplearn/registry/internal/infrastructure/logging"
	"github.com/jamestagal/leaplearn/registry/internal/shared/errs"
	"github.com/jamestagal/leaplearn/registry/internal/shared/hash"
	"github.com/jamestagal/leaplearn/registry/internal/shared/types"
	"github.com/jamestagal/leaplearn/registry/internal/shared/validate"
)

// Options qualifies one install request.
type Options struct {
	Provenance types.Provenance
	// TenantID is the owning tenant. Required for custom installs,
	// ignored otherwise.
	TenantID string
}

// Installer registers package archives. Installs for the same identity
// tuple are serialized; distinct identities proceed concurrently.
type Installer struct {
	store *store.Store
	blobs blob.Store
	log   *logging.Logger

	maxArchiveBytes int64
	maxEntryBytes   int64

	locks sync.Map // VersionKey string -> *sync.Mutex
}

// New creates an installer.
func New(st *store.Store, blobs blob.Store, log *logging.Logger, cfg config.InstallerConfig) *Installer {
	return &Installer{
		store:           st,
		blobs:           blobs,
		log:             log,
		maxArchiveBytes: cfg.MaxArchiveBytes,
		maxEntryBytes:   cfg.MaxEntryBytes,
	}
}

// Install registers one archive. Re-installing identical content is a
// no-op that refreshes updated_at; replacing different content under
// the same identity is allowed only within the same provenance and,
// for custom packages, the same owning tenant.
func (i *Installer) Install(ctx context.Context, data []byte, opts Options) (*types.InstallResult, error) {
	if int64(len(data)) > i.maxArchiveBytes {
		return nil, fmt.Errorf("archive exceeds %d bytes: %w", i.maxArchiveBytes, errs.ErrInvalidPackage)
	}
	if !opts.Provenance.Valid() {
		return nil, fmt.Errorf("unknown provenance %q: %w", opts.Provenance, errs.ErrInvalidPackage)
	}
	if opts.Provenance == types.ProvenanceCustom {
		if err := validate.TenantID(opts.TenantID, true); err != nil {
			return nil, fmt.Errorf("%s: %w", err, errs.ErrInvalidPackage)
		}
	}

	files, err := extract(data, i.maxEntryBytes)
	if err != nil {
		return nil, err
	}
	manifest, err := readManifest(files)
	if err != nil {
		return nil, err
	}
	if err := validateManifest(manifest); err != nil {
		return nil, err
	}

	key := manifest.Key()
	contentHash := canonicalHash(files)

	mu := i.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	existing, err := i.store.GetByKey(ctx, key)
	if err != nil && !errsIsNotFound(err) {
		return nil, err
	}

	if existing != nil {
		if existing.ContentHash == contentHash {
			if err := i.refresh(ctx, existing, opts); err != nil {
				return nil, err
			}
			i.log.Info("package re-install unchanged",
				zap.String("package", key.String()),
				zap.String("provenance", string(opts.Provenance)))
			return &types.InstallResult{VersionID: existing.ID, Key: key, Unchanged: true}, nil
		}
		if err := checkReplacement(existing, opts); err != nil {
			return nil, err
		}
	}

	edges, err := i.resolveDeclaredDeps(ctx, manifest)
	if err != nil {
		return nil, err
	}

	refs, err := i.uploadBlobs(ctx, key, data, files)
	if err != nil {
		return nil, err
	}

	version := &types.PackageVersion{
		VersionKey:     key,
		Title:          manifest.Title,
		Description:    manifest.Description,
		Categories:     manifest.Categories,
		Runnable:       manifest.Runnable,
		Provenance:     opts.Provenance,
		ArchiveRef:     refs.archive,
		AssetRoot:      refs.assetRoot,
		IconRef:        refs.icon,
		MinHostVersion: manifest.MinHostVersion,
		ContentHash:    contentHash,
	}
	if opts.Provenance == types.ProvenanceCustom {
		version.OwningTenantID = &opts.TenantID
	}
	if existing != nil {
		version.CreatedAt = existing.CreatedAt
	}

	var id int64
	err = i.store.InTx(ctx, func(tx *store.Tx) error {
		var txErr error
		id, txErr = tx.UpsertVersion(ctx, version)
		if txErr != nil {
			return txErr
		}
		for idx := range edges {
			edges[idx].FromID = id
		}
		if txErr := tx.ReplaceEdges(ctx, id, edges); txErr != nil {
			return txErr
		}
		if opts.Provenance == types.ProvenanceCustom {
			return tx.EnsureOverlay(ctx, opts.TenantID, id)
		}
		return nil
	})
	if err != nil {
		// Registry write failed; drop the orphaned archive blob. Asset
		// blobs under the same prefix get overwritten on retry.
		if delErr := i.blobs.Delete(ctx, refs.archive); delErr != nil {
			i.log.Warn("failed to clean up archive blob after aborted install",
				zap.String("ref", refs.archive), zap.Error(delErr))
		}
		return nil, err
	}

	i.log.Info("package installed",
		zap.String("package", key.String()),
		zap.String("provenance", string(opts.Provenance)),
		zap.String("content_hash", hash.Short(contentHash)),
		zap.Bool("replaced", existing != nil),
		zap.Int("files", len(files)),
		zap.Int("dependencies", len(edges)))

	return &types.InstallResult{VersionID: id, Key: key, Replaced: existing != nil}, nil
}

func (i *Installer) lockFor(key types.VersionKey) *sync.Mutex {
	mu, _ := i.locks.LoadOrStore(key.String(), &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// refresh handles the idempotent no-op path.
func (i *Installer) refresh(ctx context.Context, existing *types.PackageVersion, opts Options) error {
	return i.store.InTx(ctx, func(tx *store.Tx) error {
		if err := tx.TouchVersion(ctx, existing.ID); err != nil {
			return err
		}
		if opts.Provenance == types.ProvenanceCustom {
			return tx.EnsureOverlay(ctx, opts.TenantID, existing.ID)
		}
		return nil
	})
}

// checkReplacement decides whether different content may overwrite an
// existing identity. Mirrored content is immutable: the hub never
// legitimately re-publishes a version with new bytes, so an upstream
// install can only create identities, never replace them. Curated and
// custom installs may replace, custom only within the owning tenant.
func checkReplacement(existing *types.PackageVersion, opts Options) error {
	if opts.Provenance == types.ProvenanceUpstream {
		return fmt.Errorf("package %s already exists and mirrored content is immutable: %w",
			existing.VersionKey, errs.ErrConflictingReplacement)
	}
	if existing.Provenance == types.ProvenanceCustom &&
		(existing.OwningTenantID == nil || *existing.OwningTenantID != opts.TenantID) {
		return fmt.Errorf("package %s is owned by another tenant: %w",
			existing.VersionKey, errs.ErrConflictingReplacement)
	}
	return nil
}

// resolveDeclaredDeps maps manifest dependencies to stored versions.
// Every declared dependency must already be registered; the mirror
// retries ordering gaps on its next run.
func (i *Installer) resolveDeclaredDeps(ctx context.Context, m *types.Manifest) ([]types.DependencyEdge, error) {
	edges := make([]types.DependencyEdge, 0, len(m.Dependencies))
	for _, d := range m.Dependencies {
		dep, err := i.store.GetByKey(ctx, d.Key())
		if err != nil {
			if errsIsNotFound(err) {
				return nil, fmt.Errorf("declared dependency %s is not registered: %w", d.Key(), errs.ErrInvalidPackage)
			}
			return nil, err
		}
		edges = append(edges, types.DependencyEdge{ToID: dep.ID, Type: d.Type})
	}
	return edges, nil
}

type blobRefs struct {
	archive   string
	assetRoot string
	icon      string
}

// iconCandidates in preference order. The first present wins.
var iconCandidates = []string{"icon.svg", "icon.png"}

// uploadBlobs writes the raw archive and its extracted assets. Blob
// writes happen before the registry transaction so a committed version
// never points at missing blobs.
func (i *Installer) uploadBlobs(ctx context.Context, key types.VersionKey, data []byte, files map[string][]byte) (blobRefs, error) {
	slug := fmt.Sprintf("%s-%s", key.Name, key.Version())

	archiveRef, err := i.blobs.Put(ctx, fmt.Sprintf("archives/%s.%s", slug, detectKind(data).ext()), data)
	if err != nil {
		return blobRefs{}, fmt.Errorf("failed to store archive blob: %w", err)
	}

	refs := blobRefs{archive: archiveRef, assetRoot: "assets/" + slug}
	for _, name := range sortedPaths(files) {
		ref, err := i.blobs.Put(ctx, refs.assetRoot+"/"+name, files[name])
		if err != nil {
			return blobRefs{}, fmt.Errorf("failed to store asset %s: %w", name, err)
		}
		for _, candidate := range iconCandidates {
			if name == candidate && refs.icon == "" {
				refs.icon = ref
			}
		}
	}
	return refs, nil
}

// canonicalHash digests the extracted file set: per-file content hashes
// keyed by path, in path order. Independent of archive format, entry
// order, and compression settings.
func canonicalHash(files map[string][]byte) string {
	var b strings.Builder
	for _, name := range sortedPaths(files) {
		b.WriteString(hash.Content(files[name]))
		b.WriteByte(' ')
		b.WriteString(name)
		b.WriteByte('\n')
	}
	return hash.Content([]byte(b.String()))
}

func errsIsNotFound(err error) bool {
	return errors.Is(err, errs.ErrNotFound)
}
