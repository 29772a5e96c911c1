package http

import (
	"fmt"
	nethttp "net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jamestagal/leaplearn/registry/internal/domain/mirror"
	"github.com/jamestagal/leaplearn/registry/internal/shared/hash"
	"github.com/jamestagal/leaplearn/registry/internal/shared/types"
	"github.com/jamestagal/leaplearn/registry/internal/shared/validate"
)

// Site is one downstream deployment registered against this registry's
// hub surface.
type Site struct {
	UUID         string    `json:"uuid"`
	Name         string    `json:"name"`
	URL          string    `json:"url"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Sites is the in-memory site registry. Registration is a courtesy
// handshake in the upstream protocol; losing it on restart only means
// sites re-register.
type Sites struct {
	mu    sync.RWMutex
	sites map[string]Site
}

// NewSites creates an empty site registry.
func NewSites() *Sites {
	return &Sites{sites: make(map[string]Site)}
}

// Register stores a new site and returns its key.
func (s *Sites) Register(name, url string) Site {
	site := Site{
		UUID:         uuid.NewString(),
		Name:         name,
		URL:          url,
		RegisteredAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.sites[site.UUID] = site
	s.mu.Unlock()
	return site
}

// Known reports whether a site key was issued by this registry.
func (s *Sites) Known(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sites[key]
	return ok
}

// Len reports the number of registered sites.
func (s *Sites) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sites)
}

// HubRegister issues a site key to a downstream deployment.
func (h *Handlers) HubRegister(c *gin.Context) {
	var body struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, fmt.Errorf("malformed registration body: %v", err))
		return
	}
	if err := validate.String(body.Name, "name", 1, 255, true); err != nil {
		badRequest(c, err)
		return
	}

	site := h.sites.Register(body.Name, body.URL)
	c.JSON(nethttp.StatusCreated, gin.H{"uuid": site.UUID})
}

// HubContentTypes serves the package listing in the upstream wire
// format, so a downstream registry can mirror from this one.
func (h *Handlers) HubContentTypes(c *gin.Context) {
	var body struct {
		UUID string `json:"uuid"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, fmt.Errorf("malformed listing request: %v", err))
		return
	}
	if !h.sites.Known(body.UUID) {
		c.JSON(nethttp.StatusForbidden, gin.H{"error": "unknown site key", "kind": "unknown_site"})
		return
	}

	listing, err := h.buildListing(c)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, listing)
}

// HubListing serves the anonymous listing a downstream registry's
// mirror job pulls from.
func (h *Handlers) HubListing(c *gin.Context) {
	listing, err := h.buildListing(c)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, listing)
}

func (h *Handlers) buildListing(c *gin.Context) (*mirror.Listing, error) {
	versions, err := h.store.ListRunnable(c.Request.Context(), nil)
	if err != nil {
		return nil, err
	}

	listing := &mirror.Listing{Entries: make([]mirror.ListingEntry, 0, len(versions))}
	var digest strings.Builder
	for _, v := range versions {
		listing.Entries = append(listing.Entries, mirror.ListingEntry{
			Name:        v.Name,
			Major:       v.Major,
			Minor:       v.Minor,
			Patch:       v.Patch,
			ContentHash: v.ContentHash,
			// Relative to the hub mount point, the way the mirror
			// client resolves paths against its upstream base URL.
			ArchivePath: fmt.Sprintf("/packages/%s/%s", v.Name, v.Version()),
		})
		digest.WriteString(v.String())
		digest.WriteByte(' ')
		digest.WriteString(v.ContentHash)
		digest.WriteByte('\n')
	}
	listing.Digest = hash.Content([]byte(digest.String()))
	return listing, nil
}

// HubPackage streams one package archive by identity.
func (h *Handlers) HubPackage(c *gin.Context) {
	key, err := parseIdentity(c.Param("machine_name"), c.Param("version"))
	if err != nil {
		badRequest(c, err)
		return
	}

	version, err := h.store.GetByKey(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}

	data, err := h.blobs.Get(c.Request.Context(), version.ArchiveRef)
	if err != nil {
		respondError(c, err)
		return
	}

	ext := "zip"
	if strings.HasSuffix(version.ArchiveRef, ".tgz") {
		ext = "tgz"
	}
	c.Header("Content-Disposition",
		fmt.Sprintf("attachment; filename=%s-%s.%s", key.Name, key.Version(), ext))
	c.Data(nethttp.StatusOK, "application/octet-stream", data)
}

func parseIdentity(name, version string) (types.VersionKey, error) {
	key := types.VersionKey{Name: name}
	n, err := fmt.Sscanf(version, "%d.%d.%d", &key.Major, &key.Minor, &key.Patch)
	if err != nil || n != 3 {
		return types.VersionKey{}, fmt.Errorf("version must be major.minor.patch, got %q", version)
	}
	return key, nil
}
