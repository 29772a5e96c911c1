package integration

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamestagal/leaplearn/registry/internal/domain/mirror"
	"github.com/jamestagal/leaplearn/registry/internal/infrastructure/config"
	"github.com/jamestagal/leaplearn/registry/internal/shared/types"
	"github.com/jamestagal/leaplearn/registry/tests/helpers/testutil"
)

func TestHubSurface(t *testing.T) {
	e := newEnv(t, nil)

	archive := testutil.ContentArchive(t, testutil.SimpleManifest("quiz", 1, 0, 0), "q")
	code, _ := e.upload(t, archive, "curated", "")
	require.Equal(t, http.StatusCreated, code)

	t.Run("RegisterAndList", func(t *testing.T) {
		var registered struct {
			UUID string `json:"uuid"`
		}
		code := e.postJSON(t, "/hub/register",
			map[string]string{"name": "downstream-site", "url": "https://site.example.com"},
			&registered)
		require.Equal(t, http.StatusCreated, code)
		require.NotEmpty(t, registered.UUID)

		var listing mirror.Listing
		code = e.postJSON(t, "/hub/content-types",
			map[string]string{"uuid": registered.UUID}, &listing)
		require.Equal(t, http.StatusOK, code)
		require.Len(t, listing.Entries, 1)
		assert.Equal(t, "quiz", listing.Entries[0].Name)
		assert.NotEmpty(t, listing.Digest)
	})

	t.Run("UnknownSiteKeyRejected", func(t *testing.T) {
		code := e.postJSON(t, "/hub/content-types",
			map[string]string{"uuid": "not-a-site"}, nil)
		assert.Equal(t, http.StatusForbidden, code)
	})

	t.Run("ArchiveDownload", func(t *testing.T) {
		w := e.do(t, http.MethodGet, "/hub/packages/quiz/1.0.0", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Body.Bytes())

		w = e.do(t, http.MethodGet, "/hub/packages/quiz/9.9.9", nil, "")
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = e.do(t, http.MethodGet, "/hub/packages/quiz/banana", nil, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

// TestMirrorFromPeerRegistry stands up one registry as the upstream hub
// and lets a second registry sync from it over real HTTP.
func TestMirrorFromPeerRegistry(t *testing.T) {
	upstream := newEnv(t, nil)

	// Seed the upstream with core and a quiz depending on it.
	core := testutil.ContentArchive(t, testutil.SimpleManifest("core", 2, 0, 0), "c")
	code, _ := upstream.upload(t, core, "curated", "")
	require.Equal(t, http.StatusCreated, code)

	quizManifest := testutil.WithDependency(
		testutil.SimpleManifest("quiz", 1, 1, 0),
		"core", 2, 0, 0, types.EdgeRequiredAtLoad)
	quiz := testutil.ContentArchive(t, quizManifest, "q")
	code, _ = upstream.upload(t, quiz, "curated", "")
	require.Equal(t, http.StatusCreated, code)

	hubServer := httptest.NewServer(upstream.srv.Router())
	defer hubServer.Close()

	downstream := newEnv(t, func(cfg *config.Config) {
		cfg.Mirror.Enabled = false // triggered by hand below
		cfg.Mirror.UpstreamURL = hubServer.URL + "/hub"
		cfg.Mirror.Source = "peer-hub"
	})

	// "core" sorts before "quiz", so one pass mirrors both.
	var synced struct {
		Report types.SyncReport `json:"report"`
	}
	w := downstream.do(t, http.MethodPost, "/sync", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &synced))
	assert.Len(t, synced.Report.Added, 2)
	assert.Empty(t, synced.Report.Failed)

	var cat catalogResponse
	require.Equal(t, http.StatusOK, downstream.getJSON(t, "/catalog?tenant=any", &cat))
	require.Equal(t, 2, cat.Count)

	// Mirrored packages carry upstream provenance and resolve locally.
	var inventory struct {
		Packages []types.PackageVersion `json:"packages"`
	}
	require.Equal(t, http.StatusOK, downstream.getJSON(t, "/packages?provenance=upstream", &inventory))
	require.Len(t, inventory.Packages, 2)

	var quizID int64
	for _, p := range inventory.Packages {
		if p.Name == "quiz" {
			quizID = p.ID
		}
	}
	require.NotZero(t, quizID)

	var resolved struct {
		Packages []types.ResolvedPackage `json:"packages"`
	}
	path := fmt.Sprintf("/resolve?version=%d", quizID)
	require.Equal(t, http.StatusOK, downstream.getJSON(t, path, &resolved))
	require.Len(t, resolved.Packages, 2)
	assert.Equal(t, "core", resolved.Packages[0].Name)

	// A second sync with an unchanged upstream listing is skipped.
	w = downstream.do(t, http.MethodPost, "/sync", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &synced))
	assert.True(t, synced.Report.Skipped)

	// Health reads the cursor under the configured source name.
	var health struct {
		Mirror struct {
			LastSynced *string `json:"last_synced"`
			LastError  string  `json:"last_error"`
		} `json:"mirror"`
	}
	require.Equal(t, http.StatusOK, downstream.getJSON(t, "/health", &health))
	require.NotNil(t, health.Mirror.LastSynced)
	assert.Empty(t, health.Mirror.LastError)
}
