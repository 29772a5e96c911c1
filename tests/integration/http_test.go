package integration

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamestagal/leaplearn/registry/internal/infrastructure/config"
	"github.com/jamestagal/leaplearn/registry/internal/infrastructure/logging"
	"github.com/jamestagal/leaplearn/registry/internal/infrastructure/server"
	"github.com/jamestagal/leaplearn/registry/internal/shared/types"
	"github.com/jamestagal/leaplearn/registry/tests/helpers/testutil"
)

type env struct {
	srv *server.Server
}

func newEnv(t *testing.T, mutate func(*config.Config)) *env {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(dir, "registry.db")
	cfg.Blob.Root = filepath.Join(dir, "blobs")
	cfg.Mirror.Enabled = false
	cfg.RateLimit.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	srv, err := server.New(cfg, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return &env{srv: srv}
}

func (e *env) do(t *testing.T, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(w, req)
	return w
}

func (e *env) getJSON(t *testing.T, path string, out any) int {
	t.Helper()
	w := e.do(t, http.MethodGet, path, nil, "")
	if out != nil && w.Code == http.StatusOK {
		require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), out))
	}
	return w.Code
}

func (e *env) postJSON(t *testing.T, path string, body any, out any) int {
	t.Helper()
	encoded, err := sonic.Marshal(body)
	require.NoError(t, err)
	w := e.do(t, http.MethodPost, path, encoded, "application/json")
	if out != nil && w.Code < 300 {
		require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), out))
	}
	return w.Code
}

// upload installs an archive through the multipart endpoint and returns
// the HTTP status plus the decoded install result.
func (e *env) upload(t *testing.T, archive []byte, provenance, tenant string) (int, types.InstallResult) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("archive", "package.zip")
	require.NoError(t, err)
	_, err = part.Write(archive)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("provenance", provenance))
	if tenant != "" {
		require.NoError(t, mw.WriteField("tenant", tenant))
	}
	require.NoError(t, mw.Close())

	w := e.do(t, http.MethodPost, "/install", buf.Bytes(), mw.FormDataContentType())

	var decoded struct {
		Result types.InstallResult `json:"result"`
	}
	if w.Code < 300 {
		require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w.Code, decoded.Result
}

type catalogResponse struct {
	Entries []types.CatalogEntry `json:"entries"`
	Count   int                  `json:"count"`
}

func TestRegistryEndToEnd(t *testing.T) {
	e := newEnv(t, nil)

	// Upload Quiz@1.0.0 as curated, no dependencies.
	quizV1 := testutil.ContentArchive(t, testutil.SimpleManifest("quiz", 1, 0, 0), "q1")
	code, quizResult := e.upload(t, quizV1, "curated", "")
	require.Equal(t, http.StatusCreated, code)

	// Tenant catalog shows it.
	var cat catalogResponse
	require.Equal(t, http.StatusOK, e.getJSON(t, "/catalog?tenant=tenant-x", &cat))
	require.Equal(t, 1, cat.Count)
	assert.Equal(t, "quiz", cat.Entries[0].Name)
	assert.False(t, cat.Entries[0].UpdateAvailable)

	// Upload Core@2.0.0, then Quiz@1.1.0 depending on it.
	core := testutil.ContentArchive(t, testutil.SimpleManifest("core", 2, 0, 0), "c")
	code, coreResult := e.upload(t, core, "curated", "")
	require.Equal(t, http.StatusCreated, code)

	quizV11Manifest := testutil.WithDependency(
		testutil.SimpleManifest("quiz", 1, 1, 0),
		"core", 2, 0, 0, types.EdgeRequiredAtLoad)
	quizV11 := testutil.ContentArchive(t, quizV11Manifest, "q11")
	code, quizV11Result := e.upload(t, quizV11, "curated", "")
	require.Equal(t, http.StatusCreated, code)

	// Resolving Quiz@1.1.0 returns [core, quiz] in load order.
	var resolved struct {
		Packages []types.ResolvedPackage `json:"packages"`
	}
	path := fmt.Sprintf("/resolve?version=%d&edge_types=required-at-load", quizV11Result.VersionID)
	require.Equal(t, http.StatusOK, e.getJSON(t, path, &resolved))
	require.Len(t, resolved.Packages, 2)
	assert.Equal(t, "core", resolved.Packages[0].Name)
	assert.Equal(t, "quiz", resolved.Packages[1].Name)

	// Quiz@1.0.0 still resolves alone; old content is untouched.
	path = fmt.Sprintf("/resolve?version=%d", quizResult.VersionID)
	require.Equal(t, http.StatusOK, e.getJSON(t, path, &resolved))
	require.Len(t, resolved.Packages, 1)
	assert.Equal(t, "quiz", resolved.Packages[0].Name)

	// Resolving by name picks the newest host-compatible version.
	require.Equal(t, http.StatusOK, e.getJSON(t, "/resolve?package=quiz", &resolved))
	require.Len(t, resolved.Packages, 2)
	assert.Equal(t, "quiz", resolved.Packages[1].Name)
	assert.Equal(t, 1, resolved.Packages[1].Minor)

	// Catalog now shows quiz at 1.1.0.
	require.Equal(t, http.StatusOK, e.getJSON(t, "/catalog?tenant=tenant-x", &cat))
	require.Equal(t, 2, cat.Count)
	for _, entry := range cat.Entries {
		if entry.Name == "quiz" {
			assert.Equal(t, "1.1.0", entry.Version())
		}
	}

	// Deleting core is rejected while quiz@1.1.0 depends on it.
	w := e.do(t, http.MethodDelete, fmt.Sprintf("/packages/%d", coreResult.VersionID), nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	// Inventory endpoint sees all three versions.
	var inventory struct {
		Count int `json:"count"`
	}
	require.Equal(t, http.StatusOK, e.getJSON(t, "/packages", &inventory))
	assert.Equal(t, 3, inventory.Count)
}

func TestInstallIdempotencyOverHTTP(t *testing.T) {
	e := newEnv(t, nil)
	archive := testutil.ContentArchive(t, testutil.SimpleManifest("quiz", 1, 0, 0), "same")

	code, first := e.upload(t, archive, "curated", "")
	require.Equal(t, http.StatusCreated, code)

	code, second := e.upload(t, archive, "curated", "")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, second.Unchanged)
	assert.Equal(t, first.VersionID, second.VersionID)
}

func TestTenantOverlayOverHTTP(t *testing.T) {
	e := newEnv(t, nil)

	archive := testutil.ContentArchive(t, testutil.SimpleManifest("quiz", 1, 0, 0), "q")
	code, result := e.upload(t, archive, "upstream", "")
	require.Equal(t, http.StatusCreated, code)

	// Disable for acme only.
	body, err := sonic.Marshal(map[string]bool{"enabled": false})
	require.NoError(t, err)
	w := e.do(t, http.MethodPut,
		fmt.Sprintf("/tenants/acme/overlay/%d", result.VersionID), body, "application/json")
	require.Equal(t, http.StatusOK, w.Code)

	var cat catalogResponse
	require.Equal(t, http.StatusOK, e.getJSON(t, "/catalog?tenant=acme", &cat))
	assert.Zero(t, cat.Count)

	require.Equal(t, http.StatusOK, e.getJSON(t, "/catalog?tenant=globex", &cat))
	assert.Equal(t, 1, cat.Count)
}

func TestCustomPackageVisibilityOverHTTP(t *testing.T) {
	e := newEnv(t, nil)

	archive := testutil.ContentArchive(t, testutil.SimpleManifest("acme-widget", 1, 0, 0), "w")
	code, _ := e.upload(t, archive, "custom", "acme")
	require.Equal(t, http.StatusCreated, code)

	// Custom install without a tenant is invalid.
	code, _ = e.upload(t, archive, "custom", "")
	assert.Equal(t, http.StatusBadRequest, code)

	var cat catalogResponse
	require.Equal(t, http.StatusOK, e.getJSON(t, "/catalog?tenant=acme", &cat))
	assert.Equal(t, 1, cat.Count)

	require.Equal(t, http.StatusOK, e.getJSON(t, "/catalog?tenant=globex", &cat))
	assert.Zero(t, cat.Count)
}

func TestErrorStatuses(t *testing.T) {
	e := newEnv(t, nil)

	t.Run("UnknownResolveRoot", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, e.getJSON(t, "/resolve?version=9999", nil))
	})

	t.Run("GarbageArchive", func(t *testing.T) {
		code, _ := e.upload(t, []byte("not an archive"), "curated", "")
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("MissingTenantParam", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, e.getJSON(t, "/catalog", nil))
	})

	t.Run("UnknownPackage", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, e.getJSON(t, "/packages/424242", nil))
	})

	t.Run("ImmutableUpstreamReplacement", func(t *testing.T) {
		archive := testutil.ContentArchive(t, testutil.SimpleManifest("frozen", 1, 0, 0), "v1")
		code, _ := e.upload(t, archive, "upstream", "")
		require.Equal(t, http.StatusCreated, code)

		changed := testutil.ContentArchive(t, testutil.SimpleManifest("frozen", 1, 0, 0), "v2")
		code, _ = e.upload(t, changed, "upstream", "")
		assert.Equal(t, http.StatusConflict, code)
	})

	t.Run("Health", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, e.getJSON(t, "/health", nil))
	})
}
