package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"immich-takeout/internal/config"
	"immich-takeout/internal/immich"
	"immich-takeout/internal/testsupport"
)

type fakeImmich struct {
	server *httptest.Server

	mu        sync.Mutex
	apiKey    string
	filenames []string
	updates   map[string]map[string]any
}

func newFakeImmich(t *testing.T) *fakeImmich {
	t.Helper()
	f := &fakeImmich{apiKey: "test", updates: make(map[string]map[string]any)}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/server/ping", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"res": "pong"})
	})
	mux.HandleFunc("GET /api/users/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"id": "u1", "email": "ada@example.com", "name": "Ada"})
	})
	mux.HandleFunc("POST /api/assets", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(8 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, header, err := r.FormFile("assetData")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.filenames = append(f.filenames, header.Filename)
		id := fmt.Sprintf("asset-%d", len(f.filenames))
		f.mu.Unlock()
		writeJSON(w, http.StatusCreated, map[string]string{"id": id, "status": "created"})
	})
	mux.HandleFunc("PUT /api/assets/{id}", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.updates[r.PathValue("id")] = body
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"id": r.PathValue("id")})
	})
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != f.apiKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid API key"})
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeImmich) uploaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.filenames...)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()
	for _, key := range []string{"IMMICH_API_URL", "IMMICH_API_KEY", "IMMICH_DEVICE_ID", "IMMICH_TAKEOUT_LOG_LEVEL", "IMMICH_TAKEOUT_STATE"} {
		t.Setenv(key, "")
	}
	cfg := testsupport.NewConfig(t, opts...)
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func writeTakeout(t *testing.T, dir string) string {
	t.Helper()
	taken := time.Date(2018, 9, 23, 21, 42, 21, 0, time.UTC)
	return testsupport.WriteArchive(t, dir, "takeout-001.tgz",
		testsupport.ArchiveEntry{
			Name: "Takeout/Google Photos/Trip/IMG_0001.jpg",
			Body: testsupport.JPEG{DateTimeOriginal: "2018:09:23 17:42:21"}.Bytes(),
		},
		testsupport.ArchiveEntry{
			Name: "Takeout/Google Photos/Trip/IMG_0001.jpg.json",
			Body: testsupport.Sidecar{Title: "IMG_0001.jpg", Taken: taken, Latitude: 40.7, Longitude: -74}.JSON(),
		},
		testsupport.ArchiveEntry{Name: "Takeout/Google Photos/Trip/stray.png", Body: []byte("png")},
	)
}

func TestImportUploadsAndWritesReport(t *testing.T) {
	server := newFakeImmich(t)
	env := setupCLITestEnv(t, testsupport.WithServer(server.server.URL), testsupport.WithReport("json"))
	archive := writeTakeout(t, env.baseDir)

	out, _, err := runCLI(t, []string{archive}, env.configPath)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	requireContains(t, out, "Uploaded")
	requireContains(t, out, "Media without sidecar")

	if got := server.uploaded(); len(got) != 1 || got[0] != "IMG_0001.jpg" {
		t.Fatalf("uploaded = %v, want [IMG_0001.jpg]", got)
	}
	update, ok := server.updates["asset-1"]
	if !ok {
		t.Fatalf("expected metadata update for asset-1")
	}
	if update["dateTimeOriginal"] != "2018-09-23T17:42:21-04:00" {
		t.Fatalf("dateTimeOriginal = %v", update["dateTimeOriginal"])
	}

	data, err := os.ReadFile(env.cfg.Report.Path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var rows []map[string]string
	if err := json.Unmarshal(data, &rows); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	states := make(map[string]string)
	for _, row := range rows {
		states[row["file"]] = row["state"]
	}
	if states["IMG_0001.jpg"] != "uploaded" || states["stray.png"] != "dangling file" {
		t.Fatalf("unexpected report states %v", states)
	}
}

func TestImportFlagsOverrideConfig(t *testing.T) {
	server := newFakeImmich(t)
	server.apiKey = "from-flag"
	env := setupCLITestEnv(t)
	archive := writeTakeout(t, env.baseDir)
	statePath := filepath.Join(env.baseDir, "resume", "state.db")

	args := []string{"--api-url", server.server.URL, "--api-key", "from-flag", "--state-path", statePath, "--include-unmatched", archive}
	if _, _, err := runCLI(t, args, env.configPath); err != nil {
		t.Fatalf("import: %v", err)
	}
	if got := server.uploaded(); len(got) != 2 {
		t.Fatalf("uploaded = %v, want both entries", got)
	}
	if _, err := os.Stat(statePath); err != nil {
		t.Fatalf("expected resume database: %v", err)
	}

	out, _, err := runCLI(t, args, env.configPath)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	requireContains(t, out, "Skipped (already uploaded)")
	if got := server.uploaded(); len(got) != 2 {
		t.Fatalf("second run uploaded again: %v", got)
	}
}

func TestImportDryRunSkipsServer(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithServer("http://127.0.0.1:1"))
	archive := writeTakeout(t, env.baseDir)

	out, _, err := runCLI(t, []string{"--dry-run", archive}, env.configPath)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	requireContains(t, out, "Would upload")
}

func TestImportRequiresServerSettings(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithServer(""))
	archive := writeTakeout(t, env.baseDir)

	_, _, err := runCLI(t, []string{archive}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "immich.url is required") {
		t.Fatalf("expected missing url error, got %v", err)
	}
}

func TestImportRejectsMissingArchive(t *testing.T) {
	server := newFakeImmich(t)
	env := setupCLITestEnv(t, testsupport.WithServer(server.server.URL))

	_, _, err := runCLI(t, []string{filepath.Join(env.baseDir, "nope.tgz")}, env.configPath)
	if err == nil {
		t.Fatalf("expected error for missing archive")
	}
	if !strings.Contains(err.Error(), "nope.tgz") || strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("archive path should be opened as an archive, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
	if got := server.uploaded(); len(got) != 0 {
		t.Fatalf("nothing should be uploaded, got %v", got)
	}
}

func TestPing(t *testing.T) {
	server := newFakeImmich(t)
	env := setupCLITestEnv(t, testsupport.WithServer(server.server.URL))

	out, _, err := runCLI(t, []string{"ping"}, env.configPath)
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	requireContains(t, out, "Immich reachable")
	requireContains(t, out, "ada@example.com")

	_, _, err = runCLI(t, []string{"ping", "--api-key", "wrong"}, env.configPath)
	if !errors.Is(err, immich.ErrUnauthorized) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "Resume state: disabled")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	requireContains(t, out, "IMMICH_API_KEY")
	requireContains(t, out, "IMMICH_TAKEOUT_STATE")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatalf("expected refusal to overwrite existing config")
	}

	out, _, err = runCLI(t, []string{"config", "validate"}, target)
	if err != nil {
		t.Fatalf("validate sample: %v", err)
	}
	requireContains(t, out, "Configuration valid")
}
