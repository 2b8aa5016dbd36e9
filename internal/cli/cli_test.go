package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/similarity"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/source"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/vocab"
	apperrors "github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/errors"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const model = `5 4
monica 1 0.1 0 0
chandler 1 0.12 0.02 0
gunther -1 0.3 0.2 0
king 0 0 1 1
queen 0 0 0.1 1
man 0 0 1 0
woman 0 0 0.1 0
`

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

// writeConfig lays out a model file and a config that serves it.
func writeConfig(t *testing.T) (configPath, dir string) {
	t.Helper()
	dir = t.TempDir()
	modelPath := filepath.Join(dir, "model.txt")
	require.NoError(t, os.WriteFile(modelPath, []byte(model), 0o644))

	configPath = filepath.Join(dir, "config.yaml")
	yaml := "embedding:\n" +
		"  source: file\n" +
		"  path: " + modelPath + "\n" +
		"  format: text\n" +
		"  lowercase: true\n" +
		"query:\n" +
		"  defaultTopN: 2\n"
	require.NoError(t, os.WriteFile(configPath, []byte(yaml), 0o644))
	return configPath, dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSimilarUsesConfiguredDefault(t *testing.T) {
	cfg, _ := writeConfig(t)
	out, err := run(t, "--config", cfg, "--json", "similar", "Monica")
	require.NoError(t, err)

	var matches []similarity.Match
	require.NoError(t, json.Unmarshal([]byte(out), &matches))
	require.Len(t, matches, 2)
	assert.Equal(t, "chandler", matches[0].Token)
}

func TestSimilarText(t *testing.T) {
	cfg, _ := writeConfig(t)
	out, err := run(t, "--config", cfg, "similar", "monica", "-n", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Most similar to monica")
	assert.Contains(t, out, "1. chandler")
}

func TestSimilarUnknownToken(t *testing.T) {
	cfg, _ := writeConfig(t)
	_, err := run(t, "--config", cfg, "similar", "janice")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSimilarity(t *testing.T) {
	cfg, _ := writeConfig(t)
	out, err := run(t, "--config", cfg, "--json", "similarity", "monica", "monica")
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.InDelta(t, 100.0, body["similarity"], 1e-3)
}

func TestAnalogy(t *testing.T) {
	cfg, _ := writeConfig(t)
	out, err := run(t, "--config", cfg, "--json", "analogy", "--positive", "king,woman", "--negative", "man")
	require.NoError(t, err)

	var matches []similarity.Match
	require.NoError(t, json.Unmarshal([]byte(out), &matches))
	require.Len(t, matches, 1)
	assert.Equal(t, "queen", matches[0].Token)
}

func TestOddOneOut(t *testing.T) {
	cfg, _ := writeConfig(t)
	out, err := run(t, "--config", cfg, "odd-one-out", "monica", "chandler", "gunther")
	require.NoError(t, err)
	assert.Contains(t, out, "odd one out: gunther")

	_, err = run(t, "--config", cfg, "odd-one-out", "monica", "chandler")
	assert.Error(t, err)
}

func TestProjectWritesPNG(t *testing.T) {
	cfg, dir := writeConfig(t)
	png := filepath.Join(dir, "plot.png")
	out, err := run(t, "--config", cfg, "project", "monica", "chandler", "gunther", "--png", png)
	require.NoError(t, err)
	assert.Contains(t, out, "plot written to")

	info, err := os.Stat(png)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestInfo(t *testing.T) {
	cfg, _ := writeConfig(t)
	out, err := run(t, "--config", cfg, "--json", "info")
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.EqualValues(t, 7, body["size"])
	assert.EqualValues(t, 4, body["dimension"])
}

func TestExportRoundTrips(t *testing.T) {
	cfg, dir := writeConfig(t)
	bin := filepath.Join(dir, "model.bin")
	db := filepath.Join(dir, "model.db")
	out, err := run(t, "--config", cfg, "export", "--binary", bin, "--sqlite", db, "--table", "friends")
	require.NoError(t, err)
	assert.Contains(t, out, "exported 7 tokens -> binary:"+bin)

	fromBinary, err := source.NewFile(bin, "binary").Load(context.Background())
	require.NoError(t, err)
	sqlite, err := source.NewSQLite(db, "friends")
	require.NoError(t, err)
	fromSQLite, err := sqlite.Load(context.Background())
	require.NoError(t, err)

	for _, pairs := range [][]vocab.Pair{fromBinary, fromSQLite} {
		store, err := vocab.New(pairs)
		require.NoError(t, err)
		assert.Equal(t, 7, store.Size())
		e, err := store.Lookup("queen")
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 0, 0.1, 1}, e.Vector)
	}
}

func TestExportNeedsTarget(t *testing.T) {
	cfg, _ := writeConfig(t)
	_, err := run(t, "--config", cfg, "export")
	assert.ErrorContains(t, err, "no export target")
}

func TestReloadServer(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/admin/reload", r.URL.Path)
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"reloaded","version":"abcd1234","size":7,"dimension":4}`))
	}))
	defer srv.Close()

	out, err := run(t, "reload", "--server", srv.URL+"/", "--token", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Contains(t, out, "reloaded version abcd1234")
}

func TestReloadServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"detail":"reload failed: source down"}`))
	}))
	defer srv.Close()

	_, err := run(t, "reload", "--server", srv.URL)
	assert.ErrorContains(t, err, "source down")
}

func TestReloadNeedsMode(t *testing.T) {
	_, err := run(t, "reload")
	assert.ErrorContains(t, err, "--server or --broadcast")
}
