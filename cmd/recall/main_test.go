package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallkit/recall/config"
	"github.com/recallkit/recall/pkg/jobs"
	"github.com/recallkit/recall/pkg/llm"
	"github.com/recallkit/recall/pkg/logger"
	"github.com/recallkit/recall/pkg/memory"
	"github.com/recallkit/recall/pkg/storage"
	"github.com/recallkit/recall/pkg/storage/sqlite"
)

type fixedGenerator struct{}

func (fixedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return "The user is planning a trip to Lisbon.", nil
}

func stubGenerator(t *testing.T) {
	t.Helper()
	prev := generatorFactory
	generatorFactory = func(config.LLMConfig, logger.Logger, llm.Recorder) (memory.Generator, error) {
		return fixedGenerator{}, nil
	}
	t.Cleanup(func() { generatorFactory = prev })
}

func testAppConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Storage.SQLite.Path = filepath.Join(dir, "recall.sqlite")
	cfg.Storage.Embeddings = "memory"
	cfg.Embedder.Provider = "hash"
	cfg.Embedder.Dimension = 32
	cfg.Metrics.Enabled = false
	cfg.Log.Output = "stderr"
	cfg.Log.Level = "error"
	return cfg
}

// seedIdleChat stores a chat whose last message is two hours old.
func seedIdleChat(t *testing.T, path string) {
	t.Helper()
	store, err := sqlite.New(&sqlite.Config{Path: path})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	at := time.Now().Add(-2 * time.Hour).UTC()
	require.NoError(t, store.CreateChat(ctx, &storage.Chat{
		ID:             "c1",
		UserID:         "u1",
		Title:          "Lisbon",
		Visibility:     storage.VisibilityPrivate,
		CreatedAt:      at,
		LastActivityAt: at,
	}))
	require.NoError(t, store.AppendMessages(ctx, "c1", []*storage.Message{
		{ID: "m1", ChatID: "c1", Role: "user", Parts: []storage.Part{{Type: "text", Text: "I am flying to Lisbon next month."}}, CreatedAt: at},
		{ID: "m2", ChatID: "c1", Role: "assistant", Parts: []storage.Part{{Type: "text", Text: "Great, what would you like to see?"}}, CreatedAt: at.Add(time.Second)},
	}))
}

func TestGlobalFlags_Overrides(t *testing.T) {
	f := &globalFlags{}
	assert.Empty(t, f.overrides())

	f = &globalFlags{port: 9000, logLevel: "debug", debug: true}
	assert.Equal(t, map[string]interface{}{
		"server.port": 9000,
		"log.level":   "debug",
		"app.debug":   true,
	}, f.overrides())
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "recall ")
}

func TestNewEmbeddingStore(t *testing.T) {
	cfg := testAppConfig(t)
	store, err := sqlite.New(&sqlite.Config{Path: cfg.Storage.SQLite.Path})
	require.NoError(t, err)
	defer store.Close()

	for _, backend := range []string{"sqlite", "memory", "badger"} {
		t.Run(backend, func(t *testing.T) {
			sc := cfg.Storage
			sc.Embeddings = backend
			sc.Badger.Path = t.TempDir()
			sc.Badger.ValueLogFileSize = 1 << 20
			vs, err := newEmbeddingStore(sc, store)
			require.NoError(t, err)
			require.NoError(t, vs.Close())
		})
	}

	sc := cfg.Storage
	sc.Embeddings = "cassandra"
	_, err = newEmbeddingStore(sc, store)
	assert.ErrorContains(t, err, "unknown embedding store")
}

func TestNewApp_LLMFailureReleasesStorage(t *testing.T) {
	cfg := testAppConfig(t)
	cfg.LLM.Provider = "openai"
	cfg.LLM.OpenAI.APIKey = ""

	_, err := newApp(context.Background(), cfg, logger.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init llm")
}

func TestApp_ApplyReload(t *testing.T) {
	stubGenerator(t)
	cfg := testAppConfig(t)
	cfg.Jobs.Token = "old"

	a, err := newApp(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	defer a.close(context.Background())
	assert.Equal(t, "old", a.token())

	next := testAppConfig(t)
	next.Jobs.Token = "new"
	next.Memory.ContextBudget = 1234
	next.Log.Level = "debug"
	a.applyReload(next)

	assert.Equal(t, "new", a.token())
	assert.Equal(t, 1234, a.hub.Config().Memory.ContextBudget)
	assert.Equal(t, logger.DebugLevel, a.log.GetLevel())
}

func TestRunJob_FinalizeIdle(t *testing.T) {
	stubGenerator(t)
	cfg := testAppConfig(t)
	seedIdleChat(t, cfg.Storage.SQLite.Path)

	var out bytes.Buffer
	err := runJobWithConfig(context.Background(), cfg, &out, func(ctx context.Context, r *jobs.Runner) (any, error) {
		return r.FinalizeIdle(ctx, jobs.TriggerCLI)
	})
	require.NoError(t, err)

	var report memory.FinalizeReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 1, report.Finalized)

	store, err := sqlite.New(&sqlite.Config{Path: cfg.Storage.SQLite.Path})
	require.NoError(t, err)
	defer store.Close()
	sum, err := store.GetSummary(context.Background(), "u1")
	require.NoError(t, err)
	assert.Contains(t, sum.Content, "Lisbon")
}

func TestJobCompressCommand(t *testing.T) {
	stubGenerator(t)
	cfg := testAppConfig(t)
	seedIdleChat(t, cfg.Storage.SQLite.Path)

	cfgPath := filepath.Join(t.TempDir(), "recall.yaml")
	yaml := "storage:\n" +
		"  sqlite:\n" +
		"    path: " + cfg.Storage.SQLite.Path + "\n" +
		"  embeddings: memory\n" +
		"metrics:\n" +
		"  enabled: false\n" +
		"log:\n" +
		"  level: error\n" +
		"  output: stderr\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o600))

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"job", "compress", "--config", cfgPath})
	require.NoError(t, root.Execute())

	var report map[string]memory.TierCounts
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	require.Contains(t, report, "u1")
	assert.False(t, report["u1"].Failed())
}
