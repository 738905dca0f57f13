package app

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nfviz.dev/core/config"
	"nfviz.dev/core/devbackend"
	"nfviz.dev/core/log"
	"nfviz.dev/core/orchestrator"
	"nfviz.dev/core/status"
)

func testConfig(backendURL string) *config.Config {
	return &config.Config{
		Backend: config.Backend{URL: backendURL, ReadyTimeout: 5 * time.Second},
		Poll:    config.Poll{Interval: 20 * time.Millisecond},
		Journal: config.Journal{Provider: "memory"},
		Log:     config.Log{Level: "error"},
	}
}

func TestDefaultPipelineAgainstDevBackend(t *testing.T) {
	opts := devbackend.DefaultOptions()
	opts.FrameDelay = 0
	dev := devbackend.New(opts, nil)
	srv := httptest.NewServer(dev.Router())
	defer srv.Close()

	ctx := log.IntoContext(context.Background(), log.Discard())
	a, err := New(ctx, testConfig(srv.URL))
	require.NoError(t, err)
	defer a.Close(context.Background())

	_, err = a.Backend.WaitReady(ctx, 5*time.Second)
	require.NoError(t, err)

	a.Orchestrator.RunAll()
	require.Eventually(t, func() bool {
		return a.Orchestrator.State() == orchestrator.StateMonitoring
	}, 10*time.Second, 10*time.Millisecond)

	snap := a.Store.Snapshot()
	for _, id := range []string{"enable-apis", "create-sa", "iam-roles", "create-network", "create-bucket", "write-config"} {
		assert.Equal(t, status.StatusComplete, snap.Status(id), id)
	}
	assert.Equal(t, "https://console.cloud.google.com/storage/browser/nfviz-dev-bucket", snap.Steps["create-bucket"].URL)
	assert.Equal(t, "Waiting for external trigger", snap.Logs("multiqc")[0].Message)

	for dev.Advance() {
	}

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, a.Orchestrator.Wait(waitCtx))

	snap = a.Store.Snapshot()
	for _, id := range a.Registry.IDs() {
		assert.Equal(t, status.StatusComplete, snap.Status(id), id)
	}
}

func TestSetupFailureAgainstDevBackend(t *testing.T) {
	opts := devbackend.DefaultOptions()
	opts.FrameDelay = 0
	opts.Fail = map[string]string{"iam-roles": "permission denied"}
	srv := httptest.NewServer(devbackend.New(opts, nil).Router())
	defer srv.Close()

	ctx := log.IntoContext(context.Background(), log.Discard())
	a, err := New(ctx, testConfig(srv.URL))
	require.NoError(t, err)
	defer a.Close(context.Background())

	a.Orchestrator.RunAll()
	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, a.Orchestrator.Wait(waitCtx))

	snap := a.Store.Snapshot()
	assert.Equal(t, status.StatusError, snap.Status("iam-roles"))
	logs := snap.Logs("iam-roles")
	assert.Equal(t, "✗ permission denied", logs[len(logs)-1].Message)
	assert.Equal(t, status.StatusPending, snap.Status("create-network"))
}

func TestLoadRegistryFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: tiny
steps:
  - id: only
plan:
  phases:
    - mode: sequential
      steps: [only]
`), 0o644))

	cfg := testConfig("http://unused")
	cfg.Registry.Path = path

	reg, plan, err := LoadRegistry(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, reg.IDs())
	assert.Nil(t, plan.Handoff)

	cfg.Registry.Path = filepath.Join(t.TempDir(), "missing.yaml")
	_, _, err = LoadRegistry(cfg)
	assert.Error(t, err)
}

func TestNewRejectsUnknownJournal(t *testing.T) {
	cfg := testConfig("http://unused")
	cfg.Journal.Provider = "etcd"

	_, err := New(log.IntoContext(context.Background(), log.Discard()), cfg)
	assert.Error(t, err)
}
