package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "unbase.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "unbase-node", cfg.AppName)
	assert.Equal(t, uint32(1), cfg.SlabIDBase)
	assert.Equal(t, "info", cfg.Log.Level)
	require.Len(t, cfg.Transports, 1)
	assert.Equal(t, "udp", cfg.Transports[0].Kind)
	assert.Equal(t, 2000, cfg.Net.SendTimeoutMS)
}

func TestLoadFile(t *testing.T) {
	p := writeFile(t, t.TempDir(), `
node_id: node-a
create_new_system: true
slab_id_base: 100
slabs: 3
log:
  level: debug
transports:
  - kind: Blackhole
  - kind: udp
    listen: ["127.0.0.1:0"]
    seeds: ["127.0.0.1:51001"]
metrics:
  enable: true
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "node-a", cfg.NodeID)
	assert.True(t, cfg.CreateNewSystem)
	assert.Equal(t, uint32(100), cfg.SlabIDBase)
	assert.Equal(t, 3, cfg.Slabs)
	assert.Equal(t, "debug", cfg.Log.Level)
	require.Len(t, cfg.Transports, 2)
	assert.Equal(t, "blackhole", cfg.Transports[0].Kind)
	assert.Equal(t, []string{"127.0.0.1:51001"}, cfg.Transports[1].Seeds)
	assert.True(t, cfg.Metrics.Enable)
	assert.Equal(t, ":9102", cfg.Metrics.Listen)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("UNBASE_LOG_LEVEL", "warn")
	t.Setenv("UNBASE_NODE_ID", "from-env")
	p := writeFile(t, t.TempDir(), "node_id: from-file\n")
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "from-env", cfg.NodeID)
}

func TestValidateRejects(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(writeFile(t, dir, "log:\n  level: chatty\n"))
	assert.ErrorContains(t, err, "log.level")

	_, err = Load(writeFile(t, dir, "transports:\n  - kind: carrier-pigeon\n"))
	assert.ErrorContains(t, err, "transports[0].kind")
}

func TestMustLoadPanicsOnMalformedFile(t *testing.T) {
	p := writeFile(t, t.TempDir(), "log: [unterminated\n")
	assert.Panics(t, func() { MustLoad(p) })
}

func TestWatchReportsChanges(t *testing.T) {
	p := writeFile(t, t.TempDir(), "log:\n  level: info\n")
	changes := make(chan *Config, 16)
	cfg, err := Watch(p, func(c *Config, _ fsnotify.Event) {
		select {
		case changes <- c:
		default:
		}
	})
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)

	// fsnotify needs the watcher goroutine running before the write lands
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(p, []byte("log:\n  level: debug\n"), 0o644))

	// a rewrite can surface as several events; wait for the final content
	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changes:
			if c.Log.Level == "debug" {
				return
			}
		case <-deadline:
			t.Fatal("no config change observed")
		}
	}
}
