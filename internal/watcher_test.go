package internal

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingServer struct {
	calls atomic.Int32
}

func (s *countingServer) UpdateConfigs(ctx context.Context) error { return nil }
func (s *countingServer) Reload(ctx context.Context) error        { return nil }
func (s *countingServer) Shutdown(ctx context.Context) error      { return nil }

func (s *countingServer) UpdateAndReload(ctx context.Context) error {
	s.calls.Add(1)
	return nil
}

func TestTemplateWatcher(t *testing.T) {
	dir := t.TempDir()
	template := filepath.Join(dir, "Corefile.template")
	require.NoError(t, os.WriteFile(template, []byte(testTemplate), 0644))

	server := &countingServer{}
	watcher := NewTemplateWatcher(template, server, 100*time.Millisecond, zap.NewNop())
	require.NoError(t, watcher.Start(context.Background()))
	defer watcher.Stop()

	// unrelated files in the same directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other"), []byte("x"), 0644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(0), server.calls.Load())

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(template, []byte(testTemplate+"# edit\n"), 0644))
	}
	require.Eventually(t, func() bool {
		return server.calls.Load() >= 1
	}, 2*time.Second, 20*time.Millisecond)

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), server.calls.Load(), "bursts of events are debounced")
}

func TestTemplateWatcherMissingDirectory(t *testing.T) {
	watcher := NewTemplateWatcher(filepath.Join(t.TempDir(), "missing", "Corefile.template"), &countingServer{}, 0, zap.NewNop())

	assert.Error(t, watcher.Start(context.Background()))
	assert.NoError(t, watcher.Stop())
}
