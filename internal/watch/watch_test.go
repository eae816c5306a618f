package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	changed []string
	added   []string
}

func (h *recordingHandler) OnChange(ctx context.Context, file string) error {
	h.changed = append(h.changed, file)
	return nil
}

func (h *recordingHandler) OnAddOrUnlink(ctx context.Context, file string) error {
	h.added = append(h.added, file)
	return nil
}

func TestNew_WatchesRootTree(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0755))

	h := &recordingHandler{}
	w, err := New(Options{Root: root}, h)
	require.NoError(t, err)
	defer w.Close()
	require.Contains(t, w.fsw.WatchList(), filepath.Join(root, "sub"))
}

func TestNew_IgnoresMatchedDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "node_modules"), 0755))

	h := &recordingHandler{}
	w, err := New(Options{
		Root:   root,
		Ignore: func(path string) bool { return filepath.Base(path) == "node_modules" },
	}, h)
	require.NoError(t, err)
	defer w.Close()
	require.NotContains(t, w.fsw.WatchList(), filepath.Join(root, "node_modules"))
}

func TestWatcher_DetectsFileWrite(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "main.js")
	require.NoError(t, os.WriteFile(file, []byte("a"), 0644))

	h := &recordingHandler{}
	w, err := New(Options{Root: root, Debounce: 5 * time.Millisecond}, h)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	go w.Run(ctx)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, os.WriteFile(file, []byte("b"), 0644))

	deadline := time.Now().Add(400 * time.Millisecond)
	for time.Now().Before(deadline) && len(h.changed) == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	require.NotEmpty(t, h.changed)
}
