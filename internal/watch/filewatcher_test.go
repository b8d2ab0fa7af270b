package watch

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testQuiet keeps the debounce window short enough for tests while leaving
// room for event delivery.
const testQuiet = 100 * time.Millisecond

// counter is a callback that counts its invocations.
type counter struct {
	n atomic.Int32
}

func (c *counter) call() { c.n.Add(1) }

func (c *counter) waitFor(t *testing.T, want int32) {
	t.Helper()
	require.Eventually(t, func() bool { return c.n.Load() >= want },
		3*time.Second, 10*time.Millisecond,
		"expected at least %d callback invocations, got %d", want, c.n.Load())
}

func (c *counter) assertStable(t *testing.T, want int32) {
	t.Helper()
	time.Sleep(3 * testQuiet)
	assert.Equal(t, want, c.n.Load(), "callback count changed after settling")
}

func newTestWatcher(t *testing.T) *FileWatcher {
	t.Helper()
	w, err := New(testQuiet)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	// Give the OS watch a moment to become effective.
	time.Sleep(50 * time.Millisecond)
	return w
}

func TestFileWatcher_ModifyTriggersOnce(t *testing.T) {
	// Given: a watched file
	dir := t.TempDir()
	file := filepath.Join(dir, "tls.crt")
	require.NoError(t, os.WriteFile(file, []byte("v1"), 0o600))

	w := newTestWatcher(t)
	var c counter
	require.NoError(t, w.Watch([]string{file}, c.call))
	time.Sleep(50 * time.Millisecond)

	// When: writing to the file
	require.NoError(t, os.WriteFile(file, []byte("v2"), 0o600))

	// Then: the callback fires exactly once after the quiet period
	c.waitFor(t, 1)
	c.assertStable(t, 1)
}

func TestFileWatcher_UnrelatedFileNeverTriggers(t *testing.T) {
	// Given: a watched file sharing a directory with an unrelated file
	dir := t.TempDir()
	watched := filepath.Join(dir, "tls.crt")
	require.NoError(t, os.WriteFile(watched, []byte("v1"), 0o600))

	w := newTestWatcher(t)
	var c counter
	require.NoError(t, w.Watch([]string{watched}, c.call))
	time.Sleep(50 * time.Millisecond)

	// When: churning the unrelated file
	other := filepath.Join(dir, "unrelated.txt")
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(other, []byte("x"), 0o600))
		time.Sleep(20 * time.Millisecond)
	}

	// Then: the callback never fires
	c.assertStable(t, 0)
}

func TestFileWatcher_DeleteTriggers(t *testing.T) {
	// Given: a watched file
	dir := t.TempDir()
	file := filepath.Join(dir, "tls.key")
	require.NoError(t, os.WriteFile(file, []byte("v1"), 0o600))

	w := newTestWatcher(t)
	var c counter
	require.NoError(t, w.Watch([]string{file}, c.call))
	time.Sleep(50 * time.Millisecond)

	// When: deleting it
	require.NoError(t, os.Remove(file))

	// Then: the callback fires
	c.waitFor(t, 1)
}

func TestFileWatcher_CreateInWatchedDirectoryTriggers(t *testing.T) {
	// Given: a watched directory
	dir := t.TempDir()

	w := newTestWatcher(t)
	var c counter
	require.NoError(t, w.Watch([]string{dir}, c.call))
	time.Sleep(50 * time.Millisecond)

	// When: creating a new file inside it
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.crt"), []byte("x"), 0o600))

	// Then: the callback fires
	c.waitFor(t, 1)
}

func TestFileWatcher_SymlinkChainDepthTwo(t *testing.T) {
	// Given: a watch registered on the outermost of two symlink hops
	dirA := t.TempDir()
	dirB := t.TempDir()
	target := filepath.Join(dirA, "real.crt")
	require.NoError(t, os.WriteFile(target, []byte("v1"), 0o600))
	link1 := filepath.Join(dirA, "link1.crt")
	require.NoError(t, os.Symlink("real.crt", link1))
	link2 := filepath.Join(dirB, "link2.crt")
	require.NoError(t, os.Symlink(link1, link2))

	w := newTestWatcher(t)
	var c counter
	require.NoError(t, w.Watch([]string{link2}, c.call))
	time.Sleep(50 * time.Millisecond)

	// When: modifying the real target
	require.NoError(t, os.WriteFile(target, []byte("v2"), 0o600))

	// Then: the callback fires
	c.waitFor(t, 1)
}

func TestFileWatcher_ConfigMapRotation(t *testing.T) {
	// Given: the Kubernetes mounted-secret layout
	dir := t.TempDir()
	uuid1 := filepath.Join(dir, "..uuid1")
	require.NoError(t, os.Mkdir(uuid1, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(uuid1, "secret.txt"), []byte("v1"), 0o600))
	require.NoError(t, os.Symlink("..uuid1", filepath.Join(dir, "..data")))
	require.NoError(t, os.Symlink(filepath.Join("..data", "secret.txt"), filepath.Join(dir, "secret.txt")))

	w := newTestWatcher(t)
	var c counter
	require.NoError(t, w.Watch([]string{filepath.Join(dir, "secret.txt")}, c.call))
	time.Sleep(50 * time.Millisecond)

	// When: rotating by atomically re-pointing ..data and dropping ..uuid1
	uuid2 := filepath.Join(dir, "..uuid2")
	require.NoError(t, os.Mkdir(uuid2, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(uuid2, "secret.txt"), []byte("v2"), 0o600))
	tmp := filepath.Join(dir, "..data.tmp")
	require.NoError(t, os.Symlink("..uuid2", tmp))
	require.NoError(t, os.Rename(tmp, filepath.Join(dir, "..data")))
	require.NoError(t, os.RemoveAll(uuid1))

	// Then: the whole swap collapses into one callback invocation
	c.waitFor(t, 1)
	c.assertStable(t, 1)
}

func TestFileWatcher_DuplicateRegistration(t *testing.T) {
	// Given: the same file watched twice by the same registration set
	dir := t.TempDir()
	file := filepath.Join(dir, "tls.crt")
	require.NoError(t, os.WriteFile(file, []byte("v1"), 0o600))

	w := newTestWatcher(t)
	var c counter
	require.NoError(t, w.Watch([]string{file}, c.call))
	require.NoError(t, w.Watch([]string{file}, c.call))
	time.Sleep(50 * time.Millisecond)

	// When: one underlying change occurs
	require.NoError(t, os.WriteFile(file, []byte("v2"), 0o600))

	// Then: each registration fires once; one change is not double counted
	// within a single registration
	c.waitFor(t, 2)
	c.assertStable(t, 2)
}

func TestFileWatcher_MissingPathFailsAtomically(t *testing.T) {
	// Given: one existing and one missing path
	dir := t.TempDir()
	exists := filepath.Join(dir, "exists.crt")
	require.NoError(t, os.WriteFile(exists, []byte("x"), 0o600))
	missing := filepath.Join(dir, "missing.crt")

	w := newTestWatcher(t)
	var c counter

	// When: watching both in one call
	err := w.Watch([]string{exists, missing}, c.call)

	// Then: the error names the missing path
	var regErr *RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, []string{missing}, regErr.Missing)

	// And: nothing was registered, so changing the existing file is silent
	require.NoError(t, os.WriteFile(exists, []byte("y"), 0o600))
	c.assertStable(t, 0)
}

func TestFileWatcher_NilCallback(t *testing.T) {
	w := newTestWatcher(t)
	err := w.Watch([]string{t.TempDir()}, nil)
	require.Error(t, err)
}

func TestFileWatcher_CloseIsReentrantAndConcurrent(t *testing.T) {
	// Given: a running watcher
	w, err := New(testQuiet)
	require.NoError(t, err)

	// When: closing from many goroutines at once, repeatedly
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NotPanics(t, func() { _ = w.Close() })
		}()
	}
	wg.Wait()

	// Then: another close is still a safe no-op
	require.NoError(t, w.Close())
}

func TestFileWatcher_WatchAfterClose(t *testing.T) {
	// Given: a closed watcher
	dir := t.TempDir()
	file := filepath.Join(dir, "tls.crt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	w, err := New(testQuiet)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// When: watching after close
	err = w.Watch([]string{file}, func() {})

	// Then: the call fails fast instead of reinitializing
	require.ErrorIs(t, err, ErrClosed)
}
