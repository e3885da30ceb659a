package logfile_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alpacahq/aesdsocket/logfile"
)

func open(t *testing.T) *logfile.File {
	t.Helper()
	f, err := logfile.Open(filepath.Join(t.TempDir(), "aesdsocketdata"))
	require.Nil(t, err)
	t.Cleanup(func() { _ = f.Remove() })
	return f
}

func TestAppendThenReadAll(t *testing.T) {
	t.Parallel()
	// --- given ---
	f := open(t)

	// --- when ---
	require.Nil(t, f.Append([]byte("hello\n")))
	require.Nil(t, f.Append([]byte("world\n")))

	var buf bytes.Buffer
	n, err := f.ReadAll(&buf)

	// --- then ---
	require.Nil(t, err)
	assert.Equal(t, int64(12), n)
	assert.Equal(t, "hello\nworld\n", buf.String())
	assert.Equal(t, int64(12), f.Size())
}

func TestOpenTruncatesExistingFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "aesdsocketdata")
	require.Nil(t, os.WriteFile(path, []byte("stale\n"), 0o600))

	f, err := logfile.Open(path)
	require.Nil(t, err)
	defer f.Remove()

	var buf bytes.Buffer
	_, err = f.ReadAll(&buf)
	require.Nil(t, err)
	assert.Equal(t, "", buf.String())
}

func TestConcurrentAppendsAreNotInterleaved(t *testing.T) {
	t.Parallel()
	// --- given ---
	f := open(t)
	const writers = 16
	const size = 64 * 1024

	// --- when ---
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(c byte) {
			defer wg.Done()
			assert.Nil(t, f.Append([]byte(strings.Repeat(string(c), size)+"\n")))
		}(byte('a' + i))
	}
	// readers run alongside the writers and must always see whole records
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var buf bytes.Buffer
			_, err := f.ReadAll(&buf)
			assert.Nil(t, err)
			assert.Equal(t, 0, buf.Len()%(size+1))
		}()
	}
	wg.Wait()

	// --- then ---
	var buf bytes.Buffer
	_, err := f.ReadAll(&buf)
	require.Nil(t, err)
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, writers)
	seen := map[byte]bool{}
	for _, line := range lines {
		require.Len(t, line, size)
		assert.Equal(t, strings.Repeat(line[:1], size), line)
		seen[line[0]] = true
	}
	assert.Len(t, seen, writers)
}

func TestRemove(t *testing.T) {
	t.Parallel()
	// --- given ---
	path := filepath.Join(t.TempDir(), "aesdsocketdata")
	f, err := logfile.Open(path)
	require.Nil(t, err)
	require.Nil(t, f.Append([]byte("abc\n")))

	// --- when ---
	require.Nil(t, f.Remove())

	// --- then ---
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, logfile.ErrRemoved, f.Append([]byte("def\n")))
	_, err = f.ReadAll(&bytes.Buffer{})
	assert.Equal(t, logfile.ErrRemoved, err)
	assert.Nil(t, f.Remove())
}
