package test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alpacahq/aesdsocket/logfile"
	"github.com/alpacahq/aesdsocket/utils/log"
)

const dataFileName = "aesdsocketdata"

func checkfail(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		log.Error("Message: %v - Error: %v", msg, err)
		t.Fatalf("%s: %v", msg, err)
	}
}

// DataFile returns a path for the shared log inside a per-test directory.
func DataFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), dataFileName)
}

// OpenLogFile opens a fresh shared log that is removed when the test ends.
func OpenLogFile(t *testing.T) *logfile.File {
	t.Helper()
	lf, err := logfile.Open(DataFile(t))
	checkfail(t, err, "OpenLogFile: Unable to open shared log")
	t.Cleanup(func() {
		if err := lf.Remove(); err != nil {
			log.Error("Failed to clean up shared log - Error: %v", err)
		}
	})
	return lf
}

// MakeDummyPackets returns n newline-terminated packets of the given size,
// each filled with a character unique to its position.
func MakeDummyPackets(n, size int) []string {
	packets := make([]string, 0, n)
	for i := 0; i < n; i++ {
		body := strings.Repeat(string(rune('A'+i%26)), size)
		packets = append(packets, fmt.Sprintf("%s\n", body))
	}
	return packets
}

// WriteConfig writes a YAML config into a per-test directory and returns
// its path.
func WriteConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "aesdsocket.yml")
	const ownerRW = 0o600
	checkfail(t, os.WriteFile(p, []byte(body), ownerRW), "WriteConfig: Unable to write config")
	return p
}

// ParseT parses a timestamp in the "2006-01-02 15:04:05" layout, local time.
func ParseT(s string) time.Time {
	t, _ := time.ParseInLocation("2006-01-02 15:04:05", s, time.Local)
	return t
}
