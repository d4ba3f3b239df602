package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// newPipeFile returns the read and write ends of an os.Pipe; the write end
// is a non-terminal, so passing it to New exercises the JSON-handler branch.
func newPipeFile(t *testing.T) (*os.File, *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	t.Cleanup(func() { r.Close(); w.Close() })
	return r, w
}

func TestNewWritesJSONToNonTerminal(t *testing.T) {
	r, w := newPipeFile(t)
	log := New(w)

	done := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(r)
		scanner.Scan()
		done <- scanner.Text()
	}()

	log.Info("hello", "conn", "c1")
	w.Close()

	line := <-done
	var decoded map[string]any
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("log line %q is not valid JSON: %v", line, err)
	}
	if decoded["msg"] != "hello" {
		t.Fatalf("decoded[msg] = %v, want hello", decoded["msg"])
	}
	if decoded["conn"] != "c1" {
		t.Fatalf("decoded[conn] = %v, want c1", decoded["conn"])
	}
}

func TestRotatedLogPathIncludesPrefixAndExtension(t *testing.T) {
	path, err := RotatedLogPath("/var/log/quaked", "server")
	if err != nil {
		t.Fatalf("RotatedLogPath: %v", err)
	}
	if !strings.HasPrefix(path, "/var/log/quaked/server-") {
		t.Fatalf("path = %q, want prefix /var/log/quaked/server-", path)
	}
	if !strings.HasSuffix(path, ".log") {
		t.Fatalf("path = %q, want .log suffix", path)
	}
}

func TestOpenRotatedCreatesFile(t *testing.T) {
	dir := t.TempDir()
	f, path, err := OpenRotated(dir, "client")
	if err != nil {
		t.Fatalf("OpenRotated: %v", err)
	}
	defer f.Close()

	if filepath.Dir(path) != dir {
		t.Fatalf("path dir = %q, want %q", filepath.Dir(path), dir)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Stat(%s): %v", path, err)
	}
}
