package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type record struct {
	ID   string `json:"id"`
	User string `json:"user"`
}

func readLines(t *testing.T, path string) []record {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var out []record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		out = append(out, r)
	}
	return out
}

func TestJSONLWriterFlushesOnClose(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLWriter(dir, "tips", "soundcloud", 16, 1)
	fixed := time.Date(2026, 3, 4, 23, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	for _, id := range []string{"a", "b", "c"} {
		if err := w.Write(record{ID: id, User: "artist"}); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	path := filepath.Join(dir, "2026-03-04", "tips", "soundcloud.jsonl")
	if got := w.Path(); got != path {
		t.Fatalf("Path() = %s; want %s", got, path)
	}
	got := readLines(t, path)
	if len(got) != 3 || got[0].ID != "a" || got[2].ID != "c" {
		t.Fatalf("records = %+v", got)
	}
}

func TestJSONLWriterRejectsAfterClose(t *testing.T) {
	w := NewJSONLWriter(t.TempDir(), "tips", "x", 1, 1)
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.Write(record{ID: "late"}); err != ErrWriterClosed {
		t.Fatalf("Write() after Close = %v; want ErrWriterClosed", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

func TestWriterRegistrySharesWriters(t *testing.T) {
	dir := t.TempDir()
	r := NewWriterRegistry(dir, "tips", 8, 1)

	a := r.GetWriter("SoundCloud")
	b := r.GetWriter("soundcloud")
	if a != b {
		t.Fatal("GetWriter() returned distinct writers for the same stream")
	}
	if c := r.GetWriter("other"); c == a {
		t.Fatal("GetWriter() shared a writer across streams")
	}
	if err := a.Write(record{ID: "1"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := readLines(t, a.Path()); len(got) != 1 {
		t.Fatalf("records = %+v", got)
	}
}

func TestSafeSegment(t *testing.T) {
	tests := map[string]string{
		"soundcloud":   "soundcloud",
		" SoundCloud ": "soundcloud",
		"../etc":       "___etc",
		"a b/c":        "a_b_c",
		"":             "default",
	}
	for in, want := range tests {
		if got := SafeSegment(in); got != want {
			t.Errorf("SafeSegment(%q) = %q; want %q", in, got, want)
		}
	}
}
