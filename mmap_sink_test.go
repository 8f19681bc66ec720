package ember

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMMapSinkWriteAndGrow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mmap.log")

	sink, err := NewMMapSink(MMapSinkConfig{Path: path, InitialRegion: mmapMinRegion}, Trace, LineFormatter)
	if err != nil {
		t.Fatal(err)
	}

	// 5000 records of 266 bytes each exceed the 1 MiB initial region, so
	// the sink has to grow it once.
	msg := strings.Repeat("x", 256)
	for i := 0; i < 5000; i++ {
		sink.Accept(NewRecord(Info, "t", msg, 0, ""))
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Fatal("expected non-empty file after writes")
	}
}

func TestMMapSinkCloseIdempotent(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewMMapSink(MMapSinkConfig{Path: filepath.Join(dir, "a.log")}, Trace, nil)
	if err != nil {
		t.Fatal(err)
	}
	sink.Accept(NewRecord(Info, "t", "x", 0, ""))
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}
}

func TestMMapSinkAppendsAfterExistingContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "append.log")
	if err := os.WriteFile(path, []byte("PREEXISTING"), 0o644); err != nil {
		t.Fatal(err)
	}

	sink, err := NewMMapSink(MMapSinkConfig{Path: path, InitialRegion: mmapMinRegion}, Trace, LineFormatter)
	if err != nil {
		t.Fatal(err)
	}
	sink.Accept(NewRecord(Info, "t", "appended", 0, ""))
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "PREEXISTING") {
		t.Fatalf("expected pre-existing bytes preserved at the head of the file, got %q", string(data))
	}
	if strings.Contains(string(data)[:len("PREEXISTING")], "appended") {
		t.Fatal("new record must not overwrite pre-existing bytes")
	}
}

func TestMMapSinkRejectsBadConfig(t *testing.T) {
	if _, err := NewMMapSink(MMapSinkConfig{}, Trace, nil); err == nil {
		t.Fatal("expected error for empty path")
	}
}
