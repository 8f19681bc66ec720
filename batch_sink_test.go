package ember

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestBatchSinkFlushesOnRecordCount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.log")
	sink, err := NewBatchSink(BatchSinkConfig{
		Path: path, MaxRecords: 3, MaxBufferSize: 1 << 20, MaxAge: time.Hour,
	}, Trace, LineFormatter)
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()

	for i := 0; i < 2; i++ {
		sink.Accept(NewRecord(Info, "t", "x", 0, ""))
	}
	if data, _ := os.ReadFile(path); len(data) != 0 {
		t.Fatal("did not expect a flush before MaxRecords was reached")
	}
	// The 3rd Accept appends and then observes count == MaxRecords, so it
	// flushes immediately rather than waiting for a subsequent call.
	sink.Accept(NewRecord(Info, "t", "y", 0, ""))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Fatal("expected flushed bytes on disk after crossing MaxRecords")
	}
}

func TestBatchSinkFlushesOnAge(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.log")
	sink, err := NewBatchSink(BatchSinkConfig{
		Path: path, MaxRecords: 1000, MaxBufferSize: 1 << 20, MaxAge: 30 * time.Millisecond,
	}, Trace, LineFormatter)
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()

	sink.Accept(NewRecord(Info, "t", "x", 0, ""))
	time.Sleep(150 * time.Millisecond)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Fatal("expected the age-triggered background flush to have run")
	}
}

func TestBatchSinkCloseFlushesRemainder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.log")
	sink, err := NewBatchSink(BatchSinkConfig{
		Path: path, MaxRecords: 1000, MaxBufferSize: 1 << 20, MaxAge: time.Hour,
	}, Trace, LineFormatter)
	if err != nil {
		t.Fatal(err)
	}
	sink.Accept(NewRecord(Info, "t", "x", 0, ""))
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Fatal("expected Close to flush pending buffered records")
	}
}
