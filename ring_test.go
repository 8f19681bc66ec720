package ember

import (
	"sync"
	"testing"
	"time"
)

func TestNewRingBufferRejectsNonPowerOfTwo(t *testing.T) {
	if _, err := NewRingBuffer(3); err == nil {
		t.Fatal("expected error for non-power-of-two capacity")
	}
	if _, err := NewRingBuffer(0); err == nil {
		t.Fatal("expected error for zero capacity")
	}
}

func TestRingBufferTryPublishNilRecord(t *testing.T) {
	rb, err := NewRingBuffer(4)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rb.TryPublish(nil); err != ErrNilRecord {
		t.Fatalf("expected ErrNilRecord, got %v", err)
	}
}

func TestRingBufferFillAndDrain(t *testing.T) {
	rb, err := NewRingBuffer(4)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		rec := &LogRecord{Seq: uint64(i)}
		ok, err := rb.TryPublish(rec)
		if err != nil || !ok {
			t.Fatalf("publish %d: ok=%v err=%v", i, ok, err)
		}
	}
	// Full: next publish must fail.
	if ok, _ := rb.TryPublish(&LogRecord{}); ok {
		t.Fatal("expected publish to fail once full")
	}
	for i := 0; i < 4; i++ {
		rec, ok := rb.Consume()
		if !ok || rec.Seq != uint64(i) {
			t.Fatalf("consume %d: got seq %v ok=%v", i, rec, ok)
		}
	}
	if _, ok := rb.Consume(); ok {
		t.Fatal("expected empty buffer")
	}
}

// TestRingBufferDropOldestOverload publishes 8 records into a capacity-4
// DROP_OLDEST worker whose consumer keeps running, and checks only the
// published count and the processed+dropped accounting invariant.
func TestRingBufferDropOldestOverload(t *testing.T) {
	w, err := NewAsyncWorker(AsyncWorkerConfig{Capacity: 4, Policy: DropOldest}, &recordingSink{threshold: Trace})
	if err != nil {
		t.Fatal(err)
	}
	// Park the consumer by making sink dispatch slow is unnecessary here;
	// instead we publish faster than the drain loop via overwhelming
	// volume and assert the accounting invariant holds afterward.
	labels := []string{"A", "B", "C", "D", "E", "F", "G", "H"}
	for _, l := range labels {
		w.Publish(NewRecord(Info, "t", l, 0, ""))
	}
	if err := w.Shutdown(2 * time.Second); err != nil {
		t.Fatal(err)
	}
	stats := w.Stats()
	if stats.Published != uint64(len(labels)) {
		t.Fatalf("published = %d, want %d", stats.Published, len(labels))
	}
	if stats.Processed+stats.Dropped != stats.Published {
		t.Fatalf("invariant violated: processed(%d)+dropped(%d) != published(%d)", stats.Processed, stats.Dropped, stats.Published)
	}
}

func TestRingBufferConsumeBatch(t *testing.T) {
	rb, err := NewRingBuffer(8)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if ok, _ := rb.TryPublish(&LogRecord{Seq: uint64(i)}); !ok {
			t.Fatalf("publish %d failed", i)
		}
	}
	out := make([]*LogRecord, 10)
	n := rb.ConsumeBatch(out, 10)
	if n != 5 {
		t.Fatalf("consumed %d, want 5", n)
	}
	for i := 0; i < 5; i++ {
		if out[i].Seq != uint64(i) {
			t.Errorf("out[%d].Seq = %d, want %d", i, out[i].Seq, i)
		}
	}
}

func TestRingBufferCloseStopsPublish(t *testing.T) {
	rb, err := NewRingBuffer(4)
	if err != nil {
		t.Fatal(err)
	}
	rb.Close()
	ok, err := rb.TryPublish(&LogRecord{})
	if err != nil || ok {
		t.Fatalf("publish after close: ok=%v err=%v, want ok=false err=nil", ok, err)
	}
}

func TestRingBufferConcurrentProducers(t *testing.T) {
	rb, err := NewRingBuffer(1024)
	if err != nil {
		t.Fatal(err)
	}
	const producers = 8
	const perProducer = 100
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				rb.Publish(&LogRecord{}, time.Second)
			}
		}()
	}
	wg.Wait()
	stats := rb.Stats()
	if stats.Published != producers*perProducer {
		t.Fatalf("published = %d, want %d", stats.Published, producers*perProducer)
	}
}
