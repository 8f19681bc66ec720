// compress.go: bounded compression work queue with adaptive back-pressure
//
// Copyright (c) 2025 emberlog
// SPDX-License-Identifier: MPL-2.0
//
// Grounded on the teacher's BackgroundWorkers (rotation.go): a bounded
// taskQueue channel, a fixed worker pool, an atomic in-flight counter and
// a sync.Once-guarded stop. Generalized from the teacher's unbounded
// "fire and forget" dispatch into the specification's queue-depth-aware
// try_submit/submit_adaptive state machine, and from the teacher's stdlib
// compress/gzip call into github.com/klauspost/compress/gzip, grounded on
// the n-backup manifest's use of the same package for rotated log
// compression.

package ember

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	kgzip "github.com/klauspost/compress/gzip"
)

// CompressFunc compresses src, writing the result to a new file alongside
// it and returning that file's path. Treated as an opaque capability
// (spec §4.7 "an externally supplied compression routine").
type CompressFunc func(src string) (string, error)

// DefaultCompressFunc writes a gzip copy of src to src+".gz" using
// klauspost/compress and returns that path; it is the default CompressFunc
// for RotatingSink. src itself is left on disk: neither this function nor
// the pipeline removes it after compression.
func DefaultCompressFunc(src string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	dst := src + ".gz"
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, GetDefaultFileMode())
	if err != nil {
		return "", err
	}
	gw := kgzip.NewWriter(out)

	if _, err := copyAll(gw, in); err != nil {
		gw.Close()
		out.Close()
		os.Remove(dst)
		return "", err
	}
	if err := gw.Close(); err != nil {
		out.Close()
		os.Remove(dst)
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", err
	}
	return dst, nil
}

func copyAll(dst interface{ Write([]byte) (int, error) }, src *os.File) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if rerr != nil {
			if rerr == io.EOF {
				return total, nil
			}
			return total, rerr
		}
	}
}

type compressTask struct {
	path     string
	callback func(resultPath string, success bool)
}

// CompressionStats mirrors spec §3's compression queue counters.
type CompressionStats struct {
	Completed      int64
	Failed         int64
	BlockedInvocations int64
	AdaptiveResizes int64
	Depth          int64
}

// CompressionPipeline is a bounded FIFO of pending compression tasks
// served by a fixed daemon worker pool (spec §4.7).
type CompressionPipeline struct {
	cfg  CompressionConfig
	fn   CompressFunc
	name string

	queue chan compressTask
	depth atomic.Int64

	completed          atomic.Int64
	failed             atomic.Int64
	blockedInvocations atomic.Int64
	adaptiveResizes    atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopOnce sync.Once
	stopped  atomic.Bool
}

// NewCompressionPipeline starts cfg.Workers daemon goroutines draining a
// queue whose capacity is four times the Q_crit threshold, and at least
// 100; the capacity has no setting of its own.
func NewCompressionPipeline(cfg CompressionConfig, sinkName string, fn CompressFunc) (*CompressionPipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if fn == nil {
		fn = DefaultCompressFunc
	}
	qMax := cfg.QueueCrit * 4
	if qMax < 100 {
		qMax = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &CompressionPipeline{
		cfg:    cfg,
		fn:     fn,
		name:   sinkName,
		queue:  make(chan compressTask, qMax),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p, nil
}

func (p *CompressionPipeline) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.queue:
			if !ok {
				return
			}
			p.depth.Add(-1)
			p.runTask(task)
		}
	}
}

func (p *CompressionPipeline) runTask(task compressTask) {
	result, err := p.fn(task.path)
	if err != nil {
		p.failed.Add(1)
		if task.callback != nil {
			task.callback("", false)
		}
		return
	}
	p.completed.Add(1)
	if task.callback != nil {
		task.callback(result, true)
	}
}

func (p *CompressionPipeline) queueWarn() int {
	if p.cfg.QueueWarn <= 0 {
		return defaultQueueWarn
	}
	return p.cfg.QueueWarn
}

func (p *CompressionPipeline) queueCrit() int {
	if p.cfg.QueueCrit <= 0 {
		return defaultQueueCrit
	}
	return p.cfg.QueueCrit
}

// trySubmit implements spec §4.7's try_submit: false if shut down or the
// file is gone, false with a critical diagnostic at Q_crit, otherwise
// enqueues (with a soft-warning diagnostic past Q_warn).
func (p *CompressionPipeline) trySubmit(path string, callback func(string, bool)) bool {
	if p.stopped.Load() {
		return false
	}
	if _, err := os.Stat(path); err != nil {
		return false
	}
	depth := p.depth.Load()
	if int(depth) >= p.queueCrit() {
		reportCritical("compression queue overflow on %s: depth=%d threshold crit=%d", p.name, depth, p.queueCrit())
		return false
	}
	select {
	case p.queue <- compressTask{path: path, callback: callback}:
		p.depth.Add(1)
		if int(depth+1) >= p.queueWarn() {
			reportToStderr("compression queue warn", fmt.Errorf("%s depth=%d crossed warn threshold %d", p.name, depth+1, p.queueWarn()))
		}
		return true
	default:
		reportCritical("compression queue overflow on %s: depth=%d threshold crit=%d", p.name, depth, p.queueCrit())
		return false
	}
}

// AdaptiveResult is submit_adaptive's return tuple (spec §4.7).
type AdaptiveResult struct {
	ResultFile  string
	NewThreshold int64
	Resized     bool
	Blocked     bool
}

// SubmitAdaptive implements spec §4.7's submit_adaptive state machine: a
// fast path when the queue has headroom, and a saturation branch that
// blocks, doubles the threshold, and compresses synchronously when it
// does not.
func (p *CompressionPipeline) SubmitAdaptive(path string, currentThreshold int64, compressionTimeout time.Duration) AdaptiveResult {
	if int(p.depth.Load()) < p.queueCrit() {
		if ok := p.trySubmit(path, nil); ok {
			// The compressed file arrives asynchronously; callers that
			// need the result path register their own callback.
			return AdaptiveResult{ResultFile: path, NewThreshold: currentThreshold, Resized: false, Blocked: false}
		}
		// Fall back to synchronous compression inline.
		compressed, err := p.fn(path)
		if err != nil {
			p.failed.Add(1)
			return AdaptiveResult{ResultFile: path, NewThreshold: currentThreshold, Resized: false, Blocked: false}
		}
		p.completed.Add(1)
		return AdaptiveResult{ResultFile: compressed, NewThreshold: currentThreshold, Resized: false, Blocked: false}
	}

	return p.saturationBranch(path, currentThreshold, compressionTimeout)
}

func (p *CompressionPipeline) saturationBranch(path string, currentThreshold int64, compressionTimeout time.Duration) AdaptiveResult {
	p.blockedInvocations.Add(1)
	reportCritical("compression pipeline saturated on %s: depth=%d threshold=%d", p.name, p.depth.Load(), currentThreshold)

	if compressionTimeout <= 0 {
		compressionTimeout = 30 * time.Second
	}
	hardTimeout := 2 * compressionTimeout
	deadline := time.Now().Add(hardTimeout)
	for int(p.depth.Load()) >= p.queueCrit() {
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	newThreshold := currentThreshold * 2
	p.adaptiveResizes.Add(1)
	reportToStderr("adaptive increase", fmt.Errorf("%s: %d -> %d", p.name, currentThreshold, newThreshold))

	compressed, err := p.fn(path)
	if err != nil {
		p.failed.Add(1)
		return AdaptiveResult{ResultFile: path, NewThreshold: newThreshold, Resized: true, Blocked: true}
	}
	p.completed.Add(1)
	return AdaptiveResult{ResultFile: compressed, NewThreshold: newThreshold, Resized: true, Blocked: true}
}

// Stats returns a relaxed-ordering snapshot of pipeline counters.
func (p *CompressionPipeline) Stats() CompressionStats {
	return CompressionStats{
		Completed:          p.completed.Load(),
		Failed:             p.failed.Load(),
		BlockedInvocations: p.blockedInvocations.Load(),
		AdaptiveResizes:    p.adaptiveResizes.Load(),
		Depth:              p.depth.Load(),
	}
}

// Shutdown stops accepting submissions, waits up to timeout for in-flight
// tasks to drain, then force-cancels remaining workers. Queued-but-not-
// started tasks are abandoned with a false callback (spec §4.7
// "Shutdown").
func (p *CompressionPipeline) Shutdown(timeout time.Duration) {
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		close(p.queue)

		drained := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(drained)
		}()

		select {
		case <-drained:
		case <-time.After(timeout):
			p.cancel()
		}

		for task := range p.queue {
			if task.callback != nil {
				task.callback("", false)
			}
		}
	})
}
