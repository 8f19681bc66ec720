// mmap_sink.go: memory-mapped sink with deterministic region growth
//
// Copyright (c) 2025 emberlog
// SPDX-License-Identifier: MPL-2.0
//
// Grounded on the narrative in the specification's memory-mapped sink
// component together with the teacher's RWMutex-partitioned lock
// discipline (lethe.Logger uses atomic.Pointer swaps for its analogous
// "replace the thing concurrent writers are using" problem — the rotation
// flag and the MPSC buffer pointer); here writes take the shared side of
// an RWMutex and region growth takes the exclusive side, matching "shared
// with other writes; exclusive with remaps".

package ember

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

const defaultMMapRegionSize = 64 << 20 // 64 MiB

// MMapSink writes formatted records directly into a growing memory-mapped
// region, with deterministic expansion and a configurable sync-to-disk
// cadence.
type MMapSink struct {
	sinkBase

	cfg MMapSinkConfig

	initOnce sync.Once
	initErr  error

	mu          sync.RWMutex // shared across writers, exclusive during remap
	file        *os.File
	region      *mmapRegion
	regionStart int64
	regionSize  int64
	cursor      atomic.Int64 // reserved write position within the region

	reserveMu sync.Mutex // serializes the remaining-check + cursor reservation

	forceMu   sync.Mutex
	lastForce time.Time
}

// NewMMapSink constructs a memory-mapped sink. The underlying file is not
// opened nor the region mapped until the first Accept (spec §4.4 "On the
// first accept, the sink initializes").
func NewMMapSink(cfg MMapSinkConfig, threshold Severity, f Formatter) (*MMapSink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	path, err := validateAndSanitizePath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("mmap sink: %w", err)
	}
	cfg.Path = path
	s := &MMapSink{
		cfg:      cfg,
		sinkBase: newSinkBase(filepath.Base(cfg.Path), threshold, f),
	}
	return s, nil
}

func (s *MMapSink) ensureInit() error {
	s.initOnce.Do(func() {
		size := s.cfg.InitialRegion
		if size == 0 {
			size = defaultMMapRegionSize
		}
		if err := os.MkdirAll(filepath.Dir(s.cfg.Path), 0o755); err != nil {
			s.initErr = fmt.Errorf("mmap sink: create directory: %w", err)
			return
		}
		f, err := os.OpenFile(s.cfg.Path, os.O_CREATE|os.O_RDWR, GetDefaultFileMode())
		if err != nil {
			s.initErr = fmt.Errorf("mmap sink: open %s: %w", s.cfg.Path, err)
			return
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			s.initErr = fmt.Errorf("mmap sink: stat %s: %w", s.cfg.Path, err)
			return
		}
		start := info.Size()
		region, err := mmapOpenRegion(f, start+size)
		if err != nil {
			f.Close()
			s.initErr = fmt.Errorf("mmap sink: map region: %w", err)
			return
		}
		s.file = f
		s.region = region
		s.regionStart = start
		s.regionSize = size
		s.cursor.Store(0)
		s.lastForce = cachedNow()
	})
	return s.initErr
}

// Accept formats and writes one record into the mapped region, growing it
// first if necessary (spec §4.4 "Write path").
func (s *MMapSink) Accept(r LogRecord) {
	if s.IsClosed() || !s.passes(r) {
		return
	}
	if err := s.ensureInit(); err != nil {
		s.reportError("mmap accept", err)
		return
	}

	b := s.Formatter()(r)
	if err := s.write(b); err != nil {
		s.reportError("mmap accept", err)
	}
}

func (s *MMapSink) write(b []byte) error {
	for {
		s.mu.RLock()
		// reserveMu serializes the remaining-check against cursor.Add: two
		// RLock holders racing here would otherwise both pass the check
		// against the same remaining and together overrun the region.
		s.reserveMu.Lock()
		remaining := s.regionSize - s.cursor.Load()
		if int64(len(b)) > remaining {
			s.reserveMu.Unlock()
			s.mu.RUnlock()
			if err := s.grow(int64(len(b))); err != nil {
				return err
			}
			continue
		}
		pos := s.cursor.Add(int64(len(b))) - int64(len(b))
		s.reserveMu.Unlock()

		// The mapping always starts at absolute file offset 0 (mmap offsets
		// must be page-aligned, so remapping starting at regionStart itself
		// is not an option); the region's logical start is regionStart bytes
		// into that mapping, so writes land at regionStart+pos, not pos.
		abs := s.regionStart + pos
		copy(s.region.bytes()[abs:abs+int64(len(b))], b)
		s.mu.RUnlock()

		s.maybeForce()
		return nil
	}
}

// grow implements the region expansion formula from spec §4.4:
// S' = max(S * 3/2, used + len + 1KiB), clamped to [1MiB, 512MiB].
func (s *MMapSink) grow(incoming int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	used := s.cursor.Load()
	if s.regionSize-used >= incoming {
		return nil // a concurrent grower already made room
	}

	newSize := s.regionSize * 3 / 2
	if want := used + incoming + 1024; want > newSize {
		newSize = want
	}
	if newSize < mmapMinRegion {
		newSize = mmapMinRegion
	}
	if newSize > mmapMaxRegion {
		newSize = mmapMaxRegion
	}

	if err := s.region.sync(); err != nil {
		s.reportError("mmap grow sync", err)
	}
	if err := s.region.unmap(); err != nil {
		return fmt.Errorf("mmap sink: unmap: %w", err)
	}

	newRegion, err := mmapOpenRegion(s.file, s.regionStart+newSize)
	if err != nil {
		return fmt.Errorf("mmap sink: remap: %w", err)
	}
	s.region = newRegion
	s.regionSize = newSize
	return nil
}

func (s *MMapSink) maybeForce() {
	if s.cfg.ForceOnWrite {
		s.mu.RLock()
		if err := s.region.sync(); err != nil {
			s.reportError("mmap force", err)
		}
		s.mu.RUnlock()
		return
	}
	if s.cfg.ForceInterval <= 0 {
		return
	}
	s.forceMu.Lock()
	due := cachedNow().Sub(s.lastForce) >= s.cfg.ForceInterval
	if due {
		s.lastForce = cachedNow()
	}
	s.forceMu.Unlock()
	if !due {
		return
	}
	s.mu.RLock()
	if err := s.region.sync(); err != nil {
		s.reportError("mmap force", err)
	}
	s.mu.RUnlock()
}

// Flush forces the current mapping to disk.
func (s *MMapSink) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.region == nil {
		return nil
	}
	return s.region.sync()
}

// Close unmaps the region and closes the file. Idempotent (spec §4.4
// resource-lifetime requirement shared by every sink).
func (s *MMapSink) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.region == nil {
		return nil
	}
	if err := s.region.sync(); err != nil {
		return err
	}
	if err := s.region.unmap(); err != nil {
		return err
	}
	if s.file != nil {
		// Truncate away any unused tail of the final region so the
		// file's logical length matches what was actually written
		// (spec §8 "exactly b at the corresponding file offset").
		if err := s.file.Truncate(s.regionStart + s.cursor.Load()); err != nil {
			return err
		}
		return s.file.Close()
	}
	return nil
}
