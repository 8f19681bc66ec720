// rotate_sink.go: rotating file sink with compression handoff and
// adaptive back-pressure
//
// Copyright (c) 2025 emberlog
// SPDX-License-Identifier: MPL-2.0
//
// Grounded on the teacher's rotation.go: performRotation/generateBackupName/
// closeAndRotateFile/cleanupOldFiles/compressFile/generateChecksum, all
// generalized from lethe.Logger's single-struct design into a standalone
// Sink, with cumulative-bytes-written size accounting kept as-is and the
// adaptive threshold-doubling state machine (spec §4.7) layered on top of
// the teacher's synchronous compressFile as the adaptive path's fallback.

package ember

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var canonicalBackupSuffixes = []string{".gz", ".bz2", ".xz", ".zip", ".7z", ".compressed"}

var backupTimestampRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}-\d{2}-\d{2}-\d{2}`)

// RotatingSink writes records to an active file, rotating it aside once
// the cumulative bytes written reach a threshold, optionally compressing
// and checksumming the rotated backup, and retaining at most MaxBackups
// historical files (spec §4.6).
type RotatingSink struct {
	sinkBase

	cfg  RotatingSinkConfig
	pipe *CompressionPipeline

	mu          sync.Mutex // serializes accept/rotate/close, spec §5
	file        *os.File
	bytesWritten int64
	createdAt   time.Time
	maxSize     int64 // M, mutable by the adaptive policy
	rotationSeq atomic.Uint64
}

// NewRotatingSink constructs a rotating sink. Opens lazily on the first
// Accept, matching the teacher's initFile-on-first-write discipline.
func NewRotatingSink(cfg RotatingSinkConfig, threshold Severity, f Formatter) (*RotatingSink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	path, err := validateAndSanitizePath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("rotating sink: %w", err)
	}
	cfg.Path = path
	s := &RotatingSink{
		sinkBase: newSinkBase(filepath.Base(cfg.Path), threshold, f),
		cfg:      cfg,
		maxSize:  cfg.MaxSize,
	}
	if cfg.Compress {
		pipe, err := NewCompressionPipeline(cfg.Compression, s.Name(), DefaultCompressFunc)
		if err != nil {
			return nil, err
		}
		s.pipe = pipe
	}
	return s, nil
}

// validateAndSanitizePath sanitizes the filename component of path for
// cross-platform compatibility and rejects paths exceeding OS limits,
// mirroring the teacher's construction-time path check so a bad path is a
// configuration error (spec §7 "configuration errors ... fail fast at
// construction time") rather than a write-time surprise.
func validateAndSanitizePath(path string) (string, error) {
	dir := filepath.Dir(path)
	base := SanitizeFilename(filepath.Base(path))
	clean := filepath.Join(dir, base)
	if err := ValidatePathLength(clean); err != nil {
		return "", err
	}
	return clean, nil
}

func (s *RotatingSink) ensureOpen() error {
	if s.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.Path), 0o750); err != nil {
		return fmt.Errorf("rotating sink: create directory: %w", err)
	}
	var file *os.File
	err := RetryFileOperation(func() error {
		var err error
		file, err = os.OpenFile(s.cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, GetDefaultFileMode())
		return err
	}, 3, 10*time.Millisecond)
	if err != nil {
		return fmt.Errorf("rotating sink: open %s: %w", s.cfg.Path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("rotating sink: stat %s: %w", s.cfg.Path, err)
	}
	s.file = file
	s.bytesWritten = info.Size()
	s.createdAt = cachedNow()
	return nil
}

// Accept formats and writes one record, rotating first if the write would
// cross the active threshold (spec §4.6 "Size accounting").
func (s *RotatingSink) Accept(r LogRecord) {
	if s.IsClosed() || !s.passes(r) {
		return
	}
	b := s.Formatter()(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureOpen(); err != nil {
		s.reportError("rotate accept", err)
		return
	}

	if s.bytesWritten+int64(len(b)) > s.maxSize || (s.cfg.MaxAge > 0 && cachedNow().Sub(s.createdAt) > s.cfg.MaxAge) {
		if err := s.rotateLocked(); err != nil {
			s.reportError("rotate", err)
			return
		}
	}

	n, err := s.file.Write(b)
	if err != nil {
		s.reportError("rotate accept write", err)
		return
	}
	s.bytesWritten += int64(n)
}

// rotateLocked implements spec §4.6 steps 1-5. Caller holds s.mu.
func (s *RotatingSink) rotateLocked() error {
	if s.file == nil {
		return ErrNoCurrentFile
	}

	backupName := s.generateBackupName()

	if err := RetryFileOperation(s.file.Close, 3, 10*time.Millisecond); err != nil {
		return fmt.Errorf("rotating sink: close current file: %w", err)
	}
	if err := RetryFileOperation(func() error { return os.Rename(s.cfg.Path, backupName) }, 3, 10*time.Millisecond); err != nil {
		return fmt.Errorf("rotating sink: rename to backup: %w", err)
	}

	var newFile *os.File
	err := RetryFileOperation(func() error {
		var err error
		newFile, err = os.OpenFile(s.cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, GetDefaultFileMode())
		return err
	}, 3, 10*time.Millisecond)
	if err != nil {
		return fmt.Errorf("rotating sink: create new active file: %w", err)
	}
	s.file = newFile
	s.bytesWritten = 0
	s.createdAt = cachedNow()
	s.rotationSeq.Add(1)

	if s.cfg.Checksum {
		go s.generateChecksum(backupName)
	}

	if s.cfg.Compress && s.pipe != nil {
		result := s.pipe.SubmitAdaptive(backupName, s.maxSize, s.cfg.Compression.DrainTimeout)
		if result.Resized {
			s.maxSize = result.NewThreshold
			if err := s.writeAdaptiveAudit(result.NewThreshold / 2, result.NewThreshold); err != nil {
				s.reportError("adaptive audit write", err)
			}
		}
	}

	go s.cleanupOldFiles()

	return nil
}

// generateBackupName follows spec §6: "<original-name>.<timestamp>". Per
// spec §4.6 step 2 and §9, two rotations landing in the same second are
// disambiguated by appending a sequence counter rather than silently
// clobbering the earlier backup (the teacher's generateBackupName has no
// such disambiguation; this is a deliberate deviation requested in the
// spec's own REDESIGN FLAGS text).
func (s *RotatingSink) generateBackupName() string {
	base := fmt.Sprintf("%s.%s", s.cfg.Path, time.Now().UTC().Format("2006-01-02-15-04-05"))
	name := base
	for seq := 1; ; seq++ {
		if _, err := os.Stat(name); os.IsNotExist(err) {
			return name
		}
		name = fmt.Sprintf("%s.%d", base, seq)
	}
}

// writeAdaptiveAudit writes the conspicuous audit block (spec §6) as the
// first bytes of the freshly opened active file, before any other record.
func (s *RotatingSink) writeAdaptiveAudit(oldMax, newMax int64) error {
	block := fmt.Sprintf(
		"*** ADAPTIVE FILE SIZE INCREASE ***\nAPPENDER: %s\nOLD MAX SIZE: %s\nNEW MAX SIZE: %s (DOUBLED DUE TO COMPRESSION OVERLOAD)\nTIMESTAMP: %s\n*** END ADAPTIVE CHANGE ***\n",
		s.Name(), humanSize(oldMax), humanSize(newMax), time.Now().UTC().Format(time.RFC3339))
	n, err := s.file.Write([]byte(block))
	if err != nil {
		return err
	}
	s.bytesWritten += int64(n)
	return nil
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.2fGB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.2fMB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.2fKB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}

// generateChecksum writes a SHA-256 sidecar alongside path, a
// best-effort convenience carried over from the teacher (spec §5
// "supplemented features"), never a correctness guarantee.
func (s *RotatingSink) generateChecksum(path string) {
	f, err := os.Open(path)
	if err != nil {
		s.reportError("checksum_missing", fmt.Errorf("file not found for checksum: %s", path))
		return
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		s.reportError("checksum_read", err)
		return
	}
	sum := hex.EncodeToString(h.Sum(nil))
	sidecar := path + ".sha256"
	if err := os.WriteFile(sidecar, []byte(fmt.Sprintf("%s  %s\n", sum, filepath.Base(path))), GetDefaultFileMode()); err != nil {
		s.reportError("checksum_write", err)
	}
}

// cleanupOldFiles implements spec §6's retention rule: enumerate backups
// by canonical suffix or the default timestamp pattern, apply age-based
// removal, then count-based removal of the oldest remainder.
func (s *RotatingSink) cleanupOldFiles() {
	base := filepath.Base(s.cfg.Path)
	dir := filepath.Dir(s.cfg.Path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	var files []fileInfo
	now := cachedNow()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		// Checksum sidecars are a supplemented feature, not a "matching
		// historical file" under spec §6 — they ride along with their
		// backup but never consume a slot of the K-retained budget.
		if strings.HasSuffix(name, ".sha256") {
			continue
		}
		if !isBackupName(name, base) {
			continue
		}
		full := filepath.Join(dir, name)
		info, err := e.Info()
		if err != nil {
			continue
		}
		if s.cfg.MaxBackupAge > 0 && now.Sub(info.ModTime()) > s.cfg.MaxBackupAge {
			s.removeBackup(full)
			continue
		}
		files = append(files, fileInfo{name: full, modTime: info.ModTime()})
	}

	if s.cfg.MaxBackups <= 0 || len(files) <= s.cfg.MaxBackups {
		return
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })
	for i := 0; i < len(files)-s.cfg.MaxBackups; i++ {
		s.removeBackup(files[i].name)
	}
}

// removeBackup deletes a retired backup file and its checksum sidecar, if
// any (the sidecar has no independent retention slot, see cleanupOldFiles).
func (s *RotatingSink) removeBackup(path string) {
	if err := os.Remove(path); err != nil {
		s.reportError("cleanup", fmt.Errorf("remove %s: %w", path, err))
	}
	if err := os.Remove(path + ".sha256"); err != nil && !os.IsNotExist(err) {
		s.reportError("cleanup_sidecar", fmt.Errorf("remove %s.sha256: %w", path, err))
	}
}

// fileInfo pairs a path with its modification time for retention sorting.
type fileInfo struct {
	name    string
	modTime time.Time
}

func isBackupName(name, base string) bool {
	if !strings.HasPrefix(name, base+".") {
		return false
	}
	rest := name[len(base)+1:]
	for _, suf := range canonicalBackupSuffixes {
		if strings.HasSuffix(rest, suf) {
			return true
		}
	}
	return backupTimestampRe.MatchString(rest) || strings.HasSuffix(rest, ".sha256")
}

// Flush syncs the active file to disk.
func (s *RotatingSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	return s.file.Sync()
}

// Close shuts down the compression pipeline (if any) and closes the active
// file, without calling Sync on it first (Flush does that). Idempotent.
func (s *RotatingSink) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pipe != nil {
		timeout := s.cfg.Compression.DrainTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		s.pipe.Shutdown(timeout)
	}
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
