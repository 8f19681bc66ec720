//go:build linux || darwin || freebsd || netbsd || openbsd

// mmap_unix.go: unix memory-map primitives backing MMapSink
//
// Copyright (c) 2025 emberlog
// SPDX-License-Identifier: MPL-2.0
//
// Grounded on golang.org/x/sys/unix, the platform package the teacher's
// own build (via Data-Corruption-stdx's rotate_lock_windows.go sibling)
// pulls in for the Windows half of the same concern; this file is its
// unix counterpart for mapping rather than locking.

package ember

import (
	"os"

	"golang.org/x/sys/unix"
)

type mmapRegion struct {
	data []byte
}

func mmapOpenRegion(f *os.File, size int64) (*mmapRegion, error) {
	if err := f.Truncate(size); err != nil {
		return nil, err
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return &mmapRegion{data: data}, nil
}

func (m *mmapRegion) bytes() []byte { return m.data }

func (m *mmapRegion) sync() error {
	if m.data == nil {
		return nil
	}
	return unix.Msync(m.data, unix.MS_SYNC)
}

func (m *mmapRegion) unmap() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	return err
}
