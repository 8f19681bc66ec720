//go:build windows

// mmap_windows.go: windows memory-map primitives backing MMapSink
//
// Copyright (c) 2025 emberlog
// SPDX-License-Identifier: MPL-2.0
//
// Grounded on golang.org/x/sys/windows, mirroring
// Data-Corruption-stdx/xlog/rlog's rotate_lock_windows.go use of
// CreateFileMapping/MapViewOfFile-style APIs for its unix/windows split.

package ember

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

type mmapRegion struct {
	handle windows.Handle
	addr   uintptr
	data   []byte
}

func mmapOpenRegion(f *os.File, size int64) (*mmapRegion, error) {
	if err := f.Truncate(size); err != nil {
		return nil, err
	}
	sizeHi := uint32(size >> 32)
	sizeLo := uint32(size & 0xFFFFFFFF)
	h, err := windows.CreateFileMapping(windows.Handle(f.Fd()), nil, windows.PAGE_READWRITE, sizeHi, sizeLo, nil)
	if err != nil {
		return nil, fmt.Errorf("CreateFileMapping: %w", err)
	}
	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(h)
		return nil, fmt.Errorf("MapViewOfFile: %w", err)
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size))
	return &mmapRegion{handle: h, addr: addr, data: data}, nil
}

func (m *mmapRegion) bytes() []byte { return m.data }

func (m *mmapRegion) sync() error {
	if m.addr == 0 {
		return nil
	}
	return windows.FlushViewOfFile(m.addr, 0)
}

func (m *mmapRegion) unmap() error {
	if m.addr == 0 {
		return nil
	}
	err := windows.UnmapViewOfFile(m.addr)
	windows.CloseHandle(m.handle)
	m.addr = 0
	m.data = nil
	return err
}
