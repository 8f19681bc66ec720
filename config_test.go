package ember

import (
	"testing"
	"time"
)

func TestParseSize(t *testing.T) {
	cases := map[string]int64{
		"100":   100,
		"1K":    1024,
		"1KB":   1024,
		"10MB":  10 * 1024 * 1024,
		"2GB":   2 * 1024 * 1024 * 1024,
		"1TB":   1024 * 1024 * 1024 * 1024,
		"64mb":  64 * 1024 * 1024,
	}
	for in, want := range cases {
		got, err := ParseSize(in)
		if err != nil {
			t.Fatalf("ParseSize(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseSize(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseSizeInvalid(t *testing.T) {
	for _, in := range []string{"", "abc", "10XB"} {
		if _, err := ParseSize(in); err == nil {
			t.Errorf("ParseSize(%q) expected error", in)
		}
	}
}

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"24h": 24 * time.Hour,
		"7d":  7 * 24 * time.Hour,
		"1w":  7 * 24 * time.Hour,
		"1y":  365 * 24 * time.Hour,
	}
	for in, want := range cases {
		got, err := ParseDuration(in)
		if err != nil {
			t.Fatalf("ParseDuration(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseDuration(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRingConfigValidate(t *testing.T) {
	if err := (RingConfig{Capacity: 3, Policy: DropOldest}).Validate(); err == nil {
		t.Error("expected error for non-power-of-two capacity")
	}
	if err := (RingConfig{Capacity: 1024, Policy: DropOldest}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMMapSinkConfigValidate(t *testing.T) {
	if err := (MMapSinkConfig{}).Validate(); err == nil {
		t.Error("expected error for empty path")
	}
	if err := (MMapSinkConfig{Path: "x.log", InitialRegion: 1 << 40}).Validate(); err == nil {
		t.Error("expected error for region exceeding maximum")
	}
	if err := (MMapSinkConfig{Path: "x.log"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBatchSinkConfigValidate(t *testing.T) {
	if err := (BatchSinkConfig{}).Validate(); err == nil {
		t.Error("expected error for empty path")
	}
	valid := BatchSinkConfig{Path: "x.log", MaxRecords: 100, MaxBufferSize: 4096, MaxAge: time.Second}
	if err := valid.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRotatingSinkConfigValidate(t *testing.T) {
	if err := (RotatingSinkConfig{}).Validate(); err == nil {
		t.Error("expected error for empty path")
	}
	valid := RotatingSinkConfig{Path: "x.log", MaxSize: 1024}
	if err := valid.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	withBadCompression := RotatingSinkConfig{Path: "x.log", MaxSize: 1024, Compress: true, Compression: CompressionConfig{Workers: 0}}
	if err := withBadCompression.Validate(); err == nil {
		t.Error("expected error for invalid compression config")
	}
}
