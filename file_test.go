// Copyright 2021 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pelite

import (
	"testing"

	"github.com/pipizhuzhu/pelite/testutil"
)

// buildMinimalImage builds the 64-bit image described by scenario S1: one
// .text section at VA=0x1000, raw offset 0x400, raw size 0x200, whose
// virtual size (0x400) exceeds its raw size so the tail is zero-filled.
func buildMinimalImage(t *testing.T) []byte {
	t.Helper()
	b := testutil.New64()
	raw := make([]byte, 0x200)
	raw[0], raw[1], raw[2], raw[3] = 0xAA, 0xBB, 0xCC, 0xDD
	b.AddSection(testutil.Section{
		Name:            ".text",
		VA:              0x1000,
		VSize:           0x400,
		RawOffset:       0x400,
		Raw:             raw,
		Characteristics: ImageScnMemExecute | ImageScnMemRead,
	})
	return b.Build()
}

func TestNewBytesAndParse(t *testing.T) {
	data := buildMinimalImage(t)
	file, err := NewBytes(data, nil)
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	defer file.Close()

	if err := file.Parse(); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !file.Is64 {
		t.Fatalf("expected a 64-bit image")
	}
	if len(file.Sections) != 1 {
		t.Fatalf("expected 1 section, got %d", len(file.Sections))
	}
}

// TestDervaReadsRawSectionBytes is scenario S1: a typed read at the start of
// a section's raw data returns that data, and a read past the raw extent
// (but still inside the virtual extent) fails ZeroFill.
func TestDervaReadsRawSectionBytes(t *testing.T) {
	data := buildMinimalImage(t)
	file, err := NewBytes(data, nil)
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	defer file.Close()
	if err := file.Parse(); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	v := file.View()
	got, err := Derva[uint32](v, 0x1000)
	if err != nil {
		t.Fatalf("Derva at 0x1000 failed: %v", err)
	}
	if want := uint32(0xDDCCBBAA); got != want {
		t.Fatalf("Derva at 0x1000 = %#x, want %#x", got, want)
	}

	_, err = Derva[uint32](v, 0x1200)
	if err == nil {
		t.Fatalf("Derva at 0x1200 should have failed")
	}
	if kind, ok := ErrKind(err); !ok || kind != KindZeroFill {
		t.Fatalf("Derva at 0x1200 kind = %v (ok=%v), want KindZeroFill", kind, ok)
	}
}

func TestParseOnEmptyBuffer(t *testing.T) {
	_, err := NewBytes(nil, nil)
	if err != nil {
		t.Fatalf("NewBytes(nil) should not fail by itself: %v", err)
	}
	file, _ := NewBytes(nil, nil)
	if err := file.Parse(); err != ErrInvalidPESize {
		t.Fatalf("Parse on empty buffer = %v, want ErrInvalidPESize", err)
	}
}
