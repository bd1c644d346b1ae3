// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package scan

import "testing"

// fakeImage is a minimal Image whose offsets equal their RVAs, enough to
// drive the scanner without depending on the PE parser.
type fakeImage struct {
	data []byte
	secs []SectionInfo
}

func (f fakeImage) Bytes() []byte             { return f.data }
func (f fakeImage) Sections() []SectionInfo   { return f.secs }
func (f fakeImage) RVAToOffset(rva uint32) (uint32, bool) {
	if int(rva) >= len(f.data) {
		return 0, false
	}
	return rva, true
}
func (f fakeImage) VAToRVA(va uint64) (uint32, bool) { return uint32(va), true }

// TestFindsCodeCapturesRipRelativeTarget is scenario S6: a
// `mov rax, [rip+disp]` sequence (48 8B 05 10 00 00 00) captures the
// RIP-relative target RVA into save slot 0.
func TestFindsCodeCapturesRipRelativeTarget(t *testing.T) {
	data := make([]byte, 0x1200)
	copy(data[0x1100:], []byte{0x48, 0x8B, 0x05, 0x10, 0x00, 0x00, 0x00})

	img := fakeImage{
		data: data,
		secs: []SectionInfo{{VirtualAddress: 0x1000, VirtualSize: 0x200, Executable: true}},
	}

	pat := Pattern{Byte(0x48), Byte(0x8B), Skip(1), Jump4(), Save(0)}

	m, ok := FindsCode(img, pat)
	if !ok {
		t.Fatalf("FindsCode did not match")
	}
	if m.RVA != 0x1100 {
		t.Fatalf("match RVA = %#x, want 0x1100", m.RVA)
	}
	if m.Save[0] != 0x1117 {
		t.Fatalf("save[0] = %#x, want 0x1117", m.Save[0])
	}
}

// TestFindsCodeNoMatch ensures a pattern that never appears returns ok=false
// rather than panicking.
func TestFindsCodeNoMatch(t *testing.T) {
	img := fakeImage{
		data: make([]byte, 0x20),
		secs: []SectionInfo{{VirtualAddress: 0x0, VirtualSize: 0x20, Executable: true}},
	}
	pat := Pattern{Byte(0xFF), Byte(0xFF)}
	if _, ok := FindsCode(img, pat); ok {
		t.Fatalf("FindsCode matched a pattern that should not appear")
	}
}
