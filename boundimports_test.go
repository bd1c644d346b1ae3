// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pelite

import (
	"testing"

	"github.com/pipizhuzhu/pelite/testutil"
)

// The Bound Import directory is addressed by file offset rather than RVA,
// so the test places its section's virtual address and raw file offset at
// the same value to keep both conventions consistent.
func TestBoundImportDirectory(t *testing.T) {
	const base = 0x400
	raw := make([]byte, 0x200)

	testutil.PutUint32At(raw, 0, 0x11111111) // TimeDateStamp
	testutil.PutUint16At(raw, 4, 0x20)       // OffsetModuleName
	testutil.PutUint16At(raw, 6, 0)          // NumberOfModuleForwarderRefs
	// relative offset 8..16 stays zero, terminating the descriptor array.

	testutil.CString(raw, 0x20, "KERNEL32.dll")

	b := testutil.New64()
	b.AddSection(testutil.Section{
		Name: ".bound", VA: base, VSize: 0x200, RawOffset: base,
		Raw: raw, Characteristics: ImageScnMemRead,
	})

	file, err := NewBytes(b.Build(), &Options{Fast: true})
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	if err := file.Parse(); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if err := file.parseBoundImportDirectory(base, 0x100); err != nil {
		t.Fatalf("parseBoundImportDirectory failed: %v", err)
	}

	if len(file.BoundImports) != 1 {
		t.Fatalf("len(BoundImports) = %d, want 1", len(file.BoundImports))
	}
	bi := file.BoundImports[0]
	if bi.Name != "KERNEL32.dll" {
		t.Fatalf("BoundImports[0].Name = %q, want KERNEL32.dll", bi.Name)
	}
	if bi.Struct.TimeDateStamp != 0x11111111 {
		t.Fatalf("TimeDateStamp = %#x, want 0x11111111", bi.Struct.TimeDateStamp)
	}
	if len(bi.ForwardedRefs) != 0 {
		t.Fatalf("len(ForwardedRefs) = %d, want 0", len(bi.ForwardedRefs))
	}
}
