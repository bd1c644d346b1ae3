// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pelite

import (
	"testing"

	"github.com/pipizhuzhu/pelite/testutil"
)

// buildImportImage places a single IMAGE_IMPORT_DESCRIPTOR referencing
// kernel32.dll inside a .idata section, with a two-entry thunk table: one
// named import (LoadLibraryA, hint 0) and one import by ordinal (0x8001).
// Both OriginalFirstThunk and FirstThunk point at the same table, as is
// common before an image is bound.
func buildImportImage(t *testing.T) *File {
	t.Helper()

	const sectionVA = 0x3000
	raw := make([]byte, 0x400)

	descOff := uint32(0)
	dllNameOff := uint32(0x100)
	iltOff := uint32(0x110)
	hintNameOff := uint32(0x140)

	dllNameRVA := uint32(sectionVA) + dllNameOff
	iltRVA := uint32(sectionVA) + iltOff
	hintNameRVA := uint32(sectionVA) + hintNameOff

	testutil.CString(raw, dllNameOff, "kernel32.dll")

	// Hint/Name pair for the named entry.
	testutil.PutUint16At(raw, hintNameOff, 0)
	testutil.CString(raw, hintNameOff+2, "LoadLibraryA")

	// Thunk table: entry 0 names LoadLibraryA, entry 1 imports ordinal
	// 0x8001, entry 2 is the null terminator.
	testutil.PutUint64At(raw, iltOff+0, uint64(hintNameRVA))
	testutil.PutUint64At(raw, iltOff+8, imageOrdinalFlag64|1)
	testutil.PutUint64At(raw, iltOff+16, 0)

	// IMAGE_IMPORT_DESCRIPTOR.
	testutil.PutUint32At(raw, descOff+0, iltRVA)    // OriginalFirstThunk
	testutil.PutUint32At(raw, descOff+4, 0)         // TimeDateStamp
	testutil.PutUint32At(raw, descOff+8, 0)         // ForwarderChain
	testutil.PutUint32At(raw, descOff+12, dllNameRVA) // Name
	testutil.PutUint32At(raw, descOff+16, iltRVA)   // FirstThunk
	// The descriptor array is null-terminated by the zeroed bytes that
	// follow at descOff+20.

	b := testutil.New64()
	b.AddSection(testutil.Section{
		Name: ".idata", VA: sectionVA, VSize: 0x400, RawOffset: 0x400,
		Raw: raw, Characteristics: ImageScnMemRead,
	})
	b.SetDataDirectory(int(ImageDirectoryEntryImport), sectionVA+descOff, 0x200)

	file, err := NewBytes(b.Build(), nil)
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	if err := file.Parse(); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return file
}

// TestImportDirectory is scenario S2.
func TestImportDirectory(t *testing.T) {
	file := buildImportImage(t)

	if len(file.Imports) != 1 {
		t.Fatalf("len(Imports) = %d, want 1", len(file.Imports))
	}

	imp := file.Imports[0]
	if imp.Name != "kernel32.dll" {
		t.Fatalf("Imports[0].Name = %q, want kernel32.dll", imp.Name)
	}
	if len(imp.Functions) != 2 {
		t.Fatalf("len(Functions) = %d, want 2", len(imp.Functions))
	}

	named := imp.Functions[0]
	if named.ByOrdinal {
		t.Fatalf("Functions[0] should be a named import")
	}
	if named.Name != "LoadLibraryA" {
		t.Fatalf("Functions[0].Name = %q, want LoadLibraryA", named.Name)
	}
	if named.Hint != 0 {
		t.Fatalf("Functions[0].Hint = %d, want 0", named.Hint)
	}

	byOrd := imp.Functions[1]
	if !byOrd.ByOrdinal {
		t.Fatalf("Functions[1] should be an ordinal import")
	}
	if byOrd.Ordinal != 1 {
		t.Fatalf("Functions[1].Ordinal = %d, want 1", byOrd.Ordinal)
	}
}
