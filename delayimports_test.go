// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pelite

import (
	"testing"

	"github.com/pipizhuzhu/pelite/testutil"
)

// buildDelayImportImage places a single ImageDelayImportDescriptor
// referencing user32.dll inside a .didata section, with a one-entry thunk
// table naming MessageBoxW. Attributes is non-zero so the modern (RVA, not
// VA) layout is used.
func buildDelayImportImage(t *testing.T) *File {
	t.Helper()

	const sectionVA = 0x4000
	raw := make([]byte, 0x400)

	descOff := uint32(0)
	dllNameOff := uint32(0x100)
	intOff := uint32(0x110)
	hintNameOff := uint32(0x140)

	dllNameRVA := uint32(sectionVA) + dllNameOff
	intRVA := uint32(sectionVA) + intOff
	hintNameRVA := uint32(sectionVA) + hintNameOff

	testutil.CString(raw, dllNameOff, "user32.dll")

	testutil.PutUint16At(raw, hintNameOff, 0)
	testutil.CString(raw, hintNameOff+2, "MessageBoxW")

	testutil.PutUint64At(raw, intOff+0, uint64(hintNameRVA))
	testutil.PutUint64At(raw, intOff+8, 0) // terminator

	testutil.PutUint32At(raw, descOff+0, 1)          // Attributes (non-legacy layout)
	testutil.PutUint32At(raw, descOff+4, dllNameRVA) // Name
	testutil.PutUint32At(raw, descOff+8, 0)          // ModuleHandleRVA
	testutil.PutUint32At(raw, descOff+12, intRVA)    // ImportAddressTableRVA
	testutil.PutUint32At(raw, descOff+16, intRVA)    // ImportNameTableRVA
	testutil.PutUint32At(raw, descOff+20, 0)         // BoundImportAddressTableRVA
	testutil.PutUint32At(raw, descOff+24, 0)         // UnloadInformationTableRVA
	testutil.PutUint32At(raw, descOff+28, 0)         // TimeDateStamp
	// descOff+32..+64 stays zeroed, terminating the descriptor array.

	b := testutil.New64()
	b.AddSection(testutil.Section{
		Name: ".didata", VA: sectionVA, VSize: 0x400, RawOffset: 0x400,
		Raw: raw, Characteristics: ImageScnMemRead,
	})
	b.SetDataDirectory(int(ImageDirectoryEntryDelayImport), sectionVA+descOff, 0x200)

	file, err := NewBytes(b.Build(), nil)
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	if err := file.Parse(); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return file
}

func TestDelayImportDirectory(t *testing.T) {
	file := buildDelayImportImage(t)

	if len(file.DelayImports) != 1 {
		t.Fatalf("len(DelayImports) = %d, want 1", len(file.DelayImports))
	}

	di := file.DelayImports[0]
	if di.Name != "user32.dll" {
		t.Fatalf("DelayImports[0].Name = %q, want user32.dll", di.Name)
	}
	if len(di.Functions) != 1 {
		t.Fatalf("len(Functions) = %d, want 1", len(di.Functions))
	}
	if di.Functions[0].Name != "MessageBoxW" {
		t.Fatalf("Functions[0].Name = %q, want MessageBoxW", di.Functions[0].Name)
	}
	if di.Functions[0].ByOrdinal {
		t.Fatalf("Functions[0] should be a named import")
	}
}
