// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pelite

import (
	"testing"

	"github.com/pipizhuzhu/pelite/testutil"
)

// buildExportImage places an IMAGE_EXPORT_DIRECTORY plus its tables inside a
// single .rdata section, wiring up either a plain symbol or a forwarder
// depending on forward.
func buildExportImage(t *testing.T, forward bool) *File {
	t.Helper()

	const sectionVA = 0x2000
	raw := make([]byte, 0x400)

	dirOff := uint32(0)
	nameOff := uint32(0x100)
	funcsOff := uint32(0x110)
	namesOff := uint32(0x120)
	ordsOff := uint32(0x130)
	fooNameOff := uint32(0x140)
	fwdStrOff := uint32(0x150)

	dirRVA := uint32(sectionVA + dirOff)
	dirSize := uint32(0x200) // covers the whole export directory's tables and strings

	testutil.CString(raw, nameOff, "MyDll")
	testutil.CString(raw, fooNameOff, "Foo")
	testutil.CString(raw, fwdStrOff, "OTHER.Bar")

	funcRVA := uint32(sectionVA + 0x200)
	if forward {
		funcRVA = dirRVA + fwdStrOff // inside the export directory's own range
	}
	testutil.PutUint32At(raw, funcsOff, funcRVA)
	testutil.PutUint32At(raw, namesOff, sectionVA+fooNameOff)
	testutil.PutUint16At(raw, ordsOff, 0)

	testutil.PutUint32At(raw, dirOff+0, 0)                  // Characteristics
	testutil.PutUint32At(raw, dirOff+4, 0)                  // TimeDateStamp
	testutil.PutUint16At(raw, dirOff+8, 0)                  // MajorVersion
	testutil.PutUint16At(raw, dirOff+10, 0)                 // MinorVersion
	testutil.PutUint32At(raw, dirOff+12, sectionVA+nameOff) // Name
	testutil.PutUint32At(raw, dirOff+16, 0)                 // Base
	testutil.PutUint32At(raw, dirOff+20, 1)                 // NumberOfFunctions
	testutil.PutUint32At(raw, dirOff+24, 1)                 // NumberOfNames
	testutil.PutUint32At(raw, dirOff+28, sectionVA+funcsOff)
	testutil.PutUint32At(raw, dirOff+32, sectionVA+namesOff)
	testutil.PutUint32At(raw, dirOff+36, sectionVA+ordsOff)

	b := testutil.New64()
	b.AddSection(testutil.Section{
		Name: ".rdata", VA: sectionVA, VSize: 0x400, RawOffset: 0x400,
		Raw: raw, Characteristics: ImageScnMemRead,
	})
	b.SetDataDirectory(int(ImageDirectoryEntryExport), dirRVA, dirSize)

	file, err := NewBytes(b.Build(), nil)
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	if err := file.Parse(); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return file
}

// TestExportSymbolLookup is scenario S3.
func TestExportSymbolLookup(t *testing.T) {
	file := buildExportImage(t, false)

	if file.Export.Name != "MyDll" {
		t.Fatalf("Export.Name = %q, want MyDll", file.Export.Name)
	}

	by := file.Export.By()
	fn, err := by.Symbol("Foo")
	if err != nil {
		t.Fatalf("Symbol(Foo) failed: %v", err)
	}
	if fn.FunctionRVA != 0x2200 {
		t.Fatalf("Symbol(Foo).FunctionRVA = %#x, want 0x2200", fn.FunctionRVA)
	}

	if _, err := by.Symbol("foo"); err == nil {
		t.Fatalf("Symbol(foo) should fail, names are case-sensitive")
	}
}

// TestExportForwarder is scenario S4.
func TestExportForwarder(t *testing.T) {
	file := buildExportImage(t, true)

	by := file.Export.By()
	fn, err := by.Symbol("Foo")
	if err != nil {
		t.Fatalf("Symbol(Foo) failed: %v", err)
	}
	if !fn.IsForwarder() {
		t.Fatalf("expected a forwarder export")
	}
	if fn.Forwarder != "OTHER.Bar" {
		t.Fatalf("Forwarder = %q, want OTHER.Bar", fn.Forwarder)
	}
}
