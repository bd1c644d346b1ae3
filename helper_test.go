// Copyright 2021 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pelite

import (
	"testing"

	"github.com/pipizhuzhu/pelite/testutil"
)

func buildClassifiedImage(t *testing.T, characteristics uint16, imports []string) *File {
	t.Helper()

	b := testutil.New64()
	b.Characteristics = characteristics

	if len(imports) == 0 {
		data := b.Build()
		file, err := NewBytes(data, nil)
		if err != nil {
			t.Fatalf("NewBytes failed: %v", err)
		}
		if err := file.Parse(); err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		return file
	}

	const sectionVA = 0x3000
	raw := make([]byte, 0x400)
	dllNameOff := uint32(0x100)
	iltOff := uint32(0x110)

	dllNameRVA := uint32(sectionVA) + dllNameOff
	iltRVA := uint32(sectionVA) + iltOff

	testutil.CString(raw, dllNameOff, imports[0])
	testutil.PutUint64At(raw, iltOff, imageOrdinalFlag64|1)
	testutil.PutUint64At(raw, iltOff+8, 0)

	testutil.PutUint32At(raw, 0, iltRVA)      // OriginalFirstThunk
	testutil.PutUint32At(raw, 12, dllNameRVA) // Name
	testutil.PutUint32At(raw, 16, iltRVA)     // FirstThunk

	b.AddSection(testutil.Section{
		Name: ".idata", VA: sectionVA, VSize: 0x400, RawOffset: 0x400,
		Raw: raw, Characteristics: ImageScnMemRead,
	})
	b.SetDataDirectory(int(ImageDirectoryEntryImport), sectionVA, 0x200)

	file, err := NewBytes(b.Build(), nil)
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	if err := file.Parse(); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return file
}

func TestIsEXE(t *testing.T) {
	file := buildClassifiedImage(t, ImageFileExecutableImage, nil)
	if !file.IsEXE() {
		t.Fatalf("IsEXE() = false, want true")
	}
	if file.IsDLL() {
		t.Fatalf("IsDLL() = true, want false")
	}
}

func TestIsDLL(t *testing.T) {
	file := buildClassifiedImage(t, ImageFileExecutableImage|ImageFileDLL, nil)
	if !file.IsDLL() {
		t.Fatalf("IsDLL() = false, want true")
	}
	if file.IsEXE() {
		t.Fatalf("IsEXE() = true, want false")
	}
}

func TestIsDriver(t *testing.T) {
	file := buildClassifiedImage(t, ImageFileExecutableImage, []string{"ntoskrnl.exe"})
	if !file.IsDriver() {
		t.Fatalf("IsDriver() = false, want true")
	}
	if file.IsEXE() {
		t.Fatalf("IsEXE() = true, want false, a driver is not a plain executable")
	}
}
