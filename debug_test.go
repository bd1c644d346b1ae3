// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pelite

import (
	"testing"

	"github.com/pipizhuzhu/pelite/testutil"
)

// buildDebugImage lays a single ImageDebugDirectory entry of type
// ImageDebugTypeCodeView at the start of a .debug section, with its
// PointerToRawData referring to a CVInfoPDB70 (RSDS) record further in
// the same section.
func buildDebugImage(t *testing.T) (*File, uint32, uint32) {
	const sectionVA = 0x7000
	const rawOffset = 0x400
	const debugEntrySize = 28

	raw := make([]byte, 0x400)

	testutil.PutUint32At(raw, 0, 0)          // Characteristics
	testutil.PutUint32At(raw, 4, 0x5f000000) // TimeDateStamp
	testutil.PutUint16At(raw, 8, 0)          // MajorVersion
	testutil.PutUint16At(raw, 10, 0)         // MinorVersion
	testutil.PutUint32At(raw, 12, uint32(ImageDebugTypeCodeView))

	pdbName := "c:\\build\\out.pdb"
	sizeOfData := uint32(4 + 16 + 4 + len(pdbName) + 1)
	pdbRelOff := uint32(0x100)
	testutil.PutUint32At(raw, 16, sizeOfData)      // SizeOfData
	testutil.PutUint32At(raw, 20, sectionVA+0x100) // AddressOfRawData
	testutil.PutUint32At(raw, 24, rawOffset+pdbRelOff) // PointerToRawData

	testutil.PutUint32At(raw, pdbRelOff, CVSignatureRSDS)
	testutil.PutUint32At(raw, pdbRelOff+4, 0x01020304) // GUID.Data1
	testutil.PutUint16At(raw, pdbRelOff+8, 0x0506)     // GUID.Data2
	testutil.PutUint16At(raw, pdbRelOff+10, 0x0708)    // GUID.Data3
	testutil.PutUint32At(raw, pdbRelOff+20, 3)         // Age
	testutil.CString(raw, pdbRelOff+24, pdbName)

	b := testutil.New64()
	b.AddSection(testutil.Section{
		Name: ".debug", VA: sectionVA, VSize: uint32(len(raw)), RawOffset: rawOffset,
		Raw: raw, Characteristics: ImageScnMemRead,
	})
	b.SetDataDirectory(int(ImageDirectoryEntryDebug), sectionVA, debugEntrySize)

	file, err := NewBytes(b.Build(), &Options{Fast: true})
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	if err := file.Parse(); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return file, sectionVA, debugEntrySize
}

func TestParseDebugDirectoryCodeView(t *testing.T) {
	file, va, size := buildDebugImage(t)

	if err := file.parseDebugDirectory(va, size); err != nil {
		t.Fatalf("parseDebugDirectory failed: %v", err)
	}

	if len(file.Debugs) != 1 {
		t.Fatalf("len(Debugs) = %d, want 1", len(file.Debugs))
	}

	entry := file.Debugs[0]
	if entry.Type != "CodeView" {
		t.Errorf("Type = %q, want CodeView", entry.Type)
	}

	pdb, ok := entry.Info.(CVInfoPDB70)
	if !ok {
		t.Fatalf("Info type = %T, want CVInfoPDB70", entry.Info)
	}
	if pdb.CVSignature != CVSignatureRSDS {
		t.Errorf("CVSignature = %#x, want %#x", pdb.CVSignature, CVSignatureRSDS)
	}
	if pdb.Age != 3 {
		t.Errorf("Age = %d, want 3", pdb.Age)
	}
	if pdb.PDBFileName != "c:\\build\\out.pdb" {
		t.Errorf("PDBFileName = %q, want c:\\build\\out.pdb", pdb.PDBFileName)
	}
}

func TestImageDebugDirectoryTypeString(t *testing.T) {
	tests := []struct {
		in  ImageDebugDirectoryType
		out string
	}{
		{ImageDebugTypeCodeView, "CodeView"},
		{ImageDebugTypePOGO, "POGO"},
	}
	for _, tt := range tests {
		t.Run(tt.out, func(t *testing.T) {
			if got := tt.in.String(); got != tt.out {
				t.Fatalf("String() = %v, want %v", got, tt.out)
			}
		})
	}
}
