// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pelite

import (
	"testing"

	"github.com/pipizhuzhu/pelite/testutil"
)

// buildResourceImage lays a single-level resource directory holding one
// numeric-ID entry that points straight at a data entry, no sub-directories.
func buildResourceImage(t *testing.T) (*File, uint32, uint32) {
	const sectionVA = 0xb000
	const rawOffset = 0x400
	const entryID = 0x0a

	raw := make([]byte, 0x200)

	// ImageResourceDirectory (root), 16 bytes.
	testutil.PutUint16At(raw, 12, 0) // NumberOfNamedEntries
	testutil.PutUint16At(raw, 14, 1) // NumberOfIDEntries

	// ImageResourceDirectoryEntry at offset 16: Name=ID, OffsetToData->data
	// entry at relative offset 0x40 (high bit clear: leaf, not a directory).
	testutil.PutUint32At(raw, 16, entryID)
	testutil.PutUint32At(raw, 20, 0x40)

	// ImageResourceDataEntry at relative offset 0x40.
	data := []byte("version-data")
	testutil.PutUint32At(raw, 0x40, sectionVA+0x100) // OffsetToData (RVA)
	testutil.PutUint32At(raw, 0x44, uint32(len(data)))
	testutil.PutUint32At(raw, 0x48, 0) // CodePage
	testutil.PutUint32At(raw, 0x4c, 0) // Reserved

	copy(raw[0x100:], data)

	b := testutil.New64()
	b.AddSection(testutil.Section{
		Name: ".rsrc", VA: sectionVA, VSize: uint32(len(raw)), RawOffset: rawOffset,
		Raw: raw, Characteristics: ImageScnMemRead,
	})
	b.SetDataDirectory(int(ImageDirectoryEntryResource), sectionVA, uint32(len(raw)))

	file, err := NewBytes(b.Build(), &Options{Fast: true})
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	if err := file.Parse(); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return file, sectionVA, uint32(len(raw))
}

func TestParseResourceDirectory(t *testing.T) {
	file, va, size := buildResourceImage(t)

	if err := file.parseResourceDirectory(va, size); err != nil {
		t.Fatalf("parseResourceDirectory failed: %v", err)
	}

	root := file.Resources
	if len(root.Entries) != 1 {
		t.Fatalf("len(Entries) = %d, want 1", len(root.Entries))
	}

	entry := root.Entries[0]
	if entry.IsResourceDir {
		t.Fatalf("IsResourceDir = true, want false")
	}
	if entry.ID != 0x0a {
		t.Errorf("ID = %#x, want 0xa", entry.ID)
	}
	if entry.Data.Struct.Size != uint32(len("version-data")) {
		t.Errorf("Data.Struct.Size = %d, want %d", entry.Data.Struct.Size, len("version-data"))
	}
}
