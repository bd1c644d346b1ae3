// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pelite

import (
	"testing"

	"github.com/pipizhuzhu/pelite/testutil"
)

// buildRelocImage places two relocation blocks in a .reloc section: the
// first page (0x1000) carries one DIR64 entry plus an absolute padding
// slot, the second page (0x2000) is entirely absolute padding.
func buildRelocImage(t *testing.T) *File {
	t.Helper()

	const sectionVA = 0x5000
	raw := make([]byte, 0x200)

	// Block 1: PageRva=0x1000, SizeOfBlock=12, entries=[DIR64@0x10, Absolute@0x0].
	testutil.PutUint32At(raw, 0, 0x1000)
	testutil.PutUint32At(raw, 4, 12)
	testutil.PutUint16At(raw, 8, uint16(ImageRelBasedDir64)<<12|0x10)
	testutil.PutUint16At(raw, 10, 0)

	// Block 2: PageRva=0x2000, SizeOfBlock=12, entries=[Absolute@0x0, Absolute@0x0].
	testutil.PutUint32At(raw, 12, 0x2000)
	testutil.PutUint32At(raw, 16, 12)
	testutil.PutUint16At(raw, 20, 0)
	testutil.PutUint16At(raw, 22, 0)

	b := testutil.New64()
	b.AddSection(testutil.Section{
		Name: ".reloc", VA: sectionVA, VSize: 0x200, RawOffset: 0x400,
		Raw: raw, Characteristics: ImageScnMemRead,
	})
	b.SetDataDirectory(int(ImageDirectoryEntryBaseReloc), sectionVA, 24)

	file, err := NewBytes(b.Build(), nil)
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	if err := file.Parse(); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return file
}

func TestParseRelocDirectoryData(t *testing.T) {
	file := buildRelocImage(t)

	if len(file.Relocations) != 2 {
		t.Fatalf("len(Relocations) = %d, want 2", len(file.Relocations))
	}
	if file.Relocations[0].Data.VirtualAddress != 0x1000 {
		t.Fatalf("Relocations[0].VirtualAddress = %#x, want 0x1000",
			file.Relocations[0].Data.VirtualAddress)
	}
	if len(file.Relocations[0].Entries) != 2 {
		t.Fatalf("len(Relocations[0].Entries) = %d, want 2",
			len(file.Relocations[0].Entries))
	}
}

// TestRelocationBlocksIterator is scenario S5: the flattened, lazy RVA
// iterator skips ImageRelBasedAbsolute padding entries entirely and yields
// exactly the real fixups in block order.
func TestRelocationBlocksIterator(t *testing.T) {
	file := buildRelocImage(t)

	it := file.RelocationBlocks()

	var rvas []uint32
	for {
		_, entries, ok := it.Next()
		if !ok {
			break
		}
		for _, e := range entries {
			rvas = append(rvas, e.RVA)
		}
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iteration failed: %v", err)
	}

	if len(rvas) != 1 || rvas[0] != 0x1010 {
		t.Fatalf("flattened RVAs = %#x, want [0x1010]", rvas)
	}
}
