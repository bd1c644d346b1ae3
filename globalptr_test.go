// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pelite

import (
	"testing"

	"github.com/pipizhuzhu/pelite/testutil"
)

func TestParseGlobalPtrDirectory(t *testing.T) {
	const sectionVA = 0xc000

	raw := make([]byte, 0x10)
	testutil.PutUint32At(raw, 0, 0x00002000)

	b := testutil.New64()
	b.AddSection(testutil.Section{
		Name: ".data", VA: sectionVA, VSize: uint32(len(raw)), RawOffset: 0x400,
		Raw: raw, Characteristics: ImageScnMemRead | ImageScnMemWrite,
	})

	file, err := NewBytes(b.Build(), &Options{Fast: true})
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	if err := file.Parse(); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if err := file.parseGlobalPtrDirectory(sectionVA, 0); err != nil {
		t.Fatalf("parseGlobalPtrDirectory failed: %v", err)
	}
	if !file.HasGlobalPtr {
		t.Fatalf("HasGlobalPtr = false, want true")
	}
	if file.GlobalPtr != 0x00002000 {
		t.Errorf("GlobalPtr = %#x, want 0x2000", file.GlobalPtr)
	}
}
