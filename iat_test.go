// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pelite

import (
	"testing"

	"github.com/pipizhuzhu/pelite/testutil"
)

func TestParseIATDirectory(t *testing.T) {
	const sectionVA = 0xd000

	raw := make([]byte, 0x20)
	testutil.PutUint64At(raw, 0, 0x140002000)
	testutil.PutUint64At(raw, 8, 0x140002010)

	b := testutil.New64()
	b.AddSection(testutil.Section{
		Name: ".idata", VA: sectionVA, VSize: uint32(len(raw)), RawOffset: 0x400,
		Raw: raw, Characteristics: ImageScnMemRead | ImageScnMemWrite,
	})

	file, err := NewBytes(b.Build(), &Options{Fast: true})
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	if err := file.Parse(); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if err := file.parseIATDirectory(sectionVA, 16); err != nil {
		t.Fatalf("parseIATDirectory failed: %v", err)
	}
	if !file.HasIAT {
		t.Fatalf("HasIAT = false, want true")
	}
	if len(file.IAT) != 2 {
		t.Fatalf("len(IAT) = %d, want 2", len(file.IAT))
	}
	if file.IAT[0].Index != 0 || file.IAT[1].Index != 1 {
		t.Errorf("IAT indices = [%d, %d], want [0, 1]", file.IAT[0].Index, file.IAT[1].Index)
	}
	if file.IAT[0].Value.(uint64) != 0x140002000 {
		t.Errorf("IAT[0].Value = %#x, want 0x140002000", file.IAT[0].Value)
	}
}
