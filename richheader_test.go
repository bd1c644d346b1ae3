// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pelite

import (
	"testing"

	"github.com/pipizhuzhu/pelite/testutil"
)

// buildRichHeaderImage lays a Rich header in the gap between the DOS header
// (64 bytes) and the NT header, holding one @comp.id entry. The fields
// between the "DanS" and "Rich" markers are XOR-masked with XORKey, which is
// how the linker actually stores them on disk.
func buildRichHeaderImage(t *testing.T) []byte {
	const dansOffset = 0x80
	const key = uint32(0xdeadbeef)
	const minorCV = uint16(0x1234)
	const prodID = uint16(0x0104)
	const count = uint32(5)

	b := testutil.New64()
	b.Elfanew = 0x200
	data := b.Build()

	enc := func(v uint32) uint32 { return v ^ key }

	testutil.PutUint32At(data, dansOffset, enc(DansSignature))
	testutil.PutUint32At(data, dansOffset+4, enc(0))
	testutil.PutUint32At(data, dansOffset+8, enc(0))
	testutil.PutUint32At(data, dansOffset+12, enc(0))

	compid0 := uint32(minorCV) | uint32(prodID)<<16
	testutil.PutUint32At(data, dansOffset+16, enc(compid0))
	testutil.PutUint32At(data, dansOffset+20, enc(count))

	copy(data[dansOffset+24:dansOffset+28], []byte(RichSignature))
	testutil.PutUint32At(data, dansOffset+28, key)

	return data
}

func TestParseRichHeader(t *testing.T) {
	data := buildRichHeaderImage(t)

	file, err := NewBytes(data, &Options{Fast: true})
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	if err := file.Parse(); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if err := file.ParseRichHeader(); err != nil {
		t.Fatalf("ParseRichHeader failed: %v", err)
	}

	if !file.HasRichHdr {
		t.Fatalf("HasRichHdr = false, want true")
	}
	if file.RichHeader.DansOffset != 0x80 {
		t.Errorf("DansOffset = %#x, want 0x80", file.RichHeader.DansOffset)
	}
	if len(file.RichHeader.CompIDs) != 1 {
		t.Fatalf("len(CompIDs) = %d, want 1", len(file.RichHeader.CompIDs))
	}

	cid := file.RichHeader.CompIDs[0]
	if cid.MinorCV != 0x1234 {
		t.Errorf("MinorCV = %#x, want 0x1234", cid.MinorCV)
	}
	if cid.ProdID != 0x0104 {
		t.Errorf("ProdID = %#x, want 0x0104", cid.ProdID)
	}
	if cid.Count != 5 {
		t.Errorf("Count = %d, want 5", cid.Count)
	}
}
