// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pelite

import (
	"bytes"
	"testing"

	"github.com/pipizhuzhu/pelite/testutil"
)

func TestFileNewOverlayReader(t *testing.T) {
	raw := make([]byte, 0x200)
	b := testutil.New64()
	b.AddSection(testutil.Section{
		Name: ".text", VA: 0x1000, VSize: 0x200, RawOffset: 0x400,
		Raw: raw, Characteristics: ImageScnMemExecute | ImageScnMemRead,
	})
	data := b.Build()
	overlay := []byte("trailer data appended after every section")
	data = append(data, overlay...)

	file, err := NewBytes(data, &Options{})
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	if err := file.Parse(); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if want := int64(0x400 + 0x200); file.OverlayOffset != want {
		t.Fatalf("OverlayOffset = %d, want %d", file.OverlayOffset, want)
	}
	if got := file.OverlayLength(); got != int64(len(overlay)) {
		t.Fatalf("OverlayLength() = %d, want %d", got, len(overlay))
	}

	got, err := file.Overlay()
	if err != nil {
		t.Fatalf("Overlay() failed: %v", err)
	}
	if !bytes.Equal(got, overlay) {
		t.Fatalf("Overlay() = %q, want %q", got, overlay)
	}
	if !file.HasOverlay {
		t.Fatalf("HasOverlay = false, want true")
	}
}
