// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pelite

import (
	"testing"

	"github.com/pipizhuzhu/pelite/testutil"
)

func TestParseDOSHeader(t *testing.T) {
	b := testutil.New64()
	b.Elfanew = 0x80
	data := b.Build()

	ops := Options{Fast: true}
	file, err := NewBytes(data, &ops)
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}

	if err := file.ParseDOSHeader(); err != nil {
		t.Fatalf("ParseDOSHeader failed: %v", err)
	}

	got := file.DOSHeader
	if got.Magic != ImageDOSSignature {
		t.Errorf("Magic = %#x, want %#x", got.Magic, ImageDOSSignature)
	}
	if got.AddressOfNewEXEHeader != 0x80 {
		t.Errorf("AddressOfNewEXEHeader = %#x, want 0x80", got.AddressOfNewEXEHeader)
	}
}
