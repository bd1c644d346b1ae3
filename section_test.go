// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pelite

import (
	"sort"
	"testing"

	"github.com/pipizhuzhu/pelite/testutil"
)

func TestParseSectionHeaders(t *testing.T) {
	raw := make([]byte, 0x200)
	for i := range raw {
		raw[i] = byte(i) // every byte value appears exactly twice, so entropy is 8
	}

	b := testutil.New64()
	b.AddSection(testutil.Section{
		Name: ".rdata", VA: 0x2000, VSize: 0x200, RawOffset: 0x400,
		Raw: raw, Characteristics: ImageScnMemRead | ImageScnCntInitializedData,
	})

	file, err := NewBytes(b.Build(), &Options{})
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	if err := file.Parse(); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(file.Sections) != 1 {
		t.Fatalf("sections count = %d, want 1", len(file.Sections))
	}
	section := file.Sections[0]

	if name := section.String(); name != ".rdata" {
		t.Errorf("section name = %q, want .rdata", name)
	}

	prettyFlags := section.PrettySectionFlags()
	sort.Strings(prettyFlags)
	want := []string{"Initialized Data", "Readable"}
	sort.Strings(want)
	if len(prettyFlags) != len(want) {
		t.Errorf("pretty flags = %v, want %v", prettyFlags, want)
	} else {
		for i := range want {
			if prettyFlags[i] != want[i] {
				t.Errorf("pretty flags = %v, want %v", prettyFlags, want)
				break
			}
		}
	}

	entropy := section.CalculateEntropy(file)
	if entropy <= 0 || entropy > 8 {
		t.Errorf("entropy = %v, want a value in (0, 8]", entropy)
	}
}
