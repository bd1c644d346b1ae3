// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pelite

import (
	"testing"

	"github.com/pipizhuzhu/pelite/testutil"
)

// FuzzParse feeds arbitrary bytes through the full header and directory
// parse path. No PE directory parser may panic on malformed input; errors
// are the expected outcome for most seeds.
func FuzzParse(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte("MZ"))

	b := testutil.New64()
	b.AddSection(testutil.Section{
		Name: ".text", VA: 0x1000, VSize: 0x200, RawOffset: 0x400,
		Raw: make([]byte, 0x200), Characteristics: ImageScnMemExecute | ImageScnMemRead,
	})
	f.Add(b.Build())

	f.Fuzz(func(t *testing.T, data []byte) {
		file, err := NewBytes(data, &Options{SectionEntropy: true})
		if err != nil {
			return
		}
		defer file.Close()
		_ = file.Parse()
	})
}
