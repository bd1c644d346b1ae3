// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package scan

import "testing"

// FuzzFindsCode drives the scanner's opcode interpreter with arbitrary
// image bytes against a fixed representative pattern (a RIP-relative
// load, the shape exercised in scanner_test.go). The interpreter must
// never panic regardless of section layout or byte content.
func FuzzFindsCode(f *testing.F) {
	f.Add([]byte{0x48, 0x8b, 0x05, 0x10, 0x00, 0x00, 0x00})
	f.Add([]byte{})
	f.Add([]byte{0x48, 0x8b, 0x05})

	pat := Pattern{Byte(0x48), Byte(0x8b), Skip(1), Jump4(), Save(0)}

	f.Fuzz(func(t *testing.T, data []byte) {
		img := fakeImage{
			data: data,
			secs: []SectionInfo{{VirtualAddress: 0, VirtualSize: uint32(len(data)), Executable: true}},
		}
		FindsCode(img, pat)
	})
}
