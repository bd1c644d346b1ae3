// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pelite

import (
	"testing"

	"github.com/pipizhuzhu/pelite/testutil"
)

func TestParseTLSDirectory(t *testing.T) {
	const sectionVA = 0x6000
	const imageBase = 0x140000000

	raw := make([]byte, 0x400)
	callbacksOff := uint32(0x100)
	callbacksRVA := uint32(sectionVA) + callbacksOff

	testutil.PutUint64At(raw, 0, imageBase+0x7000)               // StartAddressOfRawData
	testutil.PutUint64At(raw, 8, imageBase+0x7010)                // EndAddressOfRawData
	testutil.PutUint64At(raw, 16, imageBase+0x8000)               // AddressOfIndex
	testutil.PutUint64At(raw, 24, imageBase+uint64(callbacksRVA)) // AddressOfCallBacks
	testutil.PutUint32At(raw, 32, 0)                              // SizeOfZeroFill
	testutil.PutUint32At(raw, 36, 0x00100000)                     // Characteristics

	testutil.PutUint64At(raw, callbacksOff+0, imageBase+0x9000)
	testutil.PutUint64At(raw, callbacksOff+8, imageBase+0x9010)
	testutil.PutUint64At(raw, callbacksOff+16, 0) // null terminator

	b := testutil.New64()
	b.ImageBase = imageBase
	b.SizeOfImage = 0x7000 // covers the .tls section at 0x6000
	b.AddSection(testutil.Section{
		Name: ".tls", VA: sectionVA, VSize: 0x400, RawOffset: 0x400,
		Raw: raw, Characteristics: ImageScnMemRead | ImageScnMemWrite,
	})
	b.SetDataDirectory(int(ImageDirectoryEntryTLS), sectionVA, 40)

	file, err := NewBytes(b.Build(), &Options{Fast: true})
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	if err := file.Parse(); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if err := file.parseTLSDirectory(sectionVA, 40); err != nil {
		t.Fatalf("parseTLSDirectory failed: %v", err)
	}

	dir, ok := file.TLS.Struct.(ImageTLSDirectory64)
	if !ok {
		t.Fatalf("TLS.Struct type = %T, want ImageTLSDirectory64", file.TLS.Struct)
	}
	if dir.AddressOfIndex != imageBase+0x8000 {
		t.Errorf("AddressOfIndex = %#x, want %#x", dir.AddressOfIndex, imageBase+0x8000)
	}

	callbacks, ok := file.TLS.Callbacks.([]uint64)
	if !ok {
		t.Fatalf("TLS.Callbacks type = %T, want []uint64", file.TLS.Callbacks)
	}
	want := []uint64{imageBase + 0x9000, imageBase + 0x9010}
	if len(callbacks) != len(want) || callbacks[0] != want[0] || callbacks[1] != want[1] {
		t.Errorf("Callbacks = %#x, want %#x", callbacks, want)
	}
}

func TestTLSDirectoryCharacteristics(t *testing.T) {
	tests := []struct {
		in  TLSDirectoryCharacteristicsType
		out string
	}{
		{TLSDirectoryCharacteristicsType(0x00100000), "Align 1-Byte"},
		{0xff, "?"},
	}

	for _, tt := range tests {
		t.Run(tt.out, func(t *testing.T) {
			got := tt.in.String()
			if got != tt.out {
				t.Fatalf("String() = %v, want %v", got, tt.out)
			}
		})
	}
}
