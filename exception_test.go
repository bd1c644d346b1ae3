// Copyright 2021 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pelite

import (
	"reflect"
	"testing"

	"github.com/pipizhuzhu/pelite/testutil"
)

func TestParseExceptionDirectory(t *testing.T) {
	const pdataVA = 0x9000

	raw := make([]byte, 0x1010)

	// ImageRuntimeFunctionEntry at offset 0, pointing its UnwindInfoAddress
	// at the xdata payload laid out later in the same section.
	testutil.PutUint32At(raw, 0, 0x1010) // BeginAddress
	testutil.PutUint32At(raw, 4, 0x1053) // EndAddress
	testutil.PutUint32At(raw, 8, pdataVA+0x1000)

	// UnwindInfo dword: Version=1, Flags=0, SizeOfProlog=7, CountOfCodes=1,
	// FrameRegister=0, FrameOffset=0.
	var v uint32
	v |= 1                // Version
	v |= 0 << 3            // Flags
	v |= 7 << 8            // SizeOfProlog
	v |= 1 << 16           // CountOfCodes
	v |= 0 << 24           // FrameRegister
	testutil.PutUint32At(raw, 0x1000, v)

	// One unwind code: CodeOffset=0x07, UnwindOp=UwOpAllocSmall(2), OpInfo=8
	// decodes to Operand "Size=72" (OpInfo*8+8).
	var uc uint16
	uc |= 0x07
	uc |= 2 << 8
	uc |= 8 << 12
	testutil.PutUint16At(raw, 0x1004, uc)

	b := testutil.New64()
	b.AddSection(testutil.Section{
		Name: ".pdata", VA: pdataVA, VSize: uint32(len(raw)), RawOffset: 0x400,
		Raw: raw, Characteristics: ImageScnMemRead,
	})
	b.SetDataDirectory(int(ImageDirectoryEntryException), pdataVA, 12)

	file, err := NewBytes(b.Build(), &Options{Fast: true})
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	if err := file.Parse(); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if err := file.parseExceptionDirectory(pdataVA, 12); err != nil {
		t.Fatalf("parseExceptionDirectory failed: %v", err)
	}

	if len(file.Exceptions) != 1 {
		t.Fatalf("len(Exceptions) = %d, want 1", len(file.Exceptions))
	}

	wantFunc := ImageRuntimeFunctionEntry{
		BeginAddress:      0x1010,
		EndAddress:        0x1053,
		UnwindInfoAddress: pdataVA + 0x1000,
	}
	if got := file.Exceptions[0].RuntimeFunction; got != wantFunc {
		t.Errorf("RuntimeFunction = %+v, want %+v", got, wantFunc)
	}

	wantUnwind := UnwindInfo{
		Version:       0x1,
		Flags:         0x0,
		SizeOfProlog:  0x7,
		CountOfCodes:  0x1,
		FrameRegister: 0x0,
		FrameOffset:   0x0,
		UnwindCodes: []UnwindCode{
			{
				CodeOffset:  0x07,
				UnwindOp:    0x2,
				OpInfo:      0x8,
				Operand:     "Size=72",
				FrameOffset: 0x0,
			},
		},
	}
	got := file.Exceptions[0].UnwindInfo
	if !reflect.DeepEqual(got, wantUnwind) {
		t.Errorf("UnwindInfo = %+v, want %+v", got, wantUnwind)
	}
}
