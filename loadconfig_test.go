// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pelite

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/pipizhuzhu/pelite/testutil"
)

// buildLoadConfigImage lays out an ImageLoadConfigDirectory64 at the start
// of a section, with its GuardCFFunctionTable pointing at a one-entry
// Control Flow Guard function table further in the same section.
func buildLoadConfigImage(t *testing.T) (*File, uint32, uint32) {
	const sectionVA = 0x8000
	const rawOffset = 0x400
	const imageBase = 0x140000000
	const cfgTableRVA = sectionVA + 0x300
	const guardedFuncRVA = 0x1200

	cfg := ImageLoadConfigDirectory64{
		TimeDateStamp:        0x5f000000,
		SecurityCookie:       imageBase + 0x9000,
		GuardCFFunctionTable: imageBase + cfgTableRVA,
		GuardCFFunctionCount: 1,
		GuardFlags:           ImageGuardCfInstrumented | ImageGuardCfFunctionTablePresent,
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, cfg); err != nil {
		t.Fatalf("binary.Write failed: %v", err)
	}
	cfg.Size = uint32(buf.Len())
	buf.Reset()
	if err := binary.Write(&buf, binary.LittleEndian, cfg); err != nil {
		t.Fatalf("binary.Write failed: %v", err)
	}
	cfgBytes := buf.Bytes()

	raw := make([]byte, 0x400)
	copy(raw, cfgBytes)
	testutil.PutUint32At(raw, 0x300, guardedFuncRVA)

	b := testutil.New64()
	b.ImageBase = imageBase
	b.AddSection(testutil.Section{
		Name: ".rdata", VA: sectionVA, VSize: uint32(len(raw)), RawOffset: rawOffset,
		Raw: raw, Characteristics: ImageScnMemRead,
	})
	b.SetDataDirectory(int(ImageDirectoryEntryLoadConfig), sectionVA, uint32(len(cfgBytes)))

	file, err := NewBytes(b.Build(), &Options{Fast: true})
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	if err := file.Parse(); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return file, sectionVA, uint32(len(cfgBytes))
}

func TestParseLoadConfigDirectory(t *testing.T) {
	file, va, size := buildLoadConfigImage(t)

	if err := file.parseLoadConfigDirectory(va, size); err != nil {
		t.Fatalf("parseLoadConfigDirectory failed: %v", err)
	}
	if !file.HasLoadCFG {
		t.Fatalf("HasLoadCFG = false, want true")
	}

	cfg, ok := file.LoadConfig.Struct.(ImageLoadConfigDirectory64)
	if !ok {
		t.Fatalf("LoadConfig.Struct type = %T, want ImageLoadConfigDirectory64", file.LoadConfig.Struct)
	}
	if want := uint64(0x140000000 + 0x9000); cfg.SecurityCookie != want {
		t.Errorf("SecurityCookie = %#x, want %#x", cfg.SecurityCookie, want)
	}

	if len(file.LoadConfig.GFIDS) != 1 {
		t.Fatalf("len(GFIDS) = %d, want 1", len(file.LoadConfig.GFIDS))
	}
	if got := file.LoadConfig.GFIDS[0].RVA; got != 0x1200 {
		t.Errorf("GFIDS[0].RVA = %#x, want 0x1200", got)
	}
}

func TestStringifyGuardFlags(t *testing.T) {
	flags := uint32(ImageGuardCfInstrumented | ImageGuardCfFunctionTablePresent)
	got := StringifyGuardFlags(flags)
	want := map[string]bool{"Instrumented": true, "TargetMetadata": true}
	if len(got) != len(want) {
		t.Fatalf("StringifyGuardFlags(%#x) = %v, want 2 entries", flags, got)
	}
	for _, s := range got {
		if !want[s] {
			t.Errorf("unexpected flag %q in %v", s, got)
		}
	}
}
