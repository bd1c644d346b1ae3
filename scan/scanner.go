// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package scan

import "encoding/binary"

// MaxSaveSlots bounds the Save/Check slot array every match result carries.
const MaxSaveSlots = 8

// MaxCaseDepth bounds how deeply Case/Many may nest within one pattern, so
// an adversarial pattern cannot grow the matcher's call stack unbounded.
const MaxCaseDepth = 8

// SectionInfo is the minimal section-table information the scanner needs:
// enough to walk executable sections in file order without depending on
// any particular PE-parsing package.
type SectionInfo struct {
	VirtualAddress uint32
	VirtualSize    uint32
	Executable     bool
}

// Image is the capability set the scanner needs from a PE view: the raw
// bytes, the section table in on-disk order, and RVA/VA conversions. A
// pelite.View satisfies this (see pelite's Scanner method); it is defined
// here, independently, so this package has no dependency on the PE parser.
type Image interface {
	Bytes() []byte
	Sections() []SectionInfo
	RVAToOffset(rva uint32) (uint32, bool)
	VAToRVA(va uint64) (uint32, bool)
}

// Match is the result of a successful scan: the RVA the pattern matched
// at, and the save-slot array as it stood when the pattern finished.
type Match struct {
	RVA  uint32
	Save [MaxSaveSlots]uint32
}

// FindsCode returns the first RVA (in ascending section/offset order) at
// which pat matches, and the save slots captured there.
func FindsCode(img Image, pat Pattern) (Match, bool) {
	it := MatchesCode(img, pat)
	return it.Next()
}

// Iterator yields successive matches of a pattern over an Image's
// executable sections, in ascending section-table and offset order. It is
// restartable in the sense that a fresh Iterator always starts from the
// beginning; it holds no state beyond its own scan position.
type Iterator struct {
	img     Image
	pat     Pattern
	secs    []SectionInfo
	secIdx  int
	rva     uint32
	secEnd  uint32
	started bool
}

// MatchesCode returns a lazy iterator over every RVA where pat matches.
func MatchesCode(img Image, pat Pattern) *Iterator {
	return &Iterator{img: img, pat: pat, secs: img.Sections()}
}

// Next advances to, and returns, the next match. ok is false once every
// executable section has been exhausted.
func (it *Iterator) Next() (Match, bool) {
	for {
		if !it.started {
			if !it.advanceToSection() {
				return Match{}, false
			}
			it.started = true
		}

		for it.rva < it.secEnd {
			var save [MaxSaveSlots]uint32
			cursor := it.rva
			ok := matchSeq(it.img, it.pat, &save, cursor, 0)
			start := it.rva
			it.rva++
			if ok {
				return Match{RVA: start, Save: save}, true
			}
		}

		it.secIdx++
		if !it.advanceToSection() {
			return Match{}, false
		}
	}
}

// advanceToSection skips forward to the next executable section with a
// non-zero virtual size, positioning rva/secEnd there. Returns false once
// no section remains.
func (it *Iterator) advanceToSection() bool {
	for it.secIdx < len(it.secs) {
		s := it.secs[it.secIdx]
		if s.Executable && s.VirtualSize > 0 {
			it.rva = s.VirtualAddress
			it.secEnd = s.VirtualAddress + s.VirtualSize
			return true
		}
		it.secIdx++
	}
	return false
}

// matchSeq attempts every instruction in pat starting at cursor, threading
// the save-slot array and an ever-increasing cursor through. Returns
// whether the whole sequence matched; on failure save may have been
// partially written, which is fine since the caller discards it.
func matchSeq(img Image, pat Pattern, save *[MaxSaveSlots]uint32, cursor uint32, depth int) bool {
	data := img.Bytes()
	for _, instr := range pat {
		var ok bool
		cursor, ok = stepOne(img, data, instr, save, cursor, depth)
		if !ok {
			return false
		}
	}
	return true
}

func stepOne(img Image, data []byte, instr Instr, save *[MaxSaveSlots]uint32, cursor uint32, depth int) (uint32, bool) {
	switch instr.Op {
	case OpByte:
		off, ok := img.RVAToOffset(cursor)
		if !ok || int(off) >= len(data) {
			return cursor, false
		}
		if data[off] != byte(instr.Arg) {
			return cursor, false
		}
		return cursor + 1, true

	case OpSkip:
		return cursor + instr.Arg, true

	case OpJump4:
		off, ok := img.RVAToOffset(cursor)
		if !ok || !haveBytes(data, off, 4) {
			return cursor, false
		}
		rel := int32(binary.LittleEndian.Uint32(data[off : off+4]))
		next := int64(cursor) + 4 + int64(rel)
		if next < 0 || next > int64(^uint32(0)) {
			return cursor, false
		}
		return uint32(next), true

	case OpRva4:
		off, ok := img.RVAToOffset(cursor)
		if !ok || !haveBytes(data, off, 4) {
			return cursor, false
		}
		return binary.LittleEndian.Uint32(data[off : off+4]), true

	case OpPtr8:
		off, ok := img.RVAToOffset(cursor)
		if !ok || !haveBytes(data, off, 8) {
			return cursor, false
		}
		va := binary.LittleEndian.Uint64(data[off : off+8])
		rva, ok := img.VAToRVA(va)
		if !ok {
			return cursor, false
		}
		return rva, true

	case OpSave:
		if int(instr.Arg) >= MaxSaveSlots {
			return cursor, false
		}
		save[instr.Arg] = cursor
		return cursor, true

	case OpCheck:
		if int(instr.Arg) >= MaxSaveSlots {
			return cursor, false
		}
		off, ok := img.RVAToOffset(cursor)
		if !ok || !haveBytes(data, off, 4) {
			return cursor, false
		}
		cur := binary.LittleEndian.Uint32(data[off : off+4])
		if cur&instr.Mask != save[instr.Arg]&instr.Mask {
			return cursor, false
		}
		return cursor, true

	case OpAlignUp:
		if instr.Arg == 0 {
			return cursor, true
		}
		rem := cursor % instr.Arg
		if rem == 0 {
			return cursor, true
		}
		return cursor + (instr.Arg - rem), true

	case OpCase:
		if depth >= MaxCaseDepth {
			return cursor, false
		}
		for _, alt := range instr.Alts {
			attempt := *save
			next := cursor
			if matchSeqFrom(img, alt, &attempt, &next, depth+1) {
				*save = attempt
				return next, true
			}
		}
		return cursor, false

	case OpMany:
		if depth >= MaxCaseDepth || len(instr.Alts) == 0 {
			return cursor, false
		}
		attempt := *save
		next := cursor
		if !matchSeqFrom(img, instr.Alts[0], &attempt, &next, depth+1) {
			return cursor, false
		}
		*save = attempt
		return next, true

	default:
		return cursor, false
	}
}

// matchSeqFrom is matchSeq but threads the final cursor back out, used by
// Case/Many which need the post-match position rather than just a verdict.
func matchSeqFrom(img Image, pat Pattern, save *[MaxSaveSlots]uint32, cursor *uint32, depth int) bool {
	c := *cursor
	data := img.Bytes()
	for _, instr := range pat {
		var ok bool
		c, ok = stepOne(img, data, instr, save, c, depth)
		if !ok {
			return false
		}
	}
	*cursor = c
	return true
}

func haveBytes(data []byte, off uint32, n int) bool {
	return int(off)+n <= len(data)
}
