// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pelite

import "github.com/pipizhuzhu/pelite/scan"

// Scanner adapts this View to the scan package's Image interface, so a
// signature Pattern can be matched against the image's executable sections.
func (v *View) Scanner() scan.Image { return scanImage{v: v} }

// scanImage is the unexported adapter type; callers only ever see it through
// the scan.Image interface via Scanner().
type scanImage struct{ v *View }

func (s scanImage) Bytes() []byte { return s.v.Image() }

func (s scanImage) Sections() []scan.SectionInfo {
	secs := s.v.SectionHeaders()
	out := make([]scan.SectionInfo, len(secs))
	for i, sec := range secs {
		out[i] = scan.SectionInfo{
			VirtualAddress: sec.Header.VirtualAddress,
			VirtualSize:    sec.Header.VirtualSize,
			Executable:     sec.Header.Characteristics&ImageScnMemExecute != 0,
		}
	}
	return out
}

func (s scanImage) RVAToOffset(rva uint32) (uint32, bool) {
	off, err := s.v.RVAToFileOffset(rva)
	if err != nil {
		return 0, false
	}
	return off, true
}

func (s scanImage) VAToRVA(va uint64) (uint32, bool) {
	rva, err := s.v.VAToRVA(va)
	if err != nil {
		return 0, false
	}
	return rva, true
}

// FindsCode returns the first RVA (in ascending section order) at which pat
// matches this image's executable sections, and the save slots captured
// there.
func (v *View) FindsCode(pat scan.Pattern) (scan.Match, bool) {
	return scan.FindsCode(v.Scanner(), pat)
}

// MatchesCode returns a lazy iterator over every RVA where pat matches this
// image's executable sections.
func (v *View) MatchesCode(pat scan.Pattern) *scan.Iterator {
	return scan.MatchesCode(v.Scanner(), pat)
}
