// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pelite

// IATEntry represents an entry inside the IAT.
type IATEntry struct {
	Index   uint32      `json:"index"`
	Rva     uint32      `json:"rva"`
	Value   interface{} `json:"value,omitempty"`
	Meaning string      `json:"meaning"`
}

// IATIterator walks the import address table slot by slot without
// allocating the whole directory up front. Until a file is bound, an IAT
// slot mirrors its import lookup table counterpart; after binding, the
// loader overwrites each slot with the resolved symbol's actual address.
// Keeping the table in its own directory (rather than inline in the import
// descriptors) lets the loader mark just those pages copy-on-write instead
// of the whole import table.
type IATIterator struct {
	pe       *File
	view     *View
	rva      uint32
	end      uint32
	index    uint32
	slotSize uint32
}

// iatIterator builds an IATIterator over [rva, rva+size).
func (pe *File) iatIterator(rva, size uint32) *IATIterator {
	slotSize := uint32(4)
	if pe.Is64 {
		slotSize = 8
	}
	return &IATIterator{pe: pe, view: pe.View(), rva: rva, end: rva + size, slotSize: slotSize}
}

// Next returns the next IAT slot, or ok=false once the directory is
// exhausted or a read fails.
func (it *IATIterator) Next() (entry IATEntry, ok bool) {
	if it.rva >= it.end {
		return IATEntry{}, false
	}

	entry.Index = it.index
	entry.Rva = it.rva

	var err error
	if it.pe.Is64 {
		entry.Value, err = Derva[uint64](it.view, it.rva)
	} else {
		entry.Value, err = Derva[uint32](it.view, it.rva)
	}
	if err != nil {
		return IATEntry{}, false
	}

	nextRva := it.rva + it.slotSize
	if imp, i := it.pe.GetImportEntryInfoByRVA(nextRva); len(imp.Functions) != 0 {
		entry.Meaning = imp.Name + "!" + imp.Functions[i].Name
	}

	it.rva = nextRva
	it.index++
	return entry, true
}

// parseIATDirectory drains an IATIterator into pe.IAT. The structure and
// content of the import address table are identical to those of the import
// lookup table until the file is bound.
func (pe *File) parseIATDirectory(rva, size uint32) error {
	it := pe.iatIterator(rva, size)
	var entries []IATEntry
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		entries = append(entries, e)
	}

	pe.IAT = entries
	pe.HasIAT = true
	return nil
}
