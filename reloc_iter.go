// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pelite

// RelocFixup is a single (rva, type) pair produced by flattening a
// relocation block, as RelocBlockIterator.Next returns them.
type RelocFixup struct {
	RVA  uint32
	Type ImageBaseRelocationEntryType
}

// RelocBlockIterator walks the Base Relocation directory one block at a
// time without materializing the whole table, so a directory with
// thousands of blocks costs one allocation per block rather than one
// eager slice of everything up front.
type RelocBlockIterator struct {
	pe       *File
	rva, end uint32
	err      error
	done     bool
}

// RelocationBlocks returns a lazy iterator over the Base Relocation directory's
// blocks, reading directly from the already-located (rva, size) range.
func (pe *File) RelocationBlocks() *RelocBlockIterator {
	dir, ok := pe.View().DataDirectory(ImageDirectoryEntryBaseReloc)
	if !ok || dir.VirtualAddress == 0 {
		return &RelocBlockIterator{done: true}
	}
	return &RelocBlockIterator{pe: pe, rva: dir.VirtualAddress, end: dir.VirtualAddress + dir.Size}
}

// Err returns the error, if any, that stopped iteration early.
func (it *RelocBlockIterator) Err() error { return it.err }

// Next advances to the next block and decodes its entries. ok is false once
// the directory is exhausted or a malformed block was encountered (see Err).
func (it *RelocBlockIterator) Next() (block ImageBaseRelocation, entries []RelocFixup, ok bool) {
	if it.done || it.pe == nil || it.rva >= it.end {
		return ImageBaseRelocation{}, nil, false
	}

	relocSize := uint32(8)
	offset := it.pe.GetOffsetFromRva(it.rva)
	if err := it.pe.structUnpack(&block, offset, relocSize); err != nil {
		it.err = err
		it.done = true
		return ImageBaseRelocation{}, nil, false
	}

	if block.SizeOfBlock == 0 || block.SizeOfBlock < relocSize {
		it.err = errOf(KindInvalid, "reloc_block_iterator", it.rva, nil)
		it.done = true
		return ImageBaseRelocation{}, nil, false
	}
	if it.rva+block.SizeOfBlock > it.end {
		it.err = errOf(KindInvalid, "reloc_block_iterator", it.rva, ErrInvalidBasicRelocSizeOfBloc)
		it.done = true
		return ImageBaseRelocation{}, nil, false
	}

	entryCount := (block.SizeOfBlock - relocSize) / 2
	entryOffset := offset + relocSize
	entries = make([]RelocFixup, 0, entryCount)
	for i := uint32(0); i < entryCount; i++ {
		raw, err := it.pe.ReadUint16(entryOffset + i*2)
		if err != nil {
			it.err = err
			it.done = true
			return block, entries, len(entries) > 0
		}
		typ := ImageBaseRelocationEntryType(raw >> 12)
		if typ == ImageRelBasedAbsolute {
			continue
		}
		entries = append(entries, RelocFixup{RVA: block.VirtualAddress + uint32(raw&0x0fff), Type: typ})
	}

	it.rva += block.SizeOfBlock
	return block, entries, true
}
