// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pelite

import (
	"bytes"
	"encoding/binary"
	"unsafe"
)

// View is the bounds-checked, read-only capability set every PE image
// exposes once its headers and section table have been validated: raw
// bytes, image base, section headers, and the RVA/VA/file-offset
// conversions every directory parser is built on. It wraps a *File rather
// than replacing it, so existing directory parsers keep working directly
// against the File they already know while new code can go through the
// narrower View surface.
//
// Two concrete flavors exist, selected by Options.Kind at construction
// time: a FileKind view maps RVAs through the section table (raw and
// virtual extents differ); a ModuleKind view treats the buffer as already
// expanded to its virtual layout, so RVA and file offset coincide.
type View struct {
	pe *File
}

// View returns the bounds-checked capability set for this File.
func (pe *File) View() *View { return &View{pe: pe} }

// Image returns the whole underlying buffer. Callers must not mutate it:
// every directory view and pattern-scan result borrows from it.
func (v *View) Image() []byte { return v.pe.data }

// Kind reports whether this is a File or Module view.
func (v *View) Kind() ViewKind { return v.pe.opts.Kind }

// Is64 reports whether the image is PE32+.
func (v *View) Is64() bool { return v.pe.Is64 }

// ImageBase returns the preferred load address from the optional header.
func (v *View) ImageBase() uint64 {
	if v.pe.Is64 {
		return v.pe.NtHeader.OptionalHeader.(ImageOptionalHeader64).ImageBase
	}
	return uint64(v.pe.NtHeader.OptionalHeader.(ImageOptionalHeader32).ImageBase)
}

// SizeOfImage returns the size, in bytes, the image occupies once loaded.
func (v *View) SizeOfImage() uint32 {
	if v.pe.Is64 {
		return v.pe.NtHeader.OptionalHeader.(ImageOptionalHeader64).SizeOfImage
	}
	return v.pe.NtHeader.OptionalHeader.(ImageOptionalHeader32).SizeOfImage
}

// SizeOfHeaders returns the combined size of the DOS stub, NT headers, and
// section table, rounded up to FileAlignment.
func (v *View) SizeOfHeaders() uint32 {
	if v.pe.Is64 {
		return v.pe.NtHeader.OptionalHeader.(ImageOptionalHeader64).SizeOfHeaders
	}
	return v.pe.NtHeader.OptionalHeader.(ImageOptionalHeader32).SizeOfHeaders
}

// SectionHeaders returns the section table sorted by VirtualAddress, the
// order ParseSectionHeader leaves it in; this is not necessarily the
// on-disk order.
func (v *View) SectionHeaders() []Section { return v.pe.Sections }

// DataDirectory returns the (rva, size) pair for a directory entry. ok is
// false if the optional header carries fewer than Entry+1 directory slots.
func (v *View) DataDirectory(entry ImageDirectoryEntry) (dir DataDirectory, ok bool) {
	if entry >= ImageNumberOfDirectoryEntries {
		return DataDirectory{}, false
	}
	if v.pe.Is64 {
		oh := v.pe.NtHeader.OptionalHeader.(ImageOptionalHeader64)
		if uint32(entry) >= oh.NumberOfRvaAndSizes {
			return DataDirectory{}, false
		}
		return oh.DataDirectory[entry], true
	}
	oh := v.pe.NtHeader.OptionalHeader.(ImageOptionalHeader32)
	if uint32(entry) >= oh.NumberOfRvaAndSizes {
		return DataDirectory{}, false
	}
	return oh.DataDirectory[entry], true
}

// RVAToFileOffset converts a relative virtual address to a byte offset
// into Image(). For a FileKind view this walks the section table, adding
// (rva - section.VA) to section.PointerToRawData; header RVAs (below the
// first section) map identity. For a ModuleKind view the mapping is
// identity, since the buffer was already expanded to its virtual layout.
func (v *View) RVAToFileOffset(rva uint32) (uint32, error) {
	if rva == 0 {
		return 0, errOf(KindNull, "rva_to_file_offset", rva, nil)
	}
	if v.Kind() == ModuleKind {
		if rva >= uint32(len(v.pe.data)) {
			return 0, errOf(KindBounds, "rva_to_file_offset", rva, nil)
		}
		return rva, nil
	}
	off := v.pe.GetOffsetFromRva(rva)
	if off == ^uint32(0) {
		return 0, errOf(KindBounds, "rva_to_file_offset", rva, nil)
	}
	return off, nil
}

// VAToRVA subtracts ImageBase from va. Bounds is returned when va lies
// below the image base or beyond base+SizeOfImage; Null when va is zero.
func (v *View) VAToRVA(va uint64) (uint32, error) {
	if va == 0 {
		return 0, errOf(KindNull, "va_to_rva", 0, nil)
	}
	base := v.ImageBase()
	if va < base {
		return 0, errOf(KindBounds, "va_to_rva", 0, nil)
	}
	rva := va - base
	if rva > uint64(v.SizeOfImage()) {
		return 0, errOf(KindBounds, "va_to_rva", uint32(rva), nil)
	}
	return uint32(rva), nil
}

// sliceAt returns the n raw bytes at file offset off, bounds-checked
// against Image(). It is the single choke point every typed read in this
// file goes through.
func (v *View) sliceAt(off, n uint32) ([]byte, error) {
	data := v.pe.data
	if n == 0 {
		return nil, nil
	}
	end := off + n
	if end < off { // overflow
		return nil, errOf(KindOverflow, "slice_at", off, nil)
	}
	if end > uint32(len(data)) {
		return nil, errOf(KindBounds, "slice_at", off, nil)
	}
	return data[off:end], nil
}

// plainSize reports the packed, little-endian-on-the-wire size of T via
// binary.Size. T is expected to be plain, fixed-layout data (integers,
// arrays, and structs of the same) with no pointers or interfaces; this is
// the same restriction the teacher's structUnpack places on its target via
// encoding/binary, just expressed generically here.
func plainSize[T any]() int {
	var zero T
	return binary.Size(zero)
}

// Derva reads a single T at rva and returns a copy. Bounds is returned if
// the read would fall outside the image; Misalign if rva violates T's
// natural alignment; ZeroFill if the range straddles a section's raw/
// virtual-size boundary in a FileKind view (the tail is backed by nothing
// on disk, the loader zero-fills it at runtime).
func Derva[T any](v *View, rva uint32) (T, error) {
	var zero T
	size := plainSize[T]()
	if size <= 0 {
		return zero, errOf(KindInvalid, "derva", rva, nil)
	}
	if err := v.checkZeroFill(rva, uint32(size)); err != nil {
		return zero, err
	}
	if int(unsafe.Alignof(zero)) > 1 && rva%uint32(unsafe.Alignof(zero)) != 0 {
		return zero, errOf(KindMisalign, "derva", rva, nil)
	}
	off, err := v.RVAToFileOffset(rva)
	if err != nil {
		return zero, err
	}
	buf, err := v.sliceAt(off, uint32(size))
	if err != nil {
		return zero, err
	}
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &zero); err != nil {
		return zero, errOf(KindInvalid, "derva", rva, err)
	}
	return zero, nil
}

// DervaSlice reads n contiguous T values starting at rva.
func DervaSlice[T any](v *View, rva uint32, n int) ([]T, error) {
	if n == 0 {
		return nil, nil
	}
	elemSize := plainSize[T]()
	if elemSize <= 0 {
		return nil, errOf(KindInvalid, "derva_slice", rva, nil)
	}
	total := uint32(elemSize) * uint32(n)
	if total/uint32(elemSize) != uint32(n) {
		return nil, errOf(KindOverflow, "derva_slice", rva, nil)
	}
	if err := v.checkZeroFill(rva, total); err != nil {
		return nil, err
	}
	off, err := v.RVAToFileOffset(rva)
	if err != nil {
		return nil, err
	}
	buf, err := v.sliceAt(off, total)
	if err != nil {
		return nil, err
	}
	out := make([]T, n)
	r := bytes.NewReader(buf)
	for i := range out {
		if err := binary.Read(r, binary.LittleEndian, &out[i]); err != nil {
			return nil, errOf(KindInvalid, "derva_slice", rva, err)
		}
	}
	return out, nil
}

// checkZeroFill flags ranges that fall inside a section's virtual extent
// but beyond its raw extent on disk: SizeOfRawData < VirtualSize is the
// normal, harmless way a compiler expresses BSS, but a caller asking to
// read raw bytes there would otherwise silently receive the wrong
// section's data or garbage past end-of-file.
func (v *View) checkZeroFill(rva, n uint32) error {
	if v.Kind() == ModuleKind {
		return nil
	}
	for _, s := range v.pe.Sections {
		start := s.Header.VirtualAddress
		vEnd := start + s.Header.VirtualSize
		if rva < start || rva >= vEnd {
			continue
		}
		rawEnd := start + s.Header.SizeOfRawData
		if rva+n > rawEnd && s.Header.SizeOfRawData < s.Header.VirtualSize {
			return errOf(KindZeroFill, "derva", rva, nil)
		}
		break
	}
	return nil
}

// DervaOffset reads a single T directly at a byte offset into Image(),
// bypassing the RVA-to-file-offset section walk. A couple of directories
// (bound imports, the certificate table) carry a literal file offset in a
// field that is nominally an RVA elsewhere in the format; this is the
// bounds-checked primitive those parsers use instead of Derva.
func DervaOffset[T any](v *View, off uint32) (T, error) {
	var zero T
	size := plainSize[T]()
	if size <= 0 {
		return zero, errOf(KindInvalid, "derva_offset", off, nil)
	}
	buf, err := v.sliceAt(off, uint32(size))
	if err != nil {
		return zero, err
	}
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &zero); err != nil {
		return zero, errOf(KindInvalid, "derva_offset", off, err)
	}
	return zero, nil
}

const maxCStrLen = 16 * 1024

// DerefCStr walks bytes at rva until a NUL, a maxCStrLen cap, or the end of
// the image, whichever comes first. Invalid is returned if no NUL is found
// within the cap.
func DerefCStr(v *View, rva uint32) (string, error) {
	if rva == 0 {
		return "", errOf(KindNull, "deref_c_str", rva, nil)
	}
	off, err := v.RVAToFileOffset(rva)
	if err != nil {
		return "", err
	}
	data := v.pe.data
	if off >= uint32(len(data)) {
		return "", errOf(KindBounds, "deref_c_str", rva, nil)
	}
	limit := off + maxCStrLen
	if limit > uint32(len(data)) {
		limit = uint32(len(data))
	}
	end := off
	for end < limit && data[end] != 0 {
		end++
	}
	if end == limit && (end >= uint32(len(data)) || data[end] != 0) {
		return "", errOf(KindInvalid, "deref_c_str", rva, nil)
	}
	return string(data[off:end]), nil
}
