// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package testutil builds minimal, synthetic PE byte buffers for tests, in
// place of the binary fixtures directory tests would otherwise need.
package testutil

import "encoding/binary"

const (
	dosHeaderSize    = 64
	ntSignatureSize  = 4
	fileHeaderSize   = 20
	optHeader64Size  = 240
	sectionHeaderSize = 40

	imageNTSignature           = 0x00004550
	imageNtOptionalHeader64Magic = 0x20b
	imageNtOptionalHeader32Magic = 0x10b
	imageFileMachineAMD64      = 0x8664
	imageFileMachineI386       = 0x14c
)

// Section describes one section to place in a synthetic image: VA/VSize are
// the virtual extents, Raw is the on-disk content (its length becomes
// SizeOfRawData unless SizeOfRawData is set explicitly).
type Section struct {
	Name            string
	VA, VSize       uint32
	RawOffset       uint32 // file offset of the raw data; 0 means "append next"
	Raw             []byte
	SizeOfRawData   uint32 // defaults to len(Raw) when zero
	Characteristics uint32
}

// Builder assembles a synthetic 64-bit PE image byte-by-byte, with just
// enough structure to drive the DOS/NT/section-header/data-directory parse
// path and the View/scan packages, without depending on any real binary.
type Builder struct {
	Elfanew         uint32
	ImageBase       uint64
	SizeOfImage     uint32
	SizeOfHeaders   uint32
	SectionAlign    uint32
	FileAlign       uint32
	Characteristics uint16 // IMAGE_FILE_HEADER.Characteristics
	Subsystem       uint16 // IMAGE_OPTIONAL_HEADER.Subsystem
	Sections        []Section
	DataDirectories [16][2]uint32 // [entry] = {rva, size}
}

// New64 returns a Builder preset with the conventional defaults used across
// these tests: e_lfanew=0x100, one 64KB-aligned image base, section/file
// alignment of 0x1000/0x200.
func New64() *Builder {
	return &Builder{
		Elfanew:         0x100,
		ImageBase:       0x140000000,
		SizeOfImage:     0x3000,
		SizeOfHeaders:   0x400,
		SectionAlign:    0x1000,
		FileAlign:       0x200,
		Characteristics: 0x0002, // IMAGE_FILE_EXECUTABLE_IMAGE
	}
}

// AddSection appends a section and returns its index.
func (b *Builder) AddSection(s Section) int {
	if s.SizeOfRawData == 0 {
		s.SizeOfRawData = uint32(len(s.Raw))
	}
	b.Sections = append(b.Sections, s)
	return len(b.Sections) - 1
}

// SetDataDirectory records the (rva, size) pair for directory entry.
func (b *Builder) SetDataDirectory(entry int, rva, size uint32) {
	b.DataDirectories[entry] = [2]uint32{rva, size}
}

// Build serializes the DOS header, NT headers, section table, and every
// section's raw bytes (placed at RawOffset, or appended back-to-back after
// the header region when RawOffset is zero) into one byte slice.
func (b *Builder) Build() []byte {
	le := binary.LittleEndian

	headerEnd := b.Elfanew + ntSignatureSize + fileHeaderSize + optHeader64Size +
		uint32(len(b.Sections))*sectionHeaderSize

	// Determine the buffer's total size: the header region, plus every
	// section's raw extent (explicit offset or appended in order).
	total := headerEnd
	nextAppend := (headerEnd + b.FileAlign - 1) / b.FileAlign * b.FileAlign
	offsets := make([]uint32, len(b.Sections))
	for i, s := range b.Sections {
		off := s.RawOffset
		if off == 0 {
			off = nextAppend
			nextAppend += ((s.SizeOfRawData + b.FileAlign - 1) / b.FileAlign) * b.FileAlign
			if s.SizeOfRawData == 0 {
				nextAppend += b.FileAlign
			}
		}
		offsets[i] = off
		if end := off + s.SizeOfRawData; end > total {
			total = end
		}
	}

	buf := make([]byte, total)

	// DOS header.
	le.PutUint16(buf[0:2], 0x5A4D) // MZ
	le.PutUint32(buf[60:64], b.Elfanew)

	// NT header.
	nt := b.Elfanew
	le.PutUint32(buf[nt:nt+4], imageNTSignature)

	fh := nt + ntSignatureSize
	le.PutUint16(buf[fh:fh+2], imageFileMachineAMD64)
	le.PutUint16(buf[fh+2:fh+4], uint16(len(b.Sections)))
	le.PutUint16(buf[fh+16:fh+18], uint16(optHeader64Size))
	le.PutUint16(buf[fh+18:fh+20], b.Characteristics)

	oh := fh + fileHeaderSize
	le.PutUint16(buf[oh:oh+2], imageNtOptionalHeader64Magic)
	le.PutUint64(buf[oh+24:oh+32], b.ImageBase)
	le.PutUint32(buf[oh+32:oh+36], b.SectionAlign)
	le.PutUint32(buf[oh+36:oh+40], b.FileAlign)
	le.PutUint32(buf[oh+56:oh+60], b.SizeOfImage)
	le.PutUint32(buf[oh+60:oh+64], b.SizeOfHeaders)
	le.PutUint16(buf[oh+68:oh+70], b.Subsystem)
	le.PutUint32(buf[oh+108:oh+112], 16)
	for i := 0; i < 16; i++ {
		entry := oh + 112 + uint32(i)*8
		le.PutUint32(buf[entry:entry+4], b.DataDirectories[i][0])
		le.PutUint32(buf[entry+4:entry+8], b.DataDirectories[i][1])
	}

	// Section table.
	secTable := oh + optHeader64Size
	for i, s := range b.Sections {
		row := secTable + uint32(i)*sectionHeaderSize
		name := make([]byte, 8)
		copy(name, s.Name)
		copy(buf[row:row+8], name)
		le.PutUint32(buf[row+8:row+12], s.VSize)
		le.PutUint32(buf[row+12:row+16], s.VA)
		le.PutUint32(buf[row+16:row+20], s.SizeOfRawData)
		le.PutUint32(buf[row+20:row+24], offsets[i])
		le.PutUint32(buf[row+36:row+40], s.Characteristics)

		copy(buf[offsets[i]:], s.Raw)
	}

	return buf
}

// PutUint32At writes v as little-endian at file offset off. Useful for
// poking additional structures (descriptors, thunks) into a Builder's raw
// section content before calling Build.
func PutUint32At(buf []byte, off uint32, v uint32) {
	binary.LittleEndian.PutUint32(buf[off:off+4], v)
}

// PutUint16At writes v as little-endian at file offset off.
func PutUint16At(buf []byte, off uint32, v uint16) {
	binary.LittleEndian.PutUint16(buf[off:off+2], v)
}

// PutUint64At writes v as little-endian at file offset off.
func PutUint64At(buf []byte, off uint32, v uint64) {
	binary.LittleEndian.PutUint64(buf[off:off+8], v)
}

// CString writes s followed by a NUL at off and returns off+len(s)+1.
func CString(buf []byte, off uint32, s string) uint32 {
	copy(buf[off:], s)
	buf[off+uint32(len(s))] = 0
	return off + uint32(len(s)) + 1
}
