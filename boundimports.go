// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pelite

import (
	"encoding/binary"
)

const (
	// MaxStringLength represents the maximum length of a string to be retrieved
	// from the file. It's there to prevent loading massive amounts of data from
	// memory mapped files. Strings longer than 0x100B should be rather rare.
	MaxStringLength = uint32(0x100)
)

// ImageBoundImportDescriptor represents the IMAGE_BOUND_IMPORT_DESCRIPTOR.
type ImageBoundImportDescriptor struct {
	// TimeDateStamp is just the value from the Exports information of the DLL
	// which is being imported from.
	TimeDateStamp uint32 `json:"time_date_stamp"`
	// Offset of the DLL name counted from the beginning of the BOUND_IMPORT table.
	OffsetModuleName uint16 `json:"offset_module_name"`
	// Number of forwards,
	NumberOfModuleForwarderRefs uint16 `json:"number_of_module_forwarder_refs"`
	// Array of zero or more IMAGE_BOUND_FORWARDER_REF follows.
}

// ImageBoundForwardedRef represents the IMAGE_BOUND_FORWARDER_REF.
type ImageBoundForwardedRef struct {
	TimeDateStamp    uint32 `json:"time_date_stamp"`
	OffsetModuleName uint16 `json:"offset_module_name"`
	Reserved         uint16 `json:"reserved"`
}

// BoundImportDescriptorData represents the descriptor in addition to forwarded refs.
type BoundImportDescriptorData struct {
	Struct        ImageBoundImportDescriptor `json:"struct"`
	Name          string                     `json:"name"`
	ForwardedRefs []BoundForwardedRefData    `json:"forwarded_refs"`
}

// BoundForwardedRefData represents the struct in addition to the dll name.
type BoundForwardedRefData struct {
	Struct ImageBoundForwardedRef `json:"struct"`
	Name   string                 `json:"name"`
}

// derefBoundImportName reads the NUL-terminated DLL name at the given file
// offset, capped at MaxStringLength bytes to guard against memory-mapped
// files presenting an unterminated run.
func derefBoundImportName(view *View, offset uint32) (string, error) {
	buf, err := view.sliceAt(offset, MaxStringLength)
	if err != nil {
		if k, _ := ErrKind(err); k == KindBounds {
			// Tail of the image is shorter than MaxStringLength; take what's left.
			img := view.Image()
			if offset >= uint32(len(img)) {
				return "", errOf(KindBounds, "deref_bound_import_name", offset, nil)
			}
			buf = img[offset:]
		} else {
			return "", err
		}
	}
	end := 0
	for end < len(buf) && buf[end] != 0 {
		end++
	}
	return string(buf[:end]), nil
}

// parseBoundImportDirectory reads an array of bound import descriptors,
// each describing a DLL this image was bound against at build time, plus
// the time stamps of those bindings. If the bindings are still current, the
// loader uses them as a shortcut; otherwise it falls back to resolving
// imports through the regular Import Address Table. The directory's `rva`
// parameter is, unusually for this format, already a file offset rather
// than an RVA, so every read below goes through DervaOffset rather than
// Derva.
func (pe *File) parseBoundImportDirectory(rva, size uint32) error {
	view := pe.View()
	var sectionsAfterOffset []uint32
	var safetyBoundary uint32
	var start = rva

	for {
		bndDesc, err := DervaOffset[ImageBoundImportDescriptor](view, rva)
		// If the offset is invalid all would blow up. Some EXEs seem to be
		// specially nasty and have an invalid one.
		if err != nil {
			return err
		}

		// If the structure is all zeros, we reached the end of the list.
		if bndDesc == (ImageBoundImportDescriptor{}) {
			break
		}

		bndDescSize := uint32(binary.Size(bndDesc))
		rva += bndDescSize
		sectionsAfterOffset = nil

		fileOffset := pe.GetOffsetFromRva(rva)
		section := pe.getSectionByRva(rva)
		if section == nil {
			safetyBoundary = pe.size - fileOffset
			for _, section := range pe.Sections {
				if section.Header.PointerToRawData > fileOffset {
					sectionsAfterOffset = append(
						sectionsAfterOffset, section.Header.PointerToRawData)
				}
			}
			if len(sectionsAfterOffset) > 0 {
				// Find the first section starting at a later offset than that
				// specified by 'rva'
				firstSectionAfterOffset := Min(sectionsAfterOffset)
				section = pe.getSectionByOffset(firstSectionAfterOffset)
				if section != nil {
					safetyBoundary = section.Header.PointerToRawData - fileOffset
				}
			}
		} else {
			sectionLen := uint32(len(section.Data(0, 0, pe)))
			safetyBoundary = (section.Header.PointerToRawData + sectionLen) - fileOffset
		}

		if section == nil {
			pe.logger.Warnf("offset of IMAGE_BOUND_IMPORT_DESCRIPTOR points to an invalid address: 0x%x", rva)
			return nil
		}

		bndFrwdRefSize := uint32(binary.Size(ImageBoundForwardedRef{}))
		count := min(uint32(bndDesc.NumberOfModuleForwarderRefs), safetyBoundary/bndFrwdRefSize)

		forwarderRefs := make([]BoundForwardedRefData, 0)
		for i := uint32(0); i < count; i++ {
			bndFrwdRef, err := DervaOffset[ImageBoundForwardedRef](view, rva)
			if err != nil {
				return err
			}

			rva += bndFrwdRefSize

			DllName, err := derefBoundImportName(view, start+uint32(bndFrwdRef.OffsetModuleName))
			if err != nil {
				return err
			}

			// OffsetModuleName points to a DLL name. These shouldn't be too long.
			// Anything longer than a safety length of 256 will be taken to indicate
			// a corrupt entry and abort the processing of these entries.
			if DllName != "" && (len(DllName) > 256 || !IsPrintable(DllName)) {
				break
			}

			forwarderRefs = append(forwarderRefs, BoundForwardedRefData{
				Struct: bndFrwdRef, Name: DllName})
		}

		DllName, err := derefBoundImportName(view, start+uint32(bndDesc.OffsetModuleName))
		if err != nil {
			return err
		}
		if DllName != "" && (len(DllName) > 256 || !IsPrintable(DllName)) {
			break
		}

		pe.BoundImports = append(pe.BoundImports, BoundImportDescriptorData{
			Struct:        bndDesc,
			Name:          DllName,
			ForwardedRefs: forwarderRefs})
	}

	if len(pe.BoundImports) > 0 {
		pe.HasBoundImp = true
	}
	return nil
}
