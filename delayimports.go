// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pelite

import "encoding/binary"

// ImageDelayImportDescriptor represents the layout of one entry in the
// Delay Import Descriptor directory. It parallels ImageImportDescriptor but
// carries its own module-handle and bound/unload bookkeeping fields, and
// (in the legacy pre-VC7 layout, recognized by Attributes == 0) stores
// absolute VAs instead of RVAs in every address field.
type ImageDelayImportDescriptor struct {
	// Must be zero for the legacy layout. A non-zero value here means
	// every *RVA field below really is an RVA rather than a VA.
	Attributes uint32 `json:"attributes"`

	// RVA of the ASCII string naming the delay-loaded DLL.
	Name uint32 `json:"name"`

	// RVA of the HMODULE slot the loader fills in once the DLL is loaded.
	ModuleHandleRVA uint32 `json:"module_handle_rva"`

	// RVA of the delay import address table, filled in at load time.
	ImportAddressTableRVA uint32 `json:"import_address_table_rva"`

	// RVA of the delay import name table (mirrors the INT).
	ImportNameTableRVA uint32 `json:"import_name_table_rva"`

	// RVA of the bound delay import table, or 0 if not bound.
	BoundImportAddressTableRVA uint32 `json:"bound_import_address_table_rva"`

	// RVA of the unload delay import table, used to restore the IAT to
	// its unbound state, or 0 if not present.
	UnloadInformationTableRVA uint32 `json:"unload_information_table_rva"`

	// 0 until the image is bound, then the bound DLL's timestamp.
	TimeDateStamp uint32 `json:"time_date_stamp"`
}

// DelayImport represents one parsed entry in the Delay Import directory.
type DelayImport struct {
	Offset     uint32                     `json:"offset"`
	Name       string                     `json:"name"`
	Functions  []ImportFunction           `json:"functions"`
	Descriptor ImageDelayImportDescriptor `json:"descriptor"`
}

// parseDelayImportDirectory parses the Delay Import directory: a
// null-terminated array of ImageDelayImportDescriptor, each resolved
// through the same thunk-table reader the Import directory uses (the two
// share getImportTable32/64 and parseImports32/64 via an interface{}
// type-switch on the descriptor shape).
func (pe *File) parseDelayImportDirectory(rva, size uint32) (err error) {

	for {
		importDesc := ImageDelayImportDescriptor{}
		fileOffset := pe.GetOffsetFromRva(rva)
		descSize := uint32(binary.Size(importDesc))
		if err := pe.structUnpack(&importDesc, fileOffset, descSize); err != nil {
			return err
		}

		if importDesc == (ImageDelayImportDescriptor{}) {
			break
		}

		rva += descSize

		maxLen := uint32(len(pe.data)) - fileOffset
		if rva > importDesc.ImportNameTableRVA || rva > importDesc.ImportAddressTableRVA {
			if rva < importDesc.ImportNameTableRVA {
				maxLen = rva - importDesc.ImportAddressTableRVA
			} else if rva < importDesc.ImportAddressTableRVA {
				maxLen = rva - importDesc.ImportNameTableRVA
			} else {
				maxLen = Max(rva-importDesc.ImportNameTableRVA,
					rva-importDesc.ImportAddressTableRVA)
			}
		}

		var importedFunctions []ImportFunction
		if pe.Is64 {
			importedFunctions, err = pe.parseImports64(&importDesc, maxLen)
		} else {
			importedFunctions, err = pe.parseImports32(&importDesc, maxLen)
		}
		if err != nil {
			return err
		}

		dllName := pe.getStringAtRVA(importDesc.Name, maxDllLength)
		if !IsValidDosFilename(dllName) {
			dllName = "*invalid*"
			continue
		}

		pe.DelayImports = append(pe.DelayImports, DelayImport{
			Offset:     fileOffset,
			Name:       dllName,
			Functions:  importedFunctions,
			Descriptor: importDesc,
		})
	}

	if len(pe.DelayImports) > 0 {
		pe.HasDelayImp = true
	}

	return nil
}
