// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pelite

import (
	"encoding/binary"
	"errors"
	"sort"
)

const maxExportNameLength = 0x200

var (
	// ErrInvalidExportDirectorySize is reported when the export directory
	// is smaller than the fixed IMAGE_EXPORT_DIRECTORY layout.
	ErrInvalidExportDirectorySize = errors.New(
		"invalid export directory size")

	// AnoExportForwarderChainInvalid is reported when a forwarder RVA does
	// not resolve to a printable "module.symbol" string.
	AnoExportForwarderChainInvalid = "export forwarder chain is invalid"
)

// ImageExportDirectory represents the IMAGE_EXPORT_DIRECTORY structure,
// the header of the Export directory.
type ImageExportDirectory struct {
	// Reserved, must be 0.
	Characteristics uint32 `json:"characteristics"`

	// The time and date the export data was created.
	TimeDateStamp uint32 `json:"time_date_stamp"`

	// The major/minor version number requested by the user.
	MajorVersion uint16 `json:"major_version"`
	MinorVersion uint16 `json:"minor_version"`

	// The RVA of the ASCII string containing this DLL's name.
	Name uint32 `json:"name"`

	// The starting ordinal number; subtracted from an ordinal value to
	// index into AddressOfFunctions.
	Base uint32 `json:"base"`

	// Number of entries in AddressOfFunctions.
	NumberOfFunctions uint32 `json:"number_of_functions"`

	// Number of entries in AddressOfNames (and AddressOfNameOrdinals).
	NumberOfNames uint32 `json:"number_of_names"`

	// RVA of the export address table, an array of NumberOfFunctions RVAs.
	AddressOfFunctions uint32 `json:"address_of_functions"`

	// RVA of the export name pointer table, an array of NumberOfNames RVAs
	// to ASCII strings, sorted so a name lookup can binary search it.
	AddressOfNames uint32 `json:"address_of_names"`

	// RVA of the export ordinal table, an array of NumberOfNames u16s, each
	// an index into AddressOfFunctions parallel to AddressOfNames.
	AddressOfNameOrdinals uint32 `json:"address_of_name_ordinals"`
}

// ExportFunction represents a single exported function, whether exported by
// name, by ordinal only, or forwarded to another module. Forwarder and
// ForwarderRVA are populated only when FunctionRVA falls inside the export
// directory's own (rva, size) range; IsForwarder reports that condition.
type ExportFunction struct {
	// Name is the exported symbol's name, or empty for an ordinal-only export.
	Name string `json:"name"`

	// Ordinal is Base + the index of this entry in AddressOfFunctions.
	Ordinal uint32 `json:"ordinal"`

	// FunctionRVA is the code or data RVA, or (when forwarded) an RVA
	// inside the export directory pointing at the forwarder string.
	FunctionRVA uint32 `json:"function_rva"`

	// NameRVA is the RVA of the name string in AddressOfNames, 0 if the
	// function is exported by ordinal only.
	NameRVA uint32 `json:"name_rva"`

	// Forwarder is the "OTHER.Symbol" or "OTHER.#Ordinal" string this
	// export redirects to, empty unless this is a forwarder.
	Forwarder string `json:"forwarder,omitempty"`

	// ForwarderRVA is FunctionRVA when this entry is a forwarder, else 0.
	ForwarderRVA uint32 `json:"forwarder_rva,omitempty"`
}

// IsForwarder reports whether this export redirects to another module.
func (f ExportFunction) IsForwarder() bool { return f.Forwarder != "" }

// Export represents the Export directory: the DLL's own name, the
// structurally-parsed header, and every exported function in
// AddressOfFunctions order (index i has ordinal Base+i).
type Export struct {
	Struct    ImageExportDirectory `json:"struct"`
	Name      string               `json:"name"`
	Functions []ExportFunction     `json:"functions"`
}

// ExportBy indexes an already-parsed Export for name and ordinal lookup.
// Name lookup binary searches the parallel (sorted) name/ordinal arrays
// the PE format requires; Symbol falls back to a linear scan when the names
// turn out not to be sorted, rather than failing outright. The fallback is
// silent: no warning or anomaly is recorded for unsorted names.
type ExportBy struct {
	export  *Export
	names   []string
	nameOrd []uint16
}

// By returns an index over exp supporting name and ordinal lookup.
func (exp *Export) By() ExportBy {
	by := ExportBy{export: exp}
	for i, f := range exp.Functions {
		if f.Name == "" {
			continue
		}
		by.names = append(by.names, f.Name)
		by.nameOrd = append(by.nameOrd, uint16(i))
	}
	return by
}

// Symbol resolves an exported function by name. Returns KindInvalid if the
// name is not exported.
func (by ExportBy) Symbol(name string) (ExportFunction, error) {
	sorted := sort.StringsAreSorted(by.names)
	if sorted {
		i := sort.SearchStrings(by.names, name)
		if i < len(by.names) && by.names[i] == name {
			return by.export.Functions[by.nameOrd[i]], nil
		}
		return ExportFunction{}, errOf(KindInvalid, "export_by_symbol", 0, nil)
	}
	for i, n := range by.names {
		if n == name {
			return by.export.Functions[by.nameOrd[i]], nil
		}
	}
	return ExportFunction{}, errOf(KindInvalid, "export_by_symbol", 0, nil)
}

// Ordinal resolves an exported function by its absolute ordinal number
// (i.e. already offset by Base). Returns KindInvalid if the ordinal does
// not fall within [Base, Base+NumberOfFunctions).
func (by ExportBy) Ordinal(ordinal uint32) (ExportFunction, error) {
	base := by.export.Struct.Base
	if ordinal < base || ordinal-base >= uint32(len(by.export.Functions)) {
		return ExportFunction{}, errOf(KindInvalid, "export_by_ordinal", 0, nil)
	}
	return by.export.Functions[ordinal-base], nil
}

// parseExportDirectory parses the Export Data Directory, de-structuring
// AddressOfFunctions/AddressOfNames/AddressOfNameOrdinals into a flat
// ExportFunction per ordinal slot.
func (pe *File) parseExportDirectory(rva, size uint32) (err error) {

	exportDir := ImageExportDirectory{}
	structSize := uint32(binary.Size(exportDir))
	fileOffset := pe.GetOffsetFromRva(rva)
	if err := pe.structUnpack(&exportDir, fileOffset, structSize); err != nil {
		return ErrInvalidExportDirectorySize
	}

	pe.Export.Struct = exportDir
	pe.Export.Name = pe.getStringAtRVA(exportDir.Name, maxExportNameLength)

	if exportDir.NumberOfFunctions == 0 || exportDir.NumberOfFunctions > 0x1000000 {
		pe.HasExport = true
		return nil
	}

	addresses, err := pe.readRVAArray(exportDir.AddressOfFunctions, exportDir.NumberOfFunctions)
	if err != nil {
		return err
	}

	functions := make([]ExportFunction, len(addresses))
	for i, addr := range addresses {
		functions[i] = ExportFunction{
			Ordinal:     exportDir.Base + uint32(i),
			FunctionRVA: addr,
		}
		if addr != 0 && addr >= rva && addr < rva+size {
			fwd := pe.getStringAtRVA(addr, maxExportNameLength)
			if fwd == "" {
				if !stringInSlice(AnoExportForwarderChainInvalid, pe.Anomalies) {
					pe.Anomalies = append(pe.Anomalies, AnoExportForwarderChainInvalid)
				}
				continue
			}
			functions[i].Forwarder = fwd
			functions[i].ForwarderRVA = addr
		}
	}

	if exportDir.NumberOfNames > 0 && exportDir.NumberOfNames <= uint32(len(functions))+0x1000000 {
		nameRVAs, err := pe.readRVAArray(exportDir.AddressOfNames, exportDir.NumberOfNames)
		if err == nil {
			ordinals, err := pe.readOrdinalArray(exportDir.AddressOfNameOrdinals, exportDir.NumberOfNames)
			if err == nil {
				for i, nameRVA := range nameRVAs {
					if int(i) >= len(ordinals) {
						break
					}
					idx := int(ordinals[i])
					if idx < 0 || idx >= len(functions) {
						continue
					}
					functions[idx].Name = pe.getStringAtRVA(nameRVA, maxExportNameLength)
					functions[idx].NameRVA = nameRVA
				}
			}
		}
	}

	pe.Export.Functions = functions
	pe.HasExport = true
	return nil
}

func (pe *File) readRVAArray(rva, count uint32) ([]uint32, error) {
	out := make([]uint32, count)
	off := pe.GetOffsetFromRva(rva)
	for i := uint32(0); i < count; i++ {
		v, err := pe.ReadUint32(off + i*4)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (pe *File) readOrdinalArray(rva, count uint32) ([]uint16, error) {
	out := make([]uint16, count)
	off := pe.GetOffsetFromRva(rva)
	for i := uint32(0); i < count; i++ {
		v, err := pe.ReadUint16(off + i*2)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
