// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pelite

const (
	// AnoInvalidGlobalPtrReg is reported when the global pointer register offset is outide the image.
	AnoInvalidGlobalPtrReg = "Global pointer register offset outside of PE image"
)

// parseGlobalPtrDirectory reads the single dword RVA of the value to be
// stored in the global pointer register on IA64. Size must be zero; the
// directory is all zeros on architectures that have no concept of a global
// pointer (x86, x64).
func (pe *File) parseGlobalPtrDirectory(rva, size uint32) error {
	val, err := Derva[uint32](pe.View(), rva)
	if err != nil {
		if k, _ := ErrKind(err); k == KindBounds || k == KindNull {
			// Some images carry a directory entry whose RVA falls outside
			// the mapped sections; treat it as a benign anomaly rather than
			// a hard failure so the rest of Parse can proceed.
			pe.Anomalies = append(pe.Anomalies, AnoInvalidGlobalPtrReg)
			return nil
		}
		return err
	}

	pe.GlobalPtr = val
	pe.HasGlobalPtr = true
	return nil
}
