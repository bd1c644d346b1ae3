// Copyright 2021 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pelite

import (
	"testing"

	"github.com/pipizhuzhu/pelite/testutil"
)

func TestGetAnomalies(t *testing.T) {
	b := testutil.New64()
	data := b.Build()

	file, err := NewBytes(data, &Options{})
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	if err := file.Parse(); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if err := file.GetAnomalies(); err != nil {
		t.Fatalf("GetAnomalies failed: %v", err)
	}

	want := []string{AnoAddressOfEntryPointNull, AnoMajorSubsystemVersion}
	for _, ano := range want {
		if !stringInSlice(ano, file.Anomalies) {
			t.Errorf("anomaly %q not found in %v", ano, file.Anomalies)
		}
	}
}
