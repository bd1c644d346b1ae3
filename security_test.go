// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pelite

import (
	"testing"

	"github.com/pipizhuzhu/pelite/testutil"
)

// With no certificate table present, Authentihash should still hash the
// whole image (minus the checksum and cert-table-directory-entry ranges).
func TestAuthentihashNoCertificate(t *testing.T) {
	raw := make([]byte, 0x200)
	for i := range raw {
		raw[i] = byte(i)
	}

	b := testutil.New64()
	b.AddSection(testutil.Section{
		Name: ".text", VA: 0x1000, VSize: 0x200, RawOffset: 0x400,
		Raw: raw, Characteristics: ImageScnMemExecute | ImageScnMemRead,
	})

	file, err := NewBytes(b.Build(), &Options{Fast: true})
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	if err := file.Parse(); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	hash := file.Authentihash()
	if len(hash) != 32 {
		t.Fatalf("len(Authentihash()) = %d, want 32 (sha256)", len(hash))
	}
}

// A certificate table entry whose content isn't a valid PKCS7 blob should
// surface the parse error while still recording the raw bytes.
func TestParseSecurityDirectoryInvalidPKCS7(t *testing.T) {
	b := testutil.New64()
	data := b.Build()

	certOffset := uint32(len(data))
	garbage := []byte("not a valid pkcs7 signed-data blob")
	certHeader := make([]byte, 8)
	certLength := uint32(8 + len(garbage))
	testutil.PutUint32At(certHeader, 0, certLength) // Length
	testutil.PutUint16At(certHeader, 4, 0x0200)     // Revision
	testutil.PutUint16At(certHeader, 6, 0x0002)     // CertificateType (PKCS_SIGNED_DATA)

	data = append(data, certHeader...)
	data = append(data, garbage...)

	file, err := NewBytes(data, &Options{Fast: true})
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	if err := file.Parse(); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	err = file.parseSecurityDirectory(certOffset, certLength)
	if err == nil {
		t.Fatalf("parseSecurityDirectory succeeded, want a pkcs7 parse error")
	}
	if !file.HasCertificate {
		t.Errorf("HasCertificate = false, want true")
	}
	if string(file.Certificates.Raw) != string(garbage) {
		t.Errorf("Certificates.Raw = %q, want %q", file.Certificates.Raw, garbage)
	}
}
