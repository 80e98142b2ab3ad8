package ledger

import (
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_CanonicalAndCurrentVersion(t *testing.T) {
	p := Payload{
		Type:          "something-else",
		Version:       "1.0",
		CertificateID: "C1",
		EntityType:    "company",
		EntityName:    "Acme",
		PDFHash:       "0x1",
		Timestamp:     "2026-01-02T03:04:05.000Z",
	}
	got, err := Encode(p)
	require.NoError(t, err)
	want := `{"certificateId":"C1","entityName":"Acme","entityType":"company","pdfHash":"0x1",` +
		`"timestamp":"2026-01-02T03:04:05.000Z","type":"RCV_CERTIFICATE","version":"2.0"}`
	assert.Equal(t, want, string(got))

	again, err := Encode(p)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestEncodeDecode_KeepsSnapshot(t *testing.T) {
	in := Payload{
		CertificateID: "CERT-9",
		EntityType:    "product",
		EntityName:    "Choco",
		Entity: &EntityData{
			LTONumber: "LTO-1",
			Company:   &CompanyRef{Name: "Acme", License: "LIC-1"},
		},
		Approvers: []ApproverEntry{{Wallet: "0xabc", Name: "Ana", Date: "2026-01-01"}},
	}
	raw, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(raw)
	require.NoError(t, err)
	assert.True(t, out.HasEntitySnapshot())
	assert.Equal(t, "LIC-1", out.Entity.Company.License)
	assert.Len(t, out.Approvers, 1)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr bool
		check   func(t *testing.T, p *Payload)
	}{
		{
			name: "legacy payload without version",
			data: []byte(`{"type":"RCV_CERTIFICATE","certificateId":"CERT-1","entityType":"product","entityName":"X","pdfHash":"0x1","timestamp":"t"}`),
			check: func(t *testing.T, p *Payload) {
				assert.Equal(t, VersionLegacy, p.Version)
				assert.Equal(t, 1, p.MajorVersion())
				assert.False(t, p.HasEntitySnapshot())
			},
		},
		{
			name: "entity on a 1.0 payload is ignored",
			data: []byte(`{"type":"RCV_CERTIFICATE","version":"1.0","certificateId":"C","entity":{"LTONumber":"L"},"approvers":[{"wallet":"0x1"}]}`),
			check: func(t *testing.T, p *Payload) {
				assert.Nil(t, p.Entity)
				assert.Nil(t, p.Approvers)
			},
		},
		{
			name: "missing fields get defaults",
			data: []byte(`{"type":"RCV_CERTIFICATE","version":"2.0"}`),
			check: func(t *testing.T, p *Payload) {
				assert.Equal(t, "UNKNOWN", p.CertificateID)
				assert.Equal(t, "company", p.EntityType)
				assert.Equal(t, "Unknown Entity", p.EntityName)
				assert.False(t, p.HasEntitySnapshot())
			},
		},
		{name: "empty", data: nil, wantErr: true},
		{name: "not utf-8", data: []byte{0xff, 0xfe, 0xfd}, wantErr: true},
		{name: "not json", data: []byte("hello ledger"), wantErr: true},
		{name: "json of another type", data: []byte(`{"type":"INVOICE","certificateId":"C"}`), wantErr: true},
		{name: "json array", data: []byte(`[1,2]`), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Decode(tt.data)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrPayloadDecode)
				return
			}
			require.NoError(t, err)
			tt.check(t, p)
		})
	}
}

func TestDecodeHex(t *testing.T) {
	valid := hexutil.Encode([]byte(`{"type":"RCV_CERTIFICATE","version":"2.0","certificateId":"C-7"}`))
	p, err := DecodeHex(valid)
	require.NoError(t, err)
	assert.Equal(t, "C-7", p.CertificateID)

	for _, in := range []string{"", "0x", "0xzz", "deadbeef", hexutil.Encode([]byte("plain"))} {
		_, err := DecodeHex(in)
		assert.ErrorIs(t, err, ErrPayloadDecode, in)
	}
}

func TestMajorVersion(t *testing.T) {
	for v, want := range map[string]int{"2.0": 2, "3": 3, "10.1": 10, "0.9": 1, "abc": 1, "": 1} {
		p := Payload{Version: v}
		assert.Equal(t, want, p.MajorVersion(), v)
	}
}

func TestIndexedTx_Failed(t *testing.T) {
	assert.False(t, IndexedTx{}.Failed())
	assert.True(t, IndexedTx{IsError: true}.Failed())
	assert.True(t, IndexedTx{ReceiptFailed: true}.Failed())
}
