package dns_test

import (
	"testing"

	"github.com/jroosing/hydradns/internal/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRRSIGRecord_RoundTrip(t *testing.T) {
	h := dns.NewRRHeader("example.com.", dns.ClassIN, 3600)
	rec := &dns.RRSIGRecord{
		H:           h,
		TypeCovered: dns.TypeA,
		Algorithm:   8,
		Labels:      2,
		OriginalTTL: 3600,
		Expiration:  2000000000,
		Inception:   1900000000,
		KeyTag:      12345,
		SignerName:  "example.com",
		Signature:   []byte{0xDE, 0xAD, 0xBE, 0xEF},
	}

	data, err := rec.MarshalRData()
	require.NoError(t, err)

	off := 0
	parsed, err := dns.ParseRRSIGRData(data, &off, 0, len(data))
	require.NoError(t, err)
	assert.Equal(t, dns.TypeA, parsed.TypeCovered)
	assert.Equal(t, uint8(8), parsed.Algorithm)
	assert.Equal(t, uint16(12345), parsed.KeyTag)
	assert.Equal(t, "example.com", parsed.SignerName)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, parsed.Signature)
	assert.Equal(t, dns.TypeRRSIG, parsed.Type())
}

func TestParseRRSIGRData_Truncated(t *testing.T) {
	off := 0
	_, err := dns.ParseRRSIGRData([]byte{0x00, 0x01, 0x08}, &off, 0, 3)
	assert.Error(t, err)
}
