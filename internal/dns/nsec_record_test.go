package dns_test

import (
	"testing"

	"github.com/jroosing/hydradns/internal/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNSECRecord_RoundTrip(t *testing.T) {
	h := dns.NewRRHeader("a.example.com.", dns.ClassIN, 3600)
	// window 0, length 1, bitmap byte covering A (bit 1) and SOA (bit 6)
	rec := &dns.NSECRecord{
		H:          h,
		NextName:   "b.example.com",
		TypeBitMap: []byte{0x00, 0x01, 0x42}, // bits for type 1 (A) and type 6 (SOA)
	}

	data, err := rec.MarshalRData()
	require.NoError(t, err)

	off := 0
	parsed, err := dns.ParseNSECRData(data, &off, 0, len(data))
	require.NoError(t, err)
	assert.Equal(t, "b.example.com", parsed.NextName)
	assert.True(t, parsed.HasType(dns.TypeA))
	assert.True(t, parsed.HasType(dns.TypeSOA))
	assert.False(t, parsed.HasType(dns.TypeMX))
}

func TestNSECRecord_HasType_EmptyBitmap(t *testing.T) {
	rec := &dns.NSECRecord{NextName: "b.example.com"}
	assert.False(t, rec.HasType(dns.TypeA))
}
