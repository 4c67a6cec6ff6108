package dns_test

import (
	"testing"

	"github.com/jroosing/hydradns/internal/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSOARecord_RoundTrip(t *testing.T) {
	h := dns.NewRRHeader("example.com.", dns.ClassIN, 3600)
	rec := &dns.SOARecord{
		H:       h,
		MName:   "ns1.example.com",
		RName:   "hostmaster.example.com",
		Serial:  2026073101,
		Refresh: 7200,
		Retry:   3600,
		Expire:  1209600,
		Minimum: 300,
	}

	data, err := rec.MarshalRData()
	require.NoError(t, err)

	off := 0
	parsed, err := dns.ParseSOARData(data, &off, 0, len(data))
	require.NoError(t, err)
	assert.Equal(t, "ns1.example.com", parsed.MName)
	assert.Equal(t, "hostmaster.example.com", parsed.RName)
	assert.Equal(t, uint32(2026073101), parsed.Serial)
	assert.Equal(t, uint32(300), parsed.Minimum)
	assert.Equal(t, dns.TypeSOA, parsed.Type())
}

func TestParseSOARData_Truncated(t *testing.T) {
	encoded, err := dns.EncodeName("ns1.example.com")
	require.NoError(t, err)
	msg := append(append([]byte{}, encoded...), encoded...)
	off := 0
	_, err = dns.ParseSOARData(msg, &off, 0, len(msg))
	assert.Error(t, err)
}
