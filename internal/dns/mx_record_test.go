package dns_test

import (
	"testing"

	"github.com/jroosing/hydradns/internal/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMXRecord_RoundTrip(t *testing.T) {
	h := dns.NewRRHeader("example.com.", dns.ClassIN, 300)
	rec := dns.NewMXRecord(h, 10, "mail.example.com")

	data, err := rec.MarshalRData()
	require.NoError(t, err)

	off := 0
	parsed, err := dns.ParseMXRData(data, &off, 0, len(data))
	require.NoError(t, err)
	assert.Equal(t, uint16(10), parsed.Preference)
	assert.Equal(t, "mail.example.com", parsed.Exchange)
	assert.Equal(t, dns.TypeMX, parsed.Type())
}

func TestMXRecord_SetHeader(t *testing.T) {
	rec := &dns.MXRecord{Preference: 5, Exchange: "mx1.example.com."}
	h := dns.NewRRHeader("test.com.", dns.ClassIN, 600)
	rec.SetHeader(h)

	assert.Equal(t, "test.com.", rec.Header().Name)
	assert.Equal(t, uint32(600), rec.Header().TTL)
}

func TestParseMXRData_TruncatedPreference(t *testing.T) {
	off := 0
	_, err := dns.ParseMXRData([]byte{0x00}, &off, 0, 1)
	assert.Error(t, err)
}
