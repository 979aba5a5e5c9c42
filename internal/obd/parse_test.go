package obd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePIDCompactReply(t *testing.T) {
	data, err := ParsePID("410C1AF8", "010C", 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1A, 0xF8}, data)
	assert.Equal(t, 1726.0, rpm(data))
}

func TestParsePIDSpacedReply(t *testing.T) {
	data, err := ParsePID("41 0D 3C", "010D", 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x3C}, data)
}

func TestParsePIDMultiLinePicksMatching(t *testing.T) {
	reply := "41 05 7B\n41 0C 1A F8"
	data, err := ParsePID(reply, "010C", 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1A, 0xF8}, data)
}

func TestParsePIDMalformed(t *testing.T) {
	_, err := ParsePID("garbage", "010D", 1)
	assert.Error(t, err)

	// Echo present but payload short.
	_, err = ParsePID("410C1A", "010C", 2)
	assert.Error(t, err)

	_, err = ParsePID("", "010C", 2)
	assert.Error(t, err)
}

func TestParsePIDLowercaseHex(t *testing.T) {
	data, err := ParsePID("41 0c 1a f8", "010c", 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1A, 0xF8}, data)
}

func TestDecodeFormulas(t *testing.T) {
	assert.Equal(t, 1726.0, rpm([]byte{0x1A, 0xF8}))
	assert.InDelta(t, 37.28, speedMph([]byte{0x3C}), 0.01) // 60 km/h
	assert.Equal(t, 83.0, tempC([]byte{0x7B}))
	assert.InDelta(t, 100.0, percent([]byte{0xFF}), 0.01)
	assert.InDelta(t, 5.12, mafGs([]byte{0x02, 0x00}), 0.01)
	assert.Equal(t, 14.2, voltage([]byte{0x37, 0x78}))
	assert.Equal(t, -64.0, timingDeg([]byte{0x00}))
}
