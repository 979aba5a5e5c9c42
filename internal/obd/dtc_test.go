package obd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	milOn, count, err := ParseStatus("41 01 82 07 65 04")
	require.NoError(t, err)
	assert.True(t, milOn)
	assert.Equal(t, 2, count)

	milOn, count, err = ParseStatus("41 01 00 07 65 04")
	require.NoError(t, err)
	assert.False(t, milOn)
	assert.Equal(t, 0, count)
}

func TestParseDTCs(t *testing.T) {
	codes, err := ParseDTCs("43 01 33 00 00 00 00")
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.Equal(t, "P0133", codes[0].Code)
	assert.Equal(t, "O2 Sensor Circuit Slow Response (Bank 1 Sensor 1)", codes[0].Desc)
}

func TestParseDTCsCANCountByte(t *testing.T) {
	// CAN replies prefix the code pairs with a count byte.
	codes, err := ParseDTCs("43 02 01 33 03 00")
	require.NoError(t, err)
	require.Len(t, codes, 2)
	assert.Equal(t, "P0133", codes[0].Code)
	assert.Equal(t, "P0300", codes[1].Code)
}

func TestDecodeDTCLetters(t *testing.T) {
	assert.Equal(t, "P0133", decodeDTC(0x01, 0x33))
	assert.Equal(t, "C0300", decodeDTC(0x43, 0x00))
	assert.Equal(t, "B1234", decodeDTC(0x92, 0x34))
	assert.Equal(t, "U0100", decodeDTC(0xC1, 0x00))
}

func TestDescribeDTCFallbacks(t *testing.T) {
	assert.Equal(t, "Generic powertrain fault", describeDTC("P0999"))
	assert.Equal(t, "Manufacturer-specific powertrain fault", describeDTC("P1234"))
	assert.Equal(t, "Chassis fault", describeDTC("C0035"))
	assert.Equal(t, "Network fault", describeDTC("U0420"))
}

func TestParseDTCsSkipsPadding(t *testing.T) {
	codes, err := ParseDTCs("43 00 00 00 00 00 00")
	require.NoError(t, err)
	assert.Empty(t, codes)
}
