package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "5125551234", NormalizePhone("(512) 555-1234"))
	assert.Equal(t, "+15125551234", NormalizePhone("+1 512-555-1234"))
	assert.Equal(t, "+442079460958", NormalizePhone("+44 20 7946 0958"))
	assert.Equal(t, "", NormalizePhone(""))
}

func TestPhoneKey_StripsUSCountryCode(t *testing.T) {
	// The same line with and without +1 must collapse to one key.
	assert.Equal(t, "5125551234", PhoneKey("+1 512-555-1234"))
	assert.Equal(t, "5125551234", PhoneKey("(512) 555-1234"))
	assert.Equal(t, PhoneKey("+1 512-555-1234"), PhoneKey("512.555.1234"))
}

func TestPhoneKey_RejectsBadLengths(t *testing.T) {
	assert.Equal(t, "", PhoneKey("12345"))
	assert.Equal(t, "", PhoneKey("1234567890123456"))
	assert.Equal(t, "", PhoneKey(""))
}

func TestFormatPhoneUS(t *testing.T) {
	assert.Equal(t, "(512) 555-1234", FormatPhoneUS("5125551234"))
	assert.Equal(t, "+1 (512) 555-1234", FormatPhoneUS("15125551234"))
	assert.Equal(t, "+442079460958", FormatPhoneUS("+44 20 7946 0958"))
}

func TestDomain(t *testing.T) {
	assert.Equal(t, "example.com", Domain("https://www.example.com/page"))
	assert.Equal(t, "example.com", Domain("www.example.com/page"))
	assert.Equal(t, "example.com", Domain("https://example.com:8080/page"))
	assert.Equal(t, "shop.example.com", Domain("https://shop.example.com"))
	assert.Equal(t, "", Domain(""))
}
