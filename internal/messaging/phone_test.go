package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeE164(t *testing.T) {
	tests := []struct {
		in      string
		country string
		want    string
	}{
		{in: "+27 82 123 4567", want: "+27821234567"},
		{in: "0027821234567", want: "+27821234567"},
		{in: "082 123 4567", want: "+27821234567"},
		{in: "(082) 123-4567", country: "27", want: "+27821234567"},
		{in: "27821234567", want: "+27821234567"},
		{in: "821234567", want: "+27821234567"},
		{in: "07700 900123", country: "44", want: "+447700900123"},
		{in: "+1 (555) 010-9999", country: "44", want: "+15550109999"},
		{in: "", want: ""},
		{in: "call me", want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeE164(tc.in, tc.country))
		})
	}
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "*******4567", maskPhone("+27 82 123 4567"))
	assert.Equal(t, "****", maskPhone("123"))
}
