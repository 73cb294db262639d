package getbytes

import (
	"encoding/hex"
	"testing"
)

func TestFromGetBytes(t *testing.T) {
	var byteslicetests = []struct {
		byteslice []byte
		expect    string
	}{
		{FromSliceInt64([]int64{1}), "0100000000000000"},
		{FromSliceInt64([]int64{1, -1}), "0100000000000000ffffffffffffffff"},
		{FromSliceFloat64([]float64{2, 4}), "00000000000000400000000000001040"},
		{FromSliceInt64([]int64{}), ""},
		{FromSliceFloat64([]float64{}), ""},
	}
	for _, test := range byteslicetests {
		encodedStr := hex.EncodeToString(test.byteslice)
		if expectStr := test.expect; encodedStr != expectStr {
			t.Errorf("want %v, have %v", expectStr, encodedStr)
		}
	}
}
