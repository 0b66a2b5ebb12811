package model

import (
	"bytes"
	"fmt"
	"strconv"
)

// BigInt is an int64 that marshals to a JSON string.
// Volume, value, market cap and share counts exceed 2^53 and would lose
// precision as JSON numbers in browser clients.
type BigInt int64

// MarshalJSON encodes the value as a quoted decimal string.
func (b BigInt) MarshalJSON() ([]byte, error) {
	return []byte(`"` + strconv.FormatInt(int64(b), 10) + `"`), nil
}

// UnmarshalJSON accepts either a quoted decimal string or a JSON number.
func (b *BigInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		data = data[1 : len(data)-1]
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid integer %q: %w", data, err)
	}
	*b = BigInt(v)
	return nil
}

// Int64 returns the underlying value.
func (b BigInt) Int64() int64 {
	return int64(b)
}
