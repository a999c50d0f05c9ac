package normalize

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// flexString decodes a JSON string or number. Any other JSON value leaves it
// unset; decoding never fails.
type flexString struct {
	v  string
	ok bool
}

func (s *flexString) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		str = strings.TrimSpace(str)
		*s = flexString{v: str, ok: str != ""}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*s = flexString{v: n.String(), ok: true}
	}
	return nil
}

// flexNumber decodes a JSON number or a numeric string. Anything else,
// including non-finite values, leaves it unset.
type flexNumber struct {
	v  float64
	ok bool
}

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		n.set(f)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(str), 64); err == nil {
			n.set(f)
		}
	}
	return nil
}

func (n *flexNumber) set(f float64) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return
	}
	*n = flexNumber{v: f, ok: true}
}

// isObject reports whether raw holds a JSON object.
func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
