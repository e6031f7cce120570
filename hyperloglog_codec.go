package sketchy

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// MagicPrefix marks a base64 encoded HyperLogLog in text-oriented stores such
// as key-value caches, HTTP bodies and message headers.
const MagicPrefix = "%%%"

// MarshalBinary serializes the sketch. The format is:
//   - Precision (1 byte)
//   - Registers (2^precision bytes, one per register)
func (h *HyperLogLog) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 1+len(h.registers))
	buf[0] = h.precision
	copy(buf[1:], h.registers)
	return buf, nil
}

// UnmarshalBinary replaces h with the sketch encoded in data.
func (h *HyperLogLog) UnmarshalBinary(data []byte) error {
	out, err := UnmarshalHyperLogLog(data)
	if err != nil {
		return err
	}
	*h = *out
	return nil
}

// UnmarshalHyperLogLog decodes a sketch produced by [HyperLogLog.MarshalBinary].
func UnmarshalHyperLogLog(data []byte) (*HyperLogLog, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: empty hyperloglog data", ErrInvalidData)
	}

	precision := data[0]
	h, err := NewHyperLogLog(precision)
	if err != nil {
		return nil, fmt.Errorf("%w: precision %d is not supported", ErrInvalidData, precision)
	}

	if want := 1 + len(h.registers); len(data) != want {
		return nil, fmt.Errorf("%w: data length mismatch (got %d bytes, expected %d)",
			ErrInvalidData, len(data), want)
	}
	copy(h.registers, data[1:])
	return h, nil
}

// ToBase64 returns the standard base64 encoding of the binary form.
func (h *HyperLogLog) ToBase64() string {
	data, _ := h.MarshalBinary()
	return base64.StdEncoding.EncodeToString(data)
}

// FromBase64 decodes a sketch from unprefixed base64 text.
func FromBase64(s string) (*HyperLogLog, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidData, err)
	}
	return UnmarshalHyperLogLog(data)
}

// ToMagicString returns the base64 form prefixed with [MagicPrefix].
func (h *HyperLogLog) ToMagicString() string {
	return MagicPrefix + h.ToBase64()
}

// FromMagicString decodes a sketch produced by [HyperLogLog.ToMagicString].
// Input without the prefix is rejected rather than decoded as plain base64.
func FromMagicString(s string) (*HyperLogLog, error) {
	trimmed, ok := strings.CutPrefix(s, MagicPrefix)
	if !ok {
		return nil, fmt.Errorf("%w: missing %q prefix", ErrInvalidData, MagicPrefix)
	}
	return FromBase64(trimmed)
}

// DecodeHyperLogLogString decodes either the magic-prefixed or the plain
// base64 form, detecting which one s is.
func DecodeHyperLogLogString(s string) (*HyperLogLog, error) {
	if strings.HasPrefix(s, MagicPrefix) {
		return FromMagicString(s)
	}
	return FromBase64(s)
}

// MarshalText encodes the sketch as a magic string.
func (h *HyperLogLog) MarshalText() ([]byte, error) {
	return []byte(h.ToMagicString()), nil
}

// UnmarshalText decodes a magic string into h.
func (h *HyperLogLog) UnmarshalText(text []byte) error {
	out, err := FromMagicString(string(text))
	if err != nil {
		return err
	}
	*h = *out
	return nil
}
