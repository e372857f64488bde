package coltype

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/encoding"

	"github.com/ambermdb/jetcore/internal/textcode"
)

// Coder reads and writes one column's scalar values and produces the
// order-preserving sort-key bytes used as index leaf content. Coders
// never see nil: null handling (flag bytes, ignoreNulls) belongs to the
// row and index layers.
type Coder interface {
	// Read decodes a stored value from its on-disk bytes.
	Read(b []byte) (any, error)

	// Write encodes v into fresh on-disk bytes.
	Write(v any) ([]byte, error)

	// SortKey appends v's order-preserving key bytes to dst. Descending
	// columns receive every byte complemented.
	SortKey(dst []byte, v any, descending bool) ([]byte, error)
}

// dateTimeEpochUTC is the zero point of stored date values: day 0 is
// 1899-12-30, and the stored float64 counts days (fractional part is
// time of day).
var dateTimeEpochUTC = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

func complementIf(dst []byte, from int, descending bool) []byte {
	if descending {
		for i := from; i < len(dst); i++ {
			dst[i] ^= 0xFF
		}
	}
	return dst
}

// appendSignedKey appends a big-endian two's-complement integer with
// the sign bit flipped, which makes unsigned byte comparison agree
// with signed numeric order.
func appendSignedKey(dst []byte, v int64, width int, descending bool) []byte {
	from := len(dst)
	for i := width - 1; i >= 0; i-- {
		dst = append(dst, byte(v>>(8*i)))
	}
	dst[from] ^= 0x80
	return complementIf(dst, from, descending)
}

// appendFloatKey applies the order-preserving IEEE-754 transform: flip
// the sign bit of non-negative values, flip all bits of negative ones.
func appendFloatKey(dst []byte, bits uint64, width int, descending bool) []byte {
	if bits&(1<<(uint(width)*8-1)) == 0 {
		bits ^= 1 << (uint(width)*8 - 1)
	} else {
		bits = ^bits
		if width == 4 {
			bits &= 0xFFFFFFFF
		}
	}
	from := len(dst)
	for i := width - 1; i >= 0; i-- {
		dst = append(dst, byte(bits>>(8*i)))
	}
	return complementIf(dst, from, descending)
}

type boolCoder struct{}

func (boolCoder) Read(b []byte) (any, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("coltype: boolean value truncated")
	}
	return b[0] != 0, nil
}

func (boolCoder) Write(v any) ([]byte, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("coltype: boolean column given %T", v)
	}
	if b {
		return []byte{1}, nil
	}
	return []byte{0}, nil
}

func (boolCoder) SortKey(dst []byte, v any, descending bool) ([]byte, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("coltype: boolean column given %T", v)
	}
	from := len(dst)
	if b {
		dst = append(dst, 0xFF)
	} else {
		dst = append(dst, 0x00)
	}
	return complementIf(dst, from, descending), nil
}

type byteCoder struct{}

func (byteCoder) Read(b []byte) (any, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("coltype: byte value truncated")
	}
	return b[0], nil
}

func (byteCoder) Write(v any) ([]byte, error) {
	switch n := v.(type) {
	case byte:
		return []byte{n}, nil
	case int:
		if n < 0 || n > 255 {
			return nil, fmt.Errorf("coltype: byte value %d out of range", n)
		}
		return []byte{byte(n)}, nil
	default:
		return nil, fmt.Errorf("coltype: byte column given %T", v)
	}
}

func (c byteCoder) SortKey(dst []byte, v any, descending bool) ([]byte, error) {
	raw, err := c.Write(v)
	if err != nil {
		return nil, err
	}
	from := len(dst)
	dst = append(dst, raw[0])
	return complementIf(dst, from, descending), nil
}

type intCoder struct{}

func (intCoder) Read(b []byte) (any, error) {
	if len(b) < 2 {
		return nil, fmt.Errorf("coltype: int value truncated")
	}
	return int16(binary.LittleEndian.Uint16(b)), nil
}

func (intCoder) Write(v any) ([]byte, error) {
	n, err := toInt64(v, math.MinInt16, math.MaxInt16)
	if err != nil {
		return nil, fmt.Errorf("coltype: int column: %w", err)
	}
	out := make([]byte, 2)
	binary.LittleEndian.PutUint16(out, uint16(int16(n)))
	return out, nil
}

func (intCoder) SortKey(dst []byte, v any, descending bool) ([]byte, error) {
	n, err := toInt64(v, math.MinInt16, math.MaxInt16)
	if err != nil {
		return nil, fmt.Errorf("coltype: int column: %w", err)
	}
	return appendSignedKey(dst, n, 2, descending), nil
}

type longCoder struct{}

func (longCoder) Read(b []byte) (any, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("coltype: long value truncated")
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

func (longCoder) Write(v any) ([]byte, error) {
	n, err := toInt64(v, math.MinInt32, math.MaxInt32)
	if err != nil {
		return nil, fmt.Errorf("coltype: long column: %w", err)
	}
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, uint32(int32(n)))
	return out, nil
}

func (longCoder) SortKey(dst []byte, v any, descending bool) ([]byte, error) {
	n, err := toInt64(v, math.MinInt32, math.MaxInt32)
	if err != nil {
		return nil, fmt.Errorf("coltype: long column: %w", err)
	}
	return appendSignedKey(dst, n, 4, descending), nil
}

// moneyCoder stores fixed-point currency as a 64-bit count of
// 1/10000ths. Values are exchanged with callers as that scaled int64.
type moneyCoder struct{}

func (moneyCoder) Read(b []byte) (any, error) {
	if len(b) < 8 {
		return nil, fmt.Errorf("coltype: money value truncated")
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

func (moneyCoder) Write(v any) ([]byte, error) {
	n, err := toInt64(v, math.MinInt64, math.MaxInt64)
	if err != nil {
		return nil, fmt.Errorf("coltype: money column: %w", err)
	}
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, uint64(n))
	return out, nil
}

func (moneyCoder) SortKey(dst []byte, v any, descending bool) ([]byte, error) {
	n, err := toInt64(v, math.MinInt64, math.MaxInt64)
	if err != nil {
		return nil, fmt.Errorf("coltype: money column: %w", err)
	}
	return appendSignedKey(dst, n, 8, descending), nil
}

type floatCoder struct{}

func (floatCoder) Read(b []byte) (any, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("coltype: float value truncated")
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
}

func (floatCoder) Write(v any) ([]byte, error) {
	f, err := toFloat64(v)
	if err != nil {
		return nil, fmt.Errorf("coltype: float column: %w", err)
	}
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, math.Float32bits(float32(f)))
	return out, nil
}

func (floatCoder) SortKey(dst []byte, v any, descending bool) ([]byte, error) {
	f, err := toFloat64(v)
	if err != nil {
		return nil, fmt.Errorf("coltype: float column: %w", err)
	}
	return appendFloatKey(dst, uint64(math.Float32bits(float32(f))), 4, descending), nil
}

type doubleCoder struct{}

func (doubleCoder) Read(b []byte) (any, error) {
	if len(b) < 8 {
		return nil, fmt.Errorf("coltype: double value truncated")
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

func (doubleCoder) Write(v any) ([]byte, error) {
	f, err := toFloat64(v)
	if err != nil {
		return nil, fmt.Errorf("coltype: double column: %w", err)
	}
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, math.Float64bits(f))
	return out, nil
}

func (doubleCoder) SortKey(dst []byte, v any, descending bool) ([]byte, error) {
	f, err := toFloat64(v)
	if err != nil {
		return nil, fmt.Errorf("coltype: double column: %w", err)
	}
	return appendFloatKey(dst, math.Float64bits(f), 8, descending), nil
}

// dateTimeCoder stores a date as a float64 count of days since
// 1899-12-30, fractional part carrying the time of day.
type dateTimeCoder struct {
	loc  *time.Location
	mode DateTimeMode
}

// Stored dates resolve to whole milliseconds: the day-count double
// cannot carry nanoseconds for dates in the modern era, so both
// directions quantize explicitly rather than letting float rounding
// decide.
func (c dateTimeCoder) toDays(t time.Time) float64 {
	if c.mode == DateTimeLocal {
		// Wall-clock fields only: re-anchor t's fields in UTC so zone
		// offsets never leak into the stored value.
		t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
		return float64(t.Sub(dateTimeEpochUTC).Milliseconds()) / 86400000
	}
	epoch := time.Date(1899, 12, 30, 0, 0, 0, 0, c.loc)
	return float64(t.Sub(epoch).Milliseconds()) / 86400000
}

func (c dateTimeCoder) fromDays(days float64) time.Time {
	d := time.Duration(math.Round(days*86400000)) * time.Millisecond
	if c.mode == DateTimeLocal {
		u := dateTimeEpochUTC.Add(d)
		return time.Date(u.Year(), u.Month(), u.Day(), u.Hour(), u.Minute(), u.Second(), u.Nanosecond(), time.Local)
	}
	epoch := time.Date(1899, 12, 30, 0, 0, 0, 0, c.loc)
	return epoch.Add(d)
}

func (c dateTimeCoder) Read(b []byte) (any, error) {
	if len(b) < 8 {
		return nil, fmt.Errorf("coltype: date value truncated")
	}
	return c.fromDays(math.Float64frombits(binary.LittleEndian.Uint64(b))), nil
}

func (c dateTimeCoder) Write(v any) ([]byte, error) {
	t, ok := v.(time.Time)
	if !ok {
		return nil, fmt.Errorf("coltype: date column given %T", v)
	}
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, math.Float64bits(c.toDays(t)))
	return out, nil
}

func (c dateTimeCoder) SortKey(dst []byte, v any, descending bool) ([]byte, error) {
	t, ok := v.(time.Time)
	if !ok {
		return nil, fmt.Errorf("coltype: date column given %T", v)
	}
	return appendFloatKey(dst, math.Float64bits(c.toDays(t)), 8, descending), nil
}

type guidCoder struct{}

func (guidCoder) Read(b []byte) (any, error) {
	if len(b) < 16 {
		return nil, fmt.Errorf("coltype: guid value truncated")
	}
	id, err := uuid.FromBytes(b[:16])
	if err != nil {
		return nil, fmt.Errorf("coltype: guid value: %w", err)
	}
	return id, nil
}

func (guidCoder) Write(v any) ([]byte, error) {
	id, err := toUUID(v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 16)
	copy(out, id[:])
	return out, nil
}

func (guidCoder) SortKey(dst []byte, v any, descending bool) ([]byte, error) {
	id, err := toUUID(v)
	if err != nil {
		return nil, err
	}
	from := len(dst)
	dst = append(dst, id[:]...)
	return complementIf(dst, from, descending), nil
}

func toUUID(v any) (uuid.UUID, error) {
	switch id := v.(type) {
	case uuid.UUID:
		return id, nil
	case string:
		parsed, err := uuid.Parse(id)
		if err != nil {
			return uuid.UUID{}, fmt.Errorf("coltype: guid column: %w", err)
		}
		return parsed, nil
	default:
		return uuid.UUID{}, fmt.Errorf("coltype: guid column given %T", v)
	}
}

// textCoder stores text through the column's charset and sort-keys it
// through the collation tables.
type textCoder struct {
	enc       encoding.Encoding
	collation textcode.Collation
}

func (c textCoder) Read(b []byte) (any, error) {
	decoded, err := c.enc.NewDecoder().Bytes(b)
	if err != nil {
		return nil, fmt.Errorf("coltype: decode text: %w", err)
	}
	return string(decoded), nil
}

func (c textCoder) Write(v any) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("coltype: text column given %T", v)
	}
	encoded, err := c.enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("coltype: encode text: %w", err)
	}
	return encoded, nil
}

func (c textCoder) SortKey(dst []byte, v any, descending bool) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("coltype: text column given %T", v)
	}
	return textcode.Encode(dst, s, c.collation, descending), nil
}

type binaryCoder struct{}

func (binaryCoder) Read(b []byte) (any, error) {
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (binaryCoder) Write(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("coltype: binary column given %T", v)
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (binaryCoder) SortKey(dst []byte, v any, descending bool) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("coltype: binary column given %T", v)
	}
	from := len(dst)
	dst = append(dst, b...)
	return complementIf(dst, from, descending), nil
}

func toInt64(v any, min, max int64) (int64, error) {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int16:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	default:
		return 0, fmt.Errorf("given %T", v)
	}
	if n < min || n > max {
		return 0, fmt.Errorf("value %d out of range", n)
	}
	return n, nil
}

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	default:
		return 0, fmt.Errorf("given %T", v)
	}
}
