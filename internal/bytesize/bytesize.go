// Package bytesize provides parsing and formatting of human-readable byte
// sizes for configuration values such as upload limits.
package bytesize

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ByteSize represents a size in bytes that can be unmarshaled from
// human-readable strings like "50Mi", "100MB", or plain numbers.
//
// Supported formats:
//   - Plain numbers: 1024, 52428800
//   - Binary units (x1024): Ki/KiB, Mi/MiB, Gi/GiB, Ti/TiB
//   - Decimal units (x1000): K/KB, M/MB, G/GB, T/TB
//   - Bytes: B
type ByteSize uint64

// Common byte size constants.
const (
	B  ByteSize = 1
	KB ByteSize = 1000
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB
	TB ByteSize = 1000 * GB

	KiB ByteSize = 1024
	MiB ByteSize = 1024 * KiB
	GiB ByteSize = 1024 * MiB
	TiB ByteSize = 1024 * GiB
)

var unitMultipliers = map[string]ByteSize{
	"": B, "b": B,
	"k": KB, "kb": KB,
	"m": MB, "mb": MB,
	"g": GB, "gb": GB,
	"t": TB, "tb": TB,
	"ki": KiB, "kib": KiB,
	"mi": MiB, "mib": MiB,
	"gi": GiB, "gib": GiB,
	"ti": TiB, "tib": TiB,
}

// Parse parses a human-readable byte size string into a ByteSize value.
// It accepts formats like "50Mi", "100MB", "1024", etc.
func Parse(s string) (ByteSize, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty byte size string")
	}

	// Split the numeric prefix from the unit suffix.
	split := len(s)
	for i, r := range s {
		if !unicode.IsDigit(r) && r != '.' {
			split = i
			break
		}
	}
	numStr := s[:split]
	unit := strings.ToLower(strings.TrimSpace(s[split:]))

	multiplier, ok := unitMultipliers[unit]
	if !ok {
		return 0, fmt.Errorf("unknown byte size unit: %q", s[split:])
	}

	if strings.Contains(numStr, ".") {
		num, err := strconv.ParseFloat(numStr, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number in byte size: %q", numStr)
		}
		return ByteSize(num * float64(multiplier)), nil
	}

	num, err := strconv.ParseUint(numStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number in byte size: %q", numStr)
	}
	return ByteSize(num) * multiplier, nil
}

// UnmarshalText implements encoding.TextUnmarshaler so ByteSize can be used
// directly in structs decoded with mapstructure.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := Parse(string(text))
	if err != nil {
		return err
	}
	*b = size
	return nil
}

// String returns a human-readable representation of the byte size.
func (b ByteSize) String() string {
	switch {
	case b >= TiB:
		return fmt.Sprintf("%.2fTiB", float64(b)/float64(TiB))
	case b >= GiB:
		return fmt.Sprintf("%.2fGiB", float64(b)/float64(GiB))
	case b >= MiB:
		return fmt.Sprintf("%.2fMiB", float64(b)/float64(MiB))
	case b >= KiB:
		return fmt.Sprintf("%.2fKiB", float64(b)/float64(KiB))
	default:
		return fmt.Sprintf("%dB", uint64(b))
	}
}

// Int64 returns the ByteSize as an int64 for comparisons against file sizes.
func (b ByteSize) Int64() int64 {
	return int64(b)
}
