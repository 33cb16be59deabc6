package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseTimestamp parses a media timestamp of the form "SS", "MM:SS", or
// "HH:MM:SS". The seconds component may carry a fraction.
func ParseTimestamp(input string) (time.Duration, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, fmt.Errorf("empty timestamp")
	}

	parts := strings.Split(input, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", input)
	}

	seconds, err := strconv.ParseFloat(parts[len(parts)-1], 64)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("invalid timestamp %q", input)
	}

	total := seconds
	multiplier := 60.0
	for i := len(parts) - 2; i >= 0; i-- {
		unit, err := strconv.ParseUint(parts[i], 10, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp %q", input)
		}
		total += float64(unit) * multiplier
		multiplier *= 60
	}

	return time.Duration(total * float64(time.Second)), nil
}
