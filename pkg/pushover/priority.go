package pushover

import (
	"fmt"
	"strconv"
	"strings"
)

// Priority is the delivery priority of a message, from -2 to 2.
type Priority int

const (
	PriorityLowest    Priority = -2
	PriorityLow       Priority = -1
	PriorityNormal    Priority = 0
	PriorityHigh      Priority = 1
	PriorityEmergency Priority = 2
)

// String returns the wire value, e.g. "2" for PriorityEmergency.
func (p Priority) String() string {
	return strconv.Itoa(int(p))
}

// Valid reports whether p is one of the priorities the service accepts.
func (p Priority) Valid() bool {
	return p >= PriorityLowest && p <= PriorityEmergency
}

// ParsePriority accepts either the numeric wire value or a name such as "high".
func ParsePriority(raw string) (Priority, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	switch raw {
	case "", "normal":
		return PriorityNormal, nil
	case "lowest":
		return PriorityLowest, nil
	case "low", "quiet":
		return PriorityLow, nil
	case "high":
		return PriorityHigh, nil
	case "emergency":
		return PriorityEmergency, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || !Priority(n).Valid() {
		return PriorityNormal, fmt.Errorf("unknown priority %q", raw)
	}
	return Priority(n), nil
}
