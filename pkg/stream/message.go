package stream

import (
	"fmt"
	"strconv"
	"strings"
)

// Message is a single record on a topic partition.
type Message struct {
	Headers   map[string]string
	Topic     string
	Key       []byte
	Value     []byte
	Offset    int64
	Partition int32
}

// Offset is a position in a partition log. Negative values are symbolic.
type Offset int64

const (
	OffsetBeginning Offset = -2
	OffsetEnd       Offset = -1
)

// ParseOffset accepts "beginning"/"oldest", "end"/"newest" or a non-negative integer.
func ParseOffset(s string) (Offset, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "beginning", "oldest":
		return OffsetBeginning, nil
	case "end", "newest":
		return OffsetEnd, nil
	}

	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid offset %q", s)
	}
	return Offset(n), nil
}

func (o Offset) String() string {
	switch o {
	case OffsetBeginning:
		return "beginning"
	case OffsetEnd:
		return "end"
	default:
		return strconv.FormatInt(int64(o), 10)
	}
}
