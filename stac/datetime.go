package stac

import (
	"fmt"
	"strings"
	"time"
)

// ParseTime parses an RFC 3339 timestamp. A trailing "Z" and timestamps
// without a zone are accepted; the latter are taken as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid timestamp: %s", s)
}

// ParseDatetime parses the datetime search parameter. It accepts a single
// instant or an interval "start/end" where either side may be ".." or empty.
// A nil bound means the interval is open on that side. A single instant
// returns the same time for start and end.
func ParseDatetime(s string) (start, end *time.Time, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil, nil
	}
	parts := strings.Split(s, "/")
	switch len(parts) {
	case 1:
		t, err := ParseTime(parts[0])
		if err != nil {
			return nil, nil, paramErrorf("datetime", "%v", err)
		}
		return &t, &t, nil
	case 2:
		start, err = parseBound(parts[0])
		if err != nil {
			return nil, nil, paramErrorf("datetime", "%v", err)
		}
		end, err = parseBound(parts[1])
		if err != nil {
			return nil, nil, paramErrorf("datetime", "%v", err)
		}
		if start == nil && end == nil {
			return nil, nil, paramErrorf("datetime", "interval %q is open on both ends", s)
		}
		if start != nil && end != nil && start.After(*end) {
			return nil, nil, paramErrorf("datetime", "interval start %s is after end %s", parts[0], parts[1])
		}
		return start, end, nil
	default:
		return nil, nil, paramErrorf("datetime", "invalid interval %q", s)
	}
}

func parseBound(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == ".." {
		return nil, nil
	}
	t, err := ParseTime(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FormatTime renders a time the way items store it.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
