package engine

import (
	"fmt"
	"regexp"
	"strings"
)

// Compiles a content filter. Accepts a plain Go regular expression, or a slash literal like `/hello/i` where the trailing flags are any of `gimsuy`.
//
// Flags `i`, `m` and `s` become inline Go flags; `u` is a no-op. Flags `g` and `y` select stateful matching and are rejected with ErrStatefulFilter. An empty filter returns nil, which matches any content.
func ParseFilter(s string) (*regexp.Regexp, error) {
	if s == "" {
		return nil, nil
	}
	pattern := s
	inline := ""
	if strings.HasPrefix(s, "/") {
		if idx := strings.LastIndex(s, "/"); idx > 0 && isFlagSuffix(s[idx+1:]) {
			pattern = s[1:idx]
			for _, f := range s[idx+1:] {
				switch f {
				case 'g', 'y':
					return nil, fmt.Errorf("%w: flag %q in %s", ErrStatefulFilter, f, s)
				case 'i', 'm', 's':
					if !strings.ContainsRune(inline, f) {
						inline += string(f)
					}
				}
			}
		}
	}
	if inline != "" {
		pattern = "(?" + inline + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadFilter, err)
	}
	return re, nil
}

func isFlagSuffix(s string) bool {
	for _, c := range s {
		if !strings.ContainsRune("gimsuy", c) {
			return false
		}
	}
	return true
}
