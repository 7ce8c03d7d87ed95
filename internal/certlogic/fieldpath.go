// internal/certlogic/fieldpath.go
package certlogic

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

/*
 * Data access paths for the var operator.
 *
 * A path is either empty (the whole data value) or one or more segments of
 * non-dot characters separated by single dots: "payload.v.0.dn". Numeric
 * segments index arrays; all other segments address object members.
 *
 * Resolution never fails. Any segment that cannot be followed (missing key,
 * out-of-range or non-numeric index, scalar in the middle of the path)
 * resolves to Null.
 */

var pathPattern = regexp.MustCompile(`^([^.]+)(\.[^.]+)*$`)

// ValidPath reports whether path is a well-formed data access path.
func ValidPath(path string) bool {
	return path == "" || pathPattern.MatchString(path)
}

// SplitPath splits a data access path into its segments.
// The empty path has no segments.
func SplitPath(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	if !pathPattern.MatchString(path) {
		return nil, fmt.Errorf("%w: data access path doesn't have a valid format: %s", ErrInvalidExpression, path)
	}
	return strings.Split(path, "."), nil
}

// Resolve follows segments from data and returns the value found, or Null.
func Resolve(data Value, segments []string) Value {
	current := data
	for _, seg := range segments {
		switch v := current.(type) {
		case Object:
			next, ok := v[seg]
			if !ok {
				return Null{}
			}
			current = next
		case Array:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return Null{}
			}
			current = v[idx]
		default:
			return Null{}
		}
	}
	if current == nil {
		return Null{}
	}
	return current
}
