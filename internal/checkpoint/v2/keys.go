package v2

import (
	"fmt"
	"regexp"
	"strconv"
)

// rangeKeyPattern matches "<primary-key>_<index>_r": the final byte 'r'
// disambiguates a range key from a primary key, and the two underscores
// immediately before it are used to reverse-extract the primary key and
// shard index, per spec.md §4.2's key schema.
var rangeKeyPattern = regexp.MustCompile(`^(.*)_(\d+)_r$`)

// PrimaryKey builds the stable primary-checkpoint key for (configName,
// device, inode).
func PrimaryKey(configName string, device, inode uint64) string {
	return fmt.Sprintf("%s_%d_%d", configName, device, inode)
}

// RangeKey builds the key for the index-th range checkpoint under primary.
func RangeKey(primaryKey string, index int) string {
	return fmt.Sprintf("%s_%d_r", primaryKey, index)
}

// ParseRangeKey reverse-extracts the primary key and shard index from a
// range key. ok is false if key does not have the range-key shape.
func ParseRangeKey(key string) (primaryKey string, index int, ok bool) {
	m := rangeKeyPattern.FindStringSubmatch(key)
	if m == nil {
		return "", 0, false
	}
	idx, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, false
	}
	return m[1], idx, true
}

// IsRangeKey reports whether key has the range-key shape.
func IsRangeKey(key string) bool {
	return rangeKeyPattern.MatchString(key)
}

// AppendRangeKeys is the §4.2 "append-range-keys" convenience builder: the
// n range keys belonging to primaryKey, in shard order.
func AppendRangeKeys(primaryKey string, n int, out []string) []string {
	for i := 0; i < n; i++ {
		out = append(out, RangeKey(primaryKey, i))
	}
	return out
}
