package reader

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultTopicGroupName is the reserved named-capture-group name whose
// value becomes the topic without also being duplicated into the tag map
// (spec.md §4.6.6: "if the name was not the default, it is also added as
// a tag").
const DefaultTopicGroupName = "topic"

// namedGroupSyntax normalizes the `(?<name>...)` named-group spelling used
// by some regex engines in the source configuration set into the
// `(?P<name>...)` form Go's RE2-based regexp package requires (spec.md
// §9's "Regex" design note — stated there as the opposite direction
// because the note describes normalizing toward a PCRE-compatible engine;
// Go's own engine already speaks (?P<name>...), so the direction that
// actually matters for this implementation is (?<name>...) -> (?P<name>...)).
// Negative/positive lookbehind forms, which start the same way but are not
// valid named groups, are left untouched.
var namedGroupSyntax = regexp.MustCompile(`\(\?<([A-Za-z_][A-Za-z0-9_]*)>`)

func normalizeNamedGroups(pattern string) string {
	return namedGroupSyntax.ReplaceAllString(pattern, `(?P<$1>`)
}

// stripReplicaSuffix removes a trailing ".N" (N in 1..9) from path, the
// rotated-replica suffix logrotate-style configurations leave behind, per
// spec.md §4.6.6.
func stripReplicaSuffix(path string) string {
	n := len(path)
	if n < 2 || path[n-2] != '.' {
		return path
	}
	d, err := strconv.Atoi(path[n-1:])
	if err != nil || d < 1 || d > 9 {
		return path
	}
	return path[:n-2]
}

// GetTopicName implements spec.md §4.6.6: derive a topic (and side-effect
// tags) from path using pattern, a regex that may use named captures. A
// compile error is reported to the caller (which alarms under
// CategoryTopicExtract and returns an empty topic,
// per §4.6.6 "On regex error, alarm and return empty topic"); a pattern
// that simply doesn't match path yields an empty topic with no error.
func GetTopicName(pattern, path string) (topic string, tags map[string]string, err error) {
	path = stripReplicaSuffix(path)

	re, err := regexp.Compile(normalizeNamedGroups(pattern))
	if err != nil {
		return "", nil, fmt.Errorf("compile topic pattern %q: %w", pattern, err)
	}

	names := re.SubexpNames()
	hasNamed := false
	for _, n := range names[1:] {
		if n != "" {
			hasNamed = true
			break
		}
	}

	m := re.FindStringSubmatch(path)
	if m == nil {
		return "", nil, nil
	}

	if hasNamed {
		return namedCaptureTopic(names, m)
	}
	return positionalCaptureTopic(m)
}

func namedCaptureTopic(names []string, m []string) (string, map[string]string, error) {
	tags := make(map[string]string)
	for i, name := range names {
		if i == 0 || name == "" {
			continue
		}
		tags[name] = m[i]
	}

	if v, ok := tags[DefaultTopicGroupName]; ok {
		delete(tags, DefaultTopicGroupName)
		return v, tags, nil
	}

	for i, name := range names {
		if i == 0 || name == "" {
			continue
		}
		return m[i], tags, nil
	}
	return "", tags, nil
}

func positionalCaptureTopic(m []string) (string, map[string]string, error) {
	tags := make(map[string]string, len(m)-1)
	parts := make([]string, 0, len(m)-1)
	for i := 1; i < len(m); i++ {
		key := fmt.Sprintf("__topic_%d__", i)
		tags[key] = m[i]
		parts = append(parts, m[i])
	}
	return strings.Join(parts, "_"), tags, nil
}
