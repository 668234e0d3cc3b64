package generation

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fence = regexp.MustCompile("```[a-zA-Z]*\\n?|\\n?```")

// ParseJSON decodes model output that is supposed to be JSON. Code fences
// and chatter around the outermost object or array are tolerated. When
// nothing decodes, fallback is returned with ok false.
func ParseJSON[T any](text string, fallback T) (v T, ok bool) {
	cleaned := strings.TrimSpace(fence.ReplaceAllString(text, ""))
	if json.Unmarshal([]byte(cleaned), &v) == nil {
		return v, true
	}

	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(cleaned, pair[0])
		end := strings.LastIndex(cleaned, pair[1])
		if start < 0 || end <= start {
			continue
		}
		var inner T
		if json.Unmarshal([]byte(cleaned[start:end+1]), &inner) == nil {
			return inner, true
		}
	}
	return fallback, false
}
