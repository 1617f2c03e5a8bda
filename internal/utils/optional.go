package utils

import "strings"

// StringValue dereferences an optional JSON string. nil and blank both read as "".
func StringValue(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}
