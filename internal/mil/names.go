package mil

import "strings"

// SanitizeName converts a name to a valid MIL identifier matching
// [A-Za-z_][A-Za-z0-9_]*. Invalid characters become underscores and a
// leading digit gets an underscore prefix.
func SanitizeName(name string) string {
	if name == "" {
		return "_"
	}

	var sb strings.Builder
	sb.Grow(len(name) + 1)
	for i, c := range name {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c == '_':
			sb.WriteRune(c)
		case c >= '0' && c <= '9':
			if i == 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(c)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}
