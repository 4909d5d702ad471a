package settings

import "strings"

// NormalizeHexColor converts #RGB, #RRGGBB and their forms without "#" to
// lowercase #rrggbb. It returns "", false for anything else.
func NormalizeHexColor(value string) (string, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	v = strings.TrimPrefix(v, "#")

	for _, r := range v {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			return "", false
		}
	}

	switch len(v) {
	case 3:
		return "#" + string([]byte{v[0], v[0], v[1], v[1], v[2], v[2]}), true
	case 6:
		return "#" + v, true
	default:
		return "", false
	}
}
