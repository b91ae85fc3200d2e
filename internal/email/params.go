package email

import "strings"

// Param returns the value of the named parameter in a raw parameter list
// such as `charset="utf-8"; format=flowed`. Names match case-insensitively.
// Quoted values may contain ';' and backslash escapes; unquoted values run
// to the next ';' or the end of the string and are trimmed.
func Param(params, name string) string {
	s := params
	for len(s) > 0 {
		s = strings.TrimLeft(s, " \t\r\n;")
		eq := strings.IndexAny(s, "=;")
		if eq < 0 {
			return ""
		}
		key := strings.TrimSpace(s[:eq])
		if s[eq] == ';' {
			s = s[eq+1:]
			continue
		}
		s = strings.TrimLeft(s[eq+1:], " \t\r\n")
		var value string
		value, s = paramValue(s)
		if strings.EqualFold(key, name) {
			return value
		}
	}
	return ""
}

// paramValue reads one value from the front of s and returns it together
// with the rest of the list.
func paramValue(s string) (value, rest string) {
	if strings.HasPrefix(s, `"`) {
		var b strings.Builder
		for i := 1; i < len(s); i++ {
			switch c := s[i]; c {
			case '\\':
				if i+1 < len(s) {
					i++
					b.WriteByte(s[i])
				}
			case '"':
				rest = s[i+1:]
				if j := strings.IndexByte(rest, ';'); j >= 0 {
					rest = rest[j+1:]
				} else {
					rest = ""
				}
				return b.String(), rest
			default:
				b.WriteByte(c)
			}
		}
		// Unterminated quote: take everything.
		return b.String(), ""
	}
	if j := strings.IndexByte(s, ';'); j >= 0 {
		return strings.TrimSpace(s[:j]), s[j+1:]
	}
	return strings.TrimSpace(s), ""
}
