package semantic

import "strings"

// ParseHeaderDictionary scans a raw "Name: Value" block into a map.
// Lines end with LF or CRLF. The last value of a repeated name wins,
// and pairs with an empty name or value are dropped.
//
// Every colon is a separator and is dropped along with a single space
// right after it. A bare CR discards the rest of its line.
// Folded lines and quoted values are not understood.
func ParseHeaderDictionary(block string) map[string]string {
	dict := make(map[string]string)

	var (
		key, value []byte
		inValue    bool
		afterColon bool
		afterCR    bool
	)

	commit := func() {
		if len(key) > 0 && len(value) > 0 {
			dict[string(key)] = string(value)
		}
		key, value = key[:0], value[:0]
		inValue = false
	}

	for i := 0; i < len(block); i++ {
		ch := block[i]
		switch {
		case ch == ':':
			inValue = true
			afterColon = true
			continue
		case ch == '\r':
			afterCR = true
		case ch == '\n' && afterCR:
			afterCR = false
			continue
		case ch == '\n':
			afterCR = true
		}

		if afterCR {
			commit()
			if ch == '\n' {
				afterCR = false
			}
			continue
		}

		if !inValue {
			key = append(key, ch)
			continue
		}

		if afterColon {
			afterColon = false
			if ch == ' ' {
				continue
			}
		}
		value = append(value, ch)
	}

	commit()

	return dict
}

// ContentType looks up Content-Type in dict case-insensitively, trying the
// canonical and lower-case spellings first.
func ContentType(dict map[string]string) string {
	if v, ok := dict["Content-Type"]; ok {
		return v
	}
	if v, ok := dict["content-type"]; ok {
		return v
	}
	for k, v := range dict {
		if strings.EqualFold(k, "Content-Type") {
			return v
		}
	}
	return ""
}
