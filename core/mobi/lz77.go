package mobi

import "fmt"

// decompressPalmDOC expands one PalmDOC LZ77 record.
func decompressPalmDOC(in []byte) ([]byte, error) {
	out := make([]byte, 0, len(in)*2)
	for i := 0; i < len(in); {
		c := in[i]
		i++
		switch {
		case c == 0 || (c >= 0x09 && c <= 0x7F):
			out = append(out, c)
		case c <= 0x08:
			n := int(c)
			if i+n > len(in) {
				return nil, fmt.Errorf("literal run past end of record")
			}
			out = append(out, in[i:i+n]...)
			i += n
		case c <= 0xBF:
			if i >= len(in) {
				return nil, fmt.Errorf("back reference past end of record")
			}
			pair := int(c)<<8 | int(in[i])
			i++
			dist := (pair >> 3) & 0x7FF
			n := pair&7 + 3
			if dist == 0 || dist > len(out) {
				return nil, fmt.Errorf("back reference distance %d out of range", dist)
			}
			for k := 0; k < n; k++ {
				out = append(out, out[len(out)-dist])
			}
		default:
			out = append(out, ' ', c^0x80)
		}
	}
	return out, nil
}
