package cmn

// EncodeBinary transcodes raw bytes into a string in which every byte
// round-trips exactly, one byte per rune in the Latin-1 range (U+0000 to
// U+00FF). This is the only 1:1 octet-preserving transcoding available for a
// string-typed scripting channel: UTF-8 or base64 would both be "smarter"
// encodings, and both would violate I6 (byte payloads round-trip exactly) —
// base64 by construction, UTF-8 because not every byte sequence is valid
// UTF-8, so re-encoding would have to either reject or mutate bytes.
func EncodeBinary(b []byte) string {
	rs := make([]rune, len(b))
	for i, c := range b {
		rs[i] = rune(c)
	}
	return string(rs)
}

// DecodeBinary is the inverse of EncodeBinary.
func DecodeBinary(s string) []byte {
	rs := []rune(s)
	b := make([]byte, len(rs))
	for i, r := range rs {
		b[i] = byte(r)
	}
	return b
}
