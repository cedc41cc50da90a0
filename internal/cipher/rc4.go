// Package cipher implements the password encoding used by the gateway's
// browser login script: RC4 keyed by the auth tag, rendered as lowercase hex.
package cipher

const hexDigits = "0123456789abcdef"

// Encrypt runs the RC4 key schedule over key and XORs plaintext with the
// resulting keystream, returning two lowercase hex digits per input byte.
// The gateway recomputes the same ciphertext from the auth tag, so the
// index arithmetic must stay byte-for-byte identical. key must not be empty.
func Encrypt(plaintext, key string) string {
	if len(key) == 0 {
		panic("cipher: empty key")
	}
	if len(plaintext) == 0 {
		return ""
	}

	var s [256]byte
	for i := range s {
		s[i] = byte(i)
	}

	// Key scheduling. byte arithmetic wraps, which is the mod 256.
	var j byte
	for i := 0; i < 256; i++ {
		j += s[i] + key[i%len(key)]
		s[i], s[j] = s[j], s[i]
	}

	out := make([]byte, 2*len(plaintext))
	var a, b byte
	for n := 0; n < len(plaintext); n++ {
		a++
		b += s[a]
		s[a], s[b] = s[b], s[a]
		k := s[s[a]+s[b]]

		c := plaintext[n] ^ k
		out[2*n] = hexDigits[c>>4]
		out[2*n+1] = hexDigits[c&0x0f]
	}
	return string(out)
}
