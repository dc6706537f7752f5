package order

import "fmt"

// codeSpace is the number of distinct codes before the letter odometer wraps.
const codeSpace = 26 * 26 * 26 * 1000

// EncodeCode turns an order sequence number into a human-readable code: three
// base-26 letters followed by the sequence modulo 1000, zero-padded.
//
//	0 -> #AAA000, 999 -> #AAA999, 1000 -> #AAB000
//
// Distinct n below codeSpace always yield distinct codes.
func EncodeCode(n int64) string {
	if n < 0 {
		n = -n
	}
	n %= codeSpace
	letters := n / 1000
	var b [3]byte
	for i := len(b) - 1; i >= 0; i-- {
		b[i] = 'A' + byte(letters%26)
		letters /= 26
	}
	return fmt.Sprintf("#%s%03d", b[:], n%1000)
}
