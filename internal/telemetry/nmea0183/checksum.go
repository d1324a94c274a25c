// Package nmea0183 renders anemometer readings as NMEA-0183 sentences.
//
// A sentence is "$" + body + "*" + checksum, where the body is the talker
// and sentence identifier followed by comma separated fields, and the
// checksum is the XOR of all body bytes as two uppercase hex digits.
package nmea0183

import (
	"fmt"
	"strings"
)

// Checksum returns the XOR of every byte of body as two uppercase hex digits.
// A leading "$" and anything from "*" on are ignored, so a full sentence
// yields the same value as its body.
func Checksum(body string) string {
	body = strings.TrimPrefix(body, "$")
	if i := strings.IndexByte(body, '*'); i >= 0 {
		body = body[:i]
	}
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return fmt.Sprintf("%02X", sum)
}

// Valid reports whether a rendered sentence carries the correct checksum.
func Valid(sentence string) bool {
	sentence = strings.TrimRight(sentence, "\r\n")
	i := strings.LastIndexByte(sentence, '*')
	if !strings.HasPrefix(sentence, "$") || i < 0 || len(sentence)-i != 3 {
		return false
	}
	return strings.EqualFold(sentence[i+1:], Checksum(sentence[:i]))
}
