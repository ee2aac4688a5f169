package channel

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// ErrNotConnected is returned by Send and friends before Start has connected.
var ErrNotConnected = errors.New("channel not connected")

// splitMessage splits a message into chunks that fit within the max length,
// trying to split on newlines when possible. Chunks never cut a UTF-8 sequence.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}

		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		if cut == 0 {
			cut = maxLen
		}

		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}
