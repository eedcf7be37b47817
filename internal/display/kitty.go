package display

import (
	"encoding/base64"
	"fmt"
	"io"
)

// Kitty graphics protocol: APC _G <params> ; <base64 payload> ST, with
// payloads over 4096 bytes split across continuation chunks (m=1 until the
// final chunk's m=0). f=100 marks the payload as PNG.
const (
	escapeStart = "\x1b_G"
	escapeEnd   = "\x1b\\"
	chunkSize   = 4096
)

func encodeInline(out io.Writer, png []byte) error {
	if len(png) == 0 {
		return nil
	}

	encoded := base64.StdEncoding.EncodeToString(png)
	if len(encoded) <= chunkSize {
		_, err := fmt.Fprintf(out, "%sa=T,f=100,q=2;%s%s", escapeStart, encoded, escapeEnd)
		return err
	}

	for first := true; len(encoded) > 0; first = false {
		n := chunkSize
		if n > len(encoded) {
			n = len(encoded)
		}
		chunk, rest := encoded[:n], encoded[n:]

		var params string
		switch {
		case first:
			params = "a=T,f=100,q=2,m=1"
		case len(rest) == 0:
			params = "m=0"
		default:
			params = "m=1"
		}

		if _, err := fmt.Fprintf(out, "%s%s;%s%s", escapeStart, params, chunk, escapeEnd); err != nil {
			return err
		}
		encoded = rest
	}
	return nil
}
