package obd

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ParsePID extracts the data bytes from a mode 01 reply. The adapter answers
// a "01XX" request with "41 XX A B ..." (spaces optional, possibly spread
// over several lines when more than one ECU answers; the first matching line
// wins). want is the number of data bytes the command expects.
func ParsePID(reply, request string, want int) ([]byte, error) {
	if len(request) < 4 {
		return nil, fmt.Errorf("obd: malformed request %q", request)
	}
	// Mode 01 -> reply mode 41, mode 09 -> 49, etc.
	echo := "4" + request[1:2] + strings.ToUpper(request[2:4])

	for _, line := range strings.Split(reply, "\n") {
		h := hexOnly(line)
		i := strings.Index(h, echo)
		if i < 0 {
			continue
		}
		payload := h[i+len(echo):]
		if len(payload) < want*2 {
			continue
		}
		data, err := hex.DecodeString(payload[:want*2])
		if err != nil {
			continue
		}
		return data, nil
	}
	return nil, fmt.Errorf("obd: no %s payload in reply %q", echo, reply)
}

// hexOnly strips everything that is not a hex digit, including the "0:" line
// indices of multi-frame CAN replies.
func hexOnly(line string) string {
	if i := strings.Index(line, ":"); i >= 0 && i <= 2 {
		line = line[i+1:]
	}
	var b strings.Builder
	for _, r := range line {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'F':
			b.WriteRune(r)
		case r >= 'a' && r <= 'f':
			b.WriteRune(r + 'A' - 'a')
		}
	}
	return b.String()
}
