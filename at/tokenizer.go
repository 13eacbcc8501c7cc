package at

import (
	"bufio"
	"bytes"
	"strings"
)

// Splitter is used for tokenizing AT command modem responses. It uses
// the signature of bufio.SplitFunc so it can be directly used with bufio.Scanner.
//
// It splits the input by CRLF line endings. A bare CR also ends a line so
// that command echoes ("AT+GSN\r") come out as their own token.
//
// The atEOF parameter indicates whether any more data will be available.
// When true, any remaining data is returned as the final token.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexByte(data, '\r'); i >= 0 {
		if i+1 < len(data) && data[i+1] == '\n' {
			return i + len(CRLF), data[0:i], nil
		}
		if i+1 < len(data) || atEOF {
			return i + 1, data[0:i], nil
		}
		// Need one more byte to tell CR from CRLF
		return 0, nil, nil
	}

	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, data[0:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = Splitter

// Classify identifies the nature of the modem output
func Classify(line string) ResponseType {
	// Direct matches for final results
	switch line {
	case OK, ERROR, NoCarrier, NoDialtone, Busy, NoAnswer:
		return TypeFinal
	}

	// Prefix matches
	switch {
	case strings.HasPrefix(line, CmeError), strings.HasPrefix(line, Connect):
		return TypeFinal
	case strings.HasPrefix(line, UrcTimeZone), line == UrcCall:
		return TypeURC
	case strings.HasPrefix(strings.ToUpper(line), "AT"):
		return TypeEcho
	default:
		return TypeData
	}
}

// Lines tokenizes a complete response and returns the intermediate
// data lines, dropping blanks, echoes, URCs and final result codes.
func Lines(response string) []string {
	scanner := bufio.NewScanner(strings.NewReader(response))
	scanner.Split(Splitter)

	var lines []string
	for scanner.Scan() {
		token := strings.TrimSpace(scanner.Text())
		if token == "" {
			continue
		}
		if Classify(token) == TypeData {
			lines = append(lines, token)
		}
	}
	return lines
}
