// Package resp implements the subset of the RESP2 wire format the server
// speaks: request arrays of bulk strings in, simple strings, bulk strings,
// integers, errors and empty arrays out.
package resp

import "strconv"

// Decode parses one request of the form
//
//	*<n>\r\n$<len>\r\n<bytes>\r\n ... (n elements)
//
// and returns its elements. Any malformed input yields nil. Bytes after the
// last element are ignored and nothing is buffered across calls.
func Decode(buf []byte) []string {
	if len(buf) == 0 || buf[0] != '*' {
		return nil
	}
	n, pos, ok := readCount(buf, 1)
	if !ok {
		return nil
	}
	// Each element takes at least 6 bytes ("$0\r\n\r\n"); reject counts
	// the buffer cannot hold before allocating.
	if n > (len(buf)-pos)/6 {
		return nil
	}

	args := make([]string, 0, n)
	for k := 0; k < n; k++ {
		if pos >= len(buf) || buf[pos] != '$' {
			return nil
		}
		size, next, ok := readCount(buf, pos+1)
		if !ok {
			return nil
		}
		if size > len(buf)-next-2 {
			return nil
		}
		end := next + size
		if buf[end] != '\r' || buf[end+1] != '\n' {
			return nil
		}
		args = append(args, string(buf[next:end]))
		pos = end + 2
	}
	return args
}

// readCount parses a non-negative decimal terminated by CRLF starting at
// buf[pos] and returns it with the offset just past the terminator.
func readCount(buf []byte, pos int) (int, int, bool) {
	start := pos
	n := 0
	for pos < len(buf) && buf[pos] >= '0' && buf[pos] <= '9' {
		if n > (maxCount-int(buf[pos]-'0'))/10 {
			return 0, 0, false
		}
		n = n*10 + int(buf[pos]-'0')
		pos++
	}
	if pos == start || pos+1 >= len(buf) || buf[pos] != '\r' || buf[pos+1] != '\n' {
		return 0, 0, false
	}
	return n, pos + 2, true
}

const maxCount = 1<<31 - 1

// SimpleString encodes s as a status reply ("+OK").
func SimpleString(s string) []byte {
	b := make([]byte, 0, len(s)+3)
	b = append(b, '+')
	b = append(b, s...)
	return append(b, '\r', '\n')
}

// BulkString encodes s as a length-prefixed string. The empty string is
// "$0\r\n\r\n" and stays distinct from Null.
func BulkString(s string) []byte {
	b := make([]byte, 0, len(s)+16)
	b = append(b, '$')
	b = strconv.AppendInt(b, int64(len(s)), 10)
	b = append(b, '\r', '\n')
	b = append(b, s...)
	return append(b, '\r', '\n')
}

// Null is the reply for a missing key.
func Null() []byte {
	return []byte("$-1\r\n")
}

// Integer encodes n as an integer reply.
func Integer(n int64) []byte {
	b := make([]byte, 0, 24)
	b = append(b, ':')
	b = strconv.AppendInt(b, n, 10)
	return append(b, '\r', '\n')
}

// Error encodes msg as "-ERR msg".
func Error(msg string) []byte {
	b := make([]byte, 0, len(msg)+7)
	b = append(b, "-ERR "...)
	b = append(b, msg...)
	return append(b, '\r', '\n')
}

// EmptyArray is the "*0" reply.
func EmptyArray() []byte {
	return []byte("*0\r\n")
}

// EncodeCommand builds a request array, the inverse of Decode.
func EncodeCommand(args ...string) []byte {
	size := 16
	for _, a := range args {
		size += len(a) + 16
	}
	b := make([]byte, 0, size)
	b = append(b, '*')
	b = strconv.AppendInt(b, int64(len(args)), 10)
	b = append(b, '\r', '\n')
	for _, a := range args {
		b = append(b, '$')
		b = strconv.AppendInt(b, int64(len(a)), 10)
		b = append(b, '\r', '\n')
		b = append(b, a...)
		b = append(b, '\r', '\n')
	}
	return b
}
