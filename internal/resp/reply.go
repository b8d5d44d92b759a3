package resp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Kind identifies the RESP type of a reply.
type Kind int

const (
	KindSimple Kind = iota
	KindBulk
	KindNull
	KindInteger
	KindError
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindSimple:
		return "simple"
	case KindBulk:
		return "bulk"
	case KindNull:
		return "null"
	case KindInteger:
		return "integer"
	case KindError:
		return "error"
	case KindArray:
		return "array"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Reply is one decoded server reply. Str holds the payload of simple,
// bulk and error replies (errors without the leading '-'), Int the value
// of integer replies and Elems the members of an array.
type Reply struct {
	Kind  Kind
	Str   string
	Int   int64
	Elems []Reply
}

// String renders the reply the way an interactive client shows it.
func (r Reply) String() string {
	switch r.Kind {
	case KindSimple:
		return r.Str
	case KindBulk:
		return strconv.Quote(r.Str)
	case KindNull:
		return "(nil)"
	case KindInteger:
		return "(integer) " + strconv.FormatInt(r.Int, 10)
	case KindError:
		return "(error) " + r.Str
	case KindArray:
		if len(r.Elems) == 0 {
			return "(empty array)"
		}
		var sb strings.Builder
		for i, e := range r.Elems {
			if i > 0 {
				sb.WriteByte('\n')
			}
			fmt.Fprintf(&sb, "%d) %s", i+1, e)
		}
		return sb.String()
	}
	return r.Kind.String()
}

// ErrProtocol reports a reply that does not follow the wire format.
var ErrProtocol = errors.New("resp: protocol error")

// maxBulk bounds the bulk length a client will allocate for.
const maxBulk = 512 << 20

// ReadReply reads exactly one reply from r.
func ReadReply(r *bufio.Reader) (Reply, error) {
	line, err := readLine(r)
	if err != nil {
		return Reply{}, err
	}
	if len(line) == 0 {
		return Reply{}, fmt.Errorf("%w: empty line", ErrProtocol)
	}

	payload := line[1:]
	switch line[0] {
	case '+':
		return Reply{Kind: KindSimple, Str: payload}, nil
	case '-':
		return Reply{Kind: KindError, Str: payload}, nil
	case ':':
		n, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			return Reply{}, fmt.Errorf("%w: bad integer %q", ErrProtocol, payload)
		}
		return Reply{Kind: KindInteger, Int: n}, nil
	case '$':
		n, err := strconv.Atoi(payload)
		if err != nil || n < -1 || n > maxBulk {
			return Reply{}, fmt.Errorf("%w: bad bulk length %q", ErrProtocol, payload)
		}
		if n == -1 {
			return Reply{Kind: KindNull}, nil
		}
		buf := make([]byte, n+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return Reply{}, err
		}
		if buf[n] != '\r' || buf[n+1] != '\n' {
			return Reply{}, fmt.Errorf("%w: bulk string not terminated", ErrProtocol)
		}
		return Reply{Kind: KindBulk, Str: string(buf[:n])}, nil
	case '*':
		n, err := strconv.Atoi(payload)
		if err != nil || n < -1 {
			return Reply{}, fmt.Errorf("%w: bad array length %q", ErrProtocol, payload)
		}
		if n == -1 {
			return Reply{Kind: KindNull}, nil
		}
		elems := make([]Reply, 0, min(n, 64))
		for k := 0; k < n; k++ {
			e, err := ReadReply(r)
			if err != nil {
				return Reply{}, err
			}
			elems = append(elems, e)
		}
		return Reply{Kind: KindArray, Elems: elems}, nil
	}
	return Reply{}, fmt.Errorf("%w: unknown type byte %q", ErrProtocol, line[0])
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return "", fmt.Errorf("%w: line not terminated by CRLF", ErrProtocol)
	}
	return line[:len(line)-2], nil
}
