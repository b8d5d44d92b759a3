package bolt

import (
	"errors"

	"google.golang.org/protobuf/encoding/protowire"

	"blinkdb/internal/store"
)

// Records are stored as a protobuf message
//
//	message Record { string key = 1; string value = 2; }
//
// encoded by hand with protowire; unknown fields are skipped so the
// layout can grow.
const (
	fieldKey   protowire.Number = 1
	fieldValue protowire.Number = 2
)

var errMissingKey = errors.New("record has no key")

func encodeRecord(rec store.Record) []byte {
	b := make([]byte, 0, len(rec.Key)+len(rec.Value)+8)
	b = protowire.AppendTag(b, fieldKey, protowire.BytesType)
	b = protowire.AppendString(b, rec.Key)
	b = protowire.AppendTag(b, fieldValue, protowire.BytesType)
	b = protowire.AppendString(b, rec.Value)
	return b
}

func decodeRecord(b []byte) (store.Record, error) {
	var (
		rec    store.Record
		hasKey bool
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return store.Record{}, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == fieldKey && typ == protowire.BytesType:
			rec.Key, n = protowire.ConsumeString(b)
			hasKey = true
		case num == fieldValue && typ == protowire.BytesType:
			rec.Value, n = protowire.ConsumeString(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return store.Record{}, protowire.ParseError(n)
		}
		b = b[n:]
	}
	if !hasKey {
		return store.Record{}, errMissingKey
	}
	return rec, nil
}
