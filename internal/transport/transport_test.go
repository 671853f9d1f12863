package transport

import (
	"bytes"
	"encoding/gob"
	"reflect"
	"testing"
)

// TestRawRecordGobRoundTrip exercises the exact codec Publish/Start use,
// without requiring a live NATS server.
func TestRawRecordGobRoundTrip(t *testing.T) {
	want := RawRecord{
		TimestampSec:  1700000000,
		TimestampNsec: 123456,
		LinkType:      1,
		Data:          []byte{0xde, 0xad, 0xbe, 0xef},
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(want); err != nil {
		t.Fatalf("encode: %v", err)
	}

	var got RawRecord
	if err := gob.NewDecoder(&buf).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if !reflect.DeepEqual(want, got) {
		t.Fatalf("round trip mismatch: want %+v, got %+v", want, got)
	}
}

func TestUndecodableBytesFailGobDecoding(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("not a gob record")

	var rec RawRecord
	err := gob.NewDecoder(&buf).Decode(&rec)
	if err == nil {
		t.Fatalf("expected garbage bytes to fail gob decoding")
	}
}
