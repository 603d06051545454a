package codec

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type profile struct {
	ID      string    `json:"id" cbor:"id" msgpack:"id"`
	Name    string    `json:"name" cbor:"name" msgpack:"name"`
	Tags    []string  `json:"tags" cbor:"tags" msgpack:"tags"`
	Updated time.Time `json:"updated" cbor:"updated" msgpack:"updated"`
}

func roundTrip[V any](t *testing.T, name string, c Codec[V], v V, eq func(a, b V) bool) {
	t.Helper()
	b, err := c.Encode(v)
	if err != nil {
		t.Fatalf("%s Encode: %v", name, err)
	}
	got, err := c.Decode(b)
	if err != nil {
		t.Fatalf("%s Decode: %v", name, err)
	}
	if !eq(got, v) {
		t.Fatalf("%s round trip mismatch: got %+v want %+v", name, got, v)
	}
}

func sameProfile(a, b profile) bool {
	if a.ID != b.ID || a.Name != b.Name || !a.Updated.Equal(b.Updated) || len(a.Tags) != len(b.Tags) {
		return false
	}
	for i := range a.Tags {
		if a.Tags[i] != b.Tags[i] {
			return false
		}
	}
	return true
}

func TestStructCodecs(t *testing.T) {
	v := profile{ID: "1", Name: "Ada", Tags: []string{"x", "y"}, Updated: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	roundTrip[profile](t, "json", JSON[profile]{}, v, sameProfile)
	roundTrip[profile](t, "cbor", MustCBOR[profile](false), v, sameProfile)
	roundTrip[profile](t, "cbor-det", MustCBOR[profile](true), v, sameProfile)
	roundTrip[profile](t, "msgpack", Msgpack[profile]{}, v, sameProfile)
}

func TestDeterministicCBOR(t *testing.T) {
	c := MustCBOR[map[string]int](true)
	a, err := c.Encode(map[string]int{"b": 2, "a": 1, "c": 3})
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Encode(map[string]int{"c": 3, "a": 1, "b": 2})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("deterministic CBOR produced different bytes")
	}
}

func TestProtobuf(t *testing.T) {
	c := NewProtobuf(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} })
	roundTrip[*wrapperspb.StringValue](t, "protobuf", c, wrapperspb.String("hello"),
		func(a, b *wrapperspb.StringValue) bool { return proto.Equal(a, b) })

	var empty Protobuf[*wrapperspb.StringValue]
	if _, err := empty.Decode(nil); err == nil {
		t.Fatalf("expected error without constructor")
	}
}

func TestRawCodecs(t *testing.T) {
	roundTrip[[]byte](t, "bytes", Bytes{}, []byte{0, 1, 2}, bytes.Equal)
	roundTrip[string](t, "string", String{}, "héllo", func(a, b string) bool { return a == b })
}

func TestDecodeGarbage(t *testing.T) {
	if _, err := (JSON[profile]{}).Decode([]byte("{not json")); err == nil {
		t.Fatalf("json: expected error")
	}
	if _, err := (Msgpack[profile]{}).Decode([]byte{0xc1}); err == nil {
		t.Fatalf("msgpack: expected error")
	}
	if _, err := MustCBOR[profile](false).Decode([]byte{0xff, 0xff}); err == nil {
		t.Fatalf("cbor: expected error")
	}
}

func TestCBORRejectsDuplicateKeys(t *testing.T) {
	// {"a": 1, "a": 2}
	raw := []byte{0xa2, 0x61, 'a', 0x01, 0x61, 'a', 0x02}
	if _, err := MustCBOR[map[string]int](false).Decode(raw); err == nil {
		t.Fatalf("expected duplicate key error")
	}
}

func TestLimit(t *testing.T) {
	c := Limit[string]{Inner: String{}, MaxEncode: 4, MaxDecode: 3}
	if _, err := c.Encode("hello"); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Encode: got %v want ErrTooLarge", err)
	}
	if _, err := c.Decode([]byte("abcd")); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Decode: got %v want ErrTooLarge", err)
	}
	b, err := c.Encode("abc")
	if err != nil {
		t.Fatalf("Encode within limit: %v", err)
	}
	if s, err := c.Decode(b); err != nil || s != "abc" {
		t.Fatalf("Decode within limit: %q %v", s, err)
	}

	open := Limit[string]{Inner: String{}}
	if _, err := open.Decode(bytes.Repeat([]byte("x"), 1<<16)); err != nil {
		t.Fatalf("disabled limit rejected: %v", err)
	}
}
