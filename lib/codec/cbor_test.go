// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
	"time"
)

// sampleManifest is representative of the structures hoard embeds in
// store metadata: scalars, a timestamp, and a map.
type sampleManifest struct {
	CreatedAt   time.Time        `cbor:"created_at"`
	Codec       string           `cbor:"codec"`
	ObjectCount int64            `cbor:"object_count"`
	Groups      map[string]int64 `cbor:"groups,omitempty"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleManifest{
		CreatedAt:   time.Date(2026, 2, 9, 12, 30, 0, 0, time.UTC),
		Codec:       "zstd",
		ObjectCount: 1042,
		Groups:      map[string]int64{"prices": 730, "trades": 312},
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Marshal produced empty output")
	}

	var decoded sampleManifest
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if !decoded.CreatedAt.Equal(original.CreatedAt) {
		t.Errorf("CreatedAt: got %v, want %v", decoded.CreatedAt, original.CreatedAt)
	}
	if decoded.Codec != original.Codec {
		t.Errorf("Codec: got %q, want %q", decoded.Codec, original.Codec)
	}
	if decoded.ObjectCount != original.ObjectCount {
		t.Errorf("ObjectCount: got %d, want %d", decoded.ObjectCount, original.ObjectCount)
	}
	if len(decoded.Groups) != len(original.Groups) {
		t.Fatalf("Groups: got %d entries, want %d", len(decoded.Groups), len(original.Groups))
	}
	for key, want := range original.Groups {
		if decoded.Groups[key] != want {
			t.Errorf("Groups[%q]: got %d, want %d", key, decoded.Groups[key], want)
		}
	}
}

func TestMarshalDeterministic(t *testing.T) {
	// Map iteration order varies between marshals; deterministic
	// encoding must still produce identical bytes.
	manifest := sampleManifest{
		Codec:       "gzip",
		ObjectCount: 7,
		Groups: map[string]int64{
			"a": 1, "b": 2, "c": 3, "d": 4, "e": 5,
			"f": 6, "g": 7, "h": 8, "i": 9, "j": 10,
		},
	}

	first, err := Marshal(manifest)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	second, err := Marshal(manifest)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x != %x", first, second)
	}
}

func TestOmitemptyRespected(t *testing.T) {
	withGroups := sampleManifest{Codec: "zstd", ObjectCount: 1, Groups: map[string]int64{"x": 1}}
	withoutGroups := sampleManifest{Codec: "zstd", ObjectCount: 1}

	dataWith, err := Marshal(withGroups)
	if err != nil {
		t.Fatal(err)
	}
	dataWithout, err := Marshal(withoutGroups)
	if err != nil {
		t.Fatal(err)
	}

	// The encoding without groups should be shorter because the
	// omitted field is not present.
	if len(dataWithout) >= len(dataWith) {
		t.Errorf("omitempty not effective: without=%d bytes, with=%d bytes",
			len(dataWithout), len(dataWith))
	}
}

func TestUnknownFieldsIgnored(t *testing.T) {
	// A newer build may add manifest fields. Older builds must still
	// decode the fields they know.
	type extendedManifest struct {
		Codec       string `cbor:"codec"`
		ObjectCount int64  `cbor:"object_count"`
		Extra       string `cbor:"extra_field"`
	}

	data, err := Marshal(extendedManifest{Codec: "lz4", ObjectCount: 3, Extra: "future"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleManifest
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal with unknown field: %v", err)
	}
	if decoded.Codec != "lz4" || decoded.ObjectCount != 3 {
		t.Errorf("got codec=%q count=%d, want lz4/3", decoded.Codec, decoded.ObjectCount)
	}
}

func TestUnmarshalInvalidCBOR(t *testing.T) {
	var manifest sampleManifest
	err := Unmarshal([]byte{0xFF, 0xFE, 0xFD}, &manifest)
	if err == nil {
		t.Error("Unmarshal should reject invalid CBOR")
	}
}

func TestByteStringRoundtrip(t *testing.T) {
	// []byte fields must encode as CBOR byte strings (major type 2),
	// not text strings.
	type envelope struct {
		Payload []byte `cbor:"payload"`
	}

	original := envelope{Payload: []byte{0x00, 0x01, 0xFE, 0xFF}}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded envelope
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if !bytes.Equal(decoded.Payload, original.Payload) {
		t.Errorf("byte string roundtrip: got %x, want %x", decoded.Payload, original.Payload)
	}
}
