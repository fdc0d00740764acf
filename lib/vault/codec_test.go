// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"
)

// compressibleData returns repetitive text that every codec can
// shrink.
func compressibleData() []byte {
	return []byte(strings.Repeat("date,open,high,low,close,volume\n2024-01-01,1.0,2.0,0.5,1.5,1000\n", 200))
}

// incompressibleData returns pseudo-random bytes that no codec can
// shrink. Seeded so failures reproduce.
func incompressibleData(size int) []byte {
	generator := rand.New(rand.NewSource(42))
	data := make([]byte, size)
	generator.Read(data)
	return data
}

func TestCodecStringRoundtrip(t *testing.T) {
	codecs := []Codec{CodecNone, CodecGzip, CodecZstd, CodecLZ4}

	for _, codec := range codecs {
		t.Run(codec.String(), func(t *testing.T) {
			parsed, err := ParseCodec(codec.String())
			if err != nil {
				t.Fatalf("ParseCodec(%q): %v", codec.String(), err)
			}
			if parsed != codec {
				t.Errorf("roundtrip: got %v, want %v", parsed, codec)
			}
		})
	}
}

func TestParseCodecUnknown(t *testing.T) {
	if _, err := ParseCodec("brotli"); err == nil {
		t.Error("ParseCodec accepted an unknown codec name")
	}
	if _, err := ParseCodec(""); err == nil {
		t.Error("ParseCodec accepted an empty codec name")
	}
}

func TestCodecUnknownString(t *testing.T) {
	unknown := Codec(200)
	if got := unknown.String(); got != "unknown(200)" {
		t.Errorf("String() = %q, want unknown(200)", got)
	}
}

func TestCompressDecompressRoundtrip(t *testing.T) {
	data := compressibleData()
	codecs := []Codec{CodecGzip, CodecZstd, CodecLZ4}

	for _, codec := range codecs {
		t.Run(codec.String(), func(t *testing.T) {
			compressed, err := Compress(data, codec)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}
			if len(compressed) >= len(data) {
				t.Errorf("compressed %d bytes to %d; expected reduction", len(data), len(compressed))
			}

			decompressed, err := Decompress(compressed, codec, len(data))
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if !bytes.Equal(decompressed, data) {
				t.Error("roundtrip did not reproduce the original bytes")
			}
		})
	}
}

func TestCompressNonePassthrough(t *testing.T) {
	data := []byte("unchanged")

	result, err := Compress(data, CodecNone)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if &result[0] != &data[0] {
		t.Error("CodecNone should return the input without copying")
	}

	back, err := Decompress(result, CodecNone, len(data))
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(back, data) {
		t.Error("CodecNone roundtrip mismatch")
	}
}

func TestCompressIncompressible(t *testing.T) {
	data := incompressibleData(4096)
	codecs := []Codec{CodecGzip, CodecZstd, CodecLZ4}

	for _, codec := range codecs {
		t.Run(codec.String(), func(t *testing.T) {
			_, err := Compress(data, codec)
			if err == nil {
				t.Fatal("Compress succeeded on incompressible data")
			}
			if !IsIncompressible(err) {
				t.Errorf("error is not the incompressible sentinel: %v", err)
			}
		})
	}
}

func TestCompressEmptyInput(t *testing.T) {
	// Compression headers make any encoding of zero bytes larger
	// than zero bytes, so empty input reports incompressible and is
	// stored raw.
	for _, codec := range []Codec{CodecGzip, CodecZstd, CodecLZ4} {
		t.Run(codec.String(), func(t *testing.T) {
			_, err := Compress(nil, codec)
			if !IsIncompressible(err) {
				t.Errorf("empty input: got %v, want incompressible", err)
			}
		})
	}
}

func TestDecompressSizeMismatch(t *testing.T) {
	data := compressibleData()
	codecs := []Codec{CodecGzip, CodecZstd, CodecLZ4}

	for _, codec := range codecs {
		t.Run(codec.String(), func(t *testing.T) {
			compressed, err := Compress(data, codec)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}

			// A wrong expected size must be detected, not silently
			// returned.
			if _, err := Decompress(compressed, codec, len(data)-1); err == nil {
				t.Error("Decompress accepted a wrong expected size")
			}
		})
	}
}

func TestDecompressCorruptPayload(t *testing.T) {
	data := compressibleData()
	codecs := []Codec{CodecGzip, CodecZstd, CodecLZ4}

	for _, codec := range codecs {
		t.Run(codec.String(), func(t *testing.T) {
			compressed, err := Compress(data, codec)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}

			corrupted := make([]byte, len(compressed)/2)
			copy(corrupted, compressed)

			if _, err := Decompress(corrupted, codec, len(data)); err == nil {
				t.Error("Decompress accepted a truncated payload")
			}
		})
	}
}

func TestDecompressNoneSizeMismatch(t *testing.T) {
	if _, err := Decompress([]byte("abc"), CodecNone, 5); err == nil {
		t.Error("CodecNone Decompress accepted a wrong expected size")
	}
}

func TestCompressUnsupportedCodec(t *testing.T) {
	if _, err := Compress([]byte("x"), Codec(99)); err == nil {
		t.Error("Compress accepted an unsupported codec")
	}
	if _, err := Decompress([]byte("x"), Codec(99), 1); err == nil {
		t.Error("Decompress accepted an unsupported codec")
	}
}
