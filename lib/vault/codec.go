// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec identifies the compression algorithm applied to object
// payloads. A store uses a single codec for all compressed objects;
// the codec name is recorded in the store's metadata table the first
// time a compressed object is written. The numeric values here are
// in-memory only and never persisted.
type Codec uint8

const (
	// CodecNone indicates uncompressed payloads. Also used per-object
	// for incompressible content (already-compressed formats like PNG
	// or zip archives) regardless of the store codec.
	CodecNone Codec = 0

	// CodecGzip indicates gzip compression at the default level.
	// Broadly compatible — payloads can be inspected with standard
	// tooling after extraction from the database.
	CodecGzip Codec = 1

	// CodecZstd indicates zstd compression at level 3. Better ratios
	// than gzip for text, CSV, JSON, and logs at a fraction of the
	// decode cost (~3-5x ratio, ~1.5 GB/s decode).
	CodecZstd Codec = 2

	// CodecLZ4 indicates LZ4 block compression. Fast default for
	// binary data (~1.5-2x ratio, ~4 GB/s decode) when decode speed
	// matters more than ratio.
	CodecLZ4 Codec = 3
)

// String returns the human-readable name of a codec. This is the form
// persisted in store metadata.
func (codec Codec) String() string {
	switch codec {
	case CodecNone:
		return "none"
	case CodecGzip:
		return "gzip"
	case CodecZstd:
		return "zstd"
	case CodecLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(codec))
	}
}

// ParseCodec parses a codec from its string representation.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "none":
		return CodecNone, nil
	case "gzip":
		return CodecGzip, nil
	case "zstd":
		return CodecZstd, nil
	case "lz4":
		return CodecLZ4, nil
	default:
		return 0, fmt.Errorf("unknown codec: %q", name)
	}
}

// Compress compresses data using the specified codec. Returns the
// compressed bytes. For CodecNone, returns the input unchanged (no
// copy). Returns an incompressible error when the compressed output
// would not be smaller than the input; the caller should store the
// original bytes uncompressed.
func Compress(data []byte, codec Codec) ([]byte, error) {
	switch codec {
	case CodecNone:
		return data, nil

	case CodecGzip:
		return compressGzip(data)

	case CodecZstd:
		return compressZstd(data)

	case CodecLZ4:
		return compressLZ4(data)

	default:
		return nil, fmt.Errorf("unsupported codec: %d", codec)
	}
}

// Decompress decompresses a payload that was compressed with the
// specified codec. The originalSize must match the original data
// length exactly — this is verified and a mismatch returns an error,
// so a truncated or corrupted payload never silently round-trips.
func Decompress(compressed []byte, codec Codec, originalSize int) ([]byte, error) {
	switch codec {
	case CodecNone:
		if len(compressed) != originalSize {
			return nil, fmt.Errorf("uncompressed payload: size %d does not match expected %d",
				len(compressed), originalSize)
		}
		return compressed, nil

	case CodecGzip:
		return decompressGzip(compressed, originalSize)

	case CodecZstd:
		return decompressZstd(compressed, originalSize)

	case CodecLZ4:
		return decompressLZ4(compressed, originalSize)

	default:
		return nil, fmt.Errorf("unsupported codec: %d", codec)
	}
}

// Gzip compression: default level, stream format.

func compressGzip(data []byte) ([]byte, error) {
	var buffer bytes.Buffer
	writer := gzip.NewWriter(&buffer)
	if _, err := writer.Write(data); err != nil {
		return nil, fmt.Errorf("gzip compress: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("gzip compress: %w", err)
	}
	if buffer.Len() >= len(data) {
		return nil, errIncompressible
	}
	return buffer.Bytes(), nil
}

func decompressGzip(compressed []byte, originalSize int) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("gzip decompress: %w", err)
	}
	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("gzip decompress: %w", err)
	}
	if err := reader.Close(); err != nil {
		return nil, fmt.Errorf("gzip decompress: %w", err)
	}
	if len(decompressed) != originalSize {
		return nil, fmt.Errorf("gzip decompress: got %d bytes, expected %d", len(decompressed), originalSize)
	}
	return decompressed, nil
}

// Zstd compression: level 3 (the "default" level — good ratio without
// excessive CPU).

// zstdEncoder and zstdDecoder are reused across calls to avoid
// repeated initialization overhead. zstd.Encoder and zstd.Decoder are
// safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("vault: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("vault: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, originalSize int) ([]byte, error) {
	destination := make([]byte, 0, originalSize)
	result, err := zstdDecoder.DecodeAll(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != originalSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), originalSize)
	}
	return result, nil
}

// LZ4 compression: block-mode LZ4. The block carries no length header,
// so decompression relies on the original_size column.

func compressLZ4(data []byte) ([]byte, error) {
	// CompressBlockBound returns the maximum compressed size.
	bound := lz4.CompressBlockBound(len(data))
	destination := make([]byte, bound)

	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}

	// CompressBlock returns 0 when it determines the data is
	// incompressible. We also check whether the compressed output is
	// actually smaller than the input — if not, compression is not
	// worthwhile.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}

	return destination[:written], nil
}

func decompressLZ4(compressed []byte, originalSize int) ([]byte, error) {
	destination := make([]byte, originalSize)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != originalSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, originalSize)
	}
	return destination, nil
}

// errIncompressible is returned by compression functions when the
// compressed output is not smaller than the input. The caller should
// fall back to storing the original bytes with is_compressed unset.
var errIncompressible = fmt.Errorf("data is incompressible")

// IsIncompressible returns true if the error indicates that data could
// not be compressed smaller than its original size.
func IsIncompressible(err error) bool {
	return err == errIncompressible
}
