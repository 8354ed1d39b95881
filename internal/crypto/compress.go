package crypto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression: алгоритм сжатия открытого текста внутри чанка.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// CompressionFor подбирает сжатие по Content-Type: текстовые форматы — zstd,
// уже сжатые медиа и архивы — без сжатия, всё остальное — lz4.
func CompressionFor(contentType string) Compression {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch {
	case strings.HasPrefix(ct, "text/"),
		ct == "application/json", ct == "application/x-ndjson",
		ct == "application/xml", ct == "application/javascript",
		ct == "application/sql", ct == "application/yaml",
		ct == "application/x-yaml":
		return CompressionZstd
	case strings.HasPrefix(ct, "image/"), strings.HasPrefix(ct, "video/"),
		strings.HasPrefix(ct, "audio/"),
		ct == "application/zip", ct == "application/gzip", ct == "application/x-gzip",
		ct == "application/zstd", ct == "application/x-7z-compressed",
		ct == "application/x-rar-compressed", ct == "application/x-xz",
		ct == "application/pdf":
		return CompressionNone
	default:
		return CompressionLZ4
	}
}

// chunkHeaderSize: тег сжатия + длина исходных данных.
const chunkHeaderSize = 1 + 4

var errIncompressible = errors.New("data is incompressible")

// zstd.Encoder/Decoder безопасны для конкурентного использования.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("crypto: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("crypto: zstd decoder initialization failed: " + err.Error())
	}
}

// packChunk собирает открытый текст чанка: [тег][длина исходных данных][payload].
// Если сжатие не уменьшает данные, чанк хранится как есть.
func packChunk(raw []byte, c Compression) ([]byte, error) {
	payload, tag, err := compressChunk(raw, c)
	if err != nil {
		return nil, err
	}
	out := make([]byte, chunkHeaderSize+len(payload))
	out[0] = byte(tag)
	binary.BigEndian.PutUint32(out[1:5], uint32(len(raw)))
	copy(out[chunkHeaderSize:], payload)
	return out, nil
}

// unpackChunk разбирает открытый текст чанка и проверяет границы.
func unpackChunk(plain []byte, maxRaw int) ([]byte, error) {
	if len(plain) < chunkHeaderSize {
		return nil, errors.New("chunk too short")
	}
	tag := Compression(plain[0])
	rawLen := int(binary.BigEndian.Uint32(plain[1:5]))
	if rawLen > maxRaw {
		return nil, fmt.Errorf("chunk declares %d bytes, limit %d", rawLen, maxRaw)
	}
	payload := plain[chunkHeaderSize:]

	switch tag {
	case CompressionNone:
		if len(payload) != rawLen {
			return nil, fmt.Errorf("raw chunk length %d, expected %d", len(payload), rawLen)
		}
		return payload, nil
	case CompressionZstd:
		out, err := zstdDecoder.DecodeAll(payload, make([]byte, 0, rawLen))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(out) != rawLen {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), rawLen)
		}
		return out, nil
	case CompressionLZ4:
		out := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if n != rawLen {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", n, rawLen)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", uint8(tag))
	}
}

func compressChunk(raw []byte, c Compression) ([]byte, Compression, error) {
	if len(raw) == 0 || c == CompressionNone {
		return raw, CompressionNone, nil
	}
	var (
		out []byte
		err error
	)
	switch c {
	case CompressionZstd:
		out, err = compressZstd(raw)
	case CompressionLZ4:
		out, err = compressLZ4(raw)
	default:
		return nil, 0, fmt.Errorf("unsupported compression: %s", c)
	}
	if errors.Is(err, errIncompressible) {
		return raw, CompressionNone, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return out, c, nil
}

func compressZstd(data []byte) ([]byte, error) {
	out := zstdEncoder.EncodeAll(data, nil)
	if len(out) >= len(data) {
		return nil, errIncompressible
	}
	return out, nil
}

func compressLZ4(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// 0 — lz4 счёл данные несжимаемыми
	if n == 0 || n >= len(data) {
		return nil, errIncompressible
	}
	return dst[:n], nil
}
