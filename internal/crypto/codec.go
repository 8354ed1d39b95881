// Package crypto: потоковое аутентифицированное шифрование блобов под
// секретом артефакта.
//
// Формат блоба:
//
//	"SDB1" | uint16 длина заголовка | CBOR-заголовок | чанк...
//	чанк:  uint32 длина sealed | nonce (24 байта) | sealed
//
// Каждый чанк запечатан XChaCha20-Poly1305, ключ выводится через
// HKDF-SHA256(secret, salt). AAD чанка — blake3(заголовок) | номер | флаг
// последнего чанка, поэтому перестановка, обрезка, подмена заголовка и
// мусор в хвосте дают ErrDecryption.
package crypto

import (
	"bufio"
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// ErrDecryption: блоб повреждён, подменён, обрезан или ключ не подходит.
var ErrDecryption = errors.New("decryption failed")

// ErrEmptyKey: попытка шифровать пустым секретом.
var ErrEmptyKey = errors.New("empty key")

const (
	formatVersion = 1
	saltSize      = 16
	keySize       = chacha20poly1305.KeySize
	nonceSize     = chacha20poly1305.NonceSizeX

	// DefaultChunkSize: размер чанка открытого текста по умолчанию.
	DefaultChunkSize = 64 * 1024
	minChunkSize     = 1024
	maxChunkSize     = 4 * 1024 * 1024
	maxHeaderSize    = 1024

	kdfInfo = "securedrop.blob.v1"
)

var magic = [4]byte{'S', 'D', 'B', '1'}

// Options: параметры шифрования.
type Options struct {
	ChunkSize   int
	Compression Compression
}

// Stats: итоги прохода по потоку.
type Stats struct {
	// Plaintext: количество байт открытого текста
	Plaintext int64
	// Ciphertext: количество байт блоба
	Ciphertext int64
	// Digest: blake3 открытого текста (hex)
	Digest string
}

type header struct {
	Version     uint8  `cbor:"1,keyasint"`
	Salt        []byte `cbor:"2,keyasint"`
	ChunkSize   uint32 `cbor:"3,keyasint"`
	Compression uint8  `cbor:"4,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("crypto: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{MaxArrayElements: 16, MaxMapPairs: 16}.DecMode()
	if err != nil {
		panic("crypto: CBOR decoder initialization failed: " + err.Error())
	}
}

// Encrypt читает открытый текст из src и пишет блоб в dst.
func Encrypt(dst io.Writer, src io.Reader, key []byte, opts Options) (Stats, error) {
	if len(key) == 0 {
		return Stats{}, ErrEmptyKey
	}
	chunkSize := opts.ChunkSize
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkSize < minChunkSize || chunkSize > maxChunkSize {
		return Stats{}, fmt.Errorf("chunk size %d out of range [%d, %d]", chunkSize, minChunkSize, maxChunkSize)
	}

	h := header{Version: formatVersion, Salt: make([]byte, saltSize), ChunkSize: uint32(chunkSize), Compression: uint8(opts.Compression)}
	if _, err := rand.Read(h.Salt); err != nil {
		return Stats{}, fmt.Errorf("salt: %w", err)
	}
	hdr, err := encMode.Marshal(h)
	if err != nil {
		return Stats{}, fmt.Errorf("encode header: %w", err)
	}
	prefix := make([]byte, 0, len(magic)+2+len(hdr))
	prefix = append(prefix, magic[:]...)
	prefix = binary.BigEndian.AppendUint16(prefix, uint16(len(hdr)))
	prefix = append(prefix, hdr...)

	aead, err := newAEAD(key, h.Salt)
	if err != nil {
		return Stats{}, err
	}
	headerHash := blake3.Sum256(prefix)

	cw := &countingWriter{w: dst}
	if _, err := cw.Write(prefix); err != nil {
		return Stats{}, fmt.Errorf("write header: %w", err)
	}

	br := bufio.NewReaderSize(src, chunkSize)
	buf := make([]byte, chunkSize)
	hasher := blake3.New()
	var (
		total int64
		index uint64
	)
	for {
		n, rerr := io.ReadFull(br, buf)
		final := false
		switch {
		case rerr == nil:
			if _, perr := br.Peek(1); perr == io.EOF {
				final = true
			} else if perr != nil {
				return Stats{}, fmt.Errorf("read plaintext: %w", perr)
			}
		case errors.Is(rerr, io.EOF), errors.Is(rerr, io.ErrUnexpectedEOF):
			final = true
		default:
			return Stats{}, fmt.Errorf("read plaintext: %w", rerr)
		}

		raw := buf[:n]
		_, _ = hasher.Write(raw)
		total += int64(n)

		plain, err := packChunk(raw, opts.Compression)
		if err != nil {
			return Stats{}, err
		}
		frame := make([]byte, 4+nonceSize, 4+nonceSize+len(plain)+aead.Overhead())
		nonce := frame[4 : 4+nonceSize]
		if _, err := rand.Read(nonce); err != nil {
			return Stats{}, fmt.Errorf("nonce: %w", err)
		}
		frame = aead.Seal(frame, nonce, plain, chunkAAD(headerHash, index, final))
		binary.BigEndian.PutUint32(frame[:4], uint32(len(frame)-4-nonceSize))
		if _, err := cw.Write(frame); err != nil {
			return Stats{}, fmt.Errorf("write chunk %d: %w", index, err)
		}

		index++
		if final {
			break
		}
	}

	return Stats{
		Plaintext:  total,
		Ciphertext: cw.n,
		Digest:     hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Decrypt читает блоб из src и пишет открытый текст в dst.
// Нарушение целостности или неверный ключ — ErrDecryption; ошибки записи в dst
// и ошибки чтения src (кроме обрыва потока) возвращаются как есть.
func Decrypt(dst io.Writer, src io.Reader, key []byte) (Stats, error) {
	if len(key) == 0 {
		return Stats{}, ErrEmptyKey
	}
	br := bufio.NewReader(src)

	var fixed [len(magic) + 2]byte
	if err := readFull(br, fixed[:]); err != nil {
		return Stats{}, err
	}
	if !bytes.Equal(fixed[:len(magic)], magic[:]) {
		return Stats{}, fmt.Errorf("%w: bad magic", ErrDecryption)
	}
	hdrLen := int(binary.BigEndian.Uint16(fixed[len(magic):]))
	if hdrLen == 0 || hdrLen > maxHeaderSize {
		return Stats{}, fmt.Errorf("%w: bad header length %d", ErrDecryption, hdrLen)
	}
	hdr := make([]byte, hdrLen)
	if err := readFull(br, hdr); err != nil {
		return Stats{}, err
	}
	var h header
	if err := decMode.Unmarshal(hdr, &h); err != nil {
		return Stats{}, fmt.Errorf("%w: header: %v", ErrDecryption, err)
	}
	if h.Version != formatVersion || len(h.Salt) != saltSize ||
		h.ChunkSize < minChunkSize || h.ChunkSize > maxChunkSize {
		return Stats{}, fmt.Errorf("%w: unsupported header", ErrDecryption)
	}

	aead, err := newAEAD(key, h.Salt)
	if err != nil {
		return Stats{}, err
	}
	headerHash := blake3.Sum256(append(fixed[:], hdr...))

	chunkSize := int(h.ChunkSize)
	maxSealed := chunkHeaderSize + chunkSize + aead.Overhead()
	frame := make([]byte, nonceSize+maxSealed)
	hasher := blake3.New()
	ciphertext := int64(len(fixed) + hdrLen)
	var (
		total int64
		index uint64
	)
	for {
		var lenBuf [4]byte
		if err := readFull(br, lenBuf[:]); err != nil {
			// конец потока без последнего чанка — блоб обрезан
			return Stats{}, err
		}
		sealedLen := int(binary.BigEndian.Uint32(lenBuf[:]))
		if sealedLen < chunkHeaderSize+aead.Overhead() || sealedLen > maxSealed {
			return Stats{}, fmt.Errorf("%w: chunk %d has bad length %d", ErrDecryption, index, sealedLen)
		}
		body := frame[:nonceSize+sealedLen]
		if err := readFull(br, body); err != nil {
			return Stats{}, err
		}
		ciphertext += int64(4 + len(body))

		_, perr := br.Peek(1)
		if perr != nil && perr != io.EOF {
			return Stats{}, fmt.Errorf("read blob: %w", perr)
		}
		final := perr == io.EOF

		nonce, sealed := body[:nonceSize], body[nonceSize:]
		plain, err := aead.Open(sealed[:0], nonce, sealed, chunkAAD(headerHash, index, final))
		if err != nil {
			return Stats{}, fmt.Errorf("%w: chunk %d", ErrDecryption, index)
		}
		raw, err := unpackChunk(plain, chunkSize)
		if err != nil {
			return Stats{}, fmt.Errorf("%w: chunk %d: %v", ErrDecryption, index, err)
		}
		// неполный чанк допустим только последним
		if !final && len(raw) != chunkSize {
			return Stats{}, fmt.Errorf("%w: short chunk %d", ErrDecryption, index)
		}

		if _, err := dst.Write(raw); err != nil {
			return Stats{}, fmt.Errorf("write plaintext: %w", err)
		}
		_, _ = hasher.Write(raw)
		total += int64(len(raw))

		index++
		if final {
			break
		}
	}

	return Stats{
		Plaintext:  total,
		Ciphertext: ciphertext,
		Digest:     hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// EncryptBytes: Encrypt для данных в памяти.
func EncryptBytes(plaintext, key []byte) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := Encrypt(&buf, bytes.NewReader(plaintext), key, Options{Compression: CompressionLZ4}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecryptBytes: Decrypt для данных в памяти.
func DecryptBytes(blob, key []byte) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := Decrypt(&buf, bytes.NewReader(blob), key); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Digest: blake3 (hex) от данных в памяти.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func newAEAD(secret, salt []byte) (cipher.AEAD, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, []byte(kdfInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}
	return aead, nil
}

func chunkAAD(headerHash [32]byte, index uint64, final bool) []byte {
	aad := make([]byte, 0, len(headerHash)+8+1)
	aad = append(aad, headerHash[:]...)
	aad = binary.BigEndian.AppendUint64(aad, index)
	if final {
		return append(aad, 1)
	}
	return append(aad, 0)
}

// readFull читает ровно len(buf) байт; обрыв потока — ErrDecryption.
func readFull(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: truncated blob", ErrDecryption)
		}
		return fmt.Errorf("read blob: %w", err)
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
