package vector

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Compression selects how the vector payload of a saved flat index is stored.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
)

func (c Compression) valid() bool {
	return c == CompressionNone || c == CompressionZstd
}

// File layout, little-endian:
//
//	magic [4]byte "TLVX"
//	version uint16
//	compression uint8 (0 none, 1 zstd)
//	reserved uint8
//	dimensions uint32
//	count uint64
//	payload: count*dimensions float32, zstd-framed when compressed
//	crc32 uint32 (IEEE, over the uncompressed payload)
var flatMagic = [4]byte{'T', 'L', 'V', 'X'}

const flatFormatVersion uint16 = 1

type header struct {
	compression Compression
	dimensions  int
	count       int
}

type rawHeader struct {
	Magic       [4]byte
	Version     uint16
	Compression uint8
	Reserved    uint8
	Dimensions  uint32
	Count       uint64
}

func encodeFlat(w io.Writer, h header, data []float32) error {
	raw := rawHeader{
		Magic:      flatMagic,
		Version:    flatFormatVersion,
		Dimensions: uint32(h.dimensions),
		Count:      uint64(h.count),
	}
	if h.compression == CompressionZstd {
		raw.Compression = 1
	}
	if err := binary.Write(w, binary.LittleEndian, raw); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	payload := float32SliceToBytes(data)
	switch h.compression {
	case CompressionZstd:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return fmt.Errorf("create zstd encoder: %w", err)
		}
		if _, err := enc.Write(payload); err != nil {
			_ = enc.Close()
			return fmt.Errorf("write vectors: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("flush zstd: %w", err)
		}
	default:
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("write vectors: %w", err)
		}
	}
	if err := binary.Write(w, binary.LittleEndian, crc32.ChecksumIEEE(payload)); err != nil {
		return fmt.Errorf("write checksum: %w", err)
	}
	return nil
}

// decodeFlat reads a flat index of the given dimension from r. fileSize is the
// total length of the input, or -1 when unknown; the header's vector count is
// checked against it before the payload is allocated.
func decodeFlat(r io.Reader, fileSize int64, dimensions int) (header, []float32, error) {
	br := bufio.NewReader(r)
	var raw rawHeader
	if err := binary.Read(br, binary.LittleEndian, &raw); err != nil {
		return header{}, nil, fmt.Errorf("%w: read header: %v", ErrCorruptIndex, err)
	}
	if raw.Magic != flatMagic {
		return header{}, nil, fmt.Errorf("%w: bad magic %q", ErrCorruptIndex, raw.Magic[:])
	}
	if raw.Version != flatFormatVersion {
		return header{}, nil, fmt.Errorf("%w: unsupported format version %d", ErrCorruptIndex, raw.Version)
	}
	if int(raw.Dimensions) != dimensions {
		return header{}, nil, &DimensionMismatchError{Expected: dimensions, Actual: int(raw.Dimensions)}
	}
	h := header{compression: CompressionNone, dimensions: int(raw.Dimensions), count: int(raw.Count)}
	size := uint64(raw.Dimensions) * raw.Count * 4
	if raw.Count > math.MaxInt32 || size > math.MaxInt {
		return header{}, nil, fmt.Errorf("%w: implausible vector count %d", ErrCorruptIndex, raw.Count)
	}

	switch raw.Compression {
	case 0:
		if fileSize >= 0 && int64(size)+checksumSize != fileSize-int64(binary.Size(raw)) {
			return header{}, nil, fmt.Errorf("%w: vector count %d does not match file size %d", ErrCorruptIndex, raw.Count, fileSize)
		}
		payload, err := readPayload(br, size)
		if err != nil {
			return header{}, nil, err
		}
		return finishDecode(br, h, payload)
	case 1:
		h.compression = CompressionZstd
		// The zstd frame is followed by the checksum, so decode from a bounded copy.
		rest, err := io.ReadAll(br)
		if err != nil {
			return header{}, nil, fmt.Errorf("read vectors: %w", err)
		}
		if len(rest) < checksumSize {
			return header{}, nil, fmt.Errorf("%w: truncated file", ErrCorruptIndex)
		}
		dec, err := zstd.NewReader(bytes.NewReader(rest[:len(rest)-checksumSize]))
		if err != nil {
			return header{}, nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		payload, err := readPayload(dec, size)
		dec.Close()
		if err != nil {
			return header{}, nil, err
		}
		return finishDecode(bytes.NewReader(rest[len(rest)-checksumSize:]), h, payload)
	default:
		return header{}, nil, fmt.Errorf("%w: unknown compression flag %d", ErrCorruptIndex, raw.Compression)
	}
}

const checksumSize = 4

// readPayload reads exactly size bytes from r. The buffer grows with the data
// actually read, so a corrupt count cannot force a huge allocation.
func readPayload(r io.Reader, size uint64) ([]byte, error) {
	payload, err := io.ReadAll(io.LimitReader(r, int64(size)))
	if err != nil {
		return nil, fmt.Errorf("%w: read vectors: %v", ErrCorruptIndex, err)
	}
	if uint64(len(payload)) != size {
		return nil, fmt.Errorf("%w: vector payload is %d bytes, header says %d", ErrCorruptIndex, len(payload), size)
	}
	return payload, nil
}

// finishDecode verifies the trailing checksum against payload.
func finishDecode(r io.Reader, h header, payload []byte) (header, []float32, error) {
	var sum uint32
	if err := binary.Read(r, binary.LittleEndian, &sum); err != nil {
		return header{}, nil, fmt.Errorf("%w: read checksum: %v", ErrCorruptIndex, err)
	}
	if sum != crc32.ChecksumIEEE(payload) {
		return header{}, nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptIndex)
	}
	return h, bytesToFloat32Slice(payload), nil
}

// writeFileAtomic has write produce a temp file next to path, syncs it, and renames it
// over path, so a crash leaves either the old file or the new one.
func writeFileAtomic(path string, write func(tmpPath string) error) error {
	if path == "" {
		return fmt.Errorf("index path is empty")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpPath)

	if err := write(tmpPath); err != nil {
		return err
	}
	if err := syncFile(tmpPath); err != nil {
		return fmt.Errorf("sync index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename index file: %w", err)
	}
	return nil
}

func syncFile(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
