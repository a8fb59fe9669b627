package vector

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Index file layout:
//
//	magic "RBIX" | version u8 | codec u8 | crc32 u32 | raw size u32 | payload
//
// The checksum covers the payload as written to disk.
var indexMagic = [4]byte{'R', 'B', 'I', 'X'}

const (
	indexVersion    = 1
	indexHeaderSize = 4 + 1 + 1 + 4 + 4
)

const (
	codecNone byte = iota
	codecZstd
	codecLZ4
)

type indexEnvelope struct {
	Type      IndexType
	Metric    Metric
	Dimension int
	Data      []byte
}

func encodeIndex(idx Index, compression Compression) ([]byte, error) {
	data, err := idx.MarshalBinary()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	err = gob.NewEncoder(&buf).Encode(indexEnvelope{
		Type:      idx.Type(),
		Metric:    idx.Metric(),
		Dimension: idx.Dimension(),
		Data:      data,
	})
	if err != nil {
		return nil, err
	}

	raw := buf.Bytes()
	codec, payload, err := compress(raw, compression)
	if err != nil {
		return nil, err
	}

	out := make([]byte, indexHeaderSize, indexHeaderSize+len(payload))
	copy(out, indexMagic[:])
	out[4] = indexVersion
	out[5] = codec
	binary.LittleEndian.PutUint32(out[6:], crc32.ChecksumIEEE(payload))
	binary.LittleEndian.PutUint32(out[10:], uint32(len(raw)))
	return append(out, payload...), nil
}

func decodeIndex(blob []byte) (*indexEnvelope, error) {
	if len(blob) < indexHeaderSize || !bytes.Equal(blob[:4], indexMagic[:]) {
		return nil, fmt.Errorf("%w: bad header", ErrCorruptIndex)
	}

	if blob[4] != indexVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptIndex, blob[4])
	}

	payload := blob[indexHeaderSize:]
	if crc32.ChecksumIEEE(payload) != binary.LittleEndian.Uint32(blob[6:]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptIndex)
	}

	raw, err := decompress(blob[5], payload, int(binary.LittleEndian.Uint32(blob[10:])))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptIndex, err)
	}

	var env indexEnvelope
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptIndex, err)
	}

	return &env, nil
}

func compress(raw []byte, compression Compression) (byte, []byte, error) {
	switch compression {
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return 0, nil, err
		}
		defer enc.Close()

		return codecZstd, enc.EncodeAll(raw, nil), nil

	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, dst, nil)
		if err != nil {
			return 0, nil, err
		}

		// incompressible input
		if n == 0 {
			return codecNone, raw, nil
		}

		return codecLZ4, dst[:n], nil

	case CompressionNone:
		return codecNone, raw, nil

	default:
		return 0, nil, fmt.Errorf("%w: unknown compression %q", ErrInvalidArgument, compression)
	}
}

func decompress(codec byte, payload []byte, size int) ([]byte, error) {
	switch codec {
	case codecNone:
		return payload, nil

	case codecZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()

		return dec.DecodeAll(payload, make([]byte, 0, size))

	case codecLZ4:
		raw := make([]byte, size)
		n, err := lz4.UncompressBlock(payload, raw)
		if err != nil {
			return nil, err
		}
		return raw[:n], nil

	default:
		return nil, fmt.Errorf("unknown codec %d", codec)
	}
}

// writeFileAtomic writes through a temp file in the target directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}

	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, path)
}
