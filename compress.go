package msf

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
)

// compressBytes compresses src with the given codec. CompressionNone
// returns src unchanged (aliased, not copied).
func compressBytes(codec Compression, src []byte) ([]byte, error) {
	switch codec {
	case CompressionNone:
		return src, nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, ErrMsf.Errorf("zstd writer: %w", err)
		}
		defer enc.Close()
		return enc.EncodeAll(src, nil), nil
	case CompressionDeflate:
		var buf bytes.Buffer
		w, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, ErrMsf.Errorf("deflate writer: %w", err)
		}
		if _, err := w.Write(src); err != nil {
			return nil, ErrMsf.Errorf("deflate write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, ErrMsf.Errorf("deflate close: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, ErrMalformedHeader.Errorf("unknown compression code %d", codec)
	}
}

// decompressBytes inflates src, which was compressed with codec.
// Deflate output is exactly uncompressedSize bytes; zstd output is
// whatever the frame decodes to (uncompressedSize only presizes the
// buffer); CompressionNone returns src unchanged.
func decompressBytes(codec Compression, src []byte, uncompressedSize uint32) ([]byte, error) {
	switch codec {
	case CompressionNone:
		return src, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, ErrMsf.Errorf("zstd reader: %w", err)
		}
		defer dec.Close()
		out, err := dec.DecodeAll(src, make([]byte, 0, uncompressedSize))
		if err != nil {
			return nil, ErrInvalidStreamData.Errorf("zstd decode: %w", err)
		}
		return out, nil
	case CompressionDeflate:
		r := flate.NewReader(bytes.NewReader(src))
		defer r.Close()
		out := make([]byte, uncompressedSize)
		if _, err := io.ReadFull(r, out); err != nil {
			return nil, ErrInvalidStreamData.Errorf("deflate decode: %w", err)
		}
		return out, nil
	default:
		return nil, ErrMalformedHeader.Errorf("unknown compression code %d", codec)
	}
}
