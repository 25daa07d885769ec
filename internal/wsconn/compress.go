// SPDX-License-Identifier: Apache-2.0

package wsconn

import (
	"bytes"
	"compress/bzip2"
	"compress/flate"
	"compress/gzip"
	"errors"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// ErrUnsupportedCompressor is returned for a Compressor value no
// CompressorEngine implementation knows how to handle in the requested
// direction.
var ErrUnsupportedCompressor = errors.New("wsconn: unsupported compressor")

// CompressorEngine is the external collaborator a session uses to
// compress outbound payloads and decompress inbound ones. method selects
// the negotiated algorithm so a single engine can serve every session.
type CompressorEngine interface {
	Compress(method Compressor, p []byte) ([]byte, error)
	Decompress(method Compressor, p []byte) ([]byte, error)
}

// deflateTail is the RFC 7692 tail that ends a Z_SYNC_FLUSH block. Compress
// strips it from its DEFLATE output and Decompress re-appends it before
// decoding, since permessage-deflate payloads omit it on the wire.
var deflateTail = []byte{0x00, 0x00, 0xFF, 0xFF}

// DefaultCompressorEngine implements CompressorEngine using compress/flate
// and compress/gzip from the standard library for DEFLATE/GZIP (the two
// algorithms RFC 7692 and common Websocket deployments actually use on the
// wire), plus brotli/zstd/lz4 for the remaining negotiable algorithms the
// session's mode enum allows. BZIP2 decompresses (compress/bzip2 has no
// encoder in the standard library and none of the available ecosystem
// packages provide one either) but cannot compress; LZMA is accepted by
// neither direction, for the same reason.
type DefaultCompressorEngine struct {
	zstdEnc *zstd.Encoder
	zstdDec *zstd.Decoder
}

// NewDefaultCompressorEngine constructs an engine with its zstd
// encoder/decoder pair initialised once and reused across calls.
func NewDefaultCompressorEngine() (*DefaultCompressorEngine, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &DefaultCompressorEngine{zstdEnc: enc, zstdDec: dec}, nil
}

func (c *DefaultCompressorEngine) Compress(method Compressor, p []byte) ([]byte, error) {
	switch method {
	case CompressNone:
		return p, nil
	case CompressDeflate:
		var buf bytes.Buffer
		w, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(p); err != nil {
			return nil, err
		}
		if err := w.Flush(); err != nil {
			return nil, err
		}
		return bytes.TrimSuffix(buf.Bytes(), deflateTail), nil
	case CompressGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(p); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressBrotli:
		var buf bytes.Buffer
		w := brotli.NewWriter(&buf)
		if _, err := w.Write(p); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressZstd:
		return c.zstdEnc.EncodeAll(p, nil), nil
	case CompressLz4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(p); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, ErrUnsupportedCompressor
	}
}

func (c *DefaultCompressorEngine) Decompress(method Compressor, p []byte) ([]byte, error) {
	switch method {
	case CompressNone:
		return p, nil
	case CompressDeflate:
		p = append(p, deflateTail...)
		r := flate.NewReader(bytes.NewReader(p))
		defer r.Close()
		out, err := io.ReadAll(r)
		if errors.Is(err, io.ErrUnexpectedEOF) {
			// a sync-flushed payload has no final block
			err = nil
		}
		return out, err
	case CompressGzip:
		r, err := gzip.NewReader(bytes.NewReader(p))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case CompressBrotli:
		return io.ReadAll(brotli.NewReader(bytes.NewReader(p)))
	case CompressZstd:
		return c.zstdDec.DecodeAll(p, nil)
	case CompressLz4:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(p)))
	case CompressBzip2:
		return io.ReadAll(bzip2.NewReader(bytes.NewReader(p)))
	default:
		return nil, ErrUnsupportedCompressor
	}
}
