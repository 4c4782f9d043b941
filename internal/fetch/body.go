package fetch

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// acceptEncoding is sent with every request; readBody decodes each of these.
const acceptEncoding = "br, zstd, gzip"

// errBodyRead marks a transport failure while the body was streaming, as
// opposed to a document that was received but could not be decoded.
var errBodyRead = errors.New("read body")

// zstdDec is a concurrent-safe zstd decoder.
var zstdDec *zstd.Decoder

func init() {
	var err error
	zstdDec, err = zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(0),
		zstd.WithDecoderMaxMemory(64<<20),
	)
	if err != nil {
		panic("fetch: init zstd decoder: " + err.Error())
	}
}

// readBody reads and decompresses a response body based on its
// Content-Encoding. At most maxBytes of decoded output are returned; a
// longer body is an error rather than a silently truncated document.
func readBody(body io.Reader, contentEncoding string, maxBytes int64) ([]byte, error) {
	var r io.Reader
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "zstd":
		compressed, err := io.ReadAll(io.LimitReader(body, maxBytes))
		if err != nil {
			return nil, fmt.Errorf("%w (compressed): %w", errBodyRead, err)
		}
		decompressed, err := zstdDec.DecodeAll(compressed, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress zstd body: %w", err)
		}
		if int64(len(decompressed)) > maxBytes {
			return nil, fmt.Errorf("document exceeds %d bytes", maxBytes)
		}
		return decompressed, nil

	case "gzip":
		gz, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("open gzip reader: %w", err)
		}
		defer func() { _ = gz.Close() }()
		r = gz

	case "br":
		r = brotli.NewReader(body)

	case "", "identity":
		r = body

	default:
		return nil, fmt.Errorf("unsupported Content-Encoding: %q", contentEncoding)
	}

	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBodyRead, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("document exceeds %d bytes", maxBytes)
	}
	return data, nil
}
