package persist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec selects the structured encoding of the persisted record.
type Codec string

const (
	CodecJSON Codec = "json"
	CodecCBOR Codec = "cbor"
)

// Compression selects an optional compression frame around the encoded
// record. Load recognises compressed files by their frame magic, so a reader
// does not need to know which compression the writer chose.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// Options control how an index is written and read.
type Options struct {
	Codec       Codec
	Compression Compression
}

// DefaultOptions is plain JSON, the format other tooling can read directly.
func DefaultOptions() Options {
	return Options{Codec: CodecJSON, Compression: CompressionNone}
}

// ParseOptions maps configuration strings to Options. Empty strings select
// the defaults.
func ParseOptions(codec, compression string) (Options, error) {
	opts := DefaultOptions()
	switch Codec(codec) {
	case "":
	case CodecJSON, CodecCBOR:
		opts.Codec = Codec(codec)
	default:
		return Options{}, fmt.Errorf("unknown index codec %q", codec)
	}
	switch Compression(compression) {
	case "":
	case CompressionNone, CompressionZstd, CompressionLZ4:
		opts.Compression = Compression(compression)
	default:
		return Options{}, fmt.Errorf("unknown index compression %q", compression)
	}
	return opts, nil
}

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// Core deterministic encoding: the same store always produces the same bytes,
// which keeps file digests stable across rebuilds.
var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("persist: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{
		FieldNameMatching: cbor.FieldNameMatchingCaseSensitive,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic("persist: CBOR decoder initialization failed: " + err.Error())
	}
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("persist: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("persist: zstd decoder initialization failed: " + err.Error())
	}
}

func encode(rec *record, opts Options) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch opts.Codec {
	case CodecJSON, "":
		data, err = json.Marshal(rec)
	case CodecCBOR:
		data, err = cborEnc.Marshal(rec)
	default:
		return nil, fmt.Errorf("unknown index codec %q", opts.Codec)
	}
	if err != nil {
		return nil, fmt.Errorf("encoding index as %s: %w", opts.Codec, err)
	}
	return compress(data, opts.Compression)
}

func decode(data []byte, opts Options) (*record, error) {
	raw, err := decompress(data)
	if err != nil {
		return nil, err
	}
	var rec record
	switch opts.Codec {
	case CodecJSON, "":
		err = decodeJSON(raw, &rec)
	case CodecCBOR:
		err = cborDec.Unmarshal(raw, &rec)
	default:
		return nil, fmt.Errorf("unknown index codec %q", opts.Codec)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s index: %w", opts.Codec, err)
	}
	return &rec, nil
}

// decodeJSON matches field names case-sensitively and rejects unknown
// fields.
func decodeJSON(raw []byte, rec *record) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return err
	}
	for name, value := range fields {
		var err error
		switch name {
		case "inverted_index":
			err = json.Unmarshal(value, &rec.InvertedIndex)
		case "document_frequencies":
			err = json.Unmarshal(value, &rec.DocumentFrequencies)
		case "document_lengths":
			err = json.Unmarshal(value, &rec.DocumentLengths)
		default:
			return fmt.Errorf("unexpected field %q", name)
		}
		if err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
	}
	return nil
}

func compress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone, "":
		return data, nil
	case CompressionZstd:
		return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown index compression %q", c)
	}
}

func decompress(data []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(data, zstdMagic):
		out, err := zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return out, nil
	case bytes.HasPrefix(data, lz4Magic):
		out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		return out, nil
	default:
		return data, nil
	}
}
