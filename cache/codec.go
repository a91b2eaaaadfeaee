package cache

import (
	"github.com/cockroachdb/errors"
	"github.com/futurelot/nscache/compress"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec serializes values of one type. It is bound per call site through
// View, so a namespace can hold any type the caller chooses.
type Codec[T any] interface {
	Marshal(v T) ([]byte, error)
	Unmarshal(data []byte) (T, error)
}

// MsgpackCodec is the default Codec. Struct fields must be exported to
// survive a round trip; use msgpack tags for field names.
type MsgpackCodec[T any] struct{}

func (MsgpackCodec[T]) Marshal(v T) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (MsgpackCodec[T]) Unmarshal(data []byte) (T, error) {
	var v T
	err := msgpack.Unmarshal(data, &v)
	return v, err
}

// encodeValue serializes v and gzips the result when compressed is set.
func encodeValue[T any](codec Codec[T], v T, compressed bool) ([]byte, error) {
	data, err := codec.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "cache: encode value")
	}
	if !compressed {
		return data, nil
	}
	out, err := compress.Gzip(data)
	if err != nil {
		return nil, errors.Wrap(err, "cache: compress value")
	}
	return out, nil
}

// decodeValue reverses encodeValue. The compressed flag comes from the
// entry rather than the namespace config, so entries written before a
// config change still decode.
func decodeValue[T any](codec Codec[T], data []byte, compressed bool) (T, error) {
	if compressed {
		raw, err := compress.Gunzip(data)
		if err != nil {
			var zero T
			return zero, errors.Mark(errors.Wrap(err, "cache: decompress value"), ErrDecode)
		}
		data = raw
	}
	v, err := codec.Unmarshal(data)
	if err != nil {
		var zero T
		return zero, errors.Mark(errors.Wrap(err, "cache: unmarshal value"), ErrDecode)
	}
	return v, nil
}
