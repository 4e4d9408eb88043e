package storage

import (
	"encoding/binary"
	"fmt"
	"math"
)

const vectorHeaderSize = 4

// EncodeVector packs a vector as a little-endian uint32 dimension followed
// by little-endian float32 values.
func EncodeVector(v []float32) ([]byte, error) {
	if len(v) == 0 {
		return nil, &SerializationError{Operation: "encode vector", Cause: fmt.Errorf("empty vector")}
	}
	blob := make([]byte, vectorHeaderSize+4*len(v))
	binary.LittleEndian.PutUint32(blob, uint32(len(v)))
	for i, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return nil, &SerializationError{Operation: "encode vector", Cause: fmt.Errorf("non-finite value at %d", i)}
		}
		binary.LittleEndian.PutUint32(blob[vectorHeaderSize+4*i:], math.Float32bits(f))
	}
	return blob, nil
}

// DecodeVector unpacks a blob written by EncodeVector.
func DecodeVector(blob []byte) ([]float32, error) {
	if len(blob) < vectorHeaderSize {
		return nil, &SerializationError{Operation: "decode vector", Cause: fmt.Errorf("blob too short: %d bytes", len(blob))}
	}
	dim := int(binary.LittleEndian.Uint32(blob))
	if dim == 0 || len(blob) != vectorHeaderSize+4*dim {
		return nil, &SerializationError{Operation: "decode vector", Cause: fmt.Errorf("dimension %d does not match %d payload bytes", dim, len(blob)-vectorHeaderSize)}
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[vectorHeaderSize+4*i:]))
	}
	return v, nil
}
