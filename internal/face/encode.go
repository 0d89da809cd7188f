package face

import (
	"encoding/binary"
	"math"
)

// EncodeEmbedding packs a float32 embedding into the little-endian byte
// blob store.Face.Embedding carries, the same wire format
// decodeEmbedding (cluster.go) expects back.
func EncodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
