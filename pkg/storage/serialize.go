// Package storage persists clusters and spectrum properties behind small
// key/value contracts, each with an in-memory/pre-sized variant and a
// dynamic on-disk variant.
package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/ChrisMcGann/speclust/pkg/cluster"
)

// Cluster payload framing. All integers are little-endian.
const (
	clusterMagic   uint32 = 0x53434c53 // "SCLS"
	clusterVersion uint16 = 1
)

// ErrIntegrity is returned when a stored payload fails header validation. No
// best-effort recovery is attempted.
var ErrIntegrity = errors.New("cluster payload integrity error")

// ErrNotFound is returned when a key is absent from a store.
var ErrNotFound = errors.New("key not found")

// HashKey maps a cluster id to its 64-bit storage key.
func HashKey(id string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64()
}

// MarshalCluster encodes a cluster into the versioned, length-prefixed
// binary format. The round trip through UnmarshalCluster is bit-exact.
func MarshalCluster(c *cluster.Greedy) ([]byte, error) {
	var payload bytes.Buffer

	writeString16 := func(s string) error {
		if len(s) > math.MaxUint16 {
			return fmt.Errorf("string too long: %d bytes", len(s))
		}
		var lb [2]byte
		binary.LittleEndian.PutUint16(lb[:], uint16(len(s)))
		payload.Write(lb[:])
		payload.WriteString(s)
		return nil
	}

	if err := writeString16(c.ID()); err != nil {
		return nil, err
	}

	members := c.MemberIDs()
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(members)))
	payload.Write(countBuf[:])
	for _, m := range members {
		if err := writeString16(m); err != nil {
			return nil, err
		}
	}

	consensus := c.Consensus()
	if err := writeString16(consensus.UUI()); err != nil {
		return nil, err
	}
	writeInt64 := func(v int64) {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(v))
		payload.Write(b[:])
	}
	writeInt32 := func(v int32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(v))
		payload.Write(b[:])
	}
	writeInt64(consensus.NSpectra())
	writeInt64(consensus.SumPrecursorMz())
	writeInt64(consensus.SumPrecursorCharge())

	bins := consensus.Bins()
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(bins)))
	payload.Write(countBuf[:])
	for _, bin := range bins {
		writeInt32(bin.MZBin)
		writeInt64(bin.SummedIntensity)
		writeInt32(bin.Count)
	}

	matches := c.BestMatches()
	var mc [2]byte
	binary.LittleEndian.PutUint16(mc[:], uint16(len(matches)))
	payload.Write(mc[:])
	for _, m := range matches {
		if err := writeString16(m.OtherID); err != nil {
			return nil, err
		}
		var sb [4]byte
		binary.LittleEndian.PutUint32(sb[:], math.Float32bits(m.Similarity))
		payload.Write(sb[:])
	}

	out := make([]byte, 10+payload.Len())
	binary.LittleEndian.PutUint32(out[0:4], clusterMagic)
	binary.LittleEndian.PutUint16(out[4:6], clusterVersion)
	binary.LittleEndian.PutUint32(out[6:10], uint32(payload.Len()))
	copy(out[10:], payload.Bytes())
	return out, nil
}

// UnmarshalCluster decodes a cluster payload. Unknown trailing bytes at the
// end of the payload are tolerated for forward compatibility.
func UnmarshalCluster(data []byte, noiseFilterIncrement int32) (*cluster.Greedy, error) {
	if len(data) < 10 {
		return nil, fmt.Errorf("%w: truncated header (%d bytes)", ErrIntegrity, len(data))
	}
	if magic := binary.LittleEndian.Uint32(data[0:4]); magic != clusterMagic {
		return nil, fmt.Errorf("%w: bad magic 0x%08x", ErrIntegrity, magic)
	}
	if version := binary.LittleEndian.Uint16(data[4:6]); version != clusterVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrIntegrity, version)
	}
	payloadLen := int(binary.LittleEndian.Uint32(data[6:10]))
	if len(data) < 10+payloadLen {
		return nil, fmt.Errorf("%w: payload truncated", ErrIntegrity)
	}

	r := &payloadReader{data: data[10 : 10+payloadLen]}

	id, err := r.string16()
	if err != nil {
		return nil, err
	}

	memberCount, err := r.uint32()
	if err != nil {
		return nil, err
	}
	members := make([]string, memberCount)
	for i := range members {
		if members[i], err = r.string16(); err != nil {
			return nil, err
		}
	}

	consensusUUI, err := r.string16()
	if err != nil {
		return nil, err
	}
	nSpectra, err := r.int64()
	if err != nil {
		return nil, err
	}
	sumMz, err := r.int64()
	if err != nil {
		return nil, err
	}
	sumCharge, err := r.int64()
	if err != nil {
		return nil, err
	}

	binCount, err := r.uint32()
	if err != nil {
		return nil, err
	}
	bins := make([]cluster.ConsensusBin, binCount)
	for i := range bins {
		if bins[i].MZBin, err = r.int32(); err != nil {
			return nil, err
		}
		if bins[i].SummedIntensity, err = r.int64(); err != nil {
			return nil, err
		}
		if bins[i].Count, err = r.int32(); err != nil {
			return nil, err
		}
	}

	matchCount, err := r.uint16()
	if err != nil {
		return nil, err
	}
	matches := make([]cluster.ComparisonMatch, matchCount)
	for i := range matches {
		if matches[i].OtherID, err = r.string16(); err != nil {
			return nil, err
		}
		bits, err := r.uint32()
		if err != nil {
			return nil, err
		}
		matches[i].Similarity = math.Float32frombits(bits)
	}

	// bytes beyond this point are fields from a newer writer; ignore them

	consensus := cluster.RestoreConsensus(consensusUUI, nSpectra, sumMz, sumCharge, bins, noiseFilterIncrement)
	return cluster.Restore(id, members, consensus, matches, nil), nil
}

type payloadReader struct {
	data []byte
	pos  int
}

func (r *payloadReader) take(n int) ([]byte, error) {
	if r.pos+n > len(r.data) {
		return nil, fmt.Errorf("%w: payload field truncated at offset %d", ErrIntegrity, r.pos)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *payloadReader) uint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *payloadReader) uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *payloadReader) int32() (int32, error) {
	v, err := r.uint32()
	return int32(v), err
}

func (r *payloadReader) int64() (int64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

func (r *payloadReader) string16() (string, error) {
	n, err := r.uint16()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
