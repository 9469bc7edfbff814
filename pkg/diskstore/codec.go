// Copyright 2021 - 2023 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package diskstore

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"

	"github.com/laminadb/lamina/pkg/chunkkey"
)

// encodeKey lays a chunkkey.Key out as 16 big-endian bytes so that
// lexicographic byte order matches the 4-tuple's natural order, which
// is what makes pebble.IterOptions{LowerBound, UpperBound} and the
// btree secondary index agree on prefix scans.
func encodeKey(k chunkkey.Key) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint32(buf[0:4], uint32(k[0]))
	binary.BigEndian.PutUint32(buf[4:8], uint32(k[1]))
	binary.BigEndian.PutUint32(buf[8:12], uint32(k[2]))
	binary.BigEndian.PutUint32(buf[12:16], uint32(k[3]))
	return buf
}

func decodeKey(buf []byte) chunkkey.Key {
	return chunkkey.Key{
		int32(binary.BigEndian.Uint32(buf[0:4])),
		int32(binary.BigEndian.Uint32(buf[4:8])),
		int32(binary.BigEndian.Uint32(buf[8:12])),
		int32(binary.BigEndian.Uint32(buf[12:16])),
	}
}

// encodePrefix encodes the leading fields of a Key-prefix lookup
// (db[, table[, column]]) to the same big-endian layout, truncated to
// the number of fields supplied.
func encodePrefix(prefix []int32) []byte {
	buf := make([]byte, 4*len(prefix))
	for i, v := range prefix {
		binary.BigEndian.PutUint32(buf[i*4:i*4+4], uint32(v))
	}
	return buf
}

// upperBound returns the smallest byte string greater than every
// string with prefix p, or nil if p is all 0xff (meaning "no upper
// bound").
func upperBound(p []byte) []byte {
	u := make([]byte, len(p))
	copy(u, p)
	for i := len(u) - 1; i >= 0; i-- {
		u[i]++
		if u[i] != 0 {
			return u[:i+1]
		}
	}
	return nil
}

// record is the persisted unit per chunk: its checkpoint epoch, its
// byte size, and its pruning metadata.
type record struct {
	Epoch    uint64
	Size     int64
	RowCount int64
	Min      []byte
	Max      []byte
	NullMap  []byte // roaring.Bitmap.MarshalBinary(), nil if empty
	Sketch   []byte // hyperloglog.Sketch.MarshalBinary()
}

func encodeRecord(r record) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (record, error) {
	var r record
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&r)
	return r, err
}

func metadataToRecord(m *chunkkey.Metadata, epoch uint64, size int64) (record, error) {
	r := record{Epoch: epoch, Size: size}
	if m == nil {
		return r, nil
	}
	r.RowCount = m.RowCount
	r.Min = m.Min
	r.Max = m.Max
	if m.NullMap != nil && !m.NullMap.IsEmpty() {
		b, err := m.NullMap.MarshalBinary()
		if err != nil {
			return record{}, err
		}
		r.NullMap = b
	}
	if m.DistinctEstimator != nil {
		b, err := m.DistinctEstimator.MarshalBinary()
		if err != nil {
			return record{}, err
		}
		r.Sketch = b
	}
	return r, nil
}

func recordToMetadata(r record) (*chunkkey.Metadata, error) {
	m := chunkkey.NewMetadata()
	m.RowCount = r.RowCount
	m.Min = r.Min
	m.Max = r.Max
	if len(r.NullMap) > 0 {
		if err := m.NullMap.UnmarshalBinary(r.NullMap); err != nil {
			return nil, err
		}
	}
	if len(r.Sketch) > 0 {
		if err := m.DistinctEstimator.UnmarshalBinary(r.Sketch); err != nil {
			return nil, err
		}
	}
	return m, nil
}
