// Copyright 2021 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package callstore

import (
	"encoding/binary"
	"math"

	"github.com/grailbio/mixscan/vcfscan"
	"github.com/pkg/errors"
)

// Serialized row format, little-endian:
//   [0..4):   roi_name length, then that many bytes
//   next 2:   ref length, then that many bytes
//   next 4:   pos
//   next 4:   depth
//   next 16:  the four base depths
//   next 16:  maf and mlp as float64 bits (NaN round-trips)
// Rows are small and the writer stacks a zstd transformer on top, so no
// varint packing is attempted.

// cutAndAdvance returns s[offset:offset+pieceLen] and moves offset forward.
func cutAndAdvance(offset *int, s []byte, pieceLen int) []byte {
	tmp := s[(*offset):]
	*offset += pieceLen
	return tmp[:pieceLen]
}

func marshalRow(scratch []byte, v interface{}) ([]byte, error) {
	row := v.(*vcfscan.Row)
	bytesReq := 4 + len(row.RoiName) + 2 + len(row.Ref) + 4 + 4 + 16 + 16
	t := scratch
	if len(t) < bytesReq {
		t = make([]byte, bytesReq)
	}
	t = t[:bytesReq]

	offset := 0
	binary.LittleEndian.PutUint32(cutAndAdvance(&offset, t, 4), uint32(len(row.RoiName)))
	copy(cutAndAdvance(&offset, t, len(row.RoiName)), row.RoiName)
	binary.LittleEndian.PutUint16(cutAndAdvance(&offset, t, 2), uint16(len(row.Ref)))
	copy(cutAndAdvance(&offset, t, len(row.Ref)), row.Ref)
	binary.LittleEndian.PutUint32(cutAndAdvance(&offset, t, 4), uint32(row.Pos))
	binary.LittleEndian.PutUint32(cutAndAdvance(&offset, t, 4), uint32(row.Depth))
	counts := cutAndAdvance(&offset, t, 16)
	binary.LittleEndian.PutUint32(counts[:4], uint32(row.BaseA))
	binary.LittleEndian.PutUint32(counts[4:8], uint32(row.BaseC))
	binary.LittleEndian.PutUint32(counts[8:12], uint32(row.BaseG))
	binary.LittleEndian.PutUint32(counts[12:16], uint32(row.BaseT))
	floats := cutAndAdvance(&offset, t, 16)
	binary.LittleEndian.PutUint64(floats[:8], math.Float64bits(row.MAF))
	binary.LittleEndian.PutUint64(floats[8:16], math.Float64bits(row.MLP))
	return t, nil
}

func unmarshalRow(in []byte) (interface{}, error) {
	offset := 0
	if len(in) < 4 {
		return nil, errors.New("callstore: short record")
	}
	nameLen := int(binary.LittleEndian.Uint32(cutAndAdvance(&offset, in, 4)))
	if len(in) < offset+nameLen+2 {
		return nil, errors.New("callstore: short record")
	}
	row := &vcfscan.Row{}
	row.RoiName = string(cutAndAdvance(&offset, in, nameLen))
	refLen := int(binary.LittleEndian.Uint16(cutAndAdvance(&offset, in, 2)))
	if len(in) != offset+refLen+4+4+16+16 {
		return nil, errors.Errorf("callstore: record has %d bytes, want %d", len(in), offset+refLen+40)
	}
	row.Ref = string(cutAndAdvance(&offset, in, refLen))
	row.Pos = int(binary.LittleEndian.Uint32(cutAndAdvance(&offset, in, 4)))
	row.Depth = int(binary.LittleEndian.Uint32(cutAndAdvance(&offset, in, 4)))
	counts := cutAndAdvance(&offset, in, 16)
	row.BaseA = int(binary.LittleEndian.Uint32(counts[:4]))
	row.BaseC = int(binary.LittleEndian.Uint32(counts[4:8]))
	row.BaseG = int(binary.LittleEndian.Uint32(counts[8:12]))
	row.BaseT = int(binary.LittleEndian.Uint32(counts[12:16]))
	floats := cutAndAdvance(&offset, in, 16)
	row.MAF = math.Float64frombits(binary.LittleEndian.Uint64(floats[:8]))
	row.MLP = math.Float64frombits(binary.LittleEndian.Uint64(floats[8:16]))
	return row, nil
}
