/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package kll

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/apache/datasketches-kll-go/common"
	"github.com/apache/datasketches-kll-go/internal"
)

const _ITEM_BYTES_DOUBLE = 8

// ToSlice returns the serialized byte array of this sketch in compact
// form: the empty, single-item or full layout, whichever is smallest.
func (s *DoublesSketch) ToSlice() ([]byte, error) {
	bytesOut, err := s.sketch.ToSlice()
	if err != nil {
		return nil, err
	}
	bytesOut[_FLAGS_BYTE_ADR] |= _DOUBLES_SKETCH_BIT_MASK
	return bytesOut, nil
}

// ToUpdatableSlice returns the serialized byte array of this sketch in
// updatable form: full preamble, the complete levels array, min and max
// items and the entire items buffer including free space.
func (s *DoublesSketch) ToUpdatableSlice() ([]byte, error) {
	out := make([]byte, s.updatableSizeBytes())
	s.writeUpdatableImage(out)
	return out, nil
}

// GetSerializedSizeBytes returns the number of bytes this sketch would
// require if serialized in the given form.
func (s *DoublesSketch) GetSerializedSizeBytes(updatable bool) (int, error) {
	if updatable {
		return s.updatableSizeBytes(), nil
	}
	return s.sketch.GetSerializedSizeBytes()
}

func (s *DoublesSketch) updatableSizeBytes() int {
	base := s.sketch
	levelsBytes := (int(base.numLevels) + 1) * 4
	return _DATA_START_ADR + levelsBytes + (2+len(base.items))*_ITEM_BYTES_DOUBLE
}

// writeUpdatableImage writes the complete updatable image of the sketch
// into the given buffer, which must be at least updatableSizeBytes long.
func (s *DoublesSketch) writeUpdatableImage(out []byte) {
	base := s.sketch
	setPreInts(out, _UPDATABLE.getPreInts())
	setSerVer(out, _UPDATABLE.getSerVer())
	setFamilyID(out, internal.FamilyEnum.Kll.Id)
	flags := _DOUBLES_SKETCH_BIT_MASK | _UPDATABLE_BIT_MASK
	if base.isLevelZeroSorted {
		flags |= _LEVEL_ZERO_SORTED_BIT_MASK
	}
	setFlags(out, flags)
	setK(out, base.k)
	setM(out, base.m)
	setN(out, base.n)
	setMinK(out, base.minK)
	setNumLevels(out, base.numLevels)

	offset := _DATA_START_ADR
	for i := uint8(0); i <= base.numLevels; i++ {
		binary.LittleEndian.PutUint32(out[offset:], base.levels[i])
		offset += 4
	}
	minV, maxV := math.NaN(), math.NaN()
	if base.minItem != nil {
		minV = *base.minItem
		maxV = *base.maxItem
	}
	binary.LittleEndian.PutUint64(out[offset:], math.Float64bits(minV))
	offset += _ITEM_BYTES_DOUBLE
	binary.LittleEndian.PutUint64(out[offset:], math.Float64bits(maxV))
	offset += _ITEM_BYTES_DOUBLE
	for _, v := range base.items {
		binary.LittleEndian.PutUint64(out[offset:], math.Float64bits(v))
		offset += _ITEM_BYTES_DOUBLE
	}
}

// flushToWmem rewrites the full updatable image into the backing buffer,
// growing the buffer through the MemoryRequestServer if it is too small.
func (s *DoublesSketch) flushToWmem() error {
	required := s.updatableSizeBytes()
	if len(s.wmem) < required {
		if s.memReqSvr == nil {
			return fmt.Errorf("no MemoryRequestServer configured, cannot grow the backing buffer to %d bytes", required)
		}
		newMem := s.memReqSvr.Request(required)
		if len(newMem) < required {
			return fmt.Errorf("MemoryRequestServer returned insufficient space: %d < %d", len(newMem), required)
		}
		s.wmem = newMem
	}
	s.writeUpdatableImage(s.wmem)
	return nil
}

// writeSingleUpdateDelta writes through only the fields a non-compacting
// single update touches: n, flags, min and max, levels[0] and the one new
// item slot.
func (s *DoublesSketch) writeSingleUpdateDelta() {
	base := s.sketch
	setN(s.wmem, base.n)
	flags := _DOUBLES_SKETCH_BIT_MASK | _UPDATABLE_BIT_MASK
	if base.isLevelZeroSorted {
		flags |= _LEVEL_ZERO_SORTED_BIT_MASK
	}
	setFlags(s.wmem, flags)

	levelsOffset := _DATA_START_ADR
	binary.LittleEndian.PutUint32(s.wmem[levelsOffset:], base.levels[0])
	minMaxOffset := levelsOffset + (int(base.numLevels)+1)*4
	binary.LittleEndian.PutUint64(s.wmem[minMaxOffset:], math.Float64bits(*base.minItem))
	binary.LittleEndian.PutUint64(s.wmem[minMaxOffset+_ITEM_BYTES_DOUBLE:], math.Float64bits(*base.maxItem))

	itemsOffset := minMaxOffset + 2*_ITEM_BYTES_DOUBLE
	pos := base.levels[0]
	binary.LittleEndian.PutUint64(s.wmem[itemsOffset+int(pos)*_ITEM_BYTES_DOUBLE:], math.Float64bits(base.items[pos]))
}

// heapifyDoublesSketch decodes any serialized doubles image, compact or
// updatable, into a heap levels engine.
func heapifyDoublesSketch(sl []byte) (*ItemsSketch[float64], error) {
	memVal, err := newDoublesSketchMemoryValidate(sl)
	if err != nil {
		return nil, err
	}

	var (
		k                 = memVal.k
		m                 = memVal.m
		levelsArr         = memVal.levelsArr
		n                 = memVal.n
		minK              = memVal.minK
		isLevelZeroSorted = memVal.level0SortedFlag
		minItem           *float64
		maxItem           *float64
		items             []float64
	)

	switch memVal.sketchStructure {
	case _COMPACT_EMPTY:
		items = make([]float64, k)
	case _COMPACT_SINGLE:
		item := math.Float64frombits(binary.LittleEndian.Uint64(sl[_DATA_START_ADR_SINGLE_ITEM:]))
		minItem = &item
		maxItem = &item
		items = make([]float64, k)
		items[k-1] = item
	case _COMPACT_FULL:
		offset := _DATA_START_ADR + int(memVal.numLevels)*4
		minV := math.Float64frombits(binary.LittleEndian.Uint64(sl[offset:]))
		offset += _ITEM_BYTES_DOUBLE
		maxV := math.Float64frombits(binary.LittleEndian.Uint64(sl[offset:]))
		offset += _ITEM_BYTES_DOUBLE
		minItem = &minV
		maxItem = &maxV
		items = make([]float64, levelsArr[memVal.numLevels])
		numRetained := levelsArr[memVal.numLevels] - levelsArr[0]
		for i := uint32(0); i < numRetained; i++ {
			items[levelsArr[0]+i] = math.Float64frombits(binary.LittleEndian.Uint64(sl[offset:]))
			offset += _ITEM_BYTES_DOUBLE
		}
	case _UPDATABLE:
		offset := _DATA_START_ADR + (int(memVal.numLevels)+1)*4
		minV := math.Float64frombits(binary.LittleEndian.Uint64(sl[offset:]))
		offset += _ITEM_BYTES_DOUBLE
		maxV := math.Float64frombits(binary.LittleEndian.Uint64(sl[offset:]))
		offset += _ITEM_BYTES_DOUBLE
		if n > 0 {
			minItem = &minV
			maxItem = &maxV
		}
		items = make([]float64, levelsArr[memVal.numLevels])
		for i := range items {
			items[i] = math.Float64frombits(binary.LittleEndian.Uint64(sl[offset:]))
			offset += _ITEM_BYTES_DOUBLE
		}
	}

	return &ItemsSketch[float64]{
		k:                 k,
		m:                 m,
		minK:              minK,
		numLevels:         memVal.numLevels,
		isLevelZeroSorted: isLevelZeroSorted,
		n:                 n,
		levels:            levelsArr,
		items:             items,
		minItem:           minItem,
		maxItem:           maxItem,
		serde:             common.ItemSketchDoubleSerDe{},
		compareFn:         common.ItemSketchDoubleComparator(false),
	}, nil
}
