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
	"math"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
)

// deterministicDoubles produces a replayable pseudo-random stream for
// stress tests: hashing the index keeps the stream stable across runs
// without seeding the global rand.
func deterministicDoubles(n int, seed uint64) []float64 {
	var buf [8]byte
	out := make([]float64, n)
	for i := range out {
		binary.LittleEndian.PutUint64(buf[:], seed+uint64(i))
		out[i] = float64(xxhash.Sum64(buf[:]) % 1_000_000)
	}
	return out
}

func TestDoublesSketch_Empty(t *testing.T) {
	sketch, err := NewKllDoublesSketchWithDefault()
	assert.NoError(t, err)
	assert.True(t, sketch.IsEmpty())
	assert.False(t, sketch.IsEstimationMode())
	assert.False(t, sketch.IsDirect())
	assert.Equal(t, uint64(0), sketch.GetN())
	assert.Equal(t, uint32(0), sketch.GetNumRetained())
	_, err = sketch.GetMinItem()
	assert.Error(t, err)
	_, err = sketch.GetMaxItem()
	assert.Error(t, err)
	_, err = sketch.GetQuantile(0.5, true)
	assert.Error(t, err)
	_, err = sketch.GetRank(0, true)
	assert.Error(t, err)
}

func TestDoublesSketch_NaNIgnored(t *testing.T) {
	sketch, err := NewKllDoublesSketchWithDefault()
	assert.NoError(t, err)
	assert.NoError(t, sketch.Update(math.NaN()))
	assert.True(t, sketch.IsEmpty())
	assert.NoError(t, sketch.Update(1))
	assert.NoError(t, sketch.Update(math.NaN()))
	assert.Equal(t, uint64(1), sketch.GetN())
}

func TestDoublesSketch_NaNSplitPoints(t *testing.T) {
	sketch, err := NewKllDoublesSketchWithDefault()
	assert.NoError(t, err)
	for i := 1; i <= 100; i++ {
		assert.NoError(t, sketch.Update(float64(i)))
	}
	_, err = sketch.GetPMF([]float64{math.NaN()}, true)
	assert.Error(t, err)
	_, err = sketch.GetPMF([]float64{10, math.NaN(), 50}, true)
	assert.Error(t, err)
	_, err = sketch.GetCDF([]float64{50, 10}, true) // out of order
	assert.Error(t, err)
}

// the minimal end-to-end scenario: a thousand sequential updates
func TestDoublesSketch_EndToEnd(t *testing.T) {
	sketch, err := NewKllDoublesSketch(200, _DEFAULT_M)
	assert.NoError(t, err)
	for i := 1; i <= 1000; i++ {
		assert.NoError(t, sketch.Update(float64(i)))
	}
	assert.Equal(t, uint64(1000), sketch.GetN())
	minV, err := sketch.GetMinItem()
	assert.NoError(t, err)
	assert.Equal(t, 1.0, minV)
	maxV, err := sketch.GetMaxItem()
	assert.NoError(t, err)
	assert.Equal(t, 1000.0, maxV)

	eps := sketch.GetNormalizedRankError(false)
	r, err := sketch.GetRank(500, true)
	assert.NoError(t, err)
	assert.InDelta(t, 0.5, r, 2*eps)
	q, err := sketch.GetQuantile(0.5, true)
	assert.NoError(t, err)
	assert.InDelta(t, 500, q, 1000*eps)
}

func TestDoublesSketch_CompactRoundTrip(t *testing.T) {
	sketch, err := NewKllDoublesSketch(200, _DEFAULT_M)
	assert.NoError(t, err)
	for i := 1; i <= 1000; i++ {
		assert.NoError(t, sketch.Update(float64(i)))
	}
	bytes1, err := sketch.ToSlice()
	assert.NoError(t, err)
	sz, err := sketch.GetSerializedSizeBytes(false)
	assert.NoError(t, err)
	assert.Equal(t, sz, len(bytes1))

	sketch2, err := NewKllDoublesSketchFromSlice(bytes1)
	assert.NoError(t, err)
	assert.Equal(t, sketch.GetN(), sketch2.GetN())
	assert.Equal(t, sketch.GetK(), sketch2.GetK())
	assert.Equal(t, sketch.GetMinK(), sketch2.GetMinK())
	assert.Equal(t, sketch.GetNumLevels(), sketch2.GetNumLevels())
	assert.Equal(t, sketch.GetNumRetained(), sketch2.GetNumRetained())
	min1, err := sketch.GetMinItem()
	assert.NoError(t, err)
	min2, err := sketch2.GetMinItem()
	assert.NoError(t, err)
	assert.Equal(t, min1, min2)
	max1, err := sketch.GetMaxItem()
	assert.NoError(t, err)
	max2, err := sketch2.GetMaxItem()
	assert.NoError(t, err)
	assert.Equal(t, max1, max2)

	bytes2, err := sketch2.ToSlice()
	assert.NoError(t, err)
	assert.Equal(t, bytes1, bytes2)
}

func TestDoublesSketch_EmptyRoundTrip(t *testing.T) {
	sketch, err := NewKllDoublesSketchWithDefault()
	assert.NoError(t, err)
	bytes1, err := sketch.ToSlice()
	assert.NoError(t, err)
	assert.Equal(t, _DATA_START_ADR_SINGLE_ITEM, len(bytes1))
	sketch2, err := NewKllDoublesSketchFromSlice(bytes1)
	assert.NoError(t, err)
	assert.True(t, sketch2.IsEmpty())
	bytes2, err := sketch2.ToSlice()
	assert.NoError(t, err)
	assert.Equal(t, bytes1, bytes2)
}

func TestDoublesSketch_SingleItem(t *testing.T) {
	sketch, err := NewKllDoublesSketchWithDefault()
	assert.NoError(t, err)
	assert.NoError(t, sketch.Update(1))

	// the compact single layout is the 8 byte preamble plus one item
	bytes1, err := sketch.ToSlice()
	assert.NoError(t, err)
	assert.Equal(t, _DATA_START_ADR_SINGLE_ITEM+_ITEM_BYTES_DOUBLE, len(bytes1))

	sketch2, err := NewKllDoublesSketchFromSlice(bytes1)
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), sketch2.GetN())
	assert.Equal(t, uint32(1), sketch2.GetNumRetained())
	minV, err := sketch2.GetMinItem()
	assert.NoError(t, err)
	assert.Equal(t, 1.0, minV)
	maxV, err := sketch2.GetMaxItem()
	assert.NoError(t, err)
	assert.Equal(t, 1.0, maxV)
	bytes2, err := sketch2.ToSlice()
	assert.NoError(t, err)
	assert.Equal(t, bytes1, bytes2)

	// merging a singleton bumps n by one and adjusts max
	a, err := NewKllDoublesSketchWithDefault()
	assert.NoError(t, err)
	for i := 1; i <= 10; i++ {
		assert.NoError(t, a.Update(float64(i)))
	}
	singleton, err := NewKllDoublesSketchWithDefault()
	assert.NoError(t, err)
	assert.NoError(t, singleton.Update(21))
	assert.NoError(t, a.Merge(singleton))
	assert.Equal(t, uint64(11), a.GetN())
	maxV, err = a.GetMaxItem()
	assert.NoError(t, err)
	assert.Equal(t, 21.0, maxV)
}

func TestDoublesSketch_UpdatableRoundTrip(t *testing.T) {
	sketch, err := NewKllDoublesSketch(200, _DEFAULT_M)
	assert.NoError(t, err)
	values := deterministicDoubles(10_000, 17)
	assert.NoError(t, sketch.UpdateSlice(values))

	upd1, err := sketch.ToUpdatableSlice()
	assert.NoError(t, err)
	sz, err := sketch.GetSerializedSizeBytes(true)
	assert.NoError(t, err)
	assert.Equal(t, sz, len(upd1))

	sketch2, err := NewKllDoublesSketchFromSlice(upd1)
	assert.NoError(t, err)
	assert.Equal(t, sketch.GetN(), sketch2.GetN())
	assert.Equal(t, sketch.GetNumRetained(), sketch2.GetNumRetained())
	upd2, err := sketch2.ToUpdatableSlice()
	assert.NoError(t, err)
	assert.Equal(t, upd1, upd2)

	// the compact forms must agree as well
	c1, err := sketch.ToSlice()
	assert.NoError(t, err)
	c2, err := sketch2.ToSlice()
	assert.NoError(t, err)
	assert.Equal(t, c1, c2)
}

func TestDoublesSketch_UpdatableEmptyRoundTrip(t *testing.T) {
	sketch, err := NewKllDoublesSketch(200, _DEFAULT_M)
	assert.NoError(t, err)
	upd, err := sketch.ToUpdatableSlice()
	assert.NoError(t, err)
	assert.Equal(t, GetMaxSerializedSizeBytes(200, 0, true), len(upd))
	sketch2, err := NewKllDoublesSketchFromSlice(upd)
	assert.NoError(t, err)
	assert.True(t, sketch2.IsEmpty())
	upd2, err := sketch2.ToUpdatableSlice()
	assert.NoError(t, err)
	assert.Equal(t, upd, upd2)
}

func TestDoublesSketch_MergeContamination(t *testing.T) {
	a, err := NewKllDoublesSketch(256, _DEFAULT_M)
	assert.NoError(t, err)
	b, err := NewKllDoublesSketch(128, _DEFAULT_M)
	assert.NoError(t, err)
	for i := 1; i <= 10_000; i++ {
		assert.NoError(t, a.Update(float64(i)))
		assert.NoError(t, b.Update(float64(10_000+i)))
	}
	bErr := b.GetNormalizedRankError(false)
	assert.NoError(t, a.Merge(b))
	assert.Equal(t, bErr, a.GetNormalizedRankError(false))
	assert.Equal(t, uint16(128), a.GetMinK())
	assert.Equal(t, uint64(20_000), a.GetN())
}

func TestDoublesSketch_MergeEmptyNeutrality(t *testing.T) {
	a, err := NewKllDoublesSketch(256, _DEFAULT_M)
	assert.NoError(t, err)
	b, err := NewKllDoublesSketch(128, _DEFAULT_M)
	assert.NoError(t, err)
	for i := 1; i <= 10_000; i++ {
		assert.NoError(t, a.Update(float64(i)))
	}
	preErr := a.GetNormalizedRankError(true)
	assert.NoError(t, a.Merge(b))
	assert.Equal(t, preErr, a.GetNormalizedRankError(true))
	assert.Equal(t, uint16(256), a.GetMinK())
	assert.Equal(t, uint64(10_000), a.GetN())
}

func TestDoublesSketch_WeightedUpdate(t *testing.T) {
	sketch, err := NewKllDoublesSketch(20, _DEFAULT_M)
	assert.NoError(t, err)
	assert.NoError(t, sketch.UpdateWithWeight(10, 127))
	assert.Equal(t, uint32(7), sketch.GetNumRetained())
	assert.Equal(t, uint64(127), sketch.GetN())
	assert.NoError(t, sketch.UpdateWithWeight(10, 127))
	assert.Equal(t, uint32(14), sketch.GetNumRetained())
	assert.Equal(t, uint64(254), sketch.GetN())
}

func TestDoublesSketch_UpdateSliceEquivalence(t *testing.T) {
	values := deterministicDoubles(5000, 3)
	bulk, err := NewKllDoublesSketchWithDefault()
	assert.NoError(t, err)
	assert.NoError(t, bulk.UpdateSlice(values))
	single, err := NewKllDoublesSketchWithDefault()
	assert.NoError(t, err)
	for _, v := range values {
		assert.NoError(t, single.Update(v))
	}
	assert.Equal(t, single.GetN(), bulk.GetN())
	minB, err := bulk.GetMinItem()
	assert.NoError(t, err)
	minS, err := single.GetMinItem()
	assert.NoError(t, err)
	assert.Equal(t, minS, minB)
	maxB, err := bulk.GetMaxItem()
	assert.NoError(t, err)
	maxS, err := single.GetMaxItem()
	assert.NoError(t, err)
	assert.Equal(t, maxS, maxB)
}

func TestDoublesSketch_ReadOnlyWrap(t *testing.T) {
	sketch, err := NewKllDoublesSketchWithDefault()
	assert.NoError(t, err)
	for i := 1; i <= 1000; i++ {
		assert.NoError(t, sketch.Update(float64(i)))
	}
	bytes1, err := sketch.ToSlice()
	assert.NoError(t, err)

	wrapped, err := WrapKllDoublesSketch(bytes1)
	assert.NoError(t, err)
	assert.True(t, wrapped.IsReadOnly())
	assert.Equal(t, uint64(1000), wrapped.GetN())
	q, err := wrapped.GetQuantile(0.5, true)
	assert.NoError(t, err)
	assert.InDelta(t, 500, q, 1000*wrapped.GetNormalizedRankError(false))

	// every mutator must fail on a read-only wrap
	assert.Error(t, wrapped.Update(1))
	assert.Error(t, wrapped.UpdateWithWeight(1, 10))
	assert.Error(t, wrapped.UpdateSlice([]float64{1, 2}))
	assert.Error(t, wrapped.Merge(sketch))
	assert.Error(t, wrapped.Reset())
	assert.Equal(t, uint64(1000), wrapped.GetN())
}

func TestDoublesSketch_WritableWrap(t *testing.T) {
	direct, err := NewDirectKllDoublesSketch(200, _DEFAULT_M, make([]byte, GetMaxSerializedSizeBytes(200, 0, true)), DefaultMemoryRequestServer{})
	assert.NoError(t, err)
	for i := 1; i <= 100; i++ {
		assert.NoError(t, direct.Update(float64(i)))
	}

	// the buffer always holds a valid updatable image
	wrapped, err := WritableWrapKllDoublesSketch(direct.GetBuffer(), DefaultMemoryRequestServer{})
	assert.NoError(t, err)
	assert.Equal(t, uint64(100), wrapped.GetN())
	assert.NoError(t, wrapped.Update(101))
	assert.Equal(t, uint64(101), wrapped.GetN())

	// a compact image cannot be writable wrapped
	heap, err := NewKllDoublesSketchWithDefault()
	assert.NoError(t, err)
	assert.NoError(t, heap.Update(1))
	compact, err := heap.ToSlice()
	assert.NoError(t, err)
	_, err = WritableWrapKllDoublesSketch(compact, nil)
	assert.Error(t, err)
}

func TestDoublesSketch_DirectGrowth(t *testing.T) {
	initial := make([]byte, GetMaxSerializedSizeBytes(200, 0, true))
	sketch, err := NewDirectKllDoublesSketch(200, _DEFAULT_M, initial, DefaultMemoryRequestServer{})
	assert.NoError(t, err)
	assert.True(t, sketch.IsDirect())
	for i := 1; i <= 10_000; i++ {
		assert.NoError(t, sketch.Update(float64(i)))
	}
	// growth went through the request server, so the sketch moved off the
	// initial buffer
	assert.Greater(t, len(sketch.GetBuffer()), len(initial))
	assert.Equal(t, uint64(10_000), sketch.GetN())
	minV, err := sketch.GetMinItem()
	assert.NoError(t, err)
	assert.Equal(t, 1.0, minV)
	maxV, err := sketch.GetMaxItem()
	assert.NoError(t, err)
	assert.Equal(t, 10_000.0, maxV)

	// the final buffer still heapifies to the same state
	sketch2, err := NewKllDoublesSketchFromSlice(sketch.GetBuffer())
	assert.NoError(t, err)
	assert.Equal(t, sketch.GetN(), sketch2.GetN())
	assert.Equal(t, sketch.GetNumRetained(), sketch2.GetNumRetained())
}

func TestDoublesSketch_DirectGrowthWithoutCallbackFails(t *testing.T) {
	initial := make([]byte, GetMaxSerializedSizeBytes(200, 0, true))
	sketch, err := NewDirectKllDoublesSketch(200, _DEFAULT_M, initial, nil)
	assert.NoError(t, err)
	var updateErr error
	for i := 1; i <= 10_000 && updateErr == nil; i++ {
		updateErr = sketch.Update(float64(i))
	}
	assert.Error(t, updateErr)
	assert.ErrorContains(t, updateErr, "MemoryRequestServer")
}

func TestDoublesSketch_DirectTooSmall(t *testing.T) {
	_, err := NewDirectKllDoublesSketch(200, _DEFAULT_M, make([]byte, 100), nil)
	assert.Error(t, err)
}

func TestDoublesSketch_DirectReset(t *testing.T) {
	sketch, err := NewDirectKllDoublesSketch(200, _DEFAULT_M, make([]byte, GetMaxSerializedSizeBytes(200, 0, true)), DefaultMemoryRequestServer{})
	assert.NoError(t, err)
	for i := 1; i <= 1000; i++ {
		assert.NoError(t, sketch.Update(float64(i)))
	}
	assert.NoError(t, sketch.Reset())
	assert.True(t, sketch.IsEmpty())
	assert.Equal(t, uint16(200), sketch.GetK())
	assert.NotNil(t, sketch.GetBuffer())

	// the buffer image reflects the reset
	sketch2, err := NewKllDoublesSketchFromSlice(sketch.GetBuffer())
	assert.NoError(t, err)
	assert.True(t, sketch2.IsEmpty())

	assert.NoError(t, sketch.Update(42))
	assert.Equal(t, uint64(1), sketch.GetN())
}

func TestDoublesSketch_DirectMatchesHeap(t *testing.T) {
	values := deterministicDoubles(20_000, 99)
	heap, err := NewKllDoublesSketchWithDefault()
	assert.NoError(t, err)
	direct, err := NewDirectKllDoublesSketch(_DEFAULT_K, _DEFAULT_M, make([]byte, GetMaxSerializedSizeBytes(_DEFAULT_K, 0, true)), DefaultMemoryRequestServer{})
	assert.NoError(t, err)
	heap.sketch.deterministicOffsetForTest = true
	direct.sketch.deterministicOffsetForTest = true

	nextOffsetForTest = 0
	for _, v := range values {
		assert.NoError(t, heap.Update(v))
	}
	nextOffsetForTest = 0
	for _, v := range values {
		assert.NoError(t, direct.Update(v))
	}

	heapBytes, err := heap.ToSlice()
	assert.NoError(t, err)
	directBytes, err := direct.ToSlice()
	assert.NoError(t, err)
	assert.Equal(t, heapBytes, directBytes)

	// the live buffer heapifies to the same compact image too
	fromBuffer, err := NewKllDoublesSketchFromSlice(direct.GetBuffer())
	assert.NoError(t, err)
	bufferBytes, err := fromBuffer.ToSlice()
	assert.NoError(t, err)
	assert.Equal(t, heapBytes, bufferBytes)
}

func TestDoublesSketch_RankQuantileRoundTripWithinBounds(t *testing.T) {
	sketch, err := NewKllDoublesSketchWithDefault()
	assert.NoError(t, err)
	sketch.sketch.deterministicOffsetForTest = true
	values := deterministicDoubles(100_000, 7)
	assert.NoError(t, sketch.UpdateSlice(values))
	eps := sketch.GetNormalizedRankError(false)
	for i := 0; i <= 100; i++ {
		rank := float64(i) / 100.0
		q, err := sketch.GetQuantile(rank, true)
		assert.NoError(t, err)
		r, err := sketch.GetRank(q, true)
		assert.NoError(t, err)
		assert.InDelta(t, rank, r, 2*eps, "rank: %f", rank)
	}
}
