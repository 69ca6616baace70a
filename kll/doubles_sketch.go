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
	"fmt"
	"math"

	"github.com/apache/datasketches-kll-go/common"
)

// DoublesSketch is the float64 KLL sketch. On top of the levels engine it
// carries the updatable serialized form and can operate directly over a
// caller-supplied byte buffer (a "direct" sketch): every mutation is
// written through so the buffer always holds a valid updatable image.
//
// NaN values offered to a DoublesSketch are ignored.
type DoublesSketch struct {
	sketch    *ItemsSketch[float64]
	readOnly  bool
	wmem      []byte
	memReqSvr MemoryRequestServer
}

// The sorted view and the iterators of a DoublesSketch are the generic
// ones instantiated for float64.
type DoublesSketchSortedView = ItemsSketchSortedView[float64]
type DoublesSketchIterator = ItemsSketchIterator[float64]
type DoublesSketchSortedViewIterator = ItemsSketchSortedViewIterator[float64]

// NewKllDoublesSketch returns a new heap DoublesSketch with the given k and m.
// The default k = 200 results in a normalized rank error of about 1.65%.
func NewKllDoublesSketch(k uint16, m uint8) (*DoublesSketch, error) {
	base, err := NewKllItemsSketch[float64](k, m, common.ItemSketchDoubleComparator(false), common.ItemSketchDoubleSerDe{})
	if err != nil {
		return nil, err
	}
	return &DoublesSketch{sketch: base}, nil
}

// NewKllDoublesSketchWithDefault returns a new heap DoublesSketch with default k and m.
func NewKllDoublesSketchWithDefault() (*DoublesSketch, error) {
	return NewKllDoublesSketch(_DEFAULT_K, _DEFAULT_M)
}

// NewDirectKllDoublesSketch returns a new empty DoublesSketch that lives in
// the given buffer in updatable form. The buffer must be large enough for
// the empty image, GetMaxSerializedSizeBytes(k, 0, true) bytes. Growth
// beyond the buffer goes through memReqSvr; without one the growing
// mutation fails.
func NewDirectKllDoublesSketch(k uint16, m uint8, dstMem []byte, memReqSvr MemoryRequestServer) (*DoublesSketch, error) {
	base, err := NewKllItemsSketch[float64](k, m, common.ItemSketchDoubleComparator(false), common.ItemSketchDoubleSerDe{})
	if err != nil {
		return nil, err
	}
	s := &DoublesSketch{sketch: base, wmem: dstMem, memReqSvr: memReqSvr}
	if len(dstMem) < s.updatableSizeBytes() {
		return nil, fmt.Errorf("given memory is too small for an empty sketch of k %d: %d < %d",
			k, len(dstMem), s.updatableSizeBytes())
	}
	s.writeUpdatableImage(s.wmem)
	return s, nil
}

// NewKllDoublesSketchFromSlice reconstructs a heap DoublesSketch from any
// serialized image, compact or updatable.
func NewKllDoublesSketchFromSlice(sl []byte) (*DoublesSketch, error) {
	base, err := heapifyDoublesSketch(sl)
	if err != nil {
		return nil, err
	}
	return &DoublesSketch{sketch: base}, nil
}

// WrapKllDoublesSketch returns a read-only sketch over the given
// serialized image, compact or updatable. Every query works, every
// mutator fails.
func WrapKllDoublesSketch(sl []byte) (*DoublesSketch, error) {
	base, err := heapifyDoublesSketch(sl)
	if err != nil {
		return nil, err
	}
	return &DoublesSketch{sketch: base, readOnly: true}, nil
}

// WritableWrapKllDoublesSketch returns a live sketch over the given
// updatable image. Mutations are written through to the buffer.
func WritableWrapKllDoublesSketch(wmem []byte, memReqSvr MemoryRequestServer) (*DoublesSketch, error) {
	memVal, err := newDoublesSketchMemoryValidate(wmem)
	if err != nil {
		return nil, err
	}
	if memVal.sketchStructure != _UPDATABLE {
		return nil, fmt.Errorf("writable wrap requires an updatable image, serVer: %d", memVal.serVer)
	}
	base, err := heapifyDoublesSketch(wmem)
	if err != nil {
		return nil, err
	}
	return &DoublesSketch{sketch: base, wmem: wmem, memReqSvr: memReqSvr}, nil
}

// IsReadOnly returns true if this sketch is a read-only wrap.
func (s *DoublesSketch) IsReadOnly() bool {
	return s.readOnly
}

// IsDirect returns true if this sketch writes through to a backing buffer.
func (s *DoublesSketch) IsDirect() bool {
	return s.wmem != nil
}

// GetBuffer returns the current backing buffer of a direct sketch, or nil
// for a heap sketch. After a growth through the MemoryRequestServer this
// is a different buffer than the one the sketch started with.
func (s *DoublesSketch) GetBuffer() []byte {
	return s.wmem
}

func (s *DoublesSketch) IsEmpty() bool {
	return s.sketch.IsEmpty()
}

func (s *DoublesSketch) GetN() uint64 {
	return s.sketch.GetN()
}

func (s *DoublesSketch) GetK() uint16 {
	return s.sketch.GetK()
}

func (s *DoublesSketch) GetMinK() uint16 {
	return s.sketch.GetMinK()
}

func (s *DoublesSketch) GetNumLevels() uint8 {
	return s.sketch.GetNumLevels()
}

func (s *DoublesSketch) GetNumRetained() uint32 {
	return s.sketch.GetNumRetained()
}

func (s *DoublesSketch) IsEstimationMode() bool {
	return s.sketch.IsEstimationMode()
}

// GetMinItem returns the minimum item of the stream.
func (s *DoublesSketch) GetMinItem() (float64, error) {
	return s.sketch.GetMinItem()
}

// GetMaxItem returns the maximum item of the stream.
func (s *DoublesSketch) GetMaxItem() (float64, error) {
	return s.sketch.GetMaxItem()
}

// GetRank returns the normalized rank of the given quantile.
func (s *DoublesSketch) GetRank(quantile float64, inclusive bool) (float64, error) {
	return s.sketch.GetRank(quantile, inclusive)
}

// GetRanks returns the normalized ranks of the given quantiles.
func (s *DoublesSketch) GetRanks(quantiles []float64, inclusive bool) ([]float64, error) {
	return s.sketch.GetRanks(quantiles, inclusive)
}

// GetQuantile returns the approximate quantile of the given normalized rank.
func (s *DoublesSketch) GetQuantile(rank float64, inclusive bool) (float64, error) {
	return s.sketch.GetQuantile(rank, inclusive)
}

// GetQuantiles returns the approximate quantiles of the given normalized ranks.
func (s *DoublesSketch) GetQuantiles(ranks []float64, inclusive bool) ([]float64, error) {
	return s.sketch.GetQuantiles(ranks, inclusive)
}

// GetPMF returns an approximation to the Probability Mass Function of the
// input stream given a set of split points. See ItemsSketch.GetPMF.
func (s *DoublesSketch) GetPMF(splitPoints []float64, inclusive bool) ([]float64, error) {
	return s.sketch.GetPMF(splitPoints, inclusive)
}

// GetCDF returns an approximation to the Cumulative Distribution Function
// of the input stream given a set of split points. See ItemsSketch.GetCDF.
func (s *DoublesSketch) GetCDF(splitPoints []float64, inclusive bool) ([]float64, error) {
	return s.sketch.GetCDF(splitPoints, inclusive)
}

// GetNormalizedRankError returns the rank error bound of this sketch as a
// fraction, driven by the smallest k this sketch has ever merged.
func (s *DoublesSketch) GetNormalizedRankError(pmf bool) float64 {
	return s.sketch.GetNormalizedRankError(pmf)
}

func (s *DoublesSketch) GetRankLowerBound(rank float64) float64 {
	return s.sketch.GetRankLowerBound(rank)
}

func (s *DoublesSketch) GetRankUpperBound(rank float64) float64 {
	return s.sketch.GetRankUpperBound(rank)
}

func (s *DoublesSketch) GetQuantileLowerBound(rank float64) (float64, error) {
	return s.sketch.GetQuantileLowerBound(rank)
}

func (s *DoublesSketch) GetQuantileUpperBound(rank float64) (float64, error) {
	return s.sketch.GetQuantileUpperBound(rank)
}

// GetSortedView returns the sorted view of this sketch.
func (s *DoublesSketch) GetSortedView() (*DoublesSketchSortedView, error) {
	return s.sketch.GetSortedView()
}

// GetIterator returns the iterator over the retained items, which is not sorted.
func (s *DoublesSketch) GetIterator() *DoublesSketchIterator {
	return s.sketch.GetIterator()
}

// GetPartitionBoundaries returns the boundaries of the given number of
// equally sized partitions. See ItemsSketch.GetPartitionBoundaries.
func (s *DoublesSketch) GetPartitionBoundaries(numEquallySized int, inclusive bool) (*ItemsSketchPartitionBoundaries[float64], error) {
	return s.sketch.GetPartitionBoundaries(numEquallySized, inclusive)
}

// Update this sketch with the given value. NaN is ignored.
func (s *DoublesSketch) Update(value float64) error {
	if s.readOnly {
		return fmt.Errorf("target sketch is read only, cannot write")
	}
	if math.IsNaN(value) {
		return nil
	}
	if s.wmem == nil {
		s.sketch.Update(value)
		return nil
	}
	base := s.sketch
	prevNumLevels := base.numLevels
	prevCapacity := len(base.items)
	prevLevel0 := base.levels[0]
	base.Update(value)
	if base.numLevels == prevNumLevels && len(base.items) == prevCapacity && base.levels[0] == prevLevel0-1 {
		s.writeSingleUpdateDelta()
		return nil
	}
	return s.flushToWmem()
}

// UpdateWithWeight updates this sketch with the given value as if it
// occurred weight times in the stream. NaN is ignored. See
// ItemsSketch.UpdateWithWeight for the weight decomposition.
func (s *DoublesSketch) UpdateWithWeight(value float64, weight int64) error {
	if s.readOnly {
		return fmt.Errorf("target sketch is read only, cannot write")
	}
	if math.IsNaN(value) {
		return nil
	}
	if err := s.sketch.UpdateWithWeight(value, weight); err != nil {
		return err
	}
	if s.wmem != nil {
		return s.flushToWmem()
	}
	return nil
}

// UpdateSlice updates this sketch with every value of the given slice, in
// order. It is equivalent to len(values) single updates. NaNs are ignored.
func (s *DoublesSketch) UpdateSlice(values []float64) error {
	if s.readOnly {
		return fmt.Errorf("target sketch is read only, cannot write")
	}
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		s.sketch.Update(v)
	}
	if s.wmem != nil {
		return s.flushToWmem()
	}
	return nil
}

// Merge the given sketch into this sketch.
func (s *DoublesSketch) Merge(other *DoublesSketch) error {
	if s.readOnly {
		return fmt.Errorf("target sketch is read only, cannot write")
	}
	s.sketch.Merge(other.sketch)
	if s.wmem != nil {
		return s.flushToWmem()
	}
	return nil
}

// Reset this sketch to the empty state, retaining k, m and the backing
// buffer of a direct sketch.
func (s *DoublesSketch) Reset() error {
	if s.readOnly {
		return fmt.Errorf("target sketch is read only, cannot write")
	}
	s.sketch.Reset()
	if s.wmem != nil {
		return s.flushToWmem()
	}
	return nil
}
