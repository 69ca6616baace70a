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
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/apache/datasketches-kll-go/common"
	"github.com/apache/datasketches-kll-go/internal"
)

func TestItemsSketch_SerializeDeserializeEmpty(t *testing.T) {
	comparator := common.ItemSketchStringComparator(false)
	sketch1, err := NewKllItemsSketchWithDefault[string](comparator, common.ItemSketchStringSerDe{})
	assert.NoError(t, err)
	bytes1, err := sketch1.ToSlice()
	assert.NoError(t, err)
	assert.Equal(t, _DATA_START_ADR_SINGLE_ITEM, len(bytes1))
	sketch2, err := NewKllItemsSketchFromSlice[string](bytes1, comparator, common.ItemSketchStringSerDe{})
	assert.NoError(t, err)
	assert.True(t, sketch2.IsEmpty())
	assert.Equal(t, sketch1.GetK(), sketch2.GetK())
	bytes2, err := sketch2.ToSlice()
	assert.NoError(t, err)
	assert.Equal(t, bytes1, bytes2)
}

func TestItemsSketch_SerializeDeserializeOneItem(t *testing.T) {
	comparator := common.ItemSketchStringComparator(false)
	sketch1, err := NewKllItemsSketchWithDefault[string](comparator, common.ItemSketchStringSerDe{})
	assert.NoError(t, err)
	sketch1.Update("A")
	bytes1, err := sketch1.ToSlice()
	assert.NoError(t, err)
	// 8 byte preamble plus the length-prefixed item
	assert.Equal(t, _DATA_START_ADR_SINGLE_ITEM+4+1, len(bytes1))
	sketch2, err := NewKllItemsSketchFromSlice[string](bytes1, comparator, common.ItemSketchStringSerDe{})
	assert.NoError(t, err)
	assert.False(t, sketch2.IsEmpty())
	assert.Equal(t, uint64(1), sketch2.GetN())
	assert.Equal(t, uint32(1), sketch2.GetNumRetained())
	minV, err := sketch2.GetMinItem()
	assert.NoError(t, err)
	assert.Equal(t, "A", minV)
	maxV, err := sketch2.GetMaxItem()
	assert.NoError(t, err)
	assert.Equal(t, "A", maxV)
	bytes2, err := sketch2.ToSlice()
	assert.NoError(t, err)
	assert.Equal(t, bytes1, bytes2)
}

func TestItemsSketch_SerializeDeserializeFull(t *testing.T) {
	comparator := common.ItemSketchStringComparator(false)
	sketch1, err := NewKllItemsSketchWithDefault[string](comparator, common.ItemSketchStringSerDe{})
	assert.NoError(t, err)
	n := 10_000
	digits := numDigits(n)
	for i := 1; i <= n; i++ {
		sketch1.Update(intToFixedLengthString(i, digits))
	}
	bytes1, err := sketch1.ToSlice()
	assert.NoError(t, err)
	sizeBytes, err := sketch1.GetSerializedSizeBytes()
	assert.NoError(t, err)
	assert.Equal(t, sizeBytes, len(bytes1))

	sketch2, err := NewKllItemsSketchFromSlice[string](bytes1, comparator, common.ItemSketchStringSerDe{})
	assert.NoError(t, err)
	assert.Equal(t, sketch1.GetN(), sketch2.GetN())
	assert.Equal(t, sketch1.GetK(), sketch2.GetK())
	assert.Equal(t, sketch1.GetMinK(), sketch2.GetMinK())
	assert.Equal(t, sketch1.GetNumLevels(), sketch2.GetNumLevels())
	assert.Equal(t, sketch1.GetNumRetained(), sketch2.GetNumRetained())
	min1, err := sketch1.GetMinItem()
	assert.NoError(t, err)
	min2, err := sketch2.GetMinItem()
	assert.NoError(t, err)
	assert.Equal(t, min1, min2)
	max1, err := sketch1.GetMaxItem()
	assert.NoError(t, err)
	max2, err := sketch2.GetMaxItem()
	assert.NoError(t, err)
	assert.Equal(t, max1, max2)

	bytes2, err := sketch2.ToSlice()
	assert.NoError(t, err)
	assert.Equal(t, bytes1, bytes2)

	// generic items do not support the updatable layout
	_, err = sketch1.ToUpdatableSlice()
	assert.Error(t, err)
}

func TestItemsSketch_DeserializeDoublesImageFails(t *testing.T) {
	dsk, err := NewKllDoublesSketchWithDefault()
	assert.NoError(t, err)
	for i := 1; i <= 100; i++ {
		assert.NoError(t, dsk.Update(float64(i)))
	}
	bytes1, err := dsk.ToSlice()
	assert.NoError(t, err)
	_, err = NewKllItemsSketchFromSlice[float64](bytes1, common.ItemSketchDoubleComparator(false), common.ItemSketchDoubleSerDe{})
	assert.Error(t, err)
}

// Cross-language compatibility: the fixture files are produced by the
// C++ and Java implementations and shared through the common
// serialization_test_data directory.
func TestDoublesSketch_CrossLanguage(t *testing.T) {
	if _, err := os.Stat(internal.CppPath); err != nil {
		t.Skipf("%s not available", internal.CppPath)
	}
	nArr := []uint64{0, 10, 100, 1000, 10_000, 100_000, 1_000_000}
	for _, n := range nArr {
		fileName := fmt.Sprintf("%s/kll_double_n%d_cpp.sk", internal.CppPath, n)
		bytes, err := os.ReadFile(fileName)
		if err != nil {
			t.Skipf("%s not available", fileName)
		}
		sketch, err := NewKllDoublesSketchFromSlice(bytes)
		assert.NoError(t, err, "n: %d", n)
		assert.Equal(t, uint16(200), sketch.GetK())
		assert.Equal(t, n, sketch.GetN())
		assert.Equal(t, n == 0, sketch.IsEmpty())
		assert.Equal(t, n > 100, sketch.IsEstimationMode())
		if n > 0 {
			minV, err := sketch.GetMinItem()
			assert.NoError(t, err)
			assert.Equal(t, 1.0, minV)
			maxV, err := sketch.GetMaxItem()
			assert.NoError(t, err)
			assert.Equal(t, float64(n), maxV)
			it := sketch.GetIterator()
			total := int64(0)
			for it.Next() {
				total += it.GetWeight()
			}
			assert.Equal(t, int64(n), total)
		}
	}
}

func TestItemsSketch_CrossLanguageStrings(t *testing.T) {
	if _, err := os.Stat(internal.CppPath); err != nil {
		t.Skipf("%s not available", internal.CppPath)
	}
	comparator := common.ItemSketchStringComparator(false)
	nArr := []uint64{0, 10, 100, 1000, 10_000, 100_000, 1_000_000}
	for _, n := range nArr {
		fileName := fmt.Sprintf("%s/kll_string_n%d_cpp.sk", internal.CppPath, n)
		bytes, err := os.ReadFile(fileName)
		if err != nil {
			t.Skipf("%s not available", fileName)
		}
		sketch, err := NewKllItemsSketchFromSlice[string](bytes, comparator, common.ItemSketchStringSerDe{})
		assert.NoError(t, err, "n: %d", n)
		assert.Equal(t, uint16(200), sketch.GetK())
		assert.Equal(t, n, sketch.GetN())
		assert.Equal(t, n == 0, sketch.IsEmpty())
		assert.Equal(t, n > 100, sketch.IsEstimationMode())
	}
}

// TestGenerateGoFiles writes serialized sketches for the other language
// bindings to verify against. It only runs when the generate environment
// variable is set.
func TestGenerateGoFiles(t *testing.T) {
	if len(os.Getenv(internal.DSketchTestGenerateGo)) == 0 {
		t.Skipf("%s not set", internal.DSketchTestGenerateGo)
	}
	err := os.MkdirAll(internal.GoPath, 0o755)
	assert.NoError(t, err)

	nArr := []int{0, 1, 10, 100, 1000, 10000, 100000, 1000000}
	for _, n := range nArr {
		digits := numDigits(n)
		sk, err := NewKllItemsSketchWithDefault[string](common.ItemSketchStringComparator(false), common.ItemSketchStringSerDe{})
		assert.NoError(t, err)
		for i := 1; i <= n; i++ {
			sk.Update(intToFixedLengthString(i, digits))
		}
		slc, err := sk.ToSlice()
		assert.NoError(t, err)
		err = os.WriteFile(fmt.Sprintf("%s/kll_string_n%d_go.sk", internal.GoPath, n), slc, 0o644)
		assert.NoError(t, err)

		dsk, err := NewKllDoublesSketchWithDefault()
		assert.NoError(t, err)
		for i := 1; i <= n; i++ {
			assert.NoError(t, dsk.Update(float64(i)))
		}
		dslc, err := dsk.ToSlice()
		assert.NoError(t, err)
		err = os.WriteFile(fmt.Sprintf("%s/kll_double_n%d_go.sk", internal.GoPath, n), dslc, 0o644)
		assert.NoError(t, err)
	}
}
