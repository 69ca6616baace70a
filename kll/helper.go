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
	"errors"
	"math"
	"math/bits"
	"strconv"

	"github.com/apache/datasketches-kll-go/common"
	"github.com/apache/datasketches-kll-go/internal"
)

const (
	tailRoundingFactor = 1e7

	_PMF_COEF = 2.446
	_PMF_EXP  = 0.9433
	_CDF_COEF = 2.296
	_CDF_EXP  = 0.9723
)

var powersOfThree = []uint64{1, 3, 9, 27, 81, 243, 729, 2187, 6561, 19683, 59049, 177147, 531441,
	1594323, 4782969, 14348907, 43046721, 129140163, 387420489, 1162261467,
	3486784401, 10460353203, 31381059609, 94143178827, 282429536481,
	847288609443, 2541865828329, 7625597484987, 22876792454961, 68630377364883,
	205891132094649}

// levelCapacity returns the target number of items for the given level in
// a sketch of the given numLevels. The capacity shrinks by a factor of 2/3
// per level of depth below the top and never goes below m.
func levelCapacity(k uint16, numLevels uint8, level uint8, m uint8) uint32 {
	depth := numLevels - level - 1
	return max(uint32(m), intCapAux(k, depth))
}

func intCapAux(k uint16, depth uint8) uint32 {
	if depth <= 30 {
		return intCapAuxAux(k, depth)
	}
	half := depth / 2
	rest := depth - half
	tmp := intCapAuxAux(k, half)
	return intCapAuxAux(uint16(tmp), rest)
}

func intCapAuxAux(k uint16, depth uint8) uint32 {
	twok := uint64(k) << 1                        // for rounding at the end, pre-multiply by 2 here, divide by 2 during rounding.
	tmp := (twok << depth) / powersOfThree[depth] //2k* (2/3)^depth. 2k also keeps the fraction larger.
	result := (tmp + 1) >> 1                      // (tmp + 1)/2. If odd, round up. This guarantees an integer.
	if result <= uint64(k) {
		return uint32(result)
	}
	return uint32(k)
}

func computeTotalItemCapacity(k uint16, m uint8, numLevels uint8) uint32 {
	var total uint32 = 0
	for level := uint8(0); level < numLevels; level++ {
		total += levelCapacity(k, numLevels, level, m)
	}
	return total
}

// ubOnNumLevels returns an upper bound on the number of levels a sketch
// can reach after n updates. ubOnNumLevels(0) == 1.
func ubOnNumLevels(n uint64) int {
	v := internal.FloorPowerOf2(int64(n))
	return 1 + bits.TrailingZeros64(uint64(v))
}

// levelStats describes the outer shape of a sketch that has grown to a
// given number of levels: the largest n it can absorb before adding
// another level and its total item capacity.
type levelStats struct {
	maxN      uint64
	numLevels uint8
	maxItems  uint32
}

// getFinalSketchStatsAtNumLevels computes, for the given number of
// levels, the total item capacity and the maximum n the sketch can hold
// before the top level must split.
func getFinalSketchStatsAtNumLevels(k uint16, m uint8, numLevels uint8) levelStats {
	maxItems := computeTotalItemCapacity(k, m, numLevels)
	maxN := uint64(0)
	for level := uint8(0); level < numLevels; level++ {
		maxN += uint64(levelCapacity(k, numLevels, level, m)) << level
	}
	return levelStats{maxN: maxN, numLevels: numLevels, maxItems: maxItems}
}

// getGrowthSchemeForGivenN returns the final level stats of a sketch that
// has absorbed n updates: the smallest numLevels whose maxN covers n.
func getGrowthSchemeForGivenN(k uint16, m uint8, n uint64) levelStats {
	numLevels := uint8(1)
	for {
		stats := getFinalSketchStatsAtNumLevels(k, m, numLevels)
		if stats.maxN >= n || numLevels == math.MaxUint8 {
			return stats
		}
		numLevels++
	}
}

// GetMaxSerializedSizeBytes returns an upper bound on the serialized size
// of a doubles sketch with the given k after n updates, in compact form,
// or in updatable form if updatable is true.
func GetMaxSerializedSizeBytes(k uint16, n uint64, updatable bool) int {
	return getMaxSerializedSizeBytes(k, _DEFAULT_M, n, 8, updatable)
}

func getMaxSerializedSizeBytes(k uint16, m uint8, n uint64, typeBytes int, updatable bool) int {
	if !updatable {
		if n == 0 {
			return _DATA_START_ADR_SINGLE_ITEM
		}
		if n == 1 {
			return _DATA_START_ADR_SINGLE_ITEM + typeBytes
		}
	}
	stats := getGrowthSchemeForGivenN(k, m, n)
	if updatable {
		levelsBytes := (int(stats.numLevels) + 1) * 4
		return _DATA_START_ADR + levelsBytes + (int(stats.maxItems)+2)*typeBytes
	}
	levelsBytes := int(stats.numLevels) * 4
	return _DATA_START_ADR + levelsBytes + (int(stats.maxItems)+2)*typeBytes
}

func convertToCumulative(array []int64) int64 {
	subtotal := int64(0)
	for i := range array {
		subtotal += array[i]
		array[i] = subtotal
	}
	return subtotal
}

func getNaturalRank(normalizedRank float64, totalN uint64, inclusive bool) int64 {
	naturalRank := normalizedRank * float64(totalN)
	if totalN <= tailRoundingFactor {
		naturalRank = math.Round(naturalRank*tailRoundingFactor) / tailRoundingFactor
	}
	if inclusive {
		return int64(math.Ceil(naturalRank))
	}
	return int64(math.Floor(naturalRank))
}

func checkK(k uint16, m uint8) error {
	if k < uint16(m) || k > _MAX_K {
		return errors.New("K must be >= " + strconv.Itoa(int(m)) + " and <= " + strconv.Itoa(_MAX_K) + ": " + strconv.Itoa(int(k)))
	}
	return nil
}

func checkM(m uint8) error {
	if m < _MIN_M || m > _MAX_M || ((m & 1) == 1) {
		return errors.New("M must be >= " + strconv.Itoa(_MIN_M) + ", <= " + strconv.Itoa(_MAX_M) + " and even: " + strconv.Itoa(int(m)))
	}
	return nil
}

// checkSerializedM enforces the stricter wire-format rule: the m of a
// serialized sketch must be even and at least the default level width (8).
func checkSerializedM(m uint8) error {
	if ((m & 1) == 1) || m < _DEFAULT_M {
		return errors.New("M in serialized image must be >= " + strconv.Itoa(int(_DEFAULT_M)) + " and even: " + strconv.Itoa(int(m)))
	}
	return nil
}

func checkNormalizedRankBounds(rank float64) error {
	if rank < 0 || rank > 1 {
		return errors.New("rank must be between 0 and 1 inclusive")
	}
	return nil
}

func checkItems[C comparable](items []C, compareFn common.CompareFn[C]) error {
	for i := range items {
		// the self-inequality catches NaN for the floating point variants
		if internal.IsNil(items[i]) || items[i] != items[i] {
			return errors.New("items must be unique, monotonically increasing and not nil")
		}
	}
	for i := 0; i < len(items)-1; i++ {
		if !compareFn(items[i], items[i+1]) {
			return errors.New("items must be unique, monotonically increasing and not nil")
		}
	}
	return nil
}

func numDigits(n int) int {
	if n%10 == 0 {
		n++
	}
	l := math.Log(float64(n))
	return int(math.Ceil(l / math.Log(10)))
}

func intToFixedLengthString(number int, length int) string {
	num := strconv.Itoa(number)
	return characterPad(num, length, ' ', false)
}

func characterPad(s string, fieldLength int, padChar byte, postpend bool) string {
	sLen := len(s)
	if sLen < fieldLength {
		addstr := ""
		for i := 0; i < fieldLength-sLen; i++ {
			addstr += string(padChar)
		}
		if postpend {
			return s + addstr
		}
		return addstr + s
	}
	return s
}

func getNumRetainedAboveLevelZero(numLevels uint8, levels []uint32) uint32 {
	return levels[numLevels] - levels[1]
}

func currentLevelSizeItems(level uint8, numLevels uint8, levels []uint32) uint32 {
	if level >= numLevels {
		return 0
	}
	return levels[level+1] - levels[level]
}

// getNormalizedRankError is the best-fit epsilon curve to the 99 percent
// confidence empirically measured max rank error, as a function of k.
func getNormalizedRankError(k uint16, pmf bool) float64 {
	if pmf {
		return _PMF_COEF / math.Pow(float64(k), _PMF_EXP)
	}
	return _CDF_COEF / math.Pow(float64(k), _CDF_EXP)
}

func evenlySpacedDoubles(value1 float64, value2 float64, num int) ([]float64, error) {
	if num < 2 {
		return nil, errors.New("num must be >= 2")
	}
	out := make([]float64, num)
	out[0] = value1
	out[num-1] = value2
	if num == 2 {
		return out, nil
	}

	delta := (value2 - value1) / float64(num-1)

	for i := 1; i < num-1; i++ {
		out[i] = float64(i)*delta + value1
	}
	return out, nil
}
