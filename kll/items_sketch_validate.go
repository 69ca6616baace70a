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

	"github.com/apache/datasketches-kll-go/common"
	"github.com/apache/datasketches-kll-go/internal"
)

type itemsSketchMemoryValidate[C comparable] struct {
	srcMem          []byte
	serde           common.ItemSketchSerde[C]
	sketchStructure sketchStructure

	// first 8 bytes of preamble
	preInts  int
	serVer   int
	familyID int
	flags    int
	k        uint16
	m        uint8
	//byte 7 is unused

	//Flag bits:
	emptyFlag        bool
	singleItemFlag   bool
	level0SortedFlag bool

	// depending on the layout, the next 8-16 bytes of the preamble may be derived by assumption.
	// For example, if the layout is compact & empty, n = 0, if compact and single, n = 1.
	n         uint64 //8 bytes (if present)
	minK      uint16 //2 bytes (if present)
	numLevels uint8  //1 byte  (if present)
	//skip unused byte
	levelsArr []uint32 //starts at byte 20, adjusted to include the top index here

	// derived.
	sketchBytes int
}

func newItemsSketchMemoryValidate[C comparable](srcMem []byte, serde common.ItemSketchSerde[C]) (*itemsSketchMemoryValidate[C], error) {
	capa := len(srcMem)
	if capa < _DATA_START_ADR_SINGLE_ITEM {
		return nil, fmt.Errorf("memory too small: %d", capa)
	}
	preInts := getPreInts(srcMem)
	serVer := getSerVer(srcMem)
	structure, err := getSketchStructure(preInts, serVer)
	if err != nil {
		return nil, err
	}
	familyID := getFamilyID(srcMem)
	if familyID != internal.FamilyEnum.Kll.Id {
		return nil, fmt.Errorf("source not KLL: %d", familyID)
	}
	flags := getFlags(srcMem)
	k := getK(srcMem)
	m := getM(srcMem)
	if err := checkSerializedM(m); err != nil {
		return nil, err
	}
	if err := checkK(k, m); err != nil {
		return nil, err
	}
	//flags
	emptyFlag := getEmptyFlag(srcMem)
	singleItemFlag := getSingleItemFlag(srcMem)
	level0SortedFlag := getLevelZeroSortedFlag(srcMem)
	if emptyFlag && singleItemFlag {
		return nil, fmt.Errorf("empty flag and single item flag cannot both be set")
	}
	if getDoublesSketchFlag(srcMem) {
		return nil, fmt.Errorf("source is a doubles sketch image, use the doubles sketch to deserialize it")
	}
	if getUpdatableFlag(srcMem) {
		return nil, fmt.Errorf("updatable flag is not supported for generic items")
	}
	vlid := &itemsSketchMemoryValidate[C]{
		srcMem:           srcMem,
		serde:            serde,
		sketchStructure:  structure,
		preInts:          preInts,
		serVer:           serVer,
		familyID:         familyID,
		flags:            flags,
		k:                k,
		m:                m,
		emptyFlag:        emptyFlag,
		singleItemFlag:   singleItemFlag,
		level0SortedFlag: level0SortedFlag,
	}
	err = vlid.validate()
	return vlid, err
}

func (vlid *itemsSketchMemoryValidate[C]) validate() error {
	switch vlid.sketchStructure {
	case _COMPACT_FULL:
		if vlid.emptyFlag || vlid.singleItemFlag {
			return fmt.Errorf("empty or single item flag set on a compact full image")
		}
		if len(vlid.srcMem) < _DATA_START_ADR {
			return fmt.Errorf("memory too small for a compact full image: %d", len(vlid.srcMem))
		}
		vlid.n = getN(vlid.srcMem)
		vlid.minK = getMinK(vlid.srcMem)
		vlid.numLevels = getNumLevels(vlid.srcMem)
		if vlid.numLevels < 1 {
			return fmt.Errorf("numLevels must be at least one: %d", vlid.numLevels)
		}
		if len(vlid.srcMem) < _DATA_START_ADR+int(vlid.numLevels)*4 {
			return fmt.Errorf("memory too small for the levels array: %d", len(vlid.srcMem))
		}
		// Get Levels Arr and add the last element
		vlid.levelsArr = make([]uint32, vlid.numLevels+1)
		for i := uint8(0); i < vlid.numLevels; i++ {
			vlid.levelsArr[i] = binary.LittleEndian.Uint32(vlid.srcMem[_DATA_START_ADR+uint32(i)*4 : _DATA_START_ADR+uint32(i)*4+4])
		}
		capacityItems := computeTotalItemCapacity(vlid.k, vlid.m, vlid.numLevels)
		vlid.levelsArr[vlid.numLevels] = capacityItems //load the last one
		for i := uint8(0); i < vlid.numLevels; i++ {
			if vlid.levelsArr[i] > vlid.levelsArr[i+1] {
				return fmt.Errorf("levels array is not non-decreasing")
			}
		}
		sb, err := computeSketchBytes(vlid.srcMem, vlid.levelsArr, vlid.serde)
		if err != nil {
			return err
		}
		vlid.sketchBytes = sb
		if len(vlid.srcMem) < vlid.sketchBytes {
			return fmt.Errorf("memory too small for the serialized payload: %d < %d", len(vlid.srcMem), vlid.sketchBytes)
		}

	case _COMPACT_EMPTY:
		if !vlid.emptyFlag {
			return fmt.Errorf("empty flag must be set on a compact empty image")
		}
		vlid.n = 0 //assumed
		vlid.minK = vlid.k
		vlid.numLevels = 1 //assumed
		vlid.levelsArr = []uint32{uint32(vlid.k), uint32(vlid.k)}
		vlid.sketchBytes = _DATA_START_ADR_SINGLE_ITEM
	case _COMPACT_SINGLE:
		if !vlid.singleItemFlag {
			return fmt.Errorf("single item flag must be set on a compact single image")
		}
		vlid.n = 1 //assumed
		vlid.minK = vlid.k
		vlid.numLevels = 1 //assumed
		vlid.levelsArr = []uint32{uint32(vlid.k) - 1, uint32(vlid.k)}
		v, err := vlid.serde.SizeOfMany(vlid.srcMem, _DATA_START_ADR_SINGLE_ITEM, 1)
		if err != nil {
			return err
		}
		vlid.sketchBytes = _DATA_START_ADR_SINGLE_ITEM + v
	default:
		return fmt.Errorf("invalid preamble ints and serial version combo")
	}
	return nil
}

func computeSketchBytes[C comparable](srcMem []byte, levelsArr []uint32, serde common.ItemSketchSerde[C]) (int, error) {
	numLevels := len(levelsArr) - 1
	retainedItems := levelsArr[numLevels] - levelsArr[0]
	levelsLen := len(levelsArr) - 1
	offsetBytes := _DATA_START_ADR + levelsLen*4
	v, err := serde.SizeOfMany(srcMem, offsetBytes, int(retainedItems)+2) //2 for min & max
	if err != nil {
		return 0, err
	}
	offsetBytes += v
	return offsetBytes, nil
}
