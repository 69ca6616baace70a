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

	"github.com/apache/datasketches-kll-go/internal"
)

type doublesSketchMemoryValidate struct {
	srcMem          []byte
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
	updatableFlag    bool

	// assumed for the compact empty and single layouts, read for the rest
	n         uint64
	minK      uint16
	numLevels uint8
	//skip unused byte
	levelsArr []uint32 //adjusted to include the top index

	// derived.
	sketchBytes int
}

func newDoublesSketchMemoryValidate(srcMem []byte) (*doublesSketchMemoryValidate, error) {
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
	if !getDoublesSketchFlag(srcMem) {
		return nil, fmt.Errorf("source is not a doubles sketch image")
	}
	emptyFlag := getEmptyFlag(srcMem)
	singleItemFlag := getSingleItemFlag(srcMem)
	level0SortedFlag := getLevelZeroSortedFlag(srcMem)
	updatableFlag := getUpdatableFlag(srcMem)
	if emptyFlag && singleItemFlag {
		return nil, fmt.Errorf("empty flag and single item flag cannot both be set")
	}
	if updatableFlag != (structure == _UPDATABLE) {
		return nil, fmt.Errorf("updatable flag requires serial version %d", _SERIAL_VERSION_UPDATABLE)
	}
	vlid := &doublesSketchMemoryValidate{
		srcMem:           srcMem,
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
		updatableFlag:    updatableFlag,
	}
	err = vlid.validate()
	return vlid, err
}

func (vlid *doublesSketchMemoryValidate) validate() error {
	switch vlid.sketchStructure {
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
		vlid.sketchBytes = _DATA_START_ADR_SINGLE_ITEM + _ITEM_BYTES_DOUBLE
		if len(vlid.srcMem) < vlid.sketchBytes {
			return fmt.Errorf("memory too small for a single item image: %d", len(vlid.srcMem))
		}

	case _COMPACT_FULL, _UPDATABLE:
		if vlid.emptyFlag || vlid.singleItemFlag {
			return fmt.Errorf("empty or single item flag set on a full image")
		}
		if len(vlid.srcMem) < _DATA_START_ADR {
			return fmt.Errorf("memory too small for a full image: %d", len(vlid.srcMem))
		}
		vlid.n = getN(vlid.srcMem)
		vlid.minK = getMinK(vlid.srcMem)
		vlid.numLevels = getNumLevels(vlid.srcMem)
		if vlid.numLevels < 1 {
			return fmt.Errorf("numLevels must be at least one: %d", vlid.numLevels)
		}
		if err := checkK(vlid.minK, vlid.m); err != nil {
			return err
		}

		// the compact layout omits the top levels entry, the updatable
		// layout carries it
		numLevelsEntries := int(vlid.numLevels)
		if vlid.sketchStructure == _UPDATABLE {
			numLevelsEntries++
		}
		if len(vlid.srcMem) < _DATA_START_ADR+numLevelsEntries*4 {
			return fmt.Errorf("memory too small for the levels array: %d", len(vlid.srcMem))
		}
		vlid.levelsArr = make([]uint32, vlid.numLevels+1)
		for i := 0; i < numLevelsEntries; i++ {
			vlid.levelsArr[i] = binary.LittleEndian.Uint32(vlid.srcMem[_DATA_START_ADR+i*4:])
		}
		capacityItems := computeTotalItemCapacity(vlid.k, vlid.m, vlid.numLevels)
		if vlid.sketchStructure == _COMPACT_FULL {
			vlid.levelsArr[vlid.numLevels] = capacityItems //the implied top entry
		} else if vlid.levelsArr[vlid.numLevels] != capacityItems {
			return fmt.Errorf("top levels entry disagrees with the computed item capacity: %d != %d",
				vlid.levelsArr[vlid.numLevels], capacityItems)
		}
		for i := uint8(0); i < vlid.numLevels; i++ {
			if vlid.levelsArr[i] > vlid.levelsArr[i+1] {
				return fmt.Errorf("levels array is not non-decreasing")
			}
		}

		if vlid.sketchStructure == _COMPACT_FULL {
			retained := vlid.levelsArr[vlid.numLevels] - vlid.levelsArr[0]
			vlid.sketchBytes = _DATA_START_ADR + int(vlid.numLevels)*4 + (2+int(retained))*_ITEM_BYTES_DOUBLE
		} else {
			vlid.sketchBytes = _DATA_START_ADR + numLevelsEntries*4 + (2+int(vlid.levelsArr[vlid.numLevels]))*_ITEM_BYTES_DOUBLE
		}
		if len(vlid.srcMem) < vlid.sketchBytes {
			return fmt.Errorf("memory too small for the serialized payload: %d < %d", len(vlid.srcMem), vlid.sketchBytes)
		}
	default:
		return fmt.Errorf("invalid preamble ints and serial version combo")
	}
	return nil
}
