// Package memory provides the main memory of the simulated machine.
package memory

import (
	"errors"
	"log"
)

// ErrOutOfRange is returned when an access falls outside the storage.
var ErrOutOfRange = errors.New(
	"accessing physical address beyond the storage capacity")

// A Storage keeps the bytes of the machine's main memory.
//
// The storage is managed in units of one page frame. Units that were never
// touched hold no memory; they read as zero.
type Storage struct {
	unitSize uint64
	capacity uint64
	data     map[uint64][]byte
}

// NewStorage creates a storage of numUnits frames of unitSize bytes each.
func NewStorage(numUnits, unitSize uint64) *Storage {
	if unitSize == 0 {
		log.Panic("unit size must not be zero")
	}

	storage := new(Storage)

	storage.unitSize = unitSize
	storage.capacity = numUnits * unitSize
	storage.data = make(map[uint64][]byte)

	return storage
}

// Capacity returns the number of bytes the storage holds.
func (s *Storage) Capacity() uint64 {
	return s.capacity
}

// UnitSize returns the size of a frame.
func (s *Storage) UnitSize() uint64 {
	return s.unitSize
}

// NumUnits returns the number of frames.
func (s *Storage) NumUnits() uint64 {
	return s.capacity / s.unitSize
}

// Unit returns the live bytes of frame index. Writes to the returned slice
// change the storage.
func (s *Storage) Unit(index uint64) []byte {
	unit, err := s.createOrGetStorageUnit(index * s.unitSize)
	if err != nil {
		log.Panicf("frame %d: %v", index, err)
	}

	return unit
}

// ZeroUnit clears frame index.
func (s *Storage) ZeroUnit(index uint64) {
	unit := s.Unit(index)
	clear(unit)
}

// CopyUnit copies the content of frame src into frame dst.
func (s *Storage) CopyUnit(dst, src uint64) {
	copy(s.Unit(dst), s.Unit(src))
}

// createOrGetStorageUnit retrieves a storage unit if the unit has been created
// before. Otherwise it initilizes a storage unit in the storage object
func (s *Storage) createOrGetStorageUnit(address uint64) ([]byte, error) {
	if address >= s.capacity {
		return nil, ErrOutOfRange
	}

	baseAddr, _ := s.parseAddress(address)
	unit, ok := s.data[baseAddr]
	if !ok {
		unit = make([]byte, s.unitSize)
		s.data[baseAddr] = unit
	}

	return unit, nil
}

func (s *Storage) parseAddress(addr uint64) (baseAddr, inUnitAddr uint64) {
	inUnitAddr = addr % s.unitSize
	baseAddr = addr - inUnitAddr
	return
}

// Read returns length bytes starting at address.
func (s *Storage) Read(address uint64, length uint64) ([]byte, error) {
	if address+length > s.capacity {
		return nil, ErrOutOfRange
	}

	currAddr := address
	lenLeft := length
	dataOffset := uint64(0)
	res := make([]byte, length)

	for lenLeft > 0 {
		unit, err := s.createOrGetStorageUnit(currAddr)
		if err != nil {
			return nil, err
		}

		baseAddr, inUnitAddr := s.parseAddress(currAddr)
		lenToRead := min(lenLeft, baseAddr+s.unitSize-currAddr)

		copy(res[dataOffset:dataOffset+lenToRead],
			unit[inUnitAddr:inUnitAddr+lenToRead])
		lenLeft -= lenToRead
		dataOffset += lenToRead
		currAddr += lenToRead
	}

	return res, nil
}

// Write stores data starting at address.
func (s *Storage) Write(address uint64, data []byte) error {
	if address+uint64(len(data)) > s.capacity {
		return ErrOutOfRange
	}

	currAddr := address
	dataOffset := uint64(0)

	for dataOffset < uint64(len(data)) {
		unit, err := s.createOrGetStorageUnit(currAddr)
		if err != nil {
			return err
		}

		baseAddr, inUnitAddr := s.parseAddress(currAddr)
		lenToWrite := min(
			uint64(len(data))-dataOffset,
			baseAddr+s.unitSize-currAddr,
		)

		copy(unit[inUnitAddr:inUnitAddr+lenToWrite],
			data[dataOffset:dataOffset+lenToWrite])
		dataOffset += lenToWrite
		currAddr += lenToWrite
	}

	return nil
}
