package vm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// NoffMagic is the magic number at the start of a NOFF image.
const NoffMagic = 0xbadfad

// NoffHeaderSize is the size of the encoded header.
const NoffHeaderSize = 40

type noffSegment struct {
	VirtualAddr int32
	InFileAddr  int32
	Size        int32
}

type noffHeader struct {
	Magic      uint32
	Code       noffSegment
	InitData   noffSegment
	UninitData noffSegment
}

// ParseNoffHeader decodes the header at the start of a NOFF image. Images
// written on a machine of the other endianness are accepted.
func ParseNoffHeader(r io.ReaderAt) (Layout, error) {
	raw := make([]byte, NoffHeaderSize)
	if _, err := r.ReadAt(raw, 0); err != nil {
		return Layout{}, fmt.Errorf("reading NOFF header: %w", err)
	}

	var order binary.ByteOrder
	switch {
	case binary.LittleEndian.Uint32(raw) == NoffMagic:
		order = binary.LittleEndian
	case binary.BigEndian.Uint32(raw) == NoffMagic:
		order = binary.BigEndian
	default:
		return Layout{}, fmt.Errorf("bad NOFF magic 0x%x",
			binary.LittleEndian.Uint32(raw))
	}

	var h noffHeader
	if err := binary.Read(bytes.NewReader(raw), order, &h); err != nil {
		return Layout{}, err
	}

	code, err := h.Code.toSegment("code")
	if err != nil {
		return Layout{}, err
	}

	initData, err := h.InitData.toSegment("initData")
	if err != nil {
		return Layout{}, err
	}

	uninitData, err := h.UninitData.toSegment("uninitData")
	if err != nil {
		return Layout{}, err
	}

	return Layout{
		Code:       code,
		InitData:   initData,
		UninitData: uninitData,
		StackSize:  DefaultStackSize,
	}, nil
}

func (s noffSegment) toSegment(name string) (Segment, error) {
	if s.VirtualAddr < 0 || s.InFileAddr < 0 || s.Size < 0 {
		return Segment{}, fmt.Errorf("negative field in %s segment", name)
	}

	return Segment{
		VirtualAddr: uint64(s.VirtualAddr),
		InFileAddr:  uint64(s.InFileAddr),
		Size:        uint64(s.Size),
	}, nil
}

// WriteNoffImage writes a little-endian NOFF image with code at virtual
// address 0, initialized data right after it, and uninitSize bytes of
// uninitialized data after that.
func WriteNoffImage(
	w io.Writer,
	code, initData []byte,
	uninitSize uint64,
) error {
	total := uint64(NoffHeaderSize) + uint64(len(code)) +
		uint64(len(initData))
	if total > math.MaxInt32 || uninitSize > math.MaxInt32-total {
		return fmt.Errorf("NOFF image of %d code, %d data and %d "+
			"uninitialized bytes does not fit 32-bit fields",
			len(code), len(initData), uninitSize)
	}

	codeSize := int32(len(code))
	dataSize := int32(len(initData))

	h := noffHeader{
		Magic: NoffMagic,
		Code: noffSegment{
			VirtualAddr: 0,
			InFileAddr:  NoffHeaderSize,
			Size:        codeSize,
		},
		InitData: noffSegment{
			VirtualAddr: codeSize,
			InFileAddr:  NoffHeaderSize + codeSize,
			Size:        dataSize,
		},
		UninitData: noffSegment{
			VirtualAddr: codeSize + dataSize,
			Size:        int32(uninitSize),
		},
	}

	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return err
	}

	if _, err := w.Write(code); err != nil {
		return err
	}

	_, err := w.Write(initData)

	return err
}
