package vm

import (
	"fmt"
	"sort"
)

// DefaultStackSize is the user stack appended above the data segments.
const DefaultStackSize = 1024

// A Segment is a contiguous range of the address space and, for file backed
// segments, where its bytes start in the executable image.
type Segment struct {
	VirtualAddr uint64
	InFileAddr  uint64
	Size        uint64
}

// End returns the first virtual address after the segment.
func (s Segment) End() uint64 {
	return s.VirtualAddr + s.Size
}

// RegionKind names the region a byte of the address space belongs to.
type RegionKind int

// The regions of an address space.
const (
	RegionCode RegionKind = iota
	RegionInitData
	RegionUninitData
	RegionStack
)

func (k RegionKind) String() string {
	switch k {
	case RegionCode:
		return "code"
	case RegionInitData:
		return "initData"
	case RegionUninitData:
		return "uninitData"
	case RegionStack:
		return "stack"
	default:
		return fmt.Sprintf("region(%d)", int(k))
	}
}

// FileBacked reports whether the region's bytes come from the image. The
// others are zero-filled on demand.
func (k RegionKind) FileBacked() bool {
	return k == RegionCode || k == RegionInitData
}

// A Layout describes where code, initialized data and uninitialized data live
// in the address space and in the image. The stack sits right above the
// highest segment.
type Layout struct {
	Code       Segment
	InitData   Segment
	UninitData Segment
	StackSize  uint64
}

// A Piece is the part of one page covered by one region.
type Piece struct {
	Region     RegionKind
	PageOffset uint64
	Length     uint64

	// FileOffset is where the piece starts in the image. Only meaningful for
	// file backed regions.
	FileOffset uint64
}

func (l Layout) segments() []struct {
	kind RegionKind
	seg  Segment
} {
	return []struct {
		kind RegionKind
		seg  Segment
	}{
		{RegionCode, l.Code},
		{RegionInitData, l.InitData},
		{RegionUninitData, l.UninitData},
	}
}

// DataEnd returns the end of the highest non-empty segment.
func (l Layout) DataEnd() uint64 {
	end := uint64(0)
	for _, s := range l.segments() {
		if s.seg.Size > 0 && s.seg.End() > end {
			end = s.seg.End()
		}
	}

	return end
}

// Size returns the address space size in bytes, rounded up to whole pages.
func (l Layout) Size(pageSize uint64) uint64 {
	return l.NumPages(pageSize) * pageSize
}

// NumPages returns the number of virtual pages the layout needs.
func (l Layout) NumPages(pageSize uint64) uint64 {
	return divRoundUp(l.DataEnd()+l.StackSize, pageSize)
}

// Validate checks that the segments do not overlap.
func (l Layout) Validate() error {
	segs := l.segments()
	for i := range segs {
		for j := i + 1; j < len(segs); j++ {
			a, b := segs[i].seg, segs[j].seg
			if a.Size == 0 || b.Size == 0 {
				continue
			}

			if a.VirtualAddr < b.End() && b.VirtualAddr < a.End() {
				return fmt.Errorf("segments %s and %s overlap",
					segs[i].kind, segs[j].kind)
			}
		}
	}

	return nil
}

// PagePieces splits virtual page vpn into the regions it intersects, ordered
// by offset. Bytes of the page not covered by any piece belong to no region.
func (l Layout) PagePieces(vpn, pageSize uint64) []Piece {
	start := vpn * pageSize
	end := start + pageSize

	var pieces []Piece
	for _, s := range l.segments() {
		if s.seg.Size == 0 {
			continue
		}

		p, ok := intersect(start, end, s.seg.VirtualAddr, s.seg.End())
		if !ok {
			continue
		}

		pieces = append(pieces, Piece{
			Region:     s.kind,
			PageOffset: p.lo - start,
			Length:     p.hi - p.lo,
			FileOffset: s.seg.InFileAddr + (p.lo - s.seg.VirtualAddr),
		})
	}

	stackLo := l.DataEnd()
	stackHi := l.Size(pageSize)
	if p, ok := intersect(start, end, stackLo, stackHi); ok && l.StackSize > 0 {
		pieces = append(pieces, Piece{
			Region:     RegionStack,
			PageOffset: p.lo - start,
			Length:     p.hi - p.lo,
		})
	}

	sort.Slice(pieces, func(i, j int) bool {
		return pieces[i].PageOffset < pieces[j].PageOffset
	})

	return pieces
}

// PageReadOnly reports whether every region the page touches is code.
func (l Layout) PageReadOnly(vpn, pageSize uint64) bool {
	pieces := l.PagePieces(vpn, pageSize)
	if len(pieces) == 0 {
		return false
	}

	for _, p := range pieces {
		if p.Region != RegionCode {
			return false
		}
	}

	return true
}

type span struct{ lo, hi uint64 }

func intersect(aLo, aHi, bLo, bHi uint64) (span, bool) {
	lo := max(aLo, bLo)
	hi := min(aHi, bHi)
	if lo >= hi {
		return span{}, false
	}

	return span{lo, hi}, true
}

func divRoundUp(n, d uint64) uint64 {
	return (n + d - 1) / d
}
