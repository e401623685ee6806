package utils

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// BufStack is a hierarchical cursor over a byte buffer. Sub-buffers remember
// their parent and absolute position, so a failed read can report the whole
// chain of regions it happened inside.
type BufStack struct {
	parent         *BufStack
	childs         []*BufStack
	buf            []byte
	relativeOffset int
	absoluteOffset int
	size           int
	pos            int
	kind           string
	name           string
}

// OverrunError is raised (via panic) by any BufStack read that would cross
// the region boundary. Parsers recover it at their entry point.
type OverrunError struct {
	Buf    *BufStack
	Offset int
	Amount int
}

func (e *OverrunError) Error() string {
	return fmt.Sprintf("read of 0x%x bytes at 0x%x overruns %s", e.Amount, e.Offset, e.Buf.StringChain())
}

func NewBufStack(kind string, b []byte) *BufStack {
	return &BufStack{
		buf:  b,
		size: len(b),
		kind: kind,
	}
}

func (bs *BufStack) addChild(childBs *BufStack) {
	if bs.childs == nil {
		bs.childs = make([]*BufStack, 1)
		bs.childs[0] = childBs
	} else {
		index := sort.Search(len(bs.childs), func(i int) bool {
			return bs.childs[i].relativeOffset > childBs.relativeOffset
		})
		bs.childs = append(bs.childs, childBs)
		copy(bs.childs[index+1:], bs.childs[index:])
		bs.childs[index] = childBs
	}
}

func (bs *BufStack) SubBuf(kind string, offset int) *BufStack {
	if offset < 0 || offset > len(bs.buf) {
		panic(&OverrunError{Buf: bs, Offset: offset})
	}
	childBs := &BufStack{
		parent:         bs,
		relativeOffset: offset,
		absoluteOffset: bs.absoluteOffset + offset,
		kind:           kind,
		buf:            bs.buf[offset:],
	}
	bs.addChild(childBs)
	return childBs
}

func (bs *BufStack) SetName(name string) *BufStack {
	bs.name = name
	return bs
}

func (bs *BufStack) SetSize(size int) *BufStack {
	if size < 0 || size > len(bs.buf) {
		panic(&OverrunError{Buf: bs, Offset: size})
	}
	bs.size = size
	return bs
}

func (bs *BufStack) Name() string { return bs.name }

func (bs *BufStack) Size() int { return bs.size }

func (bs *BufStack) Kind() string { return bs.kind }

func (bs *BufStack) Parent() *BufStack { return bs.parent }

func (bs *BufStack) RelativeOffset() int { return bs.relativeOffset }

func (bs *BufStack) AbsoluteOffset() int { return bs.absoluteOffset }

func (bs *BufStack) String() string {
	return fmt.Sprintf("buf<%v>(%v)[o:0x%x,s:0x%x,ao:0x%x,ae:0x%x]",
		bs.kind, bs.name, bs.relativeOffset, bs.size, bs.absoluteOffset, bs.absoluteOffset+bs.size)
}

func (bs *BufStack) StringChain() string {
	s := bs.String()
	if bs.parent != nil {
		s += fmt.Sprintf("::%s", bs.parent.String())
	}
	return s
}

func (bs *BufStack) limit() int {
	if bs.size != 0 {
		return bs.size
	}
	return len(bs.buf)
}

func (bs *BufStack) Raw() []byte {
	raw := bs.buf[:]
	if bs.size != 0 {
		raw = raw[:bs.size]
	}
	return raw
}

func (bs *BufStack) Pos() int { return bs.pos }

func (bs *BufStack) Read(amount int) []byte {
	if amount < 0 || bs.pos+amount > bs.limit() {
		panic(&OverrunError{Buf: bs, Offset: bs.pos, Amount: amount})
	}
	oldPos := bs.pos
	bs.pos += amount
	return bs.buf[oldPos:bs.pos]
}

func (bs *BufStack) Skip(amount int) {
	if bs.pos+amount > bs.limit() {
		panic(&OverrunError{Buf: bs, Offset: bs.pos, Amount: amount})
	}
	bs.pos += amount
}

func (bs *BufStack) ReadLU32() uint32 {
	return binary.LittleEndian.Uint32(bs.Read(4))
}

func (bs *BufStack) ReadLU16() uint16 {
	return binary.LittleEndian.Uint16(bs.Read(2))
}

func (bs *BufStack) ReadLI32() int32 {
	return int32(bs.ReadLU32())
}

func (bs *BufStack) ReadByte() byte {
	return bs.Read(1)[0]
}

func (bs *BufStack) ReadLF() float32 {
	return math.Float32frombits(bs.ReadLU32())
}

func (bs *BufStack) ReadStringBuffer(size int) string {
	return BytesToString(bs.Read(size))
}

// ReadZString reads up to the NUL terminator or the region end, whichever
// comes first.
func (bs *BufStack) ReadZString(limit int) string {
	if max := bs.limit() - bs.pos; limit > max {
		limit = max
	}
	l := 0
	for i := 0; ; i++ {
		if i == limit {
			l = i
			break
		}
		if bs.buf[bs.pos+i] == 0 {
			l = i + 1
			break
		}
	}

	s := BytesToString(bs.buf[bs.pos : bs.pos+l])
	bs.pos += l
	return s
}

// VerifySize asserts that the cursor consumed exactly the declared region.
// Mismatch means the parser itself is wrong, not the file.
func (bs *BufStack) VerifySize(pos int) {
	if pos != bs.size {
		panic(fmt.Sprintf("mismatched sizes for %s: %v != %v", bs.StringChain(), pos, bs.size))
	}
	if bs.size > len(bs.buf) {
		panic(fmt.Sprintf("overgrown buffer %s: %v > %v", bs.StringChain(), bs.size, len(bs.buf)))
	}
}

func (bs *BufStack) LU32(off int) uint32 {
	if off < 0 || off+4 > bs.limit() {
		panic(&OverrunError{Buf: bs, Offset: off, Amount: 4})
	}
	return binary.LittleEndian.Uint32(bs.buf[off:])
}

func (bs *BufStack) LU16(off int) uint16 {
	if off < 0 || off+2 > bs.limit() {
		panic(&OverrunError{Buf: bs, Offset: off, Amount: 2})
	}
	return binary.LittleEndian.Uint16(bs.buf[off:])
}

func (bs *BufStack) Byte(off int) byte {
	if off < 0 || off >= bs.limit() {
		panic(&OverrunError{Buf: bs, Offset: off, Amount: 1})
	}
	return bs.buf[off]
}

func (bs *BufStack) LF(off int) float32 {
	return math.Float32frombits(bs.LU32(off))
}
