package mdl

import (
	"github.com/pkg/errors"
)

// The name table is a flat array of signed 32-bit offsets followed by a pool
// of NUL-terminated strings. The pool length is never stored: it is derived
// as the distance between the end of the offset array and the first
// animation (or the root node, when there are no animations). The derivation
// is a quirk of the format and is reproduced exactly, including the "derived
// length is negative means zero names" case.
func (d *decoder) parseNames(offset, count, end uint32) error {
	if count == 0 {
		return nil
	}

	blobStart := offset + 4*count
	blobLen := int64(end) - int64(blobStart)
	if blobLen < 0 {
		return nil
	}

	blob := d.geom.SubBuf("names", int(blobStart)).SetSize(int(blobLen))

	d.names = make([]string, count)
	for i := range d.names {
		nameOffset := int32(d.geom.LU32(int(offset) + i*4))
		if nameOffset < int32(blobStart) || int64(nameOffset) >= int64(end) {
			return errors.Wrapf(ErrConsistency,
				"name %d offset 0x%x outside of pool [0x%x:0x%x]", i, nameOffset, blobStart, end)
		}
		name := blob.SubBuf("name", int(nameOffset)-int(blobStart))
		d.names[i] = name.ReadZString(int(blobLen) - (int(nameOffset) - int(blobStart)))
	}
	return nil
}

func (d *decoder) resolveName(index uint16) (string, error) {
	if int(index) >= len(d.names) {
		return "", errors.Wrapf(ErrConsistency,
			"name id %d outside of table of %d names", index, len(d.names))
	}
	return d.names[index], nil
}

// collectNames rebuilds the serialized name table in first-use depth-first
// order: model tree first, then every animation tree.
func (e *encoder) collectNames(m *Model) {
	e.nameIndex = make(map[string]uint16)
	e.names = e.names[:0]

	use := func(name string) {
		if _, ok := e.nameIndex[name]; ok {
			return
		}
		e.nameIndex[name] = uint16(len(e.names))
		e.names = append(e.names, name)
	}

	var walk func(n *Node)
	walk = func(n *Node) {
		if n == nil {
			return
		}
		use(n.Name)
		for _, child := range n.Children {
			walk(child)
		}
	}

	walk(m.Root)
	for _, anim := range m.Animations {
		walk(anim.Root)
	}
}
