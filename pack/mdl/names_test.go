package mdl

import (
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"

	"github.com/mogaika/odyssey_browser/utils"
)

func namesDecoder(geometry []byte) *decoder {
	return &decoder{
		version: V1,
		layout:  layouts[V1],
		geom:    utils.NewBufStack("geometry", geometry),
	}
}

func TestNamePoolDerivedLength(t *testing.T) {
	// Offset array of two entries at 0x10, pool right behind it at 0x18.
	geometry := make([]byte, 0x30)
	binary.LittleEndian.PutUint32(geometry[0x10:], 0x18)
	binary.LittleEndian.PutUint32(geometry[0x14:], 0x1B)
	copy(geometry[0x18:], "ab\x00cd\x00")

	d := namesDecoder(geometry)
	if err := d.parseNames(0x10, 2, 0x1E); err != nil {
		t.Fatal(err)
	}
	if len(d.names) != 2 || d.names[0] != "ab" || d.names[1] != "cd" {
		t.Errorf("parsed names %q", d.names)
	}
}

func TestNamePoolNegativeLength(t *testing.T) {
	// The derived pool length goes negative when the region boundary sits
	// before the end of the offset array. The quirk means zero names, not
	// an error.
	geometry := make([]byte, 0x30)
	binary.LittleEndian.PutUint32(geometry[0x10:], 0x18)

	d := namesDecoder(geometry)
	if err := d.parseNames(0x10, 2, 0x14); err != nil {
		t.Fatal(err)
	}
	if d.names != nil {
		t.Errorf("parsed names %q from a negative pool", d.names)
	}

	if _, err := d.resolveName(0); !errors.Is(err, ErrConsistency) {
		t.Errorf("resolveName on empty table: got %v, want ErrConsistency", err)
	}
}

func TestNameOffsetOutsidePool(t *testing.T) {
	geometry := make([]byte, 0x30)
	binary.LittleEndian.PutUint32(geometry[0x10:], 0x28) // past the pool end

	d := namesDecoder(geometry)
	if err := d.parseNames(0x10, 1, 0x20); !errors.Is(err, ErrConsistency) {
		t.Errorf("got %v, want ErrConsistency", err)
	}
}

func TestNameTableRoundTrip(t *testing.T) {
	var rng utils.RandomNameGenerator

	root := dummyNode(rng.RandomName(), 0)
	for i := 0; i < 20; i++ {
		root.Children = append(root.Children, dummyNode(rng.RandomName(), uint16(i+1)))
	}
	m := &Model{Name: "manynames", Version: V1, Root: root}

	mdlData, mdxData, err := m.Encode(V1)
	if err != nil {
		t.Fatal(err)
	}
	reparsed, err := DecodeVersion(mdlData, mdxData, V1)
	if err != nil {
		t.Fatal(err)
	}

	for i, n := range m.Nodes() {
		if got := reparsed.Nodes()[i].Name; got != n.Name {
			t.Errorf("node %d name %q, want %q", i, got, n.Name)
		}
	}
}
