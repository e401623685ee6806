package mdl

import (
	"github.com/mogaika/odyssey_browser/utils"
)

// Saber marks a mesh for the fixed-topology blade billboard. The renderer
// owns the reinterpretation; the codec preserves the flags and the blade's
// private attribute copies byte for byte.
type Saber struct {
	Vertices  []byte // VertexCount * 12
	TexCoords []byte // VertexCount * 8
	Normals   []byte // VertexCount * 12

	Flags [2]uint32
}

func (d *decoder) parseSaber(bs *utils.BufStack, n *Node) error {
	s := &Saber{}
	n.Saber = s

	verticesOffset := bs.ReadLU32()
	texCoordsOffset := bs.ReadLU32()
	normalsOffset := bs.ReadLU32()
	s.Flags[0] = bs.ReadLU32()
	s.Flags[1] = bs.ReadLU32()

	vc := n.Mesh.VertexCount
	if vc == 0 {
		return nil
	}

	read := func(kind string, offset uint32, size int) []byte {
		blob := make([]byte, size)
		copy(blob, d.geom.SubBuf(kind, int(offset)).SetSize(size).SetName(n.Name).Raw())
		return blob
	}
	s.Vertices = read("sabervertices", verticesOffset, vc*12)
	s.TexCoords = read("sabertexcoords", texCoordsOffset, vc*8)
	s.Normals = read("sabernormals", normalsOffset, vc*12)
	return nil
}
