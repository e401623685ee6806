package mdl

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/mogaika/odyssey_browser/utils"
)

// Attribute presence bits of the companion-file vertex layout. Presence is
// governed by this bitmask alone: an attribute may carry a valid byte offset
// while its bit is clear, and that state round-trips untouched.
const (
	MDX_FLAG_VERTEX  = 0x0001
	MDX_FLAG_UV1     = 0x0002
	MDX_FLAG_UV2     = 0x0004
	MDX_FLAG_UV3     = 0x0008
	MDX_FLAG_UV4     = 0x0010
	MDX_FLAG_NORMAL  = 0x0020
	MDX_FLAG_COLOR   = 0x0040
	MDX_FLAG_TANGENT = 0x0080
)

// MDX_OFFSET_NONE marks an absent attribute. Zero is a valid in-bounds
// offset and never means "absent".
const MDX_OFFSET_NONE = -1

// VertexBufferView describes how one mesh's vertices are packed in the
// companion file: total stride plus a byte offset per attribute.
type VertexBufferView struct {
	Stride uint32
	Bitmap uint32

	Position int32
	Normal   int32
	Color    int32
	TexCoord [4]int32
	Tangent  int32

	// Skinning attributes, recorded in the skin payload rather than the
	// trimesh payload; MDX_OFFSET_NONE on everything but skinned meshes.
	Weights     int32
	BoneIndices int32
}

type Face struct {
	Normal   mgl32.Vec3
	Distance float32
	Material uint32
	Adjacent [3]uint16
	Indices  [3]uint16
}

// Mesh is the payload shared by every geometry-bearing node kind.
type Mesh struct {
	Faces []Face

	BoundingBox  [2]mgl32.Vec3
	Radius       float32
	AveragePoint mgl32.Vec3

	Diffuse          mgl32.Vec3
	Ambient          mgl32.Vec3
	TransparencyHint uint32
	Texture          string
	Lightmap         string

	InvertedCounter uint32

	AnimateUV     bool
	UVDirectionX  float32
	UVDirectionY  float32
	UVJitter      float32
	UVJitterSpeed float32

	View        VertexBufferView
	VertexCount int

	TextureCount       uint16
	HasLightmap        bool
	RotateTexture      bool
	BackgroundGeometry bool
	Shadow             bool
	Beaming            bool
	Render             bool

	// Second-revision dirt overlay block; zero under the first layout.
	DirtEnabled     bool
	DirtTexture     uint16
	DirtCoordSpace  uint16
	HideInHolograms bool

	// Kept verbatim for round-trip fidelity, the engine derives LOD
	// heuristics from it.
	TotalArea float32

	// Vertex positions as duplicated in the model file itself.
	Vertices []mgl32.Vec3

	// Raw per-vertex attribute bytes copied out of the companion file,
	// Stride*VertexCount long. Interpreted lazily through View.
	MDXData []byte
}

func (d *decoder) parseMesh(bs *utils.BufStack, n *Node) error {
	m := &Mesh{}
	n.Mesh = m

	bs.Skip(8) // engine function pointers

	facesOffset, facesCount := readArrayDef(bs)

	m.BoundingBox[0] = readVec3(bs)
	m.BoundingBox[1] = readVec3(bs)
	m.Radius = bs.ReadLF()
	m.AveragePoint = readVec3(bs)
	m.Diffuse = readVec3(bs)
	m.Ambient = readVec3(bs)
	m.TransparencyHint = bs.ReadLU32()
	m.Texture = bs.ReadStringBuffer(32)
	m.Lightmap = bs.ReadStringBuffer(32)

	bs.Skip(36) // engine scratch

	indexCountsOffset, indexCountsCount := readArrayDef(bs)
	indexOffsetsOffset, indexOffsetsCount := readArrayDef(bs)
	invCounterOffset, invCounterCount := readArrayDef(bs)

	bs.Skip(12) // engine scratch
	bs.Skip(8)  // saber scratch

	m.AnimateUV = bs.ReadLU32() != 0
	m.UVDirectionX = bs.ReadLF()
	m.UVDirectionY = bs.ReadLF()
	m.UVJitter = bs.ReadLF()
	m.UVJitterSpeed = bs.ReadLF()

	m.View.Stride = bs.ReadLU32()
	m.View.Bitmap = bs.ReadLU32()
	m.View.Position = bs.ReadLI32()
	m.View.Normal = bs.ReadLI32()
	m.View.Color = bs.ReadLI32()
	for i := range m.View.TexCoord {
		m.View.TexCoord[i] = bs.ReadLI32()
	}
	m.View.Tangent = bs.ReadLI32()
	m.View.Weights = MDX_OFFSET_NONE
	m.View.BoneIndices = MDX_OFFSET_NONE

	m.VertexCount = int(bs.ReadLU16())
	m.TextureCount = bs.ReadLU16()
	m.HasLightmap = bs.ReadByte() != 0
	m.RotateTexture = bs.ReadByte() != 0
	m.BackgroundGeometry = bs.ReadByte() != 0
	m.Shadow = bs.ReadByte() != 0
	m.Beaming = bs.ReadByte() != 0
	m.Render = bs.ReadByte() != 0
	bs.Skip(2)

	if d.version == V2 {
		m.DirtEnabled = bs.ReadByte() != 0
		bs.Skip(1)
		m.DirtTexture = bs.ReadLU16()
		m.DirtCoordSpace = bs.ReadLU16()
		m.HideInHolograms = bs.ReadByte() != 0
		bs.Skip(1)
	}

	m.TotalArea = bs.ReadLF()
	bs.Skip(4)
	mdxDataOffset := bs.ReadLU32()
	vertexArrayOffset := bs.ReadLU32()

	if err := d.parseFaces(m, facesOffset, facesCount); err != nil {
		return err
	}
	if err := d.verifyIndexArrays(m,
		indexCountsOffset, indexCountsCount,
		indexOffsetsOffset, indexOffsetsCount); err != nil {
		return err
	}
	if invCounterCount > 0 {
		m.InvertedCounter = d.geom.LU32(int(invCounterOffset))
	}

	if m.VertexCount > 0 {
		vb := d.geom.SubBuf("vertices", int(vertexArrayOffset)).SetSize(m.VertexCount * 12).SetName(n.Name)
		m.Vertices = make([]mgl32.Vec3, m.VertexCount)
		for i := range m.Vertices {
			m.Vertices[i] = readVec3(vb)
		}
	}

	return d.correlateMDX(m, n.Name, mdxDataOffset)
}

func (d *decoder) parseFaces(m *Mesh, offset, count uint32) error {
	if count == 0 {
		return nil
	}
	fb := d.geom.SubBuf("faces", int(offset)).SetSize(int(count) * FACE_SIZE)
	m.Faces = make([]Face, count)
	for i := range m.Faces {
		f := &m.Faces[i]
		f.Normal = readVec3(fb)
		f.Distance = fb.ReadLF()
		f.Material = fb.ReadLU32()
		for j := range f.Adjacent {
			f.Adjacent[j] = fb.ReadLU16()
		}
		for j := range f.Indices {
			f.Indices[j] = fb.ReadLU16()
		}
	}
	fb.VerifySize(fb.Pos())
	return nil
}

// The format stores the face vertex indices a second time as a flat u16
// array. The copy carries no extra information but its declared length is a
// cheap cross-check against the face array.
func (d *decoder) verifyIndexArrays(m *Mesh, countsOffset, countsCount, offsetsOffset, offsetsCount uint32) error {
	if countsCount == 0 && offsetsCount == 0 {
		return nil
	}
	if countsCount == 0 || offsetsCount == 0 {
		return errors.Wrapf(ErrConsistency,
			"index count array (%d) and index offset array (%d) disagree", countsCount, offsetsCount)
	}

	declared := d.geom.LU32(int(countsOffset))
	if int(declared) != len(m.Faces)*3 {
		return errors.Wrapf(ErrConsistency,
			"declared %d face indices for %d faces", declared, len(m.Faces))
	}

	indexArrayOffset := d.geom.LU32(int(offsetsOffset))
	ib := d.geom.SubBuf("indices", int(indexArrayOffset)).SetSize(int(declared) * 2)
	for i := range m.Faces {
		for j := 0; j < 3; j++ {
			if index := ib.ReadLU16(); index != m.Faces[i].Indices[j] {
				return errors.Wrapf(ErrConsistency,
					"face %d index %d: flat array has %d, face has %d", i, j, index, m.Faces[i].Indices[j])
			}
		}
	}
	return nil
}
