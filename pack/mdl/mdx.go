package mdl

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// correlateMDX copies this mesh's slice of the companion file into the owned
// tree. A declared extent that does not fit the companion buffer is a
// consistency failure, not a truncation: the primary file itself is intact.
func (d *decoder) correlateMDX(m *Mesh, name string, dataOffset uint32) error {
	if m.View.Stride == 0 || m.VertexCount == 0 || dataOffset == NODE_OFFSET_NONE {
		return nil
	}
	need := int(m.View.Stride) * m.VertexCount
	if int(dataOffset)+need > d.mdx.Size() {
		return errors.Wrapf(ErrConsistency,
			"mesh %q wants vertex data [0x%x:0x%x], companion file has 0x%x bytes",
			name, dataOffset, int(dataOffset)+need, d.mdx.Size())
	}
	m.MDXData = make([]byte, need)
	copy(m.MDXData, d.mdx.SubBuf("vertexdata", int(dataOffset)).SetSize(need).SetName(name).Raw())
	return nil
}

func (m *Mesh) attribute(i int, offset int32) []byte {
	base := i*int(m.View.Stride) + int(offset)
	return m.MDXData[base:]
}

func (m *Mesh) attributePresent(flag uint32, offset int32, width int) error {
	if m.View.Bitmap&flag == 0 {
		return errors.Wrapf(ErrUnsupportedVariant, "attribute 0x%x is not present (bitmap 0x%x)", flag, m.View.Bitmap)
	}
	if offset == MDX_OFFSET_NONE {
		return errors.Wrapf(ErrConsistency, "attribute 0x%x marked present but has no offset", flag)
	}
	if offset < 0 || int(offset)+width > int(m.View.Stride) {
		return errors.Wrapf(ErrConsistency,
			"attribute 0x%x of %d bytes at offset 0x%x outside of stride 0x%x", flag, width, offset, m.View.Stride)
	}
	return nil
}

func mdxF32(b []byte, i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
}

func (m *Mesh) mdxVec3s(offset int32) []mgl32.Vec3 {
	out := make([]mgl32.Vec3, m.VertexCount)
	for i := range out {
		a := m.attribute(i, offset)
		out[i] = mgl32.Vec3{mdxF32(a, 0), mdxF32(a, 1), mdxF32(a, 2)}
	}
	return out
}

// Positions materializes vertex positions from the companion data.
func (m *Mesh) Positions() ([]mgl32.Vec3, error) {
	if err := m.attributePresent(MDX_FLAG_VERTEX, m.View.Position, 12); err != nil {
		return nil, err
	}
	return m.mdxVec3s(m.View.Position), nil
}

func (m *Mesh) Normals() ([]mgl32.Vec3, error) {
	if err := m.attributePresent(MDX_FLAG_NORMAL, m.View.Normal, 12); err != nil {
		return nil, err
	}
	return m.mdxVec3s(m.View.Normal), nil
}

func (m *Mesh) Colors() ([]mgl32.Vec3, error) {
	if err := m.attributePresent(MDX_FLAG_COLOR, m.View.Color, 12); err != nil {
		return nil, err
	}
	return m.mdxVec3s(m.View.Color), nil
}

// TexCoords returns texture coordinate set 0..3.
func (m *Mesh) TexCoords(set int) ([]mgl32.Vec2, error) {
	if set < 0 || set >= len(m.View.TexCoord) {
		return nil, errors.Wrapf(ErrConsistency, "texture coordinate set %d out of range", set)
	}
	if err := m.attributePresent(uint32(MDX_FLAG_UV1<<uint(set)), m.View.TexCoord[set], 8); err != nil {
		return nil, err
	}
	out := make([]mgl32.Vec2, m.VertexCount)
	for i := range out {
		a := m.attribute(i, m.View.TexCoord[set])
		out[i] = mgl32.Vec2{mdxF32(a, 0), mdxF32(a, 1)}
	}
	return out, nil
}

// Tangents returns the per-vertex tangent basis (tangent, bitangent, normal).
func (m *Mesh) Tangents() ([][3]mgl32.Vec3, error) {
	if err := m.attributePresent(MDX_FLAG_TANGENT, m.View.Tangent, 36); err != nil {
		return nil, err
	}
	out := make([][3]mgl32.Vec3, m.VertexCount)
	for i := range out {
		a := m.attribute(i, m.View.Tangent)
		for j := 0; j < 3; j++ {
			out[i][j] = mgl32.Vec3{mdxF32(a, j*3), mdxF32(a, j*3+1), mdxF32(a, j*3+2)}
		}
	}
	return out, nil
}

type BoneWeight struct {
	Bone   int16
	Weight float32
}

// BoneWeights returns exactly four (bone, weight) slots per vertex. Unused
// slots are zero-padded, never truncated: the companion file stores a bone
// index of -1 for them.
func (m *Mesh) BoneWeights() ([][4]BoneWeight, error) {
	if m.View.Weights == MDX_OFFSET_NONE || m.View.BoneIndices == MDX_OFFSET_NONE {
		return nil, errors.Wrapf(ErrUnsupportedVariant, "mesh carries no skinning attributes")
	}
	for _, offset := range [2]int32{m.View.Weights, m.View.BoneIndices} {
		if offset < 0 || int(offset)+16 > int(m.View.Stride) {
			return nil, errors.Wrapf(ErrConsistency,
				"skinning attribute offset 0x%x outside of stride 0x%x", offset, m.View.Stride)
		}
	}
	out := make([][4]BoneWeight, m.VertexCount)
	for i := range out {
		weights := m.attribute(i, m.View.Weights)
		bones := m.attribute(i, m.View.BoneIndices)
		for j := 0; j < 4; j++ {
			w := mdxF32(weights, j)
			bone := int16(mdxF32(bones, j))
			if w == 0 || bone < 0 {
				out[i][j] = BoneWeight{}
				continue
			}
			out[i][j] = BoneWeight{Bone: bone, Weight: w}
		}
	}
	return out, nil
}
