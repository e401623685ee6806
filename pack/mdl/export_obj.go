package mdl

import (
	"fmt"
	"io"

	"github.com/go-gl/mathgl/mgl32"
)

// ExportObj writes the renderable geometry as a Wavefront OBJ. The node
// hierarchy flattens into world space since OBJ has no transform tree.
func (m *Model) ExportObj(_w io.Writer) error {
	w := func(format string, args ...interface{}) {
		_w.Write(([]byte)(fmt.Sprintf(format+"\n", args...)))
	}

	w("# %s", m.Name)

	iV := uint32(1)
	iT := uint32(1)
	iN := uint32(1)

	var walk func(n *Node, parentPos mgl32.Vec3, parentRot mgl32.Quat) error
	walk = func(n *Node, parentPos mgl32.Vec3, parentRot mgl32.Quat) error {
		pos := parentPos.Add(parentRot.Rotate(n.Position))
		rot := parentRot.Mul(n.Orientation)

		if n.Kind.HasMesh() && n.Kind != KindSaberMesh && len(n.Mesh.Faces) > 0 {
			mesh := n.Mesh

			positions, err := mesh.Positions()
			if err != nil {
				positions = mesh.Vertices
			}
			for _, p := range positions {
				world := pos.Add(rot.Rotate(p))
				w("v %f %f %f", world[0], world[1], world[2])
			}

			uvs, uvErr := mesh.TexCoords(0)
			if uvErr == nil {
				for _, uv := range uvs {
					w("vt %f %f", uv[0], -uv[1])
				}
			}

			normals, normErr := mesh.Normals()
			if normErr == nil {
				for _, normal := range normals {
					world := rot.Rotate(normal)
					w("vn %f %f %f", world[0], world[1], world[2])
				}
			}

			w("o %s", n.Name)
			if mesh.Texture != "" {
				w("usemtl %s", mesh.Texture)
			}

			haveUV := uvErr == nil
			haveNorm := normErr == nil
			for i := range mesh.Faces {
				indexes := mesh.Faces[i].Indices

				if haveNorm {
					if haveUV {
						w("f %v/%v/%v %v/%v/%v %v/%v/%v",
							iV+uint32(indexes[0]), iT+uint32(indexes[0]), iN+uint32(indexes[0]),
							iV+uint32(indexes[1]), iT+uint32(indexes[1]), iN+uint32(indexes[1]),
							iV+uint32(indexes[2]), iT+uint32(indexes[2]), iN+uint32(indexes[2]))
					} else {
						w("f %v//%v %v//%v %v//%v",
							iV+uint32(indexes[0]), iN+uint32(indexes[0]),
							iV+uint32(indexes[1]), iN+uint32(indexes[1]),
							iV+uint32(indexes[2]), iN+uint32(indexes[2]))
					}
				} else {
					if haveUV {
						w("f %v/%v %v/%v %v/%v",
							iV+uint32(indexes[0]), iT+uint32(indexes[0]),
							iV+uint32(indexes[1]), iT+uint32(indexes[1]),
							iV+uint32(indexes[2]), iT+uint32(indexes[2]))
					} else {
						w("f %v %v %v",
							iV+uint32(indexes[0]),
							iV+uint32(indexes[1]),
							iV+uint32(indexes[2]))
					}
				}
			}

			iV += uint32(len(positions))
			if haveUV {
				iT += uint32(len(uvs))
			}
			if haveNorm {
				iN += uint32(len(normals))
			}
		}

		for _, child := range n.Children {
			if err := walk(child, pos, rot); err != nil {
				return err
			}
		}
		return nil
	}

	return walk(m.Root, mgl32.Vec3{}, mgl32.QuatIdent())
}
