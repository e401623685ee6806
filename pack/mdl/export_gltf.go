package mdl

import (
	"fmt"
	"io"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// ExportGLTF writes the model as a glTF 2.0 document, binary (.glb) or JSON.
// Only renderable geometry travels: sabers keep their private layout and
// lights, emitters and references become empty transform nodes.
func (m *Model) ExportGLTF(w io.Writer, asBinary bool) error {
	doc := gltf.NewDocument()
	doc.Scenes[0].Name = m.Name

	rootIndex, err := exportGLTFNode(doc, m.Root)
	if err != nil {
		return err
	}
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, rootIndex)

	encoder := gltf.NewEncoder(w)
	encoder.AsBinary = asBinary
	return encoder.Encode(doc)
}

func exportGLTFNode(doc *gltf.Document, n *Node) (uint32, error) {
	gltfNode := &gltf.Node{
		Name:        n.Name,
		Translation: n.Position,
		Rotation: [4]float32{
			n.Orientation.V[0], n.Orientation.V[1], n.Orientation.V[2], n.Orientation.W},
	}

	if n.Kind.HasMesh() && n.Kind != KindSaberMesh && len(n.Mesh.Faces) > 0 {
		meshIndex, err := exportGLTFMesh(doc, n)
		if err != nil {
			return 0, err
		}
		gltfNode.Mesh = gltf.Index(meshIndex)
	}

	for _, child := range n.Children {
		childIndex, err := exportGLTFNode(doc, child)
		if err != nil {
			return 0, err
		}
		gltfNode.Children = append(gltfNode.Children, childIndex)
	}

	doc.Nodes = append(doc.Nodes, gltfNode)
	return uint32(len(doc.Nodes) - 1), nil
}

func exportGLTFMesh(doc *gltf.Document, n *Node) (uint32, error) {
	mesh := n.Mesh
	attributes := make(map[string]uint32)

	positions, err := mesh.Positions()
	if err != nil {
		// No companion attributes; the model file's own vertex copy is
		// still good for static export.
		positions = mesh.Vertices
	}
	flat := make([][3]float32, len(positions))
	for i, p := range positions {
		flat[i] = p
	}
	attributes["POSITION"] = modeler.WritePosition(doc, flat)

	if normals, err := mesh.Normals(); err == nil {
		flatNormals := make([][3]float32, len(normals))
		for i, normal := range normals {
			if normal.Len() > 0.5 {
				normal = normal.Normalize()
			}
			flatNormals[i] = normal
		}
		attributes["NORMAL"] = modeler.WriteNormal(doc, flatNormals)
	}

	for set := range mesh.View.TexCoord {
		uvs, err := mesh.TexCoords(set)
		if err != nil {
			continue
		}
		flatUVs := make([][2]float32, len(uvs))
		for i, uv := range uvs {
			flatUVs[i] = uv
		}
		attributes[fmt.Sprintf("TEXCOORD_%d", set)] = modeler.WriteTextureCoord(doc, flatUVs)
	}

	if boneWeights, err := mesh.BoneWeights(); err == nil && n.Skin != nil {
		joints := make([][4]uint16, len(boneWeights))
		weights := make([][4]float32, len(boneWeights))
		for i, vertex := range boneWeights {
			for j, bw := range vertex {
				joints[i][j] = uint16(bw.Bone)
				weights[i][j] = bw.Weight
			}
		}
		attributes["JOINTS_0"] = modeler.WriteJoints(doc, joints)
		attributes["WEIGHTS_0"] = modeler.WriteWeights(doc, weights)
	}

	indices := make([]uint32, 0, len(mesh.Faces)*3)
	for i := range mesh.Faces {
		for _, index := range mesh.Faces[i].Indices {
			indices = append(indices, uint32(index))
		}
	}
	indicesAccessor := modeler.WriteIndices(doc, indices)

	doc.Meshes = append(doc.Meshes, &gltf.Mesh{
		Name: n.Name,
		Primitives: []*gltf.Primitive{
			{
				Indices:    &indicesAccessor,
				Attributes: attributes,
			},
		},
	})
	return uint32(len(doc.Meshes) - 1), nil
}
