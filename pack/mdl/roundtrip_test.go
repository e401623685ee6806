package mdl

import (
	"encoding/binary"
	"math"
	"reflect"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/mogaika/odyssey_browser/utils"
)

func f32le(values ...float32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// newTestMesh builds a mesh whose companion data carries positions and
// normals, stride 24.
func newTestMesh(positions []mgl32.Vec3) *Mesh {
	m := &Mesh{
		Faces: []Face{{
			Normal:   mgl32.Vec3{0, 0, 1},
			Distance: 0.5,
			Material: 1,
			Adjacent: [3]uint16{0xFFFF, 0xFFFF, 0xFFFF},
			Indices:  [3]uint16{0, 1, 2},
		}},
		BoundingBox:     [2]mgl32.Vec3{{-1, -1, -1}, {1, 1, 1}},
		Radius:          1.5,
		AveragePoint:    mgl32.Vec3{0.1, 0.2, 0.3},
		Diffuse:         mgl32.Vec3{0.8, 0.8, 0.8},
		Ambient:         mgl32.Vec3{0.2, 0.2, 0.2},
		Texture:         "grass01",
		InvertedCounter: 1,
		View: VertexBufferView{
			Stride:      24,
			Bitmap:      MDX_FLAG_VERTEX | MDX_FLAG_NORMAL,
			Position:    0,
			Normal:      12,
			Color:       MDX_OFFSET_NONE,
			TexCoord:    [4]int32{MDX_OFFSET_NONE, MDX_OFFSET_NONE, MDX_OFFSET_NONE, MDX_OFFSET_NONE},
			Tangent:     MDX_OFFSET_NONE,
			Weights:     MDX_OFFSET_NONE,
			BoneIndices: MDX_OFFSET_NONE,
		},
		VertexCount: len(positions),
		Render:      true,
		TotalArea:   2.0,
		Vertices:    positions,
	}
	for _, p := range positions {
		m.MDXData = append(m.MDXData, f32le(p[0], p[1], p[2], 0, 0, 1)...)
	}
	return m
}

func dummyNode(name string, number uint16) *Node {
	return &Node{
		Kind:        KindDummy,
		Name:        name,
		NodeNumber:  number,
		Orientation: mgl32.QuatIdent(),
	}
}

// buildFullModel exercises every node kind and both controller encodings.
func buildFullModel(version Version) *Model {
	root := dummyNode("rootnode", 0)
	root.Position = mgl32.Vec3{0, 0, 1}
	root.Controllers = []Controller{
		{
			Type: CONTROLLER_POSITION, Columns: 3,
			Times: []float32{0, 1},
			Data: append([]uint32{},
				math.Float32bits(0), math.Float32bits(0), math.Float32bits(1),
				math.Float32bits(0), math.Float32bits(2), math.Float32bits(1)),
		},
		{
			Type: CONTROLLER_ORIENTATION, Columns: 4,
			Times: []float32{0},
			Data: []uint32{
				math.Float32bits(0), math.Float32bits(0),
				math.Float32bits(0), math.Float32bits(1)},
		},
	}

	trimesh := &Node{
		Kind: KindMesh, Name: "body", NodeNumber: 1,
		Orientation: mgl32.QuatIdent(),
		Mesh: newTestMesh([]mgl32.Vec3{
			{0, 0, 0}, {1, 0, 0}, {0, 1, 0},
		}),
	}
	if version == V2 {
		trimesh.Mesh.DirtEnabled = true
		trimesh.Mesh.DirtTexture = 2
		trimesh.Mesh.DirtCoordSpace = 1
		trimesh.Mesh.HideInHolograms = true
	}

	skinned := &Node{
		Kind: KindSkinMesh, Name: "arm", NodeNumber: 2,
		Orientation: mgl32.QuatIdent(),
		Mesh: newTestMesh([]mgl32.Vec3{
			{0, 0, 1}, {1, 0, 1}, {0, 1, 1},
		}),
		Skin: &Skin{
			BoneMap: []int16{0, -1, 1},
			QBones:  []mgl32.Quat{mgl32.QuatIdent(), mgl32.QuatIdent()},
			TBones:  []mgl32.Vec3{{0, 0, 0}, {0, 0, 2}},
		},
	}
	// Widen the vertex layout with the two skinning attributes.
	skinned.Mesh.View.Stride = 56
	skinned.Mesh.View.Weights = 24
	skinned.Mesh.View.BoneIndices = 40
	skinned.Mesh.MDXData = nil
	for _, p := range skinned.Mesh.Vertices {
		skinned.Mesh.MDXData = append(skinned.Mesh.MDXData,
			f32le(p[0], p[1], p[2], 0, 0, 1, 0.75, 0.25, 0, 0, 0, 1, -1, -1)...)
	}
	for i := range skinned.Skin.BoneSerializationOrder {
		skinned.Skin.BoneSerializationOrder[i] = uint16(i)
	}

	dangly := &Node{
		Kind: KindDanglyMesh, Name: "tail", NodeNumber: 3,
		Orientation: mgl32.QuatIdent(),
		Mesh: newTestMesh([]mgl32.Vec3{
			{0, 0, 2}, {1, 0, 2}, {0, 1, 2},
		}),
		Dangly: &Dangly{
			Constraints:  []float32{0, 0.5, 1},
			Displacement: 0.1,
			Tightness:    2,
			Period:       1.5,
			DataOffset:   MDX_OFFSET_NONE,
		},
	}

	walkmesh := &Node{
		Kind: KindAABBMesh, Name: "walkmesh", NodeNumber: 4,
		Orientation: mgl32.QuatIdent(),
		Mesh: newTestMesh([]mgl32.Vec3{
			{0, 0, 3}, {1, 0, 3}, {0, 1, 3},
		}),
		AABB: &AABBNode{
			BoundingBox:          [2]mgl32.Vec3{{-1, -1, -1}, {1, 1, 1}},
			FaceIndex:            -1,
			MostSignificantPlane: 1,
			Left: &AABBNode{
				BoundingBox: [2]mgl32.Vec3{{-1, -1, -1}, {0, 1, 1}},
				FaceIndex:   0,
			},
			Right: &AABBNode{
				BoundingBox: [2]mgl32.Vec3{{0, -1, -1}, {1, 1, 1}},
				FaceIndex:   0,
			},
		},
	}

	saber := &Node{
		Kind: KindSaberMesh, Name: "blade", NodeNumber: 5,
		Orientation: mgl32.QuatIdent(),
		Mesh: newTestMesh([]mgl32.Vec3{
			{0, 0, 4}, {1, 0, 4}, {0, 1, 4},
		}),
	}
	saber.Mesh.View.Stride = 0
	saber.Mesh.View.Bitmap = 0
	saber.Mesh.View.Position = MDX_OFFSET_NONE
	saber.Mesh.View.Normal = MDX_OFFSET_NONE
	saber.Mesh.MDXData = nil
	saber.Saber = &Saber{
		Vertices:  make([]byte, 3*12),
		TexCoords: make([]byte, 3*8),
		Normals:   make([]byte, 3*12),
		Flags:     [2]uint32{3, 0},
	}

	light := &Node{
		Kind: KindLight, Name: "lamp", NodeNumber: 6,
		Orientation: mgl32.QuatIdent(),
		Light: &Light{
			FlareRadius:   5,
			Priority:      2,
			DynamicType:   1,
			AffectDynamic: true,
			Shadow:        true,
			Flare:         true,
			Flares: []Flare{
				{Size: 1, Position: 0.5, ColorShift: mgl32.Vec3{1, 0, 0}, Texture: "flare1"},
				{Size: 2, Position: 0.7, ColorShift: mgl32.Vec3{0, 1, 0}, Texture: "flare2"},
			},
		},
		Controllers: []Controller{
			{Type: CONTROLLER_COLOR, Columns: 3, Times: []float32{0},
				Data: []uint32{math.Float32bits(1), math.Float32bits(0.9), math.Float32bits(0.7)}},
			{Type: CONTROLLER_RADIUS, Columns: 1, Times: []float32{0},
				Data: []uint32{math.Float32bits(10)}},
		},
	}

	emitter := &Node{
		Kind: KindEmitter, Name: "sparks", NodeNumber: 7,
		Orientation: mgl32.QuatIdent(),
		Emitter: &Emitter{
			BlastRadius: 3,
			XGrid:       4,
			YGrid:       4,
			Update:      "fountain",
			Render:      "normal",
			Blend:       "lighten",
			Texture:     "fxpa_spark",
			TwoSided:    true,
			RenderOrder: 1,
		},
		Controllers: []Controller{
			{Type: 88, Columns: 1, Times: []float32{0},
				Data: []uint32{math.Float32bits(20)}},
			{Type: 392, Columns: 3, Times: []float32{0},
				Data: []uint32{math.Float32bits(1), math.Float32bits(0.5), math.Float32bits(0)}},
		},
	}

	reference := &Node{
		Kind: KindReference, Name: "hook", NodeNumber: 8,
		Orientation: mgl32.QuatIdent(),
		Reference:   &Reference{Model: "fx_ref", Reattachable: true},
	}

	camera := &Node{
		Kind: KindCamera, Name: "camerahook", NodeNumber: 9,
		Orientation: mgl32.QuatIdent(),
	}

	root.Children = []*Node{
		trimesh, skinned, dangly, walkmesh, saber, light, emitter, reference, camera,
	}

	animRoot := dummyNode("rootnode", 0)
	animRoot.Controllers = []Controller{
		{
			Type: CONTROLLER_ORIENTATION, Columns: 2,
			Times: []float32{0, 0.5, 1},
			Data: []uint32{
				CompressQuaternion(mgl32.QuatIdent()),
				CompressQuaternion(mgl32.QuatRotate(0.5, mgl32.Vec3{0, 0, 1})),
				CompressQuaternion(mgl32.QuatRotate(1.0, mgl32.Vec3{0, 0, 1})),
			},
		},
	}
	animBody := dummyNode("body", 1)
	animBody.Controllers = []Controller{
		{
			Type: CONTROLLER_POSITION, Columns: 3, Bezier: true,
			Times: []float32{0},
			Data: []uint32{
				math.Float32bits(0), math.Float32bits(0), math.Float32bits(0),
				math.Float32bits(0.1), math.Float32bits(0), math.Float32bits(0),
				math.Float32bits(0.2), math.Float32bits(0), math.Float32bits(0)},
		},
	}
	animRoot.Children = []*Node{animBody}

	return &Model{
		Name:              "testmodel",
		Version:           version,
		Classification:    CLASSIFICATION_CHARACTER,
		SubClassification: 3,
		AffectedByFog:     true,
		SupermodelName:    "null",
		BoundingBox:       [2]mgl32.Vec3{{-2, -2, -2}, {2, 2, 2}},
		Radius:            3.5,
		AnimationScale:    1,
		Root:              root,
		Animations: []*Animation{
			{
				Name:           "walk",
				Length:         2,
				TransitionTime: 0.25,
				AnimRoot:       "rootnode",
				Events: []AnimationEvent{
					{Time: 0.5, Name: "footstep"},
				},
				Root: animRoot,
			},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	for _, version := range []Version{V1, V2} {
		m := buildFullModel(version)

		mdlData, mdxData, err := m.Encode(version)
		if err != nil {
			t.Fatalf("%v: Encode: %v", version, err)
		}

		if detected, err := DetectVersion(mdlData); err != nil || detected != version {
			t.Fatalf("%v: DetectVersion = %v, %v", version, detected, err)
		}

		reparsed, err := Decode(mdlData, mdxData)
		if err != nil {
			t.Fatalf("%v: Decode: %v", version, err)
		}

		if !reflect.DeepEqual(m, reparsed) {
			t.Errorf("%v: reparsed tree differs:\noriginal: %s\nreparsed: %s",
				version, utils.SDump(m), utils.SDump(reparsed))
		}
	}
}

func TestRoundTripMinimal(t *testing.T) {
	m := &Model{
		Name:    "empty",
		Version: V1,
		Root:    dummyNode("rootnode", 0),
	}
	mdlData, mdxData, err := m.Encode(V1)
	if err != nil {
		t.Fatal(err)
	}
	reparsed, err := DecodeVersion(mdlData, mdxData, V1)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(m, reparsed) {
		t.Errorf("reparsed tree differs:\noriginal: %s\nreparsed: %s",
			utils.SDump(m), utils.SDump(reparsed))
	}
}

// rootNodeOffset reads the serialized root node offset out of the geometry
// header.
func rootNodeOffset(mdlData []byte) uint32 {
	return binary.LittleEndian.Uint32(mdlData[FILE_HEADER_SIZE+8+32:])
}

func TestChildSentinels(t *testing.T) {
	m := &Model{
		Name:    "sentinels",
		Version: V1,
		Root:    dummyNode("rootnode", 0),
	}
	m.Root.Children = []*Node{dummyNode("left", 1), dummyNode("right", 2)}

	mdlData, mdxData, err := m.Encode(V1)
	if err != nil {
		t.Fatal(err)
	}

	// A dummy root's child array sits right behind its header. Blank both
	// slots with the two reserved values.
	childArray := int(FILE_HEADER_SIZE + rootNodeOffset(mdlData) + NODE_HEADER_SIZE)
	binary.LittleEndian.PutUint32(mdlData[childArray:], NODE_OFFSET_NULL)
	binary.LittleEndian.PutUint32(mdlData[childArray+4:], NODE_OFFSET_NONE)

	reparsed, err := DecodeVersion(mdlData, mdxData, V1)
	if err != nil {
		t.Fatal(err)
	}
	if len(reparsed.Root.Children) != 0 {
		t.Errorf("reserved child slots produced %d children", len(reparsed.Root.Children))
	}
}

func TestCycleDetection(t *testing.T) {
	m := &Model{
		Name:    "cycle",
		Version: V1,
		Root:    dummyNode("rootnode", 0),
	}
	m.Root.Children = []*Node{dummyNode("left", 1)}

	mdlData, mdxData, err := m.Encode(V1)
	if err != nil {
		t.Fatal(err)
	}

	// Point the child slot back at the root.
	rootOffset := rootNodeOffset(mdlData)
	childArray := int(FILE_HEADER_SIZE + rootOffset + NODE_HEADER_SIZE)
	binary.LittleEndian.PutUint32(mdlData[childArray:], rootOffset)

	if _, err := DecodeVersion(mdlData, mdxData, V1); !errors.Is(err, ErrCycleDetected) {
		t.Errorf("got %v, want ErrCycleDetected", err)
	}
}

func TestEncodeRejectsSharedNode(t *testing.T) {
	shared := dummyNode("shared", 1)
	m := &Model{
		Name:    "dag",
		Version: V1,
		Root:    dummyNode("rootnode", 0),
	}
	m.Root.Children = []*Node{shared, shared}

	if _, _, err := m.Encode(V1); !errors.Is(err, ErrCycleDetected) {
		t.Errorf("got %v, want ErrCycleDetected", err)
	}
}

func TestAnimationCountCacheBit(t *testing.T) {
	m := buildFullModel(V1)
	mdlData, mdxData, err := m.Encode(V1)
	if err != nil {
		t.Fatal(err)
	}

	// The used-count of the animation array lives at geometry offset 92;
	// set the engine's "cached" marker on it.
	countOffset := FILE_HEADER_SIZE + GEOMETRY_HEADER_SIZE + 12
	count := binary.LittleEndian.Uint32(mdlData[countOffset:])
	binary.LittleEndian.PutUint32(mdlData[countOffset:], count|COUNT_CACHED_BIT)

	reparsed, err := DecodeVersion(mdlData, mdxData, V1)
	if err != nil {
		t.Fatal(err)
	}
	if len(reparsed.Animations) != len(m.Animations) {
		t.Errorf("parsed %d animations, want %d", len(reparsed.Animations), len(m.Animations))
	}
	if !reflect.DeepEqual(m, reparsed) {
		t.Error("cache marker leaked into the parsed tree")
	}
}

func TestTruncatedData(t *testing.T) {
	m := buildFullModel(V1)
	mdlData, mdxData, err := m.Encode(V1)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := DecodeVersion(mdlData[:50], mdxData, V1); !errors.Is(err, ErrTruncatedData) {
		t.Errorf("short buffer: got %v, want ErrTruncatedData", err)
	}

	// A shrunken declared size makes an in-bounds buffer behave truncated;
	// the failure must surface as an error, not a panic.
	patched := append([]byte{}, mdlData...)
	binary.LittleEndian.PutUint32(patched[4:], 150)
	if _, err := DecodeVersion(patched, mdxData, V1); !errors.Is(err, ErrTruncatedData) {
		t.Errorf("shrunken declared size: got %v, want ErrTruncatedData", err)
	}
}

func TestCompanionTooSmall(t *testing.T) {
	m := buildFullModel(V1)
	mdlData, mdxData, err := m.Encode(V1)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := DecodeVersion(mdlData, mdxData[:10], V1); !errors.Is(err, ErrConsistency) {
		t.Errorf("got %v, want ErrConsistency", err)
	}
}

func TestEmitterProperties(t *testing.T) {
	m := buildFullModel(V1)
	emitter := m.NodeByName("sparks")
	if emitter == nil {
		t.Fatal("no emitter node")
	}

	props := emitter.EmitterProperties()
	if props["birthrate"] != 20 {
		t.Errorf("birthrate = %v, want 20", props["birthrate"])
	}
	if _, ok := props["colorStart"]; ok {
		t.Error("vector stream leaked into scalar properties")
	}
}

func TestNodeLookup(t *testing.T) {
	m := buildFullModel(V1)
	if n := m.NodeByName("walkmesh"); n == nil || n.Kind != KindAABBMesh {
		t.Errorf("NodeByName(walkmesh) = %v", n)
	}
	if n := m.NodeByName("nosuchnode"); n != nil {
		t.Errorf("NodeByName(nosuchnode) = %v", n)
	}
	if nodes := m.Nodes(); len(nodes) != 10 {
		t.Errorf("flattened %d nodes, want 10", len(nodes))
	}
}

func TestFlareTextureOffsetBounded(t *testing.T) {
	m := buildFullModel(V1)
	mdlData, mdxData, err := m.Encode(V1)
	if err != nil {
		t.Fatal(err)
	}

	// Walk the encoded bytes to the lamp node's flare texture offset array:
	// root children first, then the light payload's fourth array def.
	rootOff := rootNodeOffset(mdlData)
	childrenOff := binary.LittleEndian.Uint32(mdlData[int(FILE_HEADER_SIZE+rootOff)+44:])
	childrenCount := binary.LittleEndian.Uint32(mdlData[int(FILE_HEADER_SIZE+rootOff)+48:])
	var lightOff uint32
	for i := 0; i < int(childrenCount); i++ {
		childOff := binary.LittleEndian.Uint32(mdlData[int(FILE_HEADER_SIZE+childrenOff)+4*i:])
		if binary.LittleEndian.Uint16(mdlData[FILE_HEADER_SIZE+childOff:])&FLAG_LIGHT != 0 {
			lightOff = childOff
			break
		}
	}
	if lightOff == 0 {
		t.Fatal("no light child in encoded model")
	}
	texturesOff := binary.LittleEndian.Uint32(mdlData[int(FILE_HEADER_SIZE+lightOff)+NODE_HEADER_SIZE+52:])

	// Point the first flare's texture into the slack past the declared
	// geometry size.
	declaredSize := binary.LittleEndian.Uint32(mdlData[4:])
	binary.LittleEndian.PutUint32(mdlData[FILE_HEADER_SIZE+texturesOff:], declaredSize)

	if _, err := DecodeVersion(mdlData, mdxData, V1); !errors.Is(err, ErrConsistency) {
		t.Errorf("got %v, want ErrConsistency", err)
	}
}
