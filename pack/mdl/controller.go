package mdl

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

type ControllerType uint32

// Controller type ids. The same id can mean different things on different
// node kinds (100 is vertical displacement on lights but self-illumination
// color on meshes); the (id, column count) pair always resolves uniquely.
const (
	CONTROLLER_POSITION              ControllerType = 8
	CONTROLLER_ORIENTATION           ControllerType = 20
	CONTROLLER_SCALE                 ControllerType = 36
	CONTROLLER_COLOR                 ControllerType = 76
	CONTROLLER_RADIUS                ControllerType = 88
	CONTROLLER_SHADOW_RADIUS         ControllerType = 96
	CONTROLLER_VERTICAL_DISPLACEMENT ControllerType = 100
	CONTROLLER_SELF_ILLUM_COLOR      ControllerType = 100
	CONTROLLER_ALPHA                 ControllerType = 132
	CONTROLLER_MULTIPLIER            ControllerType = 140
)

// The bezier marker lives in the high nibble of the on-disk column count.
const columnCountBezierBit = 0x10

type controllerShape int

const (
	shapeScalar controllerShape = iota + 1
	shapeVec3
	shapeQuat
	shapePackedQuat
)

type controllerKey struct {
	Type    ControllerType
	Columns uint8
}

// controllerShapes is the fixed schema resolving the semantic shape of a
// record stream from its (type id, column count) pair. It is written once at
// init and read-only afterwards, so concurrent loads may share it.
var controllerShapes map[controllerKey]controllerShape

// emitterControllerNames maps emitter-scoped controller ids to the property
// names the engine exposes them under. Only consulted for emitter nodes.
var emitterControllerNames = map[ControllerType]string{
	80:  "alphaEnd",
	84:  "alphaStart",
	88:  "birthrate",
	92:  "bounce_co",
	96:  "combinetime",
	100: "drag",
	104: "fps",
	108: "frameEnd",
	112: "frameStart",
	116: "grav",
	120: "lifeExp",
	124: "mass",
	128: "p2p_bezier2",
	132: "p2p_bezier3",
	136: "particleRot",
	140: "randvel",
	144: "sizeStart",
	148: "sizeEnd",
	152: "sizeStart_y",
	156: "sizeEnd_y",
	160: "spread",
	164: "threshold",
	168: "velocity",
	172: "xsize",
	176: "ysize",
	180: "blurlength",
	184: "lightningDelay",
	188: "lightningRadius",
	192: "lightningScale",
	196: "lightningSubDiv",
	200: "lightningzigzag",
	216: "alphaMid",
	220: "percentStart",
	224: "percentMid",
	228: "percentEnd",
	232: "sizeMid",
	236: "sizeMid_y",
	240: "randomBirthRate",
	252: "targetsize",
	256: "numcontrolpts",
	260: "controlptradius",
	264: "controlptdelay",
	268: "tangentspread",
	272: "tangentlength",
	284: "colorMid",
	380: "colorEnd",
	392: "colorStart",
	502: "detonate",
}

func init() {
	controllerShapes = make(map[controllerKey]controllerShape)

	add := func(t ControllerType, columns uint8, shape controllerShape) {
		controllerShapes[controllerKey{t, columns}] = shape
	}

	// Shared across all node kinds.
	add(CONTROLLER_POSITION, 3, shapeVec3)
	add(CONTROLLER_ORIENTATION, 4, shapeQuat)
	add(CONTROLLER_ORIENTATION, 2, shapePackedQuat)
	add(CONTROLLER_SCALE, 1, shapeScalar)

	// Mesh.
	add(CONTROLLER_SELF_ILLUM_COLOR, 3, shapeVec3)
	add(CONTROLLER_ALPHA, 1, shapeScalar)

	// Light.
	add(CONTROLLER_COLOR, 3, shapeVec3)
	add(CONTROLLER_RADIUS, 1, shapeScalar)
	add(CONTROLLER_SHADOW_RADIUS, 1, shapeScalar)
	add(CONTROLLER_VERTICAL_DISPLACEMENT, 1, shapeScalar)
	add(CONTROLLER_MULTIPLIER, 1, shapeScalar)

	// Emitter property streams.
	for t, name := range emitterControllerNames {
		switch name {
		case "colorStart", "colorMid", "colorEnd":
			add(t, 3, shapeVec3)
		default:
			add(t, 1, shapeScalar)
		}
	}
}

// Controller is one typed, time-keyed property stream. Data keeps the raw
// 32-bit patterns from disk: for packed quaternion streams they are not
// floats and must stay bit-exact.
type Controller struct {
	Type    ControllerType
	Bezier  bool
	Columns uint8

	Times []float32
	Data  []uint32
}

func (c *Controller) shape() (controllerShape, error) {
	shape, ok := controllerShapes[controllerKey{c.Type, c.Columns}]
	if !ok {
		return 0, errors.Wrapf(ErrUnsupportedVariant,
			"controller type %d with %d columns has no schema entry", c.Type, c.Columns)
	}
	return shape, nil
}

// valuesPerRow derives how many raw 32-bit values one keyframe occupies.
func (c *Controller) valuesPerRow() (int, error) {
	shape, err := c.shape()
	if err != nil {
		return 0, err
	}
	if shape == shapePackedQuat {
		return 1, nil
	}
	per := int(c.Columns)
	if c.Bezier {
		per *= 3
	}
	return per, nil
}

// Scalars returns one value per keyframe. For bezier streams this is the key
// value, skipping the two control points.
func (c *Controller) Scalars() ([]float32, error) {
	shape, err := c.shape()
	if err != nil {
		return nil, err
	}
	if shape != shapeScalar {
		return nil, errors.Wrapf(ErrUnsupportedVariant, "controller type %d is not scalar", c.Type)
	}
	per, _ := c.valuesPerRow()
	out := make([]float32, len(c.Times))
	for i := range out {
		out[i] = math.Float32frombits(c.Data[i*per])
	}
	return out, nil
}

func (c *Controller) Vectors() ([]mgl32.Vec3, error) {
	shape, err := c.shape()
	if err != nil {
		return nil, err
	}
	if shape != shapeVec3 {
		return nil, errors.Wrapf(ErrUnsupportedVariant, "controller type %d is not a vector stream", c.Type)
	}
	per, _ := c.valuesPerRow()
	out := make([]mgl32.Vec3, len(c.Times))
	for i := range out {
		for j := 0; j < 3; j++ {
			out[i][j] = math.Float32frombits(c.Data[i*per+j])
		}
	}
	return out, nil
}

// Quaternions decodes an orientation stream, transparently unpacking the
// 2-column compressed encoding.
func (c *Controller) Quaternions() ([]mgl32.Quat, error) {
	shape, err := c.shape()
	if err != nil {
		return nil, err
	}
	out := make([]mgl32.Quat, len(c.Times))
	switch shape {
	case shapePackedQuat:
		for i := range out {
			out[i] = DecompressQuaternion(c.Data[i])
		}
	case shapeQuat:
		per, _ := c.valuesPerRow()
		for i := range out {
			x := math.Float32frombits(c.Data[i*per+0])
			y := math.Float32frombits(c.Data[i*per+1])
			z := math.Float32frombits(c.Data[i*per+2])
			w := math.Float32frombits(c.Data[i*per+3])
			out[i] = mgl32.Quat{W: w, V: mgl32.Vec3{x, y, z}}
		}
	default:
		return nil, errors.Wrapf(ErrUnsupportedVariant, "controller type %d is not an orientation stream", c.Type)
	}
	return out, nil
}

// DecompressQuaternion expands the 32-bit fixed-point orientation encoding:
// 11 bits x, 11 bits y, 10 bits z, w reconstructed from the unit constraint.
func DecompressQuaternion(raw uint32) mgl32.Quat {
	x := float32(raw&0x7FF)/1023.0 - 1.0
	y := float32((raw>>11)&0x7FF)/1023.0 - 1.0
	z := float32(raw>>22)/511.0 - 1.0

	mag2 := float64(x*x + y*y + z*z)
	var w float32
	if mag2 < 1.0 {
		w = float32(math.Sqrt(1.0 - mag2))
	} else {
		// Quantization pushed the vector part slightly outside the unit
		// sphere; renormalize and leave w at zero.
		inv := float32(1.0 / math.Sqrt(mag2))
		x, y, z = x*inv, y*inv, z*inv
	}
	return mgl32.Quat{W: w, V: mgl32.Vec3{x, y, z}}
}

// CompressQuaternion is the bit-exact inverse of DecompressQuaternion up to
// quantization. q and -q encode the same rotation; the encoding always picks
// the hemisphere with non-negative w.
func CompressQuaternion(q mgl32.Quat) uint32 {
	if q.W < 0 {
		q = mgl32.Quat{W: -q.W, V: mgl32.Vec3{-q.V[0], -q.V[1], -q.V[2]}}
	}
	cx := packComponent(q.V[0], 1023)
	cy := packComponent(q.V[1], 1023)
	cz := packComponent(q.V[2], 511)
	return cx | cy<<11 | cz<<22
}

func packComponent(v float32, scale uint32) uint32 {
	packed := int32(math.Round(float64(v+1.0) * float64(scale)))
	if packed < 0 {
		packed = 0
	}
	if packed > int32(2*scale+1) {
		packed = int32(2*scale + 1)
	}
	return uint32(packed)
}
