package mdl

import (
	"math"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

func randomUnitQuat(r *rand.Rand) mgl32.Quat {
	for {
		q := mgl32.Quat{
			W: float32(r.Float64()*2 - 1),
			V: mgl32.Vec3{
				float32(r.Float64()*2 - 1),
				float32(r.Float64()*2 - 1),
				float32(r.Float64()*2 - 1),
			},
		}
		if q.Len() > 0.1 {
			return q.Normalize()
		}
	}
}

func quatDot(a, b mgl32.Quat) float64 {
	return float64(a.W*b.W + a.V[0]*b.V[0] + a.V[1]*b.V[1] + a.V[2]*b.V[2])
}

func TestPackedQuaternionRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))

	// |dot| = cos(angle/2); the fixed-point grid steps are ~1/1023 per
	// component so anything past 0.9999 is a real defect.
	const minDot = 0.9999

	for i := 0; i < 10000; i++ {
		q := randomUnitQuat(r)
		decoded := DecompressQuaternion(CompressQuaternion(q))

		if dot := math.Abs(quatDot(q, decoded)); dot < minDot {
			t.Fatalf("sample %d: %v decoded as %v, |dot|=%v", i, q, decoded, dot)
		}
		if decoded.W < 0 {
			t.Fatalf("sample %d: decoded w %v is negative", i, decoded.W)
		}
	}
}

func TestPackedQuaternionHemisphere(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 100; i++ {
		q := randomUnitQuat(r)
		neg := mgl32.Quat{W: -q.W, V: mgl32.Vec3{-q.V[0], -q.V[1], -q.V[2]}}
		if CompressQuaternion(q) != CompressQuaternion(neg) {
			t.Fatalf("sample %d: q and -q compressed differently", i)
		}
	}
}

func TestPackedQuaternionStable(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 1000; i++ {
		q := randomUnitQuat(r)
		if math.Abs(float64(q.W)) < 0.1 {
			// Near w=0 the quantized vector part may leave the unit sphere
			// and renormalize on decode; only samples safely inside the
			// sphere are grid-stable.
			continue
		}
		once := CompressQuaternion(q)
		twice := CompressQuaternion(DecompressQuaternion(once))
		if once != twice {
			t.Fatalf("sample %d: 0x%.8x recompressed as 0x%.8x", i, once, twice)
		}
	}
}

func TestDecompressOutOfSphere(t *testing.T) {
	// All three components at maximum put the vector part outside the unit
	// sphere; the decoder must renormalize instead of taking sqrt of a
	// negative number.
	q := DecompressQuaternion(0xFFFFFFFF)
	if l := q.Len(); math.Abs(float64(l)-1.0) > 1e-5 {
		t.Errorf("decoded length %v, want 1", l)
	}
	if q.W != 0 {
		t.Errorf("decoded w %v, want 0", q.W)
	}
}

func TestControllerSchema(t *testing.T) {
	unknown := &Controller{Type: 999, Columns: 7}
	if _, err := unknown.Scalars(); !errors.Is(err, ErrUnsupportedVariant) {
		t.Errorf("unknown schema: got %v, want ErrUnsupportedVariant", err)
	}
	if _, err := unknown.valuesPerRow(); !errors.Is(err, ErrUnsupportedVariant) {
		t.Errorf("unknown schema row width: got %v, want ErrUnsupportedVariant", err)
	}

	scale := &Controller{Type: CONTROLLER_SCALE, Columns: 1,
		Times: []float32{0}, Data: []uint32{math.Float32bits(2.5)}}
	if _, err := scale.Vectors(); !errors.Is(err, ErrUnsupportedVariant) {
		t.Errorf("scalar stream as vectors: got %v, want ErrUnsupportedVariant", err)
	}
	values, err := scale.Scalars()
	if err != nil || len(values) != 1 || values[0] != 2.5 {
		t.Errorf("Scalars() = %v, %v; want [2.5]", values, err)
	}
}

func TestOrientationStreams(t *testing.T) {
	full := &Controller{Type: CONTROLLER_ORIENTATION, Columns: 4,
		Times: []float32{0},
		Data: []uint32{
			math.Float32bits(0), math.Float32bits(0),
			math.Float32bits(0), math.Float32bits(1),
		}}
	quats, err := full.Quaternions()
	if err != nil || len(quats) != 1 || quats[0].W != 1 {
		t.Errorf("4-column stream: got %v, %v; want identity", quats, err)
	}

	packed := &Controller{Type: CONTROLLER_ORIENTATION, Columns: 2,
		Times: []float32{0},
		Data:  []uint32{CompressQuaternion(mgl32.QuatIdent())}}
	quats, err = packed.Quaternions()
	if err != nil {
		t.Fatalf("2-column stream: %v", err)
	}
	if dot := math.Abs(quatDot(quats[0], mgl32.QuatIdent())); dot < 0.9999 {
		t.Errorf("2-column stream decoded %v, want identity", quats[0])
	}

	per, err := packed.valuesPerRow()
	if err != nil || per != 1 {
		t.Errorf("packed stream row width = %d, %v; want 1", per, err)
	}
}

func TestBezierRowWidth(t *testing.T) {
	c := &Controller{Type: CONTROLLER_POSITION, Columns: 3, Bezier: true}
	per, err := c.valuesPerRow()
	if err != nil || per != 9 {
		t.Errorf("bezier vector row width = %d, %v; want 9", per, err)
	}
}

func TestEncodeRejectsControllerDataOverflow(t *testing.T) {
	m := &Model{Name: "overflow", Version: V1, Root: dummyNode("rootnode", 0)}
	c := Controller{Type: CONTROLLER_SCALE, Columns: 1}
	c.Times = make([]float32, 0x8000)
	c.Data = make([]uint32, 0x8000)
	m.Root.Controllers = []Controller{c}

	// Exactly 0x10000 values: any index recorded past the last row would
	// truncate to zero in the 16-bit key fields.
	if _, _, err := m.Encode(V1); !errors.Is(err, ErrConsistency) {
		t.Errorf("got %v, want ErrConsistency", err)
	}
}
