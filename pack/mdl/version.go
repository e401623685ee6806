package mdl

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Version selects one of the two shipped on-disk layouts. The logical model
// is the same for both; field offsets and a few payload sizes differ.
type Version int

const (
	V1 Version = iota
	V2
)

func (v Version) String() string {
	switch v {
	case V1:
		return "v1"
	case V2:
		return "v2"
	default:
		return "unknown"
	}
}

// layout holds everything version-dependent. Both the parser and the
// serializer are driven from this table, there are no per-version code paths.
type layout struct {
	meshPayloadSize int

	// Function pointer values the engine leaves in serialized headers.
	// Useless at runtime but they are the version fingerprint.
	modelFnPtr1 uint32
	modelFnPtr2 uint32
	animFnPtr1  uint32
	animFnPtr2  uint32
}

var layouts = map[Version]*layout{
	V1: {
		meshPayloadSize: 332,
		modelFnPtr1:     4273776,
		modelFnPtr2:     4216096,
		animFnPtr1:      4273392,
		animFnPtr2:      4451552,
	},
	V2: {
		meshPayloadSize: 340,
		modelFnPtr1:     4285200,
		modelFnPtr2:     4216320,
		animFnPtr1:      4284816,
		animFnPtr2:      4522928,
	},
}

// DetectVersion probes the first geometry function pointer, whose value
// ranges do not overlap between versions. Callers with out-of-band knowledge
// should use DecodeVersion directly.
func DetectVersion(mdlData []byte) (Version, error) {
	if len(mdlData) < FILE_HEADER_SIZE+4 {
		return 0, errors.Wrapf(ErrTruncatedData, "buffer of %d bytes is too small to probe", len(mdlData))
	}
	fnPtr := binary.LittleEndian.Uint32(mdlData[FILE_HEADER_SIZE:])
	for v, l := range layouts {
		if fnPtr == l.modelFnPtr1 {
			return v, nil
		}
	}
	return 0, errors.Wrapf(ErrUnsupportedVariant, "unknown geometry function pointer 0x%.8x", fnPtr)
}
