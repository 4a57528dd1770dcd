// Package dist defines the CBOR wire format for code objects and compile
// artifacts: the serialized form used by the on-disk compile cache and by
// the command-line tools.
package dist

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/pyrite/pkg/pycode"
)

// cborEncMode uses canonical options for deterministic encoding, so the
// same code object always hashes and diffs identically.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dist: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// ArtifactVersion is the current compile-artifact format version.
// Increment when making incompatible changes.
const ArtifactVersion uint32 = 1

// Artifact records the durable products of one compile, so that a later
// process can recognise a function it has compiled before. The analysis
// results are not restored from it; the executable body is process-local
// and is never serialized.
type Artifact struct {
	CodeHash    string         `cbor:"1,keyasint"`
	Version     uint32         `cbor:"2,keyasint"`
	Name        string         `cbor:"3,keyasint"`
	OpcodeCount int            `cbor:"4,keyasint"`
	ILCount     int            `cbor:"5,keyasint"`
	EscapedPCs  []int          `cbor:"6,keyasint"`
	Symbols     map[string]int `cbor:"7,keyasint"`
}

// MarshalCode serializes a code object to CBOR bytes.
func MarshalCode(c *pycode.Code) ([]byte, error) {
	return cborEncMode.Marshal(c)
}

// UnmarshalCode deserializes a code object from CBOR bytes.
func UnmarshalCode(data []byte) (*pycode.Code, error) {
	var c pycode.Code
	if err := cbor.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("dist: unmarshal code: %w", err)
	}
	return &c, nil
}

// MarshalArtifact serializes a compile artifact to CBOR bytes.
func MarshalArtifact(a *Artifact) ([]byte, error) {
	return cborEncMode.Marshal(a)
}

// UnmarshalArtifact deserializes a compile artifact from CBOR bytes.
func UnmarshalArtifact(data []byte) (*Artifact, error) {
	var a Artifact
	if err := cbor.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("dist: unmarshal artifact: %w", err)
	}
	if a.Version != ArtifactVersion {
		return nil, fmt.Errorf("dist: artifact version %d, want %d", a.Version, ArtifactVersion)
	}
	return &a, nil
}
