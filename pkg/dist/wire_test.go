package dist

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chazu/pyrite/pkg/pycode"
)

func TestCodeRoundTrip(t *testing.T) {
	a := pycode.NewAssembler("roundtrip")
	x := a.Local("x")
	a.Emit(pycode.OpLoadConst, a.Const("hello"))
	a.Emit(pycode.OpStoreFast, x)
	a.Emit(pycode.OpLoadFast, x)
	a.Op(pycode.OpReturnValue)
	code := a.MustAssemble()

	data, err := MarshalCode(code)
	if err != nil {
		t.Fatalf("MarshalCode: %v", err)
	}
	back, err := UnmarshalCode(data)
	if err != nil {
		t.Fatalf("UnmarshalCode: %v", err)
	}
	if back.Name != code.Name {
		t.Errorf("Name = %q, want %q", back.Name, code.Name)
	}
	if diff := cmp.Diff(code.Code, back.Code); diff != "" {
		t.Errorf("Code differs (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(code.Varnames, back.Varnames); diff != "" {
		t.Errorf("Varnames differ (-want +got):\n%s", diff)
	}
	if len(back.Consts) != len(code.Consts) {
		t.Errorf("Consts length = %d, want %d", len(back.Consts), len(code.Consts))
	}
}

func TestDeterministicEncoding(t *testing.T) {
	a := pycode.NewAssembler("det")
	a.Emit(pycode.OpLoadConst, a.Const(int64(1)))
	a.Op(pycode.OpReturnValue)
	code := a.MustAssemble()

	first, err := MarshalCode(code)
	if err != nil {
		t.Fatalf("MarshalCode: %v", err)
	}
	second, _ := MarshalCode(code)
	if string(first) != string(second) {
		t.Error("canonical encoding is not deterministic")
	}
}

func TestArtifactRoundTrip(t *testing.T) {
	a := &Artifact{
		CodeHash:    "abc123",
		Version:     ArtifactVersion,
		Name:        "f",
		OpcodeCount: 12,
		ILCount:     48,
		EscapedPCs:  []int{0, 2, 4},
		Symbols:     map[string]int{"entry": 0, "L0": 7},
	}
	data, err := MarshalArtifact(a)
	if err != nil {
		t.Fatalf("MarshalArtifact: %v", err)
	}
	back, err := UnmarshalArtifact(data)
	if err != nil {
		t.Fatalf("UnmarshalArtifact: %v", err)
	}
	if diff := cmp.Diff(a, back); diff != "" {
		t.Errorf("artifact differs (-want +got):\n%s", diff)
	}
}

func TestArtifactVersionChecked(t *testing.T) {
	a := &Artifact{CodeHash: "x", Version: ArtifactVersion + 1}
	data, err := MarshalArtifact(a)
	if err != nil {
		t.Fatalf("MarshalArtifact: %v", err)
	}
	if _, err := UnmarshalArtifact(data); err == nil {
		t.Error("wrong version should fail to load")
	}
}
