package absint

import "testing"

func TestCowVectorBasics(t *testing.T) {
	v := NewCowVector[int](3)
	if v.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", v.Len())
	}
	v.Replace(1, 42)
	if v.At(1) != 42 {
		t.Errorf("At(1) = %d, want 42", v.At(1))
	}
}

func TestCowVectorCloneShares(t *testing.T) {
	v := NewCowVector[int](2)
	v.Replace(0, 1)
	clone := v.Clone()
	if !v.Shared() || !clone.Shared() {
		t.Error("clone should share the spine")
	}
	if clone.At(0) != 1 {
		t.Errorf("clone.At(0) = %d, want 1", clone.At(0))
	}
}

func TestCowVectorReplaceCopiesWhenShared(t *testing.T) {
	v := NewCowVector[int](2)
	v.Replace(0, 1)
	clone := v.Clone()

	clone.Replace(0, 99)
	if v.At(0) != 1 {
		t.Errorf("original saw the clone's write: At(0) = %d", v.At(0))
	}
	if clone.At(0) != 99 {
		t.Errorf("clone.At(0) = %d, want 99", clone.At(0))
	}
	if clone.Shared() {
		t.Error("clone should own its spine after the copy")
	}
}

func TestCowVectorReplaceInPlaceWhenUnshared(t *testing.T) {
	v := NewCowVector[int](1)
	v.Replace(0, 5)
	if v.Shared() {
		t.Error("fresh vector should not be shared")
	}
	v.Replace(0, 6)
	if v.At(0) != 6 {
		t.Errorf("At(0) = %d, want 6", v.At(0))
	}
}

func TestCowVectorRelease(t *testing.T) {
	v := NewCowVector[int](1)
	clone := v.Clone()
	clone.Release()
	if v.Shared() {
		t.Error("release should drop the clone's claim")
	}
	v.Replace(0, 7)
	if v.At(0) != 7 {
		t.Errorf("At(0) = %d, want 7", v.At(0))
	}
}
