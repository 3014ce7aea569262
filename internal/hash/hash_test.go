package hash

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := File(path)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if !strings.HasPrefix(got, Tag) {
		t.Fatalf("hash %q missing tag %q", got, Tag)
	}

	want := Bytes([]byte("hello"))
	if got != want {
		t.Fatalf("File(a.txt) = %q, want %q", got, want)
	}
}

func TestFileMissing(t *testing.T) {
	if _, err := File(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestBytesDeterministic(t *testing.T) {
	a := Bytes([]byte("x"))
	b := Bytes([]byte("x"))
	if a != b {
		t.Fatalf("Bytes not deterministic: %q != %q", a, b)
	}
	if Bytes([]byte("x")) == Bytes([]byte("y")) {
		t.Fatal("distinct inputs hashed to the same value")
	}
}

func TestStringsOrderIndependent(t *testing.T) {
	a := Strings([]string{"a", "b", "c"})
	b := Strings([]string{"c", "a", "b"})
	if a != b {
		t.Fatalf("Strings is order-dependent: %q != %q", a, b)
	}
}

func TestCombineOrderDependent(t *testing.T) {
	a := Combine("sha256:1", "sha256:2")
	b := Combine("sha256:2", "sha256:1")
	if a == b {
		t.Fatal("Combine should be order-sensitive")
	}
}
