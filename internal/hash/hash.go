// Package hash computes the content hashes Cobble uses to detect when
// a task's inputs have changed since its last recorded run.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/jdarais/cobble/internal/cobleerr"
)

// Tag is the prefix every Cobble content hash carries, so future
// algorithm changes can be detected and rejected rather than silently
// compared against hashes computed a different way.
const Tag = "sha256:"

// File computes the tagged content hash of the file at path.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", cobleerr.Wrap(cobleerr.IO, "hash.File", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", cobleerr.Wrap(cobleerr.IO, "hash.File", err)
	}
	return Tag + hex.EncodeToString(h.Sum(nil)), nil
}

// Bytes computes the tagged content hash of data.
func Bytes(data []byte) string {
	sum := sha256.Sum256(data)
	return Tag + hex.EncodeToString(sum[:])
}

// Strings computes a stable tagged hash over a set of strings,
// independent of their input order. Used to hash var bindings and
// other unordered key/value groups that feed a task's input hash.
func Strings(values []string) string {
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	h := sha256.New()
	for _, v := range sorted {
		fmt.Fprintf(h, "%d:%s\n", len(v), v)
	}
	return Tag + hex.EncodeToString(h.Sum(nil))
}

// Combine folds a sequence of already-tagged hashes into one, in the
// order given. Used to fold a task's per-file-dep hashes and its
// vars hash into one TaskInput hash.
func Combine(tagged ...string) string {
	h := sha256.New()
	for _, t := range tagged {
		fmt.Fprintf(h, "%s\n", t)
	}
	return Tag + hex.EncodeToString(h.Sum(nil))
}
