// Package snapshot persists serialized model parameters.
//
// A Store holds named, immutable snapshot texts. Names follow the
// "{iteration}_{model}.json" layout so that a directory of snapshots sorts by
// training iteration and can be reloaded into a runtime in one pass.
package snapshot

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrNotFound is returned when a snapshot does not exist.
//
// Implementations return an error that satisfies errors.Is(err, ErrNotFound).
var ErrNotFound = os.ErrNotExist

// Ext is the extension of snapshot names.
const Ext = ".json"

// Store is a flat namespace of snapshot texts.
type Store interface {
	// Put writes data under name, replacing any previous snapshot.
	Put(ctx context.Context, name string, data []byte) error
	// Get returns the snapshot stored under name.
	Get(ctx context.Context, name string) ([]byte, error)
	// Delete removes name. Deleting a missing snapshot is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the sorted names that start with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Name builds the snapshot name for a model at a training iteration.
func Name(iteration int, model string) string {
	return fmt.Sprintf("%d_%s%s", iteration, model, Ext)
}

// ParseName splits a snapshot name produced by Name.
func ParseName(name string) (iteration int, model string, ok bool) {
	base, found := strings.CutSuffix(name, Ext)
	if !found {
		return 0, "", false
	}
	num, model, found := strings.Cut(base, "_")
	if !found || model == "" {
		return 0, "", false
	}
	iteration, err := strconv.Atoi(num)
	if err != nil || iteration < 0 {
		return 0, "", false
	}
	return iteration, model, true
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("snapshot: invalid name %q", name)
	}
	return nil
}
