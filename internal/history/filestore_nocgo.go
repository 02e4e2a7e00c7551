//go:build !cgo

package history

import "errors"

// OpenFileStore reports that persistent history needs a cgo build.
func OpenFileStore(path string) (Store, error) {
	return nil, errors.New("history: persistent store requires a cgo build (kuzu)")
}
