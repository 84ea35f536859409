//go:build !unix

package fileutil

import (
	"errors"
	"os"
	"path/filepath"
)

func FreeSpace(string) (uint64, error) {
	return 0, errors.ErrUnsupported
}

func CheckWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".discflow-probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(filepath.Clean(name))
}
