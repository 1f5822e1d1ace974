//go:build !unix

package cache

import (
	"fmt"
	"os"
)

var pageSize = int64(os.Getpagesize())

type mapping struct {
	data []byte
}

func mapFile(path string, size int64) (*mapping, error) {
	return nil, fmt.Errorf("%w: mmap unsupported on this platform", ErrResourceExhausted)
}

func spoolBuffer(dir string, data []byte) (*mapping, error) {
	return nil, fmt.Errorf("%w: mmap unsupported on this platform", ErrResourceExhausted)
}

func (m *mapping) release() error {
	return nil
}
