//go:build !unix

package region

import "os"

func pageSize() int {
	return os.Getpagesize()
}

// reserve allocates a heap slice when mmap is not available.
func reserve(n int) ([]byte, error) {
	return make([]byte, n), nil
}

func release([]byte) error {
	return nil
}
