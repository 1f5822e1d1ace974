//go:build unix

package cache

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"
)

// tempPattern 是暂存文件名模板，文件创建后立即 unlink，不会残留在磁盘上。
const tempPattern = "any-cache-*"

var pageSize = int64(unix.Getpagesize())

// mapping 持有一段内存映射及其背后的文件描述符。
type mapping struct {
	data []byte
	file *os.File
}

// mapFile 以只读私有方式映射源文件，长度向上取整到页大小。
func mapFile(path string, size int64) (*mapping, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: open %s: %v", ErrResourceExhausted, path, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(roundUp(size)), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: mmap %s: %v", ErrResourceExhausted, path, err)
	}
	return &mapping{data: data, file: f}, nil
}

// spoolBuffer 把 data 落到一个已 unlink 的临时文件并映射为私有可写内存，
// 拷贝完成后将映射改为只读。
func spoolBuffer(dir string, data []byte) (*mapping, error) {
	f, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return nil, fmt.Errorf("%w: create temp file: %v", ErrResourceExhausted, err)
	}
	_ = os.Remove(f.Name())

	fail := func(step string, err error) (*mapping, error) {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrResourceExhausted, step, err)
	}

	size := int64(len(data))
	if _, err := f.Seek(size, io.SeekStart); err != nil {
		return fail("extend temp file", err)
	}
	if _, err := f.Write([]byte{0}); err != nil {
		return fail("extend temp file", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fail("rewind temp file", err)
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, int(roundUp(size)), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE)
	if err != nil {
		return fail("mmap temp file", err)
	}
	copy(mem, data)
	if err := unix.Mprotect(mem, unix.PROT_READ); err != nil {
		_ = unix.Munmap(mem)
		return fail("freeze mapping", err)
	}
	return &mapping{data: mem, file: f}, nil
}

// release 解除映射并关闭描述符，重复调用安全。
func (m *mapping) release() error {
	if m == nil {
		return nil
	}
	var errs []error
	if m.data != nil {
		if err := unix.Munmap(m.data); err != nil {
			errs = append(errs, fmt.Errorf("munmap: %w", err))
		}
		m.data = nil
	}
	if m.file != nil {
		if err := m.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close: %w", err))
		}
		m.file = nil
	}
	return errors.Join(errs...)
}
