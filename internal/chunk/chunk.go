package chunk

import (
	"errors"
	"io"

	"github.com/valyala/bytebufferpool"
)

// DefaultCapacity 与 Linux 默认管道缓冲区大小一致（64 KiB）。
const DefaultCapacity = 64 * 1024

var (
	// ErrFull 表示 chunk 剩余容量不足以容纳本次写入。
	ErrFull = errors.New("chunk is full")
	// ErrReadOnly 表示尝试向只读 view chunk 写入。
	ErrReadOnly = errors.New("chunk is a read-only view")
	// ErrFreed 表示 chunk 已被释放，底层内存不可再访问。
	ErrFreed = errors.New("chunk has been freed")
)

// Chunk 是固定容量的字节片段：要么只读引用外部内存（view），要么持有池化缓冲区（owned）。
type Chunk struct {
	capacity int
	view     []byte
	buf      *bytebufferpool.ByteBuffer
	owned    bool
	freed    bool
}

// New 创建一个空的 owned chunk，缓冲区在首次写入时才从池中取出。
func New(capacity int) *Chunk {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Chunk{capacity: capacity, owned: true}
}

func newView(capacity int, view []byte) *Chunk {
	return &Chunk{capacity: capacity, view: view}
}

// Cap 返回 chunk 的固定容量。
func (c *Chunk) Cap() int {
	return c.capacity
}

// Len 返回当前有效载荷长度。
func (c *Chunk) Len() int {
	return len(c.payload())
}

// Available 返回 owned chunk 还能写入的字节数，view chunk 恒为 0。
func (c *Chunk) Available() int {
	if !c.owned {
		return 0
	}
	return c.capacity - c.Len()
}

// Write 向 owned chunk 追加数据，超出容量的部分不会写入并返回 ErrFull。
func (c *Chunk) Write(p []byte) (int, error) {
	if c.freed {
		return 0, ErrFreed
	}
	if !c.owned {
		return 0, ErrReadOnly
	}
	n := len(p)
	if avail := c.Available(); n > avail {
		n = avail
	}
	if n > 0 {
		if c.buf == nil {
			c.buf = bytebufferpool.Get()
		}
		_, _ = c.buf.Write(p[:n])
	}
	if n < len(p) {
		return n, ErrFull
	}
	return n, nil
}

// WriteTo 将有效载荷写入 w，不做额外拷贝。
func (c *Chunk) WriteTo(w io.Writer) (int64, error) {
	if c.freed {
		return 0, ErrFreed
	}
	data := c.payload()
	if len(data) == 0 {
		return 0, nil
	}
	n, err := w.Write(data)
	if err == nil && n < len(data) {
		err = io.ErrShortWrite
	}
	return int64(n), err
}

func (c *Chunk) payload() []byte {
	if c.owned {
		if c.buf == nil {
			return nil
		}
		return c.buf.B
	}
	return c.view
}

// Freed 报告 chunk 是否已被释放。
func (c *Chunk) Freed() bool {
	return c.freed
}

// free 归还池化缓冲区并断开 view 引用，重复调用安全。
func (c *Chunk) free() {
	c.freed = true
	if c.buf != nil {
		bytebufferpool.Put(c.buf)
		c.buf = nil
	}
	c.view = nil
}
