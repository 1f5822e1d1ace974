package chunk

import "io"

// List 是按顺序排列的 chunk 序列，供输出层分段迭代。
type List struct {
	chunks   []*Chunk
	capacity int
}

// NewList 创建空序列，capacity 用于 Write 时追加的新 owned chunk。
func NewList(capacity int) *List {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &List{capacity: capacity}
}

// Partition 将 src 的前 size 字节切分为固定容量的只读 view chunk：
// 只要剩余长度大于 0 就追加一个 chunk，共 ceil(size/capacity) 个，最后一个可能不满。
func Partition(src []byte, size int64, capacity int) *List {
	l := NewList(capacity)
	step := int64(l.capacity)
	var off int64
	for remaining := size; remaining > 0; remaining -= step {
		end := off + step
		if end > size {
			end = size
		}
		l.Append(newView(l.capacity, src[off:end:end]))
		off = end
	}
	return l
}

// Append 在序列尾部追加 chunk。
func (l *List) Append(c *Chunk) {
	l.chunks = append(l.chunks, c)
}

// Len 返回 chunk 数量。
func (l *List) Len() int {
	return len(l.chunks)
}

// Size 返回所有 chunk 的有效载荷总长度。
func (l *List) Size() int64 {
	var total int64
	for _, c := range l.chunks {
		total += int64(c.Len())
	}
	return total
}

// Cap 返回所有 chunk 的容量之和。
func (l *List) Cap() int64 {
	var total int64
	for _, c := range l.chunks {
		total += int64(c.Cap())
	}
	return total
}

// Write 依次填满尾部 owned chunk，写满后追加新的 chunk，总是写入全部数据。
func (l *List) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		var tail *Chunk
		if n := len(l.chunks); n > 0 && l.chunks[n-1].Available() > 0 {
			tail = l.chunks[n-1]
		} else {
			tail = New(l.capacity)
			l.Append(tail)
		}
		n, err := tail.Write(p)
		written += n
		p = p[n:]
		if err != nil && err != ErrFull {
			return written, err
		}
	}
	return written, nil
}

// NewReader 返回按顺序读取全部 chunk 的 Reader。
func (l *List) NewReader() *Reader {
	return &Reader{chunks: l.chunks}
}

// Free 释放全部 chunk，之后序列为空；重复调用安全。
func (l *List) Free() {
	for _, c := range l.chunks {
		c.free()
	}
	l.chunks = nil
}

// Reader 顺序读取 chunk 序列，实现 io.Reader 与 io.WriterTo。
// 序列在读取中途被 Free 时返回 ErrFreed，而不是提前的 io.EOF。
type Reader struct {
	chunks []*Chunk
	idx    int
	off    int
}

// Read 实现 io.Reader。
func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n := 0
	for n < len(p) && r.idx < len(r.chunks) {
		if r.chunks[r.idx].freed {
			return n, ErrFreed
		}
		data := r.chunks[r.idx].payload()
		if r.off >= len(data) {
			r.idx++
			r.off = 0
			continue
		}
		copied := copy(p[n:], data[r.off:])
		r.off += copied
		n += copied
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// WriteTo 将剩余 chunk 逐个写入 w。
func (r *Reader) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for r.idx < len(r.chunks) {
		if r.chunks[r.idx].freed {
			return total, ErrFreed
		}
		data := r.chunks[r.idx].payload()
		if r.off < len(data) {
			n, err := w.Write(data[r.off:])
			total += int64(n)
			r.off += n
			if err != nil {
				return total, err
			}
			if r.off < len(data) {
				return total, io.ErrShortWrite
			}
		}
		r.idx++
		r.off = 0
	}
	return total, nil
}

// Len 返回尚未读取的字节数。
func (r *Reader) Len() int {
	remaining := 0
	for i := r.idx; i < len(r.chunks); i++ {
		remaining += len(r.chunks[i].payload())
	}
	return remaining - r.off
}
