package cache

import (
	"bytes"
	"io"
	"time"

	"github.com/any-hub/any-cache/internal/chunk"
)

// entryState 是条目生命周期状态机：Live → Zombie → Destroyed。
type entryState uint8

const (
	stateLive entryState = iota
	stateZombie
	stateDestroyed
)

func (s entryState) String() string {
	switch s {
	case stateLive:
		return "live"
	case stateZombie:
		return "zombie"
	default:
		return "destroyed"
	}
}

// Entry 是一个缓存资源：内存映射、分块后的正文、预渲染响应头与生命周期计数。
// 映射在构造后只读，消费方只能通过 Reader 访问。
type Entry struct {
	uri    string
	source string

	mem       *mapping
	size      int64
	chunks    *chunk.List
	headers   *chunk.List
	headerLen int

	evictable    bool
	state        entryState
	pending      int
	lastAccessed time.Time

	createdAt   time.Time
	modTime     time.Time
	etag        string
	contentType string
}

// URI 返回条目的表键。
func (e *Entry) URI() string { return e.uri }

// Source 返回源文件路径，暂存上传的条目返回空串。
func (e *Entry) Source() string { return e.source }

// Size 返回资源的逻辑字节长度。
func (e *Entry) Size() int64 { return e.size }

// MappingLen 返回映射长度（页大小的整数倍，≥ Size）。
func (e *Entry) MappingLen() int64 {
	if e.mem == nil {
		return 0
	}
	return int64(len(e.mem.data))
}

// Evictable 报告条目能否被空闲淘汰（暂存上传恒为 false）。
func (e *Entry) Evictable() bool { return e.evictable }

// Zombie 报告条目是否已移出表但仍有引用。
func (e *Entry) Zombie() bool { return e.state == stateZombie }

// Destroyed 报告条目资源是否已释放。
func (e *Entry) Destroyed() bool { return e.state == stateDestroyed }

// Pending 返回未归还的引用数。
func (e *Entry) Pending() int { return e.pending }

// LastAccessed 返回最近一次 Lookup 命中或创建的时间。
func (e *Entry) LastAccessed() time.Time { return e.lastAccessed }

// CreatedAt 返回条目创建时间。
func (e *Entry) CreatedAt() time.Time { return e.createdAt }

// ModTime 返回源文件修改时间，暂存上传为创建时间。
func (e *Entry) ModTime() time.Time { return e.modTime }

// ETag 返回基于内容摘要的强校验值（含引号）。
func (e *Entry) ETag() string { return e.etag }

// ContentType 返回预渲染响应头中的 Content-Type。
func (e *Entry) ContentType() string { return e.contentType }

// HeaderLen 返回预渲染响应头的字节数。
func (e *Entry) HeaderLen() int { return e.headerLen }

// Chunks 返回正文 chunk 数量。
func (e *Entry) Chunks() int { return e.chunks.Len() }

// ChunkCap 返回正文 chunk 容量之和。
func (e *Entry) ChunkCap() int64 { return e.chunks.Cap() }

// NewBodyReader 按文件顺序读取正文 chunk。
func (e *Entry) NewBodyReader() *chunk.Reader { return e.chunks.NewReader() }

// NewHeaderReader 读取预渲染的响应头（含状态行，以空行结尾）。
func (e *Entry) NewHeaderReader() *chunk.Reader { return e.headers.NewReader() }

// ReaderAt 以只读方式随机访问映射中的有效字节。
func (e *Entry) ReaderAt() *io.SectionReader {
	var data []byte
	if e.mem != nil {
		data = e.mem.data[:e.size]
	}
	return io.NewSectionReader(bytes.NewReader(data), 0, int64(len(data)))
}

func (e *Entry) acquire() {
	if e.state == stateDestroyed {
		panic("cache: acquire on destroyed entry " + e.uri)
	}
	e.pending++
}

// release 减少引用计数，返回本次是否触发了销毁。
func (e *Entry) release() bool {
	if e.state == stateDestroyed || e.pending == 0 {
		return false
	}
	e.pending--
	return e.settle()
}

// retire 将条目标记为 zombie（调用方已将其移出表），无引用时立即销毁。
func (e *Entry) retire() bool {
	if e.state == stateLive {
		e.state = stateZombie
	}
	return e.settle()
}

// settle 是唯一的销毁入口：仅在 zombie 且无引用时释放全部资源。
func (e *Entry) settle() bool {
	if e.state != stateZombie || e.pending != 0 {
		return false
	}
	e.headers.Free()
	e.chunks.Free()
	_ = e.mem.release()
	e.state = stateDestroyed
	return true
}
