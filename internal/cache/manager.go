package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cache/internal/chunk"
	"github.com/any-hub/any-cache/internal/logging"
)

const (
	// DefaultIdleTimeout 是空闲淘汰阈值，超过该时长未被 Lookup 的可淘汰条目会被 Sweep 移除。
	DefaultIdleTimeout = 5000 * time.Millisecond
	// DefaultMaxURILength 是 URI（表键）的最大长度。
	DefaultMaxURILength = 512
)

// Manager 负责创建、查找、失效与淘汰缓存条目。Manager 不是并发安全的，
// 必须由唯一的 goroutine（worker）驱动。
type Manager struct {
	table   Table
	zombies map[*Entry]struct{}

	chunkSize   int
	idleTimeout time.Duration
	tempDir     string
	maxURILen   int

	now    func() time.Time
	logger logrus.FieldLogger
	stats  Stats
}

// Option 配置 Manager。
type Option func(*Manager)

// WithChunkSize 设置正文与响应头 chunk 的固定容量。
func WithChunkSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.chunkSize = n
		}
	}
}

// WithIdleTimeout 设置空闲淘汰阈值。
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.idleTimeout = d
		}
	}
}

// WithTempDir 设置暂存上传所用的临时目录，空串表示系统默认目录。
func WithTempDir(dir string) Option {
	return func(m *Manager) {
		m.tempDir = dir
	}
}

// WithMaxURILength 设置 URI 最大长度。
func WithMaxURILength(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxURILen = n
		}
	}
}

// WithClock 替换时钟，便于测试。
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithTable 注入自定义 Table 实现。
func WithTable(t Table) Option {
	return func(m *Manager) {
		if t != nil {
			m.table = t
		}
	}
}

// WithLogger 注入结构化日志，默认丢弃。
func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager 构造一个拥有独立 Table 的 Manager。
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		table:       NewTable(),
		zombies:     make(map[*Entry]struct{}),
		chunkSize:   chunk.DefaultCapacity,
		idleTimeout: DefaultIdleTimeout,
		maxURILen:   DefaultMaxURILength,
		now:         time.Now,
		logger:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ResolveFromFile 返回 uri 对应的条目；不存在时映射 path 并登记一个可淘汰的新条目。
// 已存在的条目原样返回，不会重新读取文件，也不刷新访问时间。
func (m *Manager) ResolveFromFile(path, uri string) (*Entry, error) {
	if err := m.checkURI(uri); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: stat %s: %v", ErrNotFound, path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotFound, path)
	}
	if info.Size() <= 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrNotFound, path)
	}

	if e, ok := m.table.Get(uri); ok {
		return e, nil
	}

	mem, err := mapFile(path, info.Size())
	if err != nil {
		return nil, err
	}

	e, err := m.newEntry(uri, path, mem, info.Size(), info.ModTime(), true)
	if err != nil {
		return nil, err
	}
	if err := m.insert(e); err != nil {
		return nil, err
	}
	m.stats.Created++
	m.logger.WithFields(logrus.Fields{
		"action": "cache_map",
		"uri":    uri,
		"size":   e.size,
	}).Debug("cache_entry_mapped")
	return e, nil
}

// CreateFromBuffer 总是替换 uri 的现有条目：把 data 暂存到已 unlink 的临时文件并映射，
// 登记为不可淘汰条目（丢失即数据丢失），只能通过 Invalidate 移除。
func (m *Manager) CreateFromBuffer(uri string, data []byte) (*Entry, error) {
	if err := m.checkURI(uri); err != nil {
		return nil, err
	}

	m.Invalidate(uri)
	if _, ok := m.table.Get(uri); ok {
		panic(fmt.Sprintf("cache: entry %q still present after invalidation", uri))
	}

	mem, err := spoolBuffer(m.tempDir, data)
	if err != nil {
		return nil, err
	}

	e, err := m.newEntry(uri, "", mem, int64(len(data)), m.now(), false)
	if err != nil {
		return nil, err
	}
	if err := m.insert(e); err != nil {
		return nil, err
	}
	m.stats.Spooled++
	m.logger.WithFields(logrus.Fields{
		"action": "cache_spool",
		"uri":    uri,
		"size":   e.size,
	}).Debug("cache_entry_spooled")
	return e, nil
}

// Lookup 查询条目，命中时刷新访问时间。这是唯一会推迟空闲淘汰的操作。
func (m *Manager) Lookup(uri string) (*Entry, bool) {
	e, ok := m.table.Get(uri)
	if !ok {
		m.stats.Misses++
		return nil, false
	}
	e.lastAccessed = m.now()
	m.stats.Hits++
	return e, true
}

// Invalidate 将条目移出表：无引用时立即销毁，否则转为 zombie 由最后一次 Release 销毁。
// 对不存在的键调用是空操作，返回 false。
func (m *Manager) Invalidate(uri string) bool {
	e, ok := m.table.Remove(uri)
	if !ok {
		return false
	}
	m.stats.Invalidated++
	if e.retire() {
		m.stats.Destroyed++
	} else {
		m.zombies[e] = struct{}{}
	}
	return true
}

// Sweep 遍历表，对空闲超过阈值（毫秒比较）的可淘汰条目执行 Invalidate，返回淘汰数量。
func (m *Manager) Sweep(now time.Time) int {
	limit := m.idleTimeout.Milliseconds()
	evicted := 0
	m.table.ForEach(func(key string, e *Entry) bool {
		idle := now.Sub(e.lastAccessed).Milliseconds()
		if idle > limit && e.evictable {
			m.logger.WithFields(logrus.Fields{
				"action":  "cache_evict",
				"uri":     key,
				"idle_ms": idle,
				"pending": e.pending,
			}).Debug("cache_entry_evicted")
			m.Invalidate(key)
			evicted++
		}
		return true
	})
	m.stats.Evicted += uint64(evicted)
	return evicted
}

// Acquire 为消费方登记一个引用，返回的 Ref 必须在所有退出路径上 Release。
func (m *Manager) Acquire(e *Entry) *Ref {
	e.acquire()
	return &Ref{manager: m, entry: e}
}

func (m *Manager) release(e *Entry) {
	if e.release() {
		delete(m.zombies, e)
		m.stats.Destroyed++
	}
}

// Close 是关闭钩子：清空表，无引用的条目立即销毁。
// 仍被引用的 zombie 保持映射并记录为泄漏，归还最后一个引用时才销毁。
func (m *Manager) Close() {
	keys := make([]string, 0, m.table.Len())
	m.table.ForEach(func(key string, _ *Entry) bool {
		keys = append(keys, key)
		return true
	})
	for _, key := range keys {
		m.Invalidate(key)
	}
	for e := range m.zombies {
		m.logger.WithFields(logrus.Fields{
			"action":  "cache_close",
			"uri":     e.uri,
			"pending": e.pending,
		}).Warn("cache_entry_leaked")
	}
}

// Len 返回表中（非 zombie）条目数量。
func (m *Manager) Len() int {
	return m.table.Len()
}

func (m *Manager) checkURI(uri string) error {
	if uri == "" {
		return fmt.Errorf("%w: empty uri", ErrNotFound)
	}
	if len(uri) > m.maxURILen {
		return fmt.Errorf("%w: %d > %d", ErrURITooLong, len(uri), m.maxURILen)
	}
	return nil
}

// newEntry 构造条目并渲染响应头；渲染失败时经 retire 释放映射与 chunk。
func (m *Manager) newEntry(uri, source string, mem *mapping, size int64, modTime time.Time, evictable bool) (*Entry, error) {
	now := m.now()
	content := mem.data[:size]
	e := &Entry{
		uri:          uri,
		source:       source,
		mem:          mem,
		size:         size,
		chunks:       chunk.Partition(mem.data, size, m.chunkSize),
		headers:      chunk.NewList(m.chunkSize),
		evictable:    evictable,
		state:        stateLive,
		lastAccessed: now,
		createdAt:    now,
		modTime:      modTime,
		etag:         contentETag(content),
		contentType:  inferContentType(uri, content),
	}
	n, err := renderHeaders(e.headers, e.contentType, e.etag, size, modTime)
	if err != nil {
		e.retire()
		return nil, fmt.Errorf("%w: render headers %s: %v", ErrResourceExhausted, uri, err)
	}
	e.headerLen = n
	return e, nil
}

// insert 登记条目；失败时直接走 retire 释放已分配的映射与 chunk。
func (m *Manager) insert(e *Entry) error {
	if err := m.table.Insert(e.uri, e); err != nil {
		e.retire()
		if errors.Is(err, ErrAlreadyExists) {
			return err
		}
		return fmt.Errorf("%w: insert %s: %v", ErrResourceExhausted, e.uri, err)
	}
	return nil
}
