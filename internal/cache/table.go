package cache

import "fmt"

// Table 是 URI → Entry 的关联存储，由单个 worker 独占，不做内部加锁。
type Table interface {
	Get(key string) (*Entry, bool)
	// Insert 在键已存在时返回 ErrAlreadyExists。
	Insert(key string, e *Entry) error
	Remove(key string) (*Entry, bool)
	// ForEach 以任意顺序遍历，visit 返回 false 时停止；visit 内删除当前键是安全的。
	ForEach(visit func(key string, e *Entry) bool)
	Len() int
}

// NewTable 返回基于 map 的默认 Table 实现。
func NewTable() Table {
	return mapTable{}
}

type mapTable map[string]*Entry

func (t mapTable) Get(key string) (*Entry, bool) {
	e, ok := t[key]
	return e, ok
}

func (t mapTable) Insert(key string, e *Entry) error {
	if _, exists := t[key]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, key)
	}
	t[key] = e
	return nil
}

func (t mapTable) Remove(key string) (*Entry, bool) {
	e, ok := t[key]
	if ok {
		delete(t, key)
	}
	return e, ok
}

func (t mapTable) ForEach(visit func(key string, e *Entry) bool) {
	for key, e := range t {
		if !visit(key, e) {
			return
		}
	}
}

func (t mapTable) Len() int {
	return len(t)
}
