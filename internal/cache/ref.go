package cache

// Ref 是对 Entry 的一次引用。Release 幂等，调用方应 defer ref.Release()，
// 确保错误与取消路径同样归还引用。
type Ref struct {
	manager  *Manager
	entry    *Entry
	released bool
}

// Entry 返回被引用的条目。
func (r *Ref) Entry() *Entry {
	return r.entry
}

// Release 归还引用；若条目已是 zombie 且这是最后一个引用，则销毁条目。
func (r *Ref) Release() {
	if r == nil || r.released {
		return
	}
	r.released = true
	r.manager.release(r.entry)
}

// Released 报告该引用是否已归还。
func (r *Ref) Released() bool {
	return r.released
}
