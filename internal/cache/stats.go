package cache

import "time"

// Stats 汇总单个 Manager 的计数器，用于诊断接口。
type Stats struct {
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	Created     uint64 `json:"created"`
	Spooled     uint64 `json:"spooled"`
	Evicted     uint64 `json:"evicted"`
	Invalidated uint64 `json:"invalidated"`
	Destroyed   uint64 `json:"destroyed"`
	Live        int    `json:"live"`
	Zombies     int    `json:"zombies"`
	MappedBytes int64  `json:"mapped_bytes"`
}

// Add 累加另一份统计，便于汇总多个 worker。
func (s Stats) Add(o Stats) Stats {
	s.Hits += o.Hits
	s.Misses += o.Misses
	s.Created += o.Created
	s.Spooled += o.Spooled
	s.Evicted += o.Evicted
	s.Invalidated += o.Invalidated
	s.Destroyed += o.Destroyed
	s.Live += o.Live
	s.Zombies += o.Zombies
	s.MappedBytes += o.MappedBytes
	return s
}

// EntryInfo 是条目的只读快照。
type EntryInfo struct {
	URI        string `json:"uri"`
	Size       int64  `json:"size"`
	MappingLen int64  `json:"mapping_len"`
	Chunks     int    `json:"chunks"`
	HeaderLen  int    `json:"header_len"`
	Evictable  bool   `json:"evictable"`
	Zombie     bool   `json:"zombie"`
	Pending    int    `json:"pending"`
	IdleMS     int64  `json:"idle_ms"`
	ETag       string `json:"etag"`
}

// Stats 返回当前计数器快照。
func (m *Manager) Stats() Stats {
	s := m.stats
	s.Live = m.table.Len()
	s.Zombies = len(m.zombies)
	m.table.ForEach(func(_ string, e *Entry) bool {
		s.MappedBytes += e.MappingLen()
		return true
	})
	for e := range m.zombies {
		s.MappedBytes += e.MappingLen()
	}
	return s
}

// Entries 返回表中条目与 zombie 的快照。
func (m *Manager) Entries() []EntryInfo {
	now := m.now()
	out := make([]EntryInfo, 0, m.table.Len()+len(m.zombies))
	m.table.ForEach(func(_ string, e *Entry) bool {
		out = append(out, snapshot(e, now))
		return true
	})
	for e := range m.zombies {
		out = append(out, snapshot(e, now))
	}
	return out
}

func snapshot(e *Entry, now time.Time) EntryInfo {
	return EntryInfo{
		URI:        e.uri,
		Size:       e.size,
		MappingLen: e.MappingLen(),
		Chunks:     e.Chunks(),
		HeaderLen:  e.headerLen,
		Evictable:  e.evictable,
		Zombie:     e.Zombie(),
		Pending:    e.pending,
		IdleMS:     now.Sub(e.lastAccessed).Milliseconds(),
		ETag:       e.etag,
	}
}
