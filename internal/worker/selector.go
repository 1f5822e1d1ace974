package worker

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// Strategy 决定请求 URI 被分派到哪个 worker。
type Strategy string

const (
	// StrategyHash 按 URI 哈希固定分派，同一 URI 总是落在同一 worker。
	StrategyHash Strategy = "hash"
	// StrategyRoundRobin 轮询分派，同一文件可能在多个 worker 上各自映射一份。
	StrategyRoundRobin Strategy = "round-robin"
)

// ParseStrategy 解析配置中的策略名称，空串视为 hash。
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyHash:
		return StrategyHash, nil
	case StrategyRoundRobin:
		return StrategyRoundRobin, nil
	default:
		return "", fmt.Errorf("unknown worker select strategy %q", s)
	}
}

// Selector 从 n 个 worker 中为 uri 选出一个下标。
type Selector interface {
	Select(uri string, n int) int
}

func newSelector(s Strategy) Selector {
	if s == StrategyRoundRobin {
		return &roundRobinSelector{}
	}
	return hashSelector{}
}

type hashSelector struct{}

func (hashSelector) Select(uri string, n int) int {
	return int(xxhash.Sum64String(uri) % uint64(n))
}

type roundRobinSelector struct {
	next atomic.Uint64
}

func (r *roundRobinSelector) Select(_ string, n int) int {
	return int((r.next.Add(1) - 1) % uint64(n))
}
