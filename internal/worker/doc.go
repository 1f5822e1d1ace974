// Package worker 提供按 worker 分片的缓存执行模型：每个 worker 是一个独占
// cache.Manager 的 goroutine，所有对条目表的操作都以闭包形式提交给所属 worker 串行执行。
package worker
