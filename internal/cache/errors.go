package cache

import "errors"

var (
	// ErrNotFound 表示源文件不存在、是目录或为空，调用方应视为无法缓存。
	ErrNotFound = errors.New("cache source not found")
	// ErrResourceExhausted 表示描述符、映射或内存分配失败，调用方可重试或走非缓存路径。
	ErrResourceExhausted = errors.New("cache resources exhausted")
	// ErrAlreadyExists 表示表中已有同 URI 条目，调用方应重新 Lookup。
	ErrAlreadyExists = errors.New("cache entry already exists")
	// ErrURITooLong 表示 URI 超过 MaxURILength，不会被缓存。
	ErrURITooLong = errors.New("cache uri too long")
)
