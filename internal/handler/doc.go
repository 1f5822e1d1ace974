// Package handler 把 HTTP 请求翻译为缓存操作：GET/HEAD 读取映射条目，
// PUT 暂存上传内容，DELETE 在所有 worker 上失效条目。
package handler
