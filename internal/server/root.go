package server

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// IndexFile 是目录请求默认返回的文件名。
const IndexFile = "index.html"

// ErrInvalidPath 表示请求路径逃逸出文档根目录。
var ErrInvalidPath = errors.New("invalid request path")

// Root 把请求 URI 映射到文档根目录下的文件路径。
type Root struct {
	base string
}

// NewRoot 校验 dir 是存在的目录并返回其绝对路径封装。
func NewRoot(dir string) (*Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("无法解析文档根目录: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("文档根目录不可用: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("文档根目录不是目录: %s", abs)
	}
	return &Root{base: abs}, nil
}

// Dir 返回文档根目录的绝对路径。
func (r *Root) Dir() string {
	return r.base
}

// Clean 规范化请求路径：补齐前导斜杠、折叠 ..，以斜杠结尾时追加 IndexFile。
// 返回值同时作为缓存表键。
func Clean(uri string) string {
	if uri == "" || strings.HasSuffix(uri, "/") {
		uri += IndexFile
	}
	return path.Clean("/" + uri)
}

// Resolve 返回 uri 对应的文件路径，拒绝逃逸出根目录的路径。
func (r *Root) Resolve(uri string) (string, error) {
	rel := strings.TrimPrefix(Clean(uri), "/")
	filePath := filepath.Join(r.base, filepath.FromSlash(rel))
	if filePath != r.base && !strings.HasPrefix(filePath, r.base+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return filePath, nil
}

// URI 把根目录下的文件路径还原为请求 URI，用于文件变更时定位缓存键。
func (r *Root) URI(filePath string) (string, bool) {
	rel, err := filepath.Rel(r.base, filePath)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return "/" + filepath.ToSlash(rel), true
}
