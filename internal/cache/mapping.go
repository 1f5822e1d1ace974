package cache

// roundUp 把长度向上取整到页大小的整数倍；长度为 0 时仍映射一页。
func roundUp(n int64) int64 {
	if n <= 0 {
		return pageSize
	}
	return (n + pageSize - 1) / pageSize * pageSize
}
