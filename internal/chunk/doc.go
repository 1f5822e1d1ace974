// Package chunk 提供固定容量的输出片段（Chunk）及其有序序列（List）。
//
// 缓存条目的正文被切分为若干只读 view chunk，直接引用条目的内存映射，不复制字节；
// 预渲染的响应头则写入持有池化缓冲区的 owned chunk。消费方只能拿到 Reader，
// 无法修改底层内存。
package chunk
