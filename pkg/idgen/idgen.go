// Package idgen 提供全局唯一 ID 生成能力，任务 ID、会话计数等均由此分配。
package idgen

// Generator ID生成器接口
type Generator interface {
	// NextID 生成下一个唯一ID
	NextID() (int64, error)
}
