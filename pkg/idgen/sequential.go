package idgen

import "go.uber.org/atomic"

type sequentialGenerator struct {
	counter atomic.Int64
}

// NewSequential 创建递增计数生成器，不依赖时钟和机器ID
// 适用于单进程场景和测试
func NewSequential() Generator {
	return &sequentialGenerator{}
}

func (g *sequentialGenerator) NextID() (int64, error) {
	return g.counter.Inc(), nil
}
