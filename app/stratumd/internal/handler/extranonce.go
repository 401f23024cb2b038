package handler

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"

	"go.uber.org/atomic"
)

// ExtranonceAllocator 为每个会话分配唯一的 extranonce1
// 4 字节递增计数器，起点随机，十六进制编码后为 8 个字符
type ExtranonceAllocator struct {
	counter atomic.Uint32
}

// NewExtranonceAllocator 创建分配器，计数起点取随机值
// 避免进程重启后立刻复用上一轮的取值
func NewExtranonceAllocator() *ExtranonceAllocator {
	a := &ExtranonceAllocator{}

	var seed [4]byte
	if _, err := crand.Read(seed[:]); err == nil {
		a.counter.Store(binary.BigEndian.Uint32(seed[:]))
	}
	return a
}

// Next 分配下一个 extranonce1
func (a *ExtranonceAllocator) Next() string {
	return fmt.Sprintf("%08x", a.counter.Inc())
}
