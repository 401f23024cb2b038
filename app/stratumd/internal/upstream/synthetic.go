package upstream

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/atomic"

	"github.com/lk2023060901/stratumd/app/stratumd/internal/job"
)

// Synthetic 合成模板源：每次拉取生成一份伪模板
// 用于本地联调和端到端测试，不依赖任何外部节点
type Synthetic struct {
	difficulty float64
	height     atomic.Int64
}

// NewSynthetic 创建合成模板源
func NewSynthetic(difficulty float64, startHeight int64) *Synthetic {
	if difficulty <= 0 {
		difficulty = 1
	}
	s := &Synthetic{difficulty: difficulty}
	s.height.Store(startHeight)
	return s
}

// Fetch 生成下一份模板，高度递增，prevhash 随机
func (s *Synthetic) Fetch(_ context.Context) (*job.Template, error) {
	var prev [32]byte
	if _, err := rand.Read(prev[:]); err != nil {
		return nil, err
	}

	return &job.Template{
		PrevHash:     hex.EncodeToString(prev[:]),
		Coinb1:       "01000000010000000000000000000000000000000000000000000000000000000000000000ffffffff14",
		Coinb2:       "ffffffff0100f2052a010000001976a914000000000000000000000000000000000000000088ac00000000",
		MerkleBranch: []string{},
		Version:      "20000000",
		NBits:        "1d00ffff",
		NTime:        fmt.Sprintf("%08x", time.Now().Unix()),
		Difficulty:   s.difficulty,
		Height:       s.height.Inc(),
		Clean:        true,
	}, nil
}
