// Package job 定义挖矿任务模型：由区块模板生成，带单调递增序号，
// 被调度器广播给所有活跃会话，过期或被新任务取代后退役。
package job

import (
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/lk2023060901/stratumd/pkg/stratum"
)

// Template 区块模板，由外部模板源（bitcoind 或本地生成器）提供
type Template struct {
	// PrevHash 上一区块哈希（十六进制）
	PrevHash string
	// Coinb1 coinbase 交易前半段
	Coinb1 string
	// Coinb2 coinbase 交易后半段
	Coinb2 string
	// MerkleBranch 默克尔分支
	MerkleBranch []string
	// Version 区块版本（十六进制）
	Version string
	// NBits 难度目标（压缩格式）
	NBits string
	// NTime 区块时间戳（十六进制）
	NTime string
	// Difficulty 份额难度
	Difficulty float64
	// Height 区块高度
	Height int64
	// Clean 为 true 时矿工必须丢弃所有旧任务
	Clean bool
}

// Checksum 模板内容摘要，用于去重：相同模板不重复建任务
func (t *Template) Checksum() uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(t.PrevHash)
	_, _ = d.WriteString(t.Coinb1)
	_, _ = d.WriteString(t.Coinb2)
	for _, h := range t.MerkleBranch {
		_, _ = d.WriteString(h)
	}
	_, _ = d.WriteString(t.Version)
	_, _ = d.WriteString(t.NBits)
	_, _ = d.WriteString(t.NTime)
	return d.Sum64()
}

// Job 广播给矿工的任务
type Job struct {
	// ID 任务标识，出现在 notify 和 submit 中
	ID string
	// Seq 单调递增序号，保证会话不会收到比已收任务更旧的 notify
	Seq uint64
	// Template 生成该任务的模板
	Template *Template
	// Clean 清场标志
	Clean bool
	// CreatedAt 创建时间
	CreatedAt time.Time
	// ExpiresAt 过期时间
	ExpiresAt time.Time
}

// Expired 任务是否已过期
func (j *Job) Expired() bool {
	return time.Now().After(j.ExpiresAt)
}

// NotifyParams 构造该任务的 mining.notify 参数
func (j *Job) NotifyParams() []interface{} {
	t := j.Template
	return stratum.NotifyParams(j.ID, t.PrevHash, t.Coinb1, t.Coinb2, t.MerkleBranch, t.Version, t.NBits, t.NTime, j.Clean)
}
