// Package share 校验矿工提交的份额：任务有效性、重复提交、时间戳窗口。
// 不做工作量证明哈希验证，难度校验由上层矿池体系承担。
package share

import (
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/lk2023060901/stratumd/app/stratumd/internal/job"
)

// 时间戳窗口：落后超过 1 小时或超前超过 15 分钟的提交拒绝
const (
	maxTimeBehind = time.Hour
	maxTimeAhead  = 15 * time.Minute
)

// Submission 一次份额提交
type Submission struct {
	SessionID   string
	Worker      string
	JobID       string
	Extranonce2 string
	NTime       string
	Nonce       string
}

// fingerprint 提交去重指纹，同一任务内唯一
func (s *Submission) fingerprint() uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(s.Worker)
	_, _ = d.WriteString("|")
	_, _ = d.WriteString(s.Extranonce2)
	_, _ = d.WriteString("|")
	_, _ = d.WriteString(s.NTime)
	_, _ = d.WriteString("|")
	_, _ = d.WriteString(s.Nonce)
	return d.Sum64()
}

// Validator 份额校验器
// 按任务分桶记录已见提交，任务退役后随桶一起被清理
type Validator struct {
	jobs *job.Manager

	mu   sync.Mutex
	seen map[string]map[uint64]struct{} // jobID -> 提交指纹集合
}

// NewValidator 创建份额校验器
func NewValidator(jobs *job.Manager) *Validator {
	return &Validator{
		jobs: jobs,
		seen: make(map[string]map[uint64]struct{}),
	}
}

// Validate 校验提交，返回对应的拒绝原因；通过时返回任务
func (v *Validator) Validate(sub *Submission, extranonce2Size int) (*job.Job, error) {
	j, ok := v.jobs.Lookup(sub.JobID)
	if !ok {
		return nil, ErrStaleJob
	}

	// extranonce2 为十六进制串，长度是字节数的两倍
	if len(sub.Extranonce2) != extranonce2Size*2 {
		return nil, ErrBadExtranonce2
	}

	if err := checkNTime(sub.NTime); err != nil {
		return nil, err
	}

	fp := sub.fingerprint()
	v.mu.Lock()
	defer v.mu.Unlock()

	bucket, ok := v.seen[sub.JobID]
	if !ok {
		bucket = make(map[uint64]struct{})
		v.seen[sub.JobID] = bucket
	}
	if _, dup := bucket[fp]; dup {
		return nil, ErrDuplicate
	}
	bucket[fp] = struct{}{}
	return j, nil
}

// Prune 丢弃已退役任务的去重桶
func (v *Validator) Prune() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	n := 0
	for jobID := range v.seen {
		if _, ok := v.jobs.Lookup(jobID); !ok {
			delete(v.seen, jobID)
			n++
		}
	}
	return n
}

// TrackedJobs 仍持有去重桶的任务数量
func (v *Validator) TrackedJobs() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.seen)
}

func checkNTime(ntime string) error {
	ts, err := strconv.ParseInt(ntime, 16, 64)
	if err != nil {
		return ErrBadNTime
	}

	now := time.Now()
	t := time.Unix(ts, 0)
	if now.Sub(t) > maxTimeBehind {
		return ErrTimeTooOld
	}
	if t.Sub(now) > maxTimeAhead {
		return ErrTimeInFuture
	}
	return nil
}
