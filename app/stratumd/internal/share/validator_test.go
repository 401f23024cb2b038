package share

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/stratumd/app/stratumd/internal/job"
	"github.com/lk2023060901/stratumd/pkg/idgen"
)

func newTestJob(t *testing.T, jobs *job.Manager, clean bool) *job.Job {
	t.Helper()
	j, created, err := jobs.Create(&job.Template{
		PrevHash:   fmt.Sprintf("prev-%d", time.Now().UnixNano()),
		Coinb1:     "c1",
		Coinb2:     "c2",
		Version:    "20000000",
		NBits:      "1d00ffff",
		NTime:      fmt.Sprintf("%x", time.Now().Unix()),
		Difficulty: 1,
		Clean:      clean,
	})
	require.NoError(t, err)
	require.True(t, created)
	return j
}

func newSubmission(j *job.Job, nonce string) *Submission {
	return &Submission{
		SessionID:   "sess-1",
		Worker:      "rig.01",
		JobID:       j.ID,
		Extranonce2: "00000000",
		NTime:       fmt.Sprintf("%x", time.Now().Unix()),
		Nonce:       nonce,
	}
}

func TestValidateAccepts(t *testing.T) {
	jobs := job.NewManager(idgen.NewSequential(), time.Minute)
	v := NewValidator(jobs)
	j := newTestJob(t, jobs, true)

	got, err := v.Validate(newSubmission(j, "deadbeef"), 4)
	require.NoError(t, err)
	require.Equal(t, j.ID, got.ID)
}

func TestValidateStaleJob(t *testing.T) {
	jobs := job.NewManager(idgen.NewSequential(), time.Minute)
	v := NewValidator(jobs)

	sub := &Submission{JobID: "missing", Extranonce2: "00000000", NTime: fmt.Sprintf("%x", time.Now().Unix()), Nonce: "00"}
	_, err := v.Validate(sub, 4)
	require.ErrorIs(t, err, ErrStaleJob)
}

func TestValidateCleanRetiresOldJobs(t *testing.T) {
	jobs := job.NewManager(idgen.NewSequential(), time.Minute)
	v := NewValidator(jobs)
	old := newTestJob(t, jobs, false)
	_ = newTestJob(t, jobs, true)

	_, err := v.Validate(newSubmission(old, "00"), 4)
	require.ErrorIs(t, err, ErrStaleJob)
}

func TestValidateDuplicate(t *testing.T) {
	jobs := job.NewManager(idgen.NewSequential(), time.Minute)
	v := NewValidator(jobs)
	j := newTestJob(t, jobs, true)

	_, err := v.Validate(newSubmission(j, "deadbeef"), 4)
	require.NoError(t, err)

	_, err = v.Validate(newSubmission(j, "deadbeef"), 4)
	require.ErrorIs(t, err, ErrDuplicate)

	// nonce 不同不算重复
	_, err = v.Validate(newSubmission(j, "cafebabe"), 4)
	require.NoError(t, err)
}

func TestValidateExtranonce2Length(t *testing.T) {
	jobs := job.NewManager(idgen.NewSequential(), time.Minute)
	v := NewValidator(jobs)
	j := newTestJob(t, jobs, true)

	sub := newSubmission(j, "00")
	sub.Extranonce2 = "0000" // 2 字节，会话分配的是 4 字节
	_, err := v.Validate(sub, 4)
	require.ErrorIs(t, err, ErrBadExtranonce2)
}

func TestValidateNTimeWindows(t *testing.T) {
	jobs := job.NewManager(idgen.NewSequential(), time.Minute)
	v := NewValidator(jobs)
	j := newTestJob(t, jobs, true)

	tests := []struct {
		name  string
		ntime string
		want  error
	}{
		{"too old", fmt.Sprintf("%x", time.Now().Add(-2*time.Hour).Unix()), ErrTimeTooOld},
		{"in future", fmt.Sprintf("%x", time.Now().Add(30*time.Minute).Unix()), ErrTimeInFuture},
		{"malformed", "zzzz", ErrBadNTime},
		{"slightly behind", fmt.Sprintf("%x", time.Now().Add(-10*time.Minute).Unix()), nil},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := newSubmission(j, fmt.Sprintf("%08x", i))
			sub.NTime = tt.ntime
			_, err := v.Validate(sub, 4)
			if tt.want == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestPrune(t *testing.T) {
	jobs := job.NewManager(idgen.NewSequential(), time.Minute)
	v := NewValidator(jobs)
	old := newTestJob(t, jobs, false)

	_, err := v.Validate(newSubmission(old, "00"), 4)
	require.NoError(t, err)
	require.Equal(t, 1, v.TrackedJobs())

	// 清场使旧任务退役，其去重桶应被回收
	fresh := newTestJob(t, jobs, true)
	_, err = v.Validate(newSubmission(fresh, "01"), 4)
	require.NoError(t, err)

	removed := v.Prune()
	require.Equal(t, 1, removed)
	require.Equal(t, 1, v.TrackedJobs())
}
