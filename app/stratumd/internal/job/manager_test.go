package job

import (
	"testing"
	"time"

	"github.com/lk2023060901/stratumd/pkg/idgen"
)

func newTestManager(t *testing.T, ttl time.Duration) *Manager {
	t.Helper()
	gen, err := idgen.NewSonyflake(1)
	if err != nil {
		t.Fatalf("failed to create idgen: %v", err)
	}
	return NewManager(gen, ttl)
}

func testTemplate(prevHash string, clean bool) *Template {
	return &Template{
		PrevHash:     prevHash,
		Coinb1:       "01000000",
		Coinb2:       "ffffffff",
		MerkleBranch: []string{"aa", "bb"},
		Version:      "20000000",
		NBits:        "1d00ffff",
		NTime:        "65f00000",
		Difficulty:   1.0,
		Height:       100,
		Clean:        clean,
	}
}

func TestCreateAssignsMonotonicSeq(t *testing.T) {
	m := newTestManager(t, time.Minute)

	j1, created, err := m.Create(testTemplate("aaaa", false))
	if err != nil || !created {
		t.Fatalf("expected job created, got created=%v err=%v", created, err)
	}
	j2, created, err := m.Create(testTemplate("bbbb", false))
	if err != nil || !created {
		t.Fatalf("expected job created, got created=%v err=%v", created, err)
	}

	if j2.Seq <= j1.Seq {
		t.Errorf("expected monotonic seq, got %d then %d", j1.Seq, j2.Seq)
	}
	if j1.ID == j2.ID {
		t.Error("expected distinct job ids")
	}
	if m.Current() != j2 {
		t.Error("expected current job to be the newest")
	}
}

func TestCreateDedupesIdenticalTemplate(t *testing.T) {
	m := newTestManager(t, time.Minute)

	_, created, err := m.Create(testTemplate("aaaa", false))
	if err != nil || !created {
		t.Fatalf("first create failed: created=%v err=%v", created, err)
	}
	j, created, err := m.Create(testTemplate("aaaa", false))
	if err != nil {
		t.Fatalf("second create failed: %v", err)
	}
	if created || j != nil {
		t.Error("identical template should not create a new job")
	}

	// 清场模板即便内容相同也必须新建
	_, created, err = m.Create(testTemplate("aaaa", true))
	if err != nil || !created {
		t.Errorf("clean template must always create a job, created=%v err=%v", created, err)
	}
}

func TestCleanJobRetiresOlderJobs(t *testing.T) {
	m := newTestManager(t, time.Minute)

	j1, _, _ := m.Create(testTemplate("aaaa", false))
	if _, ok := m.Lookup(j1.ID); !ok {
		t.Fatal("expected job1 to be active")
	}

	j2, _, _ := m.Create(testTemplate("bbbb", true))
	if _, ok := m.Lookup(j1.ID); ok {
		t.Error("clean job must retire all prior jobs")
	}
	if _, ok := m.Lookup(j2.ID); !ok {
		t.Error("expected clean job itself to be active")
	}
}

func TestLookupExpired(t *testing.T) {
	m := newTestManager(t, time.Millisecond)

	j, _, _ := m.Create(testTemplate("aaaa", false))
	time.Sleep(5 * time.Millisecond)

	if _, ok := m.Lookup(j.ID); ok {
		t.Error("expected expired job to be invisible")
	}
}

func TestNotifyParamsShape(t *testing.T) {
	m := newTestManager(t, time.Minute)
	j, _, _ := m.Create(testTemplate("cafe", true))

	params := j.NotifyParams()
	if len(params) != 9 {
		t.Fatalf("expected 9 notify params, got %d", len(params))
	}
	if params[0] != j.ID {
		t.Errorf("expected job id first, got %v", params[0])
	}
	if params[8] != true {
		t.Errorf("expected clean flag true, got %v", params[8])
	}
}
