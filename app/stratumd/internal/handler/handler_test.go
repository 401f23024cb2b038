package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/stratumd/app/stratumd/internal/job"
	"github.com/lk2023060901/stratumd/app/stratumd/internal/session"
	"github.com/lk2023060901/stratumd/app/stratumd/internal/share"
	"github.com/lk2023060901/stratumd/component/auth"
	"github.com/lk2023060901/stratumd/pkg/idgen"
	"github.com/lk2023060901/stratumd/pkg/logger"
)

type testEnv struct {
	handler  *Handler
	sessions *session.Manager
	jobs     *job.Manager
	sess     *session.Session
	reader   *bufio.Reader
	client   net.Conn

	activated []string
	accepted  int
	rejected  []int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	jobs := job.NewManager(idgen.NewSequential(), time.Minute)
	sessions := session.NewManager()

	authMgr := auth.NewManager(auth.ModeStatic)
	authMgr.Register(NewTestAuthenticator())

	env := &testEnv{jobs: jobs, sessions: sessions}
	hooks := Hooks{
		OnActivate: func(s *session.Session) { env.activated = append(env.activated, s.Worker()) },
		OnShareAccepted: func(_ *session.Session, _ *job.Job, _ *share.Submission) {
			env.accepted++
		},
		OnShareRejected: func(_ *session.Session, _ *share.Submission, code int) {
			env.rejected = append(env.rejected, code)
		},
	}
	env.handler = New(logger.NewNop(), sessions, share.NewValidator(jobs), authMgr, nil, hooks)

	server, client := net.Pipe()
	env.sess = session.New(server, nil)
	env.client = client
	env.reader = bufio.NewReader(client)
	sessions.Add(env.sess)
	t.Cleanup(func() {
		_ = env.sess.Close()
		_ = client.Close()
	})
	return env
}

// NewTestAuthenticator 静态名单，只放行 rig.* 前缀矿工
func NewTestAuthenticator() auth.Authenticator {
	return auth.NewStaticAuthenticator(map[string]string{
		"rig.01": "",
		"rig.02": "",
	})
}

type response struct {
	ID     interface{} `json:"id"`
	Result interface{} `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// roundTrip 投递一帧并读取一条响应
func (e *testEnv) roundTrip(t *testing.T, frame string) (*response, error) {
	t.Helper()

	handleErr := make(chan error, 1)
	go func() {
		handleErr <- e.handler.HandleFrame(context.Background(), e.sess, []byte(frame))
	}()

	_ = e.client.SetReadDeadline(time.Now().Add(time.Second))
	line, err := e.reader.ReadBytes('\n')
	require.NoError(t, err)

	var resp response
	require.NoError(t, json.Unmarshal(line, &resp))
	return &resp, <-handleErr
}

func (e *testEnv) createJob(t *testing.T) *job.Job {
	t.Helper()
	j, created, err := e.jobs.Create(&job.Template{
		PrevHash: "prev", Coinb1: "c1", Coinb2: "c2",
		Version: "20000000", NBits: "1d00ffff",
		NTime: fmt.Sprintf("%x", time.Now().Unix()),
		Clean: true,
	})
	require.NoError(t, err)
	require.True(t, created)
	return j
}

func (e *testEnv) subscribeAndAuthorize(t *testing.T) {
	t.Helper()
	resp, err := e.roundTrip(t, `{"id":1,"method":"mining.subscribe","params":["miner/1.0"]}`)
	require.NoError(t, err)
	require.Nil(t, resp.Error)

	resp, err = e.roundTrip(t, `{"id":2,"method":"mining.authorize","params":["rig.01","x"]}`)
	require.NoError(t, err)
	require.Nil(t, resp.Error)
	require.Equal(t, true, resp.Result)
}

func TestSubscribe(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.roundTrip(t, `{"id":1,"method":"mining.subscribe","params":["miner/1.0"]}`)
	require.NoError(t, err)
	require.Nil(t, resp.Error)
	require.EqualValues(t, 1, resp.ID)

	result, ok := resp.Result.([]interface{})
	require.True(t, ok)
	require.Len(t, result, 3)

	extranonce1, _ := env.sess.Extranonce()
	require.Equal(t, extranonce1, result[1])
	require.EqualValues(t, 4, result[2])
	require.Equal(t, session.StateSubscribed, env.sess.State())
}

func TestResubscribeRejected(t *testing.T) {
	env := newTestEnv(t)
	_, _ = env.roundTrip(t, `{"id":1,"method":"mining.subscribe","params":[]}`)

	resp, err := env.roundTrip(t, `{"id":2,"method":"mining.subscribe","params":[]}`)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	require.Equal(t, 20, resp.Error.Code)
	require.Equal(t, session.StateSubscribed, env.sess.State())
}

func TestAuthorizeBeforeSubscribe(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.roundTrip(t, `{"id":1,"method":"mining.authorize","params":["rig.01","x"]}`)
	require.NoError(t, err, "ordering violation must not close the connection")
	require.NotNil(t, resp.Error)
	require.Equal(t, 24, resp.Error.Code)
	require.Equal(t, session.StateConnected, env.sess.State())
}

func TestAuthorizeSuccess(t *testing.T) {
	env := newTestEnv(t)
	env.subscribeAndAuthorize(t)

	require.Equal(t, session.StateActive, env.sess.State())
	require.Equal(t, "rig.01", env.sess.Worker())
	require.Equal(t, []string{"rig.01"}, env.activated)
	require.Len(t, env.sessions.GetByWorker("rig.01"), 1)
}

func TestAuthorizeUnknownWorker(t *testing.T) {
	env := newTestEnv(t)
	_, _ = env.roundTrip(t, `{"id":1,"method":"mining.subscribe","params":[]}`)

	resp, err := env.roundTrip(t, `{"id":2,"method":"mining.authorize","params":["stranger","x"]}`)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	require.Equal(t, 24, resp.Error.Code)
	// 授权失败停留在 Subscribed，可重试
	require.Equal(t, session.StateSubscribed, env.sess.State())
	require.Empty(t, env.activated)
}

func TestSubmitBeforeSubscribe(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.roundTrip(t, `{"id":1,"method":"mining.submit","params":["rig.01","j","00000000","0","0"]}`)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	require.Equal(t, 25, resp.Error.Code)
}

func TestSubmitBeforeAuthorize(t *testing.T) {
	env := newTestEnv(t)
	_, _ = env.roundTrip(t, `{"id":1,"method":"mining.subscribe","params":[]}`)

	resp, err := env.roundTrip(t, `{"id":2,"method":"mining.submit","params":["rig.01","j","00000000","0","0"]}`)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	require.Equal(t, 24, resp.Error.Code)
}

func TestSubmitAccepted(t *testing.T) {
	env := newTestEnv(t)
	env.subscribeAndAuthorize(t)
	j := env.createJob(t)

	frame := fmt.Sprintf(`{"id":3,"method":"mining.submit","params":["rig.01","%s","00000000","%x","deadbeef"]}`,
		j.ID, time.Now().Unix())
	resp, err := env.roundTrip(t, frame)
	require.NoError(t, err)
	require.Nil(t, resp.Error)
	require.Equal(t, true, resp.Result)
	require.Equal(t, 1, env.accepted)
}

func TestSubmitStaleAndDuplicate(t *testing.T) {
	env := newTestEnv(t)
	env.subscribeAndAuthorize(t)
	j := env.createJob(t)

	resp, err := env.roundTrip(t, `{"id":3,"method":"mining.submit","params":["rig.01","gone","00000000","0","0"]}`)
	require.NoError(t, err)
	require.Equal(t, 21, resp.Error.Code)

	frame := fmt.Sprintf(`{"id":4,"method":"mining.submit","params":["rig.01","%s","00000000","%x","deadbeef"]}`,
		j.ID, time.Now().Unix())
	resp, err = env.roundTrip(t, frame)
	require.NoError(t, err)
	require.Nil(t, resp.Error)

	resp, err = env.roundTrip(t, frame)
	require.NoError(t, err)
	require.Equal(t, 22, resp.Error.Code)
	require.Equal(t, []int{21, 22}, env.rejected)
}

func TestUnknownMethod(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.roundTrip(t, `{"id":9,"method":"mining.extranonce.subscribe","params":[]}`)
	require.NoError(t, err, "unknown method must not close the connection")
	require.NotNil(t, resp.Error)
	require.Equal(t, 20, resp.Error.Code)
}

func TestMalformedFrameClosesConnection(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.roundTrip(t, `{"id":1,"method":`)
	require.ErrorIs(t, err, ErrCloseConnection)
	require.NotNil(t, resp.Error)
	require.Equal(t, -32700, resp.Error.Code)
	require.Nil(t, resp.ID)
}

func TestResponseIDMatchesRequest(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.roundTrip(t, `{"id":"abc-42","method":"mining.subscribe","params":[]}`)
	require.NoError(t, err)
	require.Equal(t, "abc-42", resp.ID)
}

func TestNotificationGetsNoResponse(t *testing.T) {
	env := newTestEnv(t)

	err := env.handler.HandleFrame(context.Background(), env.sess, []byte(`{"id":null,"method":"mining.subscribe","params":[]}`))
	require.NoError(t, err)

	_ = env.client.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, readErr := env.reader.ReadBytes('\n')
	require.Error(t, readErr, "notification must not produce a response")
	require.Equal(t, session.StateSubscribed, env.sess.State())
}
