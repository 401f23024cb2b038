package stratum

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// SubscribeParams mining.subscribe 参数: [user_agent, (session_id)]
type SubscribeParams struct {
	UserAgent string
	SessionID string
}

// ParseSubscribeParams 解析订阅参数，所有元素均可缺省
func ParseSubscribeParams(raw json.RawMessage) (*SubscribeParams, error) {
	var arr []string
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &arr); err != nil {
			return nil, errors.WithSecondaryError(ErrInvalidParams, err)
		}
	}
	p := &SubscribeParams{}
	if len(arr) > 0 {
		p.UserAgent = arr[0]
	}
	if len(arr) > 1 {
		p.SessionID = arr[1]
	}
	return p, nil
}

// AuthorizeParams mining.authorize 参数: [worker, password]
type AuthorizeParams struct {
	Worker   string
	Password string
}

// ParseAuthorizeParams 解析授权参数，worker 必填
func ParseAuthorizeParams(raw json.RawMessage) (*AuthorizeParams, error) {
	var arr []string
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, errors.WithSecondaryError(ErrInvalidParams, err)
	}
	if len(arr) < 1 || arr[0] == "" {
		return nil, errors.WithDetail(ErrInvalidParams, "worker name is required")
	}
	p := &AuthorizeParams{Worker: arr[0]}
	if len(arr) > 1 {
		p.Password = arr[1]
	}
	return p, nil
}

// SubmitParams mining.submit 参数: [worker, job_id, extranonce2, ntime, nonce]
type SubmitParams struct {
	Worker      string
	JobID       string
	Extranonce2 string
	NTime       string
	Nonce       string
}

// ParseSubmitParams 解析提交参数
func ParseSubmitParams(raw json.RawMessage) (*SubmitParams, error) {
	var arr []string
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, errors.WithSecondaryError(ErrInvalidParams, err)
	}
	if len(arr) < 5 {
		return nil, errors.WithDetail(ErrInvalidParams, "submit requires 5 params")
	}
	return &SubmitParams{
		Worker:      arr[0],
		JobID:       arr[1],
		Extranonce2: arr[2],
		NTime:       arr[3],
		Nonce:       arr[4],
	}, nil
}

// SubscribeResult 构造订阅响应的 result:
// [[["mining.set_difficulty", subID], ["mining.notify", subID]], extranonce1, extranonce2Size]
func SubscribeResult(subID, extranonce1 string, extranonce2Size int) []interface{} {
	return []interface{}{
		[]interface{}{
			[]interface{}{MethodSetDifficulty, subID},
			[]interface{}{MethodNotify, subID},
		},
		extranonce1,
		extranonce2Size,
	}
}

// NotifyParams 构造 mining.notify 参数:
// [job_id, prevhash, coinb1, coinb2, merkle_branch, version, nbits, ntime, clean_jobs]
func NotifyParams(jobID, prevHash, coinb1, coinb2 string, merkleBranch []string, version, nbits, ntime string, clean bool) []interface{} {
	branch := make([]interface{}, len(merkleBranch))
	for i, h := range merkleBranch {
		branch[i] = h
	}
	return []interface{}{jobID, prevHash, coinb1, coinb2, branch, version, nbits, ntime, clean}
}

// SetDifficultyParams 构造 mining.set_difficulty 参数
func SetDifficultyParams(difficulty float64) []interface{} {
	return []interface{}{difficulty}
}
