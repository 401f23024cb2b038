package stratum

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/valyala/bytebufferpool"
)

// Decode 解析一帧（不含换行符）为请求
// 非法 JSON 或缺少 method 字段返回 ErrMalformedMessage
func Decode(frame []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(frame, &req); err != nil {
		return nil, errors.WithSecondaryError(ErrMalformedMessage, err)
	}
	if req.Method == "" {
		return nil, errors.WithDetail(ErrMalformedMessage, "missing method")
	}
	return &req, nil
}

// EncodeResponse 将响应编码为换行结尾的帧
func EncodeResponse(resp *Response) ([]byte, error) {
	return encodeFrame(resp)
}

// EncodeNotification 将通知编码为换行结尾的帧
func EncodeNotification(n *Notification) ([]byte, error) {
	return encodeFrame(n)
}

// encodeFrame 编码任意消息，json.Encoder 自带结尾换行符
// 编码缓冲走 bytebufferpool，避免广播热路径上的重复分配
func encodeFrame(v interface{}) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if err := json.NewEncoder(buf).Encode(v); err != nil {
		return nil, errors.Wrap(err, "encode frame")
	}

	out := make([]byte, buf.Len())
	copy(out, buf.B)
	return out, nil
}
