// Package stratum 实现 Stratum V1 挖矿协议的编解码：
// 以换行符分隔的 JSON-RPC 消息（请求/响应/通知）。
package stratum

import "encoding/json"

// 协议方法名
const (
	MethodSubscribe     = "mining.subscribe"
	MethodAuthorize     = "mining.authorize"
	MethodSubmit        = "mining.submit"
	MethodNotify        = "mining.notify"
	MethodSetDifficulty = "mining.set_difficulty"
)

// JSON-RPC 错误码，沿用矿池约定
const (
	CodeUnknown           = 20  // 其他错误 / 未知方法 / 乱序请求
	CodeStaleJob          = 21  // 任务不存在或已过期
	CodeDuplicateShare    = 22  // 重复提交
	CodeLowDifficulty     = 23  // 难度不足
	CodeUnauthorized      = 24  // 未授权的矿工
	CodeNotSubscribed     = 25  // 未订阅
	CodeParseError        = -32700 // JSON 解析失败
)

// Request 客户端请求
// ID 使用 *json.RawMessage 以区分 null 和缺失
type Request struct {
	ID     *json.RawMessage `json:"id"`
	Method string           `json:"method"`
	Params json.RawMessage  `json:"params"`
}

// IsNotification 判断请求是否为通知（id 为 null 或缺失）
func (r *Request) IsNotification() bool {
	return r.ID == nil || string(*r.ID) == "null"
}

// Response 服务端响应，id 与触发它的请求一致
type Response struct {
	ID     *json.RawMessage `json:"id"`
	Result interface{}      `json:"result"`
	Error  *ErrorObj        `json:"error"`
}

// Notification 服务端主动推送，id 恒为 null
type Notification struct {
	ID     interface{}   `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// ErrorObj JSON-RPC 错误对象
type ErrorObj struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewErrorObj 创建错误对象
func NewErrorObj(code int, message string) *ErrorObj {
	return &ErrorObj{Code: code, Message: message}
}

// NewResponse 创建成功响应
func NewResponse(id *json.RawMessage, result interface{}) *Response {
	return &Response{ID: id, Result: result, Error: nil}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(id *json.RawMessage, code int, message string) *Response {
	return &Response{ID: id, Result: nil, Error: NewErrorObj(code, message)}
}

// NewNotification 创建通知
func NewNotification(method string, params []interface{}) *Notification {
	return &Notification{ID: nil, Method: method, Params: params}
}
