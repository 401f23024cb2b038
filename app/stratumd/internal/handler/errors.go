package handler

import "errors"

// ErrCloseConnection 致命协议错误，调用方应在响应写出后关闭连接
var ErrCloseConnection = errors.New("handler: close connection")
