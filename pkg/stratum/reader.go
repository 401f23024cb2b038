package stratum

import (
	"bufio"
	"bytes"
	"io"
)

// Reader 流式帧读取器
// 缓冲不完整的数据，直到观察到换行符才返回一帧
type Reader struct {
	br       *bufio.Reader
	maxFrame int
	partial  []byte
}

// NewReader 创建帧读取器
// maxFrame: 单帧最大字节数（含缓冲的不完整部分），<=0 使用 64KB
func NewReader(r io.Reader, maxFrame int) *Reader {
	if maxFrame <= 0 {
		maxFrame = 64 * 1024
	}
	return &Reader{
		br:       bufio.NewReaderSize(r, 4*1024),
		maxFrame: maxFrame,
	}
}

// ReadFrame 读取下一帧，去掉结尾换行符和空白
// 超长帧返回 ErrFrameTooLarge；底层读错误原样透传
func (r *Reader) ReadFrame() ([]byte, error) {
	for {
		chunk, err := r.br.ReadSlice('\n')
		if err == bufio.ErrBufferFull {
			r.partial = append(r.partial, chunk...)
			if len(r.partial) > r.maxFrame {
				r.partial = nil
				return nil, ErrFrameTooLarge
			}
			continue
		}
		if err != nil {
			// 连接关闭或读超时，丢弃缓冲的不完整帧
			r.partial = nil
			return nil, err
		}

		var frame []byte
		if len(r.partial) > 0 {
			frame = append(r.partial, chunk...)
			r.partial = nil
		} else {
			frame = append([]byte(nil), chunk...)
		}

		if len(frame) > r.maxFrame+1 {
			return nil, ErrFrameTooLarge
		}

		frame = bytes.TrimSpace(frame)
		if len(frame) == 0 {
			// 空行直接跳过
			continue
		}
		return frame, nil
	}
}
