package protocol

import (
	"bytes"
	"errors"
	"strings"
)

const (
	// MaxMsgLen 是单次读取的缓冲区大小
	MaxMsgLen = 128
	// maxPending 限制未结束帧的累积长度
	maxPending = 8 * MaxMsgLen
)

var ErrFrameTooLong = errors.New("frame exceeds maximum pending length")

// Encode 返回以 NUL 结尾的帧
func Encode(msg string) []byte {
	b := make([]byte, 0, len(msg)+1)
	b = append(b, msg...)
	return append(b, 0)
}

// Decoder 将字节流按 NUL 切分成消息，跨读取保留未完成的帧
type Decoder struct {
	pending []byte
}

// Feed 追加读取到的数据并返回其中所有完整的消息（已去除首尾空白，空消息被丢弃）
func (d *Decoder) Feed(data []byte) ([]string, error) {
	d.pending = append(d.pending, data...)

	var msgs []string
	for {
		idx := bytes.IndexByte(d.pending, 0)
		if idx < 0 {
			break
		}
		if msg := strings.TrimSpace(string(d.pending[:idx])); msg != "" {
			msgs = append(msgs, msg)
		}
		d.pending = d.pending[idx+1:]
	}

	if len(d.pending) > maxPending {
		d.pending = nil
		return msgs, ErrFrameTooLong
	}
	if len(d.pending) == 0 {
		d.pending = nil
	}
	return msgs, nil
}

// Pending 返回尚未结束的字节数
func (d *Decoder) Pending() int {
	return len(d.pending)
}

func (d *Decoder) Reset() {
	d.pending = nil
}
