package connection

import (
	"errors"
	"net"

	"github.com/life-stream-dev/go-scmirroring/internal/logger"
	"github.com/life-stream-dev/go-scmirroring/internal/protocol"
)

var ErrNoClient = errors.New("no active client")

// MessageSender 消息发送器接口
type MessageSender interface {
	SendMessage(msg string) error
}

// ActiveClientSender 将消息发送给当前活动的客户端
type ActiveClientSender struct {
	manager *ConnectionManager
}

func NewMessageSender(manager *ConnectionManager) MessageSender {
	return &ActiveClientSender{manager: manager}
}

func (s *ActiveClientSender) SendMessage(msg string) error {
	conn, ok := s.manager.Active()
	if !ok {
		logger.WarnF("No client to receive %q", msg)
		return ErrNoClient
	}
	return SendMessage(conn.Conn, msg, conn.ConnID)
}

// SendMessage 发送一条以 NUL 结尾的消息
func SendMessage(conn net.Conn, msg string, connID string) error {
	if err := Send(conn, protocol.Encode(msg), connID); err != nil {
		return err
	}
	logger.DebugF("[%s] Sent %q", connID, msg)
	return nil
}

// Send 发送数据到对端，直到全部写完
func Send(conn net.Conn, data []byte, connID string) error {
	total := 0
	for total < len(data) {
		n, err := conn.Write(data[total:])
		if err != nil {
			logger.ErrorF("[%s] Fail to send data, details: %v", connID, err)
			return err
		}
		total += n
	}
	return nil
}
