// Package connection 管理命令通道上的客户端连接
package connection

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/life-stream-dev/go-scmirroring/internal/logger"
	"github.com/life-stream-dev/go-scmirroring/internal/protocol"
)

// MaxClientCount 同一时间只服务一个客户端
const MaxClientCount = 1

// Connection 表示一个命令通道客户端
type Connection struct {
	Conn    net.Conn
	ConnID  string
	Decoder protocol.Decoder
}

func NewConnection(conn net.Conn) *Connection {
	return &Connection{Conn: conn, ConnID: uuid.NewString()[:8]}
}

// ConnectionManager 连接管理器，持有当前活动的客户端
type ConnectionManager struct {
	mu          sync.Mutex
	connections map[string]*Connection
	max         int
}

func NewConnectionManager(max int) *ConnectionManager {
	if max <= 0 {
		max = MaxClientCount
	}
	return &ConnectionManager{connections: make(map[string]*Connection), max: max}
}

// AddConnection 添加连接，超过上限时返回 false
func (cm *ConnectionManager) AddConnection(conn *Connection) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if len(cm.connections) >= cm.max {
		return false
	}
	cm.connections[conn.ConnID] = conn
	logger.InfoF("[%s] Client connected", conn.ConnID)
	return true
}

// RemoveConnection 移除连接
func (cm *ConnectionManager) RemoveConnection(connID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if _, ok := cm.connections[connID]; ok {
		delete(cm.connections, connID)
		logger.InfoF("[%s] Client disconnected", connID)
	}
}

// GetConnection 获取连接
func (cm *ConnectionManager) GetConnection(connID string) (*Connection, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	conn, ok := cm.connections[connID]
	return conn, ok
}

// Active 返回任意一个活动连接（上限为 1 时即唯一的连接）
func (cm *ConnectionManager) Active() (*Connection, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for _, conn := range cm.connections {
		return conn, true
	}
	return nil, false
}

// CloseAll 关闭并移除全部连接
func (cm *ConnectionManager) CloseAll() {
	cm.mu.Lock()
	conns := cm.connections
	cm.connections = make(map[string]*Connection)
	cm.mu.Unlock()
	for _, conn := range conns {
		if err := conn.Conn.Close(); err != nil && !IsNetClosedError(err) {
			logger.WarnF("[%s] Error occured while closing connection, details: %v", conn.ConnID, err)
		}
	}
}

func IsNetClosedError(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	ok := errors.As(err, &opErr)
	return ok && opErr.Timeout()
}

func HandleReadError(connID string, err error) {
	switch {
	case err == nil, errors.Is(err, io.EOF):
		logger.InfoF("[%s] Client close connection", connID)
	case os.IsTimeout(err):
		logger.WarnF("[%s] Reading timeout", connID)
	case IsNetClosedError(err):
		logger.DebugF("[%s] Connection closed locally", connID)
	default:
		logger.ErrorF("[%s] Error occured while reading message, details: %v", connID, err)
	}
}
