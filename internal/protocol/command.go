// Package protocol 实现了 miracast server 与客户端之间的本地控制协议
package protocol

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// CommandType 定义了客户端发往服务器的命令类型
type CommandType byte

const (
	CmdStart        CommandType = iota + 1 // 创建 RTSP/WFD 服务器并开始监听
	CmdSetIP                               // 设置监听地址与端口
	CmdSetCM                               // 设置连接模式
	CmdSetReso                             // 设置分辨率位掩码
	CmdSetMultisink                        // 设置多接收端能力
	CmdSetStreaming                        // 设置直接串流
	CmdPause                               // 暂停
	CmdResume                              // 恢复
	CmdStop                                // 停止 (teardown)
	CmdDestroy                             // 销毁服务器并退出
)

// commandKeywords 按分发优先级排列，先匹配者胜出
var commandKeywords = []struct {
	keyword string
	cmdType CommandType
}{
	{"START", CmdStart},
	{"SET IP", CmdSetIP},
	{"SET CM", CmdSetCM},
	{"SET RESO", CmdSetReso},
	{"SET MULTISINK", CmdSetMultisink},
	{"SET STREAMING", CmdSetStreaming},
	{"PAUSE", CmdPause},
	{"RESUME", CmdResume},
	{"STOP", CmdStop},
	{"DESTROY", CmdDestroy},
}

// CommandTypeMap 将 CommandType 映射到其关键字
var CommandTypeMap = map[CommandType]string{}

func init() {
	for _, k := range commandKeywords {
		CommandTypeMap[k.cmdType] = k.keyword
	}
}

func (commandType CommandType) String() string {
	if s, ok := CommandTypeMap[commandType]; ok {
		return s
	}
	return fmt.Sprintf("CommandType(%d)", byte(commandType))
}

// Command 是一条已解析的控制命令，仅与其类型相关的字段有效
type Command struct {
	Type       CommandType
	IP         string
	Port       string
	Mode       int
	Resolution uint32
	Enabled    bool
	URI        string
}

var (
	ErrEmptyCommand   = errors.New("empty command")
	ErrUnknownCommand = errors.New("unknown command")
	ErrMalformed      = errors.New("malformed command arguments")
)

func Start() Command   { return Command{Type: CmdStart} }
func Pause() Command   { return Command{Type: CmdPause} }
func Resume() Command  { return Command{Type: CmdResume} }
func Stop() Command    { return Command{Type: CmdStop} }
func Destroy() Command { return Command{Type: CmdDestroy} }

func SetIP(ip, port string) Command {
	return Command{Type: CmdSetIP, IP: ip, Port: port}
}

func SetConnectionMode(mode int) Command {
	return Command{Type: CmdSetCM, Mode: mode}
}

func SetResolution(mask uint32) Command {
	return Command{Type: CmdSetReso, Resolution: mask}
}

func SetMultisink(enabled bool) Command {
	return Command{Type: CmdSetMultisink, Enabled: enabled}
}

func SetStreaming(enabled bool, uri string) Command {
	return Command{Type: CmdSetStreaming, Enabled: enabled, URI: uri}
}

func boolArg(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// String 返回命令的线上文本形式（不含 NUL 结束符）
func (c Command) String() string {
	switch c.Type {
	case CmdSetIP:
		return "SET IP " + net.JoinHostPort(c.IP, c.Port)
	case CmdSetCM:
		return "SET CM " + strconv.Itoa(c.Mode)
	case CmdSetReso:
		return "SET RESO " + strconv.FormatUint(uint64(c.Resolution), 10)
	case CmdSetMultisink:
		return "SET MULTISINK " + boolArg(c.Enabled)
	case CmdSetStreaming:
		return "SET STREAMING " + boolArg(c.Enabled) + " " + c.URI
	default:
		return c.Type.String()
	}
}

// ParseCommand 按优先级顺序识别命令关键字并解析其参数
func ParseCommand(msg string) (Command, error) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return Command{}, ErrEmptyCommand
	}
	for _, k := range commandKeywords {
		if !strings.HasPrefix(msg, k.keyword) {
			continue
		}
		args := strings.TrimSpace(msg[len(k.keyword):])
		cmd, err := parseArgs(k.cmdType, args)
		if err != nil {
			return Command{Type: k.cmdType}, fmt.Errorf("%s: %w", k.keyword, err)
		}
		return cmd, nil
	}
	return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, msg)
}

func parseArgs(cmdType CommandType, args string) (Command, error) {
	cmd := Command{Type: cmdType}
	switch cmdType {
	case CmdSetIP:
		host, port, err := net.SplitHostPort(args)
		if err != nil || host == "" || port == "" {
			return cmd, ErrMalformed
		}
		cmd.IP, cmd.Port = host, port
	case CmdSetCM:
		mode, err := strconv.Atoi(args)
		if err != nil {
			return cmd, ErrMalformed
		}
		cmd.Mode = mode
	case CmdSetReso:
		mask, err := strconv.ParseUint(args, 10, 32)
		if err != nil {
			return cmd, ErrMalformed
		}
		cmd.Resolution = uint32(mask)
	case CmdSetMultisink:
		enabled, err := parseBoolArg(args)
		if err != nil {
			return cmd, err
		}
		cmd.Enabled = enabled
	case CmdSetStreaming:
		flag, uri, _ := strings.Cut(args, " ")
		enabled, err := parseBoolArg(flag)
		if err != nil {
			return cmd, err
		}
		cmd.Enabled = enabled
		cmd.URI = strings.TrimSpace(uri)
		if cmd.Enabled && cmd.URI == "" {
			return cmd, ErrMalformed
		}
	}
	return cmd, nil
}

func parseBoolArg(s string) (bool, error) {
	switch s {
	case "0":
		return false, nil
	case "1":
		return true, nil
	}
	return false, ErrMalformed
}
