package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

type ServerConfig struct {
	SocketPath        string `json:"socket_path"`
	SocketMode        uint32 `json:"socket_mode"`
	SocketGroup       string `json:"socket_group"`
	ServerName        string `json:"server_name"`
	BindRetries       int    `json:"bind_retries"`
	BindRetryInterval string `json:"bind_retry_interval"`
}

// MediaConfig carries the media factory settings handed to the RTSP/WFD server on START.
type MediaConfig struct {
	VideoSrcElement         int    `json:"videosrc_element"`
	VideoEncoder            string `json:"video_encoder"`
	SessionMode             int    `json:"session_mode"`
	MTUSize                 int    `json:"mtu_size"`
	AudioDevice             string `json:"audio_device"`
	AudioDeviceProperty     string `json:"audio_device_property"`
	AudioEncoderAAC         string `json:"audio_encoder_aac"`
	AudioEncoderAC3         string `json:"audio_encoder_ac3"`
	AudioCodec              uint32 `json:"audio_codec"`
	AudioLatencyTime        int    `json:"audio_latency_time"`
	AudioBufferTime         int    `json:"audio_buffer_time"`
	AudioDoTimestamp        int    `json:"audio_do_timestamp"`
	VideoResolutionSupport  uint64 `json:"video_reso_supported"`
	VideoNativeResolution   int    `json:"video_native_resolution"`
	HDCPEnabled             int    `json:"hdcp_enabled"`
	DumpTS                  int    `json:"dump_ts"`
	MountPoint              string `json:"mount_point"`
	IngestAddress           string `json:"ingest_address"`
	StreamPortMin           int    `json:"stream_port_min"`
	StreamPortMax           int    `json:"stream_port_max"`
	ReadTimeout             string `json:"read_timeout"`
}

type DatabaseConfig struct {
	Enabled            bool   `json:"enabled"`
	Host               string `json:"host"`
	Port               uint64 `json:"port"`
	Username           string `json:"username"`
	Password           string `json:"password"`
	Database           string `json:"database"`
	UseTLS             bool   `json:"use_tls"`
	ConnectTimeout     string `json:"connect_timeout"`
	SocketTimeout      string `json:"socket_timeout"`
	ConnectIdleTimeout string `json:"connect_idle_timeout"`
	OperationTimeout   string `json:"operation_timeout"`
	Heartbeat          string `json:"heartbeat"`
	MinPoolSize        uint64 `json:"min_pool_size"`
	MaxPoolSize        uint64 `json:"max_pool_size"`
}

type Config struct {
	Server    ServerConfig   `json:"server"`
	Media     MediaConfig    `json:"media"`
	Database  DatabaseConfig `json:"database"`
	DebugMode bool           `json:"debug_mode"`
	AppName   string         `json:"app_name"`
	LogDir    string         `json:"log_dir"`
}

const (
	DefaultSocketPath = "/tmp/.miracast_ipc_rtspserver"
	DefaultServerName = "scmirroring"
	DefaultMountPoint = "/wfd1.0/streamid=0"
)

// Default holds the built-in miracast media settings.
func Default() Config {
	return Config{
		Server: ServerConfig{
			SocketPath:        DefaultSocketPath,
			SocketMode:        0o666,
			ServerName:        DefaultServerName,
			BindRetries:       20,
			BindRetryInterval: "250ms",
		},
		Media: MediaConfig{
			VideoSrcElement:        0,
			VideoEncoder:           "omxh264enc",
			SessionMode:            0,
			MTUSize:                1400,
			AudioDevice:            "alsa_output.0.analog-stereo.monitor",
			AudioDeviceProperty:    "props,media.role=loopback-mirroring",
			AudioEncoderAAC:        "avenc_aac",
			AudioEncoderAC3:        "avenc_ac3",
			AudioCodec:             2,
			AudioLatencyTime:       10000,
			AudioBufferTime:        200000,
			AudioDoTimestamp:       0,
			VideoResolutionSupport: 0x00000001,
			VideoNativeResolution:  0,
			HDCPEnabled:            1,
			DumpTS:                 0,
			MountPoint:             DefaultMountPoint,
			IngestAddress:          "127.0.0.1:19100",
			StreamPortMin:          19000,
			StreamPortMax:          19001,
			ReadTimeout:            "10s",
		},
		Database: DatabaseConfig{
			Enabled:            false,
			Host:               "127.0.0.1",
			Port:               27017,
			Database:           "scmirroring",
			ConnectTimeout:     "10s",
			SocketTimeout:      "30s",
			ConnectIdleTimeout: "5m",
			OperationTimeout:   "5s",
			Heartbeat:          "10s",
			MinPoolSize:        1,
			MaxPoolSize:        4,
		},
		DebugMode: false,
		AppName:   "miracast-server",
		LogDir:    "logs",
	}
}

var (
	mu          sync.Mutex
	config      = Default()
	initialized = false
	configPath  = "config.json"
)

func SetConfigPath(path string) {
	mu.Lock()
	defer mu.Unlock()
	configPath = path
	initialized = false
}

// ReadConfig loads the configuration file. A missing file is created with the
// default values and those defaults are returned.
func ReadConfig() (Config, error) {
	mu.Lock()
	defer mu.Unlock()
	return readLocked()
}

func readLocked() (Config, error) {
	bytes, err := os.ReadFile(configPath)

	if errors.Is(err, os.ErrNotExist) {
		config = Default()
		data, _ := json.MarshalIndent(config, "", "\t")
		if writeErr := os.WriteFile(configPath, data, 0644); writeErr != nil {
			return config, fmt.Errorf("the configuration file does not exist and could not be created: %w", writeErr)
		}
		initialized = true
		return config, nil
	}
	if err != nil {
		return config, fmt.Errorf("unable to read configuration file %s: %w", configPath, err)
	}

	loaded := Default()
	if err := json.Unmarshal(bytes, &loaded); err != nil {
		return config, errors.New("the configuration file does not contain valid JSON")
	}
	if err := loaded.Validate(); err != nil {
		return config, err
	}

	config = loaded
	initialized = true
	return config, nil
}

func GetConfig() (Config, error) {
	mu.Lock()
	defer mu.Unlock()
	if initialized {
		return config, nil
	}
	return readLocked()
}

func (c Config) Validate() error {
	if c.Server.SocketPath == "" {
		return errors.New("server.socket_path must not be empty")
	}
	if c.Server.ServerName == "" {
		return errors.New("server.server_name must not be empty")
	}
	if c.Media.MTUSize <= 0 {
		return fmt.Errorf("media.mtu_size must be positive, got %d", c.Media.MTUSize)
	}
	return c.Media.validateStreamPorts()
}

// validateStreamPorts accepts either no fixed ports (0/0) or one RTP/RTCP pair:
// an even RTP port with RTCP on the next port.
func (m MediaConfig) validateStreamPorts() error {
	if m.StreamPortMin == 0 && m.StreamPortMax == 0 {
		return nil
	}
	if m.StreamPortMin <= 0 || m.StreamPortMax > 65535 {
		return fmt.Errorf("media.stream_port_min %d / media.stream_port_max %d out of range", m.StreamPortMin, m.StreamPortMax)
	}
	if m.StreamPortMin%2 != 0 {
		return fmt.Errorf("media.stream_port_min %d must be even", m.StreamPortMin)
	}
	if m.StreamPortMax != m.StreamPortMin+1 {
		return fmt.Errorf("media.stream_port_max must be media.stream_port_min+1 (%d), got %d", m.StreamPortMin+1, m.StreamPortMax)
	}
	return nil
}
