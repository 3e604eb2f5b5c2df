package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Device   DeviceConfig   `mapstructure:"device"`
	Server   ServerConfig   `mapstructure:"server"`
	Serial   SerialConfig   `mapstructure:"serial"`
	Telnet   TelnetConfig   `mapstructure:"telnet"`
	UDP      UDPConfig      `mapstructure:"udp"`
	Bridge   BridgeConfig   `mapstructure:"bridge"`
	Database DatabaseConfig `mapstructure:"database"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Security SecurityConfig `mapstructure:"security"`
	Log      LogConfig      `mapstructure:"log"`
}

// DeviceConfig 设备标识
type DeviceConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	URL     string `mapstructure:"url"`
}

// ServerConfig 进程级配置
type ServerConfig struct {
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SerialConfig 串口配置
type SerialConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	MockMode             bool          `mapstructure:"mock_mode"` // 调试模式（回放模拟NMEA语句）
	MockInterval         time.Duration `mapstructure:"mock_interval"`
	Port                 string        `mapstructure:"port"`
	BaudRate             int           `mapstructure:"baud_rate"`
	DataBits             int           `mapstructure:"data_bits"`
	StopBits             int           `mapstructure:"stop_bits"`
	Parity               string        `mapstructure:"parity"`
	ReadTimeout          time.Duration `mapstructure:"read_timeout"`
	FIFOSize             int           `mapstructure:"fifo_size"`
	ReconnectInterval    time.Duration `mapstructure:"reconnect_interval"`
	MaxReconnectInterval time.Duration `mapstructure:"max_reconnect_interval"`
}

// TelnetConfig Telnet会话配置
type TelnetConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	MaxSessions   int           `mapstructure:"max_sessions"`
	SendQueue     int           `mapstructure:"send_queue"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	RejectMessage string        `mapstructure:"reject_message"`
}

// UDPConfig UDP广播配置
type UDPConfig struct {
	Enabled       bool   `mapstructure:"enabled"` // 首次启动时的默认值，之后以持久化设置为准
	LocalAddr     string `mapstructure:"local_addr"`
	BroadcastAddr string `mapstructure:"broadcast_addr"`
	Port          int    `mapstructure:"port"`
	MaxDatagram   int    `mapstructure:"max_datagram"`
}

// BridgeConfig 转发核心配置
type BridgeConfig struct {
	RingSize     int           `mapstructure:"ring_size"`
	TickInterval time.Duration `mapstructure:"tick_interval"`
	ReadChunk    int           `mapstructure:"read_chunk"`
}

// DatabaseConfig 数据库配置（设置持久化）
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// HTTPConfig 设置页面/API配置
type HTTPConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	Mode             string        `mapstructure:"mode"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	StatusPushPeriod time.Duration `mapstructure:"status_push_period"`
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Broker         string        `mapstructure:"broker"`
	ClientID       string        `mapstructure:"client_id"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	TopicPrefix    string        `mapstructure:"topic_prefix"`
	QoS            byte          `mapstructure:"qos"`
	KeepAlive      time.Duration `mapstructure:"keep_alive"`
	PingTimeout    time.Duration `mapstructure:"ping_timeout"`
	StatusInterval time.Duration `mapstructure:"status_interval"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	AdminPasswordHash string    `mapstructure:"admin_password_hash"` // 为空时不启用认证
	JWT               JWTConfig `mapstructure:"jwt"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		v = viper.New()

		if configPath != "" {
			v.SetConfigFile(configPath)
		} else {
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			v.AddConfigPath("./config")
			v.AddConfigPath(".")
		}

		v.SetEnvPrefix("BOAT_TELNET")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		setDefaults(v)

		if err = v.ReadInConfig(); err != nil {
			// 如果配置文件不存在，使用默认配置
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return
			}
			err = nil
		}

		loaded := &Config{}
		if err = v.Unmarshal(loaded); err != nil {
			return
		}
		if err = loaded.Validate(); err != nil {
			return
		}

		mu.Lock()
		cfg = loaded
		mu.Unlock()
	})

	return err
}

// Load 从指定viper实例解析配置，不影响全局单例
func Load(vp *viper.Viper) (*Config, error) {
	setDefaults(vp)
	loaded := &Config{}
	if err := vp.Unmarshal(loaded); err != nil {
		return nil, err
	}
	if err := loaded.Validate(); err != nil {
		return nil, err
	}
	return loaded, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	v.SetDefault("device.name", "esp32_telnet")
	v.SetDefault("device.version", "et1.0")
	v.SetDefault("device.url", "")

	v.SetDefault("server.shutdown_timeout", "10s")

	// 串口默认配置
	v.SetDefault("serial.enabled", true)
	v.SetDefault("serial.mock_mode", false)
	v.SetDefault("serial.mock_interval", "1s")
	v.SetDefault("serial.port", "/dev/ttyS2")
	v.SetDefault("serial.baud_rate", 4800)
	v.SetDefault("serial.data_bits", 8)
	v.SetDefault("serial.stop_bits", 1)
	v.SetDefault("serial.parity", "N")
	v.SetDefault("serial.read_timeout", "100ms")
	v.SetDefault("serial.fifo_size", 4096)
	v.SetDefault("serial.reconnect_interval", "5s")
	v.SetDefault("serial.max_reconnect_interval", "30s")

	// Telnet默认配置
	v.SetDefault("telnet.host", "0.0.0.0")
	v.SetDefault("telnet.port", 23)
	v.SetDefault("telnet.max_sessions", 4)
	v.SetDefault("telnet.send_queue", 64)
	v.SetDefault("telnet.write_timeout", "5s")
	v.SetDefault("telnet.reject_message", "too many connections\r\n")

	// UDP默认配置
	v.SetDefault("udp.enabled", false)
	v.SetDefault("udp.local_addr", ":0")
	v.SetDefault("udp.broadcast_addr", "255.255.255.255")
	v.SetDefault("udp.port", 10110)
	v.SetDefault("udp.max_datagram", 1472)

	// 转发核心默认配置
	v.SetDefault("bridge.ring_size", 4096)
	v.SetDefault("bridge.tick_interval", "10ms")
	v.SetDefault("bridge.read_chunk", 256)

	// 数据库默认配置
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/settings.db")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	// HTTP默认配置
	v.SetDefault("http.enabled", true)
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.mode", "release")
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "10s")
	v.SetDefault("http.status_push_period", "1s")

	// MQTT默认配置
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://127.0.0.1:1883")
	v.SetDefault("mqtt.client_id", "esp32_telnet")
	v.SetDefault("mqtt.topic_prefix", "esp32_telnet")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.keep_alive", "60s")
	v.SetDefault("mqtt.ping_timeout", "30s")
	v.SetDefault("mqtt.status_interval", "10s")

	v.SetDefault("security.jwt.expire_hours", 24)

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "boat-telnet.log")
	v.SetDefault("log.file.max_size", 10)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.compress", true)
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch {
	case c.Bridge.RingSize <= 0:
		return fmt.Errorf("bridge.ring_size 必须大于0: %d", c.Bridge.RingSize)
	case c.Bridge.TickInterval <= 0:
		return fmt.Errorf("bridge.tick_interval 必须大于0: %v", c.Bridge.TickInterval)
	case c.Bridge.ReadChunk <= 0:
		return fmt.Errorf("bridge.read_chunk 必须大于0: %d", c.Bridge.ReadChunk)
	case c.Telnet.MaxSessions <= 0:
		return fmt.Errorf("telnet.max_sessions 必须大于0: %d", c.Telnet.MaxSessions)
	case c.Telnet.SendQueue <= 0:
		return fmt.Errorf("telnet.send_queue 必须大于0: %d", c.Telnet.SendQueue)
	case c.UDP.MaxDatagram <= 0 || c.UDP.MaxDatagram > 65507:
		return fmt.Errorf("udp.max_datagram 超出范围: %d", c.UDP.MaxDatagram)
	case c.Serial.Enabled && !c.Serial.MockMode && c.Serial.BaudRate <= 0:
		return fmt.Errorf("serial.baud_rate 必须大于0: %d", c.Serial.BaudRate)
	}
	return nil
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	if v == nil {
		return
	}
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}
		if err := newCfg.Validate(); err != nil {
			fmt.Printf("配置重载校验失败: %v\n", err)
			return
		}

		mu.Lock()
		cfg = newCfg
		mu.Unlock()

		if callback != nil {
			callback(newCfg)
		}

		fmt.Printf("配置已重新加载: %s\n", e.Name)
	})
}

// GetString 获取字符串配置
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// ConfigFile 当前使用的配置文件
func ConfigFile() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}
