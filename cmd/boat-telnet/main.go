package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/wfunc/boat-telnet/internal/api"
	"github.com/wfunc/boat-telnet/internal/bridge"
	"github.com/wfunc/boat-telnet/internal/config"
	"github.com/wfunc/boat-telnet/internal/database"
	"github.com/wfunc/boat-telnet/internal/errors"
	"github.com/wfunc/boat-telnet/internal/hardware"
	"github.com/wfunc/boat-telnet/internal/logger"
	"github.com/wfunc/boat-telnet/internal/mqtt"
	"github.com/wfunc/boat-telnet/internal/network"
	"github.com/wfunc/boat-telnet/internal/repository"
	"github.com/wfunc/boat-telnet/internal/settings"
	"github.com/wfunc/boat-telnet/internal/utils"
	ws "github.com/wfunc/boat-telnet/internal/websocket"
	"go.uber.org/zap"
)

// 版本信息
var (
	Version   = bridge.DeviceVersion
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 进程内的全部组件
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	settings  *settings.Host
	source    bridge.Source
	port      *hardware.PortSource
	core      *bridge.Core
	acceptor  *network.Acceptor
	hub       *ws.Hub
	http      *http.Server
	publisher *mqtt.Publisher

	shutdownCh chan struct{}
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

func main() {
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
		showHelp    = flag.Bool("help", false, "显示帮助信息")
	)

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Get()

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Cleanup()

	printStartInfo(cfg)

	server := NewServer(cfg)

	if err := server.Start(); err != nil {
		logger.Fatal("服务启动失败",
			zap.Error(err),
			zap.Bool("critical", errors.IsCritical(err)),
		)
	}

	server.WaitForShutdown()

	if err := server.Shutdown(); err != nil {
		logger.Error("服务关闭失败", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("服务已安全关闭")
}

// NewServer 创建服务实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:        cfg,
		logger:     logger.GetLogger(),
		shutdownCh: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start 启动服务
func (s *Server) Start() error {
	s.logger.Info("正在启动串口转发服务...",
		zap.String("device", s.cfg.Device.Name),
		zap.String("version", Version),
	)

	if err := s.initComponents(); err != nil {
		return errors.Wrap(err, errors.ErrUnknown, "初始化组件失败")
	}

	if err := s.startServices(); err != nil {
		return errors.Wrap(err, errors.ErrUnknown, "启动服务失败")
	}

	config.Watch(func(newCfg *config.Config) {
		s.logger.Info("配置已更新，正在重新加载...")
		s.reloadConfig(newCfg)
	})

	s.logger.Info("服务启动成功",
		zap.String("telnet", s.acceptor.Addr().String()),
		zap.Bool("http", s.http != nil),
		zap.Bool("mqtt", s.publisher != nil),
	)
	return nil
}

// initComponents 初始化组件
func (s *Server) initComponents() error {
	s.logger.Info("初始化组件...")

	if err := s.initDatabase(); err != nil {
		return err
	}

	repo := repository.NewSettingRepository(database.GetDB())
	s.settings = settings.NewHost(repo, logger.WithModule("settings"))

	s.initSource()

	s.core = bridge.New(s.source, network.NewUDPOpener(&s.cfg.UDP), bridge.Options{
		RingSize:      s.cfg.Bridge.RingSize,
		ReadChunk:     s.cfg.Bridge.ReadChunk,
		MaxSessions:   s.cfg.Telnet.MaxSessions,
		SendQueue:     s.cfg.Telnet.SendQueue,
		WriteTimeout:  s.cfg.Telnet.WriteTimeout,
		RejectMessage: s.cfg.Telnet.RejectMessage,
		MaxDatagram:   s.cfg.UDP.MaxDatagram,
		UDPDefault:    s.cfg.UDP.Enabled,
	}, logger.WithModule("bridge"))
	if err := s.core.Setup(s.settings); err != nil {
		return errors.Wrap(err, errors.ErrDatabaseUpdate, "注册设置项失败")
	}

	addr := net.JoinHostPort(s.cfg.Telnet.Host, strconv.Itoa(s.cfg.Telnet.Port))
	s.acceptor = network.NewAcceptor(addr, s.accept, logger.WithModule("telnet"))
	if err := s.acceptor.Listen(); err != nil {
		return err
	}

	if s.cfg.HTTP.Enabled {
		if err := s.initHTTP(); err != nil {
			return err
		}
	}

	if s.cfg.MQTT.Enabled {
		s.publisher = mqtt.NewPublisher(&s.cfg.MQTT, s.core.StatusString, s.settings, logger.WithModule("mqtt"))
	}

	s.settings.Subscribe(s.onSettingChanged)

	s.logger.Info("所有组件初始化完成")
	return nil
}

// initDatabase 初始化数据库
func (s *Server) initDatabase() error {
	s.logger.Info("初始化数据库...")

	if err := database.Init(&s.cfg.Database); err != nil {
		return errors.Wrap(err, errors.ErrDatabaseConnect, "初始化数据库连接失败")
	}

	if s.cfg.Database.AutoMigrate {
		s.logger.Info("执行数据库自动迁移...")
		if err := database.AutoMigrate(); err != nil {
			return errors.Wrap(err, errors.ErrDatabaseUpdate, "数据库迁移失败")
		}
	}

	if !database.IsConnected() {
		return errors.New(errors.ErrDatabaseConnect, "数据库连接检查失败")
	}

	s.logger.Info("数据库初始化完成")
	return nil
}

// initSource 选择串口数据源
func (s *Server) initSource() {
	serialCfg := &s.cfg.Serial
	switch {
	case !serialCfg.Enabled:
		s.logger.Warn("串口未启用，只提供网络服务")
		s.source = idleSource{}
	case serialCfg.MockMode:
		s.logger.Info("串口调试模式，使用模拟NMEA数据", zap.Duration("interval", serialCfg.MockInterval))
		s.source = hardware.NewMockSource(serialCfg.MockInterval)
	default:
		if !hardware.SerialPortExists(serialCfg.Port) {
			s.logger.Warn("串口设备暂不存在，将持续重连", zap.String("port", serialCfg.Port))
		}
		s.port = hardware.NewPortSource(hardware.NewOpener(serialCfg), hardware.PortSourceOptions{
			Name:                 serialCfg.Port,
			FIFOSize:             serialCfg.FIFOSize,
			ReconnectInterval:    serialCfg.ReconnectInterval,
			MaxReconnectInterval: serialCfg.MaxReconnectInterval,
		}, logger.WithModule("serial"))
		s.source = s.port
	}
}

// initHTTP 初始化设置页面接口
func (s *Server) initHTTP() error {
	secret := s.cfg.Security.JWT.Secret
	if secret == "" {
		generated, err := utils.GenerateSecret(32)
		if err != nil {
			return err
		}
		secret = generated
		s.logger.Warn("未配置JWT密钥，使用随机密钥（重启后令牌失效）")
	}
	jwtManager := utils.NewJWTManager(secret, time.Duration(s.cfg.Security.JWT.ExpireHours)*time.Hour)

	core := s.core
	s.hub = ws.NewHub(func() interface{} { return api.StatusSnapshot(core) },
		s.cfg.HTTP.StatusPushPeriod, logger.WithModule("websocket"))

	router := api.NewRouter(api.Options{
		Device:       s.cfg.Device,
		Mode:         s.cfg.HTTP.Mode,
		Core:         s.core,
		Settings:     s.settings,
		Hub:          s.hub,
		JWT:          jwtManager,
		PasswordHash: s.cfg.Security.AdminPasswordHash,
		DB:           database.GetDB(),
		Logger:       logger.WithModule("http"),
	})

	s.http = &http.Server{
		Addr:         net.JoinHostPort(s.cfg.HTTP.Host, strconv.Itoa(s.cfg.HTTP.Port)),
		Handler:      router.Handler(),
		ReadTimeout:  s.cfg.HTTP.ReadTimeout,
		WriteTimeout: s.cfg.HTTP.WriteTimeout,
	}
	if s.cfg.Security.AdminPasswordHash == "" {
		s.logger.Warn("未配置管理员密码，设置接口不需要认证")
	}
	return nil
}

// startServices 启动服务
func (s *Server) startServices() error {
	s.logger.Info("启动服务...")

	if s.port != nil {
		s.port.Start()
	}

	if err := s.acceptor.Start(s.ctx); err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer recoverPanic()
		s.core.Run(s.ctx, s.cfg.Bridge.TickInterval)
		s.logger.Info("转发核心已停止", zap.Uint64("ticks", s.core.Ticks()))
	}()

	if s.http != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.hub.Run(s.ctx)
		}()

		go func() {
			s.logger.Info("HTTP服务已启动", zap.String("addr", s.http.Addr))
			if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.logger.Error("HTTP服务异常退出", zap.Error(err))
			}
		}()
	}

	// MQTT连接失败不影响转发
	if s.publisher != nil {
		if err := s.publisher.Start(); err != nil {
			if !errors.IsRetryable(err) {
				return err
			}
			s.logger.Warn("MQTT连接失败，转发继续运行", zap.Error(err))
		}
	}

	s.logger.Info("所有服务启动完成")
	return nil
}

// accept Telnet新连接交给转发核心，在下一个tick接入
func (s *Server) accept(conn net.Conn) {
	logger.LogSessionEvent("accepted", conn.RemoteAddr().String())
	s.core.Accept(conn)
}

// onSettingChanged 设置变化推送给WebSocket和MQTT
func (s *Server) onSettingChanged(id, value string) {
	if s.hub != nil {
		s.hub.PublishSetting(id, value)
	}
	if s.publisher != nil {
		s.publisher.PublishSetting(id, value)
	}
}

// WaitForShutdown 等待关闭信号
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)

	signal.Notify(sigCh,
		syscall.SIGINT,  // Ctrl+C
		syscall.SIGTERM, // kill命令
	)

	sig := <-sigCh
	s.logger.Info("收到退出信号", zap.String("signal", sig.String()))

	close(s.shutdownCh)
}

// Shutdown 优雅关闭服务
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭服务...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// 先停HTTP，避免关闭过程中再修改设置
	if s.http != nil {
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("HTTP服务关闭失败", zap.Error(err))
		}
	}

	// 取消主上下文：停止接受连接，转发核心退出并关闭全部会话
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		s.acceptor.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("所有服务已正常关闭")
	case <-shutdownCtx.Done():
		s.logger.Warn("关闭超时，强制退出")
		return errors.New(errors.ErrTimeout, "关闭超时")
	}

	return s.closeComponents()
}

// closeComponents 关闭组件
func (s *Server) closeComponents() error {
	s.logger.Info("关闭组件...")

	if s.publisher != nil {
		s.publisher.Stop()
	}

	if s.port != nil {
		s.port.Stop()
	}

	if err := database.Close(); err != nil {
		s.logger.Error("关闭数据库失败", zap.Error(err))
	}

	s.logger.Info("所有组件已关闭")
	return nil
}

// reloadConfig 重新加载配置。端口等参数需要重启才生效，这里只应用日志级别。
func (s *Server) reloadConfig(newCfg *config.Config) {
	logger.Debug("新配置", zap.String("file", config.ConfigFile()), zap.Any("log", newCfg.Log))
	if newCfg.Log.Level != logger.Level() {
		logger.SetLevel(newCfg.Log.Level)
		s.logger.Info("日志级别已更新", zap.String("level", newCfg.Log.Level))
	}
	s.logger.Info("配置重新加载完成")
}

// recoverPanic 记录转发协程的panic后退出进程
func recoverPanic() {
	if r := recover(); r != nil {
		logger.LogPanic(r, debug.Stack())
		logger.Cleanup()
		os.Exit(2)
	}
}

// idleSource 串口未启用时的空数据源
type idleSource struct{}

func (idleSource) TryRead([]byte) (int, error) { return 0, nil }

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("船载NMEA串口转发服务 (%s)\n", bridge.DeviceName)
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("船载NMEA串口转发服务")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  boat-telnet [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("环境变量:")
	fmt.Println("  BOAT_TELNET_SERIAL_PORT      串口设备路径")
	fmt.Println("  BOAT_TELNET_TELNET_PORT      Telnet监听端口")
	fmt.Println("  BOAT_TELNET_UDP_ENABLED      首次启动时UDP广播默认值")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  boat-telnet -config=/etc/boat-telnet/config.yaml")
	fmt.Println("  boat-telnet -version")
}

// printStartInfo 打印启动信息
func printStartInfo(cfg *config.Config) {
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Printf("  %s %s  NMEA串口 -> Telnet/UDP\n", cfg.Device.Name, cfg.Device.Version)
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Printf("版本: %s | 串口: %s | Telnet: %d | PID: %d\n",
		Version, cfg.Serial.Port, cfg.Telnet.Port, os.Getpid())
	fmt.Printf("配置文件: %s\n", config.ConfigFile())
	fmt.Println("═══════════════════════════════════════════════════════════════")
}
