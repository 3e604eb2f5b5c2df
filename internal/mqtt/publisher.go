package mqtt

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/wfunc/boat-telnet/internal/config"
	"github.com/wfunc/boat-telnet/internal/errors"
	"github.com/wfunc/boat-telnet/internal/settings"
	"go.uber.org/zap"
)

// 连接与订阅的等待上限
const tokenTimeout = 10 * time.Second

// SettingsWriter 接收远程设置命令
type SettingsWriter interface {
	SetFromString(ctx context.Context, id, text, source string) error
}

// client paho客户端中发布器用到的部分
type client interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// Publisher 通过MQTT发布状态并接收设置命令
//
//	<prefix>/STATUS      周期发布状态字符串
//	<prefix>/<ID>        设置项变更后发布新值（retained）
//	<prefix>/set/<ID>    订阅，payload为新值
type Publisher struct {
	cfg    *config.MQTTConfig
	status func() string
	writer SettingsWriter
	logger *zap.Logger

	newClient func(*paho.ClientOptions) client
	client    client
	connected atomic.Bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewPublisher 创建MQTT发布器
func NewPublisher(cfg *config.MQTTConfig, status func() string, writer SettingsWriter, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		cfg:       cfg,
		status:    status,
		writer:    writer,
		logger:    logger,
		newClient: newPahoClient,
		stopCh:    make(chan struct{}),
	}
}

func newPahoClient(opts *paho.ClientOptions) client {
	return paho.NewClient(opts)
}

// Start 连接broker并启动状态发布循环
func (p *Publisher) Start() error {
	opts := paho.NewClientOptions().
		AddBroker(p.cfg.Broker).
		SetClientID(p.cfg.ClientID).
		SetUsername(p.cfg.Username).
		SetPassword(p.cfg.Password).
		SetKeepAlive(p.cfg.KeepAlive).
		SetPingTimeout(p.cfg.PingTimeout).
		SetAutoReconnect(true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = p.newClient(opts)

	token := p.client.Connect()
	if !token.WaitTimeout(tokenTimeout) {
		return errors.New(errors.ErrMQTTConnect, "连接超时: "+p.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return errors.Wrap(err, errors.ErrMQTTConnect, p.cfg.Broker)
	}

	if p.cfg.StatusInterval > 0 {
		p.wg.Add(1)
		go p.statusLoop()
	}

	p.logger.Info("MQTT已启动",
		zap.String("broker", p.cfg.Broker),
		zap.String("prefix", p.cfg.TopicPrefix))
	return nil
}

// Stop 停止发布并断开连接
func (p *Publisher) Stop() {
	select {
	case <-p.stopCh:
		return
	default:
		close(p.stopCh)
	}
	p.wg.Wait()
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
	p.logger.Info("MQTT已停止")
}

// Connected 是否已连接broker
func (p *Publisher) Connected() bool {
	return p.connected.Load()
}

// onConnect 每次连上broker时重新订阅命令主题
func (p *Publisher) onConnect(paho.Client) {
	p.connected.Store(true)

	filter := SetTopicFilter(p.cfg.TopicPrefix)
	token := p.client.Subscribe(filter, p.cfg.QoS, p.handleSet)
	if token.WaitTimeout(tokenTimeout) && token.Error() != nil {
		p.logger.Error("MQTT订阅失败", zap.String("topic", filter), zap.Error(token.Error()))
		return
	}
	p.logger.Info("MQTT已连接", zap.String("subscribe", filter))
	p.PublishStatus()
}

func (p *Publisher) onConnectionLost(_ paho.Client, err error) {
	p.connected.Store(false)
	p.logger.Warn("MQTT连接断开", zap.Error(err))
}

// handleSet 处理 <prefix>/set/<ID> 命令
func (p *Publisher) handleSet(_ paho.Client, msg paho.Message) {
	id, ok := ParseSetTopic(p.cfg.TopicPrefix, msg.Topic())
	if !ok {
		p.logger.Warn("忽略未知主题", zap.String("topic", msg.Topic()))
		return
	}

	value := strings.TrimSpace(string(msg.Payload()))
	if err := p.writer.SetFromString(context.Background(), id, value, settings.SourceMQTT); err != nil {
		p.logger.Warn("MQTT设置命令失败",
			zap.String("id", id),
			zap.String("value", value),
			zap.Error(err))
	}
}

func (p *Publisher) statusLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.PublishStatus()
		}
	}
}

// PublishStatus 发布一次状态字符串
func (p *Publisher) PublishStatus() {
	if p.status == nil {
		return
	}
	p.publish(SettingTopic(p.cfg.TopicPrefix, "STATUS"), false, p.status())
}

// PublishSetting 发布设置项新值，可作为设置监听器
func (p *Publisher) PublishSetting(id, value string) {
	p.publish(SettingTopic(p.cfg.TopicPrefix, id), true, value)
}

// publish 不阻塞调用方，断线期间直接跳过
func (p *Publisher) publish(topic string, retained bool, payload string) {
	if p.client == nil || !p.connected.Load() {
		return
	}
	token := p.client.Publish(topic, p.cfg.QoS, retained, payload)
	go func() {
		if token.WaitTimeout(tokenTimeout) && token.Error() != nil {
			p.logger.Warn("MQTT发布失败", zap.Error(errors.Wrap(token.Error(), errors.ErrMQTTPublish, topic)))
		}
	}()
}

// SettingTopic 设置项发布主题
func SettingTopic(prefix, id string) string {
	return fmt.Sprintf("%s/%s", prefix, id)
}

// SetTopicFilter 命令订阅主题
func SetTopicFilter(prefix string) string {
	return prefix + "/set/+"
}

// ParseSetTopic 从命令主题中解析设置项ID
func ParseSetTopic(prefix, topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, prefix+"/set/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
