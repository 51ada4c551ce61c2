package datapush

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
)

// 常量定义
const (
	RETRY_TIMES    = 3
	RETRY_INTERVAL = 2 * time.Second
	MaxContentLen  = 4000 // 机器人文本消息上限内留余量
)

// 钉钉 API 响应结构体
type DingTalkResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

type textMessage struct {
	MsgType string `json:"msgtype"`
	Text    struct {
		Content string `json:"content"`
	} `json:"text"`
}

// RobotPusher 钉钉群机器人推送
type RobotPusher struct {
	webhook    string
	secret     string
	httpClient *http.Client
	clock      clockwork.Clock
	retryTimes int
	interval   time.Duration
}

func NewRobotPusher(webhook, secret string, clock clockwork.Clock) *RobotPusher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RobotPusher{
		webhook:    webhook,
		secret:     secret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		clock:      clock,
		retryTimes: RETRY_TIMES,
		interval:   RETRY_INTERVAL,
	}
}

// Enabled 是否配置了推送地址
func (p *RobotPusher) Enabled() bool {
	return p != nil && p.webhook != ""
}

// SendText 推送文本消息, 失败按间隔重试
func (p *RobotPusher) SendText(ctx context.Context, content string) error {
	if !p.Enabled() {
		return fmt.Errorf("钉钉推送地址未配置")
	}
	if r := []rune(content); len(r) > MaxContentLen {
		content = string(r[:MaxContentLen])
	}

	msg := textMessage{MsgType: "text"}
	msg.Text.Content = content
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	return retry(ctx, p.clock, func() error {
		return p.post(ctx, payload)
	}, p.retryTimes, p.interval)
}

func (p *RobotPusher) post(ctx context.Context, payload []byte) error {
	target, err := p.signedURL()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("推送失败: status %d: %s", resp.StatusCode, respBody)
	}

	var result DingTalkResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	if result.ErrCode != 0 {
		return fmt.Errorf("推送失败: %s", result.ErrMsg)
	}
	return nil
}

// signedURL 配置了加签密钥时附加 timestamp 和 sign 参数
func (p *RobotPusher) signedURL() (string, error) {
	if p.secret == "" {
		return p.webhook, nil
	}
	u, err := url.Parse(p.webhook)
	if err != nil {
		return "", fmt.Errorf("推送地址无效: %w", err)
	}

	ts := strconv.FormatInt(p.clock.Now().UnixMilli(), 10)
	q := u.Query()
	q.Set("timestamp", ts)
	q.Set("sign", sign(ts, p.secret))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func sign(timestamp, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "\n" + secret))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// 重试函数
func retry(ctx context.Context, clock clockwork.Clock, fn func() error, times int, interval time.Duration) error {
	var err error
	for i := 0; i < times; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < times-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-clock.After(interval):
			}
		}
	}
	return fmt.Errorf("重试 %d 次后失败: %w", times, err)
}
