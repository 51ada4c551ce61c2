// client.go
package email

import (
	// 标准库导入
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"sort"
	"strings"
	"sync"
	"time"

	// 第三方库导入
	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/jonboulle/clockwork"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	// 项目内部导入
	"FlightScheduleOptimizer/src/storage"
)

/******************** 常量定义 ********************/
const (
	MaxFetchMessages   = 50             // 单次最大获取邮件数量
	FetchBufferSize    = 10             // 邮件获取通道缓冲区大小
	RecentMailDuration = 24 * time.Hour // 只看最近一天的未读邮件
	DefaultMailbox     = "INBOX"
)

var errNotConnected = errors.New("未连接到邮件服务器")

/******************** 接口定义 ********************/

// MailService 邮箱服务
type MailService interface {
	Connect() error
	Disconnect()
	FetchUnreadEmails() ([]*Email, error)
}

/******************** 数据结构 ********************/

// Email 邮件基础数据
type Email struct {
	UID         uint32
	Date        time.Time
	From        string // 已解码
	Subject     string // 已解码
	Attachments []*Attachment
}

// Attachment 邮件附件
type Attachment struct {
	Filename string
	Content  []byte
}

/******************** 邮件客户端实现 ********************/

// EmailClient IMAP邮件客户端
type EmailClient struct {
	Mailbox string          // 搜索的邮箱目录
	Clock   clockwork.Clock // 计算"最近一天"

	server    string // 服务器地址(包含端口)
	username  string
	password  string // 密码/授权码
	client    *client.Client
	mu        sync.Mutex
	connected bool
}

// NewEmailClient 创建邮件客户端, server 形如 "imap.qq.com:993"
func NewEmailClient(server, username, password string) *EmailClient {
	return &EmailClient{
		Mailbox:  DefaultMailbox,
		Clock:    clockwork.NewRealClock(),
		server:   server,
		username: username,
		password: password,
	}
}

// Connect 建立TLS连接并登录, 已有可用连接时直接复用
func (s *EmailClient) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		if _, err := s.client.Capability(); err == nil {
			return nil
		}
		_ = s.client.Logout()
		s.client = nil
		s.connected = false
	}

	c, err := client.DialTLS(s.server, nil)
	if err != nil {
		return fmt.Errorf("连接服务器失败: %w", err)
	}

	if err := c.Login(s.username, s.password); err != nil {
		_ = c.Logout()
		return fmt.Errorf("登录失败: %w", err)
	}

	s.client = c
	s.connected = true
	return nil
}

// Disconnect 断开连接
func (s *EmailClient) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		_ = s.client.Logout()
		s.client = nil
	}
	s.connected = false
}

// FetchUnreadEmails 获取最近一天的未读邮件
func (s *EmailClient) FetchUnreadEmails() ([]*Email, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil, errNotConnected
	}

	if _, err := s.client.Select(s.Mailbox, false); err != nil {
		return nil, fmt.Errorf("选择邮箱 %s 失败: %w", s.Mailbox, err)
	}

	ids, err := s.client.Search(unreadSince(s.Clock.Now()))
	if err != nil {
		return nil, fmt.Errorf("搜索邮件失败: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	// 只取最新的一批
	if len(ids) > MaxFetchMessages {
		ids = ids[len(ids)-MaxFetchMessages:]
	}

	return s.fetchMessages(ids)
}

// unreadSince 最近一天内的未读邮件
func unreadSince(now time.Time) *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	criteria.Since = now.Add(-RecentMailDuration)
	return criteria
}

func (s *EmailClient) fetchMessages(ids []uint32) ([]*Email, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchInternalDate,
		imap.FetchUid,
		section.FetchItem(),
	}

	messages := make(chan *imap.Message, FetchBufferSize)
	done := make(chan error, 1)
	go func() {
		done <- s.client.Fetch(seqset, items, messages)
	}()

	var emails []*Email
	var parseErrs []string
	for msg := range messages {
		email, err := parseEmail(msg, section)
		if err != nil {
			parseErrs = append(parseErrs, err.Error())
			continue
		}
		emails = append(emails, email)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("获取邮件内容失败: %w", err)
	}
	if len(emails) == 0 && len(parseErrs) > 0 {
		return nil, fmt.Errorf("解析邮件失败: %s", strings.Join(parseErrs, "; "))
	}
	return emails, nil
}

/******************** 邮件解析相关 ********************/

func parseEmail(msg *imap.Message, section *imap.BodySectionName) (*Email, error) {
	r := msg.GetBody(section)
	if r == nil {
		return nil, fmt.Errorf("邮件正文为空(UID:%d)", msg.Uid)
	}

	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("创建邮件阅读器失败: %w", err)
	}

	email := &Email{
		UID:     msg.Uid,
		From:    decodeHeader(mr.Header.Get("From")),
		Subject: decodeHeader(mr.Header.Get("Subject")),
	}
	// 日期解析失败时使用服务器内部时间
	if date, err := mr.Header.Date(); err == nil {
		email.Date = date
	} else {
		email.Date = msg.InternalDate
	}

	return email, readAttachments(mr, email)
}

// readAttachments 读取所有附件, 正文部分跳过
func readAttachments(mr *mail.Reader, email *Email) error {
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("读取邮件分段失败: %w", err)
		}

		h, ok := p.Header.(*mail.AttachmentHeader)
		if !ok {
			continue
		}
		filename, err := h.Filename()
		if err != nil || filename == "" {
			continue
		}

		var buf bytes.Buffer
		if _, err := io.Copy(&buf, p.Body); err != nil {
			return fmt.Errorf("读取附件 %s 失败: %w", filename, err)
		}
		email.Attachments = append(email.Attachments, &Attachment{
			Filename: decodeHeader(filename),
			Content:  buf.Bytes(),
		})
	}
}

/******************** 工具函数 ********************/

// decodeHeader 解码 =?charset?encoding?encoded-text?= 格式的邮件头
func decodeHeader(header string) string {
	decoder := mime.WordDecoder{
		CharsetReader: charsetReader,
	}

	decoded, err := decoder.DecodeHeader(header)
	if err != nil {
		return header
	}
	return decoded
}

// charsetReader GBK/GB2312 转 UTF-8, 其他编码原样返回
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "gbk", "gb2312", "gb18030":
		return transform.NewReader(input, simplifiedchinese.GBK.NewDecoder()), nil
	default:
		return input, nil
	}
}

/******************** 业务逻辑函数 ********************/

// CheckAndProcessEmails 拉取未读邮件, 返回主题包含关键词的最新一封, 没有则返回 nil
func CheckAndProcessEmails(mailService MailService, keyword string, logger *storage.Logger) (*Email, error) {
	startTime := time.Now()

	if err := mailService.Connect(); err != nil {
		return nil, fmt.Errorf("连接失败: %w", err)
	}
	defer mailService.Disconnect()

	emails, err := mailService.FetchUnreadEmails()
	if err != nil {
		return nil, fmt.Errorf("获取邮件失败: %w", err)
	}
	if len(emails) == 0 {
		logger.Debug("没有新邮件")
		return nil, nil
	}

	target := filterLatestTargetEmail(emails, keyword)
	if target == nil {
		logger.Debug(fmt.Sprintf("%d 封新邮件中没有目标邮件", len(emails)))
		return nil, nil
	}

	logger.Info(fmt.Sprintf("找到航班数据邮件: %s (UID:%d), 耗时: %v", target.Subject, target.UID, time.Since(startTime)))
	return target, nil
}

// filterLatestTargetEmail 主题包含关键词的邮件中日期最新的一封
func filterLatestTargetEmail(emails []*Email, keyword string) *Email {
	var targetEmails []*Email
	for _, email := range emails {
		if strings.Contains(email.Subject, keyword) {
			targetEmails = append(targetEmails, email)
		}
	}

	if len(targetEmails) == 0 {
		return nil
	}

	sort.SliceStable(targetEmails, func(i, j int) bool {
		return targetEmails[i].Date.After(targetEmails[j].Date)
	})
	return targetEmails[0]
}
