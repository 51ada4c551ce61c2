// email_handler.go
package email

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"FlightScheduleOptimizer/src/datasource/file"
	"FlightScheduleOptimizer/src/storage"
)

// XLSXAttachmentHandler 把目标邮件里的 xlsx 附件保存为航班数据文件
type XLSXAttachmentHandler struct {
	TargetPath    string          // 数据文件路径
	processedUIDs map[uint32]bool // 已处理邮件UID
	mu            sync.RWMutex
	logger        *storage.Logger
}

func NewXLSXAttachmentHandler(targetPath string, logger *storage.Logger) *XLSXAttachmentHandler {
	return &XLSXAttachmentHandler{
		TargetPath:    targetPath,
		processedUIDs: make(map[uint32]bool),
		logger:        logger,
	}
}

// IsProcessed 邮件是否已处理过
func (h *XLSXAttachmentHandler) IsProcessed(uid uint32) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.processedUIDs[uid]
}

func (h *XLSXAttachmentHandler) markAsProcessed(uid uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.processedUIDs[uid] = true
}

// Handle 保存第一个能解析的 xlsx 附件, 返回是否写入了数据文件
func (h *XLSXAttachmentHandler) Handle(email *Email) (bool, error) {
	if email == nil || h.IsProcessed(email.UID) {
		return false, nil
	}

	for _, attachment := range email.Attachments {
		if !strings.EqualFold(filepath.Ext(attachment.Filename), ".xlsx") {
			continue
		}
		if _, err := file.ReadWorkbookBinary(attachment.Content); err != nil {
			h.logger.Warning(fmt.Sprintf("跳过无法解析的附件 %s: %v", attachment.Filename, err))
			continue
		}

		if err := writeAtomic(h.TargetPath, attachment.Content); err != nil {
			return false, fmt.Errorf("保存附件失败: %w", err)
		}
		h.markAsProcessed(email.UID)
		h.logger.Info(fmt.Sprintf("附件 %s 已保存到: %s", attachment.Filename, h.TargetPath))
		return true, nil
	}

	// 没有可用附件也记为已处理, 避免每次轮询重复下载
	h.markAsProcessed(email.UID)
	h.logger.Warning(fmt.Sprintf("邮件 %s (UID:%d) 没有可用的xlsx附件", email.Subject, email.UID))
	return false, nil
}

// writeAtomic 先写临时文件再改名, 读取方不会看到写了一半的文件
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".incoming-*.xlsx")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Poller 定时任务入口: 拉取目标邮件并落盘
type Poller struct {
	Service MailService
	Handler *XLSXAttachmentHandler
	Subject string
	Logger  *storage.Logger
}

// Poll 执行一次检查, 返回是否更新了数据文件
func (p *Poller) Poll() bool {
	target, err := CheckAndProcessEmails(p.Service, p.Subject, p.Logger)
	if err != nil {
		p.Logger.Error("检查邮箱失败: " + err.Error())
		return false
	}
	saved, err := p.Handler.Handle(target)
	if err != nil {
		p.Logger.Error(fmt.Sprintf("处理邮件失败(UID:%d): %v", target.UID, err))
		return false
	}
	return saved
}
