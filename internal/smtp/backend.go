// Package smtp 实现只接收邮件的 SMTP 服务端。
package smtp

import (
	"io"
	"strings"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"tempbox/backend/internal/storage"
)

// Backend 实现 go-smtp 的 Backend 接口。
//
// 这是一个只接收邮件的 SMTP 服务器：严格验证收件人地址必须
// 存在于系统中，外部地址一律返回 550 拒绝，不提供邮件中继。
// 本服务只关心邮箱的存在性校验，邮件正文在计数后丢弃。
type Backend struct {
	store          storage.Store
	allowedDomains map[string]bool
	log            *zap.Logger
}

// NewBackend 创建 SMTP Backend。
func NewBackend(store storage.Store, allowedDomains []string, log *zap.Logger) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	domains := make(map[string]bool, len(allowedDomains))
	for _, d := range allowedDomains {
		domains[strings.ToLower(d)] = true
	}
	return &Backend{
		store:          store,
		allowedDomains: domains,
		log:            log,
	}
}

// NewSession 创建新的 SMTP 会话。
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	return &session{backend: b}, nil
}

// NewServer 基于 Backend 构造 go-smtp 服务器。
func NewServer(backend *Backend, addr, domain string) *gosmtp.Server {
	server := gosmtp.NewServer(backend)
	server.Addr = addr
	server.Domain = domain
	server.ReadTimeout = 30 * time.Second
	server.WriteTimeout = 30 * time.Second
	server.MaxMessageBytes = 10 * 1024 * 1024
	server.MaxRecipients = 10
	server.AllowInsecureAuth = true
	return server
}

type session struct {
	backend     *Backend
	fromAddress string
	recipients  []string
}

// Mail 处理 MAIL 命令。
func (s *session) Mail(from string, opts *gosmtp.MailOptions) error {
	s.fromAddress = from
	return nil
}

// Rcpt 处理 RCPT 命令。
//
// 防中继的核心：域名必须在允许列表内，且邮箱必须已存在且未过期。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	addr := normalizeAddress(to)

	parts := strings.Split(addr, "@")
	if len(parts) != 2 {
		return &gosmtp.SMTPError{
			Code:         501,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
			Message:      "Invalid recipient address",
		}
	}

	if !s.backend.allowedDomains[parts[1]] {
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
			Message:      "Relay not permitted",
		}
	}

	mailbox, err := s.backend.store.GetMailboxByAddress(addr)
	if err != nil {
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
			Message:      "Mailbox not found",
		}
	}

	if mailbox.ExpiresAt != nil && mailbox.ExpiresAt.Before(time.Now().UTC()) {
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 6},
			Message:      "Mailbox expired",
		}
	}

	s.recipients = append(s.recipients, addr)
	return nil
}

// Data 处理 DATA 命令：排空正文并记录投递日志。
func (s *session) Data(r io.Reader) error {
	size, err := io.Copy(io.Discard, r)
	if err != nil {
		return err
	}

	s.backend.log.Info("message accepted",
		zap.String("from", s.fromAddress),
		zap.Strings("recipients", s.recipients),
		zap.Int64("size", size),
	)
	return nil
}

// Reset 重置会话状态。
func (s *session) Reset() {
	s.fromAddress = ""
	s.recipients = nil
}

// Logout 结束会话。
func (s *session) Logout() error {
	return nil
}

// normalizeAddress 规范化邮箱地址：去空白、去尖括号、转小写
func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.Trim(addr, "<>")
	return strings.ToLower(addr)
}
