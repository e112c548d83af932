// Package notifier は価格アラートの通知送信を行う。
package notifier

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// Sender は価格アラート通知のインターフェース。
// 送信の成否をboolで返す。通知の失敗はアラートのライフサイクルに
// 影響しないため、エラーではなく成否だけを伝える。
type Sender interface {
	SendPriceAlert(ctx context.Context, email, productName string, price float64, productURL string) bool
}

// SMTPConfig はSMTP接続の設定。
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPSender はSMTP経由で価格アラートメールを送信する。
type SMTPSender struct {
	config SMTPConfig
	logger *slog.Logger
}

// NewSMTPSender はSMTPSenderの新しいインスタンスを生成する。
func NewSMTPSender(config SMTPConfig, logger *slog.Logger) *SMTPSender {
	return &SMTPSender{config: config, logger: logger}
}

// SendPriceAlert は価格アラートメールを送信する。
// 失敗してもエラーは返さず、ログに記録してfalseを返す。
func (s *SMTPSender) SendPriceAlert(ctx context.Context, email, productName string, price float64, productURL string) bool {
	subject := fmt.Sprintf("Price Alert: %s dropped to ₹%.2f!", productName, price)
	msg := buildMessage(s.config.From, email, subject, productName, price, productURL)

	if err := s.send(ctx, email, msg); err != nil {
		s.logger.Error("アラートメールの送信に失敗しました",
			slog.String("email", email),
			slog.String("product_name", productName),
			slog.Float64("price", price),
			slog.String("error", err.Error()),
		)
		return false
	}

	s.logger.Info("アラートメールを送信しました",
		slog.String("email", email),
		slog.String("product_name", productName),
		slog.Float64("price", price),
	)
	return true
}

// buildMessage はmultipart/alternative形式のメール本文を組み立てる。
func buildMessage(from, to, subject, productName string, price float64, productURL string) string {
	text := fmt.Sprintf(
		"Good news! %s is now available for ₹%.2f.\r\n\r\nCheck it out: %s\r\n",
		productName, price, productURL,
	)
	html := fmt.Sprintf(
		`<html><body><h2>Price Drop!</h2><p>Good news! <strong>%s</strong> is now available for <strong>₹%.2f</strong>.</p><p><a href="%s">View product</a></p></body></html>`,
		productName, price, productURL,
	)

	boundary := fmt.Sprintf("boundary_%d", time.Now().UnixNano())

	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: PricePulse <%s>\r\n", from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q\r\n", boundary))
	msg.WriteString("\r\n")

	msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(text)
	msg.WriteString("\r\n")

	msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(html)
	msg.WriteString("\r\n")

	msg.WriteString(fmt.Sprintf("--%s--\r\n", boundary))

	return msg.String()
}

// send はSMTPクライアントでメッセージを送信する。
func (s *SMTPSender) send(ctx context.Context, to, msg string) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	dialer := &net.Dialer{Timeout: s.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("SMTPサーバーへの接続に失敗: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(s.config.Timeout))
	}

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		return fmt.Errorf("SMTPクライアントの作成に失敗: %w", err)
	}
	defer client.Close()

	// STARTTLSをサーバーが提供していれば使用する
	if ok, _ := client.Extension("STARTTLS"); ok {
		tlsConfig := &tls.Config{
			ServerName: s.config.Host,
			MinVersion: tls.VersionTLS12,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("STARTTLSの開始に失敗: %w", err)
		}
	}

	if s.config.Username != "" && s.config.Password != "" {
		auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP認証に失敗: %w", err)
		}
	}

	if err := client.Mail(s.config.From); err != nil {
		return fmt.Errorf("送信元の設定に失敗: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("宛先の設定に失敗: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("メッセージ送信の開始に失敗: %w", err)
	}
	if _, err := writer.Write([]byte(msg)); err != nil {
		return fmt.Errorf("メッセージの書き込みに失敗: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("メッセージの完了に失敗: %w", err)
	}

	// QUITの失敗は送信済みのため無視する
	_ = client.Quit()
	return nil
}

// compile-time interface check
var _ Sender = (*SMTPSender)(nil)
