// Package mailer delivers reorder notifications.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/cafestock/pkg/inventory"
)

var (
	errMissingHost   = errors.New("mailer: smtp host is required")
	errMissingSender = errors.New("mailer: sender address is required")
)

// SMTPConfig configures the SMTP notifier.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type sendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier sends the shopping list as a plain-text email.
type SMTPNotifier struct {
	config SMTPConfig
	send   sendFunc
}

// NewSMTPNotifier validates the configuration and returns a notifier.
func NewSMTPNotifier(config SMTPConfig) (*SMTPNotifier, error) {
	if strings.TrimSpace(config.Host) == "" {
		return nil, errMissingHost
	}
	if strings.TrimSpace(config.From) == "" {
		return nil, errMissingSender
	}
	if config.Port == 0 {
		config.Port = 587
	}
	return &SMTPNotifier{config: config, send: smtp.SendMail}, nil
}

// SendReorder delivers one message to every recipient.
func (notifier *SMTPNotifier) SendReorder(ctx context.Context, message inventory.ReorderMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if notifier.config.Username != "" {
		auth = smtp.PlainAuth("", notifier.config.Username, notifier.config.Password, notifier.config.Host)
	}
	address := net.JoinHostPort(notifier.config.Host, strconv.Itoa(notifier.config.Port))
	body := RenderMessage(notifier.config.From, message)
	if err := notifier.send(address, auth, notifier.config.From, message.Recipients, body); err != nil {
		return fmt.Errorf("mailer: send %s: %w", message.RequestID, err)
	}
	return nil
}

// RenderMessage builds the RFC 5322 message for a reorder notification.
func RenderMessage(from string, message inventory.ReorderMessage) []byte {
	var buffer bytes.Buffer
	fmt.Fprintf(&buffer, "From: %s\r\n", from)
	fmt.Fprintf(&buffer, "To: %s\r\n", strings.Join(message.Recipients, ", "))
	fmt.Fprintf(&buffer, "Subject: Reorder list for %s (%d items)\r\n", message.BusinessDate, len(message.Items))
	fmt.Fprintf(&buffer, "X-Request-ID: %s\r\n", message.RequestID)
	buffer.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n")
	for _, item := range message.Items {
		name := item.ProductName
		if name == "" {
			name = item.UPC.String()
		}
		fmt.Fprintf(&buffer, "- %s (%s): order %s %s, on hand %s", name, item.UPC, item.QtyToOrder, item.BaseUnit, item.OnHand)
		if item.PreferredVendor != "" {
			fmt.Fprintf(&buffer, ", vendor %s", item.PreferredVendor)
		}
		if item.Note != "" {
			fmt.Fprintf(&buffer, " [%s]", item.Note)
		}
		buffer.WriteString("\r\n")
	}
	return buffer.Bytes()
}

// LogNotifier writes notifications to the log instead of sending them.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier returns a notifier that only logs.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// SendReorder logs the message summary.
func (notifier *LogNotifier) SendReorder(_ context.Context, message inventory.ReorderMessage) error {
	upcs := make([]string, 0, len(message.Items))
	for _, item := range message.Items {
		upcs = append(upcs, item.UPC.String())
	}
	notifier.logger.Info("reorder notification",
		zap.String("business_date", message.BusinessDate.String()),
		zap.String("request_id", message.RequestID),
		zap.Strings("recipients", message.Recipients),
		zap.Strings("upcs", upcs),
	)
	return nil
}
