package inventory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// NotificationReason explains a guard decision.
type NotificationReason string

const (
	ReasonOK               NotificationReason = "ok"
	ReasonCooldown         NotificationReason = "cooldown"
	ReasonAlreadySentToday NotificationReason = "already_sent_today"
)

// ForceLevel relaxes the guard: 1 bypasses the daily cap, 2 bypasses the cooldown as well.
type ForceLevel int

const (
	ForceNone     ForceLevel = 0
	ForceDaily    ForceLevel = 1
	ForceCooldown ForceLevel = 2
)

// NewForceLevel validates a force level.
func NewForceLevel(raw int) (ForceLevel, error) {
	if raw < int(ForceNone) || raw > int(ForceCooldown) {
		return 0, fmt.Errorf("%w: %d is outside 0..2", ErrInvalidForceLevel, raw)
	}
	return ForceLevel(raw), nil
}

// GuardDecision is the verdict of the notification dedup guard.
type GuardDecision struct {
	OK        bool
	Reason    NotificationReason
	LastSent  time.Time
	SentToday bool
}

// EvaluateNotificationGuard decides whether a reorder notification may go out now.
// The cooldown is checked before the once-per-business-day cap.
func EvaluateNotificationGuard(now time.Time, today BusinessDate, cooldown time.Duration, force ForceLevel, sends []EmailLogRow) GuardDecision {
	decision := GuardDecision{OK: true, Reason: ReasonOK}
	if len(sends) == 0 {
		return decision
	}
	for _, send := range sends {
		if send.Timestamp.After(decision.LastSent) {
			decision.LastSent = send.Timestamp
		}
		if send.BusinessDate == today {
			decision.SentToday = true
		}
	}
	if force < ForceCooldown && !decision.LastSent.IsZero() && now.Sub(decision.LastSent) < cooldown {
		decision.OK = false
		decision.Reason = ReasonCooldown
		return decision
	}
	if decision.SentToday && force == ForceNone {
		decision.OK = false
		decision.Reason = ReasonAlreadySentToday
	}
	return decision
}

// ItemsHash fingerprints the notified content so identical sends can be spotted in the log.
func ItemsHash(rows []ShoppingRow) string {
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, row.UPC.String()+"="+row.QtyToOrder.String())
	}
	sort.Strings(lines)
	digest := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(digest[:])
}

// NotificationRequest asks for a guarded reorder notification.
type NotificationRequest struct {
	Actor      string
	Recipients []string
	Force      ForceLevel
	Cooldown   time.Duration
}

// NotificationResult reports the guard decision and, when sent, what went out.
type NotificationResult struct {
	Decision     GuardDecision
	BusinessDate BusinessDate
	Sent         bool
	RequestID    string
	ItemsHash    string
	Items        int
	Recipients   int
	InvalidRows  []string
}

// SendReorderNotification evaluates the guard and, when permitted and the list is not
// empty, sends today's visible shopping list and records the send.
func (service *Service) SendReorderNotification(ctx context.Context, request NotificationRequest) (NotificationResult, error) {
	result := NotificationResult{BusinessDate: service.Today()}
	operationError := service.sendReorderNotification(ctx, request, &result)
	service.logOperation(ctx, OperationLog{
		Operation:    operationNotify,
		BusinessDate: result.BusinessDate,
		RowsWritten:  result.Items,
		Reason:       string(result.Decision.Reason),
		Actor:        request.Actor,
		Error:        operationError,
	})
	return result, operationError
}

func (service *Service) sendReorderNotification(ctx context.Context, request NotificationRequest, result *NotificationResult) error {
	if service.notifier == nil {
		return fmt.Errorf("%w: notifier dependency is nil", ErrInvalidServiceConfig)
	}
	if _, err := NewForceLevel(int(request.Force)); err != nil {
		return err
	}
	if request.Cooldown < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidCooldown, request.Cooldown)
	}
	recipients := normalizeRecipients(request.Recipients)
	if len(recipients) == 0 {
		return fmt.Errorf("%w: at least one recipient is required", ErrInvalidRecipients)
	}
	sends, issues, err := service.readEmailLog(ctx)
	if err != nil {
		return err
	}
	result.InvalidRows = issues
	now := service.nowFn()
	result.Decision = EvaluateNotificationGuard(now, result.BusinessDate, request.Cooldown, request.Force, sends)
	if !result.Decision.OK {
		return nil
	}
	list, err := service.shoppingList(ctx, result.BusinessDate, false)
	if err != nil {
		return err
	}
	if len(list.Items) == 0 {
		return nil
	}
	result.RequestID = service.requestIDFn()
	result.ItemsHash = ItemsHash(list.Items)
	result.Items = len(list.Items)
	result.Recipients = len(recipients)
	err = service.notifier.SendReorder(ctx, ReorderMessage{
		BusinessDate: result.BusinessDate,
		Recipients:   recipients,
		Items:        list.Items,
		RequestID:    result.RequestID,
	})
	if err != nil {
		return err
	}
	result.Sent = true
	return service.store.Append(ctx, service.tables.EmailLogTable(), []Row{{
		ColumnTimestamp:    formatTimestamp(now),
		ColumnBusinessDate: result.BusinessDate.String(),
		ColumnItems:        strconv.Itoa(result.Items),
		ColumnRecipients:   strconv.Itoa(result.Recipients),
		ColumnActor:        strings.TrimSpace(request.Actor),
		ColumnRequestID:    result.RequestID,
		ColumnItemsHash:    result.ItemsHash,
	}})
}

func normalizeRecipients(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	recipients := make([]string, 0, len(raw))
	for _, recipient := range raw {
		trimmed := strings.TrimSpace(recipient)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		recipients = append(recipients, trimmed)
	}
	return recipients
}
