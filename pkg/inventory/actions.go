package inventory

import (
	"context"
	"fmt"
	"strings"
)

// NewShoppingActionEvent validates a manager action. A blank date means today.
func NewShoppingActionEvent(rawDate string, rawUPC string, rawAction string, note string, actor string, today BusinessDate) (ShoppingActionEvent, error) {
	date := today
	if strings.TrimSpace(rawDate) != "" {
		parsed, err := ParseBusinessDate(rawDate)
		if err != nil {
			return ShoppingActionEvent{}, err
		}
		date = parsed
	}
	if date.IsZero() {
		return ShoppingActionEvent{}, fmt.Errorf("%w: date is required", ErrInvalidBusinessDate)
	}
	upc, err := NewUPC(rawUPC)
	if err != nil {
		return ShoppingActionEvent{}, err
	}
	action, err := ParseShoppingAction(rawAction)
	if err != nil {
		return ShoppingActionEvent{}, err
	}
	return ShoppingActionEvent{
		Date:   date,
		UPC:    upc,
		Action: action,
		Note:   strings.TrimSpace(note),
		Actor:  strings.TrimSpace(actor),
	}, nil
}

// RecordAction appends one event to the action log. Prior events are never modified;
// undo is just another event.
func (service *Service) RecordAction(ctx context.Context, event ShoppingActionEvent) error {
	operationError := service.recordAction(ctx, event)
	service.logOperation(ctx, OperationLog{
		Operation:    operationRecordAction,
		BusinessDate: event.Date,
		UPC:          event.UPC,
		Action:       event.Action,
		Actor:        event.Actor,
		Error:        operationError,
	})
	return operationError
}

func (service *Service) recordAction(ctx context.Context, event ShoppingActionEvent) error {
	if event.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidBusinessDate)
	}
	if event.UPC.IsZero() {
		return fmt.Errorf("%w: upc is required", ErrInvalidUPC)
	}
	if _, err := ParseShoppingAction(string(event.Action)); err != nil {
		return err
	}
	return service.store.Append(ctx, service.tables.ActionsTable(), []Row{{
		ColumnTimestamp: formatTimestamp(service.nowFn()),
		ColumnDate:      event.Date.String(),
		ColumnUPC:       event.UPC.String(),
		ColumnAction:    string(event.Action),
		ColumnNote:      event.Note,
		ColumnActor:     event.Actor,
	}})
}
