package inventory

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes one inventory operation.
type OperationLog struct {
	Operation    string
	BusinessDate BusinessDate
	UPC          UPC
	Action       ShoppingAction
	Mode         WriteMode
	RowsWritten  int
	Warnings     int
	Reason       string
	Actor        string
	Status       string
	Error        error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithTables overrides the configured table names.
func WithTables(tables Tables) ServiceOption {
	return func(service *Service) {
		service.tables = tables.WithDefaults()
	}
}

// WithCalendar sets the business timezone used for every "today" decision.
func WithCalendar(calendar BusinessCalendar) ServiceOption {
	return func(service *Service) {
		service.calendar = calendar
	}
}

// WithLocker serializes recompute runs through the given lock.
func WithLocker(locker Locker) ServiceOption {
	return func(service *Service) {
		service.locker = locker
	}
}

// WithNotifier wires the transport used for reorder notifications.
func WithNotifier(notifier Notifier) ServiceOption {
	return func(service *Service) {
		service.notifier = notifier
	}
}

// WithVirtualItems configures modifier-dependent menu items collapsed during sales ingestion.
func WithVirtualItems(rules []VirtualItemRule) ServiceOption {
	return func(service *Service) {
		service.virtualItems = append([]VirtualItemRule(nil), rules...)
	}
}

// WithRequestIDs overrides request id generation for notification sends.
func WithRequestIDs(next func() string) ServiceOption {
	return func(service *Service) {
		service.requestIDFn = next
	}
}
