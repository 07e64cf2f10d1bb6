package inventory

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var businessDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// UPC identifies a product: barcode digits or a pseudo-code such as EGG.
type UPC struct {
	value string
}

// NewUPC trims and upper-cases a product key.
func NewUPC(raw string) (UPC, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	if normalized == "" {
		return UPC{}, fmt.Errorf("%w: empty value", ErrInvalidUPC)
	}
	return UPC{value: normalized}, nil
}

// String returns the normalized key.
func (upc UPC) String() string {
	return upc.value
}

// IsZero reports whether the key was never set.
func (upc UPC) IsZero() bool {
	return upc.value == ""
}

// BusinessDate is a civil date in the business timezone.
type BusinessDate struct {
	value string
}

// ParseBusinessDate validates a YYYY-MM-DD date.
func ParseBusinessDate(raw string) (BusinessDate, error) {
	trimmed := strings.TrimSpace(raw)
	if !businessDatePattern.MatchString(trimmed) {
		return BusinessDate{}, fmt.Errorf("%w: %q is not YYYY-MM-DD", ErrInvalidBusinessDate, raw)
	}
	if _, err := time.Parse(businessDateLayout, trimmed); err != nil {
		return BusinessDate{}, fmt.Errorf("%w: %v", ErrInvalidBusinessDate, err)
	}
	return BusinessDate{value: trimmed}, nil
}

// String returns the date as YYYY-MM-DD.
func (date BusinessDate) String() string {
	return date.value
}

// IsZero reports whether the date was never set.
func (date BusinessDate) IsZero() bool {
	return date.value == ""
}

// AddDays shifts the date by whole civil days.
func (date BusinessDate) AddDays(days int) BusinessDate {
	parsed, err := time.Parse(businessDateLayout, date.value)
	if err != nil {
		return date
	}
	return BusinessDate{value: parsed.AddDate(0, 0, days).Format(businessDateLayout)}
}

// BusinessCalendar maps instants onto business dates. It is the single source of truth for "today".
type BusinessCalendar struct {
	location *time.Location
}

// NewBusinessCalendar builds a calendar from an IANA zone name.
func NewBusinessCalendar(zoneName string) (BusinessCalendar, error) {
	trimmed := strings.TrimSpace(zoneName)
	if trimmed == "" {
		return BusinessCalendar{}, fmt.Errorf("%w: business timezone is required", ErrInvalidServiceConfig)
	}
	location, err := time.LoadLocation(trimmed)
	if err != nil {
		return BusinessCalendar{}, fmt.Errorf("%w: %v", ErrInvalidServiceConfig, err)
	}
	return BusinessCalendar{location: location}, nil
}

// Location returns the business timezone.
func (calendar BusinessCalendar) Location() *time.Location {
	if calendar.location == nil {
		return time.UTC
	}
	return calendar.location
}

// DateOf returns the business date an instant falls on.
func (calendar BusinessCalendar) DateOf(instant time.Time) BusinessDate {
	return BusinessDate{value: instant.In(calendar.Location()).Format(businessDateLayout)}
}

// WriteMode selects how recomputed usage rows are written.
type WriteMode string

const (
	WriteModeAppend  WriteMode = "append"
	WriteModeReplace WriteMode = "replace"
)

// ParseWriteMode validates a write mode, defaulting to replace.
func ParseWriteMode(raw string) (WriteMode, error) {
	switch WriteMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", WriteModeReplace:
		return WriteModeReplace, nil
	case WriteModeAppend:
		return WriteModeAppend, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidWriteMode, raw)
	}
}

// ShoppingAction is a manager decision about a shopping-list line.
type ShoppingAction string

const (
	ActionPurchased ShoppingAction = "purchased"
	ActionDismissed ShoppingAction = "dismissed"
	ActionSnoozed   ShoppingAction = "snoozed"
	ActionUndo      ShoppingAction = "undo"
)

// ParseShoppingAction validates an action value.
func ParseShoppingAction(raw string) (ShoppingAction, error) {
	action := ShoppingAction(strings.ToLower(strings.TrimSpace(raw)))
	switch action {
	case ActionPurchased, ActionDismissed, ActionSnoozed, ActionUndo:
		return action, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, raw)
	}
}

// Hides reports whether the action removes a line from the default view.
func (action ShoppingAction) Hides() bool {
	return action == ActionPurchased || action == ActionDismissed || action == ActionSnoozed
}

// CatalogEntry is the master record for one product.
type CatalogEntry struct {
	UPC             UPC
	ProductName     string
	BaseUnit        string
	ReorderPoint    decimal.Decimal
	ParLevel        decimal.Decimal
	DefaultLocation string
	PreferredVendor string
	Active          bool
}

// PurchaseEvent adds stock permanently.
type PurchaseEvent struct {
	Timestamp      time.Time
	UPC            UPC
	QtyPurchased   decimal.Decimal
	BaseUnitsAdded decimal.Decimal
	Vendor         string
	Actor          string
}

// Quantity prefers base_units_added when positive, else qty_purchased.
func (event PurchaseEvent) Quantity() decimal.Decimal {
	if event.BaseUnitsAdded.IsPositive() {
		return event.BaseUnitsAdded
	}
	return event.QtyPurchased
}

// UsageEvent is theoretical consumption derived from sales.
type UsageEvent struct {
	Date    BusinessDate
	UPC     UPC
	UsedQty decimal.Decimal
}

// AdjustmentEvent is a signed manual correction.
type AdjustmentEvent struct {
	Timestamp      time.Time
	Date           BusinessDate
	UPC            UPC
	BaseUnitsDelta decimal.Decimal
	AdjustmentType string
	Reason         string
	Actor          string
}

// RecipeRow says how much of an ingredient one unit of a menu item consumes.
type RecipeRow struct {
	MenuItem      string
	IngredientUPC UPC
	QtyPerItem    decimal.Decimal
	Active        bool
}

// SalesRow records quantity sold of a menu item on a business date.
type SalesRow struct {
	Date     BusinessDate
	MenuItem string
	QtySold  decimal.Decimal
	Source   string
}

// ShoppingActionEvent is one entry of the append-only action log.
type ShoppingActionEvent struct {
	Date   BusinessDate
	UPC    UPC
	Action ShoppingAction
	Note   string
	Actor  string
}

// ShoppingRow is one line of the reorder snapshot, the manual list, or the merged list.
type ShoppingRow struct {
	Timestamp       time.Time
	UPC             UPC
	ProductName     string
	OnHand          decimal.Decimal
	BaseUnit        string
	ReorderPoint    decimal.Decimal
	ParLevel        decimal.Decimal
	QtyToOrder      decimal.Decimal
	PreferredVendor string
	DefaultLocation string
	Note            string
}

// EmailLogRow audits one reorder notification send.
type EmailLogRow struct {
	Timestamp    time.Time
	BusinessDate BusinessDate
	Items        int
	Recipients   int
	Actor        string
	RequestID    string
	ItemsHash    string
}
