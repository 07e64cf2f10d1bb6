package httpapi

import (
	"github.com/shopspring/decimal"

	"github.com/MarkoPoloResearchLab/cafestock/pkg/inventory"
)

type usageRequest struct {
	Date string `json:"date"`
	Mode string `json:"mode"`
}

type actionRequest struct {
	Date   string `json:"date"`
	UPC    string `json:"upc" binding:"required"`
	Action string `json:"action" binding:"required"`
	Note   string `json:"note"`
}

type notifyRequest struct {
	ForceLevel int      `json:"force_level"`
	Recipients []string `json:"recipients"`
}

type modifierRequest struct {
	Group  string `json:"group"`
	Option string `json:"option"`
}

type saleLineRequest struct {
	Date      string            `json:"date"`
	MenuItem  string            `json:"menu_item"`
	Modifiers []modifierRequest `json:"modifiers"`
	Quantity  decimal.Decimal   `json:"qty"`
	Source    string            `json:"source"`
}

type salesRequest struct {
	Lines []saleLineRequest `json:"lines" binding:"required"`
}

type adjustmentRequest struct {
	Date   string          `json:"date"`
	UPC    string          `json:"upc"`
	Delta  decimal.Decimal `json:"base_units_delta"`
	Type   string          `json:"adjustment_type"`
	Reason string          `json:"reason"`
}

type purchaseRequest struct {
	UPC            string          `json:"upc"`
	QtyPurchased   decimal.Decimal `json:"qty_purchased"`
	BaseUnitsAdded decimal.Decimal `json:"base_units_added"`
	Vendor         string          `json:"vendor"`
}

type manualRowRequest struct {
	ProductName     string          `json:"product_name"`
	BaseUnit        string          `json:"base_unit"`
	QtyToOrder      decimal.Decimal `json:"qty_to_order"`
	PreferredVendor string          `json:"preferred_vendor"`
	DefaultLocation string          `json:"default_location"`
	Note            string          `json:"note"`
}

type usageRowPayload struct {
	Date    string          `json:"date"`
	UPC     string          `json:"upc"`
	UsedQty decimal.Decimal `json:"theoretical_used_qty"`
}

type usagePayload struct {
	Date           string            `json:"date"`
	Mode           string            `json:"mode"`
	RowsWritten    int               `json:"rows_written"`
	RowsReplaced   int               `json:"rows_replaced"`
	Rows           []usageRowPayload `json:"rows"`
	MissingRecipes []string          `json:"missing_recipes"`
	MissingCatalog []string          `json:"missing_catalog"`
	InvalidRows    []string          `json:"invalid_rows"`
}

func newUsagePayload(result inventory.UsageResult) usagePayload {
	rows := make([]usageRowPayload, 0, len(result.Rows))
	for _, event := range result.Rows {
		rows = append(rows, usageRowPayload{Date: event.Date.String(), UPC: event.UPC.String(), UsedQty: event.UsedQty})
	}
	return usagePayload{
		Date:           result.Date.String(),
		Mode:           string(result.Mode),
		RowsWritten:    result.RowsWritten,
		RowsReplaced:   result.RowsReplaced,
		Rows:           rows,
		MissingRecipes: nonNil(result.MissingRecipes),
		MissingCatalog: nonNil(result.MissingCatalog),
		InvalidRows:    nonNil(result.InvalidRows),
	}
}

type shoppingRowPayload struct {
	UPC             string          `json:"upc"`
	ProductName     string          `json:"product_name"`
	OnHand          decimal.Decimal `json:"on_hand_base_units"`
	BaseUnit        string          `json:"base_unit"`
	ReorderPoint    decimal.Decimal `json:"reorder_point"`
	ParLevel        decimal.Decimal `json:"par_level"`
	QtyToOrder      decimal.Decimal `json:"qty_to_order_base_units"`
	PreferredVendor string          `json:"preferred_vendor"`
	DefaultLocation string          `json:"default_location"`
	Note            string          `json:"note"`
}

func newShoppingRowPayloads(rows []inventory.ShoppingRow) []shoppingRowPayload {
	payloads := make([]shoppingRowPayload, 0, len(rows))
	for _, row := range rows {
		payloads = append(payloads, shoppingRowPayload{
			UPC:             row.UPC.String(),
			ProductName:     row.ProductName,
			OnHand:          row.OnHand,
			BaseUnit:        row.BaseUnit,
			ReorderPoint:    row.ReorderPoint,
			ParLevel:        row.ParLevel,
			QtyToOrder:      row.QtyToOrder,
			PreferredVendor: row.PreferredVendor,
			DefaultLocation: row.DefaultLocation,
			Note:            row.Note,
		})
	}
	return payloads
}

type reorderPayload struct {
	GeneratedAt    string               `json:"generated_at"`
	Flagged        int                  `json:"flagged"`
	Rows           []shoppingRowPayload `json:"rows"`
	NegativeOnHand []string             `json:"negative_on_hand"`
	InvalidRows    []string             `json:"invalid_rows"`
}

type shoppingListPayload struct {
	Date        string               `json:"date"`
	Items       []shoppingRowPayload `json:"items"`
	Hidden      []string             `json:"hidden"`
	InvalidRows []string             `json:"invalid_rows"`
}

type notifyPayload struct {
	BusinessDate string   `json:"business_date"`
	OK           bool     `json:"ok"`
	Reason       string   `json:"reason"`
	Sent         bool     `json:"sent"`
	RequestID    string   `json:"request_id,omitempty"`
	ItemsHash    string   `json:"items_hash,omitempty"`
	Items        int      `json:"items"`
	Recipients   int      `json:"recipients"`
	InvalidRows  []string `json:"invalid_rows"`
}

type onHandPayload struct {
	UPC       string          `json:"upc"`
	Purchased decimal.Decimal `json:"purchased"`
	Used      decimal.Decimal `json:"used"`
	Adjusted  decimal.Decimal `json:"adjusted"`
	OnHand    decimal.Decimal `json:"on_hand"`
	BaseUnit  string          `json:"base_unit"`
}

func newOnHandPayload(reading inventory.OnHand) onHandPayload {
	return onHandPayload{
		UPC:       reading.UPC.String(),
		Purchased: reading.Purchased,
		Used:      reading.Used,
		Adjusted:  reading.Adjusted,
		OnHand:    reading.OnHand,
		BaseUnit:  reading.BaseUnit,
	}
}
