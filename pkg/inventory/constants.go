package inventory

const (
	operationOnHand           = "on_hand"
	operationOnHandReport     = "on_hand_report"
	operationRecomputeUsage   = "recompute_usage"
	operationRecomputeReorder = "recompute_reorder"
	operationShoppingList     = "shopping_list"
	operationRecordAction     = "record_action"
	operationRecordPurchase   = "record_purchase"
	operationRecordAdjustment = "record_adjustment"
	operationIngestSales      = "ingest_sales"
	operationSetManualRow     = "set_manual_row"
	operationRemoveManualRow  = "remove_manual_row"
	operationNotify           = "notify_reorder"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	businessDateLayout = "2006-01-02"
	defaultBaseUnit    = "each"

	negativeOnHandNote = "Negative on-hand: check starting inventory and purchase records"

	lockKeyDelimiter = ":"
	lockPrefixUsage  = "usage"
	lockPrefixOrder  = "reorder"

	compositeKeyDelimiter = " | "
	unspecifiedChoice     = "UNSPECIFIED"
)

// Default physical table names.
const (
	DefaultPurchasesTable     = "Purchases"
	DefaultUsageTable         = "Inventory_Usage"
	DefaultAdjustmentsTable   = "Inventory_Adjustments"
	DefaultActionsTable       = "Shopping_Actions"
	DefaultCatalogTable       = "Catalog"
	DefaultRecipesTable       = "Recipes"
	DefaultSalesTable         = "Sales"
	DefaultEmailLogTable      = "Reorder_Email_Log"
	DefaultReorderTable       = "Reorder_Snapshot"
	DefaultManualReorderTable = "Manual_Shopping_List"
)

// Logical column names.
const (
	ColumnTimestamp        = "timestamp"
	ColumnDate             = "date"
	ColumnUPC              = "upc"
	ColumnProductName      = "product_name"
	ColumnBaseUnit         = "base_unit"
	ColumnReorderPoint     = "reorder_point"
	ColumnParLevel         = "par_level"
	ColumnDefaultLocation  = "default_location"
	ColumnPreferredVendor  = "preferred_vendor"
	ColumnActive           = "active"
	ColumnQtyPurchased     = "qty_purchased"
	ColumnBaseUnitsAdded   = "base_units_added"
	ColumnVendor           = "vendor"
	ColumnUsedQty          = "theoretical_used_qty"
	ColumnBaseUnitsDelta   = "base_units_delta"
	ColumnAdjustmentType   = "adjustment_type"
	ColumnReason           = "reason"
	ColumnActor            = "actor"
	ColumnMenuItem         = "menu_item_clean"
	ColumnIngredientUPC    = "ingredient_upc"
	ColumnQtyPerItem       = "qty_per_item"
	ColumnQtySold          = "qty_sold"
	ColumnSource           = "source"
	ColumnAction           = "action"
	ColumnNote             = "note"
	ColumnOnHand           = "on_hand_base_units"
	ColumnQtyToOrder       = "qty_to_order_base_units"
	ColumnBusinessDate     = "business_date"
	ColumnItems            = "items"
	ColumnRecipients       = "recipients"
	ColumnRequestID        = "request_id"
	ColumnItemsHash        = "items_hash"
	ColumnMenuItemFallback = "menu_item"
)
