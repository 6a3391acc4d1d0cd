package tables

import (
	"strings"

	"github.com/JonMunkholm/sheetkit/internal/core"
)

func registerSalesOrders() {
	regions := core.NewCascadeMap().
		Set("US", Codes(UsStates)).
		Set("CA", Codes(CaProvinces))

	core.Register(core.TemplateDefinition{
		Info: core.TemplateInfo{
			Key:         "sales_orders",
			Group:       "Sales",
			Label:       "Sales Orders",
			Description: "Order lines with channel, status and ship-to region.",
			Sheet:       "Orders",
		},
		Fields: []core.FieldSpec{
			{Name: "Order ID", Key: "order_id", Required: true, Unique: true, Width: 16},
			{Name: "Order Date", Key: "order_date", Type: core.FieldDate, Required: true, Width: 12},
			{Name: "Channel", Key: "channel", Type: core.FieldEnum, Dictionary: "Channels"},
			{Name: "Status", Key: "status", Type: core.FieldEnum, Required: true,
				Options: []string{"Draft", "Open", "Shipped", "Cancelled"}},
			{Name: "Country", Key: "country", Type: core.FieldEnum, Required: true,
				Options: []string{"US", "CA"}, Normalize: strings.ToUpper},
			{Name: "Region", Key: "region", Type: core.FieldEnum, Parent: "country",
				Cascade: regions, Normalize: NormalizeRegion},
			{Name: "Quantity", Key: "quantity", Type: core.FieldNumeric, Required: true},
			{Name: "Unit Price", Key: "unit_price", Type: core.FieldNumeric},
			{Name: "Gift", Key: "gift", Type: core.FieldBool},
		},
		Dictionaries: []core.DictionarySpec{
			{Sheet: "Channels", Title: "Sales channel", Options: []string{"Web", "Retail", "Partner", "Marketplace"}},
		},
		RowSpan: 1000,
		Table:   "sales_orders",
	})
}
