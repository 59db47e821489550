package parser

import (
	"strconv"

	"github.com/shopspring/decimal"

	"erp-sync-service/internal/entity"
	"erp-sync-service/internal/xmlscan"
)

// ParseInventory reads one availability snapshot per SKU from the
// kiadhato1..kiadhato6 columns. Missing or unparsable columns count as zero.
func ParseInventory(payload string) []entity.InventoryRecord {
	var out []entity.InventoryRecord

	for _, elem := range xmlscan.Blocks(payload, "elem") {
		sku := xmlscan.Text(elem, "cikksz")
		if sku == "" {
			continue
		}

		rec := entity.InventoryRecord{SKU: sku}
		total := decimal.Zero
		for i := range rec.Warehouses {
			v, ok := parseNumber(xmlscan.Text(elem, "kiadhato"+strconv.Itoa(i+1)))
			if !ok {
				v = 0
			}
			rec.Warehouses[i] = v
			total = total.Add(decimal.NewFromFloat(v))
		}
		rec.TotalAvailable = total.Round(2).InexactFloat64()
		out = append(out, rec)
	}
	return out
}
