package parser

import (
	"math"

	"erp-sync-service/internal/entity"
	"erp-sync-service/internal/xmlscan"
)

// ParseMovements emits one record per line item of every movement document.
// Documents without a <fej> header are skipped since the date and direction
// live there. Quantities are stored as magnitudes; the sign is carried by
// the direction.
func ParseMovements(payload, skuFilter string) []entity.MovementRecord {
	var out []entity.MovementRecord

	for _, elem := range xmlscan.Blocks(payload, "elem") {
		fej, ok := xmlscan.Inner(elem, "fej")
		if !ok {
			continue
		}
		date := isoDate(xmlscan.Text(fej, "kelt"))
		direction := xmlscan.Text(fej, "irany")
		movementType := xmlscan.Text(fej, "mozgas")

		for _, item := range xmlscan.Blocks(elem, "tetel") {
			sku := xmlscan.Text(item, "cikksz")
			if skuFilter != "" && sku != skuFilter {
				continue
			}
			qty, ok := parseNumber(xmlscan.Text(item, "menny"))
			if !ok || sku == "" || qty == 0 {
				continue
			}
			qty = math.Abs(qty)

			out = append(out, entity.MovementRecord{
				MovementDate: date,
				SKU:          sku,
				Direction:    direction,
				MovementType: movementType,
				Quantity:     qty,
				RawHash:      entity.RowHash(date, sku, direction, entity.FormatNumber(qty)),
			})
		}
	}
	return out
}
