package parser

import (
	"strings"

	"erp-sync-service/internal/entity"
	"erp-sync-service/internal/xmlscan"
)

// ParseProducts reads the product catalog. A product is active unless its
// aktiv flag is explicitly off.
func ParseProducts(payload string) []entity.ProductRecord {
	var out []entity.ProductRecord

	for _, elem := range xmlscan.Blocks(payload, "elem") {
		sku := xmlscan.Text(elem, "cikksz")
		if sku == "" {
			continue
		}
		name := xmlscan.Text(elem, "megnevezes")
		if name == "" {
			name = xmlscan.Text(elem, "nev")
		}

		out = append(out, entity.ProductRecord{
			SKU:          sku,
			Name:         name,
			Category:     xmlscan.Text(elem, "kategoria"),
			Manufacturer: xmlscan.Text(elem, "gyarto"),
			Unit:         xmlscan.Text(elem, "me"),
			Active:       !inactive(xmlscan.Text(elem, "aktiv")),
		})
	}
	return out
}

func inactive(flag string) bool {
	return flag == "0" || strings.EqualFold(flag, "N")
}
