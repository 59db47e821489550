package parser

import (
	"math"

	"github.com/shopspring/decimal"

	"erp-sync-service/internal/entity"
	"erp-sync-service/internal/xmlscan"
)

// DefaultVATPercent applies when a line carries no usable VAT rate.
const DefaultVATPercent = 27.0

// ParseSales emits one record per invoice line item (<tetel>) of every
// invoice (<elem>). The fulfillment date in the invoice header wins over a
// row-level one.
func ParseSales(payload, skuFilter string) []entity.SalesRecord {
	var out []entity.SalesRecord

	for _, elem := range xmlscan.Blocks(payload, "elem") {
		date := xmlscan.Text(elem, "telj_dat")
		if fej, ok := xmlscan.Inner(elem, "fej"); ok {
			if d := xmlscan.Text(fej, "telj_dat"); d != "" {
				date = d
			}
		}
		date = isoDate(date)

		for _, item := range xmlscan.Blocks(elem, "tetel") {
			sku := xmlscan.Text(item, "cikksz")
			if skuFilter != "" && sku != skuFilter {
				continue
			}

			qty, okQty := parseNumber(xmlscan.Text(item, "menny"))
			net, okNet := parseNumber(xmlscan.Text(item, "netto_ar"))
			if !okQty || !okNet || sku == "" || qty <= 0 {
				continue
			}
			vat, ok := parseNumber(xmlscan.Text(item, "afa_szaz"))
			if !ok {
				vat = DefaultVATPercent
			}

			rec, ok := salesRecord(date, sku, qty, net, vat)
			if !ok {
				continue
			}
			out = append(out, rec)
		}
	}
	return out
}

// salesRecord derives the VAT-inclusive figures. The gross unit price is
// rounded to 4 places before the quantity is applied.
func salesRecord(date, sku string, qty, net, vat float64) (entity.SalesRecord, bool) {
	netD := decimal.NewFromFloat(net)
	qtyD := decimal.NewFromFloat(qty)
	factor := decimal.NewFromInt(1).Add(decimal.NewFromFloat(vat).Shift(-2))

	gross := netD.Mul(factor).Round(4)
	netValue := netD.Mul(qtyD).Round(2)
	grossValue := gross.Mul(qtyD).Round(2)

	rec := entity.SalesRecord{
		FulfillmentDate: date,
		SKU:             sku,
		Quantity:        qty,
		NetPrice:        net,
		VATPercent:      vat,
		GrossPrice:      gross.InexactFloat64(),
		NetValue:        netValue.InexactFloat64(),
		GrossValue:      grossValue.InexactFloat64(),
		IsStorno:        false,
		RawHash:         entity.RowHash(date, sku, entity.FormatNumber(qty), entity.FormatNumber(net)),
	}
	if !finite(rec.GrossPrice, rec.NetValue, rec.GrossValue) {
		return entity.SalesRecord{}, false
	}
	return rec, true
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
