package store

import (
	"fmt"
	"strings"
	"time"

	"erp-sync-service/internal/entity"
)

// tableLayout maps one record kind onto its table. keyColumn is the column a
// duplicate-ignoring insert touches as a no-op.
type tableLayout struct {
	columns   []string
	keyColumn string
	values    func(r entity.Record, syncedAt time.Time) ([]any, error)
}

var tableLayouts = map[entity.Kind]tableLayout{
	entity.Sales: {
		columns: []string{"fulfillment_date", "sku", "quantity", "net_price", "vat_pct",
			"gross_price", "net_value", "gross_value", "is_storno", "raw_xml_hash", "synced_at"},
		keyColumn: "raw_xml_hash",
		values: func(r entity.Record, at time.Time) ([]any, error) {
			s, ok := r.(entity.SalesRecord)
			if !ok {
				return nil, fmt.Errorf("store: expected sales record, got %T", r)
			}
			return []any{nullDate(s.FulfillmentDate), s.SKU, s.Quantity, s.NetPrice, s.VATPercent,
				s.GrossPrice, s.NetValue, s.GrossValue, s.IsStorno, s.RawHash, at}, nil
		},
	},
	entity.Movement: {
		columns: []string{"movement_date", "sku", "direction", "movement_type", "quantity",
			"raw_xml_hash", "synced_at"},
		keyColumn: "raw_xml_hash",
		values: func(r entity.Record, at time.Time) ([]any, error) {
			m, ok := r.(entity.MovementRecord)
			if !ok {
				return nil, fmt.Errorf("store: expected movement record, got %T", r)
			}
			return []any{nullDate(m.MovementDate), m.SKU, m.Direction, m.MovementType, m.Quantity,
				m.RawHash, at}, nil
		},
	},
	entity.Inventory: {
		columns: []string{"sku", "total_available", "warehouse_1", "warehouse_2", "warehouse_3",
			"warehouse_4", "warehouse_5", "warehouse_6", "synced_at"},
		keyColumn: "sku",
		values: func(r entity.Record, at time.Time) ([]any, error) {
			inv, ok := r.(entity.InventoryRecord)
			if !ok {
				return nil, fmt.Errorf("store: expected inventory record, got %T", r)
			}
			w := inv.Warehouses
			return []any{inv.SKU, inv.TotalAvailable, w[0], w[1], w[2], w[3], w[4], w[5], at}, nil
		},
	},
	entity.Product: {
		columns:   []string{"sku", "name", "category", "manufacturer", "unit", "active", "synced_at"},
		keyColumn: "sku",
		values: func(r entity.Record, at time.Time) ([]any, error) {
			p, ok := r.(entity.ProductRecord)
			if !ok {
				return nil, fmt.Errorf("store: expected product record, got %T", r)
			}
			return []any{p.SKU, p.Name, p.Category, p.Manufacturer, p.Unit, p.Active, at}, nil
		},
	},
}

// nullDate stores an absent date as NULL rather than an invalid DATE.
func nullDate(d string) any {
	if d == "" {
		return nil
	}
	return d
}

// buildInsert renders a multi-row INSERT. With replace set, conflicting rows
// are overwritten column by column; otherwise they are left untouched.
func buildInsert(kind entity.Kind, layout tableLayout, rows int, replace bool) string {
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(layout.columns)), ", ") + ")"

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(kind.Table())
	b.WriteString(" (")
	b.WriteString(strings.Join(layout.columns, ", "))
	b.WriteString(") VALUES ")
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholder)
	}
	b.WriteString(" ON DUPLICATE KEY UPDATE ")
	if !replace {
		b.WriteString(layout.keyColumn + " = " + layout.keyColumn)
		return b.String()
	}
	var sets []string
	for _, c := range layout.columns {
		if c == layout.keyColumn {
			continue
		}
		sets = append(sets, c+" = VALUES("+c+")")
	}
	b.WriteString(strings.Join(sets, ", "))
	return b.String()
}
