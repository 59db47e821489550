// Package parser turns ERP payload blocks into typed, validated records.
//
// Parsers are pure. Rows that cannot produce a valid record (missing SKU,
// unparsable or non-positive quantity, non-finite totals) are dropped rather
// than failing the page.
package parser

import (
	"math"
	"strconv"
	"strings"

	"erp-sync-service/internal/entity"
)

// Func parses one payload block. skuFilter, when set, drops line items for
// other SKUs; snapshot entities ignore it.
type Func func(payload, skuFilter string) []entity.Record

// For resolves the parser of an entity kind.
func For(kind entity.Kind) (Func, error) {
	switch kind {
	case entity.Sales:
		return func(p, sku string) []entity.Record { return toRecords(ParseSales(p, sku)) }, nil
	case entity.Inventory:
		return func(p, _ string) []entity.Record { return toRecords(ParseInventory(p)) }, nil
	case entity.Movement:
		return func(p, sku string) []entity.Record { return toRecords(ParseMovements(p, sku)) }, nil
	case entity.Product:
		return func(p, _ string) []entity.Record { return toRecords(ParseProducts(p)) }, nil
	default:
		return nil, &entity.ConfigError{Reason: "unknown entity", Entity: kind.String()}
	}
}

// Parse is For followed by the call.
func Parse(kind entity.Kind, payload, skuFilter string) ([]entity.Record, error) {
	fn, err := For(kind)
	if err != nil {
		return nil, err
	}
	return fn(payload, skuFilter), nil
}

func toRecords[T entity.Record](in []T) []entity.Record {
	out := make([]entity.Record, len(in))
	for i, r := range in {
		out[i] = r
	}
	return out
}

// parseNumber accepts a finite decimal number and nothing else.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// isoDate turns the ERP's 2024.01.31 into 2024-01-31.
func isoDate(d string) string {
	return strings.ReplaceAll(d, ".", "-")
}
