package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Direction of a warehouse movement as the ERP encodes it.
const (
	Inbound  = "B"
	Outbound = "K"
)

// WarehouseCount is the number of per-warehouse availability columns the ERP reports.
const WarehouseCount = 6

// Record is implemented by the four record shapes only.
type Record interface {
	Kind() Kind
	Key() string
}

type SalesRecord struct {
	FulfillmentDate string  `json:"fulfillment_date"`
	SKU             string  `json:"sku"`
	Quantity        float64 `json:"quantity"`
	NetPrice        float64 `json:"net_price"`
	VATPercent      float64 `json:"vat_pct"`
	GrossPrice      float64 `json:"gross_price"`
	NetValue        float64 `json:"net_value"`
	GrossValue      float64 `json:"gross_value"`
	IsStorno        bool    `json:"is_storno"`
	RawHash         string  `json:"raw_xml_hash"`
}

func (SalesRecord) Kind() Kind { return Sales }
func (r SalesRecord) Key() string { return r.RawHash }

type InventoryRecord struct {
	SKU            string                  `json:"sku"`
	Warehouses     [WarehouseCount]float64 `json:"warehouses"`
	TotalAvailable float64                 `json:"total_available"`
}

func (InventoryRecord) Kind() Kind { return Inventory }
func (r InventoryRecord) Key() string { return r.SKU }

type MovementRecord struct {
	MovementDate string  `json:"movement_date"`
	SKU          string  `json:"sku"`
	Direction    string  `json:"direction"`
	MovementType string  `json:"movement_type"`
	Quantity     float64 `json:"quantity"`
	RawHash      string  `json:"raw_xml_hash"`
}

func (MovementRecord) Kind() Kind { return Movement }
func (r MovementRecord) Key() string { return r.RawHash }

type ProductRecord struct {
	SKU          string `json:"sku"`
	Name         string `json:"name"`
	Category     string `json:"category"`
	Manufacturer string `json:"manufacturer"`
	Unit         string `json:"unit"`
	Active       bool   `json:"active"`
}

func (ProductRecord) Kind() Kind { return Product }
func (r ProductRecord) Key() string { return r.SKU }

// FormatNumber renders a quantity or price the way it enters a dedup hash:
// shortest decimal form, no exponent, no trailing zeros.
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// RowHash is the hex SHA-256 of the pipe-joined parts.
func RowHash(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
