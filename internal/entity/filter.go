package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// Filter narrows a sync. Dates use the ERP's YYYY.MM.DD form and are
// inclusive; an empty field leaves that dimension unfiltered.
type Filter struct {
	StartDate string `json:"start_date,omitempty" validate:"omitempty,datetime=2006.01.02"`
	EndDate   string `json:"end_date,omitempty" validate:"omitempty,datetime=2006.01.02"`
	SKU       string `json:"cikkszam,omitempty" validate:"max=64"`
}

// Normalize trims every field.
func (f Filter) Normalize() Filter {
	return Filter{
		StartDate: strings.TrimSpace(f.StartDate),
		EndDate:   strings.TrimSpace(f.EndDate),
		SKU:       strings.TrimSpace(f.SKU),
	}
}

func (f Filter) Equal(o Filter) bool {
	return f.Normalize() == o.Normalize()
}

func (f Filter) IsZero() bool {
	return f.Normalize() == Filter{}
}

// fingerprintInput fixes the key order of the hashed document.
type fingerprintInput struct {
	Entity    string `json:"entity"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	SKU       string `json:"cikkszam,omitempty"`
}

// Fingerprint is the hex SHA-256 of the entity name plus the normalized
// filter. It keys the sync state row and therefore the debounce lock.
func (f Filter) Fingerprint(k Kind) string {
	n := f.Normalize()
	b, _ := json.Marshal(fingerprintInput{
		Entity:    k.Name(),
		StartDate: n.StartDate,
		EndDate:   n.EndDate,
		SKU:       n.SKU,
	})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Params is the document stored alongside the state row for operators.
func (f Filter) Params(k Kind) json.RawMessage {
	n := f.Normalize()
	b, _ := json.Marshal(fingerprintInput{
		Entity:    k.Name(),
		StartDate: n.StartDate,
		EndDate:   n.EndDate,
		SKU:       n.SKU,
	})
	return b
}
