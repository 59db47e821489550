package entity

// Kind identifies one of the ERP entities this service mirrors.
type Kind int

const (
	Sales Kind = iota + 1
	Inventory
	Movement
	Product
)

// Kinds lists every entity in the order a full backfill loads them:
// snapshots first so dated rows can be joined against them.
var Kinds = []Kind{Product, Inventory, Sales, Movement}

var kindNames = map[Kind]string{
	Sales:     "kimeno_szamla",
	Inventory: "keszlet",
	Movement:  "raktari_mozgas",
	Product:   "cikk",
}

var kindTables = map[Kind]string{
	Sales:     "sales_invoice_lines",
	Inventory: "inventory_snapshot",
	Movement:  "warehouse_movements",
	Product:   "products",
}

// ParseKind resolves the upstream entity name.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, &ConfigError{Reason: "unknown entity", Entity: name}
}

// Name is the entity name the ERP API and the state tables use.
func (k Kind) Name() string {
	return kindNames[k]
}

// Table is the relational table the entity's records land in.
func (k Kind) Table() string {
	return kindTables[k]
}

func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// Dated reports whether the entity has a date dimension. Snapshot entities
// (inventory, products) are fully replaced per SKU on every sync.
func (k Kind) Dated() bool {
	return k == Sales || k == Movement
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}
