package erp

import (
	"fmt"
	"strings"

	"erp-sync-service/internal/entity"
	"erp-sync-service/internal/xmlscan"
)

// Credentials identify the tenant on the ERP side.
type Credentials struct {
	CustomerCode string
	CompanyCode  string
	APIKey       string
}

// Relations are written already escaped; the fragment travels inside CDATA
// and the ERP unescapes it itself.
const (
	relGTE = "&gt;="
	relLTE = "&lt;="
	relEQ  = "="
)

func predicate(field, rel, value string) string {
	return "<szuro><mezo>" + field + "</mezo><relacio>" + rel + "</relacio><ertek>" + xmlscan.Escape(value) + "</ertek></szuro>"
}

// dateRange builds the predicates shared by the dated entities: an inclusive
// range on dateField and the exclusion of cancelled/deleted rows. A missing
// bound leaves that side of the range open.
func dateRange(dateField, excludeField string, f entity.Filter) string {
	var b strings.Builder
	if f.StartDate != "" {
		b.WriteString(predicate(dateField, relGTE, f.StartDate))
	}
	if f.EndDate != "" {
		b.WriteString(predicate(dateField, relLTE, f.EndDate))
	}
	b.WriteString(predicate(excludeField, relEQ, "0"))
	if f.SKU != "" {
		b.WriteString(predicate("cikksz", relEQ, f.SKU))
	}
	return b.String()
}

// BuildQuery renders the <leker> query fragment for one page.
func BuildQuery(kind entity.Kind, filter entity.Filter, page, limit int) (string, error) {
	f := filter.Normalize()
	head := fmt.Sprintf("<leker><limit>%d</limit><oldal>%d</oldal>", limit, page)

	switch kind {
	case entity.Sales:
		return head + "<szurok>" + dateRange("teljdat", "storno", f) + "</szurok><adatok><fej>I</fej></adatok></leker>", nil
	case entity.Movement:
		return head + "<szurok>" + dateRange("kelt", "torolt", f) + "</szurok><adatok><fej>I</fej></adatok></leker>", nil
	case entity.Inventory:
		if f.SKU == "" {
			return head + "</leker>", nil
		}
		return head + "<szurok>" + predicate("cikksz", relEQ, f.SKU) + "</szurok></leker>", nil
	case entity.Product:
		return head + "</leker>", nil
	default:
		return "", &entity.ConfigError{Reason: "unknown entity", Entity: kind.String()}
	}
}

const envelopeTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<SOAP-ENV:Envelope
  xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/"
  xmlns:ns1="urn://apiv3"
  xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"
  xmlns:xsd="http://www.w3.org/2001/XMLSchema">
  <SOAP-ENV:Body>
    <ns1:leker>
      <param0 xsi:type="xsd:string">%s</param0>
      <param1 xsi:type="xsd:string">%s</param1>
      <param2 xsi:type="xsd:string">%s</param2>
      <param3 xsi:type="xsd:string">%s</param3>
      <param4 xsi:type="xsd:string"><![CDATA[%s]]></param4>
    </ns1:leker>
  </SOAP-ENV:Body>
</SOAP-ENV:Envelope>`

// Envelope wraps a query fragment in the SOAP request body. The fragment is
// embedded verbatim in CDATA, not escaped a second time.
func Envelope(creds Credentials, entityName, query string) string {
	return fmt.Sprintf(envelopeTemplate,
		xmlscan.Escape(creds.CustomerCode),
		xmlscan.Escape(creds.CompanyCode),
		xmlscan.Escape(creds.APIKey),
		xmlscan.Escape(entityName),
		query,
	)
}
