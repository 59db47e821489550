package erp

import (
	"regexp"
	"strconv"
	"strings"

	"erp-sync-service/internal/xmlscan"
)

const noMessage = "(no message)"

var prolog = regexp.MustCompile(`(?i)^<\?xml[^?]*\?>\s*`)

// Extract returns the <valasz> payload of a SOAP response. The ERP echoes its
// answer HTML-escaped inside <return>; one level is unescaped before reading
// the <hiba> status. An absent payload is an empty result, not an error.
func Extract(body string) (string, error) {
	ret, ok := xmlscan.Inner(body, "return")
	if !ok {
		return "", &ProtocolError{Reason: "no result element"}
	}

	inner := strings.TrimSpace(xmlscan.Unescape(ret))
	inner = prolog.ReplaceAllString(inner, "")

	if status := xmlscan.Text(inner, "hiba"); status != "" {
		code, err := strconv.Atoi(status)
		if err != nil {
			return "", &ProtocolError{Reason: "malformed status code " + strconv.Quote(status)}
		}
		if code != 0 {
			msg := xmlscan.Text(inner, "valasz")
			if msg == "" {
				msg = noMessage
			}
			return "", &UpstreamError{Code: code, Message: msg}
		}
	}

	payload, ok := xmlscan.Inner(inner, "valasz")
	if !ok {
		return "", nil
	}
	return strings.TrimSpace(payload), nil
}

// CountRows counts the row markers in a payload. The ERP reports no totals,
// so a page holding fewer rows than requested is the only end-of-data signal.
func CountRows(payload string) int {
	return xmlscan.Count(payload, "elem")
}
