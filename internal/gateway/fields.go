package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// The gateway does not pin its response schema. These tables list, in order,
// every field path known to carry a value; the first non-empty match wins.
var (
	TransactionIDFields = []string{"id", "identifier", "transactionId", "transaction_id", "reference_id"}

	// CodeTextFields hold the Pix copy-and-paste payload.
	CodeTextFields = []string{
		"pix.copiaECola",
		"pix.copy_paste",
		"pix.copyPaste",
		"pix.emv",
		"pix.qrcode",
		"pixCopyPaste",
		"qrCodeText",
		"pix.qr_code",
		"pix.qrCode",
		"pix.qr",
		"pixCode",
		"qrCode",
		"pix_code",
	}

	StatusFields = []string{"status", "state"}

	RefusedReasonFields = []string{"refusedReason.description", "refusedReason.message", "refusedReason", "message", "error"}

	PaidAtFields = []string{"paid_at", "paidAt", "transaction_date"}
)

// document is a decoded JSON object.
type document map[string]interface{}

func decodeDocument(body []byte) (document, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.New("response body is null")
	}
	return doc, nil
}

// lookup follows a dotted path and returns the value as a string. Non-scalar
// values yield "".
func (d document) lookup(path string) string {
	var current interface{} = map[string]interface{}(d)
	for _, key := range strings.Split(path, ".") {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return ""
		}
		current, ok = obj[key]
		if !ok {
			return ""
		}
	}
	switch v := current.(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// probe returns the first non-empty value among paths.
func (d document) probe(paths []string) string {
	for _, path := range paths {
		if v := d.lookup(path); v != "" {
			return v
		}
	}
	return ""
}

// unwrap returns the "data" envelope when present.
func (d document) unwrap() document {
	if inner, ok := d["data"].(map[string]interface{}); ok {
		return document(inner)
	}
	return d
}
