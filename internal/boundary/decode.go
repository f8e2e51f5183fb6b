// Package boundary converts between the wire format and validated domain
// values: it decodes one transaction from raw JSON and renders exactly one
// JSON object per request, either a result or an error.
package boundary

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/opensource-finance/merlin/internal/features"
)

// DecodeRecord parses and validates one transaction. Only a zero-length
// input is empty; whitespace is reported as malformed JSON. Checks fail fast:
// every required field must be present before any value is inspected, and
// values are then checked in field order.
func DecodeRecord(raw []byte) (*domain.TransactionRecord, error) {
	if len(raw) == 0 {
		return nil, domain.NewError(domain.KindInputEmpty, "Empty input received")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, domain.WrapError(domain.KindInputMalformed, err, "Invalid JSON input: "+err.Error())
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, domain.NewError(domain.KindInputMalformed, "Invalid JSON input: unexpected data after JSON value")
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, domain.NewError(domain.KindInputMalformed, "Invalid JSON input: expected a JSON object")
	}

	for _, field := range domain.RequiredFields {
		if _, ok := obj[field]; !ok {
			return nil, domain.NewError(domain.KindInputFieldMissing, "Missing field: %s", field)
		}
	}

	rec := &domain.TransactionRecord{}

	amount, ok := positiveNumber(obj[domain.FieldAmount])
	if !ok {
		return nil, domain.NewError(domain.KindInputFieldInvalid, "Amount must be a positive number")
	}
	rec.Amount = amount

	day, ok := integer(obj[domain.FieldDay])
	if !ok || day < 1 || day > 31 {
		return nil, domain.NewError(domain.KindInputFieldInvalid, "Day must be an integer between 1 and 31")
	}
	rec.Day = int(day)

	var err error
	if rec.Type, err = category(obj, domain.FieldType, domain.TypeCategories); err != nil {
		return nil, err
	}
	if rec.PairCode, err = category(obj, domain.FieldPairCode, domain.PairCategories); err != nil {
		return nil, err
	}
	if rec.PartOfDay, err = category(obj, domain.FieldPartOfDay, domain.PartOfDayCategories); err != nil {
		return nil, err
	}

	return rec, nil
}

func positiveNumber(v any) (float64, bool) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	f, err := n.Float64()
	if err != nil || f <= 0 {
		return 0, false
	}
	return f, true
}

// integer accepts only integer literals; 15.0 and 1e1 are rejected.
func integer(v any) (int64, bool) {
	n, ok := v.(json.Number)
	if !ok || strings.ContainsAny(n.String(), ".eE") {
		return 0, false
	}
	i, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return i, true
}

func category(obj map[string]any, field string, categories []string) (string, error) {
	v := obj[field]
	s, ok := v.(string)
	if !ok || !features.Contains(categories, s) {
		return "", domain.NewError(domain.KindInputFieldInvalid, "Invalid %s: %s", field, display(v))
	}
	return s, nil
}

func display(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
