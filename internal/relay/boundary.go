package relay

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"bookingrelay/internal/types"
)

// Reserved top-level request fields. Everything else is booking metadata.
const (
	fieldAmount   = "amount"
	fieldEmail    = "email"
	fieldMetadata = "metadata"
)

// Boundary collapses the accepted reservation encodings into a single
// ReservationRequest:
//
//	flat fields        {"amount": 100, "checkin": "2026-11-02"}
//	nested object      {"amount": 100, "metadata": {"checkin": "2026-11-02"}}
//	bracketed keys     amount=100&metadata[checkin]=2026-11-02
//
// Nested and bracketed values win over flat ones with the same key.
type Boundary struct {
	// CheckinKeys are the metadata keys searched, in order, for the check-in date.
	CheckinKeys []string
}

// FromJSON normalizes a decoded JSON object. Numbers are expected as
// json.Number so amounts keep their exact decimal text.
func (b Boundary) FromJSON(body map[string]any) (*types.ReservationRequest, error) {
	amount, err := parseAmount(body[fieldAmount])
	if err != nil {
		return nil, err
	}

	flat := map[string]string{}
	nested := map[string]string{}
	var email string

	for key, value := range body {
		switch {
		case key == fieldAmount:
			continue
		case key == fieldEmail:
			if email, err = emailValue(value); err != nil {
				return nil, err
			}
		case key == fieldMetadata:
			obj, ok := value.(map[string]any)
			if !ok {
				if value == nil {
					continue
				}
				return nil, invalidMetadata("metadata must be an object")
			}
			mergeEncoded(nested, obj)
		default:
			if inner, ok := bracketKey(key); ok {
				putEncoded(nested, inner, value)
				continue
			}
			putEncoded(flat, key, value)
		}
	}

	return b.build(amount, email, flat, nested), nil
}

// FromForm normalizes an application/x-www-form-urlencoded body. When a key
// repeats, its first value is used. A "metadata" field may carry a JSON object.
func (b Boundary) FromForm(form url.Values) (*types.ReservationRequest, error) {
	amount, err := parseAmount(form.Get(fieldAmount))
	if err != nil {
		return nil, err
	}

	flat := map[string]string{}
	nested := map[string]string{}
	email := strings.TrimSpace(form.Get(fieldEmail))

	for key, values := range form {
		if len(values) == 0 {
			continue
		}
		value := values[0]

		switch {
		case key == fieldAmount, key == fieldEmail:
			continue
		case key == fieldMetadata:
			var obj map[string]any
			dec := json.NewDecoder(strings.NewReader(value))
			dec.UseNumber()
			if err := dec.Decode(&obj); err != nil {
				return nil, invalidMetadata("metadata must be a JSON object")
			}
			mergeEncoded(nested, obj)
		default:
			if inner, ok := bracketKey(key); ok {
				nested[inner] = value
				continue
			}
			flat[key] = value
		}
	}

	return b.build(amount, email, flat, nested), nil
}

func (b Boundary) build(amount decimal.Decimal, email string, flat, nested map[string]string) *types.ReservationRequest {
	metadata := lo.Assign(flat, nested)

	if email == "" {
		email = strings.TrimSpace(metadata[fieldEmail])
	} else if _, ok := metadata[fieldEmail]; !ok {
		// Payment-intent events only see metadata, so the address must live there.
		metadata[fieldEmail] = email
	}

	req := &types.ReservationRequest{
		Amount:   amount,
		Email:    email,
		Metadata: metadata,
	}

	for _, key := range b.CheckinKeys {
		if v := strings.TrimSpace(metadata[key]); v != "" {
			req.CheckinDate = v
			break
		}
	}
	return req
}

// bracketKey extracts k from "metadata[k]".
func bracketKey(key string) (string, bool) {
	inner, ok := strings.CutPrefix(key, fieldMetadata+"[")
	if !ok {
		return "", false
	}
	inner, ok = strings.CutSuffix(inner, "]")
	if !ok || inner == "" {
		return "", false
	}
	return inner, true
}

func mergeEncoded(dst map[string]string, src map[string]any) {
	for k, v := range src {
		putEncoded(dst, k, v)
	}
}

// putEncoded stores v as a string. Nulls are dropped.
func putEncoded(dst map[string]string, key string, v any) {
	if s, ok := encodeValue(v); ok {
		dst[key] = s
	}
}

// encodeValue renders a decoded JSON value as metadata text: strings as-is,
// numbers and booleans in their literal form, arrays and objects as JSON.
func encodeValue(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		return string(raw), true
	}
}

func emailValue(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(t), nil
	default:
		return "", types.NewAppError(types.ErrCodeValidationInvalidEmail, "email must be a string", nil)
	}
}

func invalidMetadata(msg string) *types.AppError {
	return types.NewAppError(types.ErrCodeValidationInvalidMetadata, msg, nil)
}
