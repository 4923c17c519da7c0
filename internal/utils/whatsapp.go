package utils

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var nonDigits = regexp.MustCompile(`\D`)

// DigitsOnly strips everything but digits from a phone number string.
func DigitsOnly(phone string) string {
	return nonDigits.ReplaceAllString(phone, "")
}

// PhoneAsNumber converts a formatted phone into its digits as int64.
// Returns 0 when no digits are present or the value overflows.
func PhoneAsNumber(phone string) int64 {
	digits := DigitsOnly(phone)
	if digits == "" {
		return 0
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

var fieldPlaceholder = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// InterpolateTemplate replaces {field_name} placeholders with values from
// the answer trace. Unknown placeholders are replaced with an empty string.
func InterpolateTemplate(template string, trace map[string]interface{}) string {
	return fieldPlaceholder.ReplaceAllStringFunc(template, func(m string) string {
		key := fieldPlaceholder.FindStringSubmatch(m)[1]
		val, ok := trace[key]
		if !ok || val == nil {
			return ""
		}
		switch v := val.(type) {
		case string:
			return v
		case []string:
			return strings.Join(v, ", ")
		default:
			return fmt.Sprintf("%v", v)
		}
	})
}

// WhatsAppLink builds the wa.me handoff URL for a number and message
// template, interpolating {field_name} placeholders against the trace.
func WhatsAppLink(phone, template string, trace map[string]interface{}) string {
	digits := DigitsOnly(phone)
	if digits == "" {
		return ""
	}
	link := "https://wa.me/" + digits
	if template != "" {
		text := InterpolateTemplate(template, trace)
		link += "?text=" + url.QueryEscape(text)
	}
	return link
}
