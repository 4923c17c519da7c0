package services

import (
	"fmt"
	"strings"
)

// Answer-trace helpers shared by the dispatcher and the CRM payload builder.
// Fixed fields (name, phone, email) are located by field-name substring, the
// same inference the validator applies.

// UTM and click-tracking keys carried by the landing page. Split out of the
// dynamic fields and delivered as their own payload section.
var trackingKeys = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"gclid":        true,
	"fbclid":       true,
}

// IsTrackingKey reports whether a trace key is a UTM/click-tracking key.
func IsTrackingKey(key string) bool {
	return trackingKeys[strings.ToLower(key)]
}

// traceString returns the trace value for the first key containing any of
// the hints (case-insensitive), stringified.
func traceString(trace map[string]interface{}, hints ...string) string {
	for key, value := range trace {
		lower := strings.ToLower(key)
		for _, hint := range hints {
			if strings.Contains(lower, hint) {
				return stringify(value)
			}
		}
	}
	return ""
}

func stringify(value interface{}) string {
	if value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}

// TraceName extracts the lead's name from the trace.
func TraceName(trace map[string]interface{}) string {
	return traceString(trace, "nome", "name")
}

// TracePhone extracts the lead's phone from the trace, as entered.
func TracePhone(trace map[string]interface{}) string {
	return traceString(trace, "whatsapp", "telefone", "phone")
}

// TraceEmail extracts the lead's email from the trace.
func TraceEmail(trace map[string]interface{}) string {
	return traceString(trace, "email", "e-mail")
}
