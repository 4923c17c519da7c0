package services

import (
	"fmt"
	"regexp"
	"strings"

	"formsevo/backend/internal/models"
)

// Submission payload hard limits. Payloads outside these bounds are rejected
// before any side effect.
const (
	MaxFieldValueLength = 1000
	MaxArrayEntries     = 50
	MaxArrayEntryLength = 500
	DefaultMaxFreeText  = 200
	MaxEmailLength      = 255
)

// FieldError describes one offending field of a rejected input.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries per-field detail for a rejected field or payload.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Field
	}
	return fmt.Sprintf("validation failed for fields: %s", strings.Join(names, ", "))
}

// IFieldValidator validates single field inputs and whole submission
// payloads. Pure and side-effect-free; never contacts external services.
type IFieldValidator interface {
	ValidateField(question *models.Question, raw string) error
	ValidatePayload(payload map[string]interface{}) error
}

type fieldValidator struct{}

// NewFieldValidator creates a new FieldValidator.
func NewFieldValidator() IFieldValidator {
	return &fieldValidator{}
}

// Brazilian mobile mask: 55 (DD) 9XXXX-XXXX, DDD in [11,99], first
// subscriber digit fixed at 9.
var phonePattern = regexp.MustCompile(`^55 \((1[1-9]|[2-9][0-9])\) 9[0-9]{4}-[0-9]{4}$`)

// Syntactic check only; deliverability is not this layer's concern.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Field-name substrings that switch on phone validation, checked
// case-insensitively and before the email inference.
var phoneFieldHints = []string{"whatsapp", "telefone"}

// ValidateField validates a single raw value against the question's rules.
// The rule set is inferred from the field name (phone, email) or falls back
// to the question's input kind.
func (v *fieldValidator) ValidateField(question *models.Question, raw string) error {
	value := strings.TrimSpace(raw)

	if value == "" {
		if question.IsRequired() {
			return &ValidationError{Fields: []FieldError{{
				Field:   question.FieldName,
				Message: "campo obrigatório",
			}}}
		}
		return nil
	}

	name := strings.ToLower(question.FieldName)

	for _, hint := range phoneFieldHints {
		if strings.Contains(name, hint) {
			if !phonePattern.MatchString(value) {
				return &ValidationError{Fields: []FieldError{{
					Field:   question.FieldName,
					Message: "telefone inválido, use o formato 55 (DD) 9XXXX-XXXX",
				}}}
			}
			return nil
		}
	}

	if strings.Contains(name, "email") || strings.Contains(name, "e-mail") {
		if len(value) > MaxEmailLength || !emailPattern.MatchString(value) {
			return &ValidationError{Fields: []FieldError{{
				Field:   question.FieldName,
				Message: "email inválido",
			}}}
		}
		return nil
	}

	if question.InputKind.IsChoice() {
		if !question.HasOption(value) {
			return &ValidationError{Fields: []FieldError{{
				Field:   question.FieldName,
				Message: "opção inválida",
			}}}
		}
		return nil
	}

	maxLen := question.MaxLength
	if maxLen <= 0 {
		maxLen = DefaultMaxFreeText
	}
	if len(value) > maxLen {
		return &ValidationError{Fields: []FieldError{{
			Field:   question.FieldName,
			Message: fmt.Sprintf("texto excede o limite de %d caracteres", maxLen),
		}}}
	}

	return nil
}

// ValidatePayload enforces the submission payload limits: string values up
// to 1000 chars, arrays up to 50 entries of up to 500 chars each. Returns a
// ValidationError listing every offending field.
func (v *fieldValidator) ValidatePayload(payload map[string]interface{}) error {
	var offending []FieldError

	for field, value := range payload {
		switch val := value.(type) {
		case nil, bool, float64, int, int64:
			// Scalars other than strings are always within bounds.
		case string:
			if len(val) > MaxFieldValueLength {
				offending = append(offending, FieldError{
					Field:   field,
					Message: fmt.Sprintf("valor excede %d caracteres", MaxFieldValueLength),
				})
			}
		case []interface{}:
			if len(val) > MaxArrayEntries {
				offending = append(offending, FieldError{
					Field:   field,
					Message: fmt.Sprintf("lista excede %d itens", MaxArrayEntries),
				})
				continue
			}
			for _, entry := range val {
				if s, ok := entry.(string); ok && len(s) > MaxArrayEntryLength {
					offending = append(offending, FieldError{
						Field:   field,
						Message: fmt.Sprintf("item da lista excede %d caracteres", MaxArrayEntryLength),
					})
					break
				}
			}
		case []string:
			if len(val) > MaxArrayEntries {
				offending = append(offending, FieldError{
					Field:   field,
					Message: fmt.Sprintf("lista excede %d itens", MaxArrayEntries),
				})
				continue
			}
			for _, s := range val {
				if len(s) > MaxArrayEntryLength {
					offending = append(offending, FieldError{
						Field:   field,
						Message: fmt.Sprintf("item da lista excede %d caracteres", MaxArrayEntryLength),
					})
					break
				}
			}
		default:
			offending = append(offending, FieldError{
				Field:   field,
				Message: "tipo de valor não suportado",
			})
		}
	}

	if len(offending) > 0 {
		return &ValidationError{Fields: offending}
	}
	return nil
}
