package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InputKind is the rendering/validation kind of a question.
type InputKind string

const (
	InputFreeText     InputKind = "free_text"
	InputHiddenText   InputKind = "hidden_text"
	InputSingleSelect InputKind = "single_select"
	InputButtonChoice InputKind = "button_choice"
)

// IsChoice reports whether the kind requires a non-empty options list.
func (k InputKind) IsChoice() bool {
	return k == InputSingleSelect || k == InputButtonChoice
}

// RuleAction is the configured action of a conditional rule.
type RuleAction string

const (
	ActionJumpToStep     RuleAction = "jump_to_step"
	ActionEndWithVariant RuleAction = "end_with_variant"
)

// ConditionalRule routes the flow after a branching-eligible answer.
//
// A rule matches either on TriggerValue (string equality against the given
// answer) or, when TriggerExpr is set instead, on a boolean expression
// evaluated against the whole answer trace.
type ConditionalRule struct {
	TriggerValue string     `bson:"trigger_value,omitempty" json:"trigger_value,omitempty"`
	TriggerExpr  string     `bson:"trigger_expr,omitempty" json:"trigger_expr,omitempty"`
	Action       RuleAction `bson:"action" json:"action"`
	TargetStep   int        `bson:"target_step,omitempty" json:"target_step,omitempty"`
	VariantKey   string     `bson:"variant_key,omitempty" json:"variant_key,omitempty"`
	// SuppressSubmission ends the flow with a success screen but without
	// persistence or external delivery (disqualified leads).
	SuppressSubmission bool `bson:"suppress_submission,omitempty" json:"suppress_submission,omitempty"`
}

// Question is one step of a tenant's form flow.
type Question struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Tenant      string             `bson:"tenant" json:"-"`
	Step        int                `bson:"step" json:"step"`
	Label       string             `bson:"question" json:"question"`
	Subtitle    string             `bson:"subtitle,omitempty" json:"subtitle,omitempty"`
	FieldName   string             `bson:"field_name" json:"field_name"`
	InputKind   InputKind          `bson:"input_type" json:"input_type"`
	Options     []string           `bson:"options,omitempty" json:"options,omitempty"`
	MaxLength   int                `bson:"max_length,omitempty" json:"max_length,omitempty"`
	Placeholder string             `bson:"input_placeholder,omitempty" json:"input_placeholder,omitempty"`
	Required    *bool              `bson:"required,omitempty" json:"required"`
	Conditional []ConditionalRule  `bson:"conditional_logic,omitempty" json:"conditional_logic,omitempty"`
}

// IsRequired defaults to true when the flag was never set.
func (q *Question) IsRequired() bool {
	return q.Required == nil || *q.Required
}

// HasOption reports whether value is one of the question's options.
func (q *Question) HasOption(value string) bool {
	for _, opt := range q.Options {
		if opt == value {
			return true
		}
	}
	return false
}
