package services

import (
	"fmt"

	"github.com/expr-lang/expr"

	"formsevo/backend/internal/models"
)

// StepActionKind tags the evaluator's decision.
type StepActionKind string

const (
	StepAdvance   StepActionKind = "advance"
	StepJump      StepActionKind = "jump"
	StepTerminate StepActionKind = "terminate"
)

// StepAction is the typed outcome of evaluating a just-answered question:
// advance to the next step, jump to a specific step, or terminate the flow
// with a success variant (optionally suppressing the submission).
type StepAction struct {
	Kind       StepActionKind `json:"kind"`
	TargetStep int            `json:"target_step,omitempty"`
	VariantKey string         `json:"variant_key,omitempty"`
	Suppress   bool           `json:"suppress,omitempty"`
}

// DefaultVariantKey marks the unconditional terminal success screen.
const DefaultVariantKey = "default"

// IBranchEvaluator decides the next step after a branching-eligible answer.
type IBranchEvaluator interface {
	NextStep(question *models.Question, answered string, trace map[string]interface{}, currentStep, lastStep int) StepAction
	TerminalDecision(questions []models.Question, trace map[string]interface{}) StepAction
	CompileRule(rule *models.ConditionalRule) error
}

type branchEvaluator struct{}

// NewBranchEvaluator creates a new BranchEvaluator.
func NewBranchEvaluator() IBranchEvaluator {
	return &branchEvaluator{}
}

// NextStep scans the question's rules in order and applies the first match.
// Value rules compare the answered value against trigger_value; expression
// rules evaluate against the whole trace. With no match the flow advances to
// the next step, or terminates with the default variant when currentStep is
// the last step of the model.
//
// Duplicate trigger values are rejected at save time, but pre-existing data
// may still carry them: the first matching rule wins, always.
func (e *branchEvaluator) NextStep(question *models.Question, answered string, trace map[string]interface{}, currentStep, lastStep int) StepAction {
	for i := range question.Conditional {
		rule := &question.Conditional[i]
		if !e.ruleMatches(rule, answered, trace) {
			continue
		}
		switch rule.Action {
		case models.ActionJumpToStep:
			return StepAction{Kind: StepJump, TargetStep: rule.TargetStep}
		case models.ActionEndWithVariant:
			return StepAction{
				Kind:       StepTerminate,
				VariantKey: rule.VariantKey,
				Suppress:   rule.SuppressSubmission,
			}
		}
	}

	if currentStep >= lastStep {
		return StepAction{Kind: StepTerminate, VariantKey: DefaultVariantKey}
	}
	return StepAction{Kind: StepAdvance, TargetStep: currentStep + 1}
}

func (e *branchEvaluator) ruleMatches(rule *models.ConditionalRule, answered string, trace map[string]interface{}) bool {
	if rule.TriggerExpr != "" {
		ok, err := evaluateExpression(rule.TriggerExpr, trace)
		if err != nil {
			// A broken expression never matches; save-time compilation
			// should have caught it.
			return false
		}
		return ok
	}
	return rule.TriggerValue != "" && rule.TriggerValue == answered
}

// TerminalDecision replays the flow over a submitted trace and returns how
// it ended. The dispatcher uses this instead of trusting a client-sent
// suppress flag: a suppressed variant must suppress even for a client that
// posts anyway. The walk honors jumps and is bounded by the model size, so
// a cyclic jump configuration cannot loop.
func (e *branchEvaluator) TerminalDecision(questions []models.Question, trace map[string]interface{}) StepAction {
	if len(questions) == 0 {
		return StepAction{Kind: StepTerminate, VariantKey: DefaultVariantKey}
	}

	byStep := make(map[int]int, len(questions))
	for i := range questions {
		byStep[questions[i].Step] = i
	}
	lastStep := questions[len(questions)-1].Step

	idx := 0
	for hops := 0; hops <= len(questions); hops++ {
		q := &questions[idx]
		answered := ""
		if raw, ok := trace[q.FieldName]; ok && raw != nil {
			answered = stringify(raw)
		}

		action := e.NextStep(q, answered, trace, q.Step, lastStep)
		switch action.Kind {
		case StepTerminate:
			return action
		case StepJump:
			target, ok := byStep[action.TargetStep]
			if !ok {
				return StepAction{Kind: StepTerminate, VariantKey: DefaultVariantKey}
			}
			idx = target
		case StepAdvance:
			if idx+1 >= len(questions) {
				return StepAction{Kind: StepTerminate, VariantKey: DefaultVariantKey}
			}
			idx++
		}
	}
	return StepAction{Kind: StepTerminate, VariantKey: DefaultVariantKey}
}

// CompileRule verifies an expression rule compiles. Called at save time so
// evaluation never sees an uncompilable expression.
func (e *branchEvaluator) CompileRule(rule *models.ConditionalRule) error {
	if rule.TriggerExpr == "" {
		return nil
	}
	if _, err := expr.Compile(rule.TriggerExpr, expr.AsBool(), expr.AllowUndefinedVariables()); err != nil {
		return fmt.Errorf("invalid trigger expression %q: %w", rule.TriggerExpr, err)
	}
	return nil
}

func evaluateExpression(expression string, input map[string]interface{}) (bool, error) {
	program, err := expr.Compile(expression, expr.Env(input), expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return false, fmt.Errorf("failed to compile expression: %w", err)
	}
	output, err := expr.Run(program, input)
	if err != nil {
		return false, fmt.Errorf("failed to run expression: %w", err)
	}
	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return a boolean")
	}
	return result, nil
}
