// Package wizard implements the exam preparation dialog as a transition
// table over model.WizardStep.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/studibot/internal/i18n"
	"github.com/pavelanni/studibot/internal/model"
)

// ErrNotActive is returned when Step is called without a running wizard.
var ErrNotActive = errors.New("wizard not active")

// Explainer produces topic explanations.
type Explainer interface {
	Explain(ctx context.Context, req model.TopicRequest) (string, error)
}

// Result is the outcome of one wizard turn.
type Result struct {
	Text string
	// Wizard is the updated state, or nil once the wizard has finished.
	Wizard *model.WizardState
}

type inputKind int

const (
	inputText inputKind = iota
	inputEmpty
	inputNegative
	inputSingle
	inputMultiple
	inputRepeat
	inputAdvance
	inputFinish
)

func (k inputKind) String() string {
	return [...]string{"text", "empty", "negative", "single", "multiple", "repeat", "advance", "finish"}[k]
}

type turn struct {
	ctx context.Context
	w   *model.WizardState
	msg string
	ex  Explainer
}

type action func(t *turn) (string, error)

type edge struct {
	next model.WizardStep
	do   action
}

// table is the complete transition function. Skipping step 3 for a single
// or unknown topic is an ordinary edge from step 2 to step 4.
var table = map[model.WizardStep]map[inputKind]edge{
	model.StepModule: {
		inputEmpty:    {model.StepModule, reprompt("WizardModuleInvalid")},
		inputNegative: {model.StepModule, reprompt("WizardModuleInvalid")},
		inputText:     {model.StepTopics, setModule},
	},
	model.StepTopics: {
		inputEmpty:    {model.StepTopics, reprompt("WizardTopicsInvalid")},
		inputNegative: {model.StepMaterials, moduleAsTopic},
		inputSingle:   {model.StepMaterials, setTopics},
		inputMultiple: {model.StepOrder, setTopics},
	},
	model.StepOrder: {
		inputText: {model.StepMaterials, pickStart},
	},
	model.StepMaterials: {
		inputEmpty:    {model.StepQuestion, skipMaterials},
		inputNegative: {model.StepQuestion, skipMaterials},
		inputRepeat:   {model.StepQuestion, skipMaterials},
		inputText:     {model.StepQuestion, storeMaterials},
	},
	model.StepQuestion: {
		inputEmpty:    {model.StepFollowup, explainTopic},
		inputNegative: {model.StepFollowup, explainTopic},
		inputText:     {model.StepFollowup, answerQuestion},
	},
	model.StepFollowup: {
		inputAdvance: {model.StepMaterials, nextTopic},
		inputFinish:  {model.StepDone, finish},
		inputText:    {model.StepFollowup, answerQuestion},
	},
}

// classify maps a message to the input kinds its step distinguishes.
var classify = map[model.WizardStep]func(w *model.WizardState, msg string) inputKind{
	model.StepModule: func(_ *model.WizardState, msg string) inputKind {
		switch {
		case isBlank(msg):
			return inputEmpty
		case isNegative(msg):
			return inputNegative
		}
		return inputText
	},
	model.StepTopics: func(_ *model.WizardState, msg string) inputKind {
		switch topics := splitTopics(msg); {
		case len(topics) == 1:
			return inputSingle
		case len(topics) > 1:
			return inputMultiple
		case isNegative(msg):
			return inputNegative
		}
		return inputEmpty
	},
	model.StepOrder: func(*model.WizardState, string) inputKind {
		return inputText
	},
	model.StepMaterials: func(w *model.WizardState, msg string) inputKind {
		switch {
		case isBlank(msg):
			return inputEmpty
		case strings.EqualFold(strings.TrimSpace(msg), w.CurrentTopic()):
			return inputRepeat
		case isNegative(msg):
			return inputNegative
		}
		return inputText
	},
	model.StepQuestion: func(_ *model.WizardState, msg string) inputKind {
		switch {
		case isBlank(msg):
			return inputEmpty
		case isNegative(msg):
			return inputNegative
		}
		return inputText
	},
	model.StepFollowup: func(w *model.WizardState, msg string) inputKind {
		if !isAdvance(msg) {
			return inputText
		}
		if w.CurrentTopicIndex+1 < len(w.Topics) {
			return inputAdvance
		}
		return inputFinish
	},
}

// Start returns a fresh wizard and its opening question.
func Start(ctx context.Context) Result {
	return Result{Text: i18n.T(ctx, "WizardStart"), Wizard: model.NewWizardState()}
}

// Step feeds msg to the wizard. w is not modified; on error the caller
// keeps the previous state.
func Step(ctx context.Context, w *model.WizardState, msg string, ex Explainer) (Result, error) {
	if w == nil || !w.Active {
		return Result{}, ErrNotActive
	}
	edges, ok := table[w.Step]
	if !ok {
		return Result{}, fmt.Errorf("%w: step %d", ErrNotActive, w.Step)
	}
	kind := classify[w.Step](w, msg)
	e, ok := edges[kind]
	if !ok {
		return Result{}, fmt.Errorf("no transition from step %d on %s input", w.Step, kind)
	}

	t := &turn{ctx: ctx, w: w.Clone(), msg: strings.TrimSpace(msg), ex: ex}
	text, err := e.do(t)
	if err != nil {
		return Result{}, err
	}
	slog.Debug("wizard transition", "from", w.Step, "input", kind, "to", e.next)

	if e.next == model.StepDone {
		return Result{Text: text}, nil
	}
	t.w.Step = e.next
	return Result{Text: text, Wizard: t.w}, nil
}

func reprompt(msgID string) action {
	return func(t *turn) (string, error) {
		return i18n.T(t.ctx, msgID), nil
	}
}

func setModule(t *turn) (string, error) {
	t.w.Module = t.msg
	return i18n.Td(t.ctx, "WizardAskTopics", map[string]any{"Module": t.w.Module}), nil
}

func moduleAsTopic(t *turn) (string, error) {
	t.w.Topics = []string{t.w.Module}
	t.w.CurrentTopicIndex = 0
	return askMaterials(t), nil
}

func setTopics(t *turn) (string, error) {
	t.w.Topics = splitTopics(t.msg)
	t.w.CurrentTopicIndex = 0
	if len(t.w.Topics) == 1 {
		return askMaterials(t), nil
	}
	var list strings.Builder
	for i, topic := range t.w.Topics {
		if i > 0 {
			list.WriteByte('\n')
		}
		fmt.Fprintf(&list, "%d. %s", i+1, topic)
	}
	return i18n.Td(t.ctx, "WizardAskOrder", map[string]any{"Topics": list.String()}), nil
}

func pickStart(t *turn) (string, error) {
	i := chooseTopic(t.w.Topics, t.msg)
	t.w.Topics = moveToFront(t.w.Topics, i)
	t.w.CurrentTopicIndex = 0
	return askMaterials(t), nil
}

func askMaterials(t *turn) string {
	return i18n.Td(t.ctx, "WizardAskMaterials", map[string]any{"Topic": t.w.CurrentTopic()})
}

func skipMaterials(t *turn) (string, error) {
	delete(t.w.Materials, t.w.CurrentTopic())
	return askQuestion(t), nil
}

func storeMaterials(t *turn) (string, error) {
	t.w.Materials[t.w.CurrentTopic()] = t.msg
	return askQuestion(t), nil
}

func askQuestion(t *turn) string {
	return i18n.Td(t.ctx, "WizardAskQuestion", map[string]any{"Topic": t.w.CurrentTopic()})
}

// explainTopic gives a general walkthrough when the user has no question.
func explainTopic(t *turn) (string, error) {
	return explain(t, model.TopicRequest{Walkthrough: true})
}

func answerQuestion(t *turn) (string, error) {
	return explain(t, model.TopicRequest{Question: t.msg, IncludeExercises: wantsExercises(t.msg)})
}

func explain(t *turn, req model.TopicRequest) (string, error) {
	if t.ex == nil {
		return "", errors.New("no explainer configured")
	}
	topic := t.w.CurrentTopic()
	req.Module = t.w.Module
	req.Topic = topic
	req.Materials = t.w.Materials[topic]

	text, err := t.ex.Explain(t.ctx, req)
	if err != nil {
		return "", fmt.Errorf("explain %q: %w", topic, err)
	}
	return text + "\n\n" + i18n.Td(t.ctx, "WizardFollowupHint", map[string]any{"Topic": topic}), nil
}

func nextTopic(t *turn) (string, error) {
	t.w.CurrentTopicIndex++
	topic := t.w.CurrentTopic()
	return i18n.Td(t.ctx, "WizardNextTopic", map[string]any{"Topic": topic}) + "\n\n" + askMaterials(t), nil
}

func finish(t *turn) (string, error) {
	t.w.Active = false
	return i18n.Td(t.ctx, "WizardDone", map[string]any{"Module": t.w.Module}), nil
}
