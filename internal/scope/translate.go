package scope

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Completer sends one prompt to the text-generation service and returns the
// content of the first choice.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Outcome classifies a translation attempt.
type Outcome int

const (
	// OutcomeEmpty means there was no condition text; nothing was requested.
	OutcomeEmpty Outcome = iota
	// OutcomeFailed means the service call or the response parse failed.
	OutcomeFailed
	// OutcomeTooBroad means a predicate was parsed but rejected by the breadth guard.
	OutcomeTooBroad
	// OutcomeAccepted means the predicate passed every check.
	OutcomeAccepted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEmpty:
		return "empty"
	case OutcomeFailed:
		return "failed"
	case OutcomeTooBroad:
		return "too_broad"
	case OutcomeAccepted:
		return "accepted"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Translation is the result of one Translate call.
type Translation struct {
	Outcome Outcome
	// Predicate is the parsed predicate. It is universal for OutcomeEmpty and
	// OutcomeFailed, and holds the rejected predicate for OutcomeTooBroad.
	Predicate Predicate
	// Err explains OutcomeFailed and OutcomeTooBroad.
	Err error
	// Response is the raw service content, kept for display.
	Response string
}

// Translator resolves condition text to a Predicate through a Completer.
type Translator struct {
	completer  Completer
	maxBreadth int
	log        zerolog.Logger
}

// NewTranslator returns a Translator. maxBreadth <= 0 selects DefaultMaxBreadth.
func NewTranslator(c Completer, maxBreadth int, log zerolog.Logger) *Translator {
	if maxBreadth <= 0 {
		maxBreadth = DefaultMaxBreadth
	}
	return &Translator{completer: c, maxBreadth: maxBreadth, log: log}
}

// MaxBreadth returns the group count at which filters are rejected.
func (t *Translator) MaxBreadth() int { return t.maxBreadth }

// Translate calls the service at most once. It never returns an error: failures
// are reported through the Outcome so the caller can fall back to universal
// scope.
func (t *Translator) Translate(ctx context.Context, text string) Translation {
	text = strings.TrimSpace(text)
	if text == "" {
		return Translation{Outcome: OutcomeEmpty}
	}

	start := time.Now()
	content, err := t.completer.Complete(ctx, BuildPrompt(text))
	if err != nil {
		t.log.Warn().Err(err).Dur("duration", time.Since(start)).Msg("condition translation request failed")
		return Translation{Outcome: OutcomeFailed, Err: err}
	}

	pred, err := Parse(content)
	if err != nil {
		t.log.Warn().Err(err).Str("response", content).Msg("generated SQL rejected")
		return Translation{Outcome: OutcomeFailed, Err: err, Response: content}
	}

	groups, _ := pred.Groups()
	if pred.TooBroad(t.maxBreadth) {
		t.log.Info().
			Strs("groups", groups).
			Int("max_breadth", t.maxBreadth).
			Msg("generated filter too broad")
		return Translation{
			Outcome:   OutcomeTooBroad,
			Predicate: pred,
			Err:       fmt.Errorf("%w: %d groups, limit %d", ErrTooBroad, len(groups), t.maxBreadth),
			Response:  content,
		}
	}

	t.log.Info().
		Strs("groups", groups).
		Str("filter", pred.Filter).
		Dur("duration", time.Since(start)).
		Msg("condition translated")
	return Translation{Outcome: OutcomeAccepted, Predicate: pred, Response: content}
}
