package skills

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/harunnryd/voxrelay/pkg/events"
)

// Route is the reply path chosen for a turn.
type Route int

const (
	RouteChat Route = iota
	RouteArithmetic
	RouteDialogue
)

func (r Route) String() string {
	switch r {
	case RouteArithmetic:
		return "arithmetic"
	case RouteDialogue:
		return "dialogue"
	default:
		return "chat"
	}
}

// Classification is the router's decision for one transcript.
type Classification struct {
	Route      Route
	Expression string
	MovieName  string
}

var arithmeticKeywords = []string{
	"calculate", "calculation", "math", "add", "plus", "jod", "sum",
	"subtract", "minus", "ghata", "difference",
	"multiply", "times", "guna", "product",
	"divide", "divided by", "bhag", "quotient",
	"equal", "result", "answer", "kitna", "kya hota hai",
}

var operatorSymbols = []string{"+", "-", "*", "/", "×", "÷"}

var movieKeywords = []string{"dialogue", "dialog", "line", "quote", "movie", "film", "picture", "suna", "batao", "bolo"}

var movieStopWords = map[string]struct{}{
	"ka": {}, "ki": {}, "ke": {}, "se": {}, "me": {}, "mein": {},
	"dialogue": {}, "dialog": {}, "movie": {}, "film": {}, "picture": {},
	"suna": {}, "batao": {}, "bolo": {}, "famous": {}, "best": {},
}

// Classify picks the reply path for a finalized transcript. Arithmetic is
// checked before dialogue; anything else is general chat.
func Classify(transcript string) Classification {
	if IsArithmetic(transcript) {
		return Classification{Route: RouteArithmetic, Expression: transcript}
	}
	if name, ok := MovieName(transcript); ok {
		return Classification{Route: RouteDialogue, MovieName: name}
	}
	return Classification{Route: RouteChat}
}

// IsArithmetic reports whether the transcript has a digit plus an arithmetic
// keyword, or any raw operator symbol.
func IsArithmetic(transcript string) bool {
	q := strings.ToLower(transcript)
	for _, op := range operatorSymbols {
		if strings.Contains(q, op) {
			return true
		}
	}
	if !strings.ContainsFunc(q, isASCIIDigit) {
		return false
	}
	return containsAny(q, arithmeticKeywords)
}

// MovieName extracts a movie name candidate when the transcript mentions a
// movie keyword. Stop words and words of two characters or fewer are dropped.
func MovieName(transcript string) (string, bool) {
	if !containsAny(strings.ToLower(transcript), movieKeywords) {
		return "", false
	}
	var kept []string
	for _, w := range strings.Fields(transcript) {
		if _, stop := movieStopWords[strings.ToLower(w)]; stop {
			continue
		}
		if len([]rune(w)) <= 2 {
			continue
		}
		kept = append(kept, w)
	}
	if len(kept) == 0 {
		return "", false
	}
	return strings.Join(kept, " "), true
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func isASCIIDigit(r rune) bool { return r >= '0' && r <= '9' }

// Outcome is the result of dispatching one transcript.
type Outcome struct {
	Classification
	// Handled is true when a skill produced Reply; false means general chat.
	Handled bool
	Reply   string
}

// Router runs the local skills for a session.
type Router struct {
	dialogue *DialogueSkill
	logger   *slog.Logger
}

func NewRouter(dialogue *DialogueSkill, logger *slog.Logger) *Router {
	if dialogue == nil {
		dialogue = NewDialogueSkill(nil, nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{dialogue: dialogue, logger: logger}
}

// Dispatch classifies the transcript and, for skill routes, announces the skill
// to the caller and runs it. The returned error is only ever an emit failure.
func (r *Router) Dispatch(ctx context.Context, transcript string, emit events.Emitter) (Outcome, error) {
	c := Classify(transcript)
	out := Outcome{Classification: c}
	switch c.Route {
	case RouteArithmetic:
		if err := emit.Emit(events.CalculationSkillActivated(c.Expression)); err != nil {
			return out, fmt.Errorf("emit calculation activation: %w", err)
		}
		res := Calculate(c.Expression)
		if !res.Success {
			r.logger.Info("calculation_failed", slog.String("expression", res.Expression), slog.String("error", res.Error))
		}
		out.Handled = true
		out.Reply = res.Response
	case RouteDialogue:
		if err := emit.Emit(events.MovieSkillActivated(c.MovieName)); err != nil {
			return out, fmt.Errorf("emit movie activation: %w", err)
		}
		res := r.dialogue.Find(ctx, c.MovieName)
		r.logger.Info("movie_dialogue", slog.String("movie", c.MovieName), slog.Bool("found", res.Found), slog.String("source", res.Source))
		out.Handled = true
		out.Reply = res.Reply()
	}
	return out, nil
}
