package skills

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/harunnryd/voxrelay/pkg/llm"
	"github.com/harunnryd/voxrelay/pkg/redact"
)

const (
	SourceLocal     = "local_db"
	SourceGenerated = "tmdb_generated"

	movieNotFoundMessage = "Arre bidu, yeh movie apun ko pata nahi hai. Koi aur famous picture ka naam bolo na!"
)

// MovieLookup resolves a free-text movie name to a canonical title.
type MovieLookup interface {
	SearchTitle(ctx context.Context, name string) (title string, ok bool, err error)
}

// DialogueResult is the outcome of a dialogue request.
type DialogueResult struct {
	Found    bool   `json:"found"`
	Movie    string `json:"movie,omitempty"`
	Dialogue string `json:"dialogue,omitempty"`
	Source   string `json:"source,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Reply renders the result as the text spoken back to the caller.
func (r DialogueResult) Reply() string {
	if !r.Found {
		return r.Message
	}
	return FormatDialogue(r.Movie, r.Dialogue)
}

// FormatDialogue wraps a quotation in the fixed reply template.
func FormatDialogue(movie, dialogue string) string {
	return fmt.Sprintf("Arre boss! '%s' picture ka dialogue? Ekdum jhakas! \n\n🎭 \"%s\" 🎭\n\nBole toh, yeh dialogue hai dum ke saath! Kya bolti public? 😎", movie, dialogue)
}

type DialogueOption func(*DialogueSkill)

// WithMovies replaces the built-in movie table.
func WithMovies(movies []Movie) DialogueOption {
	return func(d *DialogueSkill) { d.movies = movies }
}

// WithPicker sets the function choosing a quotation index in [0, n).
func WithPicker(pick func(n int) int) DialogueOption {
	return func(d *DialogueSkill) {
		if pick != nil {
			d.pick = pick
		}
	}
}

func WithDialogueLogger(logger *slog.Logger) DialogueOption {
	return func(d *DialogueSkill) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// DialogueSkill answers movie dialogue requests from the built-in table, falling
// back to an external lookup plus one-shot generation when both are configured.
type DialogueSkill struct {
	movies    []Movie
	lookup    MovieLookup
	generator llm.Generator
	pick      func(n int) int
	logger    *slog.Logger
}

// NewDialogueSkill builds the skill. lookup and generator may be nil.
func NewDialogueSkill(lookup MovieLookup, generator llm.Generator, opts ...DialogueOption) *DialogueSkill {
	d := &DialogueSkill{
		movies:    builtinMovies,
		lookup:    lookup,
		generator: generator,
		pick:      rand.IntN,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Find resolves a movie name candidate to a dialogue. Lookup and generation
// failures are logged and treated as "no result".
func (d *DialogueSkill) Find(ctx context.Context, query string) DialogueResult {
	q := strings.ToLower(strings.TrimSpace(query))
	if m, ok := d.matchLocal(q); ok {
		return DialogueResult{
			Found:    true,
			Movie:    m.Title,
			Dialogue: m.Dialogues[d.pick(len(m.Dialogues))],
			Source:   SourceLocal,
		}
	}
	if d.lookup == nil {
		return notFound()
	}
	title, ok, err := d.lookup.SearchTitle(ctx, query)
	if err != nil {
		d.logger.Warn("movie_lookup_failed", slog.String("query", redact.Text(query)), slog.String("error", err.Error()))
		return notFound()
	}
	if !ok || d.generator == nil {
		return notFound()
	}
	dialogue, err := d.generator.Generate(ctx, dialoguePrompt(title))
	if err != nil {
		d.logger.Warn("dialogue_generation_failed", slog.String("movie", title), slog.String("error", err.Error()))
		return notFound()
	}
	dialogue = strings.TrimSpace(dialogue)
	if dialogue == "" {
		return notFound()
	}
	return DialogueResult{Found: true, Movie: title, Dialogue: dialogue, Source: SourceGenerated}
}

func (d *DialogueSkill) matchLocal(q string) (Movie, bool) {
	for _, m := range d.movies {
		if len(m.Dialogues) == 0 {
			continue
		}
		for _, alias := range m.Aliases {
			if alias != "" && strings.Contains(q, strings.ToLower(alias)) {
				return m, true
			}
		}
		if strings.Contains(q, strings.ToLower(m.Title)) {
			return m, true
		}
	}
	return Movie{}, false
}

func notFound() DialogueResult {
	return DialogueResult{Found: false, Message: movieNotFoundMessage}
}

func dialoguePrompt(title string) string {
	return "Movie: " + title + "\n\n" +
		"Mumbai tapori style mein iss movie ka ek famous dialogue ya quote batao.\n" +
		"Agar original dialogue nahi pata toh movie ke theme ke hisaab se ek tapori style dialogue create kar de.\n" +
		"Sirf dialogue return karo, koi extra explanation nahi chahiye."
}
