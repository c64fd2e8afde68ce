package skills

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/harunnryd/voxrelay/pkg/llm"
)

type fakeLookup struct {
	titles map[string]string
	err    error
	calls  int
}

func (f *fakeLookup) SearchTitle(_ context.Context, name string) (string, bool, error) {
	f.calls++
	if f.err != nil {
		return "", false, f.err
	}
	title, ok := f.titles[name]
	return title, ok, nil
}

func first(int) int { return 0 }

func TestFindLocalMovie(t *testing.T) {
	lookup := &fakeLookup{}
	d := NewDialogueSkill(lookup, nil, WithPicker(first))
	res := d.Find(context.Background(), "sholay dialogue")
	if !res.Found || res.Movie != "Sholay" || res.Source != SourceLocal {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Dialogue != "Kitne aadmi the?" {
		t.Fatalf("unexpected dialogue %q", res.Dialogue)
	}
	if lookup.calls != 0 {
		t.Fatalf("local hit must not call lookup")
	}
}

func TestFindLocalDialogueComesFromTable(t *testing.T) {
	d := NewDialogueSkill(nil, nil)
	var sholay Movie
	for _, m := range BuiltinMovies() {
		if m.Title == "Sholay" {
			sholay = m
		}
	}
	for i := 0; i < 20; i++ {
		res := d.Find(context.Background(), "SHOLAY")
		found := false
		for _, line := range sholay.Dialogues {
			if line == res.Dialogue {
				found = true
			}
		}
		if !found {
			t.Fatalf("dialogue %q not in table", res.Dialogue)
		}
	}
}

func TestFindUnknownWithoutLookup(t *testing.T) {
	res := NewDialogueSkill(nil, nil).Find(context.Background(), "Some Unknown Film")
	if res.Found {
		t.Fatalf("expected not found")
	}
	if res.Reply() != movieNotFoundMessage {
		t.Fatalf("unexpected reply %q", res.Reply())
	}
}

func TestFindGeneratesForLookupHit(t *testing.T) {
	lookup := &fakeLookup{titles: map[string]string{"Lagaan": "Lagaan: Once Upon a Time in India"}}
	var prompt string
	gen := llm.GeneratorFunc(func(_ context.Context, p string) (string, error) {
		prompt = p
		return "  Chale chalo!  ", nil
	})
	res := NewDialogueSkill(lookup, gen).Find(context.Background(), "Lagaan")
	if !res.Found || res.Source != SourceGenerated {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Movie != "Lagaan: Once Upon a Time in India" || res.Dialogue != "Chale chalo!" {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.HasPrefix(prompt, "Movie: Lagaan: Once Upon a Time in India\n") {
		t.Fatalf("unexpected prompt %q", prompt)
	}
}

func TestFindFallsBackOnFailures(t *testing.T) {
	ok := llm.GeneratorFunc(func(context.Context, string) (string, error) { return "line", nil })
	failing := llm.GeneratorFunc(func(context.Context, string) (string, error) { return "", errors.New("quota") })
	empty := llm.GeneratorFunc(func(context.Context, string) (string, error) { return "   ", nil })
	hit := map[string]string{"Lagaan": "Lagaan"}

	cases := []struct {
		name   string
		lookup *fakeLookup
		gen    llm.Generator
	}{
		{"lookup error", &fakeLookup{err: errors.New("timeout")}, ok},
		{"lookup miss", &fakeLookup{titles: map[string]string{}}, ok},
		{"no generator", &fakeLookup{titles: hit}, nil},
		{"generator error", &fakeLookup{titles: hit}, failing},
		{"empty generation", &fakeLookup{titles: hit}, empty},
	}
	for _, tc := range cases {
		res := NewDialogueSkill(tc.lookup, tc.gen).Find(context.Background(), "Lagaan")
		if res.Found || res.Message != movieNotFoundMessage {
			t.Fatalf("%s: unexpected result %+v", tc.name, res)
		}
	}
}

func TestFormatDialogue(t *testing.T) {
	got := FormatDialogue("Don", "Main hoon Don!")
	want := "Arre boss! 'Don' picture ka dialogue? Ekdum jhakas! \n\n🎭 \"Main hoon Don!\" 🎭\n\nBole toh, yeh dialogue hai dum ke saath! Kya bolti public? 😎"
	if got != want {
		t.Fatalf("unexpected text %q", got)
	}
}
