package skills

import (
	"errors"
	"strings"
	"testing"
)

func TestCalculateSpokenOperators(t *testing.T) {
	cases := []struct {
		query string
		want  float64
	}{
		{"2 plus 3", 5},
		{"10 times 5", 50},
		{"20 divided by 4", 5},
		{"9 minus 12", -3},
		{"7 guna 6", 42},
		{"8 jod 2", 10},
		{"6 × 7", 42},
		{"(2 plus 3) times 4", 20},
		{"1.5 times 2", 3},
	}
	for _, tc := range cases {
		res := Calculate(tc.query)
		if !res.Success {
			t.Fatalf("%q: expected success, got %q", tc.query, res.Error)
		}
		if res.Result == nil || *res.Result != tc.want {
			t.Fatalf("%q: expected %v, got %v", tc.query, tc.want, res.Result)
		}
	}
}

func TestCalculateResponseText(t *testing.T) {
	res := Calculate("2 plus 3")
	want := "Bidu, calculation ho gaya! 2+3 ka result hai 5. Ekdum correct hai na? 😎"
	if res.Response != want {
		t.Fatalf("unexpected response %q", res.Response)
	}
	if res.Expression != "2+3" {
		t.Fatalf("unexpected expression %q", res.Expression)
	}
}

func TestCalculateDivisionByZero(t *testing.T) {
	res := Calculate("10 bhag 0")
	if res.Success {
		t.Fatalf("expected failure")
	}
	if !strings.Contains(res.Error, "division by zero") {
		t.Fatalf("unexpected error %q", res.Error)
	}
	if res.Response != calcFailureResponse {
		t.Fatalf("unexpected response %q", res.Response)
	}
}

func TestCalculateRejectsCode(t *testing.T) {
	for _, q := range []string{
		"__import__('os').system('ls')",
		"open('/etc/passwd').read()",
		"",
		"plus plus",
	} {
		res := Calculate(q)
		if res.Success {
			t.Fatalf("%q: expected failure, got %v", q, *res.Result)
		}
		if res.Response != calcFailureResponse {
			t.Fatalf("%q: unexpected response %q", q, res.Response)
		}
	}
}

func TestCalculateIsIdempotent(t *testing.T) {
	a := Calculate("12 times 12")
	b := Calculate("12 times 12")
	if a.Response != b.Response || *a.Result != *b.Result {
		t.Fatalf("results differ: %+v vs %+v", a, b)
	}
}

func TestCalculateZeroResultIsKept(t *testing.T) {
	res := Calculate("5 minus 5")
	if !res.Success || res.Result == nil || *res.Result != 0 {
		t.Fatalf("expected 0 result, got %+v", res)
	}
}

func TestEvaluatePrecedence(t *testing.T) {
	cases := map[string]float64{
		"2+3*4":   14,
		"(2+3)*4": 20,
		"-3+5":    2,
		"10/4":    2.5,
		"2*-3":    -6,
		"((1))":   1,
		"8-2-1":   5,
		"16/4/2":  2,
		" 1 + 1 ": 2,
		"--2":     2,
	}
	for expr, want := range cases {
		got, err := Evaluate(expr)
		if err != nil {
			t.Fatalf("%q: %v", expr, err)
		}
		if got != want {
			t.Fatalf("%q: expected %v, got %v", expr, want, got)
		}
	}
}

func TestEvaluateErrors(t *testing.T) {
	if _, err := Evaluate(""); !errors.Is(err, ErrEmptyExpression) {
		t.Fatalf("expected empty expression error, got %v", err)
	}
	if _, err := Evaluate("1/0"); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected division by zero, got %v", err)
	}
	var syn *SyntaxError
	for _, expr := range []string{"2+", "(2", "2)", "1..2", "()"} {
		if _, err := Evaluate(expr); !errors.As(err, &syn) {
			t.Fatalf("%q: expected syntax error, got %v", expr, err)
		}
	}
	if _, err := Evaluate(strings.Repeat("(", 1000) + "1" + strings.Repeat(")", 1000)); err == nil {
		t.Fatalf("expected nesting limit error")
	}
}

func TestFormatNumber(t *testing.T) {
	if got := FormatNumber(5); got != "5" {
		t.Fatalf("got %q", got)
	}
	if got := FormatNumber(2.5); got != "2.5" {
		t.Fatalf("got %q", got)
	}
	if got := FormatNumber(-3); got != "-3" {
		t.Fatalf("got %q", got)
	}
}
