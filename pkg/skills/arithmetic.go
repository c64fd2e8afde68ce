package skills

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const calcFailureResponse = "Arre boss, apun ko samajh nahi aaya. Calculation clear se bolo na, jaise '2 plus 3' ya '10 times 5'."

// CalcResult is the outcome of one arithmetic request. Failures are carried as
// a spoken response, never as a Go error.
type CalcResult struct {
	Success    bool     `json:"success"`
	Expression string   `json:"expression,omitempty"`
	Result     *float64 `json:"result,omitempty"`
	Display    string   `json:"-"`
	Error      string   `json:"error,omitempty"`
	Response   string   `json:"response"`
}

// operatorWords are applied in order; multi-word forms come before their prefixes.
var operatorWords = []struct{ from, to string }{
	{"plus", "+"}, {"add", "+"}, {"jod", "+"},
	{"minus", "-"}, {"subtract", "-"}, {"ghata", "-"},
	{"times", "*"}, {"multiply", "*"}, {"guna", "*"},
	{"divided by", "/"}, {"divide", "/"}, {"bhag", "/"},
	{"×", "*"}, {"÷", "/"},
}

// NormalizeExpression lowercases the query, swaps operator words for symbols and
// drops every character outside 0-9 + - * / ( ) and '.'.
func NormalizeExpression(query string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	for _, w := range operatorWords {
		q = strings.ReplaceAll(q, w.from, w.to)
	}
	var b strings.Builder
	b.Grow(len(q))
	for i := 0; i < len(q); i++ {
		c := q[i]
		if isDigit(c) || strings.IndexByte("+-*/().", c) >= 0 {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Calculate normalizes and evaluates a spoken arithmetic query.
func Calculate(query string) CalcResult {
	expr := NormalizeExpression(query)
	v, err := Evaluate(expr)
	if err == nil && (math.IsInf(v, 0) || math.IsNaN(v)) {
		err = fmt.Errorf("result out of range")
	}
	if err != nil {
		return CalcResult{
			Success:    false,
			Expression: expr,
			Error:      err.Error(),
			Response:   calcFailureResponse,
		}
	}
	display := FormatNumber(v)
	return CalcResult{
		Success:    true,
		Expression: expr,
		Result:     &v,
		Display:    display,
		Response:   fmt.Sprintf("Bidu, calculation ho gaya! %s ka result hai %s. Ekdum correct hai na? 😎", expr, display),
	}
}

// FormatNumber prints integral values without a fractional part.
func FormatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
