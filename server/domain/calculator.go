package domain

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"

	"socketcalc/utils"
)

// Replies for requests the calculator cannot evaluate. They are sent to the
// client as ordinary responses.
const (
	ReplyInvalidFormat       = "Error: Invalid expression format. Use 'operand1 operator operand2'"
	ReplyInvalidNumber       = "Error: Invalid numbers in expression"
	ReplyUnsupportedOperator = "Error: Unsupported operator"
	ReplyDivisionByZero      = "Error: Division by zero"
)

// Calculator evaluates "operand1 operator operand2" requests.
type Calculator struct{}

var _ Handler = Calculator{}

func (Calculator) Handle(ctx context.Context, request []byte) []byte {
	return []byte(Evaluate(string(request)))
}

// Evaluate computes a single binary expression and returns either the
// decimal result or one of the Reply* strings.
func Evaluate(expr string) string {
	parts := strings.Fields(expr)
	if len(parts) != 3 {
		return ReplyInvalidFormat
	}
	a, err := parseOperand(parts[0])
	if err != nil {
		return ReplyInvalidNumber
	}
	b, err := parseOperand(parts[2])
	if err != nil {
		return ReplyInvalidNumber
	}

	switch parts[1] {
	case "+":
		return FormatResult(a + b)
	case "-":
		return FormatResult(a - b)
	case "*":
		return FormatResult(a * b)
	case "/":
		if b == 0 {
			return ReplyDivisionByZero
		}
		return FormatResult(a / b)
	default:
		return ReplyUnsupportedOperator
	}
}

// parseOperand accepts decimal and exponent notation, digit underscores and
// the inf/nan literals with an optional sign. Magnitudes beyond float64
// saturate to an infinity instead of failing.
func parseOperand(s string) (float64, error) {
	unsigned := strings.TrimPrefix(strings.TrimPrefix(s, "+"), "-")
	if len(unsigned) == len(s)-1 && strings.EqualFold(unsigned, "nan") {
		return math.NaN(), nil
	}
	if strings.HasPrefix(unsigned, "0x") || strings.HasPrefix(unsigned, "0X") {
		return 0, strconv.ErrSyntax
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return f, nil
		}
		return 0, err
	}
	return f, nil
}

// FormatResult renders f with the shortest digits that round-trip. Integral
// values keep a ".0" suffix and very large or small magnitudes switch to
// exponent form, so 4 is "4.0" and 1e16 is "1e+16".
func FormatResult(f float64) string {
	if !utils.IsFinite(f) {
		switch {
		case math.IsNaN(f):
			return "nan"
		case f > 0:
			return "inf"
		default:
			return "-inf"
		}
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
