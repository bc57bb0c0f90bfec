package input

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"

	"diophant/internal/model"
)

var (
	ErrBlank       = errors.New("please enter all values")
	ErrNotInteger  = errors.New("value must be an integer")
	ErrNonPositive = errors.New("values must be greater than 0")
	ErrTooLarge    = errors.New("values are too large to search")
)

// GeneHeadroom is how far mutation may push a gene past its initial bound
// before the equation value is allowed to leave the int64 range.
const GeneHeadroom = 1 << 20

// FieldNames lists the inputs in the order ParseFields expects them.
var FieldNames = [...]string{"a", "b", "c", "d", "y"}

// ValidationError reports a rejected input field. It is the only error kind
// surfaced before a search starts.
type ValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ParseFields converts the five raw text inputs (a, b, c, d, y) into
// coefficients. Blank fields are reported before any parse is attempted.
func ParseFields(a, b, c, d, y string) (model.Coefficients, error) {
	raw := [...]string{a, b, c, d, y}
	for i, v := range raw {
		if strings.TrimSpace(v) == "" {
			return model.Coefficients{}, &ValidationError{Field: FieldNames[i], Err: ErrBlank}
		}
	}

	var values [len(raw)]int64
	for i, v := range raw {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return model.Coefficients{}, &ValidationError{Field: FieldNames[i], Value: v, Err: ErrNotInteger}
		}
		values[i] = n
	}
	coeffs := model.Coefficients{A: values[0], B: values[1], C: values[2], D: values[3], Y: values[4]}
	if err := CheckPositive(coeffs); err != nil {
		return model.Coefficients{}, err
	}
	return coeffs, nil
}

// ParseArgs is ParseFields over a slice, as produced by a command line or a
// whitespace-separated line of text.
func ParseArgs(args []string) (model.Coefficients, error) {
	if len(args) != len(FieldNames) {
		return model.Coefficients{}, &ValidationError{Err: fmt.Errorf("%w: expected %d values, got %d", ErrBlank, len(FieldNames), len(args))}
	}
	return ParseFields(args[0], args[1], args[2], args[3], args[4])
}

// CheckPositive rejects any coefficient or target <= 0, and inputs whose
// equation value (a+b+c+d) * (y/2 + GeneHeadroom) + y does not fit in int64.
func CheckPositive(coeffs model.Coefficients) error {
	values := [...]int64{coeffs.A, coeffs.B, coeffs.C, coeffs.D, coeffs.Y}
	for i, v := range values {
		if v <= 0 {
			return &ValidationError{Field: FieldNames[i], Value: strconv.FormatInt(v, 10), Err: ErrNonPositive}
		}
	}
	if !fitsSearchRange(coeffs) {
		return &ValidationError{Field: "y", Value: strconv.FormatInt(coeffs.Y, 10), Err: ErrTooLarge}
	}
	return nil
}

func fitsSearchRange(coeffs model.Coefficients) bool {
	var sum, carry uint64
	for _, w := range coeffs.Weights() {
		sum, carry = bits.Add64(sum, uint64(w), 0)
		if carry != 0 {
			return false
		}
	}
	hi, lo := bits.Mul64(sum, uint64(coeffs.Y/2)+GeneHeadroom)
	if hi != 0 {
		return false
	}
	total, carry := bits.Add64(lo, uint64(coeffs.Y), 0)
	return carry == 0 && total <= math.MaxInt64
}

// FormatResult renders a solution the way the interactive front end shows it.
func FormatResult(solution model.Chromosome, deviation int64) string {
	var sb strings.Builder
	for i, gene := range solution {
		fmt.Fprintf(&sb, "x%d = %d\n", i+1, gene)
	}
	fmt.Fprintf(&sb, "Deviation = %d", deviation)
	return sb.String()
}
