package input

import (
	"errors"
	"math"
	"testing"

	"diophant/internal/model"
)

func TestParseFields(t *testing.T) {
	cases := []struct {
		name      string
		fields    [5]string
		want      model.Coefficients
		wantErr   error
		wantField string
	}{
		{name: "valid", fields: [5]string{"1", "2", "3", "4", "30"}, want: model.Coefficients{A: 1, B: 2, C: 3, D: 4, Y: 30}},
		{name: "trims whitespace", fields: [5]string{" 2 ", "3", "5\t", "7", " 1"}, want: model.Coefficients{A: 2, B: 3, C: 5, D: 7, Y: 1}},
		{name: "blank", fields: [5]string{"1", "", "3", "4", "5"}, wantErr: ErrBlank, wantField: "b"},
		{name: "whitespace only", fields: [5]string{"1", "2", "3", "4", "   "}, wantErr: ErrBlank, wantField: "y"},
		{name: "blank wins over parse", fields: [5]string{"x", "2", "3", "", "5"}, wantErr: ErrBlank, wantField: "d"},
		{name: "not an integer", fields: [5]string{"1", "2.5", "3", "4", "5"}, wantErr: ErrNotInteger, wantField: "b"},
		{name: "overflow", fields: [5]string{"1", "2", "3", "4", "99999999999999999999"}, wantErr: ErrNotInteger, wantField: "y"},
		{name: "zero", fields: [5]string{"0", "2", "3", "4", "5"}, wantErr: ErrNonPositive, wantField: "a"},
		{name: "negative target", fields: [5]string{"1", "2", "3", "4", "-5"}, wantErr: ErrNonPositive, wantField: "y"},
		{name: "equation exceeds int64", fields: [5]string{"10", "10", "10", "10", "4000000000000000000"}, wantErr: ErrTooLarge, wantField: "y"},
		{name: "coefficient sum exceeds int64", fields: [5]string{"9223372036854775807", "1", "1", "1", "4"}, wantErr: ErrTooLarge, wantField: "y"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseFields(tc.fields[0], tc.fields[1], tc.fields[2], tc.fields[3], tc.fields[4])
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got != tc.want {
					t.Fatalf("got %+v want %+v", got, tc.want)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if verr.Field != tc.wantField {
				t.Fatalf("field=%q want %q", verr.Field, tc.wantField)
			}
		})
	}
}

func TestParseArgsRequiresFiveValues(t *testing.T) {
	if _, err := ParseArgs([]string{"1", "2", "3"}); !errors.Is(err, ErrBlank) {
		t.Fatalf("expected ErrBlank, got %v", err)
	}
	coeffs, err := ParseArgs([]string{"1", "1", "1", "1", "4"})
	if err != nil {
		t.Fatalf("parse args: %v", err)
	}
	if coeffs.Y != 4 {
		t.Fatalf("unexpected coefficients: %+v", coeffs)
	}
}

func TestFormatResult(t *testing.T) {
	got := FormatResult(model.Chromosome{1, 2, 3, 4}, 0)
	want := "x1 = 1\nx2 = 2\nx3 = 3\nx4 = 4\nDeviation = 0"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestCheckPositiveRangeLimit(t *testing.T) {
	// With a+b+c+d = 4 the equation value is at most 3y + 4*GeneHeadroom.
	yMax := int64((math.MaxInt64 - 4*GeneHeadroom) / 3)
	if err := CheckPositive(model.Coefficients{A: 1, B: 1, C: 1, D: 1, Y: yMax}); err != nil {
		t.Fatalf("y=%d at the limit must pass: %v", yMax, err)
	}
	if err := CheckPositive(model.Coefficients{A: 1, B: 1, C: 1, D: 1, Y: yMax + 3}); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("y=%d past the limit: expected ErrTooLarge, got %v", yMax+3, err)
	}
	if err := CheckPositive(model.Coefficients{A: 1, B: 1, C: 1, D: 1, Y: math.MaxInt64}); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}
