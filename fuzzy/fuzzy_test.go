package fuzzy

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  Expr
	}{
		{"1024", Expr{Op: OpEqual, Value: 1024, Numerator: 1, Denominator: 1}},
		{">= width * 2 / 3", Expr{Op: OpGreaterEqual, FieldA: FieldWidth, Numerator: 2, Denominator: 3}},
		{"< 0x100", Expr{Op: OpLess, Value: 0x100, Numerator: 1, Denominator: 1}},
		{"!= height", Expr{Op: OpNotEqual, FieldA: FieldHeight, Numerator: 1, Denominator: 1}},
		{"! 4", Expr{Op: OpNotEqual, Value: 4, Numerator: 1, Denominator: 1}},
		{"<=res_width*res_height", Expr{Op: OpLessEqual, FieldA: FieldResWidth, FieldB: FieldResHeight, Numerator: 1, Denominator: 1}},
		{"> Width * Height * 4 / 2", Expr{Op: OpGreater, FieldA: FieldWidth, FieldB: FieldHeight, Numerator: 4, Denominator: 2}},
		{"== depth", Expr{Op: OpEqual, FieldA: FieldDepth, Numerator: 1, Denominator: 1}},
		{"= array / 6", Expr{Op: OpEqual, FieldA: FieldArray, Numerator: 1, Denominator: 6}},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, warnings, err := Parse(tc.input)
			require.NoError(t, err)
			require.Empty(t, warnings)
			if diff := cmp.Diff(tc.want, *got); diff != "" {
				t.Fatalf("Parse(%q) mismatch (-want +got):\n%s", tc.input, diff)
			}
		})
	}
}

func TestParseZeroDenominatorWarns(t *testing.T) {
	got, warnings, err := Parse("0x10/0x0")
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Equal(t, uint32(0x10), got.Value)
	require.Equal(t, uint32(1), got.Denominator)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		input     string
		remainder string
	}{
		{"1024 garbage", "garbage"},
		{">= width * 2 / 3 extra", "extra"},
		{"12x", "12x"},
		{"colour", "colour"},
		{"width * colour", "colour"},
		{">=", ""},
		{"width *", ""},
		{"4 / depth", "depth"},
		{"4 ; x", "; x"},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			_, _, err := Parse(tc.input)
			require.Error(t, err)
			var perr *ParseError
			require.True(t, errors.As(err, &perr))
			require.Equal(t, tc.input, perr.Input)
			require.Equal(t, tc.remainder, perr.Remainder)
		})
	}
}

func TestMatches(t *testing.T) {
	fields := Fields{Width: 1920, Height: 1080, Depth: 1, Array: 6, ResWidth: 3840, ResHeight: 2160}
	tests := []struct {
		input  string
		actual uint32
		want   bool
	}{
		{"1920", 1920, true},
		{"1920", 1921, false},
		{"width", 1920, true},
		{">= width * 2 / 3", 1280, true},
		{">= width * 2 / 3", 1279, false},
		{"< height", 1080, false},
		{"<= height", 1080, true},
		{"> array", 7, true},
		{"!= depth", 1, false},
		{"res_width / 2", 1920, true},
		{"width * height", 1920 * 1080, true},
		{"res_width * res_height", 0, false},
	}
	for _, tc := range tests {
		expr, _, err := Parse(tc.input)
		require.NoError(t, err, tc.input)
		require.Equal(t, tc.want, expr.Matches(tc.actual, fields), "%s against %d", tc.input, tc.actual)
	}

	var nilExpr *Expr
	require.True(t, nilExpr.Matches(12, fields))
	require.False(t, nilExpr.UsesFields())
	require.True(t, Literal(5).Matches(5, Fields{}))
}

func TestOperandDoesNotOverflow(t *testing.T) {
	expr, _, err := Parse("width * height * 4")
	require.NoError(t, err)
	big := Fields{Width: 1 << 16, Height: 1 << 16}
	require.Equal(t, uint64(1)<<34, expr.Operand(big))
	require.False(t, expr.Matches(0, big))
}

func TestExprString(t *testing.T) {
	expr, _, err := Parse(">= width * height * 2 / 3")
	require.NoError(t, err)
	require.Equal(t, ">= width * height * 2 / 3", expr.String())
	require.Equal(t, "= 7", Literal(7).String())
}
