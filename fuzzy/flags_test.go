package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMaskedFlags(t *testing.T) {
	tests := []struct {
		input string
		want  MaskedFlags
	}{
		{"", MaskedFlags{Value: 0, Mask: 0xffffffff}},
		{"0", MaskedFlags{Value: 0, Mask: 0xffffffff}},
		{"0x28", MaskedFlags{Value: 0x28, Mask: 0xffffffff}},
		{"0x20/0x60", MaskedFlags{Value: 0x20, Mask: 0x60}},
		{"render_target shader_resource", MaskedFlags{Value: 0x28, Mask: 0xffffffff}},
		{"+render_target -depth_stencil", MaskedFlags{Value: 0x20, Mask: 0x60}},
		{"+Shader_Resource", MaskedFlags{Value: 0x8, Mask: 0x8}},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseMaskedFlags(tc.input, BindFlagNames)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestParseMaskedFlagsErrors(t *testing.T) {
	for _, input := range []string{
		"render_target bogus",
		"+render_target -render_target",
		"0xzz",
		"0x20/60",
		"0x100000000",
	} {
		_, err := ParseMaskedFlags(input, BindFlagNames)
		require.Error(t, err, input)
	}
}

func TestMaskedFlagsMatches(t *testing.T) {
	m, err := ParseMaskedFlags("+render_target -depth_stencil", BindFlagNames)
	require.NoError(t, err)
	require.True(t, m.Matches(0x20))
	require.True(t, m.Matches(0x28))
	require.False(t, m.Matches(0x60))
	require.False(t, m.Matches(0x8))

	exact, err := ParseMaskedFlags("render_target", BindFlagNames)
	require.NoError(t, err)
	require.True(t, exact.Matches(0x20))
	require.False(t, exact.Matches(0x28))
}

func TestFlagNamesParseList(t *testing.T) {
	v, err := CPUAccessFlagNames.ParseList("read write")
	require.NoError(t, err)
	require.Equal(t, uint32(0x30000), v)

	v, err = MiscFlagNames.ParseList("")
	require.NoError(t, err)
	require.Zero(t, v)

	_, err = MiscFlagNames.ParseList("texturecube nonsense")
	require.Error(t, err)

	bit, ok := BindFlagNames.Lookup(" Depth_Stencil ")
	require.True(t, ok)
	require.Equal(t, uint32(0x40), bit)
}
