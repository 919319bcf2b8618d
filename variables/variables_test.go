package variables

import (
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	flags, rest := ParseFlags("persist  global $y")
	require.True(t, flags.Has(FlagGlobal|FlagPersist))
	require.Equal(t, "$y", rest)

	flags, rest = ParseFlags("local $z")
	require.Zero(t, flags)
	require.Equal(t, "local $z", rest)
	require.Equal(t, "global persist", (FlagGlobal | FlagPersist).String())
}

func TestDeclareAndLookup(t *testing.T) {
	table := NewTable()
	global, err := table.Declare("$X", "", FlagGlobal, 1)
	require.NoError(t, err)
	require.Equal(t, "$x", global.Name)

	local, err := table.Declare("x", `mods\a.ini`, FlagGlobal, 2)
	require.NoError(t, err)
	require.Equal(t, `$\mods\a.ini\x`, local.Name)

	got, ok := table.Lookup("$x", `mods\a.ini`)
	require.True(t, ok)
	require.Same(t, local, got)

	got, ok = table.Lookup("$x", `mods\b.ini`)
	require.True(t, ok)
	require.Same(t, global, got)

	got, ok = table.Lookup(`$\MODS\a.ini\X`, "")
	require.True(t, ok)
	require.Same(t, local, got)

	_, ok = table.Lookup("$missing", "")
	require.False(t, ok)
}

func TestDeclareRejectsInvalidAndDuplicateNames(t *testing.T) {
	table := NewTable()
	_, err := table.Declare("$1abc", "", 0, 0)
	require.ErrorIs(t, err, ErrInvalidName)

	first, err := table.Declare("a", "", 0, 1)
	require.NoError(t, err)
	again, err := table.Declare("$A", "", FlagPersist, 5)
	require.ErrorIs(t, err, ErrRedeclared)
	require.Same(t, first, again)
	require.Equal(t, float32(1), again.Value)
	require.Empty(t, table.Persisted())
}

func TestSplitNamespaced(t *testing.T) {
	ns, name, ok := SplitNamespaced(`$\mods\sub\a.ini\value`)
	require.True(t, ok)
	require.Equal(t, `mods\sub\a.ini`, ns)
	require.Equal(t, "value", name)

	_, name, ok = SplitNamespaced("$plain")
	require.False(t, ok)
	require.Equal(t, "plain", name)

	_, _, ok = SplitNamespaced(`$\broken\`)
	require.False(t, ok)
}

func TestSetMarksPersistedValuesDirty(t *testing.T) {
	table := NewTable()
	plain, _ := table.Declare("a", "", 0, 0)
	kept, _ := table.Declare("b", "", FlagPersist, 0)

	table.Set(plain, 3)
	require.Zero(t, table.Dirty())
	table.Set(kept, 0)
	require.Zero(t, table.Dirty())
	table.Set(kept, 4)
	require.Equal(t, DirtyValues, table.Dirty())
}

func TestParams(t *testing.T) {
	table := NewTable()
	require.Zero(t, table.Param(3, 1))
	table.SetParam(3, 1, 7)
	require.Equal(t, 4, table.ParamCount())
	require.Equal(t, float32(7), table.Param(3, 1))
	table.SetParam(0, 4, 1)
	require.Zero(t, table.Param(0, 0))
}

func TestSaveWritesPersistedValuesOnly(t *testing.T) {
	table := NewTable()
	_, err := table.Declare("x", "", FlagGlobal, 0)
	require.NoError(t, err)
	_, err = table.Declare("y", "", FlagGlobal|FlagPersist, 3.5)
	require.NoError(t, err)
	_, err = table.Declare("z", `mods\a.ini`, FlagGlobal|FlagPersist, 0.1)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "d3dx_user.ini")
	written, err := table.Save(path, false)
	require.NoError(t, err)
	require.False(t, written)
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))

	written, err = table.Save(path, true)
	require.NoError(t, err)
	require.True(t, written)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	require.True(t, strings.HasPrefix(text, "; AUTOMATICALLY GENERATED FILE"), text)
	require.Contains(t, text, "[Constants]")
	require.Contains(t, text, "$y = 3.5")
	require.Contains(t, text, `$\mods\a.ini\z = 0.1`)
	require.NotContains(t, text, "$x")
}

func TestSaveClearsDirtyAfterWrite(t *testing.T) {
	table := NewTable()
	v, _ := table.Declare("y", "", FlagPersist, 0)
	table.Set(v, 2)
	table.MarkDirty(DirtyUserConfig)

	path := filepath.Join(t.TempDir(), "user.ini")
	written, err := table.Save(path, false)
	require.NoError(t, err)
	require.True(t, written)
	require.Zero(t, table.Dirty())

	table.Set(v, 9)
	_, err = table.Save(filepath.Join(t.TempDir(), "missing", "user.ini"), false)
	require.Error(t, err)
	require.Equal(t, DirtyValues, table.Dirty())
}

func TestFormatValue(t *testing.T) {
	cases := map[float32]string{
		0:     "0",
		1:     "1",
		3.5:   "3.5",
		0.1:   "0.1",
		-2.25: "-2.25",
	}
	for in, want := range cases {
		if got := FormatValue(in); got != want {
			t.Fatalf("FormatValue(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestSaveNonFiniteValues(t *testing.T) {
	table := NewTable()
	inf, _ := table.Declare("inf", "", FlagPersist, 0)
	nan, _ := table.Declare("nan", "", FlagPersist, 0)
	table.Set(inf, float32(math.Inf(-1)))
	table.Set(nan, float32(math.NaN()))

	path := filepath.Join(t.TempDir(), "user.ini")
	written, err := table.Save(path, false)
	require.NoError(t, err)
	require.True(t, written)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "$inf = -Inf")
	require.Contains(t, string(data), "$nan = NaN")

	back, err := strconv.ParseFloat(FormatValue(float32(math.Inf(1))), 32)
	require.NoError(t, err)
	require.True(t, math.IsInf(back, 1))
}
