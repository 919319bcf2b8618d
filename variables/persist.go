package variables

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/shopspring/decimal"
	"gopkg.in/ini.v1"
)

const userFileBanner = "; AUTOMATICALLY GENERATED FILE - DO NOT EDIT\n" +
	"; Persisted [Constants] values, rewritten whenever they change."

func init() {
	ini.PrettyFormat = false
	ini.PrettyEqual = true
}

// FormatValue renders a float32 with the shortest decimal text that parses
// back to the same value. Non-finite values use their strconv spelling.
func FormatValue(v float32) string {
	f := float64(v)
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 32)
	}
	return decimal.NewFromFloat32(v).String()
}

// WriteUserFile writes the persisted globals under a [Constants] header.
func (t *Table) WriteUserFile(w io.Writer) error {
	file := ini.Empty()
	sec, err := file.NewSection("Constants")
	if err != nil {
		return fmt.Errorf("create section: %w", err)
	}
	sec.Comment = userFileBanner
	for _, v := range t.Persisted() {
		if _, err := sec.NewKey(v.Name, FormatValue(v.Value)); err != nil {
			return fmt.Errorf("write %s: %w", v.Name, err)
		}
	}
	if _, err := file.WriteTo(w); err != nil {
		return fmt.Errorf("write user file: %w", err)
	}
	return nil
}

// Save rewrites the user file at path when the table is dirty or force is set.
// Dirty bits are only cleared once the file has been written successfully.
func (t *Table) Save(path string, force bool) (bool, error) {
	dirty := t.Dirty()
	if dirty == 0 && !force {
		return false, nil
	}
	var buf bytes.Buffer
	if err := t.WriteUserFile(&buf); err != nil {
		return false, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".d3dx_user-*.ini")
	if err != nil {
		return false, fmt.Errorf("create user file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return false, fmt.Errorf("write user file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return false, fmt.Errorf("close user file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return false, fmt.Errorf("replace user file: %w", err)
	}
	t.ClearDirty(dirty)
	return true, nil
}
