package datasets

import (
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// WriteXLSX renders a dataset as a single sheet named after it. Columns
// follow the json tags of the row type, in field order.
func WriteXLSX(w io.Writer, resp Response) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := resp.Dataset
	if len(sheet) > 31 {
		sheet = sheet[:31]
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}

	v := reflect.ValueOf(resp.Data)
	if v.Kind() != reflect.Slice {
		s := reflect.MakeSlice(reflect.SliceOf(v.Type()), 0, 1)
		v = reflect.Append(s, v)
	}
	header, idx := columns(v.Type().Elem())
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	for i := 0; i < v.Len(); i++ {
		row := v.Index(i)
		vals := make([]any, len(idx))
		for j, fi := range idx {
			vals[j] = cell(row.Field(fi))
		}
		if err := setRow(f, sheet, i+2, vals); err != nil {
			return err
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, n int, vals []any) error {
	addr, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, addr, &vals); err != nil {
		return fmt.Errorf("xlsx row %d: %w", n, err)
	}
	return nil
}

func columns(t reflect.Type) ([]any, []int) {
	var header []any
	var idx []int
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = sf.Name
		}
		header = append(header, name)
		idx = append(idx, i)
	}
	return header, idx
}

// cell unwraps pointers and formats values excelize has no native type for.
func cell(v reflect.Value) any {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if t, ok := v.Interface().(time.Time); ok {
		return t.UTC().Format(time.RFC3339)
	}
	if s, ok := v.Interface().(fmt.Stringer); ok {
		return s.String()
	}
	return v.Interface()
}
