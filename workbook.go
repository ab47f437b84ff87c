package lcdielectrics

import (
	"context"
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"
)

var bucketColumns = []interface{}{"volt", "Cp", "D", "G", "B"}

// WorkbookExporter writes one sheet per temperature. With several voltages
// each frequency gets its own block of volt/Cp/D/G/B rows; with a single
// voltage each frequency is one row.
type WorkbookExporter struct {
	Path string
}

func (e *WorkbookExporter) Export(ctx context.Context, rec SweepRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	store := rec.Results
	singleVoltage := len(rec.Voltages) == 1

	for i, tKey := range store.Temperatures() {
		idx, err := f.NewSheet(tKey)
		if err != nil {
			return fmt.Errorf("add sheet %s: %w", tKey, err)
		}
		if i == 0 {
			f.SetActiveSheet(idx)
		}
		if singleVoltage {
			err = writeSingleVoltageSheet(f, tKey, rec.Voltages[0], store)
		} else {
			err = writeVoltageBlocksSheet(f, tKey, store)
		}
		if err != nil {
			return fmt.Errorf("fill sheet %s: %w", tKey, err)
		}
	}
	if len(store.Temperatures()) > 0 {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return err
		}
	}

	if err := f.SaveAs(e.Path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func writeVoltageBlocksSheet(f *excelize.File, sheet string, store *ResultStore) error {
	row := 1
	for _, fKey := range store.Frequencies(sheet) {
		b := store.BucketByKey(sheet, fKey)
		freq, err := strconv.ParseFloat(fKey, 64)
		if err != nil {
			return err
		}
		if err := setRow(f, sheet, row, []interface{}{"Frequency (Hz): ", freq}); err != nil {
			return err
		}
		if err := setRow(f, sheet, row+1, bucketColumns); err != nil {
			return err
		}
		for i := 0; i < b.Len(); i++ {
			if err := setRow(f, sheet, row+2+i, []interface{}{b.Volt[i], b.Cp[i], b.D[i], b.G[i], b.B[i]}); err != nil {
				return err
			}
		}
		// label, header, values, one blank row
		row += b.Len() + 3
	}
	return nil
}

func writeSingleVoltageSheet(f *excelize.File, sheet string, volt float64, store *ResultStore) error {
	if err := setRow(f, sheet, 1, []interface{}{"Voltage (V): ", volt}); err != nil {
		return err
	}
	if err := setRow(f, sheet, 2, []interface{}{"freq", "Cp", "D", "G", "B"}); err != nil {
		return err
	}
	row := 3
	for _, fKey := range store.Frequencies(sheet) {
		b := store.BucketByKey(sheet, fKey)
		freq, err := strconv.ParseFloat(fKey, 64)
		if err != nil {
			return err
		}
		for i := 0; i < b.Len(); i++ {
			if err := setRow(f, sheet, row, []interface{}{freq, b.Cp[i], b.D[i], b.G[i], b.B[i]}); err != nil {
				return err
			}
			row++
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}
