// Package sheet reads terminal records from XLSX workbooks and writes the
// workbooks operators hand around: serial/name lists and run reports.
package sheet

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/nanoncore/nano-onuprov/model"
)

// ErrNoSerialColumn means the header row has no Serial column
var ErrNoSerialColumn = errors.New("no Serial column in header row")

// header aliases, compared case-insensitively
var (
	serialHeaders = []string{"serial", "sn", "serial number"}
	nameHeaders   = []string{"name", "nome", "cliente"}
	vlanHeaders   = []string{"vlan"}
)

// Entry is one serial/name pair of a JSON export
type Entry struct {
	Serial string `json:"serial"`
	Name   string `json:"name"`
}

// ReadRecords parses the first sheet of an XLSX workbook. The first row is
// the header; Serial is required, Name and VLAN are optional. Rows without a
// serial are skipped. defaultVLAN fills rows with an empty VLAN cell.
func ReadRecords(r io.Reader, defaultVLAN int) ([]model.TerminalRecord, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, ErrNoSerialColumn
	}

	serialCol := findColumn(rows[0], serialHeaders)
	if serialCol < 0 {
		return nil, ErrNoSerialColumn
	}
	nameCol := findColumn(rows[0], nameHeaders)
	vlanCol := findColumn(rows[0], vlanHeaders)

	var records []model.TerminalRecord
	for i, row := range rows[1:] {
		serial := strings.TrimSpace(cell(row, serialCol))
		if serial == "" {
			continue
		}
		rec := model.TerminalRecord{
			Serial: serial,
			Name:   strings.TrimSpace(cell(row, nameCol)),
			VLAN:   defaultVLAN,
		}
		if v := strings.TrimSpace(cell(row, vlanCol)); v != "" {
			vlan, err := strconv.Atoi(v)
			if err != nil {
				// row numbers are 1-based and the header is row 1
				return nil, fmt.Errorf("row %d: vlan %q: %w", i+2, v, err)
			}
			rec.VLAN = vlan
		}
		records = append(records, rec)
	}
	return records, nil
}

func findColumn(header []string, aliases []string) int {
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, a := range aliases {
			if h == a {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}

// ReadEntries decodes a JSON array of {"serial","name"} objects
func ReadEntries(r io.Reader) ([]Entry, error) {
	var entries []Entry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode entries: %w", err)
	}
	for i, e := range entries {
		if strings.TrimSpace(e.Serial) == "" {
			return nil, fmt.Errorf("entry %d has no serial", i)
		}
	}
	return entries, nil
}

// WriteEntries writes a Serial/Name workbook that ReadRecords accepts
func WriteEntries(w io.Writer, entries []Entry) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Sheet1"
	if err := f.SetSheetRow(sheet, "A1", &[]interface{}{"Serial", "Name"}); err != nil {
		return err
	}
	for i, e := range entries {
		axis, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, axis, &[]interface{}{e.Serial, e.Name}); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(sheet, "A", "B", 24); err != nil {
		return err
	}
	_, err := f.WriteTo(w)
	return err
}

// WriteReport writes one row per record of a run with its outcome
func WriteReport(w io.Writer, res *model.BatchResult) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Sheet1"
	if err := f.SetSheetName(sheet, "Run"); err != nil {
		return err
	}
	header := []interface{}{"Serial", "Name", "VLAN", "Outcome", "Port", "ONU ID", "Error", "Command"}
	if err := f.SetSheetRow("Run", "A1", &header); err != nil {
		return err
	}

	for i, r := range res.Records {
		port := ""
		if r.Outcome.Port != nil {
			port = r.Outcome.Port.String()
		}
		id := interface{}("")
		if r.Outcome.Identifier > 0 {
			id = r.Outcome.Identifier
		}
		errText := r.Outcome.Error
		if r.Outcome.Warning != "" && errText == "" {
			errText = r.Outcome.Warning
		}
		row := []interface{}{
			r.Record.Serial, r.Record.DisplayName(), r.Record.VLAN,
			string(r.Outcome.Kind), port, id, errText, r.Outcome.Command,
		}
		axis, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow("Run", axis, &row); err != nil {
			return err
		}
	}

	_, err := f.WriteTo(w)
	return err
}
