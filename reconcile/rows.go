package reconcile

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"funnelcrm/normalize"
)

// Canonical column names of an import file.
const (
	FieldName       = "name"
	FieldEmail      = "email"
	FieldPhone      = "phone"
	FieldCourse     = "course"
	FieldCampaign   = "campaign"
	FieldCommercial = "commercial"
	FieldStatus     = "status"
	FieldEnrolledAt = "enrolled_at"
	FieldRevenue    = "revenue"
	FieldNotes      = "notes"
)

var ErrUnsupportedFormat = errors.New("unsupported import format")

// headerAliases maps folded headers found in real exports to canonical fields.
var headerAliases = map[string]string{
	"name": FieldName, "nome": FieldName, "nominativo": FieldName, "nome_cognome": FieldName,
	"full_name": FieldName, "studente": FieldName, "cliente": FieldName,
	"email": FieldEmail, "e_mail": FieldEmail, "mail": FieldEmail,
	"phone": FieldPhone, "telefono": FieldPhone, "cellulare": FieldPhone, "tel": FieldPhone,
	"course": FieldCourse, "corso": FieldCourse, "nome_corso": FieldCourse,
	"campaign": FieldCampaign, "campagna": FieldCampaign,
	"commercial": FieldCommercial, "commerciale": FieldCommercial, "assigned_to": FieldCommercial,
	"venditore": FieldCommercial, "responsabile": FieldCommercial,
	"status": FieldStatus, "stato": FieldStatus,
	"enrolled_at": FieldEnrolledAt, "data_iscrizione": FieldEnrolledAt, "enrollment_date": FieldEnrolledAt,
	"data": FieldEnrolledAt, "date": FieldEnrolledAt,
	"revenue": FieldRevenue, "importo": FieldRevenue, "prezzo": FieldRevenue, "amount": FieldRevenue,
	"fatturato": FieldRevenue,
	"notes": FieldNotes, "note": FieldNotes, "commento": FieldNotes,
}

// RawImportRow is one untyped spreadsheet row keyed by canonical field.
// Columns with no known alias are kept under their folded header.
type RawImportRow struct {
	Source string            `json:"source"`
	Line   int               `json:"line"`
	Fields map[string]string `json:"fields"`
}

func (r RawImportRow) Get(field string) string {
	return strings.TrimSpace(r.Fields[field])
}

// CanonicalHeader folds a header and resolves its alias.
func CanonicalHeader(h string) string {
	folded := normalize.Header(h)
	if canonical, ok := headerAliases[folded]; ok {
		return canonical
	}
	return folded
}

// ReadFile reads a .csv or .xlsx file from disk.
func ReadFile(path string) ([]RawImportRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(filepath.Base(path), f)
}

// Read picks the parser from the file name extension.
func Read(filename string, r io.Reader) ([]RawImportRow, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		return ReadCSV(filename, r)
	case ".xlsx", ".xlsm":
		return ReadXLSX(filename, r)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
}

// ReadCSV accepts comma or semicolon separated files; the separator is taken
// from the header line.
func ReadCSV(source string, r io.Reader) ([]RawImportRow, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	// skip a UTF-8 BOM written by spreadsheet exports
	if b, err := br.Peek(3); err == nil && bytes.Equal(b, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = br.Discard(3)
	}
	head, _ := br.Peek(4096)
	firstLine := head
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		firstLine = head[:i]
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	if bytes.Count(firstLine, []byte{';'}) > bytes.Count(firstLine, []byte{','}) {
		cr.Comma = ';'
	}

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv %s: %w", source, err)
	}
	return rowsFromRecords(source, records), nil
}

// ReadXLSX reads the first sheet of a workbook.
func ReadXLSX(source string, r io.Reader) ([]RawImportRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx %s: %w", source, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("xlsx %s has no sheets", source)
	}
	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q of %s: %w", sheet, source, err)
	}
	return rowsFromRecords(source, records), nil
}

// rowsFromRecords uses the first non-empty record as header. Line numbers are
// 1-based and count the header.
func rowsFromRecords(source string, records [][]string) []RawImportRow {
	headerAt := -1
	for i, rec := range records {
		if !blank(rec) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return nil
	}

	header := make([]string, len(records[headerAt]))
	for i, h := range records[headerAt] {
		header[i] = CanonicalHeader(h)
	}

	rows := make([]RawImportRow, 0, len(records)-headerAt-1)
	for i := headerAt + 1; i < len(records); i++ {
		rec := records[i]
		if blank(rec) {
			continue
		}
		fields := make(map[string]string, len(header))
		for j, value := range rec {
			if j >= len(header) || header[j] == "" {
				continue
			}
			// first non-empty column wins when two headers share an alias
			if fields[header[j]] == "" {
				fields[header[j]] = strings.TrimSpace(value)
			}
		}
		rows = append(rows, RawImportRow{Source: source, Line: i + 1, Fields: fields})
	}
	return rows
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
