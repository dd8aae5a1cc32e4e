package workflow

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"bitbucket.org/mmdatafocus/qaudit_backend/models"
	"bitbucket.org/mmdatafocus/qaudit_backend/utils"
	"github.com/xuri/excelize/v2"
)

// ErrUnreadableAuditFile marks batch-fatal parse failures: the AuditLog stays
// in Uploaded status and no AuditRecords are created.
var ErrUnreadableAuditFile = errors.New("audit file is unreadable")

// ReadAuditFile opens the stored file behind an AuditLog and decomposes it
// into ordered key->value rows. The first non-empty row is the header.
func ReadAuditFile(ctx context.Context, auditLog *models.AuditLog) ([]models.RawRow, error) {
	src, err := utils.OpenAuditFile(ctx, auditLog.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableAuditFile, err)
	}
	defer src.Close()
	return ReadAuditFileRows(src, auditLog.OriginalName)
}

// ReadAuditFileRows parses xlsx (first sheet) or csv content. Rows that are
// entirely empty are dropped; short rows are padded so every row carries the
// full header.
func ReadAuditFileRows(src io.Reader, filename string) ([]models.RawRow, error) {
	name := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(name, ".xlsx"):
		return readXlsxRows(src)
	case strings.HasSuffix(name, ".csv"):
		return readCsvRows(src)
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q (want .xlsx or .csv)", ErrUnreadableAuditFile, filename)
	}
}

func readXlsxRows(src io.Reader) ([]models.RawRow, error) {
	f, err := excelize.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableAuditFile, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrUnreadableAuditFile)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableAuditFile, err)
	}
	return rowsFromCells(rows)
}

func readCsvRows(src io.Reader) ([]models.RawRow, error) {
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreadableAuditFile, err)
		}
		rows = append(rows, record)
	}
	return rowsFromCells(rows)
}

func rowsFromCells(rows [][]string) ([]models.RawRow, error) {
	headerIdx := -1
	for i, row := range rows {
		if !isEmptyRow(row) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, fmt.Errorf("%w: file has no header row", ErrUnreadableAuditFile)
	}

	header := rows[headerIdx]
	keys := make([]string, len(header))
	for i, cell := range header {
		key := strings.TrimSpace(cell)
		if key == "" {
			key = fmt.Sprintf("Column%d", i+1)
		}
		keys[i] = key
	}

	var result []models.RawRow
	for _, row := range rows[headerIdx+1:] {
		if isEmptyRow(row) {
			continue
		}
		rawRow := make(models.RawRow, 0, len(keys))
		for i, key := range keys {
			value := ""
			if i < len(row) {
				value = row[i]
			}
			rawRow = append(rawRow, models.RawCell{Key: key, Value: value})
		}
		result = append(result, rawRow)
	}
	return result, nil
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
