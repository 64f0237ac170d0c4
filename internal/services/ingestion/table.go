package ingestion

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"carbonwatch-backend/internal/models"
)

// Upload column names.
const (
	ColAmount        = "Transaction Amount"
	ColVolume        = "Carbon Volume"
	ColPrice         = "Price per Ton"
	ColOriginCountry = "Origin Country"
	ColCrossBorder   = "Cross-Border Flag"
	ColBuyerIndustry = "Buyer Industry"
	ColHour          = "Transaction Hour"
	ColEntityType    = "Entity Type"
)

var requiredColumns = []string{
	ColAmount, ColVolume, ColPrice, ColOriginCountry,
	ColBuyerIndustry, ColEntityType, ColHour, ColCrossBorder,
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type row struct {
	num    int
	fields []string
	err    error
}

type table struct {
	columns map[string]int
	rows    []row
}

// parseTable reads a delimited table with a header row. The delimiter is
// sniffed from the header line.
func parseTable(data []byte) (*table, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrParse)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read header: %v", ErrParse, err)
	}

	t := &table{columns: make(map[string]int, len(header))}
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := t.columns[name]; !dup {
			t.columns[name] = i
		}
	}
	if len(t.columns) == 0 {
		return nil, fmt.Errorf("%w: header row has no column names", ErrParse)
	}

	num := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		var perr *csv.ParseError
		if err != nil && !errors.As(err, &perr) {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		if err == nil && blank(record) {
			continue
		}
		num++
		if err != nil {
			t.rows = append(t.rows, row{num: num, err: fmt.Errorf("%w: malformed line: %v", ErrRowSkipped, perr)})
			continue
		}
		t.rows = append(t.rows, row{num: num, fields: record})
	}
	return t, nil
}

func sniffDelimiter(data []byte) rune {
	line := data
	if idx := bytes.IndexByte(data, '\n'); idx != -1 {
		line = data[:idx]
	}
	best, bestCount := ',', 0
	for _, d := range []rune{',', ';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func (t *table) value(r row, column string) (string, bool) {
	idx, ok := t.columns[column]
	if !ok || idx >= len(r.fields) {
		return "", false
	}
	v := strings.TrimSpace(r.fields[idx])
	return v, v != ""
}

// transaction validates and coerces one row. The returned transaction has
// no identifier, company, label or timestamp yet.
func (t *table) transaction(r row) (*models.Transaction, error) {
	if r.err != nil {
		return nil, r.err
	}

	vals := make(map[string]string, len(requiredColumns))
	var missing []string
	for _, col := range requiredColumns {
		v, ok := t.value(r, col)
		if !ok {
			missing = append(missing, col)
			continue
		}
		vals[col] = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrRowSkipped, strings.Join(missing, ", "))
	}

	amount, err := parseAmount(ColAmount, vals[ColAmount])
	if err != nil {
		return nil, err
	}
	volume, err := parseAmount(ColVolume, vals[ColVolume])
	if err != nil {
		return nil, err
	}
	price, err := parseAmount(ColPrice, vals[ColPrice])
	if err != nil {
		return nil, err
	}
	hour, err := parseHour(vals[ColHour])
	if err != nil {
		return nil, err
	}
	crossBorder, err := parseFlag(vals[ColCrossBorder])
	if err != nil {
		return nil, err
	}

	return &models.Transaction{
		TransactionAmount: amount,
		CarbonVolume:      volume,
		PricePerTon:       price,
		OriginCountry:     vals[ColOriginCountry],
		CrossBorder:       crossBorder,
		BuyerIndustry:     vals[ColBuyerIndustry],
		TransactionHour:   hour,
		EntityType:        vals[ColEntityType],
	}, nil
}

func parseAmount(column, raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s %q is not a number", ErrRowSkipped, column, raw)
	}
	if v < 0 {
		return 0, fmt.Errorf("%w: %s %q is negative", ErrRowSkipped, column, raw)
	}
	return v, nil
}

func parseHour(raw string) (int, error) {
	h, err := strconv.Atoi(raw)
	if err != nil {
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || f != math.Trunc(f) {
			return 0, fmt.Errorf("%w: %s %q is not a whole hour", ErrRowSkipped, ColHour, raw)
		}
		h = int(f)
	}
	if h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: %s %d is outside 0-23", ErrRowSkipped, ColHour, h)
	}
	return h, nil
}

func parseFlag(raw string) (bool, error) {
	switch {
	case strings.EqualFold(raw, "true"):
		return true, nil
	case strings.EqualFold(raw, "false"):
		return false, nil
	}
	return false, fmt.Errorf("%w: %s %q must be true or false", ErrRowSkipped, ColCrossBorder, raw)
}
