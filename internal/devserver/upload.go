package devserver

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/florianilch/storefront/internal/storefront"
)

const maxUploadBytes = 5 << 20

// handleUploadProducts creates products in bulk from a CSV or JSON file in the "file"
// form field. Rows that fail validation are reported and skipped.
func (s *Server) handleUploadProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(ctx, w, "file is required", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	var rows []productRequest
	if strings.EqualFold(filepath.Ext(header.Filename), ".json") {
		err = json.NewDecoder(file).Decode(&rows)
	} else {
		rows, err = readProductCSV(file)
	}
	if err != nil {
		writeError(ctx, w, fmt.Sprintf("could not parse %s: %v", header.Filename, err), http.StatusBadRequest)
		return
	}

	var result storefront.ImportResult
	for i, row := range rows {
		if err := s.check(row); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		if _, err := s.store.saveProduct("", row.input()); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		result.Created++
	}

	writeData(ctx, w, result, http.StatusOK)
}

// readProductCSV reads rows keyed by a header line. Recognized columns are name,
// description, price, stock, imageUrl and categoryId; unknown columns are ignored.
func readProductCSV(r io.Reader) ([]productRequest, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := columns["name"]; !ok {
		return nil, errors.New("missing name column")
	}

	field := func(record []string, name string) string {
		if i, ok := columns[strings.ToLower(name)]; ok && i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	var rows []productRequest
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}

		// Unparsable numbers are left at zero and rejected by validation
		price, _ := strconv.ParseFloat(field(record, "price"), 64)
		stock, _ := strconv.Atoi(field(record, "stock"))

		rows = append(rows, productRequest{
			Name:        field(record, "name"),
			Description: field(record, "description"),
			Price:       price,
			Stock:       stock,
			ImageURL:    field(record, "imageUrl"),
			CategoryID:  field(record, "categoryId"),
		})
	}
}
