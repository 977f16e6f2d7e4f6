package corpus

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// csvBatch rows go into one node so a table chunks into readable passages.
const csvBatch = 20

// CSVParser renders data tables as "header: cell" lines, one node per batch
// of rows.
type CSVParser struct{}

func (p *CSVParser) Parse(r io.Reader, filename string) (*Tree, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	tree := &Tree{Title: baseTitle(filename)}
	if len(records) < 2 {
		return tree, nil
	}

	headers := records[0]
	rows := records[1:]
	for i := 0; i < len(rows); i += csvBatch {
		end := min(i+csvBatch, len(rows))
		var sb strings.Builder
		for _, row := range rows[i:end] {
			cells := make([]string, 0, len(row))
			for j, cell := range row {
				if strings.TrimSpace(cell) == "" {
					continue
				}
				if j < len(headers) && headers[j] != "" {
					cell = headers[j] + ": " + cell
				}
				cells = append(cells, cell)
			}
			sb.WriteString(strings.Join(cells, ", "))
			sb.WriteString("\n")
		}
		tree.Children = append(tree.Children, &Node{
			Title: fmt.Sprintf("Rows %d-%d", i+2, end+1),
			Text:  strings.TrimSuffix(sb.String(), "\n"),
		})
	}
	return tree, nil
}
