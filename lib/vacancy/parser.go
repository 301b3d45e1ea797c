package vacancy

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// ErrNoVacancyTable is returned when the response markup carries no
// recognizable results table at all. An empty table body is not an error; a
// course with no indexes parses to zero records.
var ErrNoVacancyTable = errors.New("vacancy: no vacancy table in response")

var whitespace = regexp.MustCompile(`[\s\x{00A0}]+`)

// Parse extracts vacancy records from the upstream markup. The results table
// lists one row per class session; a row with a non-empty first cell starts a
// new index, rows with a blank first cell extend the previous index's
// schedule. Parse is pure -- the same markup always yields the same records.
func Parse(markup string) ([]Record, error) {
	doc, err := htmlquery.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("vacancy: parse markup: %w", err)
	}

	table := htmlquery.FindOne(doc, "//table[@border]")
	if table == nil {
		return nil, ErrNoVacancyTable
	}

	records := []Record{}
	var current *Record

	for i, row := range htmlquery.Find(table, ".//tr") {
		if i == 0 {
			// Header row
			continue
		}
		cells := htmlquery.Find(row, "./td")
		if len(cells) == 0 {
			continue
		}

		if index := cellText(cells, 0); index != "" {
			records = append(records, Record{
				IndexNumber: index,
				Vacancies:   parseCount(cellText(cells, 1)),
				Waitlist:    parseCount(cellText(cells, 2)),
			})
			current = &records[len(records)-1]
		}

		class := ClassSession{
			Type:   cellText(cells, 3),
			Group:  cellText(cells, 4),
			Day:    cellText(cells, 5),
			Time:   cellText(cells, 6),
			Venue:  cellText(cells, 7),
			Remark: cellText(cells, 8),
		}
		if current != nil && class.Type != "" {
			current.Classes = append(current.Classes, class)
		}
	}

	return records, nil
}

// cellText returns the compacted text of the i-th cell, or "" when the row is
// short. Cells beyond the ones we read are ignored.
func cellText(cells []*html.Node, i int) string {
	if i >= len(cells) {
		return ""
	}
	return digForText(cells[i])
}

// parseCount reads a seat count leniently. The upstream pads empty counts
// with placeholders like "-" or a non-breaking space.
func parseCount(s string) int {
	switch s {
	case "", "-", "N/A":
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func digForText(n *html.Node) string {
	if n == nil {
		return ""
	}
	buf := new(bytes.Buffer)
	dig(n, buf)
	return compactWhitespace(buf.String())
}

func dig(n *html.Node, buf *bytes.Buffer) {
	if n == nil {
		return
	}
	if n.Type == html.TextNode {
		buf.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		dig(c, buf)
	}
}

func compactWhitespace(s string) string {
	s = whitespace.ReplaceAllString(s, " ")
	s = strings.Trim(s, " ")
	return s
}
