package sheets

import (
	"fmt"
	"regexp"

	"github.com/datallboy/sheetflow/internal/domain"
)

var shareLink = regexp.MustCompile(`https://docs\.google\.com/spreadsheets/d/([a-zA-Z0-9-_]+)`)

const exportFormat = "https://docs.google.com/spreadsheets/d/%s/export?format=xlsx"

// DocumentID extracts the spreadsheet id from a share link.
func DocumentID(raw string) (string, error) {
	m := shareLink.FindStringSubmatch(raw)
	if m == nil {
		return "", domain.ErrInvalidURL
	}
	return m[1], nil
}

// ResolveExportURL turns a share link into the direct xlsx export URL.
func ResolveExportURL(raw string) (string, error) {
	id, err := DocumentID(raw)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(exportFormat, id), nil
}
