package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/julianbeese/bds_crawler/internal/domain"
)

// Header is the column order of the listing CSV
var Header = []string{
	"id", "title", "href", "price", "area_m2", "n_room", "n_wc",
	"district", "city", "published_date", "image_path",
}

const (
	dateLayout = "2006-01-02"
	imageSep   = ";"
)

// WriteCSV writes the listings with a header row. Optional values are left empty.
func WriteCSV(w io.Writer, listings []domain.Listing) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, l := range listings {
		if err := cw.Write(row(l)); err != nil {
			return fmt.Errorf("write listing %s: %w", l.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile creates (or truncates) path and writes the listings to it
func WriteCSVFile(path string, listings []domain.Listing) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, listings); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func row(l domain.Listing) []string {
	published := ""
	if !l.PublishedAt.IsZero() {
		published = l.PublishedAt.Format(dateLayout)
	}
	return []string{
		l.ID,
		l.Title,
		l.URL,
		l.Price,
		strconv.FormatFloat(l.AreaM2, 'f', -1, 64),
		optionalInt(l.Rooms),
		optionalInt(l.Bathrooms),
		l.District,
		l.City,
		published,
		strings.Join(l.Images, imageSep),
	}
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
