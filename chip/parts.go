package chip

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/gocarina/gocsv"
)

//go:embed parts.csv
var partsCSV []byte

// Part describes a known flash part. Capacity isn't listed since every
// supported part encodes it in the third byte of its JEDEC ID.
type Part struct {
	JEDECID     string `csv:"jedec_id"`
	Vendor      string `csv:"vendor"`
	Name        string `csv:"part"`
	PageBytes   int64  `csv:"page_bytes"`
	SectorBytes int64  `csv:"sector_bytes"`
}

func (p Part) String() string {
	return fmt.Sprintf("%s %s", p.Vendor, p.Name)
}

var knownParts map[string]Part

func init() {
	var parts []Part
	err := gocsv.UnmarshalBytes(partsCSV, &parts)
	if err != nil {
		panic(fmt.Sprintf("embedded parts table is malformed: %s", err.Error()))
	}

	knownParts = make(map[string]Part, len(parts))
	for _, part := range parts {
		knownParts[strings.ToLower(part.JEDECID)] = part
	}
}

// LookupPart returns the table entry for a JEDEC ID, if there is one.
func LookupPart(id JEDECID) (Part, bool) {
	part, ok := knownParts[id.String()]
	return part, ok
}

// KnownParts returns every part in the table, in no particular order.
func KnownParts() []Part {
	parts := make([]Part, 0, len(knownParts))
	for _, part := range knownParts {
		parts = append(parts, part)
	}
	return parts
}
