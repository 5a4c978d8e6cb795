package warehouse

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// BuildZones maps lookup rows to zone dimension rows. Rows are neither
// filtered nor deduplicated.
func BuildZones(raw []RawZone) []Zone {
	fold := cases.Fold()
	upper := cases.Upper(language.Und)
	airport := fold.String("Airport")

	out := make([]Zone, len(raw))
	for i, r := range raw {
		z := Zone{
			ZoneID:      r.LocationID,
			Borough:     r.Borough,
			ZoneName:    r.Zone,
			ServiceZone: r.ServiceZone,
		}
		if r.Zone != nil {
			z.IsAirport = strings.Contains(fold.String(*r.Zone), airport)
		}
		if r.Borough != nil {
			z.IsManhattan = upper.String(*r.Borough) == "MANHATTAN"
		}
		out[i] = z
	}
	return out
}
