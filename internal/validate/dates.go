package validate

import "time"

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"02-01-2006",
	"01-02-2006",
	"02.01.2006",
	"2006/01/02",
	"2 January 2006",
	"January 2, 2006",
}

// ParseDate accepts the date shapes that show up on scanned forms. The first
// layout that parses wins.
func ParseDate(value string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
