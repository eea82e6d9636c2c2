package recurring

import (
	"strconv"
	"strings"
	"time"
)

// substitute expands template tokens against fireTime in loc. Supported
// tokens: {date}, {time}, {weekday}, {week}, {timestamp}, {year},
// {month}, {day}.
func substitute(template string, fireTime time.Time, loc *time.Location) string {
	t := fireTime.In(loc)
	_, week := t.ISOWeek()

	replacer := strings.NewReplacer(
		"{date}", t.Format("2006-01-02"),
		"{time}", t.Format("15:04"),
		"{weekday}", t.Weekday().String(),
		"{week}", strconv.Itoa(week),
		"{timestamp}", strconv.FormatInt(t.Unix(), 10),
		"{year}", strconv.Itoa(t.Year()),
		"{month}", t.Month().String(),
		"{day}", strconv.Itoa(t.Day()),
	)
	return replacer.Replace(template)
}
