package validate

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

var colorRx = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// TitleMax is the longest event title accepted, in characters.
const TitleMax = 200

// Title validates an event title: 1-200 characters after trimming.
func Title(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return fmt.Errorf("title is required")
	}
	if n := utf8.RuneCountInString(v); n > TitleMax {
		return fmt.Errorf("title exceeds %d characters", TitleMax)
	}
	return nil
}

// Color accepts nil or a #RRGGBB hex color.
func Color(v *string) error {
	if v == nil {
		return nil
	}
	if !colorRx.MatchString(*v) {
		return fmt.Errorf("color must be a #RRGGBB hex value")
	}
	return nil
}

func MaxLen(field string, v *string, limit int) error {
	if v == nil {
		return nil
	}
	if utf8.RuneCountInString(*v) > limit {
		return fmt.Errorf("%s exceeds %d characters", field, limit)
	}
	return nil
}

// TimeRange requires both bounds and start strictly before end.
func TimeRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("startAt and endAt are required")
	}
	if !start.Before(end) {
		return fmt.Errorf("startAt must be before endAt")
	}
	return nil
}

// -------- Request specific helpers ----------

// CreateEvent validates the fields of a manually created event.
func CreateEvent(title string, description *string, start, end time.Time, color *string) error {
	if err := Title(title); err != nil {
		return err
	}
	if err := MaxLen("description", description, 2000); err != nil {
		return err
	}
	if err := TimeRange(start, end); err != nil {
		return err
	}
	return Color(color)
}

// HistoryTurns bounds the conversation replayed with a voice command.
func HistoryTurns(n, limit int) error {
	if n > limit {
		return fmt.Errorf("history exceeds %d turns", limit)
	}
	return nil
}
