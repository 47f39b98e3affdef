package scheduling

import (
	"net/mail"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dukerupert/togetherplan/internal/apperr"
	"github.com/dukerupert/togetherplan/internal/model"
	"github.com/dukerupert/togetherplan/internal/recurrence"
)

const (
	maxTitleLen    = 255
	maxLocationLen = 255
	maxCategoryLen = 100
	maxSeriesDates = 31
)

// fieldErrors collects per-field validation messages; the first message for a
// field wins.
type fieldErrors map[string]string

func (f fieldErrors) add(field, msg string) {
	if _, ok := f[field]; !ok {
		f[field] = msg
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return apperr.Validation(f)
}

func (f fieldErrors) requiredText(field, value string, max int) {
	if strings.TrimSpace(value) == "" {
		f.add(field, "is required")
		return
	}
	f.maxLen(field, value, max)
}

func (f fieldErrors) maxLen(field, value string, max int) {
	if utf8.RuneCountInString(value) > max {
		f.add(field, "must be at most "+strconv.Itoa(max)+" characters")
	}
}

func (f fieldErrors) privacy(field, value string) {
	if !model.Privacy(value).Valid() {
		f.add(field, "must be public or private")
	}
}

func (f fieldErrors) dateOption(prefix string, o DateOptionInput) {
	if _, err := time.Parse(time.DateOnly, o.ProposedDate); err != nil {
		f.add(prefix+".proposed_date", "must be a date in YYYY-MM-DD format")
	}
	if o.ProposedTime != nil && !validTime(*o.ProposedTime) {
		f.add(prefix+".proposed_time", "must be a time in HH:MM or HH:MM:SS format")
	}
}

// series validates a date series and returns its days.
func (f fieldErrors) series(in DateSeriesInput) []time.Time {
	start, err := time.Parse(time.DateOnly, in.Start)
	if err != nil {
		f.add("start", "must be a date in YYYY-MM-DD format")
	}
	if in.ProposedTime != nil && !validTime(*in.ProposedTime) {
		f.add("proposed_time", "must be a time in HH:MM or HH:MM:SS format")
	}
	rule, err := recurrence.Parse(in.Rule)
	if err != nil {
		f.add("rule", err.Error())
		return nil
	}
	if len(f) > 0 {
		return nil
	}
	days, err := recurrence.Series(rule, start, maxSeriesDates)
	if err != nil {
		f.add("rule", err.Error())
		return nil
	}
	if len(days) == 0 {
		f.add("rule", "produces no dates")
	}
	return days
}

func validTime(s string) bool {
	for _, layout := range []string{"15:04", time.TimeOnly} {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
