package ics

import (
	"regexp"
	"strings"
	"time"

	"studycal/internal/model"
)

type keywordRule struct {
	label model.EventType
	re    *regexp.Regexp
	// caseSensitive rules run on the original text.
	caseSensitive bool
}

// keywordRules are tried in order against "summary description".
var keywordRules = []keywordRule{
	{label: model.EventTypeStudy, re: regexp.MustCompile(`\b(study|review|homework|assignment|exam|project|prep|test|quiz)\b`)},
	{label: model.EventTypeClass, re: regexp.MustCompile(`\b(class|lecture|seminar|course|lab|discussion)\b`)},
	// Course codes such as "EECS 101" or "MATH202".
	{label: model.EventTypeClass, re: regexp.MustCompile(`[A-Z]{2,4}\s?\d{3}`), caseSensitive: true},
	{label: model.EventTypeLeisure, re: regexp.MustCompile(`\b(dinner|fun|party|game|movie|concert|outing|lunch|chill|hang|hangout|friends|birthday|bday|relax|date|coffee|break)\b`)},
	{label: model.EventTypeWork, re: regexp.MustCompile(`\b(work|meeting|call|presentation|deadline|office|shift|job|internship)\b`)},
	{label: model.EventTypeOther, re: regexp.MustCompile(`\b(workout|gym|doctor)\b`)},
}

// Categorize labels an imported occurrence. Keyword rules win; then
// recurring daytime events are guessed to be classes (30 minutes to 2
// hours) or work (2 hours or more); then the first CATEGORIES value of the
// source event; otherwise Other.
func Categorize(occ model.Occurrence, categories []string) model.EventType {
	text := occ.Summary + " " + occ.Description
	lower := strings.ToLower(text)
	for _, r := range keywordRules {
		subject := lower
		if r.caseSensitive {
			subject = text
		}
		if r.re.MatchString(subject) {
			return r.label
		}
	}

	if occ.Recurring && !occ.AllDay {
		hour := occ.Start.Hour()
		length := occ.Duration()
		switch {
		case hour >= 8 && hour <= 17 && length >= 30*time.Minute && length <= 2*time.Hour:
			return model.EventTypeClass
		case hour >= 8 && hour <= 22 && length >= 2*time.Hour:
			return model.EventTypeWork
		}
	}

	for _, c := range categories {
		if c = strings.TrimSpace(c); c != "" {
			return model.EventType(c)
		}
	}
	return model.EventTypeOther
}
