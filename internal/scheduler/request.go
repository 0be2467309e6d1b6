package scheduler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Priority orders requests for placement.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank is the sort key of the priority; lower ranks are placed first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// ParsePriority is case-insensitive; an empty value means medium.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	case "medium":
		return PriorityMedium, nil
	case "low":
		return PriorityLow, nil
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

const (
	// MaxDurationMinutes bounds a request to one year of time.
	MaxDurationMinutes = 366 * 24 * 60
	// MaxChunks bounds how many blocks one split request may produce.
	MaxChunks = 1000
)

// NumberText holds a serialized integer exactly as it arrived (JSON number,
// JSON string, or YAML scalar). Coercion happens during normalization.
type NumberText string

func (n *NumberText) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = NumberText(s)
		return nil
	}
	*n = NumberText(b)
	return nil
}

func (n *NumberText) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!null" {
		*n = ""
		return nil
	}
	*n = NumberText(node.Value)
	return nil
}

func (n NumberText) MarshalJSON() ([]byte, error) {
	if n == "" {
		return []byte("null"), nil
	}
	if v, err := n.Int(); err == nil {
		return []byte(strconv.Itoa(v)), nil
	}
	return json.Marshal(string(n))
}

// Present reports whether a value was supplied at all.
func (n NumberText) Present() bool {
	return strings.TrimSpace(string(n)) != ""
}

// Int coerces the text to an integer. Integral floats ("90.0") are accepted.
func (n NumberText) Int() (int, error) {
	s := strings.TrimSpace(string(n))
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, fmt.Errorf("out of range: %q", s)
	}
	return int(f), nil
}

// RawRequest is an event request as serialized by a form, a request file
// or an API payload. Date fields are YYYY-MM-DD, time fields HH:MM[:SS],
// and absent values are null.
type RawRequest struct {
	Title           string     `json:"title" yaml:"title" validate:"max=200"`
	Description     string     `json:"description" yaml:"description"`
	DurationMinutes NumberText `json:"duration_minutes" yaml:"duration_minutes" validate:"required"`
	Priority        string     `json:"priority" yaml:"priority" validate:"omitempty,oneof=high medium low HIGH MEDIUM LOW High Medium Low"`
	EventType       string     `json:"event_type" yaml:"event_type" validate:"max=100"`
	DateStart       *string    `json:"date_start" yaml:"date_start"`
	DateEnd         *string    `json:"date_end" yaml:"date_end"`
	TimeStart       *string    `json:"time_start" yaml:"time_start"`
	TimeEnd         *string    `json:"time_end" yaml:"time_end"`
	Split           bool       `json:"split" yaml:"split"`
	SplitMinutes    NumberText `json:"split_minutes" yaml:"split_minutes"`
	Recurring       bool       `json:"recurring" yaml:"recurring"`
	RecurringUntil  *string    `json:"recurring_until" yaml:"recurring_until"`
}

// Request is a normalized, typed event request.
type Request struct {
	// Index is the request's position in the submitted batch.
	Index int

	Title           string
	Description     string
	DurationMinutes int
	Priority        Priority
	EventType       string

	DateStart *Date
	DateEnd   *Date
	TimeStart *Clock
	TimeEnd   *Clock

	Split        bool
	SplitMinutes int

	Recurring      bool
	RecurringUntil *Date
}

// Chunks splits the request's duration into placement blocks.
func (r Request) Chunks() ([]int, error) {
	return SplitIntoChunks(r.DurationMinutes, r.Split, r.SplitMinutes)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Normalize converts a raw request into a Request, rejecting malformed
// input with a *ValidationError.
func Normalize(index int, raw RawRequest) (Request, error) {
	title := strings.TrimSpace(raw.Title)
	if err := validate.Struct(raw); err != nil {
		return Request{}, fromValidator(index, title, err)
	}

	req := Request{
		Index:       index,
		Title:       title,
		Description: raw.Description,
		EventType:   strings.TrimSpace(raw.EventType),
		Split:       raw.Split,
		Recurring:   raw.Recurring,
	}

	dur, err := raw.DurationMinutes.Int()
	if err != nil {
		return Request{}, invalid(index, title, "duration_minutes", "must be an integer", err)
	}
	if dur <= 0 {
		return Request{}, invalid(index, title, "duration_minutes", "must be positive", nil)
	}
	if dur > MaxDurationMinutes {
		return Request{}, invalid(index, title, "duration_minutes", fmt.Sprintf("must be at most %d", MaxDurationMinutes), nil)
	}
	req.DurationMinutes = dur

	if req.Priority, err = ParsePriority(raw.Priority); err != nil {
		return Request{}, invalid(index, title, "priority", "must be high, medium or low", err)
	}

	if raw.SplitMinutes.Present() {
		sm, err := raw.SplitMinutes.Int()
		if err != nil {
			return Request{}, invalid(index, title, "split_minutes", "must be an integer", err)
		}
		req.SplitMinutes = sm
	}
	if req.Split && req.SplitMinutes <= 0 {
		return Request{}, invalid(index, title, "split_minutes", "required and positive when split is set", nil)
	}
	if req.Split {
		if _, err := req.Chunks(); err != nil {
			return Request{}, invalid(index, title, "split_minutes", err.Error(), err)
		}
	}

	if req.DateStart, err = optionalDate(raw.DateStart); err != nil {
		return Request{}, invalid(index, title, "date_start", "must be YYYY-MM-DD", err)
	}
	if req.DateEnd, err = optionalDate(raw.DateEnd); err != nil {
		return Request{}, invalid(index, title, "date_end", "must be YYYY-MM-DD", err)
	}
	if req.DateStart != nil && req.DateEnd != nil && req.DateEnd.Before(*req.DateStart) {
		return Request{}, invalid(index, title, "date_end", "must not be before date_start", nil)
	}

	if req.TimeStart, err = optionalClock(raw.TimeStart); err != nil {
		return Request{}, invalid(index, title, "time_start", "must be HH:MM or HH:MM:SS", err)
	}
	if req.TimeEnd, err = optionalClock(raw.TimeEnd); err != nil {
		return Request{}, invalid(index, title, "time_end", "must be HH:MM or HH:MM:SS", err)
	}
	if req.TimeStart != nil && req.TimeEnd != nil && req.TimeStart.Offset() == req.TimeEnd.Offset() {
		return Request{}, invalid(index, title, "time_end", "must differ from time_start", nil)
	}

	if req.RecurringUntil, err = optionalDate(raw.RecurringUntil); err != nil {
		return Request{}, invalid(index, title, "recurring_until", "must be YYYY-MM-DD", err)
	}
	if req.Recurring && req.RecurringUntil == nil {
		return Request{}, invalid(index, title, "recurring_until", "required when recurring is set", nil)
	}
	if req.Recurring && req.DateStart != nil && req.RecurringUntil.Before(*req.DateStart) {
		return Request{}, invalid(index, title, "recurring_until", "must not be before date_start", nil)
	}

	return req, nil
}

// NormalizeAll normalizes a batch, stopping at the first invalid request.
func NormalizeAll(raws []RawRequest) ([]Request, error) {
	out := make([]Request, 0, len(raws))
	for i, raw := range raws {
		req, err := Normalize(i, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}

// SplitIntoChunks returns the chunk durations (minutes) for a request.
// Without split the whole duration is one chunk; with split every chunk is
// splitMinutes long except possibly a shorter last one. At most MaxChunks
// chunks are produced.
func SplitIntoChunks(durationMinutes int, split bool, splitMinutes int) ([]int, error) {
	if durationMinutes > MaxDurationMinutes {
		return nil, fmt.Errorf("duration of %d minutes exceeds %d", durationMinutes, MaxDurationMinutes)
	}
	if !split {
		return []int{durationMinutes}, nil
	}
	if splitMinutes <= 0 {
		return nil, errors.New("split_minutes required when split is set")
	}
	if n := (durationMinutes + splitMinutes - 1) / splitMinutes; n > MaxChunks {
		return nil, fmt.Errorf("split into %d chunks, at most %d allowed", n, MaxChunks)
	}
	chunks := make([]int, 0, durationMinutes/splitMinutes+1)
	for remaining := durationMinutes; remaining > 0; remaining -= splitMinutes {
		chunks = append(chunks, min(splitMinutes, remaining))
	}
	return chunks, nil
}

func optionalDate(s *string) (*Date, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	d, err := ParseDate(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func optionalClock(s *string) (*Clock, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	c, err := ParseClock(*s)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func fromValidator(index int, title string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return invalid(index, title, fe.Field(), "failed "+fe.Tag()+" check", err)
	}
	return invalid(index, title, "request", "malformed", err)
}

// durationOf converts whole minutes into a time.Duration.
func durationOf(minutes int) time.Duration {
	return time.Duration(minutes) * time.Minute
}
