// Package domain holds the value types shared by the list controller and
// its collaborators: normalized filters, pagination and the job entity.
package domain

import (
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/dthanhvu03/threadsauto-sub000/internal/errors"
)

// Known filter keys.
const (
	KeyAccountID  = "account_id"
	KeyPlatform   = "platform"
	KeyStatus     = "status"
	KeyQuery      = "q"
	KeyMinRetries = "min_retries"
	KeyFrom       = "from"
	KeyTo         = "to"
)

var (
	dateKeys    = map[string]bool{KeyFrom: true, KeyTo: true}
	numericKeys = map[string]bool{KeyMinRetries: true}
)

// Warning reports a filter value that was normalized to absent.
type Warning = apperrors.ValidationError

// Patch is a partial filter update. A nil, empty or whitespace-only value
// removes the key.
type Patch map[string]any

// FilterState is an immutable set of normalized filters. The zero value has
// no active filters. Date range bounds live under KeyFrom and KeyTo as
// RFC3339 UTC strings.
type FilterState struct {
	values map[string]string
}

// NewFilterState builds a state from p, dropping malformed values.
func NewFilterState(p Patch) (FilterState, []*Warning) {
	return FilterState{}.Merge(p)
}

// Merge returns a copy of f with p applied.
func (f FilterState) Merge(p Patch) (FilterState, []*Warning) {
	next := make(map[string]string, len(f.values)+len(p))
	maps.Copy(next, f.values)
	var warnings []*Warning
	for _, key := range slices.Sorted(maps.Keys(p)) {
		k := normalizeKey(key)
		if k == "" {
			continue
		}
		v, ok, w := normalizeValue(k, p[key])
		if w != nil {
			warnings = append(warnings, w)
		}
		if !ok {
			delete(next, k)
			continue
		}
		next[k] = v
	}
	return FilterState{values: next}, warnings
}

// Normalize re-applies normalization to every value. Normalize(Normalize(f))
// is identical to Normalize(f).
func Normalize(f FilterState) FilterState {
	p := make(Patch, len(f.values))
	for k, v := range f.values {
		p[k] = v
	}
	out, _ := FilterState{}.Merge(p)
	return out
}

// Get returns the value for key.
func (f FilterState) Get(key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}

// Values returns a copy of the normalized values.
func (f FilterState) Values() map[string]string {
	return maps.Clone(f.values)
}

// Len returns the number of active filters.
func (f FilterState) Len() int { return len(f.values) }

// Range returns the date range bounds; a zero time means unbounded.
func (f FilterState) Range() (from, to time.Time) {
	from, _ = time.Parse(time.RFC3339, f.values[KeyFrom])
	to, _ = time.Parse(time.RFC3339, f.values[KeyTo])
	return from, to
}

// Equal reports structural equality after normalization.
func (f FilterState) Equal(o FilterState) bool {
	return maps.Equal(f.values, o.values)
}

// Canonical returns a stable encoding with sorted keys.
func (f FilterState) Canonical() string {
	q := make(url.Values, len(f.values))
	for k, v := range f.values {
		q.Set(k, v)
	}
	return q.Encode()
}

func (f FilterState) String() string { return f.Canonical() }

// Patch converts the state into a patch that reproduces it.
func (f FilterState) Patch() Patch {
	p := make(Patch, len(f.values))
	for k, v := range f.values {
		p[k] = v
	}
	return p
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func normalizeValue(key string, raw any) (string, bool, *Warning) {
	if dateKeys[key] {
		return normalizeDate(key, raw)
	}
	var s string
	switch v := raw.(type) {
	case nil:
		return "", false, nil
	case string:
		s = v
	case *string:
		if v == nil {
			return "", false, nil
		}
		s = *v
	case int:
		s = strconv.Itoa(v)
	case int64:
		s = strconv.FormatInt(v, 10)
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(v)
	case time.Time:
		if v.IsZero() {
			return "", false, nil
		}
		s = v.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		s = v.String()
	default:
		return "", false, &Warning{Key: key, Value: raw, Cause: fmt.Errorf("unsupported type %T", raw)}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false, nil
	}
	if numericKeys[key] {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 0 {
			return "", false, &Warning{Key: key, Value: raw, Cause: fmt.Errorf("not a non-negative integer")}
		}
		s = strconv.FormatInt(n, 10)
	}
	return s, true, nil
}

func normalizeDate(key string, raw any) (string, bool, *Warning) {
	var t time.Time
	switch v := raw.(type) {
	case nil:
		return "", false, nil
	case time.Time:
		t = v
	case *time.Time:
		if v == nil {
			return "", false, nil
		}
		t = *v
	case int64:
		t = time.Unix(v, 0)
	case int:
		t = time.Unix(int64(v), 0)
	case *string:
		if v == nil {
			return "", false, nil
		}
		return normalizeDate(key, *v)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return "", false, nil
		}
		parsed, err := ParseDate(s)
		if err != nil {
			return "", false, &Warning{Key: key, Value: raw, Cause: err}
		}
		t = parsed
	default:
		return "", false, &Warning{Key: key, Value: raw, Cause: fmt.Errorf("unsupported type %T", raw)}
	}
	if t.IsZero() {
		return "", false, nil
	}
	return t.UTC().Truncate(time.Second).Format(time.RFC3339), true, nil
}

// ParseDate accepts RFC3339 (with or without fractional seconds), plain
// dates and unix seconds.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// Filters is the single mutation entry point for a FilterState. It is not
// safe for concurrent use; the owning controller serializes access.
type Filters struct {
	state FilterState
}

// NewFilters returns Filters initialized with defaults.
func NewFilters(defaults Patch) (*Filters, []*Warning) {
	state, warnings := NewFilterState(defaults)
	return &Filters{state: state}, warnings
}

// Set merges p into the current state and reports whether anything changed.
func (f *Filters) Set(p Patch) (bool, []*Warning) {
	next, warnings := f.state.Merge(p)
	return f.swap(next), warnings
}

// Replace discards the current state in favour of p.
func (f *Filters) Replace(p Patch) (bool, []*Warning) {
	next, warnings := NewFilterState(p)
	return f.swap(next), warnings
}

// State returns the current state.
func (f *Filters) State() FilterState { return f.state }

func (f *Filters) swap(next FilterState) bool {
	if next.Equal(f.state) {
		return false
	}
	f.state = next
	return true
}
