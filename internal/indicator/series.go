package indicator

import "math"

// Series maps trading dates (YYYY-MM-DD) to indicator values. Dates before
// the indicator's warm-up are simply absent.
type Series map[string]float64

// Snapshot holds one Series per canonical indicator key. It is the read-only
// view the evaluators consume: "every indicator value observable as of some
// date".
type Snapshot map[Key]Series

// At returns the indicator value for the given key on the given date. The
// second return value is false when the series or the date is missing, or
// when the stored value is not finite.
func (s Snapshot) At(key Key, date string) (float64, bool) {
	series, ok := s[key]
	if !ok {
		return 0, false
	}
	v, ok := series[date]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Values is a point-in-time view of a Snapshot: every indicator value
// observed on one decision date. This is the shape the evaluators consume.
type Values map[Key]float64

// Get returns the value for the key, reporting false for missing or
// non-finite entries.
func (v Values) Get(key Key) (float64, bool) {
	val, ok := v[key]
	if !ok || math.IsNaN(val) || math.IsInf(val, 0) {
		return 0, false
	}
	return val, true
}

// ValuesAt projects the snapshot onto a single date. Series with no value on
// that date contribute nothing.
func (s Snapshot) ValuesAt(date string) Values {
	out := make(Values, len(s))
	for key, series := range s {
		if v, ok := series[date]; ok {
			out[key] = v
		}
	}
	return out
}

// FirstDate returns the earliest date present in the series, or "".
func (s Series) FirstDate() string {
	first := ""
	for date := range s {
		if first == "" || date < first {
			first = date
		}
	}
	return first
}
