package booking

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"bookcal/internal/model"
)

// weekMap is the decoded storage value: week key to the raw JSON of that
// week. Weeks are only decoded when needed, so weeks nobody toggles are
// written back unchanged.
type weekMap map[string]json.RawMessage

// decodeWeeks parses the stored value. Anything unreadable yields an empty
// map rather than an error: a corrupt store must never break the widget.
func decodeWeeks(raw string) (weekMap, bool) {
	weeks := weekMap{}
	if strings.TrimSpace(raw) == "" {
		return weeks, true
	}
	if err := json.Unmarshal([]byte(raw), &weeks); err != nil || weeks == nil {
		return weekMap{}, false
	}
	return weeks, true
}

func (w weekMap) encode() (string, error) {
	data, err := json.Marshal(map[string]json.RawMessage(w))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// bucket decodes one week. Malformed days and non-integer or negative rows
// are dropped; duplicate rows collapse.
func (w weekMap) bucket(week string) model.WeekBucket {
	b := model.WeekBucket{}
	raw, ok := w[week]
	if !ok {
		return b
	}
	var days map[string]json.RawMessage
	if err := json.Unmarshal(raw, &days); err != nil {
		return b
	}
	for key, value := range days {
		day, ok := parseDayKey(key)
		if !ok {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(value, &items); err != nil {
			continue
		}
		seen := map[int]bool{}
		rows := make([]int, 0, len(items))
		for _, item := range items {
			var r int
			if err := json.Unmarshal(item, &r); err != nil || r < 0 || seen[r] {
				continue
			}
			seen[r] = true
			rows = append(rows, r)
		}
		if len(rows) == 0 {
			continue
		}
		sort.Ints(rows)
		b[day] = rows
	}
	return b
}

// put stores b under week, removing the week when nothing is booked.
func (w weekMap) put(week string, b model.WeekBucket) error {
	if b.Empty() {
		delete(w, week)
		return nil
	}
	days := make(map[string][]int, len(b))
	for d, rows := range b {
		if len(rows) == 0 {
			continue
		}
		days[dayKey(d)] = rows
	}
	data, err := json.Marshal(days)
	if err != nil {
		return err
	}
	w[week] = data
	return nil
}

// weeks returns the week keys in ascending order.
func (w weekMap) weeks() []string {
	keys := make([]string, 0, len(w))
	for k := range w {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func dayKey(d int) string {
	return "d" + strconv.Itoa(d)
}

func parseDayKey(key string) (int, bool) {
	if len(key) != 2 || key[0] != 'd' {
		return 0, false
	}
	d := int(key[1] - '0')
	if d < 0 || d >= model.DaysPerWeek {
		return 0, false
	}
	return d, true
}
