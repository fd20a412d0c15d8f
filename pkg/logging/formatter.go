package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// fieldGroup is a run of keys printed together, in this order, ahead of
// any key that belongs to no group.
type fieldGroup struct {
	keys  []string
	color color.Attribute
}

// Print order: correlation ids, saga position, failure detail.
var fieldGroups = []fieldGroup{
	{keys: []string{"request_id", "pool_id", "pool_cid", "party"}, color: color.FgGreen},
	{keys: []string{"leg", "state", "status", "dedup_key", "ledger_update_id"}, color: color.FgMagenta},
	{keys: []string{"error", "code", "status_code", "retry_after_ms"}, color: color.FgRed},
}

var fieldRank, fieldColor = func() (map[string]int, map[string]color.Attribute) {
	rank := make(map[string]int)
	colors := make(map[string]color.Attribute)
	n := 0
	for _, g := range fieldGroups {
		for _, k := range g.keys {
			n++
			rank[k] = n
			colors[k] = g.color
		}
	}
	return rank, colors
}()

// ColoredJSONFormatter renders entries as one colored console line: time,
// level and message, then key=value fields grouped by saga concern.
type ColoredJSONFormatter struct {
	TimestampFormat string
	// SortingFunc overrides the grouped key order.
	SortingFunc   func([]string) []string
	DisableColors bool
}

// NewColoredJSONFormatter returns a formatter with RFC3339 timestamps.
func NewColoredJSONFormatter() *ColoredJSONFormatter {
	return &ColoredJSONFormatter{
		TimestampFormat: time.RFC3339,
		SortingFunc:     sagaFieldOrder,
	}
}

// Format implements logrus.Formatter.
func (f *ColoredJSONFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	if f.SortingFunc != nil {
		keys = f.SortingFunc(keys)
	} else {
		sort.Strings(keys)
	}

	b := entry.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}

	levelColor := f.paint(levelAttrs(entry.Level)...)
	b.WriteString(f.paint(color.FgYellow).Sprint(entry.Time.Format(f.TimestampFormat)))
	b.WriteByte(' ')
	b.WriteString(levelColor.Sprintf("%-7s", strings.ToUpper(entry.Level.String())))
	b.WriteByte(' ')
	b.WriteString(levelColor.Sprint(entry.Message))

	for _, k := range keys {
		attr, ok := fieldColor[k]
		if !ok {
			attr = color.FgCyan
		}
		b.WriteByte(' ')
		b.WriteString(f.paint(attr).Sprintf("%s=", k))
		b.WriteString(formatValue(entry.Data[k]))
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func (f *ColoredJSONFormatter) paint(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if f.DisableColors {
		c.DisableColor()
	}
	return c
}

func formatValue(v interface{}) string {
	switch v := v.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case error:
		return fmt.Sprintf("%q", v.Error())
	case fmt.Stringer:
		return fmt.Sprintf("%q", v.String())
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}

func levelAttrs(level logrus.Level) []color.Attribute {
	switch level {
	case logrus.DebugLevel, logrus.TraceLevel:
		return []color.Attribute{color.FgBlue}
	case logrus.InfoLevel:
		return []color.Attribute{color.FgGreen}
	case logrus.WarnLevel:
		return []color.Attribute{color.FgYellow}
	case logrus.ErrorLevel:
		return []color.Attribute{color.FgRed}
	case logrus.FatalLevel, logrus.PanicLevel:
		return []color.Attribute{color.FgRed, color.Bold}
	default:
		return []color.Attribute{color.FgWhite}
	}
}

// sagaFieldOrder puts grouped keys in group order and the rest
// alphabetically after them.
func sagaFieldOrder(keys []string) []string {
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := fieldRank[keys[i]], fieldRank[keys[j]]
		switch {
		case ri != 0 && rj != 0:
			return ri < rj
		case ri != 0:
			return true
		case rj != 0:
			return false
		}
		return keys[i] < keys[j]
	})
	return keys
}
