package matchers

import (
	"sort"
	"sync"
)

// Dump keeps the structured data the analyzer hands out after each time
// change. Register it with AddTimeListener.
type Dump struct {
	mu        sync.Mutex
	last      map[string]interface{}
	snapshots int
}

func NewDump() *Dump {
	return &Dump{}
}

func (d *Dump) TimeChanged() {}

func (d *Dump) SetDataSet(data map[string]interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = data
	d.snapshots++
}

// Last is the most recent snapshot, nil before the first time change.
func (d *Dump) Last() map[string]interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Snapshots is the number of snapshots received.
func (d *Dump) Snapshots() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshots
}

// Row is one leaf of a snapshot.
type Row struct {
	Matcher string
	Key     string
	Value   interface{}
}

// Rows flattens the last snapshot.
func (d *Dump) Rows() []Row {
	return Rows(d.Last())
}

// Rows flattens data as returned by CollectData into matcher/key/value rows
// sorted by matcher and key. Nested keys are joined with "/".
func Rows(snapshot map[string]interface{}) []Row {
	var rows []Row
	for matcher, data := range snapshot {
		group, ok := data.(map[string]interface{})
		if !ok {
			rows = append(rows, Row{Matcher: matcher, Value: data})
			continue
		}
		rows = flatten(rows, matcher, "", group)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Matcher != rows[j].Matcher {
			return rows[i].Matcher < rows[j].Matcher
		}
		return rows[i].Key < rows[j].Key
	})
	return rows
}

func flatten(rows []Row, matcher, prefix string, m map[string]interface{}) []Row {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "/" + k
		}
		if sub, ok := v.(map[string]interface{}); ok {
			rows = flatten(rows, matcher, key, sub)
			continue
		}
		rows = append(rows, Row{Matcher: matcher, Key: key, Value: v})
	}
	return rows
}
