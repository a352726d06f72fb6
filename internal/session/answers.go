package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
)

// Kind tags the shape of an answer value.
type Kind int

const (
	KindText Kind = iota
	KindSet
	KindRecord
	KindList
)

// Value is one answer: a scalar string, a set of strings, a nested record or an
// ordered list of records.
type Value struct {
	Kind   Kind
	Text   string
	Set    []string
	Record *Answers
	List   []*Answers
}

// Text returns a scalar value.
func Text(s string) Value { return Value{Kind: KindText, Text: s} }

// SetOf returns a set value; duplicates collapse.
func SetOf(items ...string) Value {
	set := slices.Clone(items)
	sort.Strings(set)
	return Value{Kind: KindSet, Set: slices.Compact(set)}
}

// RecordOf wraps a nested record.
func RecordOf(a *Answers) Value { return Value{Kind: KindRecord, Record: a} }

// ListOf returns an ordered list of records.
func ListOf(records ...*Answers) Value { return Value{Kind: KindList, List: records} }

// Has reports set membership.
func (v Value) Has(item string) bool {
	_, found := slices.BinarySearch(v.Set, item)
	return found
}

func (v Value) clone() Value {
	out := Value{Kind: v.Kind, Text: v.Text, Set: slices.Clone(v.Set)}
	if v.Record != nil {
		out.Record = v.Record.Clone()
	}
	if v.List != nil {
		out.List = make([]*Answers, len(v.List))
		for i, r := range v.List {
			out.List[i] = r.Clone()
		}
	}
	return out
}

func (v Value) equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindText:
		return v.Text == o.Text
	case KindSet:
		return slices.Equal(v.Set, o.Set)
	case KindRecord:
		return v.Record.Equal(o.Record)
	default:
		return slices.EqualFunc(v.List, o.List, func(a, b *Answers) bool { return a.Equal(b) })
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindText:
		return json.Marshal(v.Text)
	case KindSet:
		if v.Set == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.Set)
	case KindRecord:
		return json.Marshal(v.Record)
	case KindList:
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	}
	return nil, fmt.Errorf("session: unknown value kind %d", v.Kind)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("session: empty value")
	}
	switch data[0] {
	case '"':
		v.Kind = KindText
		return json.Unmarshal(data, &v.Text)
	case '{':
		v.Kind = KindRecord
		v.Record = &Answers{}
		return json.Unmarshal(data, v.Record)
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		if len(raw) > 0 && bytes.HasPrefix(bytes.TrimSpace(raw[0]), []byte("{")) {
			v.Kind = KindList
			return json.Unmarshal(data, &v.List)
		}
		v.Kind = KindSet
		if err := json.Unmarshal(data, &v.Set); err != nil {
			return err
		}
		*v = SetOf(v.Set...)
		return nil
	}
	return fmt.Errorf("session: unsupported value %s", data)
}

type field struct {
	name  string
	value Value
}

// Answers is an insertion-ordered mapping from field name to Value.
type Answers struct {
	fields []field
}

// NewAnswers returns an empty mapping.
func NewAnswers() *Answers { return &Answers{} }

func (a *Answers) index(name string) int {
	if a == nil {
		return -1
	}
	for i, f := range a.fields {
		if f.name == name {
			return i
		}
	}
	return -1
}

// Get returns the value stored under name.
func (a *Answers) Get(name string) (Value, bool) {
	i := a.index(name)
	if i < 0 {
		return Value{}, false
	}
	return a.fields[i].value, true
}

// GetText returns a scalar answer or "".
func (a *Answers) GetText(name string) string {
	v, ok := a.Get(name)
	if !ok || v.Kind != KindText {
		return ""
	}
	return v.Text
}

// Put stores v under name, keeping the original position of an existing field.
func (a *Answers) Put(name string, v Value) {
	if i := a.index(name); i >= 0 {
		a.fields[i].value = v
		return
	}
	a.fields = append(a.fields, field{name: name, value: v})
}

// Delete removes name.
func (a *Answers) Delete(name string) {
	if i := a.index(name); i >= 0 {
		a.fields = slices.Delete(a.fields, i, i+1)
	}
}

// Names returns field names in insertion order.
func (a *Answers) Names() []string {
	if a == nil {
		return nil
	}
	names := make([]string, len(a.fields))
	for i, f := range a.fields {
		names[i] = f.name
	}
	return names
}

// Len is the number of fields.
func (a *Answers) Len() int {
	if a == nil {
		return 0
	}
	return len(a.fields)
}

// Selection returns the set stored under name, or nil.
func (a *Answers) Selection(name string) []string {
	v, ok := a.Get(name)
	if !ok || v.Kind != KindSet {
		return nil
	}
	return v.Set
}

// Toggle flips membership of item in the set stored under name and reports the
// new membership. Toggling twice restores the original set.
func (a *Answers) Toggle(name, item string) bool {
	current := a.Selection(name)
	if _, found := slices.BinarySearch(current, item); found {
		next := slices.DeleteFunc(slices.Clone(current), func(s string) bool { return s == item })
		a.Put(name, Value{Kind: KindSet, Set: next})
		return false
	}
	a.Put(name, SetOf(append(slices.Clone(current), item)...))
	return true
}

// Append adds a record to the list stored under name.
func (a *Answers) Append(name string, record *Answers) {
	v, ok := a.Get(name)
	if !ok || v.Kind != KindList {
		v = ListOf()
	}
	v.List = append(v.List, record)
	a.Put(name, v)
}

// Clone returns a deep copy.
func (a *Answers) Clone() *Answers {
	if a == nil {
		return nil
	}
	out := &Answers{fields: make([]field, len(a.fields))}
	for i, f := range a.fields {
		out.fields[i] = field{name: f.name, value: f.value.clone()}
	}
	return out
}

// Equal compares contents and order. A nil mapping equals an empty one.
func (a *Answers) Equal(b *Answers) bool {
	if a.Len() != b.Len() {
		return false
	}
	for i := 0; i < a.Len(); i++ {
		fa, fb := a.fields[i], b.fields[i]
		if fa.name != fb.name || !fa.value.equal(fb.value) {
			return false
		}
	}
	return true
}

// MarshalJSON writes an object whose keys keep insertion order.
func (a *Answers) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if a != nil {
		for i, f := range a.fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(f.name)
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			val, err := f.value.MarshalJSON()
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.name, err)
			}
			buf.Write(val)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object preserving key order.
func (a *Answers) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("session: answers must be an object")
	}
	a.fields = a.fields[:0]
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("session: unexpected key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var v Value
		if err := v.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
		a.fields = append(a.fields, field{name: name, value: v})
	}
	_, err = dec.Token()
	return err
}
