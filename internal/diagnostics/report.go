package diagnostics

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Entry is the report form of one command: output on success, error text
// otherwise.
type Entry struct {
	Label  string
	OK     bool
	Output string
	Error  string
}

func (e Entry) pair() (string, string) {
	if e.OK {
		return "output", e.Output
	}
	return "error", e.Error
}

// MarshalJSON encodes the entry as {"output": ...} or {"error": ...}.
func (e Entry) MarshalJSON() ([]byte, error) {
	k, v := e.pair()
	return json.Marshal(map[string]string{k: v})
}

// MarshalYAML encodes the entry as a single-key mapping.
func (e Entry) MarshalYAML() (any, error) {
	k, v := e.pair()
	return map[string]string{k: v}, nil
}

// Report maps each command label to its entry, in battery order.
type Report struct {
	entries []Entry
}

func newReport() *Report {
	return &Report{entries: make([]Entry, 0, len(commands))}
}

func (r *Report) add(e Entry) {
	r.entries = append(r.entries, e)
}

// Len returns the number of entries.
func (r *Report) Len() int {
	return len(r.entries)
}

// Get returns the entry for label.
func (r *Report) Get(label string) (Entry, bool) {
	for _, e := range r.entries {
		if e.Label == label {
			return e, true
		}
	}
	return Entry{}, false
}

// Labels returns the labels in display order.
func (r *Report) Labels() []string {
	labels := make([]string, len(r.entries))
	for i, e := range r.entries {
		labels[i] = e.Label
	}
	return labels
}

// Entries returns a copy of the entries in display order.
func (r *Report) Entries() []Entry {
	return append([]Entry(nil), r.entries...)
}

// Failed returns the labels whose command did not succeed.
func (r *Report) Failed() []string {
	var failed []string
	for _, e := range r.entries {
		if !e.OK {
			failed = append(failed, e.Label)
		}
	}
	return failed
}

// MarshalJSON encodes the report as an object keyed by label, keeping order.
func (r *Report) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range r.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Label)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a report produced by MarshalJSON, keeping key order.
func (r *Report) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil {
		return err
	} else if tok != json.Delim('{') {
		return fmt.Errorf("report: expected object, got %v", tok)
	}

	r.entries = r.entries[:0]
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		label, _ := tok.(string)

		var fields map[string]string
		if err := dec.Decode(&fields); err != nil {
			return fmt.Errorf("report entry %q: %w", label, err)
		}

		e := Entry{Label: label}
		if out, ok := fields["output"]; ok {
			e.OK, e.Output = true, out
		} else if msg, ok := fields["error"]; ok {
			e.Error = msg
		} else {
			return fmt.Errorf("report entry %q has neither output nor error", label)
		}
		r.entries = append(r.entries, e)
	}

	_, err := dec.Token()
	return err
}

// MarshalYAML encodes the report as a mapping keyed by label, keeping order.
func (r *Report) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, e := range r.entries {
		var val yaml.Node
		if err := val.Encode(e); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Label},
			&val,
		)
	}
	return node, nil
}
