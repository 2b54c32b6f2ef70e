package records

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedCollection indicates a collection document that cannot be decoded.
var ErrMalformedCollection = errors.New("malformed collection")

// contentKey is the document key holding the record array.
const contentKey = "content"

// Collection is the persisted document of one scope.
//
// Content is the typed view used for identity checks. The document is also
// kept as read: rewriting it preserves unknown top-level keys and the exact
// encoding of every existing record, including fields this package does not
// know about.
type Collection struct {
	Content []Record `json:"content"`

	elements []json.RawMessage
	fields   map[string]json.RawMessage
}

// NewCollection returns an empty collection that encodes content as [].
func NewCollection() *Collection {
	return &Collection{
		Content:  []Record{},
		elements: []json.RawMessage{},
		fields:   map[string]json.RawMessage{},
	}
}

// Contains reports whether a record with the given key is present.
func (c *Collection) Contains(key Key) bool {
	if c == nil {
		return false
	}
	for _, r := range c.Content {
		if r.Key() == key {
			return true
		}
	}
	return false
}

// Keys returns the string form of every identity key in insertion order.
func (c *Collection) Keys() []string {
	if c == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Content))
	for _, r := range c.Content {
		keys = append(keys, r.Key().String())
	}
	return keys
}

// add appends a record to both views.
func (c *Collection) add(r Record) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	c.Content = append(c.Content, r)
	c.elements = append(c.elements, raw)
	return nil
}

// encode renders the document. Existing records are written back verbatim.
func (c *Collection) encode() ([]byte, error) {
	doc := make(map[string]json.RawMessage, len(c.fields)+1)
	for k, v := range c.fields {
		doc[k] = v
	}

	var (
		content []byte
		err     error
	)
	if len(c.elements) == len(c.Content) {
		content, err = json.Marshal(append([]json.RawMessage{}, c.elements...))
	} else {
		// Content was built by hand; only the typed view is available.
		content, err = json.Marshal(append([]Record{}, c.Content...))
	}
	if err != nil {
		return nil, fmt.Errorf("marshal content: %w", err)
	}
	doc[contentKey] = content

	return json.MarshalIndent(doc, "", "  ")
}

// decodeCollection parses a non-empty document.
func decodeCollection(data []byte) (*Collection, error) {
	coll := NewCollection()

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCollection, err)
	}
	if fields == nil {
		return coll, nil
	}

	var elements []json.RawMessage
	if raw, ok := fields[contentKey]; ok {
		if err := json.Unmarshal(raw, &elements); err != nil {
			return nil, fmt.Errorf("%w: content: %v", ErrMalformedCollection, err)
		}
	}
	delete(fields, contentKey)
	coll.fields = fields

	for i, el := range elements {
		var r Record
		if err := json.Unmarshal(el, &r); err != nil {
			return nil, fmt.Errorf("%w: content[%d]: %v", ErrMalformedCollection, i, err)
		}
		coll.Content = append(coll.Content, r)
		coll.elements = append(coll.elements, el)
	}
	return coll, nil
}
