package catalogue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Decode parses the persisted catalogue format. Top-level string members are
// root items and top-level object members are categories whose members are
// items. Member order is preserved. Values are kept verbatim; callers run
// Normalize afterwards. Any other shape is reported as ErrCatalogueCorrupt.
func Decode(data []byte) (Catalogue, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Catalogue{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{'); err != nil {
		return Catalogue{}, err
	}

	var c Catalogue
	for dec.More() {
		name, err := readString(dec)
		if err != nil {
			return Catalogue{}, err
		}
		tok, err := dec.Token()
		if err != nil {
			return Catalogue{}, corrupt(err)
		}
		switch v := tok.(type) {
		case string:
			c.Root = append(c.Root, Item{Key: Key(name), Asset: AssetRef(v)})
		case json.Delim:
			if v != '{' {
				return Catalogue{}, corrupt(fmt.Errorf("member %q: expected string or object", name))
			}
			items, err := decodeGroup(dec, name)
			if err != nil {
				return Catalogue{}, err
			}
			c.Categories = append(c.Categories, Group{Name: name, Items: items})
		default:
			return Catalogue{}, corrupt(fmt.Errorf("member %q: expected string or object", name))
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return Catalogue{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Catalogue{}, corrupt(errors.New("trailing data after catalogue object"))
	}
	return c, nil
}

func decodeGroup(dec *json.Decoder, category string) ([]Item, error) {
	items := []Item{}
	for dec.More() {
		key, err := readString(dec)
		if err != nil {
			return nil, err
		}
		tok, err := dec.Token()
		if err != nil {
			return nil, corrupt(err)
		}
		asset, ok := tok.(string)
		if !ok {
			return nil, corrupt(fmt.Errorf("category %q member %q: expected string file name", category, key))
		}
		items = append(items, Item{Key: Key(key), Asset: AssetRef(asset)})
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return items, nil
}

func readString(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", corrupt(err)
	}
	s, ok := tok.(string)
	if !ok {
		return "", corrupt(fmt.Errorf("expected object member name, got %v", tok))
	}
	return s, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return corrupt(err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return corrupt(fmt.Errorf("expected %q, got %v", want, tok))
	}
	return nil
}

func corrupt(err error) error {
	return fmt.Errorf("%w: %v", ErrCatalogueCorrupt, err)
}

// Encode renders c in the persisted format. A catalogue without categories is
// written flat; otherwise root items come first followed by each category
// object. Member order follows the catalogue's enumeration order.
func Encode(c Catalogue) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{")
	first := true
	member := func(indent string, name string) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.WriteString("\n" + indent)
		return writeString(&buf, name)
	}

	for _, item := range c.Root {
		if err := member("  ", string(item.Key)); err != nil {
			return nil, err
		}
		buf.WriteString(": ")
		if err := writeString(&buf, string(item.Asset)); err != nil {
			return nil, err
		}
	}
	for _, g := range c.Categories {
		if err := member("  ", g.Name); err != nil {
			return nil, err
		}
		buf.WriteString(": {")
		for i, item := range g.Items {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString("\n    ")
			if err := writeString(&buf, string(item.Key)); err != nil {
				return nil, err
			}
			buf.WriteString(": ")
			if err := writeString(&buf, string(item.Asset)); err != nil {
				return nil, err
			}
		}
		if len(g.Items) > 0 {
			buf.WriteString("\n  ")
		}
		buf.WriteByte('}')
	}
	if !first {
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

func writeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}
