package callback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"memebox/internal/catalogue"
)

// ErrMalformed means a payload does not match any known tag.
var ErrMalformed = errors.New("malformed callback payload")

// Tag identifies the handler a payload is routed to.
type Tag string

const (
	TagCategory Tag = "category"
	TagMeme     Tag = "meme"
	TagMenu     Tag = "menu"
	TagPage     Tag = "page"
)

const sep = "_"

// Payload is a decoded button callback.
type Payload struct {
	Tag      Tag
	Category string
	Key      catalogue.Key
	Page     int
}

// Category encodes the payload that opens a category menu.
func Category(name string) string {
	return string(TagCategory) + sep + name
}

// Meme encodes the payload that plays key from category. Root entries use
// an empty category segment.
func Meme(category string, key catalogue.Key) string {
	return string(TagMeme) + sep + category + sep + string(key)
}

// Menu encodes the payload that returns to the first menu.
func Menu() string {
	return string(TagMenu)
}

// Page encodes the payload for page n of category.
func Page(category string, n int) string {
	return string(TagPage) + sep + category + sep + strconv.Itoa(n)
}

// Decode parses a payload. Category names never contain the separator, so
// everything after the second separator of a meme payload is the key, even
// when the key itself contains underscores.
func Decode(data string) (Payload, error) {
	tag, rest, _ := strings.Cut(data, sep)
	switch Tag(tag) {
	case TagMenu:
		if rest != "" {
			break
		}
		return Payload{Tag: TagMenu}, nil
	case TagCategory:
		if rest == "" {
			break
		}
		return Payload{Tag: TagCategory, Category: rest}, nil
	case TagMeme:
		category, key, ok := strings.Cut(rest, sep)
		if !ok || key == "" {
			break
		}
		return Payload{Tag: TagMeme, Category: category, Key: catalogue.Key(key)}, nil
	case TagPage:
		category, page, ok := strings.Cut(rest, sep)
		if !ok {
			break
		}
		n, err := strconv.Atoi(page)
		if err != nil || n < 0 {
			break
		}
		return Payload{Tag: TagPage, Category: category, Page: n}, nil
	}
	return Payload{}, fmt.Errorf("%w: %q", ErrMalformed, data)
}
