package callback_test

import (
	"errors"
	"testing"

	"memebox/internal/callback"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		data string
		want callback.Payload
	}{
		{"category", "category_sfx", callback.Payload{Tag: callback.TagCategory, Category: "sfx"}},
		{"meme", "meme_sfx_boing", callback.Payload{Tag: callback.TagMeme, Category: "sfx", Key: "boing"}},
		{"meme key with delimiter", "meme_sfx_air_horn_2", callback.Payload{Tag: callback.TagMeme, Category: "sfx", Key: "air_horn_2"}},
		{"root meme", "meme__laugh", callback.Payload{Tag: callback.TagMeme, Key: "laugh"}},
		{"menu", "menu", callback.Payload{Tag: callback.TagMenu}},
		{"page", "page_sfx_3", callback.Payload{Tag: callback.TagPage, Category: "sfx", Page: 3}},
		{"root page", "page__0", callback.Payload{Tag: callback.TagPage}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := callback.Decode(tc.data)
			if err != nil {
				t.Fatalf("Decode(%q) failed: %v", tc.data, err)
			}
			if got != tc.want {
				t.Fatalf("Decode(%q) = %#v, want %#v", tc.data, got, tc.want)
			}
		})
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	for _, data := range []string{"", "bogus", "category_", "meme_sfx", "meme_sfx_", "page_sfx_x", "page_sfx_-1", "menu_extra"} {
		if _, err := callback.Decode(data); !errors.Is(err, callback.ErrMalformed) {
			t.Fatalf("Decode(%q): expected ErrMalformed, got %v", data, err)
		}
	}
}

func TestEncodeDecodeAgree(t *testing.T) {
	payloads := map[string]callback.Payload{
		callback.Category("music"):      {Tag: callback.TagCategory, Category: "music"},
		callback.Meme("music", "a_b c"): {Tag: callback.TagMeme, Category: "music", Key: "a_b c"},
		callback.Menu():                 {Tag: callback.TagMenu},
		callback.Page("music", 12):      {Tag: callback.TagPage, Category: "music", Page: 12},
	}
	for data, want := range payloads {
		got, err := callback.Decode(data)
		if err != nil || got != want {
			t.Fatalf("Decode(%q) = %#v, %v; want %#v", data, got, err, want)
		}
	}
}
