// Package callback encodes and decodes the opaque strings carried by menu
// buttons: category_<name>, meme_<category>_<key>, page_<category>_<n> and
// menu.
package callback
