package textindex

import (
	"github.com/kljensen/snowball/english"
	"github.com/kljensen/snowball/french"
	"github.com/kljensen/snowball/hungarian"
	"github.com/kljensen/snowball/norwegian"
	"github.com/kljensen/snowball/russian"
	"github.com/kljensen/snowball/spanish"
	"github.com/kljensen/snowball/swedish"
)

// stopWords maps each supported locale to its snowball stop list
var stopWords = map[string]func(string) bool{
	"english":   english.IsStopWord,
	"spanish":   spanish.IsStopWord,
	"french":    french.IsStopWord,
	"russian":   russian.IsStopWord,
	"swedish":   swedish.IsStopWord,
	"norwegian": norwegian.IsStopWord,
	"hungarian": hungarian.IsStopWord,
}
