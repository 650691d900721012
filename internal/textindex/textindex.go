package textindex

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/kljensen/snowball"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/cwysong85/whenr-database/pkg/types"
)

const (
	// DefaultLocale is the stemming profile used when none is configured
	DefaultLocale = "english"
	// DefaultPrimaryWeight is the relevance weight of tier A lexemes
	DefaultPrimaryWeight = 1.0
	// DefaultSecondaryWeight is the relevance weight of tier B lexemes
	DefaultSecondaryWeight = 0.4
)

var (
	// ErrUnsupportedLocale is returned for locales without a stemmer
	ErrUnsupportedLocale = errors.New("unsupported text search locale")
	// ErrInvalidWeights is returned when tier A does not outrank tier B
	ErrInvalidWeights = errors.New("primary weight must be greater than secondary weight and both positive")
)

// Profile is the process-wide text search configuration. It is fixed at
// startup; the Indexer copies it and never exposes a way to mutate it.
type Profile struct {
	Locale          string
	PrimaryWeight   float64
	SecondaryWeight float64
}

// DefaultProfile returns the english profile with weights A=1.0, B=0.4
func DefaultProfile() Profile {
	return Profile{
		Locale:          DefaultLocale,
		PrimaryWeight:   DefaultPrimaryWeight,
		SecondaryWeight: DefaultSecondaryWeight,
	}
}

// Validate checks locale support and the weight ordering
func (p Profile) Validate() error {
	if _, ok := stopWords[p.Locale]; !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedLocale, p.Locale)
	}
	if p.SecondaryWeight <= 0 || p.PrimaryWeight <= p.SecondaryWeight {
		return ErrInvalidWeights
	}
	return nil
}

// Indexer derives weighted text representations
type Indexer struct {
	profile Profile
	isStop  func(string) bool
}

// New creates an Indexer for the given profile
func New(profile Profile) (*Indexer, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	// Probe the stemmer once so Derive never sees a language error
	if _, err := snowball.Stem("testing", profile.Locale, true); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedLocale, err)
	}
	return &Indexer{
		profile: profile,
		isStop:  stopWords[profile.Locale],
	}, nil
}

// Profile returns a copy of the configured profile
func (ix *Indexer) Profile() Profile {
	return ix.profile
}

// Derive builds the representation of a primary (title/name) and an optional
// secondary (description) field. Nil fields are treated as empty; the result is
// a pure function of the two inputs.
func (ix *Indexer) Derive(primary, secondary *string) types.TextRepresentation {
	type key struct {
		term   string
		weight types.Weight
	}
	positions := make(map[key][]int)

	pos := 0
	add := func(text *string, w types.Weight) {
		if text == nil {
			return
		}
		for _, tok := range tokenize(*text) {
			pos++
			term, ok := ix.normalize(tok)
			if !ok {
				continue
			}
			k := key{term: term, weight: w}
			positions[k] = append(positions[k], pos)
		}
	}
	add(primary, types.WeightA)
	add(secondary, types.WeightB)

	lexemes := make([]types.Lexeme, 0, len(positions))
	for k, p := range positions {
		lexemes = append(lexemes, types.Lexeme{Term: k.term, Weight: k.weight, Positions: p})
	}
	sort.Slice(lexemes, func(i, j int) bool {
		if lexemes[i].Term != lexemes[j].Term {
			return lexemes[i].Term < lexemes[j].Term
		}
		return lexemes[i].Weight < lexemes[j].Weight
	})
	return types.TextRepresentation{Lexemes: lexemes}
}

// QueryTerms analyzes free query text with the same pipeline as Derive.
// Terms are deduplicated and keep their first-seen order.
func (ix *Indexer) QueryTerms(query string) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, tok := range tokenize(query) {
		term, ok := ix.normalize(tok)
		if !ok {
			continue
		}
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
	}
	return terms
}

// normalize drops stop words and stems the token. The token is already folded.
func (ix *Indexer) normalize(tok string) (string, bool) {
	if ix.isStop(tok) {
		return "", false
	}
	stemmed, err := snowball.Stem(tok, ix.profile.Locale, true)
	if err != nil || stemmed == "" {
		return tok, true
	}
	return stemmed, true
}

// tokenize folds diacritics and case, then splits on anything that is not a letter or digit
func tokenize(text string) []string {
	folded, _, err := transform.String(foldChain(), text)
	if err != nil {
		folded = text
	}
	return strings.FieldsFunc(strings.ToLower(folded), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// foldChain returns a fresh transformer; transformers carry state and are not shared
func foldChain() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}
