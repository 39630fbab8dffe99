package melody

import (
	"encoding/json"
	"fmt"
	"os"
)

// Vocabulary is the bijection between symbols and the dense integer codes
// the predictive model works with. It is immutable after construction and
// safe to share between goroutines.
type Vocabulary struct {
	codes   map[Symbol]int
	symbols []Symbol // indexed by code
}

// NewVocabulary validates a symbol -> code mapping and builds both lookup tables.
// Codes must be unique and cover 0..len(mapping)-1, and the rest, hold and
// boundary symbols must be present.
func NewVocabulary(mapping map[string]int) (*Vocabulary, error) {
	if len(mapping) == 0 {
		return nil, fmt.Errorf("%w: mapping is empty", ErrInvalidMapping)
	}

	symbols := make([]Symbol, len(mapping))
	codes := make(map[Symbol]int, len(mapping))
	for key, code := range mapping {
		if code < 0 || code >= len(mapping) {
			return nil, fmt.Errorf("%w: code %d for %q outside 0..%d", ErrInvalidMapping, code, key, len(mapping)-1)
		}
		if symbols[code] != "" {
			return nil, fmt.Errorf("%w: code %d used by both %q and %q", ErrInvalidMapping, code, symbols[code], key)
		}
		if key == "" {
			return nil, fmt.Errorf("%w: empty symbol", ErrInvalidMapping)
		}
		symbols[code] = Symbol(key)
		codes[Symbol(key)] = code
	}

	for _, required := range []Symbol{Rest, Hold, Boundary} {
		if _, ok := codes[required]; !ok {
			return nil, fmt.Errorf("%w: missing required symbol %q", ErrInvalidMapping, required)
		}
	}

	return &Vocabulary{codes: codes, symbols: symbols}, nil
}

// ParseVocabulary reads a JSON object of symbol -> code.
func ParseVocabulary(data []byte) (*Vocabulary, error) {
	var mapping map[string]int
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMapping, err)
	}
	return NewVocabulary(mapping)
}

// LoadVocabulary reads the mapping file at path.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary mapping: %w", err)
	}
	return ParseVocabulary(data)
}

// Size returns the number of symbols, which is also the length of every
// probability distribution the model returns.
func (v *Vocabulary) Size() int {
	return len(v.symbols)
}

// Code looks up the code of a symbol.
func (v *Vocabulary) Code(s Symbol) (int, bool) {
	code, ok := v.codes[s]
	return code, ok
}

// Symbol looks up the symbol of a code.
func (v *Vocabulary) Symbol(code int) (Symbol, bool) {
	if code < 0 || code >= len(v.symbols) {
		return "", false
	}
	return v.symbols[code], true
}

// Encode maps every symbol of m to its code.
func (v *Vocabulary) Encode(m Melody) ([]int, error) {
	out := make([]int, len(m))
	for i, s := range m {
		code, ok := v.codes[s]
		if !ok {
			return nil, &UnknownSymbolError{Symbol: s, Position: i}
		}
		out[i] = code
	}
	return out, nil
}

// Decode maps codes back to symbols. Unknown codes yield a DecodingError with Step set to the index.
func (v *Vocabulary) Decode(codes []int) (Melody, error) {
	out := make(Melody, len(codes))
	for i, code := range codes {
		s, ok := v.Symbol(code)
		if !ok {
			return nil, &DecodingError{Code: code, Step: i}
		}
		out[i] = s
	}
	return out, nil
}

// Symbols returns all symbols ordered by code.
func (v *Vocabulary) Symbols() []Symbol {
	out := make([]Symbol, len(v.symbols))
	copy(out, v.symbols)
	return out
}

// Mapping returns a copy of the symbol -> code table.
func (v *Vocabulary) Mapping() map[string]int {
	out := make(map[string]int, len(v.codes))
	for s, code := range v.codes {
		out[string(s)] = code
	}
	return out
}
