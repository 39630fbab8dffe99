package embedded

import (
	_ "embed"
)

// Embed the default vocabulary, reference corpus and prompts
//
//go:embed data/vocabulary/mapping.json
var MappingJSON []byte

//go:embed data/corpus/reference_melodies.txt
var ReferenceMelodiesTxt []byte

//go:embed data/prompts/next_symbol_prompt.txt
var NextSymbolPromptTxt []byte
