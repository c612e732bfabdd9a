// Package langdetect guesses the language of short transcript snippets.
package langdetect

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pemistahl/lingua-go"
	_ "github.com/pemistahl/lingua-go/language-models/de"
	_ "github.com/pemistahl/lingua-go/language-models/en"
	_ "github.com/pemistahl/lingua-go/language-models/es"
	_ "github.com/pemistahl/lingua-go/language-models/fr"
	_ "github.com/pemistahl/lingua-go/language-models/it"
	_ "github.com/pemistahl/lingua-go/language-models/ja"
	_ "github.com/pemistahl/lingua-go/language-models/ko"
	_ "github.com/pemistahl/lingua-go/language-models/pt"
	_ "github.com/pemistahl/lingua-go/language-models/ru"
	_ "github.com/pemistahl/lingua-go/language-models/zh"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Auto is returned when the language cannot be determined.
const Auto = "auto"

// minRunes below which detection is unreliable and skipped.
const minRunes = 6

var supported = []lingua.Language{
	lingua.English,
	lingua.Chinese,
	lingua.Japanese,
	lingua.Korean,
	lingua.French,
	lingua.German,
	lingua.Spanish,
	lingua.Portuguese,
	lingua.Italian,
	lingua.Russian,
}

var (
	detector     lingua.LanguageDetector
	detectorOnce sync.Once
)

func getDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(supported...).
			WithPreloadedLanguageModels().
			Build()
	})
	return detector
}

// Detect returns the ISO 639-1 code and native display name of text's
// language, or Auto with an empty name when unsure.
func Detect(text string) (code, name string) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < minRunes {
		return Auto, ""
	}
	lang, ok := getDetector().DetectLanguageOf(text)
	if !ok {
		return Auto, ""
	}
	code = strings.ToLower(lang.IsoCode639_1().String())
	return code, Name(code)
}

// Name returns the self-name of a language code, e.g. "日本語" for "ja".
func Name(code string) string {
	if code == "" || code == Auto {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if n := display.Self.Name(tag); n != "" {
		return n
	}
	return code
}
