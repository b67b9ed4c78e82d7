package report

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
)

// Language is a report localization code.
type Language string

const (
	LangEnglish Language = "en"
	LangTurkish Language = "tr"
)

var ErrUnsupportedLanguage = errors.New("report: unsupported language")

//go:embed locales/*.json
var localeFS embed.FS

var locales = map[Language]map[string]string{}

func init() {
	files, err := localeFS.ReadDir("locales")
	if err != nil {
		panic(fmt.Sprintf("report: read locales: %v", err))
	}
	for _, f := range files {
		name := f.Name()
		lang := Language(strings.TrimSuffix(name, path.Ext(name)))
		data, err := localeFS.ReadFile(path.Join("locales", name))
		if err != nil {
			panic(fmt.Sprintf("report: load locale %s: %v", lang, err))
		}
		var parsed map[string]string
		if err := json.Unmarshal(data, &parsed); err != nil {
			panic(fmt.Sprintf("report: parse locale %s: %v", lang, err))
		}
		locales[lang] = parsed
	}
}

// Languages lists the embedded locales.
func Languages() []Language {
	out := make([]Language, 0, len(locales))
	for lang := range locales {
		out = append(out, lang)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Translator resolves report labels for one language, falling back to
// English for missing keys.
type Translator struct {
	lang Language
	data map[string]string
}

func NewTranslator(lang Language) Translator {
	data, ok := locales[lang]
	if !ok {
		lang = LangEnglish
		data = locales[LangEnglish]
	}
	return Translator{lang: lang, data: data}
}

func (t Translator) Lang() Language {
	return t.lang
}

func (t Translator) T(key string) string {
	if val, ok := t.data[key]; ok {
		return val
	}
	if val, ok := locales[LangEnglish][key]; ok {
		return val
	}
	return key
}

func (t Translator) Format(key string, args ...interface{}) string {
	return fmt.Sprintf(t.T(key), args...)
}

// ParseLanguage maps a flag or LANG value such as "tr_TR.UTF-8" to a Language.
func ParseLanguage(lang string) (Language, error) {
	v := strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(v, "._-"); i >= 0 {
		v = v[:i]
	}
	switch v {
	case "", "c", "posix", "en", "english":
		return LangEnglish, nil
	case "tr", "turkish", "turkce":
		return LangTurkish, nil
	}
	if _, ok := locales[Language(v)]; ok {
		return Language(v), nil
	}
	return LangEnglish, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
}
