package media

import "path"

// Locale names the sound directories for one language.
type Locale struct {
	Language   string
	Prompts    string
	Digits     string
	Numbers    string
	Connective string
}

var locales = map[string]Locale{
	"ar": {Language: "ar", Prompts: "ar", Digits: "ar/digits", Numbers: "ar/numbers", Connective: "wa"},
	"en": {Language: "en", Prompts: "custom", Digits: "digits", Numbers: "numbers", Connective: "and"},
}

// LocaleFor returns the locale of language, falling back to English.
func LocaleFor(language string) Locale {
	if l, ok := locales[language]; ok {
		return l
	}
	return locales["en"]
}

func (l Locale) Prompt(name string) string {
	return sound(l.Prompts, name)
}

func (l Locale) Digit(d string) string {
	return sound(l.Digits, d)
}

// Number maps a unit returned by Units to its media reference.
func (l Locale) Number(unit string) string {
	if unit == Connective {
		unit = l.Connective
	}
	return sound(l.Numbers, unit)
}

func sound(dir, name string) string {
	return "sound:" + path.Join(dir, name)
}
