package asr

import (
	"encoding/json"
	"fmt"
	"strings"
)

// languageCode discriminates the LanguageTag variants. The zero value is
// invalid so that an uninitialised tag is caught by Validate rather than
// silently meaning "French".
type languageCode uint8

const (
	langInvalid languageCode = iota
	langFr
	langEn
	langAuto
	langOther
)

// LanguageTag identifies the language of an audio stream or transcript.
// The zero value is invalid; construct tags via [LanguageFr], [LanguageEn],
// [LanguageAuto] or [LanguageOther]. Tags are comparable with ==.
type LanguageTag struct {
	code  languageCode
	other string
}

// LanguageFr returns the tag for French.
func LanguageFr() LanguageTag { return LanguageTag{code: langFr} }

// LanguageEn returns the tag for English.
func LanguageEn() LanguageTag { return LanguageTag{code: langEn} }

// LanguageAuto returns the tag requesting automatic language detection.
func LanguageAuto() LanguageTag { return LanguageTag{code: langAuto} }

// LanguageOther returns a tag carrying a free-form language code such as
// "de" or "pt-BR". The code must be non-empty after trimming whitespace.
func LanguageOther(code string) (LanguageTag, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return LanguageTag{}, InvalidInput("language code cannot be empty")
	}
	return LanguageTag{code: langOther, other: code}, nil
}

// ParseLanguageTag maps a lowercase hint string onto a tag: "fr", "en" and
// "auto" map to the named variants, anything else non-empty becomes Other.
func ParseLanguageTag(hint string) (LanguageTag, error) {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "fr":
		return LanguageFr(), nil
	case "en":
		return LanguageEn(), nil
	case "auto":
		return LanguageAuto(), nil
	case "":
		return LanguageTag{}, InvalidInput("language hint cannot be empty")
	default:
		return LanguageOther(hint)
	}
}

// IsZero reports whether the tag is the invalid zero value.
func (t LanguageTag) IsZero() bool { return t.code == langInvalid }

// IsAuto reports whether the tag requests automatic detection.
func (t LanguageTag) IsAuto() bool { return t.code == langAuto }

// Other returns the free-form code and true when the tag is an Other variant.
func (t LanguageTag) Other() (string, bool) {
	if t.code == langOther {
		return t.other, true
	}
	return "", false
}

// String renders the tag as a lowercase hint string ("fr", "en", "auto" or
// the Other code).
func (t LanguageTag) String() string {
	switch t.code {
	case langFr:
		return "fr"
	case langEn:
		return "en"
	case langAuto:
		return "auto"
	case langOther:
		return t.other
	default:
		return "invalid"
	}
}

// DecodeHint returns the language code the speech decoder should be given
// and whether one exists. Auto (and the zero value) yield no hint so the
// decoder auto-detects; Other codes are trimmed and lowercased.
func (t LanguageTag) DecodeHint() (string, bool) {
	switch t.code {
	case langFr:
		return "fr", true
	case langEn:
		return "en", true
	case langOther:
		code := strings.ToLower(strings.TrimSpace(t.other))
		if code == "" {
			return "", false
		}
		return code, true
	default:
		return "", false
	}
}

// MarshalJSON encodes named variants as the bare strings "Fr", "En" and
// "Auto", and the free-form variant as {"Other":"<code>"}.
func (t LanguageTag) MarshalJSON() ([]byte, error) {
	switch t.code {
	case langFr:
		return json.Marshal("Fr")
	case langEn:
		return json.Marshal("En")
	case langAuto:
		return json.Marshal("Auto")
	case langOther:
		return json.Marshal(struct {
			Other string `json:"Other"`
		}{Other: t.other})
	default:
		return nil, fmt.Errorf("asr: cannot marshal zero LanguageTag")
	}
}

// UnmarshalJSON decodes both representations produced by MarshalJSON.
func (t *LanguageTag) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "Fr":
			*t = LanguageFr()
			return nil
		case "En":
			*t = LanguageEn()
			return nil
		case "Auto":
			*t = LanguageAuto()
			return nil
		default:
			return fmt.Errorf("asr: unknown language tag %q", s)
		}
	}
	var obj struct {
		Other *string `json:"Other"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("asr: invalid language tag: %w", err)
	}
	if obj.Other == nil {
		return fmt.Errorf("asr: language tag object must carry an \"Other\" key")
	}
	tag, err := LanguageOther(*obj.Other)
	if err != nil {
		return err
	}
	*t = tag
	return nil
}
