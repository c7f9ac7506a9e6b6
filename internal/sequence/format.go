// Package sequence renders and validates machine sequences from category templates.
//
// A template is a string such as "{sequence}-{category}-{subcategory}". Rendering
// substitutes formatted names and a zero-padded counter, then tidies hyphens.
//
// Validation deliberately runs two schemes. SchemeCurrent matches names formatted the
// way Render formats them today (punctuation kept). SchemeLegacy matches names reduced
// to a conservative slug (letters, digits and spaces only), which is how sequences were
// rendered before punctuation was preserved. Both paths stay separate so that adding a
// third scheme later is an explicit decision.
package sequence

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"dispatchconsole/internal/apperror"
)

const (
	PlaceholderCategory    = "{category}"
	PlaceholderSubcategory = "{subcategory}"
	PlaceholderSequence    = "{sequence}"
	PlaceholderPrefix      = "{prefix}"

	MaxPrefixLength = 10
)

var (
	placeholderPattern = regexp.MustCompile(`\{[A-Za-z_]+\}`)
	prefixPattern      = regexp.MustCompile(`^[A-Z0-9-]+$`)
	hyphenRun          = regexp.MustCompile(`-{2,}`)
	whitespaceRun      = regexp.MustCompile(`\s+`)
)

// absentName matches any name that was not supplied at validation time.
const absentName = `\S+`

// Scheme selects how category and subcategory names are reduced before matching.
type Scheme int

const (
	SchemeCurrent Scheme = iota
	SchemeLegacy
)

// Schemes lists every scheme a stored sequence may have been rendered with, newest first.
var Schemes = []Scheme{SchemeCurrent, SchemeLegacy}

func (s Scheme) String() string {
	switch s {
	case SchemeCurrent:
		return "current"
	case SchemeLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// Names identifies the scope a sequence belongs to. Empty fields are treated as absent.
type Names struct {
	Prefix      string
	Category    string
	Subcategory string
}

// Values are the inputs to Render.
type Values struct {
	Names
	Number int
}

// ValidateTemplate reports an InvalidTemplate error unless template contains
// {category} and exactly one {sequence}, and no unknown placeholders.
func ValidateTemplate(template string) error {
	if strings.TrimSpace(template) == "" {
		return apperror.InvalidTemplate("template must not be empty")
	}

	var missing []string
	if !strings.Contains(template, PlaceholderCategory) {
		missing = append(missing, PlaceholderCategory)
	}
	if !strings.Contains(template, PlaceholderSequence) {
		missing = append(missing, PlaceholderSequence)
	}
	if len(missing) > 0 {
		return apperror.InvalidTemplate("template must contain " + strings.Join(missing, " and "))
	}
	if strings.Count(template, PlaceholderSequence) > 1 {
		return apperror.InvalidTemplate("template must contain {sequence} exactly once")
	}

	for _, p := range placeholderPattern.FindAllString(template, -1) {
		switch p {
		case PlaceholderCategory, PlaceholderSubcategory, PlaceholderSequence, PlaceholderPrefix:
		default:
			return apperror.InvalidTemplate("unknown placeholder " + p)
		}
	}
	return nil
}

// ValidatePrefix checks the config prefix: uppercase letters, digits and hyphens, at most 10 characters.
func ValidatePrefix(prefix string) error {
	if len(prefix) > MaxPrefixLength {
		return apperror.Validation(fmt.Sprintf("prefix must be at most %d characters", MaxPrefixLength))
	}
	if !prefixPattern.MatchString(prefix) {
		return apperror.Validation("prefix must match [A-Z0-9-]+")
	}
	return nil
}

// FormatName uppercases name and turns internal whitespace into single hyphens.
// Punctuation is kept: "Pumps (Heavy)" becomes "PUMPS-(HEAVY)".
func FormatName(name string) string {
	s := strings.ToUpper(strings.TrimSpace(name))
	s = whitespaceRun.ReplaceAllString(s, "-")
	return tidy(s)
}

// LegacySlug reduces name the way sequences were rendered before punctuation was kept:
// only letters, digits and spaces survive, spaces become hyphens.
// "Pumps (Heavy)" becomes "PUMPS-HEAVY".
func LegacySlug(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToUpper(r))
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	s := whitespaceRun.ReplaceAllString(strings.TrimSpace(b.String()), "-")
	return tidy(s)
}

func formatPrefix(prefix string) string {
	return tidy(strings.TrimSpace(prefix))
}

// tidy collapses repeated hyphens and strips leading and trailing ones.
func tidy(s string) string {
	return strings.Trim(hyphenRun.ReplaceAllString(s, "-"), "-")
}

// Render produces the sequence for v under template.
func Render(template string, v Values) (string, error) {
	if err := ValidateTemplate(template); err != nil {
		return "", err
	}
	if v.Number < 0 {
		return "", apperror.Validation("sequence number must not be negative")
	}
	category := FormatName(v.Category)
	if category == "" {
		return "", apperror.Validation("category name is required to render a sequence")
	}

	r := strings.NewReplacer(
		PlaceholderPrefix, formatPrefix(v.Prefix),
		PlaceholderCategory, category,
		PlaceholderSubcategory, FormatName(v.Subcategory),
		PlaceholderSequence, fmt.Sprintf("%03d", v.Number),
	)
	return tidy(r.Replace(template)), nil
}

// Validate reports whether candidate could have been rendered from template for names,
// under either the current or the legacy naming scheme.
func Validate(candidate, template string, names Names) bool {
	_, ok := MatchedScheme(candidate, template, names)
	return ok
}

// MatchedScheme returns the first scheme under which candidate validates.
func MatchedScheme(candidate, template string, names Names) (Scheme, bool) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return SchemeCurrent, false
	}
	for _, scheme := range Schemes {
		re, err := Pattern(template, names, scheme)
		if err != nil {
			return SchemeCurrent, false
		}
		if re.MatchString(candidate) {
			return scheme, true
		}
	}
	return SchemeCurrent, false
}

// ExtractNumber recovers the counter value embedded in candidate.
func ExtractNumber(candidate, template string, names Names) (int, bool) {
	candidate = strings.TrimSpace(candidate)
	for _, scheme := range Schemes {
		re, err := compile(template, names, scheme, true)
		if err != nil {
			return 0, false
		}
		m := re.FindStringSubmatch(candidate)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		return n, true
	}
	return 0, false
}

// Pattern builds the case-insensitive, anchored regular expression for scheme.
func Pattern(template string, names Names, scheme Scheme) (*regexp.Regexp, error) {
	return compile(template, names, scheme, false)
}

type segment struct {
	text        string // literal text, or the placeholder itself
	placeholder bool
	pattern     string
}

func compile(template string, names Names, scheme Scheme, capture bool) (*regexp.Regexp, error) {
	if err := ValidateTemplate(template); err != nil {
		return nil, err
	}

	segs := tokenize(template)
	for i := range segs {
		if segs[i].placeholder {
			continue
		}
		segs[i].text = hyphenRun.ReplaceAllString(segs[i].text, "-")
		if i == 0 {
			segs[i].text = strings.TrimLeft(segs[i].text, "-")
		}
		if i == len(segs)-1 {
			segs[i].text = strings.TrimRight(segs[i].text, "-")
		}
	}

	reduce := FormatName
	if scheme == SchemeLegacy {
		reduce = LegacySlug
	}

	for i := range segs {
		if !segs[i].placeholder {
			continue
		}
		var value string
		switch segs[i].text {
		case PlaceholderSequence:
			if capture {
				segs[i].pattern = `(\d+)`
			} else {
				segs[i].pattern = `\d+`
			}
			continue
		case PlaceholderCategory:
			value = reduce(names.Category)
		case PlaceholderSubcategory:
			value = reduce(names.Subcategory)
		case PlaceholderPrefix:
			value = formatPrefix(names.Prefix)
		}
		if value != "" {
			segs[i].pattern = regexp.QuoteMeta(value)
			continue
		}
		// Render drops an empty name together with one of its separators, so the
		// wildcard owns an adjacent hyphen and the whole group is optional.
		switch {
		case i > 0 && !segs[i-1].placeholder && strings.HasSuffix(segs[i-1].text, "-"):
			segs[i-1].text = strings.TrimSuffix(segs[i-1].text, "-")
			segs[i].pattern = `(?:-` + absentName + `)?`
		case i+1 < len(segs) && !segs[i+1].placeholder && strings.HasPrefix(segs[i+1].text, "-"):
			segs[i+1].text = strings.TrimPrefix(segs[i+1].text, "-")
			segs[i].pattern = `(?:` + absentName + `-)?`
		default:
			segs[i].pattern = `(?:` + absentName + `)?`
		}
	}

	var b strings.Builder
	b.WriteString(`(?i)^`)
	for _, s := range segs {
		if s.placeholder {
			b.WriteString(s.pattern)
		} else {
			b.WriteString(regexp.QuoteMeta(s.text))
		}
	}
	b.WriteString(`$`)
	return regexp.Compile(b.String())
}

func tokenize(template string) []segment {
	var segs []segment
	last := 0
	for _, loc := range placeholderPattern.FindAllStringIndex(template, -1) {
		if loc[0] > last {
			segs = append(segs, segment{text: template[last:loc[0]]})
		}
		segs = append(segs, segment{text: template[loc[0]:loc[1]], placeholder: true})
		last = loc[1]
	}
	if last < len(template) {
		segs = append(segs, segment{text: template[last:]})
	}
	return segs
}
