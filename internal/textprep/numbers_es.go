package textprep

import (
	"strconv"
	"strings"
	"unicode"
)

// maxSpelledDigits bounds the integers read as a quantity. Longer runs are
// read digit by digit, which is how phone numbers and ids are spoken.
const maxSpelledDigits = 12

var esSmall = [...]string{
	"cero", "uno", "dos", "tres", "cuatro", "cinco", "seis", "siete", "ocho", "nueve",
	"diez", "once", "doce", "trece", "catorce", "quince", "dieciséis", "diecisiete", "dieciocho", "diecinueve",
	"veinte", "veintiuno", "veintidós", "veintitrés", "veinticuatro", "veinticinco", "veintiséis", "veintisiete", "veintiocho", "veintinueve",
}

var esTens = [...]string{"", "", "", "treinta", "cuarenta", "cincuenta", "sesenta", "setenta", "ochenta", "noventa"}

var esHundreds = [...]string{"", "ciento", "doscientos", "trescientos", "cuatrocientos", "quinientos", "seiscientos", "setecientos", "ochocientos", "novecientos"}

// SpellSpanish returns the Spanish cardinal for n, 0 <= n < 10^12.
func SpellSpanish(n int64) string {
	if n == 0 {
		return esSmall[0]
	}
	millions, rest := n/1_000_000, n%1_000_000
	var parts []string
	switch {
	case millions == 1:
		parts = append(parts, "un millón")
	case millions > 1:
		parts = append(parts, belowMillion(millions, true), "millones")
	}
	if rest > 0 {
		parts = append(parts, belowMillion(rest, false))
	}
	return strings.Join(parts, " ")
}

// belowMillion spells 0 < n < 10^6. apocope shortens a trailing "uno" as
// required before "mil" and "millones".
func belowMillion(n int64, apocope bool) string {
	thousands, rest := n/1000, n%1000
	var parts []string
	switch {
	case thousands == 1:
		parts = append(parts, "mil")
	case thousands > 1:
		parts = append(parts, belowThousand(int(thousands), true), "mil")
	}
	if rest > 0 {
		parts = append(parts, belowThousand(int(rest), apocope))
	}
	return strings.Join(parts, " ")
}

func belowThousand(n int, apocope bool) string {
	if n == 100 {
		return "cien"
	}
	h, r := n/100, n%100
	var parts []string
	if h > 0 {
		parts = append(parts, esHundreds[h])
	}
	if r > 0 {
		parts = append(parts, belowHundred(r, apocope))
	}
	return strings.Join(parts, " ")
}

func belowHundred(n int, apocope bool) string {
	if n < 30 {
		switch {
		case apocope && n == 1:
			return "un"
		case apocope && n == 21:
			return "veintiún"
		}
		return esSmall[n]
	}
	word := esTens[n/10]
	switch u := n % 10; {
	case u == 0:
		return word
	case u == 1 && apocope:
		return word + " y un"
	default:
		return word + " y " + esSmall[u]
	}
}

func spellDigits(digits string) string {
	words := make([]string, 0, len(digits))
	for _, d := range digits {
		words = append(words, esSmall[d-'0'])
	}
	return strings.Join(words, " ")
}

func spellInteger(digits string) string {
	if len(digits) > maxSpelledDigits || (len(digits) > 1 && digits[0] == '0') {
		return spellDigits(digits)
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return spellDigits(digits)
	}
	return SpellSpanish(n)
}

func spellFraction(digits string) string {
	if len(digits) > 2 || digits[0] == '0' {
		return spellDigits(digits)
	}
	return spellInteger(digits)
}

// expandNumbers replaces standalone numeric literals with Spanish words.
// A literal is standalone when no letter or digit touches it. Grouped
// thousands ("1.500", "1,000,000") read as one quantity; "3,5" and "3.25"
// read as a decimal with "coma".
func expandNumbers(text string) string {
	runes := []rune(text)
	var b strings.Builder
	b.Grow(len(text) + len(text)/2)

	for i := 0; i < len(runes); {
		r := runes[i]
		if r == '-' && signPosition(runes, i) {
			if lit, end, ok := standaloneNumber(runes, i+1); ok {
				b.WriteString("menos ")
				b.WriteString(lit.words())
				i = end
				continue
			}
		}
		if !isASCIIDigit(r) || (i > 0 && isWordRune(runes[i-1])) {
			b.WriteRune(r)
			i++
			continue
		}
		lit, end, ok := standaloneNumber(runes, i)
		if ok {
			b.WriteString(lit.words())
		} else {
			b.WriteString(string(runes[i:end]))
		}
		i = end
	}
	return b.String()
}

type numberLiteral struct {
	integer  string
	fraction string
}

func (l numberLiteral) words() string {
	words := spellInteger(l.integer)
	if l.fraction != "" {
		words += " coma " + spellFraction(l.fraction)
	}
	return words
}

// scanNumber reads the literal starting at runes[start], which is a digit.
func scanNumber(runes []rune, start int) (numberLiteral, int) {
	i := digitsEnd(runes, start)
	lead := string(runes[start:i])

	// 1.500.000 and 1,500,000 style grouping. The other separator may then
	// start a decimal part.
	if len(lead) <= 3 {
		for _, sep := range [...]rune{'.', ','} {
			grouped, j := lead, i
			for j+4 <= len(runes) && runes[j] == sep && digitsEnd(runes, j+1) == j+4 {
				grouped += string(runes[j+1 : j+4])
				j += 4
			}
			if j == i {
				continue
			}
			lit := numberLiteral{integer: grouped}
			if j+1 < len(runes) && isDecimalMark(runes[j]) && runes[j] != sep && isASCIIDigit(runes[j+1]) {
				k := digitsEnd(runes, j+1)
				lit.fraction = string(runes[j+1 : k])
				j = k
			}
			return lit, j
		}
	}

	if i+1 < len(runes) && isDecimalMark(runes[i]) && isASCIIDigit(runes[i+1]) {
		k := digitsEnd(runes, i+1)
		return numberLiteral{integer: lead, fraction: string(runes[i+1 : k])}, k
	}
	return numberLiteral{integer: lead}, i
}

// standaloneNumber scans the literal at runes[start] and reports whether it
// is free of adjacent letters or digits.
func standaloneNumber(runes []rune, start int) (numberLiteral, int, bool) {
	if start >= len(runes) || !isASCIIDigit(runes[start]) {
		return numberLiteral{}, start, false
	}
	lit, end := scanNumber(runes, start)
	if end < len(runes) && isWordRune(runes[end]) {
		return lit, end, false
	}
	return lit, end, true
}

func digitsEnd(runes []rune, i int) int {
	for i < len(runes) && isASCIIDigit(runes[i]) {
		i++
	}
	return i
}

// signPosition reports whether a hyphen at runes[i] can be a minus sign:
// it starts the text or follows whitespace or an opening bracket.
func signPosition(runes []rune, i int) bool {
	if i == 0 {
		return true
	}
	prev := runes[i-1]
	return unicode.IsSpace(prev) || prev == '(' || prev == '['
}

func isASCIIDigit(r rune) bool { return r >= '0' && r <= '9' }

func isDecimalMark(r rune) bool { return r == ',' || r == '.' }

func isWordRune(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }
