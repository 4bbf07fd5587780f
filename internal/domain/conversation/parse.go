package conversation

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/convo/backend/internal/domain/orders"
)

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases the text and strips diacritics so that Spanish input
// ("sí", "número") matches its unaccented keyword forms.
func Normalize(text string) string {
	out, _, err := transform.String(stripAccents, text)
	if err != nil {
		out = text
	}
	return strings.ToLower(strings.TrimSpace(out))
}

var (
	affirmatives = map[string]bool{
		"si": true, "sip": true, "dale": true, "claro": true, "obvio": true,
		"ok": true, "okay": true, "bueno": true, "listo": true, "sisi": true,
		"yes": true, "yep": true, "yeah": true, "sure": true, "tengo": true,
	}
	negatives = map[string]bool{
		"no": true, "nop": true, "nope": true, "nunca": true, "negativo": true,
	}

	labeledOrderRe = regexp.MustCompile(`(?:pedido|orden|order|compra|nro|numero|#)\s*:?\s*#?(\d{3,12})\b`)
	bareNumberRe   = regexp.MustCompile(`\b(\d{3,12})\b`)
	dniRe          = regexp.MustCompile(`(?:dni|documento|doc)\s*:?\s*(\d{7,9})\b`)
	bareDNIRe      = regexp.MustCompile(`\b(\d{7,8})\b`)
	phoneRe        = regexp.MustCompile(`(?:\+\d{1,3}[\s-]?)?(?:\d{1,4}[\s-]){2,5}\d{2,6}`)
	labeledPhoneRe = regexp.MustCompile(`(?:tel|telefono|phone|cel|celular|whatsapp)\s*:?\s*(\+?[\d\s-]{6,20})`)
	nameRe         = regexp.MustCompile(`(?:me llamo|mi nombre es|nombre\s*:?|soy)\s+([a-z]+)\s+([a-z]+)\b`)
	lastNameRe     = regexp.MustCompile(`apellido\s*:?\s*([a-z]+)\b`)
)

// DetectPolarity reads a short reply as a clear yes, a clear no, or neither.
// Only the leading tokens decide; a long sentence that happens to contain
// "no" somewhere is not a clear negative.
func DetectPolarity(text string) Polarity {
	n := Normalize(text)
	n = strings.Trim(n, "!.¡¿? ")
	tokens := strings.Fields(n)
	if len(tokens) == 0 || len(tokens) > 5 {
		return PolarityUnknown
	}

	first := strings.Trim(tokens[0], ",.!")
	if affirmatives[first] {
		return PolarityAffirmative
	}
	if negatives[first] {
		// "no tengo el numero" is still a clear negative; "no se si..."
		// with many qualifiers is not handled beyond the token cap above.
		return PolarityNegative
	}
	return PolarityUnknown
}

// ExtractOrderID finds an order id in the message. Labeled forms
// ("pedido 12345", "#12345") win; failing that, a bare 3-12 digit number is
// taken only when it cannot be confused with a DNI or phone fragment.
func ExtractOrderID(text string) int64 {
	n := Normalize(text)

	if m := labeledOrderRe.FindStringSubmatch(n); m != nil {
		return parseID(m[1])
	}

	// Remove labeled dni/phone spans before scanning bare numbers
	scrubbed := dniRe.ReplaceAllString(n, " ")
	scrubbed = labeledPhoneRe.ReplaceAllString(scrubbed, " ")
	scrubbed = phoneRe.ReplaceAllString(scrubbed, " ")

	for _, m := range bareNumberRe.FindAllStringSubmatch(scrubbed, -1) {
		// 7-8 digit bare numbers are ambiguous with DNIs; skip them
		if len(m[1]) >= 7 && len(m[1]) <= 8 {
			continue
		}
		return parseID(m[1])
	}
	return 0
}

// ExtractFactors pulls identity factors out of the message text
func ExtractFactors(text string) orders.IdentityFactors {
	n := Normalize(text)
	var f orders.IdentityFactors

	if m := dniRe.FindStringSubmatch(n); m != nil {
		f.DNI = m[1]
	}

	if m := labeledPhoneRe.FindStringSubmatch(n); m != nil {
		f.Phone = strings.TrimSpace(m[1])
	} else if m := phoneRe.FindString(n); m != "" && strings.Contains(m, "+") {
		// Unlabeled numbers only count as a phone when they carry a
		// country prefix; anything else is too easy to confuse with an
		// order id or DNI.
		f.Phone = strings.TrimSpace(m)
	}

	if m := nameRe.FindStringSubmatch(n); m != nil {
		f.Name = m[1]
		f.LastName = m[2]
	}
	if m := lastNameRe.FindStringSubmatch(n); m != nil {
		f.LastName = m[1]
	}

	// An unlabeled DNI is accepted only when an order id was found via a
	// labeled form, so the two cannot be swapped.
	if f.DNI == "" && labeledOrderRe.MatchString(n) {
		scrubbed := labeledOrderRe.ReplaceAllString(n, " ")
		scrubbed = labeledPhoneRe.ReplaceAllString(scrubbed, " ")
		scrubbed = phoneRe.ReplaceAllString(scrubbed, " ")
		if m := bareDNIRe.FindStringSubmatch(scrubbed); m != nil {
			f.DNI = m[1]
		}
	}

	return f
}

// Classify assembles the full parsed view of a message given its resolved
// intent and confidence
func Classify(text string, intent Intent, confidence float64) ClassifiedMessage {
	return ClassifiedMessage{
		Text:       text,
		Intent:     intent,
		Confidence: confidence,
		Polarity:   DetectPolarity(text),
		OrderID:    ExtractOrderID(text),
		Factors:    ExtractFactors(text),
	}
}

func parseID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
