// SPDX-License-Identifier: MIT
package export

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoTemplate is returned when code generation is requested without
// template text.
var ErrNoTemplate = errors.New("no code template provided")

// CodeTemplate describes how generated source code is laid out. Text
// is the full template; the remaining fields feed its placeholders.
// BufferNameFormat may itself contain placeholders, typically
// @{index}.
type CodeTemplate struct {
	Text              string
	VarName           string
	LengthName        string
	BufferNameFormat  string
	BufferArrayName   string
	SilenceBufferName string
}

// CodeSettings selects the generation mode and supplies its data.
type CodeSettings struct {
	// Carousel expands buffer-iterator lines once per burst; otherwise
	// the whole signal becomes a single array.
	Carousel       bool
	Template       CodeTemplate
	Bursts         [][]float64
	SilenceSamples int
	GeneratorType  string
}

// GenerateCode renders the template into source code embedding the
// audio as int16 literals.
//
// Placeholders use the @{name} form. A placeholder containing
// arithmetic (+ - * / with optional parentheses) is evaluated after
// substituting named operands; unknown names degrade to the bare name
// instead of failing the whole render. In carousel mode every line
// containing @{buffer_name} is repeated per burst with @{index} and
// @{data} bound to that burst.
func GenerateCode(signal []float64, s CodeSettings) (string, error) {
	if s.Template.Text == "" {
		return "", ErrNoTemplate
	}
	if s.Carousel {
		return generateCarousel(s)
	}
	return generateSingle(signal, s.Template), nil
}

func generateSingle(signal []float64, t CodeTemplate) string {
	data := make([]string, len(signal))
	for i, v := range signal {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		data[i] = strconv.Itoa(int(int16(v * 32767)))
	}

	varName := t.VarName
	if varName == "" {
		varName = "audioData"
	}
	lengthName := t.LengthName
	if lengthName == "" {
		lengthName = "AUDIO_LENGTH"
	}
	values := map[string]string{
		"var_name":    varName,
		"length_name": lengthName,
		"length":      strconv.Itoa(len(signal)),
		"array_data":  strings.Join(data, ", "),
	}
	return expand(t.Text, values)
}

func generateCarousel(s CodeSettings) (string, error) {
	if len(s.Bursts) == 0 {
		return "", errors.New("no bursts available for carousel")
	}
	t := s.Template

	values := map[string]string{
		"num_buffers":         strconv.Itoa(len(s.Bursts)),
		"samples_per_buffer":  strconv.Itoa(len(s.Bursts[0])),
		"silence_samples":     strconv.Itoa(s.SilenceSamples),
		"generator_type":      s.GeneratorType,
		"buffer_array_name":   t.BufferArrayName,
		"silence_buffer_name": t.SilenceBufferName,
		"silence_data":        "0",
		"buffer_name":         t.BufferNameFormat,
		"data":                "",
		"index":               "0",
	}

	lines := strings.Split(t.Text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if !strings.Contains(line, "@{buffer_name}") {
			out = append(out, line)
			continue
		}
		for i, burst := range s.Bursts {
			values["index"] = strconv.Itoa(i)
			values["data"] = int16CSV(burst)
			out = append(out, expand(line, values))
		}
	}
	text := strings.Join(out, "\n")

	// The buffer array initializer needs the full list of expanded
	// buffer names.
	names := make([]string, len(s.Bursts))
	for i := range names {
		values["index"] = strconv.Itoa(i)
		names[i] = expand(t.BufferNameFormat, values)
	}
	values["buffer_list"] = strings.Join(names, ", ")

	return expand(text, values), nil
}

// int16CSV converts a burst to comma-separated int16 literals, clipped
// at the int16 boundary.
func int16CSV(burst []float64) string {
	var sb strings.Builder
	for i, v := range burst {
		x := v * 32767
		if x > 32767 {
			x = 32767
		} else if x < -32767 {
			x = -32767
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.Itoa(int(int16(x))))
	}
	return sb.String()
}

var tokenPattern = regexp.MustCompile(`@\{([^}]+)\}`)

// expand resolves @{...} placeholders. Replacement values may contain
// further placeholders (buffer name formats do), so expansion repeats
// until the text settles, with a pass cap against cyclic formats.
func expand(text string, values map[string]string) string {
	for pass := 0; pass < 8; pass++ {
		if !tokenPattern.MatchString(text) {
			break
		}
		text = tokenPattern.ReplaceAllStringFunc(text, func(tok string) string {
			return resolve(tok[2:len(tok)-1], values)
		})
	}
	return text
}

func resolve(param string, values map[string]string) string {
	if !strings.ContainsAny(param, "+-*/()") {
		if v, ok := values[param]; ok {
			return v
		}
		return param
	}
	if result, ok := evalArithmetic(param, values); ok {
		return result
	}
	if v, ok := values[param]; ok {
		return v
	}
	return param
}

// evalArithmetic substitutes named operands and evaluates the
// expression. Anything that does not reduce to numbers reports false.
func evalArithmetic(param string, values map[string]string) (string, bool) {
	tokens := tokenizeExpr(param, values)
	if tokens == nil {
		return "", false
	}
	p := &exprParser{tokens: tokens}
	v, ok := p.parseExpr()
	if !ok || p.pos != len(p.tokens) {
		return "", false
	}
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10), true
	}
	return strconv.FormatFloat(v, 'g', -1, 64), true
}

func tokenizeExpr(param string, values map[string]string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() bool {
		if cur.Len() == 0 {
			return true
		}
		word := strings.TrimSpace(cur.String())
		cur.Reset()
		if word == "" {
			return true
		}
		if v, ok := values[word]; ok {
			word = v
		}
		if _, err := strconv.ParseFloat(word, 64); err != nil {
			return false
		}
		tokens = append(tokens, word)
		return true
	}
	for _, r := range param {
		switch r {
		case '+', '-', '*', '/', '(', ')':
			if !flush() {
				return nil
			}
			tokens = append(tokens, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	if !flush() {
		return nil
	}
	return tokens
}

type exprParser struct {
	tokens []string
	pos    int
}

func (p *exprParser) peek() string {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return ""
}

func (p *exprParser) parseExpr() (float64, bool) {
	v, ok := p.parseTerm()
	if !ok {
		return 0, false
	}
	for {
		switch p.peek() {
		case "+":
			p.pos++
			rhs, ok := p.parseTerm()
			if !ok {
				return 0, false
			}
			v += rhs
		case "-":
			p.pos++
			rhs, ok := p.parseTerm()
			if !ok {
				return 0, false
			}
			v -= rhs
		default:
			return v, true
		}
	}
}

func (p *exprParser) parseTerm() (float64, bool) {
	v, ok := p.parseFactor()
	if !ok {
		return 0, false
	}
	for {
		switch p.peek() {
		case "*":
			p.pos++
			rhs, ok := p.parseFactor()
			if !ok {
				return 0, false
			}
			v *= rhs
		case "/":
			p.pos++
			rhs, ok := p.parseFactor()
			if !ok || rhs == 0 {
				return 0, false
			}
			v /= rhs
		default:
			return v, true
		}
	}
}

func (p *exprParser) parseFactor() (float64, bool) {
	switch tok := p.peek(); tok {
	case "":
		return 0, false
	case "-":
		p.pos++
		v, ok := p.parseFactor()
		return -v, ok
	case "(":
		p.pos++
		v, ok := p.parseExpr()
		if !ok || p.peek() != ")" {
			return 0, false
		}
		p.pos++
		return v, true
	default:
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return 0, false
		}
		p.pos++
		return v, true
	}
}
