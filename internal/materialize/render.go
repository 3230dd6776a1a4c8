package materialize

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"text/template"
)

// TemplateSuffix marks catalog files that are rendered; the suffix is
// stripped from the destination name.
const TemplateSuffix = ".tmpl"

var errUnexpandedToken = errors.New("unexpanded template token")

// unexpandedTokenPattern detects {{ .Field }} actions that survived rendering,
// e.g. from a template that emits template syntax into its output.
var unexpandedTokenPattern = regexp.MustCompile(`\{\{-?\s*\.?[A-Za-z_][A-Za-z0-9_.]*\s*-?\}\}`)

// RenderData is the data every catalog template is executed with.
type RenderData struct {
	ProjectName   string
	ModulePath    string
	Kind          string
	Configuration string
	PortEnv       string
	Features      map[string]bool
}

func funcMap(features map[string]bool) template.FuncMap {
	return template.FuncMap{
		"feature": func(name string) bool { return features[name] },
		"quote":   ShellQuote,
		"lower":   strings.ToLower,
		"upper":   strings.ToUpper,
	}
}

// renderFile executes one template file in strict mode.
func renderFile(name string, content []byte, data *RenderData) ([]byte, error) {
	tmpl, err := template.New(name).
		Funcs(funcMap(data.Features)).
		Option("missingkey=error").
		Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("template parse %q: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("template execute %q: %w", name, err)
	}

	if loc := unexpandedTokenPattern.Find(buf.Bytes()); loc != nil {
		return nil, fmt.Errorf("%w: found %q", errUnexpandedToken, string(loc))
	}
	return buf.Bytes(), nil
}

// RenderString renders a one-line template such as a build command or env value.
func RenderString(name, text string, data any) (string, error) {
	tmpl, err := template.New(name).
		Funcs(template.FuncMap{"quote": ShellQuote, "lower": strings.ToLower}).
		Option("missingkey=error").
		Parse(text)
	if err != nil {
		return "", fmt.Errorf("template parse %q: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("template execute %q: %w", name, err)
	}
	return buf.String(), nil
}

// ShellQuote single-quotes s for a POSIX-style command line.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
