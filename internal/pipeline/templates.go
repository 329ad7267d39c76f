package pipeline

import (
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"tailor/internal/config"
	"tailor/internal/services"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var instructionTemplates = template.Must(
	template.New("instructions").
		Funcs(funcMap()).
		Option("missingkey=error").
		ParseFS(templateFS, "templates/*.tmpl"),
)

func funcMap() template.FuncMap {
	funcs := sprig.TxtFuncMap()
	titler := cases.Title(language.English)
	funcs["title"] = func(s string) string {
		return titler.String(strings.ReplaceAll(s, "-", " "))
	}
	return funcs
}

type templateData struct {
	JobID      string
	Candidate  string
	Style      string
	Format     string
	OutputPath string
	Input      any
	Outputs    map[string]string
	InputNames []string
}

func templateBuilder(name string, cfg config.Pipeline, inputs []string) func(Context) (string, error) {
	return func(ctx Context) (string, error) {
		for _, input := range inputs {
			if strings.TrimSpace(ctx.Outputs[input]) == "" {
				return "", services.Wrap(services.ErrValidation, "", "build instruction",
					fmt.Sprintf("output of stage %q is missing", input), nil)
			}
		}
		format, err := resolveFormat(ctx.Input.RenderFormat, cfg.RenderFormat)
		if err != nil {
			return "", err
		}
		data := templateData{
			JobID:      ctx.JobID,
			Candidate:  firstNonEmpty(ctx.Input.CandidateName, "the candidate"),
			Style:      cases.Title(language.English).String(firstNonEmpty(ctx.Input.Style, cfg.DefaultStyle, "professional")),
			Format:     format,
			OutputPath: ctx.OutputPath,
			Input:      ctx.Input,
			Outputs:    ctx.Outputs,
			InputNames: inputs,
		}
		var b strings.Builder
		if err := instructionTemplates.ExecuteTemplate(&b, name, data); err != nil {
			return "", services.Wrap(services.ErrValidation, "", "build instruction", name, err)
		}
		return b.String(), nil
	}
}

func resolveFormat(values ...string) (string, error) {
	format := strings.ToLower(firstNonEmpty(values...))
	switch format {
	case "docx", "pdf":
		return format, nil
	default:
		return "", services.Wrap(services.ErrValidation, "", "build instruction",
			fmt.Sprintf("unsupported render format %q", format), nil)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
