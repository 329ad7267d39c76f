package pipeline_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tailor/internal/config"
	"tailor/internal/pipeline"
	"tailor/internal/services"
	"tailor/internal/testsupport"
)

func defaultPipelineConfig(render bool) config.Pipeline {
	cfg := config.Default()
	cfg.Pipeline.RenderDocuments = render
	return cfg.Pipeline
}

func defaultPipeline(t *testing.T, render bool) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.Default(defaultPipelineConfig(render))
	require.NoError(t, err)
	return p
}

func TestDefaultPipelineOrder(t *testing.T) {
	p := defaultPipeline(t, false)
	assert.Equal(t, []string{"enhance", "cover-letter"}, p.Names())

	withRender := defaultPipeline(t, true)
	assert.Equal(t, []string{"enhance", "cover-letter", "render"}, withRender.Names())

	render, ok := withRender.Lookup("render")
	require.True(t, ok)
	assert.True(t, render.Optional)
	assert.Equal(t, "render.json", render.OutputArtifact)

	_, ok = p.Lookup("render")
	assert.False(t, ok)
}

func TestNewRejectsBadDefinitions(t *testing.T) {
	build := func(pipeline.Context) (string, error) { return "x", nil }
	validate := func([]byte) error { return nil }

	cases := map[string][]pipeline.Stage{
		"empty":     nil,
		"duplicate": {{Name: "a", OutputArtifact: "a.md", Build: build, Validate: validate}, {Name: "a", OutputArtifact: "b.md", Build: build, Validate: validate}},
		"bad name":  {{Name: "a/b", OutputArtifact: "a.md", Build: build, Validate: validate}},
		"collision": {{Name: "a", OutputArtifact: "INSTRUCTIONS.md", Build: build, Validate: validate}},
		"no build":  {{Name: "a", OutputArtifact: "a.md", Validate: validate}},
		"late input": {
			{Name: "a", OutputArtifact: "a.md", Inputs: []string{"b"}, Build: build, Validate: validate},
			{Name: "b", OutputArtifact: "b.md", Build: build, Validate: validate},
		},
	}
	for name, stages := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := pipeline.New(stages...)
			require.ErrorIs(t, err, services.ErrConfiguration)
		})
	}
}

func TestEnhanceInstructionContent(t *testing.T) {
	p := defaultPipeline(t, false)
	stage, _ := p.Lookup("enhance")

	input := testsupport.SampleInput()
	input.Style = "executive"
	input.Notes = "Emphasize leadership."
	text, err := stage.Build(pipeline.Context{JobID: "job-1", Input: input, OutputPath: "job-1/enhance/enhanced.md"})
	require.NoError(t, err)

	assert.Contains(t, text, "# Resume enhancement for Jane Doe")
	assert.Contains(t, text, "job-1/enhance/enhanced.md")
	assert.Contains(t, text, "Style: Executive")
	assert.Contains(t, text, "Emphasize leadership.")
	assert.Contains(t, text, testsupport.SampleJobDescription)
	assert.Contains(t, text, "Senior Go engineer")
}

func TestInstructionIsDeterministic(t *testing.T) {
	p := defaultPipeline(t, false)
	stage, _ := p.Lookup("enhance")
	ctx := pipeline.Context{JobID: "job-1", Input: testsupport.SampleInput(), OutputPath: "job-1/enhance/enhanced.md"}

	first, err := stage.Build(ctx)
	require.NoError(t, err)
	second, err := stage.Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCoverLetterRequiresEnhancedResume(t *testing.T) {
	p := defaultPipeline(t, false)
	stage, _ := p.Lookup("cover-letter")
	ctx := pipeline.Context{JobID: "job-1", Input: testsupport.SampleInput(), OutputPath: "job-1/cover-letter/cover_letter.md"}

	_, err := stage.Build(ctx)
	require.ErrorIs(t, err, services.ErrValidation)

	ctx.Outputs = map[string]string{"enhance": "# Jane Doe\n\nStaff-ready Go engineer."}
	text, err := stage.Build(ctx)
	require.NoError(t, err)
	assert.Contains(t, text, "Staff-ready Go engineer.")
	assert.Contains(t, text, "Address it to Acme")
}

func TestRenderInstructionFormat(t *testing.T) {
	p := defaultPipeline(t, true)
	stage, _ := p.Lookup("render")
	input := testsupport.SampleInput()
	input.RenderFormat = "PDF"
	ctx := pipeline.Context{
		JobID:      "job-1",
		Input:      input,
		OutputPath: "job-1/render/render.json",
		Outputs:    map[string]string{"enhance": "# Resume", "cover-letter": "Dear team"},
	}
	text, err := stage.Build(ctx)
	require.NoError(t, err)
	assert.Contains(t, text, "Render each document below as PDF")
	assert.Contains(t, text, "## Cover Letter")

	input.RenderFormat = "odt"
	ctx.Input = input
	_, err = stage.Build(ctx)
	require.ErrorIs(t, err, services.ErrValidation)
}

func TestEnhanceValidator(t *testing.T) {
	p := defaultPipeline(t, false)
	stage, _ := p.Lookup("enhance")

	cases := []struct {
		name    string
		content string
		ok      bool
	}{
		{"heading", "# Jane Doe\n\nGo engineer.", true},
		{"frontmatter", "---\nversion: 2\ntags: [go]\n---\n# Jane Doe\n", true},
		{"crlf frontmatter", "---\r\nversion: 2\r\n---\r\n# Jane Doe\r\n", true},
		{"empty", "   \n", false},
		{"no heading", "Jane Doe\nGo engineer.", false},
		{"frontmatter only", "---\nversion: 2\n---\n", false},
		{"frontmatter scalar", "---\njust text\n---\n# Jane\n", false},
		{"frontmatter unclosed", "---\nversion: 2\n# Jane\n", false},
		{"invalid utf8", "# Jane \xff\xfe", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := stage.Validate([]byte(tc.content))
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, services.ErrValidation)
		})
	}
}

func TestCoverLetterValidator(t *testing.T) {
	p := defaultPipeline(t, false)
	stage, _ := p.Lookup("cover-letter")

	require.ErrorIs(t, stage.Validate([]byte("Dear team, hire me.")), services.ErrValidation)
	long := strings.Repeat("word ", 25)
	require.NoError(t, stage.Validate([]byte(long)))
}

func TestRenderManifestValidation(t *testing.T) {
	valid := `{"format":"docx","documents":[{"name":"resume","path":"resume.docx"},{"name":"cover-letter","path":"out/cover_letter.docx"}]}`
	manifest, err := pipeline.ParseRenderManifest([]byte(valid))
	require.NoError(t, err)
	assert.Equal(t, "docx", manifest.Format)
	assert.Len(t, manifest.Documents, 2)

	invalid := []string{
		`not json`,
		`{"format":"odt","documents":[{"name":"r","path":"r.odt"}]}`,
		`{"format":"pdf","documents":[]}`,
		`{"format":"pdf","documents":[{"name":"r"}]}`,
		`{"format":"pdf","documents":[{"name":"r","path":"/etc/passwd"}]}`,
		`{"format":"pdf","documents":[{"name":"r","path":"a/../../b.pdf"}]}`,
		`{"format":"pdf","documents":[{"name":"r","path":"a.pdf"},{"name":"r","path":"b.pdf"}]}`,
	}
	for _, raw := range invalid {
		_, err := pipeline.ParseRenderManifest([]byte(raw))
		require.ErrorIs(t, err, services.ErrValidation, raw)
	}
}

func TestSplitFrontMatter(t *testing.T) {
	meta, body, err := pipeline.SplitFrontMatter([]byte("---\nrole: staff\n---\nbody text\n"))
	require.NoError(t, err)
	assert.Equal(t, "staff", meta["role"])
	assert.Equal(t, "body text\n", body)

	meta, body, err = pipeline.SplitFrontMatter([]byte("plain"))
	require.NoError(t, err)
	assert.Nil(t, meta)
	assert.Equal(t, "plain", body)
}
