package screenshot

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/loomtrack/internal/apperr"
	"github.com/sells-group/loomtrack/internal/model"
)

func TestTemplates_CreateNormalizes(t *testing.T) {
	e := newEnv(t)
	tmpl, err := e.templates.Create(context.Background(), "t1", "u1", TemplateInput{
		Name:          "  Panel B ",
		FieldMappings: []model.FieldMapping{{FieldName: model.FieldSpeed, Box: model.Box{X: 120, Y: -3, Width: 10, Height: 5}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Panel B", tmpl.Name)
	assert.Equal(t, "standard", tmpl.MachineDisplayType)
	assert.True(t, tmpl.IsActive)
	require.Len(t, tmpl.FieldMappings, 1)
	assert.Equal(t, model.HintText, tmpl.FieldMappings[0].PreprocessingHint)
	assert.InDelta(t, 100, tmpl.FieldMappings[0].X, 1e-9)
	assert.Zero(t, tmpl.FieldMappings[0].Y)
}

func TestTemplates_Validation(t *testing.T) {
	e := newEnv(t)
	_, err := e.templates.Create(context.Background(), "t1", "u1", TemplateInput{
		FieldMappings: []model.FieldMapping{{FieldName: "speedometer"}},
	})
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Fields, "templateName")
	assert.Contains(t, ae.Fields, "fieldMappings")
}

func TestTemplates_NameConflict(t *testing.T) {
	e := newEnv(t)
	_, err := e.templates.Create(context.Background(), "t1", "u1", TemplateInput{Name: "Panel A"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = e.templates.Create(context.Background(), "t2", "u1", TemplateInput{Name: "Panel A"})
	assert.NoError(t, err, "names are unique per tenant")
}

func TestTemplates_SingleDefault(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.templates.Default(ctx, "t1")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	a, err := e.templates.Create(ctx, "t1", "u1", TemplateInput{Name: "A", IsDefault: true})
	require.NoError(t, err)
	b, err := e.templates.Create(ctx, "t1", "u1", TemplateInput{Name: "B", IsDefault: true})
	require.NoError(t, err)

	def, err := e.templates.Default(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, b.ID, def.ID)

	_, err = e.templates.Update(ctx, "t1", a.ID, TemplateInput{Name: "A", IsDefault: true})
	require.NoError(t, err)
	def, err = e.templates.Default(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, def.ID)

	list, err := e.templates.List(ctx, "t1")
	require.NoError(t, err)
	var defaults int
	for _, tm := range list {
		if tm.IsDefault {
			defaults++
		}
	}
	assert.Equal(t, 1, defaults)
	assert.Equal(t, a.ID, list[0].ID, "default listed first")
}

func TestTemplates_Delete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.templates.Delete(ctx, "t1", e.template.ID))
	_, err := e.templates.Get(ctx, "t1", e.template.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.True(t, apperr.Is(e.templates.Delete(ctx, "t1", e.template.ID), apperr.KindNotFound))
}

const templateYAML = `
templates:
  - template_name: Panel A
    description: updated from file
    field_mappings:
      - field_name: productionLength
        x: 10
        y: 20
        width: 30
        height: 5
        preprocessing_hint: number
  - template_name: Jacquard
    is_default: true
    field_mappings:
      - field_name: h1
        x: 1
        y: 2
        width: 3
        height: 4
`

func TestTemplates_Import(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	out, err := e.templates.Import(ctx, "t1", "cli", strings.NewReader(templateYAML))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, e.template.ID, out[0].ID, "existing name is updated")
	assert.Equal(t, "updated from file", out[0].Description)
	assert.Equal(t, model.Box{X: 10, Y: 20, Width: 30, Height: 5}, out[0].FieldMappings[0].Box)
	assert.Equal(t, model.HintNumber, out[0].FieldMappings[0].PreprocessingHint)

	def, err := e.templates.Default(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Jacquard", def.Name)

	_, err = e.templates.Import(ctx, "t1", "cli", strings.NewReader("templates: []"))
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = e.templates.Import(ctx, "t1", "cli", strings.NewReader("templates: [oops"))
	assert.Error(t, err)
}
