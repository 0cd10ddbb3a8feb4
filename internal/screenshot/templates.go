package screenshot

import (
	"context"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/loomtrack/internal/apperr"
	"github.com/sells-group/loomtrack/internal/model"
	"github.com/sells-group/loomtrack/internal/store"
)

const defaultDisplayType = "standard"

// TemplateInput is the writable part of a template.
type TemplateInput struct {
	Name               string               `json:"templateName" yaml:"template_name"`
	Description        string               `json:"description" yaml:"description"`
	MachineDisplayType string               `json:"machineDisplayType" yaml:"machine_display_type"`
	SampleImageURL     string               `json:"sampleImageUrl" yaml:"sample_image_url"`
	FieldMappings      []model.FieldMapping `json:"fieldMappings" yaml:"field_mappings"`
	IsDefault          bool                 `json:"isDefault" yaml:"is_default"`
	IsActive           *bool                `json:"isActive" yaml:"is_active"`
}

func (in TemplateInput) normalize() (TemplateInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.MachineDisplayType == "" {
		in.MachineDisplayType = defaultDisplayType
	}

	fe := apperr.FieldErrors{}
	if in.Name == "" {
		fe.Add("templateName", "is required")
	}
	mappings := make([]model.FieldMapping, 0, len(in.FieldMappings))
	for _, fm := range in.FieldMappings {
		if !fm.FieldName.Valid() {
			fe.Add("fieldMappings", "unknown field name "+string(fm.FieldName))
			continue
		}
		if fm.PreprocessingHint != "" && !fm.PreprocessingHint.Valid() {
			fe.Add("fieldMappings", "unknown preprocessing hint "+string(fm.PreprocessingHint))
			continue
		}
		mappings = append(mappings, fm.Normalize())
	}
	in.FieldMappings = mappings
	return in, fe.Err()
}

// Templates manages screenshot mapping templates. At most one template per
// tenant is the default; setting a new default clears the old one in the
// same transaction.
type Templates struct {
	store store.TemplateStore
}

// NewTemplates creates a template service.
func NewTemplates(st store.TemplateStore) *Templates {
	return &Templates{store: st}
}

// Create stores a new template.
func (t *Templates) Create(ctx context.Context, tenantID, userID string, in TemplateInput) (*model.Template, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	tmpl := &model.Template{
		TenantID:           tenantID,
		Name:               in.Name,
		Description:        in.Description,
		MachineDisplayType: in.MachineDisplayType,
		SampleImageURL:     in.SampleImageURL,
		FieldMappings:      in.FieldMappings,
		IsDefault:          in.IsDefault,
		IsActive:           in.IsActive == nil || *in.IsActive,
		CreatedBy:          userID,
	}
	if err := t.store.CreateTemplate(ctx, tmpl); err != nil {
		return nil, apperr.Wrap(err, "screenshot: create template")
	}
	return tmpl, nil
}

// Update replaces the writable fields of a template.
func (t *Templates) Update(ctx context.Context, tenantID, id string, in TemplateInput) (*model.Template, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	tmpl, err := t.store.GetTemplate(ctx, tenantID, id)
	if err != nil {
		return nil, apperr.Wrap(err, "screenshot: get template")
	}
	tmpl.Name = in.Name
	tmpl.Description = in.Description
	tmpl.MachineDisplayType = in.MachineDisplayType
	tmpl.SampleImageURL = in.SampleImageURL
	tmpl.FieldMappings = in.FieldMappings
	tmpl.IsDefault = in.IsDefault
	if in.IsActive != nil {
		tmpl.IsActive = *in.IsActive
	}
	if err := t.store.UpdateTemplate(ctx, tmpl); err != nil {
		return nil, apperr.Wrap(err, "screenshot: update template")
	}
	return tmpl, nil
}

// Get returns one template.
func (t *Templates) Get(ctx context.Context, tenantID, id string) (*model.Template, error) {
	tmpl, err := t.store.GetTemplate(ctx, tenantID, id)
	return tmpl, apperr.Wrap(err, "screenshot: get template")
}

// Default returns the tenant's default template.
func (t *Templates) Default(ctx context.Context, tenantID string) (*model.Template, error) {
	tmpl, err := t.store.GetDefaultTemplate(ctx, tenantID)
	return tmpl, apperr.Wrap(err, "screenshot: get default template")
}

// List returns active templates, the default first.
func (t *Templates) List(ctx context.Context, tenantID string) ([]model.Template, error) {
	out, err := t.store.ListTemplates(ctx, tenantID)
	return out, apperr.Wrap(err, "screenshot: list templates")
}

// Delete removes a template.
func (t *Templates) Delete(ctx context.Context, tenantID, id string) error {
	return apperr.Wrap(t.store.DeleteTemplate(ctx, tenantID, id), "screenshot: delete template")
}

// templateFile is the YAML layout accepted by Import.
type templateFile struct {
	Templates []TemplateInput `yaml:"templates"`
}

// Import reads templates from YAML and creates them, updating templates of
// the same name that already exist. It stops at the first failure.
func (t *Templates) Import(ctx context.Context, tenantID, userID string, r io.Reader) ([]model.Template, error) {
	var file templateFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, eris.Wrap(err, "screenshot: decode template file")
	}
	if len(file.Templates) == 0 {
		return nil, apperr.Validation("empty template file", map[string]string{"templates": "at least one template is required"})
	}

	existing, err := t.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]string, len(existing))
	for _, e := range existing {
		byName[e.Name] = e.ID
	}

	out := make([]model.Template, 0, len(file.Templates))
	for _, in := range file.Templates {
		var tmpl *model.Template
		if id, ok := byName[strings.TrimSpace(in.Name)]; ok {
			tmpl, err = t.Update(ctx, tenantID, id, in)
		} else {
			tmpl, err = t.Create(ctx, tenantID, userID, in)
		}
		if err != nil {
			return out, eris.Wrapf(err, "screenshot: import template %q", in.Name)
		}
		zap.L().Info("screenshot: template imported",
			zap.String("tenant_id", tenantID),
			zap.String("template", tmpl.Name),
			zap.Int("fields", len(tmpl.FieldMappings)),
		)
		out = append(out, *tmpl)
	}
	return out, nil
}
