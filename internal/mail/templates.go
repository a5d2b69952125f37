// Package mail renders named email templates and delivers them over SMTP.
package mail

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"text/template"

	"gopkg.in/yaml.v3"
)

// TemplateSpec is one entry of the templates file.
type TemplateSpec struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

type templatesFile struct {
	Templates map[string]TemplateSpec `yaml:"templates"`
}

type compiled struct {
	subject *template.Template
	body    *template.Template
}

// Templates is a parsed set of named templates.
type Templates struct {
	byName map[string]compiled
}

//go:embed default_templates.yaml
var defaultTemplates []byte

// DefaultTemplates returns the built-in templates used when no
// MAIL_TEMPLATES_FILE is configured.
func DefaultTemplates() (*Templates, error) {
	return ParseTemplates(defaultTemplates)
}

// LoadTemplates reads a YAML templates file from path.
func LoadTemplates(path string) (*Templates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	return ParseTemplates(data)
}

// ParseTemplates parses a YAML document of the form:
//
//	templates:
//	  invoice_overdue:
//	    subject: "Invoice {{.invoiceNumber}} is overdue"
//	    body: |
//	      ...
func ParseTemplates(data []byte) (*Templates, error) {
	var f templatesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	t := &Templates{byName: make(map[string]compiled, len(f.Templates))}
	for name, def := range f.Templates {
		subj, err := template.New(name + ".subject").Option("missingkey=zero").Parse(def.Subject)
		if err != nil {
			return nil, fmt.Errorf("template %s subject: %w", name, err)
		}
		body, err := template.New(name + ".body").Option("missingkey=zero").Parse(def.Body)
		if err != nil {
			return nil, fmt.Errorf("template %s body: %w", name, err)
		}
		t.byName[name] = compiled{subject: subj, body: body}
	}
	return t, nil
}

// Names returns the template names in sorted order.
func (t *Templates) Names() []string {
	names := make([]string, 0, len(t.byName))
	for name := range t.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render executes the named template against data.
func (t *Templates) Render(name string, data map[string]any) (subject, body string, err error) {
	c, ok := t.byName[name]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	var sb, bb bytes.Buffer
	if err := c.subject.Execute(&sb, data); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := c.body.Execute(&bb, data); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", name, err)
	}
	return sb.String(), bb.String(), nil
}
