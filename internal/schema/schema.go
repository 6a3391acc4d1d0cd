// Package schema reads template definitions from YAML files.
//
// A file holds one or more YAML documents, each describing one template:
//
//	key: orders
//	group: Sales
//	label: Orders
//	row_span: 500
//	dictionaries:
//	  - sheet: Channels
//	    title: Sales channel
//	    options: [Web, Retail, Partner]
//	fields:
//	  - name: Order ID
//	    key: order_id
//	    required: true
//	    unique: true
//	  - name: Country
//	    key: country
//	    options: [US, CA]
//	  - name: Region
//	    parent: country
//	    cascade:
//	      US: [East, West]
//	      CA: [Ontario, Quebec]
//
// Cascade keys keep their file order.
package schema

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/sheetkit/internal/core"
)

// Extensions lists the file suffixes treated as template files.
var Extensions = []string{".yaml", ".yml"}

type templateDoc struct {
	Key          string          `yaml:"key"`
	Group        string          `yaml:"group"`
	Label        string          `yaml:"label"`
	Description  string          `yaml:"description"`
	Sheet        string          `yaml:"sheet"`
	RowSpan      int             `yaml:"row_span"`
	Table        string          `yaml:"table"`
	Dictionaries []dictionaryDoc `yaml:"dictionaries"`
	Fields       []fieldDoc      `yaml:"fields"`
}

type dictionaryDoc struct {
	Sheet   string   `yaml:"sheet"`
	Title   string   `yaml:"title"`
	Options []string `yaml:"options"`
}

type fieldDoc struct {
	Name       string    `yaml:"name"`
	Key        string    `yaml:"key"`
	Type       string    `yaml:"type"`
	Required   bool      `yaml:"required"`
	Unique     bool      `yaml:"unique"`
	Width      float64   `yaml:"width"`
	Options    []string  `yaml:"options"`
	Dictionary string    `yaml:"dictionary"`
	Parent     string    `yaml:"parent"`
	Cascade    yaml.Node `yaml:"cascade"`
}

// Parse reads every template document in r. source names the origin in
// errors and in the definitions' Source field.
func Parse(r io.Reader, source string) ([]core.TemplateDefinition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var defs []core.TemplateDefinition
	for i := 0; ; i++ {
		var doc templateDoc
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("template file %s: document %d: %w", source, i+1, err)
		}
		def, err := doc.definition(source)
		if err != nil {
			return nil, fmt.Errorf("template file %s: document %d: %w", source, i+1, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// ParseFile reads the templates in one file.
func ParseFile(path string) ([]core.TemplateDefinition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("template file %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f, path)
}

func (d templateDoc) definition(source string) (core.TemplateDefinition, error) {
	def := core.TemplateDefinition{
		Info: core.TemplateInfo{
			Key:         d.Key,
			Group:       d.Group,
			Label:       d.Label,
			Description: d.Description,
			Sheet:       d.Sheet,
		},
		RowSpan: d.RowSpan,
		Table:   d.Table,
		Source:  source,
	}
	for _, dd := range d.Dictionaries {
		def.Dictionaries = append(def.Dictionaries, core.DictionarySpec{
			Sheet:   dd.Sheet,
			Title:   dd.Title,
			Options: dd.Options,
		})
	}
	for _, fd := range d.Fields {
		fs, err := fd.field()
		if err != nil {
			return def, err
		}
		def.Fields = append(def.Fields, fs)
	}
	return def, def.Check()
}

func (fd fieldDoc) field() (core.FieldSpec, error) {
	typ, err := core.ParseFieldType(fd.Type)
	if err != nil {
		return core.FieldSpec{}, fmt.Errorf("field %q: %w", fd.Name, err)
	}
	out := core.FieldSpec{
		Name:       fd.Name,
		Key:        fd.Key,
		Type:       typ,
		Required:   fd.Required,
		Unique:     fd.Unique,
		Width:      fd.Width,
		Options:    fd.Options,
		Dictionary: fd.Dictionary,
		Parent:     fd.Parent,
	}
	if len(out.Options) > 0 && fd.Type == "" {
		out.Type = core.FieldEnum
	}

	if fd.Cascade.Kind != 0 {
		m, err := cascadeMap(&fd.Cascade)
		if err != nil {
			return core.FieldSpec{}, fmt.Errorf("field %q: %w", fd.Name, err)
		}
		out.Cascade = m
		if fd.Type == "" {
			out.Type = core.FieldEnum
		}
	}
	return out, nil
}

// cascadeMap reads a mapping of parent value to child list, keeping order.
func cascadeMap(n *yaml.Node) (*core.CascadeMap, error) {
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: cascade must be a mapping of parent value to options", n.Line)
	}
	m := core.NewCascadeMap()
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		var children []string
		if err := val.Decode(&children); err != nil {
			return nil, fmt.Errorf("line %d: cascade %q: %w", val.Line, key.Value, err)
		}
		m.Set(key.Value, children)
	}
	return m, nil
}
