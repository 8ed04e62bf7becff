package commands

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"

	"gopkg.in/yaml.v3"
)

//go:embed all:templates
var templateFS embed.FS

// Template file names, written to the target directory under the same name.
const (
	pipelineTemplate = "pipeline.yaml"
	settingsTemplate = "cprdgen.yaml"
)

// readTemplate returns an embedded template file.
func readTemplate(name string) ([]byte, error) {
	return templateFS.ReadFile(path.Join("templates", name))
}

// listTemplateFiles returns the embedded template file names.
func listTemplateFiles() ([]string, error) {
	var files []string
	err := fs.WalkDir(templateFS, "templates", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path.Base(p))
		}
		return nil
	})
	return files, err
}

// setScalars replaces scalar values in a YAML document, keeping comments
// and key order. Keys are dotted paths such as raw_data.root_folder.
// Empty values leave the template value in place.
func setScalars(content []byte, values map[string]string) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("empty template")
	}
	root := doc.Content[0]

	for key, value := range values {
		if value == "" {
			continue
		}
		node := lookupNode(root, key)
		if node == nil || node.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("template has no scalar %s", key)
		}
		node.Value = value
		node.Tag = "!!str"
		node.Style = 0
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("failed to encode template: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// lookupNode walks a dotted key through nested mappings.
func lookupNode(n *yaml.Node, key string) *yaml.Node {
	for _, part := range splitKey(key) {
		if n == nil || n.Kind != yaml.MappingNode {
			return nil
		}
		var next *yaml.Node
		for i := 0; i+1 < len(n.Content); i += 2 {
			if n.Content[i].Value == part {
				next = n.Content[i+1]
				break
			}
		}
		n = next
	}
	return n
}

func splitKey(key string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(key); i++ {
		if key[i] == '.' {
			parts = append(parts, key[start:i])
			start = i + 1
		}
	}
	return append(parts, key[start:])
}
