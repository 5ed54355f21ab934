package args

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
	"gopkg.in/yaml.v3"
)

// LoadFile reads bindings from a YAML, JSON or HCL file, chosen by
// extension. Top-level keys (or HCL attributes) are parameter names, in
// file order. Strings become quoted string literals; sequences become
// arrays.
func LoadFile(path string) (*Bindings, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading argument file: %w", err)
		}
		b, err := DecodeYAML(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return b, nil
	case ".hcl":
		return loadHCL(path)
	default:
		return nil, fmt.Errorf("%w: unsupported argument file type %q", ErrInvalidBinding, filepath.Ext(path))
	}
}

// DecodeYAML reads a mapping document. JSON objects are accepted as well.
func DecodeYAML(data []byte) (*Bindings, error) {
	b := New()
	if len(bytes.TrimSpace(data)) == 0 {
		return b, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBinding, err)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: argument file must be a mapping", ErrInvalidBinding)
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		if !IsIdentifier(key.Value) {
			return nil, fmt.Errorf("%w: line %d: %q is not an identifier", ErrInvalidBinding, key.Line, key.Value)
		}
		v, err := yamlValue(val)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %s: %v", ErrInvalidBinding, val.Line, key.Value, err)
		}
		b.Set(key.Value, v)
	}
	return b, nil
}

func yamlValue(n *yaml.Node) (Value, error) {
	if n.Kind != yaml.SequenceNode {
		text, err := yamlLiteral(n)
		return Scalar(text), err
	}
	elems := make([]string, len(n.Content))
	for i, el := range n.Content {
		text, err := yamlLiteral(el)
		if err != nil {
			return Value{}, err
		}
		elems[i] = text
	}
	return ArrayOf(elems...), nil
}

func yamlLiteral(n *yaml.Node) (string, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return yamlLiteral(n.Alias)
	case yaml.SequenceNode:
		v, err := yamlValue(n)
		return v.Literal(), err
	case yaml.ScalarNode:
	default:
		return "", fmt.Errorf("mappings are not supported as values")
	}

	switch n.ShortTag() {
	case "!!str":
		return strconv.Quote(n.Value), nil
	case "!!null":
		return "null", nil
	case "!!float":
		switch strings.ToLower(n.Value) {
		case ".inf", "+.inf":
			return "Infinity", nil
		case "-.inf":
			return "-Infinity", nil
		case ".nan":
			return "NaN", nil
		}
	}
	return n.Value, nil
}

func loadHCL(path string) (*Bindings, error) {
	file, diags := hclparse.NewParser().ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBinding, diags.Error())
	}
	attrs, diags := file.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBinding, diags.Error())
	}

	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return attrs[names[i]].Range.Start.Byte < attrs[names[j]].Range.Start.Byte
	})

	b := New()
	for _, name := range names {
		val, diags := attrs[name].Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("%w: %s: %s", ErrInvalidBinding, name, diags.Error())
		}
		v, err := ctyValue(val)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidBinding, name, err)
		}
		b.Set(name, v)
	}
	return b, nil
}

func ctyValue(v cty.Value) (Value, error) {
	ty := v.Type()
	if !v.IsNull() && (ty.IsListType() || ty.IsTupleType() || ty.IsSetType()) {
		var elems []string
		it := v.ElementIterator()
		for it.Next() {
			_, el := it.Element()
			text, err := ctyLiteral(el)
			if err != nil {
				return Value{}, err
			}
			elems = append(elems, text)
		}
		return ArrayOf(elems...), nil
	}
	text, err := ctyLiteral(v)
	return Scalar(text), err
}

func ctyLiteral(v cty.Value) (string, error) {
	if v.IsNull() {
		return "null", nil
	}
	if !v.IsKnown() {
		return "", fmt.Errorf("value is not known")
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return strconv.Quote(v.AsString()), nil
	case ty == cty.Number:
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return "", fmt.Errorf("converting number: %w", err)
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	case ty == cty.Bool:
		return strconv.FormatBool(v.True()), nil
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		inner, err := ctyValue(v)
		return inner.Literal(), err
	default:
		return "", fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}
