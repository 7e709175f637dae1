package schema

import (
	"fmt"
	"strconv"

	language "github.com/hanpama/patchql/internal/language"
)

// BuildFromSDL parses an SDL document and returns the corresponding executable
// Schema. Root operation types default to Query/Mutation/Subscription when no
// schema definition names them explicitly. Type extensions are merged into
// their base definitions.
func BuildFromSDL(sdl string) (*Schema, error) {
	doc, err := language.ParseSchema("schema.graphql", sdl)
	if err != nil {
		return nil, err
	}
	return BuildFromDocument(doc)
}

// BuildFromDocument builds a Schema from a pre-parsed SDL document.
func BuildFromDocument(doc *language.SchemaDocument) (*Schema, error) {
	s := NewSchema("")

	for _, def := range doc.Definitions {
		t, err := buildDefinition(def)
		if err != nil {
			return nil, err
		}
		s.AddType(t)
	}
	for _, ext := range doc.Extensions {
		base := s.Types[ext.Name]
		if base == nil {
			return nil, fmt.Errorf("cannot extend unknown type %q", ext.Name)
		}
		if err := mergeExtension(base, ext); err != nil {
			return nil, err
		}
	}
	for _, dir := range doc.Directives {
		d := NewDirective(dir.Name, dir.Description).SetRepeatable(dir.IsRepeatable)
		for _, loc := range dir.Locations {
			d.Locations = append(d.Locations, string(loc))
		}
		for _, arg := range dir.Arguments {
			d.AddArgument(buildInputValue(arg.Name, arg.Description, arg.Type, arg.DefaultValue, arg.Directives))
		}
		s.AddDirective(d)
	}

	applyRootTypes(s, doc)
	computePossibleTypes(s)
	return s, nil
}

func buildDefinition(def *language.Definition) (*Type, error) {
	switch def.Kind {
	case language.Object, language.Interface:
		kind := TypeKindObject
		if def.Kind == language.Interface {
			kind = TypeKindInterface
		}
		t := NewType(def.Name, kind, def.Description)
		for _, name := range def.Interfaces {
			t.AddInterface(name)
		}
		for _, fieldDef := range def.Fields {
			t.AddField(buildFieldDefinition(fieldDef))
		}
		return t, nil
	case language.Union:
		t := NewType(def.Name, TypeKindUnion, def.Description)
		for _, name := range def.Types {
			t.AddPossibleType(name)
		}
		return t, nil
	case language.Enum:
		t := NewType(def.Name, TypeKindEnum, def.Description)
		for _, v := range def.EnumValues {
			e := NewEnumValue(v.Name, v.Description)
			if reason, ok := deprecation(v.Directives); ok {
				e.Deprecate(reason)
			}
			t.AddEnumValue(e)
		}
		return t, nil
	case language.InputObject:
		t := NewType(def.Name, TypeKindInputObject, def.Description)
		t.SetOneOf(def.Directives.ForName("oneOf") != nil)
		for _, fieldDef := range def.Fields {
			t.AddInputField(buildInputValue(fieldDef.Name, fieldDef.Description, fieldDef.Type, fieldDef.DefaultValue, fieldDef.Directives))
		}
		return t, nil
	case language.Scalar:
		t := NewType(def.Name, TypeKindScalar, def.Description)
		if sb := def.Directives.ForName("specifiedBy"); sb != nil {
			for _, arg := range sb.Arguments {
				if arg.Name == "url" {
					url := arg.Value.Raw
					t.SpecifiedByURL = &url
				}
			}
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unsupported definition kind %q for type %q", def.Kind, def.Name)
	}
}

func buildFieldDefinition(def *language.FieldDefinition) *Field {
	f := NewField(def.Name, def.Description, typeRefFromAST(def.Type))
	if reason, ok := deprecation(def.Directives); ok {
		f.Deprecate(reason)
	}
	for _, arg := range def.Arguments {
		f.AddArgument(buildInputValue(arg.Name, arg.Description, arg.Type, arg.DefaultValue, arg.Directives))
	}
	return f
}

func buildInputValue(name, description string, t *language.Type, defaultValue *language.Value, directives language.DirectiveList) *InputValue {
	in := NewInputValue(name, description, typeRefFromAST(t))
	if defaultValue != nil {
		in.SetDefault(valueToGo(defaultValue))
	}
	if reason, ok := deprecation(directives); ok {
		in.Deprecate(reason)
	}
	return in
}

func mergeExtension(base *Type, ext *language.Definition) error {
	for _, name := range ext.Interfaces {
		base.AddInterface(name)
	}
	for _, fieldDef := range ext.Fields {
		if base.Kind == TypeKindInputObject {
			base.AddInputField(buildInputValue(fieldDef.Name, fieldDef.Description, fieldDef.Type, fieldDef.DefaultValue, fieldDef.Directives))
			continue
		}
		if base.Field(fieldDef.Name) != nil {
			return fmt.Errorf("extension redefines field %s.%s", base.Name, fieldDef.Name)
		}
		base.AddField(buildFieldDefinition(fieldDef))
	}
	for _, name := range ext.Types {
		base.AddPossibleType(name)
	}
	for _, v := range ext.EnumValues {
		base.AddEnumValue(NewEnumValue(v.Name, v.Description))
	}
	return nil
}

func applyRootTypes(s *Schema, doc *language.SchemaDocument) {
	if _, ok := s.Types["Query"]; ok {
		s.SetQueryType("Query")
	}
	if _, ok := s.Types["Mutation"]; ok {
		s.SetMutationType("Mutation")
	}
	if _, ok := s.Types["Subscription"]; ok {
		s.SetSubscriptionType("Subscription")
	}
	for _, schemaDef := range doc.Schema {
		for _, opType := range schemaDef.OperationTypes {
			switch opType.Operation {
			case language.Query:
				s.SetQueryType(opType.Type)
			case language.Mutation:
				s.SetMutationType(opType.Type)
			case language.Subscription:
				s.SetSubscriptionType(opType.Type)
			}
		}
	}
}

// computePossibleTypes fills interface PossibleTypes from the objects that
// declare the interface. Union members are recorded at build time.
func computePossibleTypes(s *Schema) {
	for _, t := range s.Types {
		if t.Kind != TypeKindObject {
			continue
		}
		for _, ifaceName := range t.Interfaces {
			iface := s.Types[ifaceName]
			if iface == nil {
				continue
			}
			iface.AddPossibleType(t.Name)
		}
	}
}

func deprecation(directives language.DirectiveList) (string, bool) {
	d := directives.ForName("deprecated")
	if d == nil {
		return "", false
	}
	for _, arg := range d.Arguments {
		if arg.Name == "reason" {
			return arg.Value.Raw, true
		}
	}
	return "", true
}

func typeRefFromAST(t *language.Type) *TypeRef {
	if t == nil {
		return nil
	}
	if t.NonNull {
		return NonNullType(typeRefFromAST(&language.Type{NamedType: t.NamedType, Elem: t.Elem}))
	}
	if t.NamedType != "" {
		return NamedType(t.NamedType)
	}
	return ListType(typeRefFromAST(t.Elem))
}

func valueToGo(value *language.Value) any {
	if value == nil {
		return nil
	}
	switch value.Kind {
	case language.IntValue:
		iv, _ := strconv.Atoi(value.Raw)
		return iv
	case language.FloatValue:
		fv, _ := strconv.ParseFloat(value.Raw, 64)
		return fv
	case language.StringValue, language.BlockValue, language.EnumValue:
		return value.Raw
	case language.BooleanValue:
		return value.Raw == "true"
	case language.NullValue:
		return nil
	case language.ListValue:
		out := make([]any, len(value.Children))
		for i, c := range value.Children {
			out[i] = valueToGo(c.Value)
		}
		return out
	case language.ObjectValue:
		m := make(map[string]any)
		for _, f := range value.Children {
			m[f.Name] = valueToGo(f.Value)
		}
		return m
	default:
		return nil
	}
}
