package graph

import "unicode"

var rustRules = &langRules{
	lang: LangRust,
	sep:  "::",

	decls: map[string][]declRule{
		"function_item":           {{kind: SymbolKindFunction, nameField: "name", scope: scopeFunction}},
		"function_signature_item": {{kind: SymbolKindFunction, nameField: "name", scope: scopeFunction, forward: true}},
		"struct_item":             {{kind: SymbolKindStruct, nameField: "name", scope: scopeType}},
		"union_item":              {{kind: SymbolKindStruct, nameField: "name", scope: scopeType}},
		"enum_item":               {{kind: SymbolKindEnum, nameField: "name", scope: scopeType}},
		"enum_variant":            {{kind: SymbolKindEnumMember, nameField: "name"}},
		"trait_item":              {{kind: SymbolKindTrait, nameField: "name", scope: scopeType}},
		"type_item":               {{kind: SymbolKindType, nameField: "name"}},
		"const_item":              {{kind: SymbolKindConstant, nameField: "name"}},
		"static_item":             {{kind: SymbolKindVariable, nameField: "name"}},
		"mod_item":                {{kind: SymbolKindModule, nameField: "name", scope: scopeModule}},
		"macro_definition":        {{kind: SymbolKindMacro, nameField: "name", opaque: true}},
		"field_declaration":       {{kind: SymbolKindField, nameField: "name"}},

		"let_declaration":    {{kind: SymbolKindVariable, nameField: "pattern", bindings: true, optional: true}},
		"parameter":          {{kind: SymbolKindVariable, nameField: "pattern", bindings: true, optional: true}},
		"closure_parameters": {{kind: SymbolKindVariable, bindings: true, optional: true}},
		"let_condition":      {{kind: SymbolKindVariable, nameField: "pattern", bindings: true, optional: true}},
		"for_expression":     {{kind: SymbolKindVariable, nameField: "pattern", bindings: true, optional: true, declareInside: true}},
		"match_arm":          {{kind: SymbolKindVariable, nameField: "pattern", bindings: true, optional: true, declareInside: true}},
		"closure_expression": {{kind: SymbolKindFunction, scope: scopeFunction, anonymous: true}},
	},

	scopes: map[string]scopeRule{
		"impl_item": {kind: scopeType, label: "impl", nameField: "type", unwrap: []string{"type", "name"}},
		"block":     {kind: scopeBlock},
	},

	identifiers: map[string]usageRule{
		"identifier":      {kind: UsageRead},
		"type_identifier": {kind: UsageType},
		"field_identifier": {
			kind:    UsageRead,
			parents: set("field_expression"),
		},
	},
	members: map[string]memberShape{
		"field_expression":       {name: "field", object: "value"},
		"scoped_identifier":      {name: "name", object: "path"},
		"scoped_type_identifier": {name: "name", object: "path"},
	},
	calls: map[string]string{
		"call_expression":  "function",
		"macro_invocation": "macro",
	},
	skipUsages: set("use_declaration", "extern_crate_declaration", "attribute_item", "inner_attribute_item", "lifetime"),
	imports:    set("use_declaration", "extern_crate_declaration"),

	nameKinds:         set("identifier", "type_identifier", "field_identifier", "shorthand_field_identifier"),
	bindingKinds:      set("identifier", "shorthand_field_identifier"),
	bindingSkipFields: set("type"),
	// Capitalized identifiers in patterns are enum variants or constants.
	bindingFilter: func(name string) bool {
		for _, r := range name {
			return !unicode.IsUpper(r)
		}
		return false
	},

	selfNames: set("self", "Self", "super", "crate"),
}
