package graph

var javaRules = &langRules{
	lang:      LangJava,
	sep:       ".",
	namespace: "package_declaration",

	decls: map[string][]declRule{
		"class_declaration":     {{kind: SymbolKindClass, nameField: "name", scope: scopeType}},
		"record_declaration":    {{kind: SymbolKindClass, nameField: "name", scope: scopeType}},
		"interface_declaration": {{kind: SymbolKindInterface, nameField: "name", scope: scopeType}},
		"enum_declaration":      {{kind: SymbolKindEnum, nameField: "name", scope: scopeType}},
		"enum_constant":         {{kind: SymbolKindEnumMember, nameField: "name"}},
		"method_declaration":    {{kind: SymbolKindMethod, nameField: "name", scope: scopeFunction}},
		"constructor_declaration": {{
			kind: SymbolKindMethod, nameField: "name", scope: scopeFunction,
		}},
		"field_declaration": {{
			kind: SymbolKindField, nameField: "declarator", unwrap: []string{"name"},
		}},
		"local_variable_declaration": {{
			kind: SymbolKindVariable, nameField: "declarator", unwrap: []string{"name"},
		}},
		"formal_parameter":       {{kind: SymbolKindVariable, nameField: "name"}},
		"catch_formal_parameter": {{kind: SymbolKindVariable, nameField: "name"}},
		"resource":               {{kind: SymbolKindVariable, nameField: "name", optional: true}},
		"enhanced_for_statement": {{kind: SymbolKindVariable, nameField: "name", declareInside: true}},
		"inferred_parameters":    {{kind: SymbolKindVariable, bindings: true, optional: true}},
		"lambda_expression":      {{kind: SymbolKindFunction, scope: scopeFunction, anonymous: true}},
		"identifier": {{
			kind: SymbolKindVariable,
			when: func(n *SyntaxNode, _ []byte) bool { return parentIs(n, "lambda_expression", "parameters") },
		}},
	},

	scopes: map[string]scopeRule{
		"block":                        {kind: scopeBlock},
		"for_statement":                {kind: scopeBlock},
		"catch_clause":                 {kind: scopeBlock},
		"switch_block":                 {kind: scopeBlock},
		"try_with_resources_statement": {kind: scopeBlock},
	},

	identifiers: map[string]usageRule{
		"identifier":      {kind: UsageRead},
		"type_identifier": {kind: UsageType},
	},
	members: map[string]memberShape{
		"method_invocation": {name: "name", object: "object"},
		"field_access":      {name: "field", object: "object"},
	},
	calls: map[string]string{
		"method_invocation":          "name",
		"object_creation_expression": "type",
	},
	skipUsages: set("package_declaration", "import_declaration", "marker_annotation", "annotation"),
	imports:    set("import_declaration"),

	nameKinds:    set("identifier", "type_identifier"),
	bindingKinds: set("identifier"),

	private: func(n *SyntaxNode, src []byte) bool {
		return hasModifier(n, src, "modifiers", "private")
	},

	selfNames: set("this", "super"),
}
