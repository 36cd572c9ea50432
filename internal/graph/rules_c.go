package graph

// cDeclarator resolves a C declarator chain. A declaration whose name sits
// under a function_declarator (and not behind a pointer to one) is a
// function prototype.
func cDeclarator(_ *SyntaxNode, hit *nameHit) {
	fn := false
	for _, kind := range hit.via {
		switch kind {
		case "function_declarator":
			fn = true
		case "pointer_declarator", "parenthesized_declarator":
			if fn {
				fn = false
			}
		}
	}
	if fn {
		hit.kind = SymbolKindFunction
		hit.forward = true
	}
}

// inFunctionDefinition keeps parameters of prototypes out of the file scope.
func inFunctionDefinition(n *SyntaxNode, _ []byte) bool {
	owner := n.Ancestor("function_definition", "declaration", "field_declaration", "type_definition")
	return owner != nil && owner.Kind() == "function_definition"
}

func hasBody(n *SyntaxNode, _ []byte) bool {
	return n.ChildByField("body") != nil
}

var cDecl = []string{"declarator"}

var cRules = &langRules{
	lang: LangC,
	sep:  ".",

	decls: map[string][]declRule{
		"function_definition": {{
			kind: SymbolKindFunction, nameField: "declarator", unwrap: cDecl, scope: scopeFunction,
		}},
		"declaration": {{
			kind: SymbolKindVariable, nameField: "declarator", unwrap: cDecl, refine: cDeclarator, optional: true,
		}},
		"parameter_declaration": {{
			kind: SymbolKindVariable, nameField: "declarator", unwrap: cDecl, optional: true, when: inFunctionDefinition,
		}},
		"field_declaration": {{
			kind: SymbolKindField, nameField: "declarator", unwrap: cDecl, optional: true,
		}},
		"type_definition": {{
			kind: SymbolKindType, nameField: "declarator", unwrap: cDecl,
		}},
		"struct_specifier": {{
			kind: SymbolKindStruct, nameField: "name", scope: scopeType, anonymous: true, when: hasBody,
		}},
		"union_specifier": {{
			kind: SymbolKindStruct, nameField: "name", scope: scopeType, anonymous: true, when: hasBody,
		}},
		"enum_specifier": {{
			kind: SymbolKindEnum, nameField: "name", scope: scopeType, anonymous: true, when: hasBody,
		}},
		"enumerator":           {{kind: SymbolKindEnumMember, nameField: "name"}},
		"preproc_def":          {{kind: SymbolKindMacro, nameField: "name", opaque: true}},
		"preproc_function_def": {{kind: SymbolKindMacro, nameField: "name", opaque: true}},
	},

	scopes: map[string]scopeRule{
		"compound_statement": {kind: scopeBlock},
		"for_statement":      {kind: scopeBlock},
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
		"field_expression": {name: "field", object: "argument"},
	},
	calls: map[string]string{
		"call_expression": "function",
	},
	skipUsages: set("preproc_include"),
	// Parameter names of prototypes and function pointer types bind nothing.
	skip: func(n *SyntaxNode) bool {
		return n.Kind() == "parameter_list" && !inFunctionDefinition(n, nil)
	},
	imports: set(),

	nameKinds: set("identifier", "field_identifier", "type_identifier"),

	private: func(n *SyntaxNode, src []byte) bool {
		return hasModifier(n, src, "storage_class_specifier", "static")
	},
	privateIsFileLocal: true,
}
