package graph

import "strings"

var jsFunctionKinds = set("arrow_function", "function_expression", "function", "generator_function")

// jsBoundFunction reports whether a function expression is the value of a
// variable declarator, which already names and scopes it.
func jsBoundFunction(n *SyntaxNode) bool {
	return parentIs(n, "variable_declarator", "value")
}

func jsFunctionValue(n *SyntaxNode) bool {
	v := n.ChildByField("value")
	name := n.ChildByField("name")
	return v != nil && jsFunctionKinds[v.Kind()] && name != nil && name.Kind() == "identifier"
}

func notBound(n *SyntaxNode, _ []byte) bool { return !jsBoundFunction(n) }

// jsDeclaringLoop reports whether a for-in/of loop declares its variable
// (const, let or var) rather than assigning an existing one.
func jsDeclaringLoop(n *SyntaxNode, src []byte) bool {
	left := n.ChildByField("left")
	if left == nil || left.Span().StartByte < n.Span().StartByte {
		return false
	}
	head := string(src[n.Span().StartByte:left.Span().StartByte])
	for _, f := range strings.FieldsFunc(head, func(r rune) bool { return r == '(' || r == ' ' || r == '\t' || r == '\n' }) {
		if f == "const" || f == "let" || f == "var" {
			return true
		}
	}
	return false
}

var jsFunctionRule = declRule{
	kind: SymbolKindFunction, nameField: "name", scope: scopeFunction, anonymous: true, when: notBound,
}

var jsRules = &langRules{
	lang: LangJavaScript,
	sep:  ".",

	decls: map[string][]declRule{
		"function_declaration":           {{kind: SymbolKindFunction, nameField: "name", scope: scopeFunction}},
		"generator_function_declaration": {{kind: SymbolKindFunction, nameField: "name", scope: scopeFunction}},
		"class_declaration":              {{kind: SymbolKindClass, nameField: "name", scope: scopeType}},
		"class":                          {{kind: SymbolKindClass, nameField: "name", scope: scopeType, anonymous: true}},
		"method_definition":              {{kind: SymbolKindMethod, nameField: "name", scope: scopeFunction}},
		"field_definition":               {{kind: SymbolKindField, nameField: "property"}},
		"variable_declarator": {{
			kind: SymbolKindVariable, nameField: "name", bindings: true, optional: true,
			scopeFor: func(n *SyntaxNode) scopeKind {
				if jsFunctionValue(n) {
					return scopeFunction
				}
				return scopeNone
			},
			refine: func(n *SyntaxNode, hit *nameHit) {
				if jsFunctionValue(n) {
					hit.kind = SymbolKindFunction
				}
			},
		}},
		"arrow_function":      {jsFunctionRule},
		"function_expression": {jsFunctionRule},
		"function":            {jsFunctionRule},
		"generator_function":  {jsFunctionRule},
		"formal_parameters":   {{kind: SymbolKindVariable, bindings: true, optional: true}},
		"identifier": {{
			kind: SymbolKindVariable,
			when: func(n *SyntaxNode, _ []byte) bool { return parentIs(n, "arrow_function", "parameter") },
		}},
		"catch_clause": {{
			kind: SymbolKindVariable, nameField: "parameter", bindings: true, optional: true, declareInside: true,
		}},
		"for_in_statement": {{
			kind: SymbolKindVariable, nameField: "left", bindings: true, optional: true, declareInside: true,
			when: jsDeclaringLoop,
		}},
	},

	scopes: map[string]scopeRule{
		"statement_block":  {kind: scopeBlock},
		"for_statement":    {kind: scopeBlock},
		"for_in_statement": {kind: scopeBlock},
	},

	identifiers: map[string]usageRule{
		"identifier":                    {kind: UsageRead},
		"shorthand_property_identifier": {kind: UsageRead},
		"property_identifier": {
			kind:    UsageRead,
			parents: set("member_expression"),
		},
		"private_property_identifier": {
			kind:    UsageRead,
			parents: set("member_expression"),
		},
	},
	members: map[string]memberShape{
		"member_expression": {name: "property", object: "object"},
	},
	calls: map[string]string{
		"call_expression": "function",
		"new_expression":  "constructor",
	},
	skipUsages: set("import_statement"),
	imports:    set("import_statement"),

	nameKinds:         set("identifier", "property_identifier", "private_property_identifier", "shorthand_property_identifier_pattern"),
	bindingKinds:      set("identifier", "shorthand_property_identifier_pattern"),
	bindingSkipFields: set("right", "key"),

	selfNames: set("this", "super"),
}
