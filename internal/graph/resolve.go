package graph

import (
	"context"
	"regexp"
	"sort"
	"strings"
)

// Resolver links usage sites to declarations: lexical scope first, then the
// workspace-wide index of exported declarations.
type Resolver struct {
	index *SymbolIndex
}

// NewResolver creates a Resolver over a declaration index.
func NewResolver(index *SymbolIndex) *Resolver {
	return &Resolver{index: index}
}

// Resolve resolves every usage. It never fails for a usage; absence of a
// target is reported in the Reference. The only error is ctx cancellation.
func (r *Resolver) Resolve(ctx context.Context, usages []UsageSite) ([]Reference, error) {
	out := make([]Reference, 0, len(usages))
	for i, u := range usages {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out = append(out, r.ResolveOne(u))
	}
	return out, nil
}

// ResolveOne resolves a single usage site.
func (r *Resolver) ResolveOne(u UsageSite) Reference {
	rules := rulesFor(u.Language)

	var cands []Declaration
	for _, d := range r.index.Lookup(u.Name) {
		if d.Language == u.Language {
			cands = append(cands, d)
		}
	}

	selfRef := u.Qualifier != "" && rules != nil && rules.selfNames[u.Qualifier]
	qualified := u.Qualifier != "" && !selfRef

	var chosen []Declaration
	if !qualified {
		chosen = inScope(u, cands, selfRef)
	}
	switch {
	case len(chosen) == 0:
		chosen = fallback(u, cands)
	case allForward(chosen):
		// A prototype in scope stands for definitions elsewhere.
		chosen = append(chosen, definitionsOf(chosen, cands)...)
	}
	if qualified {
		chosen = narrow(chosen, u.Qualifier, rules)
	}
	chosen = preferKinds(u.Kind, dropForward(chosen))

	ref := Reference{Usage: u}
	if len(chosen) == 0 {
		ref.Status = StatusUnresolved
		ref.Reason = ReasonUnknown
		if qualified || u.Imported {
			ref.Reason = ReasonExternal
		}
		return ref
	}

	ref.Targets = groupTargets(chosen)
	ref.Status = StatusResolved
	if len(chosen) > 1 {
		ref.Status = StatusAmbiguous
	}
	return ref
}

// inScope returns the declarations on the usage's scope chain at the deepest
// depth. Shadowing locals are settled by the latest visible declaration.
func inScope(u UsageSite, cands []Declaration, skipLocals bool) []Declaration {
	best := -1
	var out []Declaration
	for _, d := range cands {
		if skipLocals && d.Visibility == VisibilityLocal {
			continue
		}
		if !isPrefix(d.Scope, u.Scope) {
			continue
		}
		if d.VisibleFrom > u.Span.StartByte {
			continue
		}
		switch depth := len(d.Scope); {
		case depth > best:
			best = depth
			out = []Declaration{d}
		case depth == best:
			out = append(out, d)
		}
	}

	latest := -1
	for _, d := range out {
		if d.VisibleFrom > latest {
			latest = d.VisibleFrom
		}
	}
	if latest <= 0 {
		return out
	}
	shadowing := out[:0]
	for _, d := range out {
		if d.VisibleFrom == latest {
			shadowing = append(shadowing, d)
		}
	}
	return shadowing
}

// fallback returns the exported declarations, plus private ones in the
// usage's own file.
func fallback(u UsageSite, cands []Declaration) []Declaration {
	var out []Declaration
	for _, d := range cands {
		switch d.Visibility {
		case VisibilityExported:
			out = append(out, d)
		case VisibilityPrivate:
			if d.File == u.File {
				out = append(out, d)
			}
		}
	}
	return out
}

var identRe = regexp.MustCompile(`[A-Za-z_$][A-Za-z0-9_$]*`)

// narrow keeps candidates whose parent name matches the qualifier's last
// identifier. When nothing matches, only members (and, for path-separated
// languages, free items) remain plausible targets of a qualified usage.
func narrow(cands []Declaration, qualifier string, rules *langRules) []Declaration {
	idents := identRe.FindAllString(qualifier, -1)
	if len(idents) == 0 || rules == nil {
		return cands
	}
	last := idents[len(idents)-1]

	var matched, members []Declaration
	for _, d := range cands {
		parent := ""
		if i := strings.LastIndex(d.QualifiedName, rules.sep); i >= 0 {
			parent = d.QualifiedName[:i]
		}
		if j := strings.LastIndex(parent, rules.sep); j >= 0 {
			parent = parent[j+len(rules.sep):]
		}
		switch {
		case parent == last:
			matched = append(matched, d)
		case isMemberKind(d.Kind), rules.sep == "::" && parent == "":
			members = append(members, d)
		}
	}
	if len(matched) > 0 {
		return matched
	}
	return members
}

func isMemberKind(k SymbolKind) bool {
	switch k {
	case SymbolKindMethod, SymbolKindField, SymbolKindEnumMember:
		return true
	}
	return false
}

// dropForward removes prototypes and signatures when a definition is among
// the candidates.
func dropForward(cands []Declaration) []Declaration {
	hasDef := false
	for _, d := range cands {
		if !d.Forward {
			hasDef = true
			break
		}
	}
	if !hasDef {
		return cands
	}
	out := cands[:0:0]
	for _, d := range cands {
		if !d.Forward {
			out = append(out, d)
		}
	}
	return out
}

func allForward(decls []Declaration) bool {
	for _, d := range decls {
		if !d.Forward {
			return false
		}
	}
	return true
}

// definitionsOf returns the definitions among cands of the symbols that
// forward declares.
func definitionsOf(forward, cands []Declaration) []Declaration {
	ids := make(map[SymbolID]bool, len(forward))
	for _, d := range forward {
		ids[d.Symbol] = true
	}
	var out []Declaration
	for _, d := range cands {
		if !d.Forward && ids[d.Symbol] {
			out = append(out, d)
		}
	}
	return out
}

// preferKinds settles name clashes between a type and its constructor: type
// positions keep types, calls keep callables. A filter that would empty the
// set is not applied.
func preferKinds(kind UsageKind, cands []Declaration) []Declaration {
	if len(cands) < 2 || kind == UsageRead {
		return cands
	}
	var out []Declaration
	for _, d := range cands {
		if isTypeKind(d.Kind) == (kind == UsageType) {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return cands
	}
	return out
}

func isTypeKind(k SymbolKind) bool {
	switch k {
	case SymbolKindClass, SymbolKindStruct, SymbolKindEnum, SymbolKindInterface, SymbolKindTrait, SymbolKindType:
		return true
	}
	return false
}

func groupTargets(decls []Declaration) []Target {
	bySymbol := make(map[SymbolID][]DeclSite)
	for _, d := range decls {
		bySymbol[d.Symbol] = append(bySymbol[d.Symbol], d.Site())
	}
	out := make([]Target, 0, len(bySymbol))
	for id, sites := range bySymbol {
		sort.Slice(sites, func(i, j int) bool { return lessSite(sites[i], sites[j]) })
		out = append(out, Target{Symbol: id, Sites: sites})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func isPrefix(prefix, chain []string) bool {
	if len(prefix) > len(chain) {
		return false
	}
	for i := range prefix {
		if prefix[i] != chain[i] {
			return false
		}
	}
	return true
}

func rulesFor(lang Language) *langRules {
	switch lang {
	case LangRust:
		return rustRules
	case LangJava:
		return javaRules
	case LangC:
		return cRules
	case LangJavaScript:
		return jsRules
	}
	return nil
}
