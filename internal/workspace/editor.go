package workspace

import (
	"fmt"
	"strconv"

	"github.com/dusk-indust/codegraph/internal/graph"
)

// EditorTarget is a location ready to hand to an editor: an absolute path
// and 1-based line and column.
type EditorTarget struct {
	Path   string `json:"path"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// EditorTarget converts a workspace path and span into an editor location.
func (w *Workspace) EditorTarget(file string, span graph.Span) EditorTarget {
	line := span.StartLine
	if line < 1 {
		line = 1
	}
	return EditorTarget{
		Path:   w.Abs(file),
		Line:   line,
		Column: span.StartCol + 1,
	}
}

// EditorCommand returns the argv that opens t in the given editor. Running
// it is up to the caller.
func EditorCommand(editor string, t EditorTarget) ([]string, error) {
	line := strconv.Itoa(t.Line)
	switch editor {
	case "code":
		return []string{"code", "-g", t.Path + ":" + line}, nil
	case "zed":
		return []string{"zed", t.Path + ":" + line}, nil
	case "idea":
		return []string{"idea", "-l", line, t.Path}, nil
	default:
		return nil, fmt.Errorf("unknown editor %q", editor)
	}
}
