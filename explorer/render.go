package explorer

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"
	opfs "github.com/sashapodgoreanu/opfs-poc"
)

var (
	bucketStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	dirStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#00D7FF"))
	fileStyle   = lipgloss.NewStyle()
	sizeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
	emptyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")).Italic(true)

	statusStyles = map[Level]lipgloss.Style{
		LevelInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")),
		LevelWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500")),
		LevelError: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4B4B")).Bold(true),
	}
)

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// byKindThenName puts directories before files
func byKindThenName(a, b opfs.Node) int {
	if a.IsContainer() != b.IsContainer() {
		if a.IsContainer() {
			return -1
		}
		return 1
	}
	return cmp.Compare(a.Name, b.Name)
}

func label(n opfs.Node) string {
	switch n.Kind {
	case opfs.KindBucket:
		return bucketStyle.Render(n.Name)
	case opfs.KindDirectory:
		return dirStyle.Render(n.Name + "/")
	default:
		return fileStyle.Render(n.Name) + " " + sizeStyle.Render(humanSize(n.Size))
	}
}

func branch(n opfs.Node) *tree.Tree {
	t := tree.Root(label(n)).Enumerator(tree.RoundedEnumerator)
	children := slices.Clone(n.Children)
	slices.SortFunc(children, byKindThenName)
	for _, c := range children {
		if c.IsContainer() {
			t.Child(branch(c))
		} else {
			t.Child(label(c))
		}
	}
	if n.Kind == opfs.KindBucket && len(children) == 0 {
		t.Child(emptyStyle.Render("(empty)"))
	}
	return t
}

// Render draws the trees of the given nodes, one block per top-level node.
// Siblings are shown directories first, then by name.
func Render(nodes []opfs.Node) string {
	blocks := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if n.IsContainer() {
			blocks = append(blocks, branch(n).String())
		} else {
			blocks = append(blocks, label(n))
		}
	}
	return strings.Join(blocks, "\n\n")
}

// RenderStatus draws the status line
func RenderStatus(s Status) string {
	if s.Message == "" {
		return ""
	}
	style, ok := statusStyles[s.Level]
	if !ok {
		style = lipgloss.NewStyle()
	}
	return style.Render(fmt.Sprintf("[%s] %s", s.Level, s.Message))
}
