package service

import (
	"strings"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"
)

// ParseStructureText turns an indentation-based outline into a folder tree.
// Each non-empty line is a folder; nesting follows leading whitespace
// (tabs count as 4 spaces). A line indented deeper than its predecessor
// becomes its child; equal or shallower indentation closes levels.
func ParseStructureText(text string) []domain.FolderNode {
	type frame struct {
		indent int
		node   *domain.FolderNode
	}

	var roots []domain.FolderNode
	var stack []frame

	for _, line := range strings.Split(text, "\n") {
		name := strings.TrimSpace(line)
		if name == "" {
			continue
		}
		indent := lineIndent(line)

		for len(stack) > 0 && stack[len(stack)-1].indent >= indent {
			stack = stack[:len(stack)-1]
		}

		node := domain.FolderNode{Name: name}
		if len(stack) == 0 {
			roots = append(roots, node)
			stack = append(stack, frame{indent: indent, node: &roots[len(roots)-1]})
		} else {
			parent := stack[len(stack)-1].node
			parent.Children = append(parent.Children, node)
			stack = append(stack, frame{indent: indent, node: &parent.Children[len(parent.Children)-1]})
		}
	}
	return roots
}

func lineIndent(line string) int {
	indent := 0
	for _, r := range line {
		switch r {
		case ' ':
			indent++
		case '\t':
			indent += 4
		default:
			return indent
		}
	}
	return indent
}
