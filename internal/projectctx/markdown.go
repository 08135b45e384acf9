package projectctx

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// groups is the per-file section order.
var groups = []struct {
	title string
	types []ItemType
}{
	{"Modules", []ItemType{ItemModule}},
	{"Imports", []ItemType{ItemImport}},
	{"Structs", []ItemType{ItemStruct}},
	{"Enums", []ItemType{ItemEnum}},
	{"Traits", []ItemType{ItemTrait, ItemInterface}},
	{"Classes", []ItemType{ItemClass}},
	{"Functions", []ItemType{ItemFunction, ItemMethod}},
	{"Implementations", []ItemType{ItemImpl}},
}

// Markdown renders the context as a Markdown document.
func (c *Context) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Project Context: %s Project\n\n", titleCase(c.ProjectType))
	fmt.Fprintf(&b, "Generated: %s\n", c.GeneratedAt.Format(time.RFC3339))
	if m := c.Metadata; m != nil && m.Name != "" {
		fmt.Fprintf(&b, "Project: %s", m.Name)
		if m.Version != "" {
			fmt.Fprintf(&b, " %s", m.Version)
		}
		b.WriteString("\n")
		if m.Description != "" {
			fmt.Fprintf(&b, "\n%s\n", m.Description)
		}
	}

	s := c.Summary
	b.WriteString("\n## Summary\n\n")
	fmt.Fprintf(&b, "- Files analyzed: %d\n", s.TotalFiles)
	fmt.Fprintf(&b, "- Lines: %d\n", s.TotalLines)
	fmt.Fprintf(&b, "- Functions: %d\n", s.Functions)
	fmt.Fprintf(&b, "- Structs: %d\n", s.Structs)
	fmt.Fprintf(&b, "- Enums: %d\n", s.Enums)
	fmt.Fprintf(&b, "- Traits: %d\n", s.Traits)
	if s.Classes > 0 {
		fmt.Fprintf(&b, "- Classes: %d\n", s.Classes)
	}
	fmt.Fprintf(&b, "- Implementations: %d\n", s.Impls)

	if len(s.Dependencies) > 0 {
		b.WriteString("\n## Dependencies\n\n")
		for _, d := range s.Dependencies {
			fmt.Fprintf(&b, "- %s\n", d)
		}
	}

	b.WriteString("\n## Files\n")
	for _, f := range c.Files {
		fmt.Fprintf(&b, "\n### %s\n", f.Path)
		for _, g := range groups {
			var lines []string
			for _, it := range f.Items {
				if slices.Contains(g.types, it.Type) {
					lines = append(lines, itemLine(it))
				}
			}
			if len(lines) == 0 {
				continue
			}
			fmt.Fprintf(&b, "\n**%s:**\n", g.title)
			for _, l := range lines {
				b.WriteString(l)
			}
		}
	}
	return b.String()
}

func itemLine(it Item) string {
	var b strings.Builder
	b.WriteString("- ")
	if it.Type == ItemImpl {
		name := it.Name
		if it.Detail != "" {
			name = it.Detail
		}
		fmt.Fprintf(&b, "`impl %s`", name)
	} else {
		if it.Visibility == "public" {
			b.WriteString("`pub ")
		} else {
			b.WriteString("`")
		}
		if it.Async {
			b.WriteString("async ")
		}
		b.WriteString(it.Name)
		b.WriteString("`")
	}
	if it.Type == ItemImport && it.Detail != "" && it.Detail != it.Name {
		fmt.Fprintf(&b, " from `%s`", it.Detail)
	}
	fmt.Fprintf(&b, " (line %d)", it.Line)
	if it.Cyclomatic > 1 {
		fmt.Fprintf(&b, " complexity %d", it.Cyclomatic)
	}
	b.WriteString("\n")
	return b.String()
}

func titleCase(s string) string {
	if s == "" {
		return "Unknown"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
