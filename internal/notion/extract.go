package notion

import (
	"fmt"
	"strings"
)

// PageMeta is the ingestion-relevant metadata of a database page.
type PageMeta struct {
	// DocID identifies the document. Pages with a numeric "ID" property get
	// a stable "custom-<n>" id; others use the Notion page id.
	DocID string

	// Title from the page's title property; "Untitled Document" if absent.
	Title string

	// Marketplace from the "Marketplace" select, lowercased; "general" if absent.
	Marketplace string

	// Category declared in the "Category" select or multi_select, lowercased;
	// "uncategorized" if absent. Used as the fallback when AI labeling
	// produces nothing usable.
	Category string

	// SourceName from the "source_name" multi_select, lowercased;
	// ["notion"] if absent.
	SourceName []string
}

// DocumentURL returns the canonical storage URL for a document id.
func DocumentURL(docID string) string {
	return "notion://" + docID
}

// ExtractMeta reads ingestion metadata from a page's properties.
func ExtractMeta(page Page) PageMeta {
	meta := PageMeta{
		DocID:       page.ID,
		Title:       "Untitled Document",
		Marketplace: "general",
		Category:    "uncategorized",
		SourceName:  []string{"notion"},
	}

	for _, prop := range page.Properties {
		if prop.Type == "title" && len(prop.Title) > 0 {
			meta.Title = richTextToString(prop.Title)
			break
		}
	}

	if prop, ok := page.Properties["Marketplace"]; ok && prop.Type == "select" && prop.Select != nil && prop.Select.Name != "" {
		meta.Marketplace = strings.ToLower(prop.Select.Name)
	}

	if prop, ok := page.Properties["Category"]; ok {
		switch {
		case prop.Type == "multi_select" && len(prop.MultiSelect) > 0 && prop.MultiSelect[0].Name != "":
			meta.Category = strings.ToLower(prop.MultiSelect[0].Name)
		case prop.Type == "select" && prop.Select != nil && prop.Select.Name != "":
			meta.Category = strings.ToLower(prop.Select.Name)
		}
	}

	if prop, ok := page.Properties["source_name"]; ok && prop.Type == "multi_select" && len(prop.MultiSelect) > 0 {
		var names []string
		for _, opt := range prop.MultiSelect {
			if opt.Name != "" {
				names = append(names, strings.ToLower(opt.Name))
			}
		}
		if len(names) > 0 {
			meta.SourceName = names
		}
	}

	if prop, ok := page.Properties["ID"]; ok && prop.Type == "number" && prop.Number != nil {
		meta.DocID = fmt.Sprintf("custom-%d", int64(*prop.Number))
	}

	return meta
}

// ExtractContent renders page blocks as markdown-flavored plain text.
// Blocks without a text rendering are skipped; non-empty renderings are
// joined with blank lines.
func ExtractContent(blocks []Block) string {
	var parts []string

	for _, block := range blocks {
		if text := renderBlock(block); text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, "\n\n")
}

// renderBlock renders one block; empty string means skip.
func renderBlock(b Block) string {
	switch b.Type {
	case "paragraph":
		if b.Paragraph != nil {
			return richTextToString(b.Paragraph.RichText)
		}
	case "heading_1":
		if b.Heading1 != nil {
			if text := richTextToString(b.Heading1.RichText); text != "" {
				return "# " + text
			}
		}
	case "heading_2":
		if b.Heading2 != nil {
			if text := richTextToString(b.Heading2.RichText); text != "" {
				return "## " + text
			}
		}
	case "heading_3":
		if b.Heading3 != nil {
			if text := richTextToString(b.Heading3.RichText); text != "" {
				return "### " + text
			}
		}
	case "bulleted_list_item":
		if b.BulletedListItem != nil {
			if text := richTextToString(b.BulletedListItem.RichText); text != "" {
				return "- " + text
			}
		}
	case "numbered_list_item":
		if b.NumberedListItem != nil {
			if text := richTextToString(b.NumberedListItem.RichText); text != "" {
				return "1. " + text
			}
		}
	case "code":
		if b.Code != nil {
			if text := richTextToString(b.Code.RichText); text != "" {
				return "```" + b.Code.Language + "\n" + text + "\n```"
			}
		}
	case "to_do":
		if b.ToDo != nil {
			if text := richTextToString(b.ToDo.RichText); text != "" {
				box := "[ ]"
				if b.ToDo.Checked {
					box = "[x]"
				}
				return "- " + box + " " + text
			}
		}
	case "toggle":
		if b.Toggle != nil {
			if text := richTextToString(b.Toggle.RichText); text != "" {
				return "**" + text + "**"
			}
		}
	case "quote":
		if b.Quote != nil {
			if text := richTextToString(b.Quote.RichText); text != "" {
				return "> " + text
			}
		}
	}
	return ""
}

// richTextToString concatenates the plain text of a rich text array.
func richTextToString(parts []RichText) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.PlainText)
	}
	return b.String()
}
