// Package prompttrans implements C3: converting client prompt content
// blocks into backend input items, estimating prompt token cost, and
// summarizing prompts for canonical logging (spec.md §4.3).
package prompttrans

import (
	"fmt"
	"math"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/haegyung/xsfire-camp/acpwire"
	"github.com/haegyung/xsfire-camp/backend"
	"github.com/haegyung/xsfire-camp/internal/canonical"
)

const defaultMaxTextChars = 16384

// Translate converts client content blocks into backend input items
// (spec.md §4.3's conversion table). Audio and unrecognized block kinds
// are dropped.
func Translate(blocks []acpwire.ContentBlock) []backend.InputItem {
	items := make([]backend.InputItem, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case "text":
			items = append(items, backend.InputItem{Kind: "text", Text: b.Text})
		case "image":
			items = append(items, backend.InputItem{
				Kind: "text",
				Text: fmt.Sprintf("data:%s;base64,%s", b.Mime, b.Data),
			})
		case "resource_link":
			items = append(items, backend.InputItem{Kind: "text", Text: resourceLinkText(b)})
		case "resource":
			link := resourceLinkText(b)
			items = append(items, backend.InputItem{
				Kind: "text",
				Text: link + "\n```\n" + b.Text + "\n```",
			})
		case "audio":
			// dropped
		default:
			// dropped
		}
	}
	return items
}

// resourceLinkText renders the "[@name](uri)" form, deriving name from
// the last path segment of file:// / zed:// URIs when the block's own
// Name is empty, else falling back to the raw URI (spec.md §4.3).
func resourceLinkText(b acpwire.ContentBlock) string {
	name := b.Name
	if name == "" {
		if strings.HasPrefix(b.URI, "file://") || strings.HasPrefix(b.URI, "zed://") {
			name = path.Base(strings.TrimSuffix(b.URI, "/"))
		}
	}
	if name == "" {
		return b.URI
	}
	return fmt.Sprintf("[@%s](%s)", name, b.URI)
}

// textTokens estimates token cost for a raw text source: ceil(chars/4).
func textTokens(s string) int {
	if s == "" {
		return 0
	}
	return int(math.Ceil(float64(len([]rune(s))) / 4))
}

// EstimateTokens implements spec.md §4.3's token estimate, summed across
// every content block: text and resource names/URIs use the ceil(chars/4)
// rule, resource links add a base 12, images a fixed 1024, audio a fixed
// 2048, each purely for monitoring purposes (never billed).
func EstimateTokens(blocks []acpwire.ContentBlock) int {
	total := 0
	for _, b := range blocks {
		switch b.Type {
		case "text":
			total += textTokens(b.Text)
		case "resource_link":
			total += 12 + textTokens(b.URI) + textTokens(b.Name)
		case "resource":
			total += textTokens(b.Text) + textTokens(b.URI)
		case "image":
			total += 1024
		case "audio":
			total += 2048
		}
	}
	return total
}

// Summarize renders blocks for canonical logging. By default the
// embedded-resource text is replaced by its length only; when
// ACP_LOG_EMBEDDED_CONTEXT is truthy the content is included, truncated
// to ACP_LOG_MAX_TEXT_CHARS grapheme clusters with a trailing
// "...[truncated]" marker (spec.md §4.3).
func Summarize(blocks []acpwire.ContentBlock) []map[string]any {
	includeContext := truthy(os.Getenv("ACP_LOG_EMBEDDED_CONTEXT"))
	maxChars := maxTextChars()

	out := make([]map[string]any, 0, len(blocks))
	for _, b := range blocks {
		entry := map[string]any{"type": b.Type}
		switch b.Type {
		case "text":
			entry["text"] = canonical.TruncateGraphemes(b.Text, maxChars)
		case "resource_link":
			entry["uri"] = b.URI
			entry["name"] = b.Name
		case "resource":
			entry["uri"] = b.URI
			if includeContext {
				entry["text"] = canonical.TruncateGraphemes(b.Text, maxChars)
			} else {
				entry["text_len"] = len([]rune(b.Text))
			}
		case "image", "audio":
			entry["mime"] = b.Mime
		}
		out = append(out, entry)
	}
	return out
}

func maxTextChars() int {
	if v := os.Getenv("ACP_LOG_MAX_TEXT_CHARS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultMaxTextChars
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
