package tui

import (
	"fmt"
	"strings"

	"github.com/Sternrassler/catalog-client/internal/views"
	"github.com/Sternrassler/catalog-client/pkg/catalog"
	"github.com/charmbracelet/lipgloss"
)

// View implements tea.Model.
func (m *Model) View() string {
	if m.product != nil {
		return m.detailView()
	}
	return m.listView()
}

func (m *Model) listRows() int {
	if m.height <= 0 {
		return 20
	}
	return max(m.height-10, 3)
}

func sortLabel(s catalog.SortOrder) string {
	switch s {
	case catalog.SortAsc:
		return "price ascending"
	case catalog.SortDesc:
		return "price descending"
	default:
		return "none"
	}
}

func (m *Model) listView() string {
	var b strings.Builder
	page := m.page

	header := page.Header(m.now())
	if page.IsFetching {
		header += " " + m.spinner.View()
	}
	b.WriteString(m.styles.Header.Render(header))
	b.WriteString("\n\n")

	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.styles.Muted.Render("Sort: " + sortLabel(m.filter.Sort)))
	b.WriteString("\n")

	if len(page.Categories) > 0 {
		chips := make([]string, 0, len(page.Categories))
		for i, c := range page.Categories {
			label := fmt.Sprintf("%d %s", i+1, c.Name)
			if c.Active {
				chips = append(chips, m.styles.Active.Render(label))
			} else {
				chips = append(chips, m.styles.Chip.Render(label))
			}
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, chips...))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	switch {
	case page.Error != "":
		b.WriteString(m.styles.Error.Render(page.Error))
		b.WriteString("\n")
	case page.IsPending():
		b.WriteString(m.spinner.View() + " Loading products...\n")
	case len(page.Cards) == 0:
		b.WriteString(m.styles.Muted.Render("No products found."))
		b.WriteString("\n")
	default:
		m.writeCards(&b, page.Cards)
	}

	b.WriteString("\n")
	b.WriteString(m.footer())
	b.WriteString("\n")
	b.WriteString(m.styles.Help.Render(m.help()))
	return b.String()
}

func (m *Model) writeCards(b *strings.Builder, cards []views.Card) {
	rows := m.listRows()
	start := 0
	if m.cursor >= rows {
		start = m.cursor - rows + 1
	}
	end := min(start+rows, len(cards))

	for i := start; i < end; i++ {
		c := cards[i]
		line := fmt.Sprintf("%-40s %10s  %s", truncate(c.Title, 40), c.Price, c.Category)
		if i == m.cursor {
			b.WriteString(m.styles.Selected.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
}

func (m *Model) footer() string {
	if m.paged {
		p := m.page.Pager
		if p == nil {
			return ""
		}
		var parts []string
		if p.HasPrev {
			parts = append(parts, "< p")
		}
		parts = append(parts, fmt.Sprintf("Page %d", p.Page))
		if p.HasNext {
			parts = append(parts, "n >")
		}
		return m.styles.Muted.Render(strings.Join(parts, "   "))
	}

	if m.feed == nil || m.page.Error != "" || m.page.IsPending() {
		return ""
	}
	r := m.feed.Result()
	switch {
	case r.IsFetchingNextPage:
		return m.spinner.View() + " Loading more..."
	case r.HasNextPage:
		return m.styles.Muted.Render("Scroll down to load more")
	default:
		return m.styles.Muted.Render("Nothing more to load")
	}
}

func (m *Model) help() string {
	keys := "/ search  s sort  1-5 category  ↑/↓ move  enter open  r refresh  q quit"
	if m.paged {
		keys = "/ search  s sort  1-5 category  ↑/↓ move  p/n page  enter open  r refresh  q quit"
	}
	return keys
}

func (m *Model) detailView() string {
	var b strings.Builder
	page := m.detailPage

	switch {
	case page.Error != "":
		b.WriteString(m.styles.Error.Render(page.Error))
		b.WriteString("\n")
	case page.Product == nil:
		b.WriteString(m.spinner.View() + " Loading product...\n")
	default:
		banner := page.Banner.Text()
		if action := page.Banner.Action(); action != "" {
			banner += "  (r) " + action
		}
		b.WriteString(m.styles.Banner(page.Banner).Render(banner))
		b.WriteString("\n\n")
		m.writeProduct(&b, page.Product)
	}

	b.WriteString("\n")
	b.WriteString(m.styles.Help.Render("r refetch  esc back  q quit"))
	return b.String()
}

func (m *Model) writeProduct(b *strings.Builder, p *catalog.Product) {
	width := 72
	if m.width > 0 {
		width = min(m.width-2, 100)
	}

	b.WriteString(m.styles.Title.Render(p.Title))
	b.WriteString("\n")
	b.WriteString(m.styles.Price.Render(p.FormattedPrice()))
	b.WriteString("  ")
	b.WriteString(m.styles.Muted.Render(p.Category))
	b.WriteString("\n\n")
	b.WriteString(lipgloss.NewStyle().Width(width).Render(p.Description))
	b.WriteString("\n\n")
	b.WriteString(m.styles.Button.Render(views.CallToAction))
	b.WriteString("\n\n")
	for _, badge := range views.TrustBadges {
		b.WriteString(m.styles.Badge.Render("✓ " + badge))
		b.WriteString("\n")
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
