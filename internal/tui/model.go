// Package tui is the terminal product browser. It renders the same view
// models as the web front-end: an infinite or paged list with debounced
// search, sort and category toggles, and a product detail with a freshness
// banner.
package tui

import (
	"context"
	"time"

	"github.com/Sternrassler/catalog-client/internal/views"
	"github.com/Sternrassler/catalog-client/pkg/catalog"
	"github.com/Sternrassler/catalog-client/pkg/debounce"
	"github.com/Sternrassler/catalog-client/pkg/query"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options configures the browser.
type Options struct {
	// Paged switches the list from infinite scrolling to prev/next pages.
	Paged bool

	// Filter is the initial list filter.
	Filter catalog.Filter

	// SearchDelay is the search debounce window. 0 uses debounce.DefaultDelay.
	SearchDelay time.Duration
}

type (
	listMsg struct{ page views.ListPage }

	feedMsg struct{ feed *views.Feed }

	categoriesMsg struct {
		result query.Result[[]catalog.Category]
	}

	searchMsg string

	detailMsg struct {
		id   int
		page views.DetailPage
	}

	tickMsg time.Time

	// updateMsg carries a message that arrived from a background goroutine.
	updateMsg struct{ msg tea.Msg }
)

// Model is the bubbletea model of the browser.
type Model struct {
	ctx    context.Context
	cancel context.CancelFunc
	cat    *views.Catalog
	paged  bool
	styles Styles
	logger zerolog.Logger

	filter  catalog.Filter
	input   textinput.Model
	spinner spinner.Model
	search  *debounce.Debouncer[string]
	updates chan tea.Msg

	watch      *views.ListWatch
	feed       *views.Feed
	categories []catalog.Category

	page   views.ListPage
	cursor int

	product    *views.ProductWatch
	productID  int
	detailPage views.DetailPage

	width, height int
	now           func() time.Time
}

// New creates the browser and starts loading the list. Close releases it.
func New(ctx context.Context, cat *views.Catalog, opts Options) *Model {
	ctx, cancel := context.WithCancel(ctx)

	ti := textinput.New()
	ti.Placeholder = "Search products"
	ti.Prompt = "/ "
	ti.CharLimit = 100
	ti.SetValue(opts.Filter.Search)

	m := &Model{
		ctx:     ctx,
		cancel:  cancel,
		cat:     cat,
		paged:   opts.Paged,
		styles:  DefaultStyles(),
		logger:  log.With().Str("component", "tui").Logger(),
		input:   ti,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		updates: make(chan tea.Msg, 64),
		now:     time.Now,
	}
	m.search = debounce.New(opts.SearchDelay, func(s string) {
		m.send(searchMsg(s))
	})

	f := opts.Filter
	f.Paged = opts.Paged
	m.filter = f
	m.page = views.ListPage{Filter: f, Meta: query.Meta{Status: query.StatusPending, IsFetching: true}}

	if m.paged {
		m.watch = cat.WatchList(f, func(p views.ListPage) {
			m.send(listMsg{page: p})
		})
		m.page = m.watch.Page()
	} else {
		m.startFeed(f)
		m.async(func() tea.Msg {
			return categoriesMsg{result: cat.Categories(m.ctx)}
		})
	}
	return m
}

// Close stops background work. It is safe to call more than once.
func (m *Model) Close() {
	m.cancel()
	m.search.Stop()
	if m.watch != nil {
		m.watch.Close()
	}
	if m.feed != nil {
		m.feed.Close()
	}
	m.closeDetail()
}

// Filter returns the current list filter.
func (m *Model) Filter() catalog.Filter {
	return m.filter
}

// send delivers msg to the program, giving up once the model is closed.
func (m *Model) send(msg tea.Msg) {
	select {
	case m.updates <- msg:
	case <-m.ctx.Done():
	}
}

func (m *Model) async(fn func() tea.Msg) {
	go func() {
		m.send(fn())
	}()
}

func (m *Model) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-m.updates:
			return updateMsg{msg: msg}
		case <-m.ctx.Done():
			return nil
		}
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.waitForUpdate(), m.spinner.Tick, tick())
}

// startFeed replaces the infinite listing. The previous feed releases its
// pages to the cache's gc.
func (m *Model) startFeed(f catalog.Filter) {
	if m.feed != nil {
		m.feed.Close()
	}
	feed := m.cat.Feed(f)
	m.feed = feed
	m.async(func() tea.Msg {
		feed.Load(m.ctx)
		return feedMsg{feed: feed}
	})
}

// feedPage builds the list view model of the infinite listing.
func (m *Model) feedPage() views.ListPage {
	r := m.feed.Result()
	page := views.ListPage{Filter: m.filter, Meta: r.Meta, UpdatedAt: r.DataUpdatedAt}
	if r.IsError() && len(r.Data.Pages) == 0 {
		page.Error = views.ErrorMessage
		return page
	}
	page.Cards = m.feed.Cards()
	page.Count = len(page.Cards)
	page.Categories = views.CategoryButtons(m.categories, m.filter, m.cat.Config().MaxCategories)
	return page
}

func (m *Model) refreshList() {
	if m.paged {
		m.page = m.watch.Page()
	} else {
		m.page = m.feedPage()
	}
	if m.cursor >= len(m.page.Cards) {
		m.cursor = max(len(m.page.Cards)-1, 0)
	}
}

func (m *Model) applyFilter(f catalog.Filter) {
	f.Paged = m.paged
	if f == m.filter {
		return
	}
	m.logger.Debug().Str("filter", f.Encode()).Msg("Filter changed")

	m.filter = f
	m.cursor = 0
	if m.paged {
		m.watch.SetFilter(f)
	} else {
		m.startFeed(f)
	}
	m.refreshList()
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case updateMsg:
		_, cmd := m.Update(msg.msg)
		return m, tea.Batch(cmd, m.waitForUpdate())

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = max(msg.Width-4, 10)
		return m, nil

	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case listMsg:
		if msg.page.Filter == m.filter {
			m.refreshList()
		}
		return m, nil

	case feedMsg:
		if msg.feed == m.feed {
			m.refreshList()
		}
		return m, nil

	case categoriesMsg:
		if msg.result.IsSuccess() {
			m.categories = msg.result.Data
			m.refreshList()
		}
		return m, nil

	case searchMsg:
		if string(msg) != m.filter.Search {
			m.applyFilter(m.filter.WithSearch(string(msg)))
		}
		return m, nil

	case detailMsg:
		if m.product != nil && msg.id == m.productID {
			m.detailPage = msg.page
		}
		return m, nil

	case tickMsg:
		if m.product != nil {
			m.detailPage = m.product.Page()
		} else if m.paged {
			m.refreshList()
		}
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if msg.Type == tea.KeyCtrlC {
		return m.quit()
	}
	if m.input.Focused() {
		return m.handleSearchKey(msg)
	}
	if m.product != nil {
		return m.handleDetailKey(msg)
	}
	return m.handleListKey(msg)
}

func (m *Model) quit() tea.Cmd {
	m.Close()
	return tea.Quit
}

func (m *Model) handleSearchKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyEnter:
		m.input.Blur()
		if msg.Type == tea.KeyEnter {
			m.search.Flush()
		}
		return nil
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if v := m.input.Value(); v != before {
		m.search.Trigger(v)
	}
	return cmd
}

func (m *Model) handleListKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q":
		return m.quit()
	case "/":
		return m.input.Focus()
	case "s":
		m.applyFilter(m.filter.WithSort(nextSort(m.filter.Sort)))
	case "up", "k":
		m.moveCursor(-1)
	case "down", "j":
		m.moveCursor(1)
	case "n", "right":
		if p := m.page.Pager; p != nil && p.HasNext {
			m.applyFilter(p.Next)
		}
	case "p", "left":
		if p := m.page.Pager; p != nil && p.HasPrev {
			m.applyFilter(p.Prev)
		}
	case "r":
		m.refetchList()
	case "enter":
		if m.cursor < len(m.page.Cards) {
			m.openDetail(m.page.Cards[m.cursor].ID)
		}
	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		i := int(msg.Runes[0] - '1')
		if i < len(m.page.Categories) {
			m.applyFilter(m.page.Categories[i].Filter)
		}
	}
	return nil
}

func nextSort(s catalog.SortOrder) catalog.SortOrder {
	switch s {
	case catalog.SortNone:
		return catalog.SortAsc
	case catalog.SortAsc:
		return catalog.SortDesc
	default:
		return catalog.SortNone
	}
}

// moveCursor moves the selection and prefetches the selected product.
// Reaching the last row of an infinite list loads the next page.
func (m *Model) moveCursor(delta int) {
	n := len(m.page.Cards)
	if n == 0 {
		return
	}
	m.cursor = min(max(m.cursor+delta, 0), n-1)
	m.cat.PrefetchProduct(m.page.Cards[m.cursor].ID)

	if !m.paged && m.cursor == n-1 {
		feed := m.feed
		started := feed.OnIntersect(m.ctx, func(error) {
			m.send(feedMsg{feed: feed})
		})
		if started {
			m.refreshList()
		}
	}
}

func (m *Model) refetchList() {
	if m.paged {
		go func() {
			if err := m.watch.Refetch(m.ctx); err != nil {
				m.logger.Warn().Err(err).Msg("List refetch failed")
			}
		}()
		return
	}
	// The feed starts over at its first page; the rest is refetched stale.
	m.cat.ResetFeed(m.filter)
	m.cat.Invalidate()
	m.startFeed(m.filter)
}

func (m *Model) openDetail(id int) {
	m.closeDetail()
	m.productID = id
	m.product = m.cat.WatchProduct(id, func(p views.DetailPage) {
		m.send(detailMsg{id: id, page: p})
	})
	m.detailPage = m.product.Page()
}

func (m *Model) closeDetail() {
	if m.product != nil {
		m.product.Close()
		m.product = nil
	}
}

func (m *Model) handleDetailKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q":
		return m.quit()
	case "esc", "backspace", "b":
		m.closeDetail()
	case "r":
		w, id := m.product, m.productID
		m.async(func() tea.Msg {
			if err := w.Refetch(m.ctx); err != nil {
				m.logger.Warn().Err(err).Int("id", id).Msg("Product refetch failed")
			}
			return detailMsg{id: id, page: w.Page()}
		})
	}
	return nil
}

// Run starts the browser on the terminal and blocks until it exits.
func Run(ctx context.Context, cat *views.Catalog, opts Options) error {
	m := New(ctx, cat, opts)
	defer m.Close()

	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
