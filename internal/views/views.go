// Package views renders the server-side HTML pages.
package views

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"mediashelf/internal/models"
	"mediashelf/internal/services"

	"github.com/gofiber/template/html/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.html
var templateFS embed.FS

// Layout is the template every page is embedded in.
const Layout = "layout"

// Label turns an enum value such as "COMPLETED" into "Completed".
func Label(value string) string {
	// A Caser keeps state between calls, so each call gets its own.
	return cases.Title(language.English).String(strings.ReplaceAll(strings.ToLower(value), "_", " "))
}

// Initial returns the upper-cased first character of s, or "?" when s is empty.
func Initial(s string) string {
	r, _ := utf8.DecodeRuneInString(strings.TrimSpace(s))
	if r == utf8.RuneError {
		return "?"
	}
	return string(unicode.ToUpper(r))
}

// Tab is one media-type section of the profile library.
type Tab struct {
	Key       string
	Title     string
	MediaType models.MediaType
	Items     []models.LibraryItem
}

var tabOrder = []struct {
	key, title string
	mediaType  models.MediaType
}{
	{"games", "Games", models.MediaGame},
	{"series", "Series", models.MediaSeries},
	{"films", "Films", models.MediaMovie},
	{"books", "Books", models.MediaBook},
}

// Tabs groups items by media type, keeping their order within each tab.
func Tabs(items []models.LibraryItem) []Tab {
	tabs := make([]Tab, len(tabOrder))
	index := make(map[models.MediaType]int, len(tabOrder))
	for i, t := range tabOrder {
		tabs[i] = Tab{Key: t.key, Title: t.title, MediaType: t.mediaType, Items: []models.LibraryItem{}}
		index[t.mediaType] = i
	}
	for _, item := range items {
		if i, ok := index[item.MediaType]; ok {
			tabs[i].Items = append(tabs[i].Items, item)
		}
	}
	return tabs
}

// Form is the state of an item form: submitted values and field errors.
type Form struct {
	Action string
	Fields services.ItemFields
	Errors map[string]string
	Open   bool
}

// FormFromItem prefills a form with an existing item.
func FormFromItem(action string, item *models.LibraryItem) Form {
	return Form{
		Action: action,
		Fields: services.ItemFields{
			MediaType:        string(item.MediaType),
			Title:            item.Title,
			Status:           string(item.Status),
			Year:             intText(item.Year),
			PlatformOrAuthor: strText(item.PlatformOrAuthor),
			Progress:         intText(item.Progress),
			Rating:           intText(item.Rating),
			CoverURL:         strText(item.CoverURL),
			Review:           strText(item.Review),
		},
	}
}

// SignInPage is the data of the sign-in page.
type SignInPage struct {
	Providers []string
	Error     string
}

func (SignInPage) PageTitle() string { return "Sign in" }

// ProfilePage is the data of the library page.
type ProfilePage struct {
	Identity *models.Identity
	Tabs     []Tab
	Form     Form
	Notice   string
}

func (ProfilePage) PageTitle() string { return "Library" }

// ItemPage is the data of the item detail page.
type ItemPage struct {
	Identity *models.Identity
	Item     *models.LibraryItem
	Form     Form
	Notice   string
}

func (p ItemPage) PageTitle() string {
	if p.Item == nil {
		return "Item"
	}
	return p.Item.Title
}

// NewEngine returns the fiber view engine over the embedded templates. Pages
// are rendered inside Layout through {{embed}}.
func NewEngine() (*html.Engine, error) {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, err
	}
	engine := html.NewFileSystem(http.FS(sub), ".html")
	engine.AddFunc("label", Label)
	engine.AddFunc("initial", Initial)
	engine.AddFunc("int", intText)
	engine.AddFunc("str", strText)
	engine.AddFunc("mediaTypes", func() []models.MediaType { return models.MediaTypes })
	engine.AddFunc("allStatuses", func() []models.Status { return models.Statuses })
	engine.AddFunc("statuses", func(m models.MediaType) []models.Status { return m.Statuses() })
	if err := engine.Load(); err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return engine, nil
}

func intText(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}

func strText(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
