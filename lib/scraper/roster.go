package scraper

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"rosteron/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// Field is one detail value extracted from a roster item. Valid is
// false when the source element was empty; Text is then "". The
// format of the text varies by deployment, so it is left opaque.
type Field struct {
	Text  string
	Valid bool
}

func (f Field) String() string {
	if !f.Valid {
		return "none"
	}
	return strconv.Quote(f.Text)
}

// Item is one entry on the roster. Date and Title come from the most
// recent divider above the entry; both are zero when the listing had
// no divider before it.
type Item struct {
	Date   time.Time
	Title  string
	Detail []Field
}

func (i Item) String() string {
	detail := make([]string, len(i.Detail))
	for n, f := range i.Detail {
		detail[n] = f.String()
	}
	return fmt.Sprintf(
		"<Item (date=%s, title=%q, detail=[%s])>",
		i.Date.Format(time.DateOnly),
		i.Title,
		strings.Join(detail, ", "),
	)
}

// Snapshot is one full roster retrieval. Time is the server's
// timestamp when available, otherwise the client capture time, always
// UTC. Items preserves the page's listing order.
type Snapshot struct {
	Time  time.Time
	Items []Item
}

func (s Snapshot) Len() int { return len(s.Items) }

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"<Snapshot (time=%s, len=%d)>",
		s.Time.Format(time.RFC3339),
		len(s.Items),
	)
}

// divider lines look like "Tue 11/06/2019 - ABCDE - Melbourne Office"
const dividerDateLayout = "Mon 02/01/2006"

func parseRoster(p page) (Snapshot, error) {
	list := p.content.Find(`[data-role="listview"]`).First()
	if list.Length() == 0 {
		return Snapshot{}, errors.New("roster page has no list view")
	}

	var items []Item
	var date time.Time
	var title string
	var parseErr error

	list.ChildrenFiltered("li").EachWithBreak(func(_ int, li *goquery.Selection) bool {
		if li.AttrOr("data-role", "") == "list-divider" {
			rawDate, rest, _ := strings.Cut(htmlutil.InnerText(li), " - ")
			parsed, err := time.Parse(dividerDateLayout, rawDate)
			if err != nil {
				parseErr = fmt.Errorf("divider date %q: %w", rawDate, err)
				return false
			}
			date = parsed
			title = rest
			return true
		}

		table := li.Find("table").First()
		if table.Length() == 0 {
			parseErr = errors.New("roster item has no detail table")
			return false
		}

		var detail []Field
		table.Find("p").Each(func(_ int, para *goquery.Selection) {
			text := para.Text()
			detail = append(detail, Field{Text: text, Valid: text != ""})
		})
		items = append(items, Item{Date: date, Title: title, Detail: detail})
		return true
	})
	if parseErr != nil {
		return Snapshot{}, parseErr
	}

	return Snapshot{Time: p.time, Items: items}, nil
}
