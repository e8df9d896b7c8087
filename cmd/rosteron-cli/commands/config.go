package commands

import (
	"errors"
	"os"
	"strings"
	"time"

	"rosteron/lib/configutil"
	"rosteron/lib/scraper"
	"rosteron/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
)

type Config struct {
	BaseUrl  string `json:"base_url"`
	Username string `json:"username"`
	Password string `json:"password"`
}

var (
	baseUrlFlag  string
	usernameFlag string
	passwordFlag string
)

// readConfig merges config.json5 (plus its local override) with the
// persistent flags; flags win.
func readConfig() Config {
	config, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil && !os.IsNotExist(err) {
		serviceutil.Fatal("failed to read config", err)
	}

	if baseUrlFlag != "" {
		config.BaseUrl = baseUrlFlag
	}
	if usernameFlag != "" {
		config.Username = usernameFlag
	}
	if passwordFlag != "" {
		config.Password = passwordFlag
	}

	if config.BaseUrl == "" {
		serviceutil.Fatal(
			"no portal url",
			errors.New("set base_url in config.json5 or pass --url"),
		)
	}
	return config
}

func renderSnapshot(snapshot scraper.Snapshot) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)

	t.AppendHeader(table.Row{"Date", "Title", "Detail"})
	for _, item := range snapshot.Items {
		detail := make([]string, len(item.Detail))
		for i, field := range item.Detail {
			detail[i] = field.String()
		}
		t.AppendRow(table.Row{
			item.Date.Format(time.DateOnly),
			item.Title,
			strings.Join(detail, ", "),
		})
	}
	t.Render()
}
