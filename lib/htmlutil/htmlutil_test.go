package htmlutil

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func TestGetText(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<div><p>one</p><p>two <b>three</b></p></div>`,
	))
	require.NoError(t, err)

	sel := doc.Find("div")
	require.Equal(t, 1, len(sel.Nodes))
	require.Equal(t, "onetwo three", GetText(sel.Nodes[0]))
}

func TestInnerText(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		"<li>\n\t  Tue 11/06/2019 -\n\t  ABCDE - Melbourne Office\n  </li>",
	))
	require.NoError(t, err)

	text := InnerText(doc.Find("li"))
	require.Equal(t, "Tue 11/06/2019 - ABCDE - Melbourne Office", text)
}

func TestInnerTextEmpty(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<p></p>`))
	require.NoError(t, err)
	require.Equal(t, "", InnerText(doc.Find("p")))
}
