package scraper

import (
	"errors"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antzucaro/matchr"
)

const (
	pageIdLogin = "account-login"
	pageIdHome  = "home-index"
)

// page is one classified portal response. Every meaningful RosterOn
// Mobile page carries its template name in the id attribute of a
// [data-role=page] container:
//
//	<div data-role="page" id="account-login">
//	    ...
//	    <div data-role="content">
//	        <!-- content of interest within -->
//	    </div>
//	</div>
//
// The id is used for flow-control branching; content should only be
// processed further when the id is as expected.
type page struct {
	time    time.Time
	id      string
	content *goquery.Selection
}

var errMalformedPage = errors.New("response is not a recognized portal page")

func classify(doc *goquery.Document, at time.Time) (page, error) {
	root := doc.Find(`[data-role="page"]`).First()
	if root.Length() == 0 {
		return page{}, fmt.Errorf("%w: no [data-role=page] container", errMalformedPage)
	}
	id, ok := root.Attr("id")
	if !ok || id == "" {
		return page{}, fmt.Errorf("%w: page container has no id", errMalformedPage)
	}
	content := root.Find(`[data-role="content"]`).First()
	if content.Length() == 0 {
		return page{}, fmt.Errorf("%w: no [data-role=content] container", errMalformedPage)
	}
	return page{time: at, id: id, content: content}, nil
}

// page ids are free-form strings observed on one deployment, so when
// an unknown one turns up the closest known id is logged as a hint
// that a deployment may just name its templates differently.
var knownPageIds = []string{pageIdLogin, pageIdHome}

func nearestKnownPageId(id string) string {
	var mostSimilarity float64
	var mostSimilar string
	for _, known := range knownPageIds {
		similarity := matchr.JaroWinkler(id, known, false)
		if similarity > mostSimilarity {
			mostSimilarity = similarity
			mostSimilar = known
		}
	}
	return mostSimilar
}
