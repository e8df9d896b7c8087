package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"rosteron/lib/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("lib/scraper")

const (
	loginPath  = "Account/Login"
	rosterPath = "Roster/List?pageNo=1&row=1"
	logoutPath = "Account/LogOff"
)

// the portal carries authentication state in this one cookie; its
// presence in the jar is the session's entire notion of "logged in".
const authCookieName = ".ASPXAUTH"

const (
	fieldUserName = "UserName"
	fieldPassword = "Password"
)

const badCredentialsMessage = "Logon failure: unknown user name or bad password."

// redirect chains are walked by hand so every hop can be recorded;
// anything past this many hops is treated as a transport failure.
const maxRedirects = 10

type SessionOptions struct {
	// BaseUrl is the root of the Mobile portal, e.g.
	// https://rosteron.example.com.au/RosterOnProd/Mobile (the portion
	// of the login page's url prior to /Account/Login).
	BaseUrl string
	// Http overrides the session's owned client. Intended for tests
	// and diagnostics; the redirect policy is still replaced so hops
	// can be recorded.
	Http *resty.Client
	// Debug receives formatted request/response dumps when non-nil.
	Debug restyutil.InstrumentOutput
}

// Session is one connection to a RosterOn Mobile portal. It owns its
// cookie jar and an append-only record of every exchange. A Session
// must not be used from more than one goroutine at a time.
type Session struct {
	baseUrl *url.URL
	http    *resty.Client

	// last classified document and its final url, for form submission
	doc    *goquery.Document
	docUrl *url.URL

	log []logEntry
}

func NewSession(opts SessionOptions) (*Session, error) {
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}
	if baseUrl.Scheme == "" || baseUrl.Host == "" {
		return nil, fmt.Errorf("base url %q is not absolute", opts.BaseUrl)
	}

	client := opts.Http
	if client == nil {
		client = resty.New()
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
		client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
		client.SetTimeout(time.Second * 30)
	}
	if client.GetClient().Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		client.SetCookieJar(jar)
	}
	client.GetClient().CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	restyutil.InstrumentClient(client, tracer, opts.Debug)

	return &Session{baseUrl: baseUrl, http: client}, nil
}

// WithSession runs fn against a fresh session and always logs out
// afterwards, on every exit path. The error from fn is never
// suppressed; a logout failure is joined onto it.
func WithSession(ctx context.Context, opts SessionOptions, fn func(s *Session) error) error {
	s, err := NewSession(opts)
	if err != nil {
		return err
	}
	fnErr := fn(s)
	logoutErr := s.LogOut(ctx)
	return errors.Join(fnErr, logoutErr)
}

// IsLoggedIn reports whether the auth cookie is present in the
// session's cookie jar. The jar is the single source of truth: the
// portal sets the cookie on login and expires it on logout.
func (s *Session) IsLoggedIn() bool {
	jar := s.http.GetClient().Jar
	if jar == nil {
		return false
	}
	for _, cookie := range jar.Cookies(s.baseUrl) {
		if cookie.Name == authCookieName {
			return true
		}
	}
	return false
}

// LogIn fetches the login page, fills its form with the given
// credentials and submits it. A rejection with the portal's known
// bad-username/password message returns BadCredentialsError; any other
// unexpected outcome returns BadResponseError. Logging in while
// already authenticated simply runs the flow again.
func (s *Session) LogIn(ctx context.Context, username, password string) error {
	ctx, span := tracer.Start(ctx, "session:LogIn", trace.WithAttributes(
		attribute.String("username", username),
	))
	defer span.End()

	target, err := s.endpoint(loginPath)
	if err != nil {
		return &BadResponseError{Purpose: PurposeLogin, Cause: err}
	}
	_, err = s.roundTrip(ctx, http.MethodGet, target, nil, PurposeLogin)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch login page")
		return err
	}

	action, method, fields, err := s.loginForm()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read login form")
		return &BadResponseError{Purpose: PurposeLogin, Cause: err}
	}
	fields.Set(fieldUserName, username)
	fields.Set(fieldPassword, password)

	p, err := s.roundTrip(ctx, method, action, fields, PurposeHome)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit login form")
		return err
	}
	if p.id == pageIdHome {
		slog.DebugContext(ctx, "login accepted", "username", username)
		return nil
	}

	messages := validationErrors(p.content)
	if len(messages) == 1 && messages[0] == badCredentialsMessage {
		err := &BadCredentialsError{Username: username}
		span.RecordError(err)
		span.SetStatus(codes.Error, "credentials rejected")
		return err
	}

	slog.DebugContext(
		ctx, "unexpected page after login submission",
		"page_id", p.id,
		"nearest_known", nearestKnownPageId(p.id),
		"validation_errors", len(messages),
	)
	err = &BadResponseError{Purpose: PurposeHome}
	span.RecordError(err)
	span.SetStatus(codes.Error, "unexpected page after login submission")
	return err
}

// GetRoster retrieves a snapshot of the logged-in user's roster. An
// unauthenticated request is answered by the portal with the login
// page rather than an error status, which surfaces here as
// NotLoggedInError.
func (s *Session) GetRoster(ctx context.Context) (Snapshot, error) {
	ctx, span := tracer.Start(ctx, "session:GetRoster")
	defer span.End()

	target, err := s.endpoint(rosterPath)
	if err != nil {
		return Snapshot{}, &BadResponseError{Purpose: PurposeRoster, Cause: err}
	}
	p, err := s.roundTrip(ctx, http.MethodGet, target, nil, PurposeRoster)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch roster listing")
		return Snapshot{}, err
	}
	if p.id == pageIdLogin {
		err := &NotLoggedInError{}
		span.RecordError(err)
		span.SetStatus(codes.Error, "redirected to login")
		return Snapshot{}, err
	}

	snapshot, err := parseRoster(p)
	if err != nil {
		slog.DebugContext(
			ctx, "failed to parse roster listing",
			"page_id", p.id,
			"nearest_known", nearestKnownPageId(p.id),
			"err", err,
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse roster listing")
		return Snapshot{}, &BadResponseError{Purpose: PurposeRoster, Cause: err}
	}

	span.SetAttributes(attribute.Int("items", snapshot.Len()))
	return snapshot, nil
}

// LogOut ends the authenticated session. When no user is logged in it
// does nothing, without any network call.
func (s *Session) LogOut(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "session:LogOut")
	defer span.End()

	if !s.IsLoggedIn() {
		span.SetAttributes(attribute.Bool("noop", true))
		return nil
	}

	target, err := s.endpoint(logoutPath)
	if err != nil {
		return &BadResponseError{Purpose: PurposeLogout, Cause: err}
	}
	_, err = s.roundTrip(ctx, http.MethodGet, target, nil, PurposeLogout)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to log out")
		return err
	}
	return nil
}

func (s *Session) endpoint(fragment string) (*url.URL, error) {
	return url.Parse(strings.TrimSuffix(s.baseUrl.String(), "/") + "/" + fragment)
}

// roundTrip performs one navigation: it captures the entry time,
// walks the exchange hop by hop (following same-host redirects and
// recording each hop), appends the record to the session log, then
// classifies the final page. Every failure comes back as a
// BadResponseError tagged with the operation's purpose.
func (s *Session) roundTrip(ctx context.Context, method string, target *url.URL, form url.Values, purpose Purpose) (page, error) {
	ctx, span := tracer.Start(ctx, "session:browse", trace.WithAttributes(
		attribute.String("purpose", string(purpose)),
		attribute.String("url", target.String()),
	))
	defer span.End()

	entry := logEntry{time: time.Now().UTC(), purpose: purpose}

	// a GET form carries its fields in the query string, not a body
	if form != nil && method == http.MethodGet {
		query := target.Query()
		for key, values := range form {
			query[key] = values
		}
		target.RawQuery = query.Encode()
		form = nil
	}

	var res *resty.Response
	for {
		req := s.http.R().SetContext(ctx)
		if form != nil {
			req.SetFormDataFromValues(form)
		}

		var err error
		res, err = req.Execute(method, target.String())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "transport failure")
			return page{}, &BadResponseError{Purpose: purpose, Cause: err}
		}

		entry.hops = append(entry.hops, exchange{
			method: method,
			url:    target.String(),
			status: res.Status(),
			header: res.Header(),
			body:   res.String(),
		})

		location := res.Header().Get("Location")
		if !isRedirect(res.StatusCode()) || location == "" {
			break
		}
		if len(entry.hops) > maxRedirects {
			err := fmt.Errorf("more than %d redirects", maxRedirects)
			span.RecordError(err)
			span.SetStatus(codes.Error, "transport failure")
			return page{}, &BadResponseError{Purpose: purpose, Cause: err}
		}

		next, err := target.Parse(location)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "transport failure")
			return page{}, &BadResponseError{Purpose: purpose, Cause: err}
		}
		if next.Host != s.baseUrl.Host {
			err := fmt.Errorf("redirect to %q leaves the portal host", next.String())
			span.RecordError(err)
			span.SetStatus(codes.Error, "transport failure")
			return page{}, &BadResponseError{Purpose: purpose, Cause: err}
		}

		// 301/302/303 demote a form submission to a plain GET
		switch res.StatusCode() {
		case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther:
			method = http.MethodGet
			form = nil
		}
		target = next
	}

	// appended before parsing so failed classifications still leave
	// evidence for SaveLogs
	s.log = append(s.log, entry)

	pageTime := entry.time
	if date := res.Header().Get("Date"); date != "" {
		parsed, err := http.ParseTime(date)
		if err == nil {
			pageTime = parsed.UTC()
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse html")
		return page{}, &BadResponseError{Purpose: purpose, Cause: err}
	}
	p, err := classify(doc, pageTime)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to classify page")
		return page{}, &BadResponseError{Purpose: purpose, Cause: err}
	}

	s.doc = doc
	s.docUrl = target

	span.SetAttributes(attribute.String("page_id", p.id))
	return p, nil
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently,
		http.StatusFound,
		http.StatusSeeOther,
		http.StatusTemporaryRedirect,
		http.StatusPermanentRedirect:
		return true
	}
	return false
}

// loginForm reads the first form off the last-navigated page: its
// resolved action url, method and pre-filled fields (hidden inputs
// included, so anti-forgery tokens survive the round trip).
func (s *Session) loginForm() (*url.URL, string, url.Values, error) {
	if s.doc == nil {
		return nil, "", nil, errors.New("no page to select a form from")
	}
	form := s.doc.Find("form").First()
	if form.Length() == 0 {
		return nil, "", nil, errors.New("login page has no form")
	}

	fields := url.Values{}
	form.Find("input").Each(func(_ int, input *goquery.Selection) {
		name, ok := input.Attr("name")
		if !ok || name == "" {
			return
		}
		switch input.AttrOr("type", "text") {
		case "submit", "button", "image", "reset":
			return
		}
		fields.Set(name, input.AttrOr("value", ""))
	})
	if !fields.Has(fieldUserName) || !fields.Has(fieldPassword) {
		return nil, "", nil, errors.New("login form is missing credential fields")
	}

	method := strings.ToUpper(form.AttrOr("method", http.MethodGet))
	action, err := s.docUrl.Parse(form.AttrOr("action", ""))
	if err != nil {
		return nil, "", nil, err
	}
	return action, method, fields, nil
}

func validationErrors(content *goquery.Selection) []string {
	var messages []string
	content.Find(".validation-summary-errors li").Each(func(_ int, li *goquery.Selection) {
		text := li.Text()
		messages = append(messages, strings.TrimSpace(text))
	})
	return messages
}
