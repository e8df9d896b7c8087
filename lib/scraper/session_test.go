package scraper

import (
	"context"
	"embed"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rosteron/lib/telemetry"

	"github.com/google/go-cmp/cmp"
	"github.com/mazen160/go-random"
	"github.com/stretchr/testify/require"
)

//go:embed testdata
var testdata embed.FS

func fixture(t testing.TB, name string) string {
	contents, err := testdata.ReadFile("testdata/" + name)
	require.NoError(t, err)
	return string(contents)
}

const (
	testUsername = "joe.bloggs"
	testPassword = "abc123"
)

// fakePortal is an httptest stand-in for a RosterOn Mobile instance,
// exercising the same wire contract the scraper depends on: form
// login, cookie-carried auth, and a silent render of the login page
// when an unauthenticated roster is requested.
type fakePortal struct {
	t      *testing.T
	server *httptest.Server
	ticket string

	loginPage  string
	rosterPage string
	// when non-empty, the login submission always renders this
	// fixture, regardless of the submitted credentials
	submitOverride string
	// when true the login submission answers with a 302 to Home/Index
	// instead of rendering the home page directly
	redirectAfterLogin bool

	requests map[string]int
}

func newFakePortal(t *testing.T) *fakePortal {
	ticket, err := random.String(24)
	require.NoError(t, err)

	p := &fakePortal{
		t:          t,
		ticket:     ticket,
		loginPage:  "login.html",
		rosterPage: "roster.html",
		requests:   map[string]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /RosterOnProd/Mobile/Account/Login", p.handleLoginPage)
	mux.HandleFunc("POST /RosterOnProd/Mobile/Account/Login", p.handleLoginSubmit)
	mux.HandleFunc("GET /RosterOnProd/Mobile/Home/Index", p.handleHome)
	mux.HandleFunc("GET /RosterOnProd/Mobile/Roster/List", p.handleRoster)
	mux.HandleFunc("GET /RosterOnProd/Mobile/Account/LogOff", p.handleLogOff)
	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)

	return p
}

func (p *fakePortal) baseUrl() string {
	return p.server.URL + "/RosterOnProd/Mobile"
}

func (p *fakePortal) totalRequests() int {
	total := 0
	for _, count := range p.requests {
		total += count
	}
	return total
}

func (p *fakePortal) serve(w http.ResponseWriter, name string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(fixture(p.t, name)))
}

func (p *fakePortal) authenticated(r *http.Request) bool {
	cookie, err := r.Cookie(authCookieName)
	return err == nil && cookie.Value == p.ticket
}

func (p *fakePortal) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	// a GET-method login form submits right back here through the
	// query string
	if r.URL.Query().Has(fieldUserName) {
		p.requests["submit"]++
		p.completeLogin(w, r.URL.Query().Get(fieldUserName), r.URL.Query().Get(fieldPassword))
		return
	}
	p.requests["login"]++
	p.serve(w, p.loginPage)
}

func (p *fakePortal) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	p.requests["submit"]++

	if p.submitOverride != "" {
		p.serve(w, p.submitOverride)
		return
	}

	require.NoError(p.t, r.ParseForm())
	p.completeLogin(w, r.PostFormValue(fieldUserName), r.PostFormValue(fieldPassword))
}

func (p *fakePortal) completeLogin(w http.ResponseWriter, username, password string) {
	if username != testUsername || password != testPassword {
		p.serve(w, "login-badcreds.html")
		return
	}

	http.SetCookie(w, &http.Cookie{Name: authCookieName, Value: p.ticket, Path: "/"})
	if p.redirectAfterLogin {
		w.Header().Set("Location", "/RosterOnProd/Mobile/Home/Index")
		w.WriteHeader(http.StatusFound)
		return
	}
	p.serve(w, "home.html")
}

func (p *fakePortal) handleHome(w http.ResponseWriter, r *http.Request) {
	p.requests["home"]++
	p.serve(w, "home.html")
}

func (p *fakePortal) handleRoster(w http.ResponseWriter, r *http.Request) {
	p.requests["roster"]++
	if !p.authenticated(r) {
		p.serve(w, p.loginPage)
		return
	}
	w.Header().Set("Date", "Mon, 10 Jun 2019 04:28:38 GMT")
	p.serve(w, p.rosterPage)
}

func (p *fakePortal) handleLogOff(w http.ResponseWriter, r *http.Request) {
	p.requests["logoff"]++
	http.SetCookie(w, &http.Cookie{Name: authCookieName, Value: "", Path: "/", MaxAge: -1})
	p.serve(w, p.loginPage)
}

func newTestSession(t *testing.T, portal *fakePortal) *Session {
	session, err := NewSession(SessionOptions{BaseUrl: portal.baseUrl()})
	require.NoError(t, err)
	return session
}

func TestLogInLogOut(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scraper")
	defer cleanup()

	portal := newFakePortal(t)
	session := newTestSession(t, portal)
	ctx := context.Background()

	require.False(t, session.IsLoggedIn())

	err := session.LogIn(ctx, testUsername, testPassword)
	require.NoError(t, err)
	require.True(t, session.IsLoggedIn())

	err = session.LogOut(ctx)
	require.NoError(t, err)
	require.False(t, session.IsLoggedIn())
	require.Equal(t, 1, portal.requests["logoff"])
}

func TestLogInBadCredentials(t *testing.T) {
	portal := newFakePortal(t)
	session := newTestSession(t, portal)

	err := session.LogIn(context.Background(), testUsername, "wrong")
	require.ErrorIs(t, err, Err)

	var badCreds *BadCredentialsError
	require.ErrorAs(t, err, &badCreds)
	require.Equal(t, testUsername, badCreds.Username)
	require.False(t, session.IsLoggedIn())
}

func TestLogInMalformedFirstPage(t *testing.T) {
	portal := newFakePortal(t)
	portal.loginPage = "unexpected.html"
	session := newTestSession(t, portal)

	err := session.LogIn(context.Background(), testUsername, testPassword)
	require.ErrorIs(t, err, Err)

	var badResponse *BadResponseError
	require.ErrorAs(t, err, &badResponse)
	require.Equal(t, PurposeLogin, badResponse.Purpose)
}

func TestLogInMalformedPageAfterSubmit(t *testing.T) {
	portal := newFakePortal(t)
	portal.submitOverride = "unexpected.html"
	session := newTestSession(t, portal)

	err := session.LogIn(context.Background(), testUsername, testPassword)

	var badResponse *BadResponseError
	require.ErrorAs(t, err, &badResponse)
	require.Equal(t, PurposeHome, badResponse.Purpose)
}

func TestLogInStrangeValidationError(t *testing.T) {
	portal := newFakePortal(t)
	portal.submitOverride = "login-baderror.html"
	session := newTestSession(t, portal)

	err := session.LogIn(context.Background(), testUsername, testPassword)

	var badResponse *BadResponseError
	require.ErrorAs(t, err, &badResponse)
	require.Equal(t, PurposeHome, badResponse.Purpose)
}

func TestLogInFollowsRedirect(t *testing.T) {
	portal := newFakePortal(t)
	portal.redirectAfterLogin = true
	session := newTestSession(t, portal)

	err := session.LogIn(context.Background(), testUsername, testPassword)
	require.NoError(t, err)
	require.True(t, session.IsLoggedIn())
	require.Equal(t, 1, portal.requests["home"])
}

func TestGetRoster(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scraper")
	defer cleanup()

	portal := newFakePortal(t)
	session := newTestSession(t, portal)
	ctx := context.Background()

	err := session.LogIn(ctx, testUsername, testPassword)
	require.NoError(t, err)

	snapshot, err := session.GetRoster(ctx)
	require.NoError(t, err)

	// server time from the Date header, not client time
	wantTime := time.Date(2019, time.June, 10, 4, 28, 38, 0, time.UTC)
	require.True(t, wantTime.Equal(snapshot.Time))

	melbourne := "ABCDE - Melbourne Office"
	want := []Item{
		{
			Date:  time.Date(2019, time.June, 11, 0, 0, 0, 0, time.UTC),
			Title: melbourne,
			Detail: []Field{
				{Text: "10:30 - 18:06", Valid: true},
				{},
				{Text: "XYZ", Valid: true},
				{Text: "Assistant", Valid: true},
			},
		},
		{
			Date:  time.Date(2019, time.June, 12, 0, 0, 0, 0, time.UTC),
			Title: melbourne,
			Detail: []Field{
				{Text: "10:30 - 18:06", Valid: true},
				{},
				{Text: "XYZ", Valid: true},
				{Text: "Assistant", Valid: true},
			},
		},
		{
			Date:  time.Date(2019, time.June, 12, 0, 0, 0, 0, time.UTC),
			Title: melbourne,
			Detail: []Field{
				{Text: "19:00 - 22:30", Valid: true},
				{Text: "Overtime", Valid: true},
				{Text: "XYZ", Valid: true},
				{Text: "Assistant", Valid: true},
			},
		},
	}
	if diff := cmp.Diff(want, snapshot.Items); diff != "" {
		t.Fatalf("roster items mismatch (-want +got):\n%s", diff)
	}

	err = session.LogOut(ctx)
	require.NoError(t, err)
}

func TestLogInSubmitsGetForm(t *testing.T) {
	portal := newFakePortal(t)
	portal.loginPage = "login-getform.html"
	session := newTestSession(t, portal)

	err := session.LogIn(context.Background(), testUsername, testPassword)
	require.NoError(t, err)
	require.True(t, session.IsLoggedIn())
	require.Equal(t, 1, portal.requests["submit"])
}

func TestGetRosterUnparsableListing(t *testing.T) {
	portal := newFakePortal(t)
	portal.rosterPage = "roster-baddate.html"
	session := newTestSession(t, portal)
	ctx := context.Background()

	err := session.LogIn(ctx, testUsername, testPassword)
	require.NoError(t, err)

	_, err = session.GetRoster(ctx)
	require.ErrorIs(t, err, Err)

	var badResponse *BadResponseError
	require.ErrorAs(t, err, &badResponse)
	require.Equal(t, PurposeRoster, badResponse.Purpose)
}

func TestGetRosterNotLoggedIn(t *testing.T) {
	portal := newFakePortal(t)
	session := newTestSession(t, portal)

	_, err := session.GetRoster(context.Background())
	require.ErrorIs(t, err, Err)

	var notLoggedIn *NotLoggedInError
	require.ErrorAs(t, err, &notLoggedIn)
}

func TestLogOutIdempotent(t *testing.T) {
	portal := newFakePortal(t)
	session := newTestSession(t, portal)

	require.False(t, session.IsLoggedIn())
	err := session.LogOut(context.Background())
	require.NoError(t, err)
	require.False(t, session.IsLoggedIn())
	require.Equal(t, 0, portal.totalRequests())
}

func TestWithSession(t *testing.T) {
	portal := newFakePortal(t)
	ctx := context.Background()

	err := WithSession(ctx, SessionOptions{BaseUrl: portal.baseUrl()}, func(s *Session) error {
		err := s.LogIn(ctx, testUsername, testPassword)
		require.NoError(t, err)
		require.True(t, s.IsLoggedIn())
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, portal.requests["logoff"])
}

func TestWithSessionLogsOutOnError(t *testing.T) {
	portal := newFakePortal(t)
	ctx := context.Background()
	sentinel := errors.New("roster processing failed")

	err := WithSession(ctx, SessionOptions{BaseUrl: portal.baseUrl()}, func(s *Session) error {
		innerErr := s.LogIn(ctx, testUsername, testPassword)
		require.NoError(t, innerErr)
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 1, portal.requests["logoff"])
}

func TestSaveLogs(t *testing.T) {
	portal := newFakePortal(t)
	session := newTestSession(t, portal)
	ctx := context.Background()

	err := session.LogIn(ctx, testUsername, testPassword)
	require.NoError(t, err)
	err = session.LogOut(ctx)
	require.NoError(t, err)

	dir := t.TempDir()
	err = session.SaveLogs(dir)
	require.NoError(t, err)

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 3)

	// same-format utc timestamps, so name order is chronological
	require.True(t, strings.HasSuffix(files[0].Name(), "Z-login-0.txt"), files[0].Name())
	require.True(t, strings.HasSuffix(files[1].Name(), "Z-home-0.txt"), files[1].Name())
	require.True(t, strings.HasSuffix(files[2].Name(), "Z-logout-0.txt"), files[2].Name())

	contents, err := os.ReadFile(filepath.Join(dir, files[0].Name()))
	require.NoError(t, err)
	lines := strings.Split(string(contents), "\n")
	require.Greater(t, len(lines), 4)

	_, err = time.Parse(logTimeLayout, lines[0])
	require.NoError(t, err)
	require.Equal(t, "GET "+portal.baseUrl()+"/Account/Login", lines[1])
	require.Equal(t, "200 OK", lines[2])
	require.Equal(t, "", lines[3])
	require.True(t, strings.HasSuffix(string(contents), fixture(t, "login.html")))

	// request bodies (credentials) must never appear in the record
	home, err := os.ReadFile(filepath.Join(dir, files[1].Name()))
	require.NoError(t, err)
	require.NotContains(t, string(home), testPassword)
}

func TestSaveLogsRecordsRedirectHops(t *testing.T) {
	portal := newFakePortal(t)
	portal.redirectAfterLogin = true
	session := newTestSession(t, portal)
	ctx := context.Background()

	err := session.LogIn(ctx, testUsername, testPassword)
	require.NoError(t, err)

	dir := t.TempDir()
	err = session.SaveLogs(dir)
	require.NoError(t, err)

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 3)
	require.True(t, strings.HasSuffix(files[0].Name(), "Z-login-0.txt"), files[0].Name())
	require.True(t, strings.HasSuffix(files[1].Name(), "Z-home-0.txt"), files[1].Name())
	require.True(t, strings.HasSuffix(files[2].Name(), "Z-home-1.txt"), files[2].Name())

	hop0, err := os.ReadFile(filepath.Join(dir, files[1].Name()))
	require.NoError(t, err)
	require.Equal(t, "302 Found", strings.Split(string(hop0), "\n")[2])
}

func TestNewSessionRelativeBaseUrl(t *testing.T) {
	_, err := NewSession(SessionOptions{BaseUrl: "RosterOnProd/Mobile"})
	require.Error(t, err)
}
