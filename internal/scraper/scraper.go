package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/sync/semaphore"

	"github.com/pavelanni/studibot/internal/model"
)

const (
	DefaultMoodleURL = "https://lernen.min.uni-hamburg.de/my/"
	DefaultStineURL  = "https://www.stine.uni-hamburg.de/scripts/mgrqispi.dll?APPNAME=CampusNet&PRGNAME=EXTERNALPAGES&ARGUMENTS=-N000000000000001,-N000265,-Astartseite"

	DefaultMaxWait     = 25 * time.Second
	DefaultMaxBrowsers = 2
)

const (
	xpLoginLink   = `//a[contains(., 'Login') or contains(., 'Anmelden')]`
	xpShibLink    = `//a[contains(@class, 'uhhshib')]`
	xpUsername    = `//input[@name='j_username']`
	xpPassword    = `//input[@name='j_password']`
	xpSubmit      = `//button[@name='_eventId_proceed' or contains(., 'Anmelden')]`
	xpFIDORadio   = `//input[@name='2fa_method' and @value='fido']`
	xpFIDOSubmit  = `//button[contains(@class, 'calltoaction') and contains(@class, 'mfa_login')]`
	xpTermine     = `//*[contains(text(), 'Aktuelle Termine')]`
	xpMyExams     = `//a[contains(., 'Meine Prüfungen')]`
	xpMyExamsHref = `//a[contains(@href, 'MYEXAMS')]`

	cookieButtons = `.eupopup-button, .eupopup-accept, button[data-cookieaccept]`
)

// Config controls browser sessions.
type Config struct {
	MoodleURL   string
	StineURL    string
	MaxWait     time.Duration // per page-load or element wait
	MaxBrowsers int64
	Headless    bool
	BrowserBin  string // empty lets the launcher find or download a browser
}

// Browser fetches raw portal text by driving a headless browser. At most
// MaxBrowsers sessions run at the same time.
type Browser struct {
	cfg Config
	sem *semaphore.Weighted
}

// New returns a Browser with defaults applied to unset fields.
func New(cfg Config) *Browser {
	if cfg.MoodleURL == "" {
		cfg.MoodleURL = DefaultMoodleURL
	}
	if cfg.StineURL == "" {
		cfg.StineURL = DefaultStineURL
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultMaxWait
	}
	if cfg.MaxBrowsers <= 0 {
		cfg.MaxBrowsers = DefaultMaxBrowsers
	}
	return &Browser{cfg: cfg, sem: semaphore.NewWeighted(cfg.MaxBrowsers)}
}

// Fetch logs into the portal for kind and returns its cleaned visible text.
// Failures are returned as *FetchError.
func (b *Browser) Fetch(ctx context.Context, kind model.DataKind, username, password string) (string, error) {
	if username == "" || password == "" {
		return "", fail(kind, ReasonCredentials, ErrNoCredentials)
	}
	var target string
	switch kind {
	case model.KindMoodle:
		target = b.cfg.MoodleURL
	case model.KindStineExams:
		target = b.cfg.StineURL
	default:
		return "", fail(kind, ReasonNavigate, fmt.Errorf("unsupported kind %q", kind))
	}

	if err := b.sem.Acquire(ctx, 1); err != nil {
		return "", fail(kind, ReasonBusy, err)
	}
	defer b.sem.Release(1)

	start := time.Now()
	l := launcher.New().Headless(b.cfg.Headless)
	if b.cfg.BrowserBin != "" {
		l = l.Bin(b.cfg.BrowserBin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return "", fail(kind, ReasonLaunch, err)
	}
	defer l.Cleanup()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return "", fail(kind, ReasonLaunch, fmt.Errorf("connect to browser: %w", err))
	}
	defer func() {
		if err := browser.Close(); err != nil {
			slog.Debug("close browser", "error", err)
		}
	}()

	page, err := browser.Page(proto.TargetCreateTarget{URL: target})
	if err != nil {
		return "", fail(kind, ReasonNavigate, err)
	}
	s := &session{page: page, wait: b.cfg.MaxWait, optional: b.cfg.MaxWait / 5}
	if err := s.page.Timeout(s.wait).WaitLoad(); err != nil {
		return "", fail(kind, ReasonNavigate, err)
	}

	var raw string
	switch kind {
	case model.KindMoodle:
		raw, err = s.moodle(username, password)
	case model.KindStineExams:
		raw, err = s.stineExams(username, password)
	}
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			fe.Kind = kind
		}
		return "", err
	}
	slog.Debug("portal fetched", "kind", kind, "len", len(raw), "elapsed", time.Since(start))
	return raw, nil
}

type session struct {
	page     *rod.Page
	wait     time.Duration
	optional time.Duration
}

// element waits up to the full wait for xpath.
func (s *session) element(xpath string) (*rod.Element, error) {
	return s.page.Timeout(s.wait).ElementX(xpath)
}

// maybe waits briefly for an element that is not always shown.
func (s *session) maybe(xpath string) *rod.Element {
	el, err := s.page.Timeout(s.optional).ElementX(xpath)
	if err != nil {
		return nil
	}
	return el
}

// jsClick clicks through overlays that intercept pointer events.
func jsClick(el *rod.Element) error {
	_, err := el.Eval(`() => this.click()`)
	return err
}

func (s *session) dismissCookieBanner() {
	buttons, err := s.page.Elements(cookieButtons)
	if err != nil {
		return
	}
	for _, b := range buttons {
		_ = jsClick(b)
	}
}

// login fills the university single sign-on form and picks the FIDO
// second factor when it is offered.
func (s *session) login(username, password string) error {
	user, err := s.element(xpUsername)
	if err != nil {
		return fail("", ReasonLogin, fmt.Errorf("username field: %w", err))
	}
	pass, err := s.element(xpPassword)
	if err != nil {
		return fail("", ReasonLogin, fmt.Errorf("password field: %w", err))
	}
	if err := user.Input(username); err != nil {
		return fail("", ReasonLogin, err)
	}
	if err := pass.Input(password); err != nil {
		return fail("", ReasonLogin, err)
	}
	submit, err := s.element(xpSubmit)
	if err != nil {
		return fail("", ReasonLogin, fmt.Errorf("submit button: %w", err))
	}
	if err := submit.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fail("", ReasonLogin, err)
	}

	if radio := s.maybe(xpFIDORadio); radio != nil {
		if err := jsClick(radio); err != nil {
			return fail("", ReasonLogin, fmt.Errorf("select FIDO: %w", err))
		}
		if next := s.maybe(xpFIDOSubmit); next != nil {
			if err := jsClick(next); err != nil {
				return fail("", ReasonLogin, fmt.Errorf("confirm FIDO: %w", err))
			}
		}
	}
	return nil
}

func (s *session) visibleText() (string, error) {
	body, err := s.page.Timeout(s.wait).Element("body")
	if err != nil {
		return "", fail("", ReasonExtract, err)
	}
	text, err := body.Text()
	if err != nil {
		return "", fail("", ReasonExtract, err)
	}
	return text, nil
}

func (s *session) moodle(username, password string) (string, error) {
	s.dismissCookieBanner()
	if link := s.maybe(xpLoginLink); link != nil {
		_ = jsClick(link)
	}
	if err := s.login(username, password); err != nil {
		return "", err
	}
	if _, err := s.element(xpTermine); err != nil {
		return "", fail("", ReasonNavigate, fmt.Errorf("dashboard: %w", err))
	}
	_ = s.page.Timeout(s.wait).WaitLoad()

	text, err := s.visibleText()
	if err != nil {
		return "", err
	}
	raw := ExtractMoodle(text)
	if raw == "" {
		return "", fail("", ReasonExtract, errors.New("empty appointments block"))
	}
	return raw, nil
}

func (s *session) stineExams(username, password string) (string, error) {
	if link := s.maybe(xpLoginLink); link != nil {
		_ = jsClick(link)
	}
	if link := s.maybe(xpShibLink); link != nil {
		_ = jsClick(link)
	}
	if err := s.login(username, password); err != nil {
		return "", err
	}

	link := s.maybe(xpMyExams)
	if link == nil {
		link = s.maybe(xpMyExamsHref)
	}
	if link == nil {
		return "", fail("", ReasonNavigate, errors.New("exams link not found"))
	}
	href, err := link.Attribute("href")
	if err == nil && href != nil && *href != "" {
		err = s.page.Timeout(s.wait).Navigate(*href)
	} else {
		err = jsClick(link)
	}
	if err != nil {
		return "", fail("", ReasonNavigate, fmt.Errorf("open exams page: %w", err))
	}
	_ = s.page.Timeout(s.wait).WaitLoad()

	text, err := s.visibleText()
	if err != nil {
		return "", err
	}
	raw := ExtractStineExams(text)
	if raw == "" {
		return "", fail("", ReasonExtract, errors.New("empty exams page"))
	}
	return raw, nil
}
