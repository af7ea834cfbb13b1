package captcha

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/cj-catalog-scraper/internal/browser"
)

var (
	// ErrChallengeFailed means the gate gave up after exhausting its attempts.
	ErrChallengeFailed = errors.New("captcha challenge failed")
	// ErrNoCredentials is returned when a login prompt shows up and no credentials are configured.
	ErrNoCredentials = errors.New("login required but no credentials configured")
)

// Solver turns a challenge image (usually a base64 data URL) into its text.
type Solver interface {
	Solve(ctx context.Context, image string) (string, error)
}

type Credentials struct {
	Username string
	Password string
}

func (c Credentials) Empty() bool {
	return c.Username == "" || c.Password == ""
}

type Selectors struct {
	Container   string
	NextButton  string
	Image       string
	Answer      string
	Submit      string
	AlertClose  string
	LoginButton string
	LoginForm   string
	Username    string
	Password    string
}

func DefaultSelectors() Selectors {
	return Selectors{
		Container:   "div.commit-main",
		NextButton:  "#step1 button",
		Image:       "#step2 img#verifyCode",
		Answer:      "#inputVerification",
		Submit:      "#submit",
		AlertClose:  "div.alert-model-foot button.alert-model-foot-button",
		LoginButton: "div[class*='loginBtn'] a",
		LoginForm:   `form[name="loginForm"]`,
		Username:    `form[name="loginForm"] input[type="text"]`,
		Password:    `form[name="loginForm"] input[type="password"]`,
	}
}

type Options struct {
	BaseURL      string
	MaxAttempts  int
	NextDelay    time.Duration
	ImageTimeout time.Duration
	ClickTimeout time.Duration
	SettleDelay  time.Duration
	ReloadDelay  time.Duration
	LoginTimeout time.Duration
	LoginSettle  time.Duration
	// OnTransition is called for every state change.
	OnTransition func(from, to State)
}

func DefaultOptions() Options {
	return Options{
		MaxAttempts:  5,
		NextDelay:    time.Second,
		ImageTimeout: 5 * time.Second,
		ClickTimeout: 3 * time.Second,
		SettleDelay:  2 * time.Second,
		ReloadDelay:  1500 * time.Millisecond,
		LoginTimeout: 10 * time.Second,
		LoginSettle:  5 * time.Second,
	}
}

// Gate resolves challenge and login interstitials after navigation. It holds no
// per-page state, so one Gate can guard many pages concurrently.
type Gate struct {
	solver Solver
	creds  Credentials
	sel    Selectors
	opts   Options
	logger *slog.Logger
}

func NewGate(solver Solver, creds Credentials, sel Selectors, opts Options, logger *slog.Logger) *Gate {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Gate{
		solver: solver,
		creds:  creds,
		sel:    sel,
		opts:   opts,
		logger: logger.With("component", "captcha"),
	}
}

// Navigate loads url and clears any interstitial that appears.
func (g *Gate) Navigate(ctx context.Context, page browser.Page, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := page.Goto(url); err != nil {
		return err
	}
	return g.Handle(ctx, page)
}

// Handle runs the challenge state machine on the current document. It returns nil
// once the page is clear, and an error wrapping ErrChallengeFailed when the
// attempt budget is spent.
func (g *Gate) Handle(ctx context.Context, page browser.Page) error {
	state := StateNormal
	attempts := 0
	var lastErr error

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch state {
		case StateNormal:
			next, err := g.detect(page)
			if err != nil {
				return fmt.Errorf("failed to inspect page: %w", err)
			}
			if next == StateNormal {
				return nil
			}
			state = g.transition(state, next)

		case StateChallengeDetected:
			attempts++
			if attempts > g.opts.MaxAttempts {
				state = g.transition(state, StateFailed)
				continue
			}

			g.logger.Info("challenge detected", "url", page.URL(), "attempt", attempts)

			if err := page.Click(g.sel.NextButton, g.opts.ClickTimeout); err != nil {
				g.logger.Debug("next button not clickable", "error", err)
			}
			if err := browser.Sleep(ctx, g.opts.NextDelay); err != nil {
				return err
			}

			if err := page.WaitFor(g.sel.Image, g.opts.ImageTimeout); err != nil {
				g.logger.Warn("challenge image not found, leaving page as is", "url", page.URL(), "error", err)
				g.transition(state, StateNormal)
				return nil
			}
			state = g.transition(state, StateSolving)

		case StateSolving:
			if err := g.solve(ctx, page); err != nil {
				lastErr = err
				g.logger.Warn("failed to solve challenge", "attempt", attempts, "error", err)
				if err := g.reload(ctx, page); err != nil {
					return err
				}
				state = g.transition(state, StateChallengeDetected)
				continue
			}
			state = g.transition(state, StateSubmitted)

		case StateSubmitted:
			if ok, _ := page.Exists(g.sel.AlertClose); ok {
				if err := page.Click(g.sel.AlertClose, g.opts.ClickTimeout); err != nil {
					g.logger.Debug("failed to close alert", "error", err)
				}
			}
			if err := browser.Sleep(ctx, g.opts.SettleDelay); err != nil {
				return err
			}

			still, err := page.Exists(g.sel.Container)
			if err != nil {
				return fmt.Errorf("failed to inspect page: %w", err)
			}
			if !still {
				state = g.transition(state, StateVerified)
				continue
			}

			lastErr = errors.New("challenge still present after submit")
			g.logger.Warn("challenge not accepted, reloading", "attempt", attempts)
			if err := g.reload(ctx, page); err != nil {
				return err
			}
			state = g.transition(state, StateChallengeDetected)

		case StateVerified:
			g.logger.Info("challenge solved", "url", page.URL(), "attempts", attempts)
			return nil

		case StateLoginRequired:
			attempts++
			if attempts > g.opts.MaxAttempts {
				state = g.transition(state, StateFailed)
				continue
			}

			g.logger.Info("login prompt detected", "url", page.URL())
			if err := g.submitCredentials(ctx, page); err != nil {
				lastErr = err
				if errors.Is(err, ErrNoCredentials) {
					state = g.transition(state, StateFailed)
					continue
				}
				g.logger.Warn("failed to submit credentials", "error", err)
			}
			state = g.transition(state, StateNormal)

		case StateFailed:
			g.logger.Error("giving up on challenge", "url", page.URL(), "max_attempts", g.opts.MaxAttempts)
			if lastErr != nil {
				return fmt.Errorf("%w after %d attempts: %w", ErrChallengeFailed, g.opts.MaxAttempts, lastErr)
			}
			return fmt.Errorf("%w after %d attempts", ErrChallengeFailed, g.opts.MaxAttempts)
		}
	}
}

func (g *Gate) detect(page browser.Page) (State, error) {
	login, err := page.Exists(g.sel.LoginForm)
	if err != nil {
		return StateNormal, err
	}
	if login {
		return StateLoginRequired, nil
	}

	challenge, err := page.Exists(g.sel.Container)
	if err != nil {
		return StateNormal, err
	}
	if challenge {
		return StateChallengeDetected, nil
	}

	return StateNormal, nil
}

func (g *Gate) solve(ctx context.Context, page browser.Page) error {
	src, err := page.Attribute(g.sel.Image, "src")
	if err != nil {
		return err
	}
	if src == "" {
		return errors.New("challenge image has no source")
	}

	answer, err := g.solver.Solve(ctx, src)
	if err != nil {
		return fmt.Errorf("failed to decode challenge image: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return errors.New("decoder returned an empty answer")
	}

	if err := page.Fill(g.sel.Answer, answer); err != nil {
		return err
	}
	return page.Click(g.sel.Submit, g.opts.ClickTimeout)
}

func (g *Gate) reload(ctx context.Context, page browser.Page) error {
	if err := page.Reload(); err != nil {
		return err
	}
	return browser.Sleep(ctx, g.opts.ReloadDelay)
}

func (g *Gate) transition(from, to State) State {
	g.logger.Debug("captcha state change", "from", from.String(), "to", to.String())
	if g.opts.OnTransition != nil {
		g.opts.OnTransition(from, to)
	}
	return to
}
