package captcha

import (
	"context"
	"fmt"

	"github.com/maltedev/cj-catalog-scraper/internal/browser"
)

// Login opens the site, submits the configured credentials and clears any
// challenge shown afterwards.
func (g *Gate) Login(ctx context.Context, page browser.Page) error {
	if g.creds.Empty() {
		return ErrNoCredentials
	}
	if err := g.Navigate(ctx, page, g.opts.BaseURL); err != nil {
		return fmt.Errorf("failed to open login page: %w", err)
	}

	if err := page.Click(g.sel.LoginButton, g.opts.LoginTimeout); err != nil {
		return fmt.Errorf("failed to open login form: %w", err)
	}
	if err := page.WaitFor(g.sel.LoginForm, g.opts.LoginTimeout); err != nil {
		return fmt.Errorf("login form did not appear: %w", err)
	}

	if err := g.submitCredentials(ctx, page); err != nil {
		return err
	}

	if err := g.Handle(ctx, page); err != nil {
		return fmt.Errorf("failed after login: %w", err)
	}

	g.logger.Info("logged in", "user", g.creds.Username)
	return nil
}

func (g *Gate) submitCredentials(ctx context.Context, page browser.Page) error {
	if g.creds.Empty() {
		return ErrNoCredentials
	}

	if err := page.Fill(g.sel.Username, g.creds.Username); err != nil {
		return err
	}
	if err := page.Fill(g.sel.Password, g.creds.Password); err != nil {
		return err
	}
	if err := page.Press("Enter"); err != nil {
		return err
	}

	return browser.Sleep(ctx, g.opts.LoginSettle)
}
