package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"

	"webdl/internal/encryption"
)

// loadSession restores the sealed cookie file once per run. Without a saved session the
// site root is visited for fresh cookies.
func (a *App) loadSession(ctx context.Context) error {
	if a.sessionLoaded {
		return nil
	}
	path := a.cfg.Encryption.SessionPath
	if _, err := os.Stat(path); path == "" || errors.Is(err, fs.ErrNotExist) {
		a.logger.Info("no saved session, visiting site root")
		if err := a.client.Init(ctx); err != nil {
			return err
		}
		a.sessionLoaded = true
		return nil
	}

	key, err := a.unlock()
	if err != nil {
		return err
	}
	if err := encryption.OpenFile(key, path, a.client.LoadCookies); err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	a.logger.Debug("session loaded", "path", path)
	a.sessionLoaded = true
	return nil
}

func (a *App) unlock() (encryption.Key, error) {
	if a.opts.Passphrase == nil {
		return nil, errors.New("session is sealed and no passphrase source is set")
	}
	passphrase, err := a.opts.Passphrase()
	if err != nil {
		return nil, err
	}
	key, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return nil, fmt.Errorf("unlocking session key: %w", err)
	}
	return key, nil
}

// saveSession seals the cookie jar into the session file. Without keys nothing is saved.
func (a *App) saveSession() error {
	if !a.encryptor.IsConfigured() {
		a.logger.Debug("no session keys, cookies not saved")
		return nil
	}
	if err := encryption.SealFile(a.encryptor, a.cfg.Encryption.SessionPath, a.client.SaveCookies); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// InitSession generates the key pair when it is missing, starts a fresh session and
// seals it.
func (a *App) InitSession(ctx context.Context, passphrase string) error {
	if !a.encryptor.IsConfigured() {
		if err := a.encryptor.Setup(passphrase); err != nil {
			return fmt.Errorf("setting up session keys: %w", err)
		}
		a.logger.Info("session keys created", "public_key", a.cfg.Encryption.PublicKeyPath)
	}
	if err := a.client.Init(ctx); err != nil {
		return err
	}
	a.sessionLoaded = true
	return a.saveSession()
}

// SetCookie adds a site cookie to the session, e.g. a login cookie copied from a browser.
func (a *App) SetCookie(ctx context.Context, name, value string) error {
	if name == "" {
		return errors.New("cookie name is empty")
	}
	if err := a.loadSession(ctx); err != nil {
		return err
	}
	a.client.SetCookies([]*http.Cookie{{Name: name, Value: value, Path: "/"}})
	return a.saveSession()
}
