package geminiwebapi

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	refreshTaskPrefix = "refresh:"
	idleCloseTask     = "idle-close"
)

// startAutoRefresh launches the background cookie refresher for the current
// credential identity, replacing any prior refresher for that identity. The
// task rotates the short-lived session cookie, writes it into the credential
// store, then sleeps for the interval. On any failure it logs a warning and
// cancels itself; it never retries and never crashes the caller.
func (c *GeminiClient) startAutoRefresh(interval time.Duration) {
	identity := refreshTaskPrefix + c.creds.Identity()
	c.tasks.startOrReplace(identity, func(ctx context.Context) {
		for {
			snap := c.creds.Snapshot()
			newTS, err := rotate1PSIDTS(snap.Cookies, c.Proxy, c.insecure)
			if err != nil {
				log.Warnf("Failed to refresh cookies: %v. Background auto refresh task canceled.", err)
				return
			}
			if newTS != "" {
				c.creds.SetCookie(cookiePSIDTS, newTS)
				if c.onRefresh != nil {
					c.onRefresh(c.creds.Snapshot())
				}
				log.Debugf("Cookies refreshed. New %s: %s", cookiePSIDTS, MaskToken28(newTS))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval):
			}
		}
	})
}

// resetCloseTask arms (or re-arms) the idle-close timer. Every foreground
// call resets it when auto-close is enabled; when it fires, the client tears
// down the transport connection and re-initializes on the next call.
func (c *GeminiClient) resetCloseTask() {
	delay := c.closeDelay
	c.tasks.startOrReplace(idleCloseTask, func(ctx context.Context) {
		select {
		case <-ctx.Done():
		case <-time.After(delay):
			c.Close(0)
		}
	})
}
