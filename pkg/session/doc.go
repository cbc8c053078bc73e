// Package session owns the single HTTP client identity every component of a
// run shares.
//
// A Session picks a user agent from a fixed pool for each request, applies
// browser-like default headers, paces requests through a ratelimit.Limiter
// and retries transient failures through retry.Transport. Its Jar tracks
// which cookies responses set; whenever one changes, the snapshot is written
// to a cookiestore.Store before Send returns.
//
//	s, err := session.New(cfg)
//	if err != nil {
//		return err
//	}
//	resp, err := s.Send(ctx, http.MethodGet, url, session.Options{})
//
// Errors returned by Send are *errors.Error values of type network with kind
// timeout, connection, too_many_redirects or exhausted_retries.
package session
