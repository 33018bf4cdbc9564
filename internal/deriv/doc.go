// Package deriv provides a typed Deriv API session on top of the multiplexed
// request channel.
//
// A Session authorizes with the account token, caches the authorization on
// the channel's marker, and re-authorizes after every reconnect. Typed calls
// decode the reply payload and turn embedded remote errors into
// *channel.RemoteError values.
//
// Usage:
//
//	sess := deriv.NewSession(ch, token, logger, deriv.WithRecorder(r))
//	if _, err := sess.Authorize(ctx); err != nil {
//	    return err
//	}
//	tick, err := sess.LatestTick(ctx, "R_100")
package deriv
