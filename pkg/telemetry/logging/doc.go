// Package logging builds the service's slog.Logger and logs quota engine
// events.
//
// Identity keys can be user ids or email addresses. With RedactIdentities
// set, every attribute named "identity" is masked to its first character.
//
//	logger, err := logging.New(logging.Config{
//	    Level:            "info",
//	    Format:           "json",
//	    RedactIdentities: true,
//	})
//
// Over-release warnings are throttled so a misbehaving caller cannot flood
// the log.
package logging
