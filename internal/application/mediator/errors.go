package mediator

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrUnknownKind is returned for a hendelse kind without a registered chain
	ErrUnknownKind = goerr.New("no command chain registered for kind")

	// ErrNilHendelse is returned when OnEvent is called without a hendelse
	ErrNilHendelse = goerr.New("hendelse is nil")

	// TagChainFailed marks the error of a pass whose chain raised after its
	// context was stored as FAILED. Handling the message again would start a
	// new chain, so callers must not retry it.
	TagChainFailed = goerr.NewTag("chain_failed")
)

// IsChainFailure reports whether err comes from a chain that was stored as
// FAILED
func IsChainFailure(err error) bool {
	return goerr.HasTag(err, TagChainFailed)
}
