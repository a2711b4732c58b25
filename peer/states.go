package peer

// channelState is the top-level protocol state of the channel with this
// peer. It only changes along the open handshake, the cooperative close
// path, or terminally into breakdown; steady-state updates never leave
// stateNormal.
type channelState uint8

const (
	// stateInit is the starting state before the open handshake.
	stateInit channelState = iota

	// stateOpenWaitForOpen indicates we have sent our OpenChannel and
	// await the counterparty's.
	stateOpenWaitForOpen

	// stateOpenWaitForAnchor indicates both OpenChannel messages have
	// been exchanged and the anchor is pending, either from our own
	// wallet or from the counterparty's OpenAnchor.
	stateOpenWaitForAnchor

	// stateOpenWaitForCommitSig indicates the anchor is known and we
	// await the counterparty's signature for our first commitment.
	stateOpenWaitForCommitSig

	// stateOpenWaitForComplete indicates the first commitments are
	// fully signed and we await anchor confirmation plus the
	// counterparty's OpenComplete.
	stateOpenWaitForComplete

	// stateNormal is the steady state in which HTLCs flow.
	stateNormal

	// stateClearing indicates both sides have exchanged close scripts
	// and in-flight HTLCs are draining. No new HTLCs are accepted.
	stateClearing

	// stateCloseWaitSig indicates all HTLCs have drained and close fee
	// negotiation is under way.
	stateCloseWaitSig

	// stateClosed indicates a fully signed mutual close transaction
	// exists.
	stateClosed

	// stateErrBreakdown is the terminal error state. The channel can
	// only be resolved on-chain.
	stateErrBreakdown
)

// String returns a human readable state name.
func (s channelState) String() string {
	switch s {
	case stateInit:
		return "INIT"
	case stateOpenWaitForOpen:
		return "OPEN_WAIT_FOR_OPEN"
	case stateOpenWaitForAnchor:
		return "OPEN_WAIT_FOR_ANCHOR"
	case stateOpenWaitForCommitSig:
		return "OPEN_WAIT_FOR_COMMIT_SIG"
	case stateOpenWaitForComplete:
		return "OPEN_WAIT_FOR_COMPLETE"
	case stateNormal:
		return "NORMAL"
	case stateClearing:
		return "CLEARING"
	case stateCloseWaitSig:
		return "CLOSE_WAIT_SIG"
	case stateClosed:
		return "CLOSED"
	case stateErrBreakdown:
		return "ERR_BREAKDOWN"
	default:
		return "<unknown>"
	}
}
