// Package peerlink implements the client side of the interview
// signaling protocol: a websocket room client and the per-peer
// negotiation state machines for camera and screen-share links.
package peerlink

// LinkKind distinguishes the two possible peer connections to the same
// remote participant. It replaces the "-screen" id-suffix convention
// with an explicit tag.
type LinkKind int

const (
	// Camera is the regular camera/mic link.
	Camera LinkKind = iota

	// Screen is the independent screen-share link.
	Screen
)

func (k LinkKind) String() string {
	if k == Screen {
		return "screen"
	}
	return "camera"
}

// IsScreenShare maps the kind onto the wire-level flag.
func (k LinkKind) IsScreenShare() bool {
	return k == Screen
}

// KindFor converts the wire-level flag back into a LinkKind.
func KindFor(isScreenShare bool) LinkKind {
	if isScreenShare {
		return Screen
	}
	return Camera
}

// LinkKey identifies one peer link: the remote connection id plus the
// link kind. The camera and screen links to the same remote are fully
// independent state machines.
type LinkKey struct {
	RemoteID string
	Kind     LinkKind
}
