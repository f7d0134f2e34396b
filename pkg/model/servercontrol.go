package model

// ServerControl carries the LL-HLS #EXT-X-SERVER-CONTROL attributes.
// HoldBack and PartHoldBack default to 3x target duration / 3x part target
// duration respectively when nil and that target is non-zero; the defaulting
// happens at render time so the zero value of ServerControl is "let the
// renderer pick defaults".
type ServerControl struct {
	CanBlockReload    bool
	HoldBack          *float64
	PartHoldBack      *float64
	CanSkipUntil      *float64
	CanSkipDateranges bool
}

// RenditionReport points at a sibling rendition's own last-announced
// position, so clients can switch renditions without a cold reload.
type RenditionReport struct {
	URI               string
	LastMediaSequence *int
	LastPartIndex     *int
}

// SkipMode is the value of the client's _HLS_skip query parameter.
type SkipMode int

const (
	SkipNone SkipMode = iota
	SkipYes
	SkipV2
)
