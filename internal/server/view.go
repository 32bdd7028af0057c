package server

// View identifies which screen the hosting UI should present.
type View string

const (
	ViewMain  View = "main"
	ViewAdmin View = "admin"
	ViewChain View = "chain"
)

// ResolveView maps the external ?view= parameter onto a screen. Unrecognized
// values fall back to the main view rather than erroring.
func ResolveView(param string) View {
	switch View(param) {
	case ViewAdmin:
		return ViewAdmin
	case ViewChain:
		return ViewChain
	default:
		return ViewMain
	}
}
