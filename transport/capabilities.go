package transport

// Capabilities describes what a Transport implementation supports, so the
// Application can decide whether to enable streaming or subscription frames
// over it without a type switch on the concrete transport.
type Capabilities struct {
	Name                string
	SupportsStreaming   bool
	SupportsSubscribe   bool
	SupportsBidirection bool
	MaxFrameSize        int64
}

// ChannelCapabilities describes the in-memory reference transport.
var ChannelCapabilities = Capabilities{
	Name:                "channel",
	SupportsStreaming:   true,
	SupportsSubscribe:   true,
	SupportsBidirection: true,
}

// GetCapabilities returns the capabilities registered for name, or a zero
// Capabilities carrying just the name if nothing registered under it.
func GetCapabilities(name string) Capabilities {
	return DefaultRegistry.GetCapabilities(name)
}
