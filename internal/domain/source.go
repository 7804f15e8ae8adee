package domain

// DiscoverySource records how a credible wallet entered the store.
type DiscoverySource string

const (
	SourceManual     DiscoverySource = "manual"
	SourceBacktested DiscoverySource = "backtested"
)

// String returns the string representation of DiscoverySource.
func (s DiscoverySource) String() string {
	return string(s)
}

// IsValid checks if the source is a valid value.
func (s DiscoverySource) IsValid() bool {
	return s == SourceManual || s == SourceBacktested
}
