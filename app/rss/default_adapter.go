package rss

// DefaultAdapter handles any feed URL and is the registry's fallback.
type DefaultAdapter struct {
	*BaseAdapter
}

func NewDefaultAdapter(config AdapterConfig, source Source) *DefaultAdapter {
	return &DefaultAdapter{
		BaseAdapter: NewBaseAdapter("DefaultAdapter", MergeConfig(AdapterConfig{}, config), source, nil),
	}
}

func (a *DefaultAdapter) CanHandle(string) bool {
	return true
}
