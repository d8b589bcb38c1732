package memory

// DefaultMaxFileSize bounds a single context document.
const DefaultMaxFileSize int64 = 1 << 20

// Config selects the context document directory.
type Config struct {
	// Path is the directory read by the file store; empty disables
	// retrieval.
	Path string `json:"path,omitempty" yaml:"path" toml:"path"`
	// MaxFileSize is the largest document, in bytes, the store will read.
	// Larger files are left out of List.
	MaxFileSize int64 `json:"max_file_size,omitempty" yaml:"max_file_size" toml:"max_file_size"`
}

func DefaultConfig() Config {
	return Config{MaxFileSize: DefaultMaxFileSize}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Path != "" {
		c.Path = source.Path
	}
	if source.MaxFileSize > 0 {
		c.MaxFileSize = source.MaxFileSize
	}
}

// NewStore returns the file store for cfg.Path, or nil when no path is
// set.
func NewStore(cfg *Config) Store {
	if cfg.Path == "" {
		return nil
	}
	return NewFileStore(cfg.Path, WithMaxFileSize(cfg.MaxFileSize))
}
